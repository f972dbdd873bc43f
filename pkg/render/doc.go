// Package render draws ranked dependency graphs.
//
// # Overview
//
// A graph is converted to Graphviz DOT with [ToDOT] and rendered to SVG
// in-process with [RenderSVG]. Nodes are rounded boxes filled by score:
// the highest scoring dependency is drawn in full colour and the rest fade
// towards white. Edge widths follow the edge weights, so pinned
// requirements stand out from loose ranges.
//
//	dot := render.ToDOT(g, scores, render.Options{Detailed: true})
//	svg, err := render.RenderSVG(ctx, dot)
//
// # Dependencies
//
// This package uses [github.com/goccy/go-graphviz], which runs Graphviz
// compiled to WebAssembly, so no system installation is required.
package render
