package render

import (
	"bytes"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/goccy/go-graphviz"

	"github.com/matzehuels/deprank/pkg/dag"
)

// Options configures graph rendering.
type Options struct {
	// Detailed adds the version, ecosystem and score to node labels.
	// When false, only the package name is shown.
	Detailed bool

	// Color is the fill of the highest scoring node (default: "#e4572e").
	Color string
}

const defaultColor = "#e4572e"

// ToDOT converts a graph to Graphviz DOT. scores maps coordinate keys to
// rank scores; nodes without a score are drawn white. Truncated nodes get
// dashed outlines, unresolved ones grey text.
func ToDOT(g *dag.Graph, scores map[string]float64, opts Options) string {
	color := opts.Color
	if color == "" {
		color = defaultColor
	}
	top := 0.0
	for _, s := range scores {
		top = max(top, s)
	}

	var buf bytes.Buffer
	buf.WriteString("digraph G {\n")
	buf.WriteString("  rankdir=TB;\n")
	buf.WriteString("  bgcolor=\"transparent\";\n")
	buf.WriteString("  node [shape=box, style=\"rounded,filled\", fillcolor=white, fontsize=24, margin=\"0.2,0.1\"];\n")
	buf.WriteString("  ranksep=0.5;\n")
	buf.WriteString("  nodesep=0.3;\n")
	buf.WriteString("\n")

	for _, n := range g.Nodes() {
		score := scores[n.Key()]
		attrs := fmtAttrs(n, fmtLabel(n, score, opts.Detailed), fill(color, score, top))
		fmt.Fprintf(&buf, "  %q [%s];\n", n.Key(), strings.Join(attrs, ", "))
	}

	buf.WriteString("\n")
	for _, e := range g.Edges() {
		from, to := g.Node(e.From), g.Node(e.To)
		fmt.Fprintf(&buf, "  %q -> %q [penwidth=%.2f];\n", from.Key(), to.Key(), 0.5+1.5*e.Weight)
	}

	buf.WriteString("}\n")
	return buf.String()
}

func fmtLabel(n dag.Node, score float64, detailed bool) string {
	if !detailed {
		return n.Name
	}
	parts := []string{n.Name}
	if n.Version != "" {
		parts = append(parts, n.Version)
	}
	if n.Ecosystem != "" {
		parts = append(parts, n.Ecosystem)
	}
	parts = append(parts, fmt.Sprintf("score: %.4f", score))
	return strings.Join(parts, "\n")
}

func fmtAttrs(n dag.Node, label, fillcolor string) []string {
	attrs := []string{fmt.Sprintf("label=%q", label), fmt.Sprintf("fillcolor=%q", fillcolor)}
	if n.Truncated {
		attrs = append(attrs, "style=\"rounded,filled,dashed\"")
	}
	if n.Depth > 0 && n.Repo == "" {
		attrs = append(attrs, "fontcolor=grey40")
	}
	return attrs
}

// fill blends white towards color by score/top.
func fill(color string, score, top float64) string {
	r, g, b, ok := parseHex(color)
	if !ok {
		r, g, b, _ = parseHex(defaultColor)
	}
	t := 0.0
	if top > 0 {
		t = min(max(score/top, 0), 1)
	}
	mix := func(c uint8) uint8 { return uint8(255 - t*(255-float64(c)) + 0.5) }
	return fmt.Sprintf("#%02x%02x%02x", mix(r), mix(g), mix(b))
}

func parseHex(s string) (r, g, b uint8, ok bool) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return 0, 0, 0, false
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	return uint8(v >> 16), uint8(v >> 8), uint8(v), true
}

// RenderSVG renders a DOT graph to SVG using Graphviz.
func RenderSVG(ctx context.Context, dot string) ([]byte, error) {
	gv, err := graphviz.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("init graphviz: %w", err)
	}
	defer gv.Close()

	g, err := graphviz.ParseBytes([]byte(dot))
	if err != nil {
		return nil, fmt.Errorf("parse DOT: %w", err)
	}
	defer g.Close()

	var buf bytes.Buffer
	if err := gv.Render(ctx, g, graphviz.SVG, &buf); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return normalizeViewBox(buf.Bytes()), nil
}

var (
	svgTagRe  = regexp.MustCompile(`<svg[^>]*>`)
	viewBoxRe = regexp.MustCompile(`viewBox="([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)\s+([0-9.]+)"`)
)

// normalizeViewBox replaces the Graphviz svg element with one whose
// viewBox starts at the origin and whose size matches it.
func normalizeViewBox(svg []byte) []byte {
	match := viewBoxRe.FindSubmatch(svg)
	if match == nil {
		return svg
	}

	w, _ := strconv.ParseFloat(string(match[3]), 64)
	h, _ := strconv.ParseFloat(string(match[4]), 64)
	if w == 0 || h == 0 {
		return svg
	}

	tag := fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %.2f %.2f" width="%.0f" height="%.0f">`,
		w, h, w, h)
	return svgTagRe.ReplaceAll(svg, []byte(tag))
}
