// Package dag provides the dependency graph used by a single workflow.
//
// # Overview
//
// Nodes live in a flat arena and are addressed by their index. Each node is
// uniquely keyed by its [Coordinate] (name, version and optional ecosystem),
// so a dependency reached through several paths is stored exactly once.
// Edges are index pairs carrying a weight.
//
// # Basic Usage
//
//	g := dag.New()
//	root, _, _ := g.AddNode(dag.Node{Coordinate: dag.Coordinate{Name: "acme/widget"}})
//	lib, _, _ := g.AddNode(dag.Node{Coordinate: dag.Coordinate{Name: "golang.org/x/sync", Version: "v0.18.0", Ecosystem: "go"}})
//	g.AddEdge(root, lib, 1)
//
// The first node added is the root. Query the structure with [Graph.Children],
// [Graph.Parents] and [Graph.Lookup].
//
// # Cycles
//
// Dependency data is not guaranteed to be acyclic. [BreakCycles] removes the
// back edges found by a depth-first search from the root, leaving a DAG that
// iterative solvers can walk safely. Callers that must keep the original
// graph intact run it on a [Graph.Clone].
//
// # Serialization
//
// [Graph.Export] and [Import] convert to and from a plain [Export] value
// suitable for JSON or BSON persistence.
package dag
