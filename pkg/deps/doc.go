// Package deps builds the dependency graph of a project.
//
// # Overview
//
// [Build] starts from the project node and its parsed manifests and expands
// the graph one depth level at a time. Each newly discovered dependency is
// handed to a [Resolver], which locates its source repository, fetches it
// and parses its manifests; the dependencies declared there form the next
// level.
//
//	res, err := deps.Build(ctx, root, manifests, resolver, deps.Options{
//	    MaxDepth: 3,
//	})
//
// # Limits
//
// Expansion stops at [Options.MaxDepth]: dependencies at that depth stay in
// the graph as leaves marked Truncated and a single GRAPH_RECURSION_LIMIT
// warning is reported. Expansion also stops once the graph holds
// [Options.MaxNodes] nodes.
//
// Nodes are keyed by coordinate. A coordinate reached again through another
// path gets a new edge, never a second node, so cycles terminate.
//
// # Determinism
//
// Resolutions within a level run concurrently, but their results are merged
// in a canonical order (parent index, then dependency coordinate), so the
// node indices of the resulting graph do not depend on scheduling.
//
// # Edge weights
//
// Edges weigh 1 by default. [EdgeWeights] configures separate weights for
// pinned and range declarations.
package deps
