// Package rank computes contribution scores over a dependency graph.
//
// # Algorithm
//
// Importance propagates from dependents to their dependencies: a project
// lends importance to what it depends on. Each node v starts from its base
// weight b_v, its share of all recorded contribution weight, and is updated
// as
//
//	s_v = (1-d)·b_v + d·Σ_u s_u·w_uv/W_u + d·D·b_v
//
// where u ranges over the dependents of v, w_uv is the edge weight, W_u is
// the total outgoing weight of u and D is the score held by nodes without
// dependencies, which is redistributed along the base vector so scores keep
// summing to one.
//
// Iteration stops when the L1 distance between successive iterates drops
// below the tolerance, or after the iteration cap. Missing the tolerance is
// not an error: the last iterate is used and [Result.Warning] reports
// RANK_NON_CONVERGENCE.
//
// A contributor's score is the sum over nodes of the node score times the
// contributor's share of that node's contribution weight. Contributor
// scores are renormalized to sum to one.
//
// # Determinism
//
// Cycles are broken on a private copy of the graph before iterating, and
// every summation runs in coordinate-key order, so identical inputs give
// bit-identical scores regardless of how the graph was built.
package rank
