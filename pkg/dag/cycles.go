package dag

// BreakCycles removes every back edge found by a depth-first search that
// starts at the root and then at any node not yet reached, in index order.
// It returns the number of edges removed. The result is deterministic for a
// given insertion order.
func BreakCycles(g *Graph) int {
	const (
		white = iota
		gray
		black
	)

	color := make([]int, g.NodeCount())
	var backEdges [][2]int

	var dfs func(node int)
	dfs = func(node int) {
		color[node] = gray
		for _, child := range g.out[node] {
			switch color[child] {
			case white:
				dfs(child)
			case gray:
				backEdges = append(backEdges, [2]int{node, child})
			}
		}
		color[node] = black
	}

	for i := range g.nodes {
		if color[i] == white {
			dfs(i)
		}
	}

	for _, e := range backEdges {
		g.RemoveEdge(e[0], e[1])
	}
	return len(backEdges)
}
