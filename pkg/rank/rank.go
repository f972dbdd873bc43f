package rank

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/matzehuels/deprank/pkg/dag"
	"github.com/matzehuels/deprank/pkg/errors"
)

const (
	DefaultDamping       = 0.85
	DefaultTolerance     = 1e-6
	DefaultMaxIterations = 100
)

// Options configures the ranker.
type Options struct {
	Damping       float64 // In (0,1) (default: 0.85)
	Tolerance     float64 // L1 convergence bound (default: 1e-6)
	MaxIterations int     // Iteration cap (default: 100)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	if o.Damping == 0 {
		o.Damping = DefaultDamping
	}
	if o.Tolerance == 0 {
		o.Tolerance = DefaultTolerance
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = DefaultMaxIterations
	}
	return o
}

// Validate rejects out-of-range parameters.
func (o Options) Validate() error {
	if !(o.Damping > 0 && o.Damping < 1) {
		return errors.New(errors.ErrCodeInvalidInput, "damping must be in (0,1), got %v", o.Damping)
	}
	if !(o.Tolerance > 0) {
		return errors.New(errors.ErrCodeInvalidInput, "tolerance must be positive, got %v", o.Tolerance)
	}
	if o.MaxIterations <= 0 {
		return errors.New(errors.ErrCodeInvalidInput, "max iterations must be positive, got %d", o.MaxIterations)
	}
	return nil
}

// Contribution is the raw weight of one identity's work on one node.
type Contribution struct {
	Identity string
	Subject  string // coordinate key of the node
	Weight   float64
}

// Result holds the scores of one ranking.
type Result struct {
	// Contributors maps identities to scores summing to one.
	Contributors map[string]float64

	// Nodes maps coordinate keys to node scores.
	Nodes map[string]float64

	Iterations   int
	Converged    bool
	CyclesBroken int

	// Ignored counts contributions whose subject is not in the graph or
	// whose weight is not positive.
	Ignored int

	maxIterations int
}

// Warning returns RANK_NON_CONVERGENCE when the iteration cap was reached
// before convergence, and nil otherwise.
func (r *Result) Warning() error {
	if r.Converged || len(r.Nodes) == 0 {
		return nil
	}
	return errors.New(errors.ErrCodeNonConvergence,
		"ranking did not converge within %d iterations; using last iterate", r.maxIterations)
}

// Rank scores the contributors of g. The graph is not modified. ctx is
// checked between iterations.
func Rank(ctx context.Context, g *dag.Graph, contributions []Contribution, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	res := &Result{
		Contributors:  make(map[string]float64),
		Nodes:         make(map[string]float64),
		maxIterations: opts.MaxIterations,
	}

	work := g.Clone()
	res.CyclesBroken = dag.BreakCycles(work)
	m := compile(work)

	// Per-node contribution weight, summed in sorted order.
	contribs := slices.Clone(contributions)
	slices.SortFunc(contribs, func(a, b Contribution) int {
		if c := cmp.Compare(a.Subject, b.Subject); c != 0 {
			return c
		}
		return cmp.Compare(a.Identity, b.Identity)
	})
	nodeWeight := make([]float64, m.n)
	total := 0.0
	valid := contribs[:0]
	for _, c := range contribs {
		pos, ok := m.pos[c.Subject]
		if !ok || !(c.Weight > 0) {
			res.Ignored++
			continue
		}
		nodeWeight[pos] += c.Weight
		total += c.Weight
		valid = append(valid, c)
	}
	if total == 0 {
		res.Converged = true
		return res, nil
	}

	base := make([]float64, m.n)
	for i, w := range nodeWeight {
		base[i] = w / total
	}

	scores, iters, converged, err := m.propagate(ctx, base, opts)
	if err != nil {
		return nil, err
	}
	res.Iterations = iters
	res.Converged = converged

	for i, key := range m.keys {
		res.Nodes[key] = scores[i]
	}

	// Contributor scores in identity order, then renormalized.
	perIdentity := make(map[string]float64)
	for _, c := range valid {
		pos := m.pos[c.Subject]
		perIdentity[c.Identity] += scores[pos] * c.Weight / nodeWeight[pos]
	}
	ids := make([]string, 0, len(perIdentity))
	for id := range perIdentity {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	sum := 0.0
	for _, id := range ids {
		sum += perIdentity[id]
	}
	for _, id := range ids {
		if sum > 0 {
			res.Contributors[id] = perIdentity[id] / sum
		}
	}
	return res, nil
}

// matrix is the graph in canonical (coordinate key) order with incoming
// edges sorted by source position.
type matrix struct {
	n    int
	keys []string
	pos  map[string]int
	in   [][]inEdge
	sink []bool
}

type inEdge struct {
	from  int
	share float64 // w_uv / W_u
}

func compile(g *dag.Graph) *matrix {
	nodes := g.Nodes()
	order := make([]int, len(nodes))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		return cmp.Compare(nodes[a].Key(), nodes[b].Key())
	})

	m := &matrix{
		n:    len(nodes),
		keys: make([]string, len(nodes)),
		pos:  make(map[string]int, len(nodes)),
		in:   make([][]inEdge, len(nodes)),
		sink: make([]bool, len(nodes)),
	}
	canon := make([]int, len(nodes)) // graph index -> canonical position
	for p, idx := range order {
		canon[idx] = p
		m.keys[p] = nodes[idx].Key()
		m.pos[m.keys[p]] = p
	}
	for p, idx := range order {
		out := g.OutWeight(idx)
		if out == 0 {
			m.sink[p] = true
			continue
		}
		for _, child := range g.Children(idx) {
			cp := canon[child]
			m.in[cp] = append(m.in[cp], inEdge{from: p, share: g.Weight(idx, child) / out})
		}
	}
	for p := range m.in {
		slices.SortFunc(m.in[p], func(a, b inEdge) int { return cmp.Compare(a.from, b.from) })
	}
	return m
}

func (m *matrix) propagate(ctx context.Context, base []float64, opts Options) ([]float64, int, bool, error) {
	d := opts.Damping
	cur := slices.Clone(base)
	next := make([]float64, m.n)

	for iter := 1; iter <= opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, iter - 1, false, errors.Wrap(errors.ErrCodeCancelled, err, "ranking cancelled")
		}

		dangling := 0.0
		for p := 0; p < m.n; p++ {
			if m.sink[p] {
				dangling += cur[p]
			}
		}
		delta := 0.0
		for v := 0; v < m.n; v++ {
			flow := 0.0
			for _, e := range m.in[v] {
				flow += cur[e.from] * e.share
			}
			next[v] = (1-d)*base[v] + d*flow + d*dangling*base[v]
			delta += math.Abs(next[v] - cur[v])
		}
		cur, next = next, cur
		if delta < opts.Tolerance {
			return cur, iter, true, nil
		}
	}
	return cur, opts.MaxIterations, false, nil
}

// Sorted returns the entries of scores ordered by descending score, then
// key.
func Sorted(scores map[string]float64) []Entry {
	out := make([]Entry, 0, len(scores))
	for k, v := range scores {
		out = append(out, Entry{Key: k, Score: v})
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return out
}

// Entry is one score of a sorted ranking.
type Entry struct {
	Key   string
	Score float64
}
