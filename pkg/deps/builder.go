package deps

import (
	"cmp"
	"context"
	stderrors "errors"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/deprank/pkg/dag"
	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/manifest"
	"github.com/matzehuels/deprank/pkg/source"
)

// Result is a built dependency graph.
type Result struct {
	Graph *dag.Graph

	// Sources maps node indices to the snapshots they were resolved from.
	// The root is not included.
	Sources map[int]*source.Snapshot

	// Warnings are non-fatal problems: unresolvable dependencies, malformed
	// manifests and truncation.
	Warnings []error
}

type pending struct {
	parent int
	deps   []manifest.Dependency
}

type expansion struct {
	index int
	dep   manifest.Dependency
	res   *Resolution
	err   error
}

// Build constructs the dependency graph rooted at root. The root's
// dependencies are those declared by manifests. Only context errors abort
// the build; resolution failures become warnings and leave the dependency
// as a leaf.
func Build(ctx context.Context, root dag.Node, manifests []*manifest.Manifest, resolver Resolver, opts Options) (*Result, error) {
	opts = opts.WithDefaults()
	if resolver == nil {
		resolver = NopResolver
	}

	g := dag.New()
	root.Depth = 0
	rootIdx, _, err := g.AddNode(root)
	if err != nil {
		return nil, err
	}

	res := &Result{Graph: g, Sources: make(map[int]*source.Snapshot)}
	truncated := 0
	frontier := []pending{{parent: rootIdx, deps: declared(manifests)}}

	for depth := 1; len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var next []expansion
		for _, p := range frontier {
			for _, d := range canonical(p.deps) {
				idx, added, err := g.AddNode(dag.Node{Coordinate: d.Coordinate(), Depth: depth})
				if err != nil {
					continue
				}
				if idx == p.parent {
					continue
				}
				if err := g.AddEdge(p.parent, idx, opts.Weights.For(d)); err != nil {
					return nil, err
				}
				if !added {
					continue
				}
				if depth >= opts.MaxDepth || g.NodeCount() >= opts.MaxNodes {
					g.Update(idx, func(n *dag.Node) { n.Truncated = true })
					truncated++
					continue
				}
				next = append(next, expansion{index: idx, dep: d})
			}
		}

		if err := resolveLevel(ctx, resolver, next, opts.Workers); err != nil {
			return nil, err
		}

		frontier = frontier[:0]
		for _, e := range next {
			if e.err != nil {
				res.Warnings = append(res.Warnings, unresolved(e.dep, e.err))
				opts.Logger.Debug("dependency unresolved", "dep", e.dep.Coordinate(), "err", e.err)
				continue
			}
			if e.res == nil {
				continue
			}
			res.Warnings = append(res.Warnings, e.res.Warnings...)
			g.Update(e.index, func(n *dag.Node) {
				n.Repo = e.res.Repo
				n.Revision = e.res.Revision()
			})
			if e.res.Snapshot != nil {
				res.Sources[e.index] = e.res.Snapshot
			}
			if deps := e.res.Dependencies(); len(deps) > 0 {
				frontier = append(frontier, pending{parent: e.index, deps: deps})
			}
		}
		opts.Logger.Debug("graph level built", "depth", depth, "nodes", g.NodeCount(), "resolved", len(res.Sources))
	}

	if truncated > 0 {
		res.Warnings = append(res.Warnings, errors.New(errors.ErrCodeRecursionLimit,
			"%d dependencies at depth %d or beyond the %d node limit were not expanded",
			truncated, opts.MaxDepth, opts.MaxNodes))
	}
	return res, nil
}

// resolveLevel resolves every expansion concurrently, storing results in
// place. Only context errors are returned.
func resolveLevel(ctx context.Context, resolver Resolver, level []expansion, workers int) error {
	if len(level) == 0 {
		return nil
	}
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i := range level {
		e := &level[i]
		eg.Go(func() error {
			e.res, e.err = resolver.Resolve(egCtx, e.dep)
			if e.err != nil && isContextErr(e.err) && ctx.Err() != nil {
				return e.err
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// canonical sorts declarations by coordinate key. Duplicates are kept;
// the graph merges them into one edge with the larger weight.
func canonical(ds []manifest.Dependency) []manifest.Dependency {
	out := slices.Clone(ds)
	slices.SortStableFunc(out, func(a, b manifest.Dependency) int {
		return cmp.Compare(a.Coordinate().Key(), b.Coordinate().Key())
	})
	return out
}

func unresolved(d manifest.Dependency, err error) error {
	if errors.GetCode(err) == errors.ErrCodeUnresolved {
		return err
	}
	return errors.Wrap(errors.ErrCodeUnresolved, err, "resolve %s", d.Coordinate())
}

func isContextErr(err error) bool {
	return stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded)
}
