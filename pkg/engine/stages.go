package engine

import (
	"context"
	stderrors "errors"
	"maps"
	"slices"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/deprank/pkg/allocation"
	"github.com/matzehuels/deprank/pkg/dag"
	"github.com/matzehuels/deprank/pkg/deps"
	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/manifest"
	"github.com/matzehuels/deprank/pkg/rank"
	"github.com/matzehuels/deprank/pkg/settlement"
	"github.com/matzehuels/deprank/pkg/source"
	"github.com/matzehuels/deprank/pkg/store"
	"github.com/matzehuels/deprank/pkg/workflow"
)

// fetch resolves the reference and records the revision every later
// stage works on.
func (e *Engine) fetch(ctx context.Context, w *workflow.Workflow) error {
	snap, err := e.fetcher.Fetch(ctx, w.Ref)
	if err != nil {
		return err
	}
	owner, name := w.Ref.OwnerName()
	w.Revision = snap.Revision
	w.Project = owner + "/" + name
	e.logger.Debug("fetched", "workflow", w.ID, "repo", snap.Repo, "revision", snap.Revision)
	return nil
}

// pinned returns the workflow reference fixed at the fetched revision.
func pinned(w *workflow.Workflow) source.Ref {
	ref := w.Ref
	if w.Revision != "" {
		ref.Rev = w.Revision
	}
	return ref
}

func rootNode(w *workflow.Workflow) dag.Node {
	return dag.Node{
		Coordinate: dag.Coordinate{Name: w.Ref.Normalized(), Version: w.Revision},
		Repo:       w.Ref.Normalized(),
		Revision:   w.Revision,
	}
}

// analyze parses the manifests, builds the dependency graph and extracts
// contributions from the history of every resolved repository.
func (e *Engine) analyze(ctx context.Context, w *workflow.Workflow) error {
	snap, err := e.fetcher.Fetch(ctx, pinned(w))
	if err != nil {
		return err
	}

	manifests, warnings, err := manifest.Collect(e.parser.Parse(ctx, snap.Dir))
	if err != nil {
		return err
	}
	if err := note(w, warnings...); err != nil {
		return err
	}

	root := rootNode(w)
	built, err := deps.Build(ctx, root, manifests, e.resolver, deps.Options{
		MaxDepth: e.cfg.MaxDepth,
		MaxNodes: e.cfg.MaxNodes,
		Workers:  e.cfg.NetworkWorkers,
		Weights:  e.cfg.EdgeWeights,
		Logger:   e.logger,
	})
	if err != nil {
		return err
	}
	if err := note(w, built.Warnings...); err != nil {
		return err
	}

	contribs, err := e.contributions(ctx, w, root.Key(), snap, built)
	if err != nil {
		return err
	}
	project, err := e.project(ctx, w)
	if err != nil {
		return err
	}

	paths := make([]string, len(manifests))
	for i, m := range manifests {
		paths[i] = m.Path
	}
	e.logger.Info("analysis complete", "workflow", w.ID,
		"manifests", len(manifests),
		"nodes", built.Graph.NodeCount(),
		"edges", built.Graph.EdgeCount(),
		"contributions", len(contribs))

	return e.store.PutAnalysis(ctx, &workflow.Analysis{
		WorkflowID:    w.ID,
		Project:       project,
		Manifests:     paths,
		Graph:         built.Graph.Export(),
		Contributions: contribs,
	})
}

// note records non-fatal stage errors as workflow warnings. The first
// error whose code is fatal is returned instead and fails the stage.
func note(w *workflow.Workflow, errs ...error) error {
	for _, err := range errs {
		if errors.CodeOr(err, errors.ErrCodeInternal).Fatal() {
			return err
		}
		w.WarnErr(err, "")
	}
	return nil
}

type historyTarget struct {
	subject string
	repo    string
	snap    *source.Snapshot
}

// contributions walks the root history and the history of each resolved
// dependency concurrently. Only a failure on the root is fatal.
func (e *Engine) contributions(ctx context.Context, w *workflow.Workflow, rootKey string, snap *source.Snapshot, built *deps.Result) ([]workflow.Contribution, error) {
	targets := []historyTarget{{subject: rootKey, repo: snap.Repo, snap: snap}}
	for _, idx := range slices.Sorted(maps.Keys(built.Sources)) {
		n := built.Graph.Node(idx)
		targets = append(targets, historyTarget{subject: n.Key(), repo: n.Repo, snap: built.Sources[idx]})
	}

	results := make([][]source.Authorship, len(targets))
	failures := make([]error, len(targets))
	opts := source.HistoryOptions{MaxCommits: e.cfg.HistoryCommits, CountLines: e.cfg.CountLines}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.NetworkWorkers)
	for i, t := range targets {
		g.Go(func() error {
			a, err := source.History(gctx, t.snap, opts)
			if err != nil {
				if i == 0 || gctx.Err() != nil {
					return err
				}
				failures[i] = err
				return nil
			}
			results[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []workflow.Contribution
	for i, t := range targets {
		if failures[i] != nil {
			w.WarnErr(errors.Wrap(errors.ErrCodeUnresolved, failures[i], "history of %s", t.subject), t.subject)
			continue
		}
		for _, a := range results[i] {
			out = append(out, workflow.Contribution{
				ID:         workflow.DeriveID(w.ID, "contribution", a.Identity, t.subject),
				WorkflowID: w.ID,
				Identity:   a.Identity,
				Subject:    t.subject,
				Repo:       t.repo,
				Commits:    a.Commits,
				Lines:      a.Lines,
				Weight:     float64(a.Commits),
			})
		}
	}
	return out, nil
}

// project describes the analysed repository, enriched with hosting
// metadata when a metrics source is configured.
func (e *Engine) project(ctx context.Context, w *workflow.Workflow) (workflow.Project, error) {
	owner, name := w.Ref.OwnerName()
	p := workflow.Project{
		Owner:      owner,
		Name:       name,
		Repo:       w.Ref.Normalized(),
		Revision:   w.Revision,
		WorkflowID: w.ID,
		AnalyzedAt: e.now(),
	}
	if e.metrics == nil || !strings.HasPrefix(p.Repo, "github.com/") {
		return p, nil
	}
	m, err := e.metrics.Fetch(ctx, owner, name, false)
	if err != nil {
		if ctx.Err() != nil {
			return p, ctx.Err()
		}
		e.logger.Debug("project metrics unavailable", "workflow", w.ID, "err", err)
		return p, nil
	}
	p.Description = m.Description
	p.DefaultBranch = m.DefaultBranch
	p.License = m.License
	p.Language = m.Language
	p.Stars = m.Stars
	return p, nil
}

// rank scores contributors over the persisted graph.
func (e *Engine) rank(ctx context.Context, w *workflow.Workflow) error {
	a, err := e.store.GetAnalysis(ctx, w.ID)
	if err != nil {
		return err
	}
	g, err := dag.Import(a.Graph)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInternal, err, "load graph")
	}
	contribs := make([]rank.Contribution, len(a.Contributions))
	for i, c := range a.Contributions {
		contribs[i] = rank.Contribution{Identity: c.Identity, Subject: c.Subject, Weight: c.Weight}
	}

	res, err := rank.Rank(ctx, g, contribs, e.cfg.Rank())
	if err != nil {
		return err
	}
	if warn := res.Warning(); warn != nil {
		if err := note(w, warn); err != nil {
			return err
		}
	}
	if res.CyclesBroken > 0 {
		e.logger.Debug("cycles broken", "workflow", w.ID, "edges", res.CyclesBroken)
	}

	return e.store.PutScores(ctx, &workflow.Scores{
		WorkflowID:   w.ID,
		Contributors: toScores(rank.Sorted(res.Contributors)),
		Nodes:        toScores(rank.Sorted(res.Nodes)),
		Iterations:   res.Iterations,
		Converged:    res.Converged,
		CyclesBroken: res.CyclesBroken,
	})
}

func toScores(es []rank.Entry) []workflow.Score {
	out := make([]workflow.Score, len(es))
	for i, e := range es {
		out[i] = workflow.Score{Key: e.Key, Value: e.Score}
	}
	return out
}

// allocate splits the budget over the contributor scores.
func (e *Engine) allocate(ctx context.Context, w *workflow.Workflow) error {
	sc, err := e.store.GetScores(ctx, w.ID)
	if err != nil {
		return err
	}
	scores := make(map[string]float64, len(sc.Contributors))
	for _, s := range sc.Contributors {
		scores[s.Key] = s.Value
	}
	shares, err := allocation.Allocate(scores, w.Budget)
	if err != nil {
		return err
	}
	if total := allocation.Total(shares); len(shares) > 0 && total != w.Budget {
		return errors.New(errors.ErrCodeInternal, "allocations sum to %d, budget is %d", total, w.Budget)
	}

	allocs := make([]workflow.Allocation, len(shares))
	for i, s := range shares {
		allocs[i] = workflow.Allocation{
			ID:         workflow.DeriveID(w.ID, "allocation", s.Identity),
			WorkflowID: w.ID,
			Identity:   s.Identity,
			Amount:     s.Amount,
			Score:      s.Score,
			Status:     workflow.AllocationPending,
		}
	}
	if err := e.applyWallets(ctx, allocs); err != nil {
		return err
	}
	return e.store.PutAllocations(ctx, w.ID, allocs)
}

// applyWallets sets the bound wallet of every allocation not yet submitted.
func (e *Engine) applyWallets(ctx context.Context, allocs []workflow.Allocation) error {
	for i := range allocs {
		if allocs[i].ReceiptID != "" {
			continue
		}
		b, err := e.store.GetWallet(ctx, allocs[i].Identity)
		switch {
		case err == nil:
			allocs[i].Wallet = b.Address
		case stderrors.Is(err, store.ErrNotFound):
			allocs[i].Wallet = ""
		default:
			return err
		}
	}
	return nil
}

// settle records the workflow and its allocations on the ledger.
func (e *Engine) settle(ctx context.Context, w *workflow.Workflow) error {
	cur, err := e.store.GetWorkflow(ctx, w.ID)
	if err != nil {
		return err
	}
	w.Wallet = cur.Wallet
	w.Version = cur.Version
	if w.Wallet == "" {
		return errAwaitingWallet
	}
	w.AwaitingWallet = false

	allocs, err := e.store.ListAllocations(ctx, w.ID)
	if err != nil {
		return err
	}
	if err := e.applyWallets(ctx, allocs); err != nil {
		return err
	}
	a, err := e.store.GetAnalysis(ctx, w.ID)
	if err != nil {
		return err
	}

	plan := &settlement.Plan{
		Workflow:     w,
		Owner:        w.Project,
		Dependencies: dependencies(a),
		Allocations:  allocs,
	}
	return e.settler.Settle(ctx, plan, func(ctx context.Context, w *workflow.Workflow, allocs []workflow.Allocation) error {
		if err := e.store.PutAllocations(ctx, w.ID, allocs); err != nil {
			return err
		}
		return e.save(ctx, w)
	})
}

// dependencies lists the graph nodes below the root as ledger receipts.
func dependencies(a *workflow.Analysis) []settlement.Dependency {
	var out []settlement.Dependency
	for _, n := range a.Graph.Nodes {
		if n.Depth == 0 {
			continue
		}
		out = append(out, settlement.Dependency{
			Name:      n.Name,
			Version:   n.Version,
			Ecosystem: n.Ecosystem,
			Repo:      n.Repo,
			Revision:  n.Revision,
		})
	}
	return out
}

// publish records the analysed project as the latest for its name.
func (e *Engine) publish(ctx context.Context, w *workflow.Workflow) error {
	a, err := e.store.GetAnalysis(ctx, w.ID)
	if err != nil {
		if stderrors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	return e.store.PutProject(ctx, a.Project)
}
