package engine

import (
	"cmp"
	"context"
	stderrors "errors"
	"slices"

	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/store"
	"github.com/matzehuels/deprank/pkg/workflow"
)

// Allocations lists the allocations of a workflow, largest first.
func (e *Engine) Allocations(ctx context.Context, workflowID string) ([]workflow.Allocation, error) {
	allocs, err := e.store.ListAllocations(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(allocs, func(a, b workflow.Allocation) int {
		if c := cmp.Compare(b.Amount, a.Amount); c != 0 {
			return c
		}
		return cmp.Compare(a.Identity, b.Identity)
	})
	return allocs, nil
}

// Allocation returns one allocation by id.
func (e *Engine) Allocation(ctx context.Context, workflowID, allocationID string) (*workflow.Allocation, error) {
	allocs, err := e.store.ListAllocations(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	for _, a := range allocs {
		if a.ID == allocationID {
			return &a, nil
		}
	}
	return nil, store.ErrNotFound
}

// Contributions lists the contributions found by the analysis. A workflow
// that has not been analysed yet has none.
func (e *Engine) Contributions(ctx context.Context, workflowID string) ([]workflow.Contribution, error) {
	if _, err := e.store.GetWorkflow(ctx, workflowID); err != nil {
		return nil, err
	}
	a, err := e.store.GetAnalysis(ctx, workflowID)
	if stderrors.Is(err, store.ErrNotFound) {
		return []workflow.Contribution{}, nil
	}
	if err != nil {
		return nil, err
	}
	return a.Contributions, nil
}

// Contribution returns one contribution by id.
func (e *Engine) Contribution(ctx context.Context, workflowID, contributionID string) (*workflow.Contribution, error) {
	cs, err := e.Contributions(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	for _, c := range cs {
		if c.ID == contributionID {
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

// Project returns the latest completed analysis of owner/name.
func (e *Engine) Project(ctx context.Context, owner, name string) (*workflow.Project, error) {
	return e.store.GetProject(ctx, owner, name)
}

// ContributorSummary aggregates one contributor of a project.
type ContributorSummary struct {
	Identity string  `json:"identity"`
	Commits  int     `json:"commits"`
	Score    float64 `json:"score"`
	Amount   int64   `json:"amount"`
	Wallet   string  `json:"wallet_address,omitempty"`
}

// DependencySummary describes one dependency of a project.
type DependencySummary struct {
	Key       string  `json:"key"`
	Name      string  `json:"name"`
	Version   string  `json:"version,omitempty"`
	Ecosystem string  `json:"ecosystem,omitempty"`
	Repo      string  `json:"repo,omitempty"`
	Depth     int     `json:"depth"`
	Truncated bool    `json:"truncated,omitempty"`
	Score     float64 `json:"score"`
}

// ProjectContributors lists the contributors of the latest analysis of a
// project, highest score first.
func (e *Engine) ProjectContributors(ctx context.Context, owner, name string) ([]ContributorSummary, error) {
	p, err := e.store.GetProject(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	a, sc, err := e.artifacts(ctx, p.WorkflowID)
	if err != nil {
		return nil, err
	}
	allocs, err := e.store.ListAllocations(ctx, p.WorkflowID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*ContributorSummary)
	get := func(id string) *ContributorSummary {
		s, ok := byID[id]
		if !ok {
			s = &ContributorSummary{Identity: id}
			byID[id] = s
		}
		return s
	}
	for _, c := range a.Contributions {
		get(c.Identity).Commits += c.Commits
	}
	for _, s := range sc.Contributors {
		get(s.Key).Score = s.Value
	}
	for _, al := range allocs {
		s := get(al.Identity)
		s.Amount = al.Amount
		s.Wallet = al.Wallet
	}

	out := make([]ContributorSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b ContributorSummary) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Identity, b.Identity)
	})
	return out, nil
}

// ProjectContributor returns one contributor of a project.
func (e *Engine) ProjectContributor(ctx context.Context, owner, name, identity string) (*ContributorSummary, error) {
	all, err := e.ProjectContributors(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	for _, s := range all {
		if s.Identity == identity {
			return &s, nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "contributor %s not found in %s/%s", identity, owner, name)
}

// ProjectDependencies lists the dependencies of the latest analysis of a
// project, highest score first.
func (e *Engine) ProjectDependencies(ctx context.Context, owner, name string) ([]DependencySummary, error) {
	p, err := e.store.GetProject(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	a, sc, err := e.artifacts(ctx, p.WorkflowID)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]float64, len(sc.Nodes))
	for _, s := range sc.Nodes {
		scores[s.Key] = s.Value
	}

	var out []DependencySummary
	for _, n := range a.Graph.Nodes {
		if n.Depth == 0 {
			continue
		}
		out = append(out, DependencySummary{
			Key:       n.Key(),
			Name:      n.Name,
			Version:   n.Version,
			Ecosystem: n.Ecosystem,
			Repo:      n.Repo,
			Depth:     n.Depth,
			Truncated: n.Truncated,
			Score:     scores[n.Key()],
		})
	}
	slices.SortFunc(out, func(a, b DependencySummary) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	return out, nil
}

// ProjectDependency returns the dependency matching name, which may be a
// plain package name or a full coordinate key.
func (e *Engine) ProjectDependency(ctx context.Context, owner, name, dep string) (*DependencySummary, error) {
	all, err := e.ProjectDependencies(ctx, owner, name)
	if err != nil {
		return nil, err
	}
	for _, d := range all {
		if d.Key == dep {
			return &d, nil
		}
	}
	for _, d := range all {
		if d.Name == dep {
			return &d, nil
		}
	}
	return nil, errors.New(errors.ErrCodeNotFound, "dependency %s not found in %s/%s", dep, owner, name)
}

// Scores returns the ranking of a workflow.
func (e *Engine) Scores(ctx context.Context, workflowID string) (*workflow.Scores, error) {
	return e.store.GetScores(ctx, workflowID)
}

// Analysis returns the analysis of a workflow.
func (e *Engine) Analysis(ctx context.Context, workflowID string) (*workflow.Analysis, error) {
	return e.store.GetAnalysis(ctx, workflowID)
}

func (e *Engine) artifacts(ctx context.Context, workflowID string) (*workflow.Analysis, *workflow.Scores, error) {
	a, err := e.store.GetAnalysis(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	sc, err := e.store.GetScores(ctx, workflowID)
	if err != nil {
		return nil, nil, err
	}
	return a, sc, nil
}
