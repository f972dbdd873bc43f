package store

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/matzehuels/deprank/pkg/workflow"
)

// Memory is an in-process Store. Records are copied on the way in and out.
type Memory struct {
	mu          sync.RWMutex
	workflows   map[string]*workflow.Workflow
	analyses    map[string]*workflow.Analysis
	scores      map[string]*workflow.Scores
	allocations map[string][]workflow.Allocation
	projects    map[string]workflow.Project
	wallets     map[string]workflow.WalletBinding
	airdrops    map[string]*workflow.Airdrop
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		workflows:   make(map[string]*workflow.Workflow),
		analyses:    make(map[string]*workflow.Analysis),
		scores:      make(map[string]*workflow.Scores),
		allocations: make(map[string][]workflow.Allocation),
		projects:    make(map[string]workflow.Project),
		wallets:     make(map[string]workflow.WalletBinding),
		airdrops:    make(map[string]*workflow.Airdrop),
	}
}

func (m *Memory) CreateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[w.ID]; ok {
		return ErrConflict
	}
	w.Version = 1
	m.workflows[w.ID] = w.Clone()
	return nil
}

func (m *Memory) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workflows[id]
	if !ok {
		return nil, ErrNotFound
	}
	return w.Clone(), nil
}

func (m *Memory) UpdateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.workflows[w.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != w.Version {
		return ErrConflict
	}
	w.Version++
	m.workflows[w.ID] = w.Clone()
	return nil
}

func (m *Memory) ListWorkflows(ctx context.Context, f Filter) ([]*workflow.Workflow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*workflow.Workflow
	for _, w := range m.workflows {
		if f.Active && w.Terminal() {
			continue
		}
		out = append(out, w.Clone())
	}
	slices.SortFunc(out, func(a, b *workflow.Workflow) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *Memory) DeleteWorkflow(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return ErrNotFound
	}
	delete(m.workflows, id)
	delete(m.analyses, id)
	delete(m.scores, id)
	delete(m.allocations, id)
	return nil
}

func (m *Memory) ClearArtifacts(ctx context.Context, workflowID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.analyses, workflowID)
	delete(m.scores, workflowID)
	delete(m.allocations, workflowID)
	return nil
}

func (m *Memory) PutAnalysis(ctx context.Context, a *workflow.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[a.WorkflowID]; !ok {
		return ErrNotFound
	}
	c := *a
	m.analyses[a.WorkflowID] = &c
	return nil
}

func (m *Memory) GetAnalysis(ctx context.Context, workflowID string) (*workflow.Analysis, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.analyses[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

func (m *Memory) PutScores(ctx context.Context, s *workflow.Scores) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[s.WorkflowID]; !ok {
		return ErrNotFound
	}
	c := *s
	m.scores[s.WorkflowID] = &c
	return nil
}

func (m *Memory) GetScores(ctx context.Context, workflowID string) (*workflow.Scores, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.scores[workflowID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *s
	return &c, nil
}

func (m *Memory) PutAllocations(ctx context.Context, workflowID string, allocs []workflow.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[workflowID]; !ok {
		return ErrNotFound
	}
	m.allocations[workflowID] = slices.Clone(allocs)
	return nil
}

func (m *Memory) ListAllocations(ctx context.Context, workflowID string) ([]workflow.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.workflows[workflowID]; !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(m.allocations[workflowID]), nil
}

func (m *Memory) PutProject(ctx context.Context, p workflow.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[ProjectKey(p.Owner, p.Name)] = p
	return nil
}

func (m *Memory) GetProject(ctx context.Context, owner, name string) (*workflow.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.projects[ProjectKey(owner, name)]
	if !ok {
		return nil, ErrNotFound
	}
	return &p, nil
}

func (m *Memory) PutWallet(ctx context.Context, b workflow.WalletBinding) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallets[b.Identity] = b
	return nil
}

func (m *Memory) GetWallet(ctx context.Context, identity string) (*workflow.WalletBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.wallets[identity]
	if !ok {
		return nil, ErrNotFound
	}
	return &b, nil
}

func (m *Memory) FindWallet(ctx context.Context, address string) (*workflow.WalletBinding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.wallets))
	for id, b := range m.wallets {
		if b.Address == address {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	slices.Sort(ids)
	b := m.wallets[ids[0]]
	return &b, nil
}

func (m *Memory) DeleteWallet(ctx context.Context, identity string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.wallets, identity)
	return nil
}

func cloneAirdrop(a *workflow.Airdrop) *workflow.Airdrop {
	c := *a
	c.Claims = slices.Clone(a.Claims)
	return &c
}

func (m *Memory) CreateAirdrop(ctx context.Context, a *workflow.Airdrop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.airdrops[a.ID]; ok {
		return ErrConflict
	}
	m.airdrops[a.ID] = cloneAirdrop(a)
	return nil
}

func (m *Memory) GetAirdrop(ctx context.Context, id string) (*workflow.Airdrop, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.airdrops[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneAirdrop(a), nil
}

func (m *Memory) AddClaim(ctx context.Context, airdropID string, c workflow.Claim) (*workflow.Airdrop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.airdrops[airdropID]
	if !ok {
		return nil, ErrNotFound
	}
	if _, done := a.Claimed(c.Address); done {
		return cloneAirdrop(a), nil
	}
	if a.Status != workflow.AirdropOpen {
		return nil, ErrClosed
	}
	a.Claims = append(a.Claims, c)
	return cloneAirdrop(a), nil
}

func (m *Memory) SetAirdropStatus(ctx context.Context, id string, s workflow.AirdropStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.airdrops[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = s
	return nil
}

func (m *Memory) Close(ctx context.Context) error { return nil }
