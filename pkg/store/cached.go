package store

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/matzehuels/deprank/pkg/workflow"
)

// DefaultCacheSize is the number of finished workflows Cached keeps.
const DefaultCacheSize = 1024

// Cached is a read-through cache in front of a Store. Only terminal
// workflows and their allocations are cached since nothing changes them
// short of deletion.
type Cached struct {
	Store
	workflows   *lru.Cache[string, *workflow.Workflow]
	allocations *lru.Cache[string, []workflow.Allocation]
}

// NewCached wraps s with an LRU of the given size (DefaultCacheSize if <= 0).
func NewCached(s Store, size int) (*Cached, error) {
	if size <= 0 {
		size = DefaultCacheSize
	}
	wc, err := lru.New[string, *workflow.Workflow](size)
	if err != nil {
		return nil, err
	}
	ac, err := lru.New[string, []workflow.Allocation](size)
	if err != nil {
		return nil, err
	}
	return &Cached{Store: s, workflows: wc, allocations: ac}, nil
}

func (c *Cached) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	if w, ok := c.workflows.Get(id); ok {
		return w.Clone(), nil
	}
	w, err := c.Store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Terminal() {
		c.workflows.Add(id, w.Clone())
	}
	return w, nil
}

func (c *Cached) UpdateWorkflow(ctx context.Context, w *workflow.Workflow) error {
	c.workflows.Remove(w.ID)
	c.allocations.Remove(w.ID)
	return c.Store.UpdateWorkflow(ctx, w)
}

func (c *Cached) DeleteWorkflow(ctx context.Context, id string) error {
	c.workflows.Remove(id)
	c.allocations.Remove(id)
	return c.Store.DeleteWorkflow(ctx, id)
}

func (c *Cached) ClearArtifacts(ctx context.Context, workflowID string) error {
	c.allocations.Remove(workflowID)
	return c.Store.ClearArtifacts(ctx, workflowID)
}

func (c *Cached) PutAllocations(ctx context.Context, workflowID string, allocs []workflow.Allocation) error {
	c.allocations.Remove(workflowID)
	return c.Store.PutAllocations(ctx, workflowID, allocs)
}

func (c *Cached) ListAllocations(ctx context.Context, workflowID string) ([]workflow.Allocation, error) {
	if a, ok := c.allocations.Get(workflowID); ok {
		return append([]workflow.Allocation(nil), a...), nil
	}
	allocs, err := c.Store.ListAllocations(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	if w, ok := c.workflows.Get(workflowID); ok && w.Terminal() {
		c.allocations.Add(workflowID, append([]workflow.Allocation(nil), allocs...))
	}
	return allocs, nil
}
