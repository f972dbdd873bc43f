package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/source"
	"github.com/matzehuels/deprank/pkg/store"
	"github.com/matzehuels/deprank/pkg/store/storetest"
	"github.com/matzehuels/deprank/pkg/workflow"
)

func TestMemory(t *testing.T) {
	storetest.Run(t, func(*testing.T) store.Store { return store.NewMemory() })
}

func TestCached(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		c, err := store.NewCached(store.NewMemory(), 8)
		require.NoError(t, err)
		return c
	})
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	w := workflow.New(source.Ref{Repo: "github.com/acme/widget"}, 10, time.Now())
	require.NoError(t, s.CreateWorkflow(ctx, w))

	got, err := s.GetWorkflow(ctx, w.ID)
	require.NoError(t, err)
	got.Warn(errors.ErrCodeUnresolved, "x", "mutated")

	again, err := s.GetWorkflow(ctx, w.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Warnings)
}

type countingStore struct {
	store.Store
	gets int
}

func (c *countingStore) GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error) {
	c.gets++
	return c.Store.GetWorkflow(ctx, id)
}

func TestCachedServesTerminalWorkflows(t *testing.T) {
	ctx := context.Background()
	inner := &countingStore{Store: store.NewMemory()}
	c, err := store.NewCached(inner, 4)
	require.NoError(t, err)

	w := workflow.New(source.Ref{Repo: "github.com/acme/widget"}, 10, time.Now())
	require.NoError(t, c.CreateWorkflow(ctx, w))

	for range 3 {
		_, err := c.GetWorkflow(ctx, w.ID)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, inner.gets, "active workflows are not cached")

	require.NoError(t, w.Fail(errors.New(errors.ErrCodeCancelled, "stop"), time.Now()))
	require.NoError(t, c.UpdateWorkflow(ctx, w))
	for range 3 {
		got, err := c.GetWorkflow(ctx, w.ID)
		require.NoError(t, err)
		assert.Equal(t, workflow.StageFailed, got.Stage)
	}
	assert.Equal(t, 4, inner.gets)

	require.NoError(t, c.DeleteWorkflow(ctx, w.ID))
	_, err = c.GetWorkflow(ctx, w.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}
