// Package storetest holds conformance tests shared by Store implementations.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/source"
	"github.com/matzehuels/deprank/pkg/store"
	"github.com/matzehuels/deprank/pkg/workflow"
)

// Run exercises s. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) store.Store) {
	t.Run("workflow lifecycle", func(t *testing.T) { testWorkflows(t, newStore(t)) })
	t.Run("list active", func(t *testing.T) { testList(t, newStore(t)) })
	t.Run("artifacts", func(t *testing.T) { testArtifacts(t, newStore(t)) })
	t.Run("delete cascades", func(t *testing.T) { testDelete(t, newStore(t)) })
	t.Run("projects", func(t *testing.T) { testProjects(t, newStore(t)) })
	t.Run("wallets", func(t *testing.T) { testWallets(t, newStore(t)) })
	t.Run("airdrops", func(t *testing.T) { testAirdrops(t, newStore(t)) })
}

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func newWorkflow(id string, at time.Time) *workflow.Workflow {
	w := workflow.New(source.Ref{Repo: "github.com/acme/widget", Branch: "main"}, 1000, at)
	w.ID = id
	return w
}

func testWorkflows(t *testing.T, s store.Store) {
	ctx := context.Background()
	w := newWorkflow("wf-1", epoch)
	require.NoError(t, s.CreateWorkflow(ctx, w))
	assert.Equal(t, int64(1), w.Version)

	err := s.CreateWorkflow(ctx, newWorkflow("wf-1", epoch))
	assert.True(t, errors.Is(err, errors.ErrCodeConflict), "duplicate create: %v", err)

	_, err = s.GetWorkflow(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	stale, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)

	require.NoError(t, w.Advance(workflow.StageFetching, epoch.Add(time.Second)))
	w.Warn(errors.ErrCodeMalformedManifest, "package.json", "bad json")
	require.NoError(t, s.UpdateWorkflow(ctx, w))
	assert.Equal(t, int64(2), w.Version)

	got, err := s.GetWorkflow(ctx, "wf-1")
	require.NoError(t, err)
	assert.Equal(t, workflow.StageFetching, got.Stage)
	assert.Len(t, got.Warnings, 1)
	assert.Equal(t, int64(2), got.Version)

	require.NoError(t, stale.Fail(errors.New(errors.ErrCodeInternal, "boom"), epoch))
	assert.ErrorIs(t, s.UpdateWorkflow(ctx, stale), store.ErrConflict)

	ghost := newWorkflow("ghost", epoch)
	ghost.Version = 1
	assert.ErrorIs(t, s.UpdateWorkflow(ctx, ghost), store.ErrNotFound)
}

func testList(t *testing.T, s store.Store) {
	ctx := context.Background()
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateWorkflow(ctx, newWorkflow(id, epoch.Add(time.Duration(i)*time.Minute))))
	}
	b, err := s.GetWorkflow(ctx, "b")
	require.NoError(t, err)
	require.NoError(t, b.Fail(errors.New(errors.ErrCodeCancelled, "cancelled"), epoch))
	require.NoError(t, s.UpdateWorkflow(ctx, b))

	all, err := s.ListWorkflows(ctx, store.Filter{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(all))

	active, err := s.ListWorkflows(ctx, store.Filter{Active: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(active))
}

func ids(ws []*workflow.Workflow) []string {
	out := make([]string, len(ws))
	for i, w := range ws {
		out[i] = w.ID
	}
	return out
}

func testArtifacts(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateWorkflow(ctx, newWorkflow("wf", epoch)))

	_, err := s.GetAnalysis(ctx, "wf")
	assert.ErrorIs(t, err, store.ErrNotFound)

	a := &workflow.Analysis{
		WorkflowID: "wf",
		Manifests:  []string{"go.mod"},
		Contributions: []workflow.Contribution{
			{ID: "c1", WorkflowID: "wf", Identity: "alice", Subject: "go:widget@abc", Commits: 3, Weight: 3},
		},
	}
	require.NoError(t, s.PutAnalysis(ctx, a))
	gotA, err := s.GetAnalysis(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, a.Contributions, gotA.Contributions)

	sc := &workflow.Scores{
		WorkflowID:   "wf",
		Contributors: []workflow.Score{{Key: "alice", Value: 0.75}, {Key: "bob", Value: 0.25}},
		Iterations:   4,
		Converged:    true,
	}
	require.NoError(t, s.PutScores(ctx, sc))
	gotS, err := s.GetScores(ctx, "wf")
	require.NoError(t, err)
	assert.Equal(t, sc.Contributors, gotS.Contributors)

	allocs := []workflow.Allocation{
		{ID: "x", WorkflowID: "wf", Identity: "alice", Amount: 750, Status: workflow.AllocationPending},
		{ID: "y", WorkflowID: "wf", Identity: "bob", Amount: 250, Status: workflow.AllocationPending},
	}
	require.NoError(t, s.PutAllocations(ctx, "wf", allocs))
	allocs[0].Status = workflow.AllocationConfirmed
	require.NoError(t, s.PutAllocations(ctx, "wf", allocs))
	got, err := s.ListAllocations(ctx, "wf")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, workflow.AllocationConfirmed, got[0].Status)

	assert.ErrorIs(t, s.PutScores(ctx, &workflow.Scores{WorkflowID: "nope"}), store.ErrNotFound)
	_, err = s.ListAllocations(ctx, "nope")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateWorkflow(ctx, newWorkflow("wf", epoch)))
	require.NoError(t, s.PutAnalysis(ctx, &workflow.Analysis{WorkflowID: "wf"}))
	require.NoError(t, s.PutAllocations(ctx, "wf", []workflow.Allocation{{ID: "x", WorkflowID: "wf", Identity: "a", Amount: 1}}))

	require.NoError(t, s.ClearArtifacts(ctx, "wf"))
	_, err := s.GetAnalysis(ctx, "wf")
	assert.ErrorIs(t, err, store.ErrNotFound)
	allocs, err := s.ListAllocations(ctx, "wf")
	require.NoError(t, err)
	assert.Empty(t, allocs)

	require.NoError(t, s.PutAnalysis(ctx, &workflow.Analysis{WorkflowID: "wf"}))
	require.NoError(t, s.DeleteWorkflow(ctx, "wf"))
	_, err = s.GetWorkflow(ctx, "wf")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetAnalysis(ctx, "wf")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, s.DeleteWorkflow(ctx, "wf"), store.ErrNotFound)
}

func testProjects(t *testing.T, s store.Store) {
	ctx := context.Background()
	_, err := s.GetProject(ctx, "acme", "widget")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.PutProject(ctx, workflow.Project{Owner: "acme", Name: "widget", Revision: "r1", WorkflowID: "a"}))
	require.NoError(t, s.PutProject(ctx, workflow.Project{Owner: "acme", Name: "widget", Revision: "r2", WorkflowID: "b"}))

	p, err := s.GetProject(ctx, "Acme", "Widget")
	require.NoError(t, err)
	assert.Equal(t, "r2", p.Revision)
	assert.Equal(t, "b", p.WorkflowID)
}

func testWallets(t *testing.T, s store.Store) {
	ctx := context.Background()
	require.NoError(t, s.DeleteWallet(ctx, "alice"))

	b := workflow.WalletBinding{Identity: "alice", Address: "0xabc", UpdatedAt: epoch}
	require.NoError(t, s.PutWallet(ctx, b))
	require.NoError(t, s.PutWallet(ctx, b))

	got, err := s.GetWallet(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", got.Address)

	found, err := s.FindWallet(ctx, "0xabc")
	require.NoError(t, err)
	assert.Equal(t, "alice", found.Identity)

	require.NoError(t, s.DeleteWallet(ctx, "alice"))
	_, err = s.GetWallet(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.FindWallet(ctx, "0xabc")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testAirdrops(t *testing.T, s store.Store) {
	ctx := context.Background()
	a := &workflow.Airdrop{ID: "drop", Name: "spring", WorkflowID: "wf", MinAmount: 10, Status: workflow.AirdropOpen, CreatedAt: epoch}
	require.NoError(t, s.CreateAirdrop(ctx, a))

	_, err := s.GetAirdrop(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.AddClaim(ctx, "drop", workflow.Claim{Address: "0xabc", Identity: "alice", Amount: 750, ClaimedAt: epoch})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := s.GetAirdrop(ctx, "drop")
	require.NoError(t, err)
	assert.Len(t, got.Claims, 1)

	require.NoError(t, s.SetAirdropStatus(ctx, "drop", workflow.AirdropClosed))
	_, err = s.AddClaim(ctx, "drop", workflow.Claim{Address: "0xdef", Identity: "bob"})
	assert.ErrorIs(t, err, store.ErrClosed)

	again, err := s.AddClaim(ctx, "drop", workflow.Claim{Address: "0xabc", Identity: "alice"})
	require.NoError(t, err)
	assert.Len(t, again.Claims, 1)
}
