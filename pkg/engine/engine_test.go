package engine

import (
	"context"
	stderrors "errors"
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

func widgetRemote(t *testing.T) *fakeRemote {
	return newFakeRemote(t, map[string][]commitSpec{widgetRepo: widgetCommits})
}

func amounts(allocs []workflow.Allocation) map[string]int64 {
	out := make(map[string]int64, len(allocs))
	for _, a := range allocs {
		out[a.Identity] = a.Amount
	}
	return out
}

func TestWorkflowCompletes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))
	require.NoError(t, h.engine.BindWallet(ctx, aliceID, aliceAddr))

	w := h.wait(t, h.create(t, ownerAddr).ID)
	require.Equal(t, workflow.StageCompleted, w.Stage, "failure: %+v", w.Failure)
	assert.Nil(t, w.Failure)
	assert.NotNil(t, w.FinishedAt)
	assert.Equal(t, "acme/widget", w.Project)
	assert.Len(t, w.Revision, 40)

	allocs, err := h.engine.Allocations(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{aliceID: 750, bobID: 250}, amounts(allocs))
	var total int64
	for _, a := range allocs {
		total += a.Amount
	}
	assert.Equal(t, w.Budget, total, "allocations conserve the budget")
	assert.Equal(t, aliceID, allocs[0].Identity, "largest first")
	for _, a := range allocs {
		assert.Equal(t, workflow.AllocationConfirmed, a.Status, a.Identity)
		assert.NotEmpty(t, a.TxHash)
	}
	assert.Equal(t, aliceAddr, allocs[0].Wallet)
	assert.Empty(t, allocs[1].Wallet)

	assert.True(t, h.ledger.Finished(w.ID))
	assert.Equal(t, 2, h.ledger.Payouts())
	assert.Len(t, h.ledger.Receipts(w.ID), 1, "one receipt per dependency")

	p, err := h.engine.Project(ctx, "acme", "widget")
	require.NoError(t, err)
	assert.Equal(t, w.ID, p.WorkflowID)
	assert.Equal(t, w.Revision, p.Revision)
}

func TestWorkflowIdsAreStable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))
	w := h.wait(t, h.create(t, ownerAddr).ID)
	require.Equal(t, workflow.StageCompleted, w.Stage)

	allocs, err := h.engine.Allocations(ctx, w.ID)
	require.NoError(t, err)
	for _, a := range allocs {
		if a.ID != workflow.DeriveID(w.ID, "allocation", a.Identity) {
			t.Errorf("allocation id of %s = %s, want derived id", a.Identity, a.ID)
		}
	}
	contribs, err := h.engine.Contributions(ctx, w.ID)
	require.NoError(t, err)
	require.NotEmpty(t, contribs)
	for _, c := range contribs {
		if c.ID != workflow.DeriveID(w.ID, "contribution", c.Identity, c.Subject) {
			t.Errorf("contribution id of %s = %s, want derived id", c.Identity, c.ID)
		}
	}
}

func TestWorkflowWithoutManifestFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, newFakeRemote(t, map[string][]commitSpec{widgetRepo: bareCommits}))
	hk := installHooks(t, "")

	w := h.wait(t, h.create(t, ownerAddr).ID)
	require.Equal(t, workflow.StageFailed, w.Stage)
	require.NotNil(t, w.Failure)
	assert.Equal(t, errors.ErrCodeNoManifest, w.Failure.Code)
	assert.Equal(t, workflow.StageAnalyzing, w.Failure.Stage)

	allocs, err := h.engine.Allocations(ctx, w.ID)
	require.NoError(t, err)
	assert.Empty(t, allocs)
	assert.Zero(t, h.ledger.Payouts())

	reason, ok := hk.reason(w.ID)
	assert.True(t, ok)
	assert.Equal(t, string(errors.ErrCodeNoManifest), reason)
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t, widgetRemote(t))
	negative := int64(-1)

	tests := []struct {
		name string
		req  CreateRequest
		code errors.Code
	}{
		{"empty repo", CreateRequest{}, errors.ErrCodeInvalidInput},
		{"short repo", CreateRequest{Ref: source.Ref{Repo: "github.com/acme"}}, errors.ErrCodeInvalidInput},
		{"bad revision", CreateRequest{Ref: source.Ref{Repo: widgetRepo, Rev: "zz"}}, errors.ErrCodeInvalidInput},
		{"negative budget", CreateRequest{Ref: source.Ref{Repo: widgetRepo}, Budget: &negative}, errors.ErrCodeBudgetInvalid},
		{"bad wallet", CreateRequest{Ref: source.Ref{Repo: widgetRepo}, Wallet: "nope"}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.Create(context.Background(), tt.req)
			if !errors.Is(err, tt.code) {
				t.Errorf("Create() error = %v, want code %s", err, tt.code)
			}
		})
	}

	ws, err := h.store.ListWorkflows(context.Background(), store.Filter{})
	require.NoError(t, err)
	assert.Empty(t, ws, "rejected requests persist nothing")
}

func TestZeroBudgetCompletesWithoutShares(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))
	zero := int64(0)
	w, err := h.engine.Create(ctx, CreateRequest{Ref: source.Ref{Repo: widgetRepo}, Budget: &zero, Wallet: ownerAddr})
	require.NoError(t, err)

	w = h.wait(t, w.ID)
	require.Equal(t, workflow.StageCompleted, w.Stage, "failure: %+v", w.Failure)
	allocs, err := h.engine.Allocations(ctx, w.ID)
	require.NoError(t, err)
	assert.Empty(t, allocs)
	assert.Zero(t, h.ledger.Payouts())
}

func TestDeleteDuringRanking(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))
	hk := installHooks(t, workflow.StageRanking)

	w := h.create(t, ownerAddr)
	require.Equal(t, w.ID, hk.awaitStage(t))

	require.NoError(t, h.engine.Delete(ctx, w.ID))

	_, err := h.engine.Get(ctx, w.ID)
	assert.True(t, stderrors.Is(err, store.ErrNotFound), "Get after delete: %v", err)
	_, err = h.engine.Allocations(ctx, w.ID)
	assert.True(t, stderrors.Is(err, store.ErrNotFound))
	_, err = h.store.GetAnalysis(ctx, w.ID)
	assert.True(t, stderrors.Is(err, store.ErrNotFound))

	reason, ok := hk.reason(w.ID)
	assert.True(t, ok)
	assert.Equal(t, string(errors.ErrCodeCancelled), reason)
	assert.Zero(t, h.ledger.Payouts())
}

func TestCancelDuringRanking(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))
	hk := installHooks(t, workflow.StageRanking)

	w := h.create(t, ownerAddr)
	hk.awaitStage(t)

	w, err := h.engine.Cancel(ctx, w.ID)
	require.NoError(t, err)
	require.Equal(t, workflow.StageFailed, w.Stage)
	assert.Equal(t, errors.ErrCodeCancelled, w.Failure.Code)
	assert.Equal(t, workflow.StageRanking, w.Failure.Stage)

	_, err = h.store.GetScores(ctx, w.ID)
	assert.True(t, stderrors.Is(err, store.ErrNotFound), "no partial scores")
	_, err = h.store.GetAnalysis(ctx, w.ID)
	assert.True(t, stderrors.Is(err, store.ErrNotFound), "artifacts cleared")

	// Cancelling a terminal workflow changes nothing.
	again, err := h.engine.Cancel(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, w.Version, again.Version)
}

func TestCancelIdleWorkflow(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))

	w := workflow.New(source.Ref{Repo: widgetRepo}, 1000, time.Now())
	w.Stage = workflow.StageRanking
	require.NoError(t, h.store.CreateWorkflow(ctx, w))

	got, err := h.engine.Cancel(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageFailed, got.Stage)
	assert.Equal(t, errors.ErrCodeCancelled, got.Failure.Code)
}

func TestCancelHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))

	w := workflow.New(source.Ref{Repo: widgetRepo}, 1000, time.Now())
	w.Stage = workflow.StageRanking
	require.NoError(t, h.store.CreateWorkflow(ctx, w))

	// Another instance shares the locker and holds the lease.
	l, err := h.engine.locker.Acquire(ctx, w.ID, time.Minute)
	require.NoError(t, err)
	defer l.Release(ctx)

	_, err = h.engine.Cancel(ctx, w.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict), "Cancel() error = %v", err)
}

func TestDeleteHeldElsewhere(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))

	w := workflow.New(source.Ref{Repo: widgetRepo}, 1000, time.Now())
	w.Stage = workflow.StageRanking
	require.NoError(t, h.store.CreateWorkflow(ctx, w))

	l, err := h.engine.locker.Acquire(ctx, w.ID, time.Minute)
	require.NoError(t, err)

	err = h.engine.Delete(ctx, w.ID)
	assert.True(t, errors.Is(err, errors.ErrCodeConflict), "Delete() error = %v", err)
	_, err = h.engine.Get(ctx, w.ID)
	require.NoError(t, err, "workflow must survive a refused delete")

	require.NoError(t, l.Release(ctx))
	require.NoError(t, h.engine.Delete(ctx, w.ID))
	_, err = h.engine.Get(ctx, w.ID)
	assert.True(t, stderrors.Is(err, store.ErrNotFound), "Get() after Delete() error = %v", err)
}

func TestAwaitingWalletResumes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))

	w := h.wait(t, h.create(t, "").ID)
	require.Equal(t, workflow.StageSettling, w.Stage, "failure: %+v", w.Failure)
	assert.True(t, w.AwaitingWallet)
	assert.Zero(t, h.ledger.Payouts())

	allocs, err := h.engine.Allocations(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{aliceID: 750, bobID: 250}, amounts(allocs))
	for _, a := range allocs {
		assert.Equal(t, workflow.AllocationPending, a.Status)
	}

	// Parked workflows are not resumed by recovery.
	n, err := h.engine.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, h.engine.BindWallet(ctx, bobID, bobAddr))
	require.NoError(t, h.engine.BindWorkflowWallet(ctx, w.ID, ownerAddr))

	w = h.wait(t, w.ID)
	require.Equal(t, workflow.StageCompleted, w.Stage, "failure: %+v", w.Failure)
	assert.False(t, w.AwaitingWallet)
	assert.Equal(t, ownerAddr, w.Wallet)
	assert.Equal(t, 2, h.ledger.Payouts())

	// A wallet bound after allocation still reaches settlement.
	for _, tr := range h.ledger.Transfers(w.ID) {
		if tr.Identity == bobID {
			assert.Equal(t, bobAddr, tr.Recipient)
		}
	}
}

func TestWorkflowWalletBinding(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))

	err := h.engine.BindWorkflowWallet(ctx, "missing", ownerAddr)
	assert.True(t, stderrors.Is(err, store.ErrNotFound))
	err = h.engine.BindWorkflowWallet(ctx, "missing", "not-an-address")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))

	w := workflow.New(source.Ref{Repo: widgetRepo}, 1000, time.Now())
	w.Stage = workflow.StageFailed
	require.NoError(t, h.store.CreateWorkflow(ctx, w))

	require.NoError(t, h.engine.BindWorkflowWallet(ctx, w.ID, ownerAddr))
	got, err := h.engine.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, ownerAddr, got.Wallet)

	require.NoError(t, h.engine.UnbindWorkflowWallet(ctx, w.ID))
	require.NoError(t, h.engine.UnbindWorkflowWallet(ctx, w.ID))
	got, err = h.engine.Get(ctx, w.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Wallet)
}

func TestRecoverResumesCheckpoint(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))
	hk := installHooks(t, workflow.StageRanking)

	w := h.create(t, ownerAddr)
	hk.awaitStage(t)
	require.NoError(t, h.engine.Close(ctx))

	// Shutdown keeps the checkpoint.
	stopped, err := h.store.GetWorkflow(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, workflow.StageRanking, stopped.Stage)
	assert.Nil(t, stopped.Failure)
	_, err = h.store.GetAnalysis(ctx, w.ID)
	require.NoError(t, err, "analysis survives shutdown")

	hk.release()
	clones := h.remote.clones.Load()
	h.engine = h.newEngine(t)
	n, err := h.engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	done := h.wait(t, w.ID)
	require.Equal(t, workflow.StageCompleted, done.Stage, "failure: %+v", done.Failure)
	assert.Equal(t, clones, h.remote.clones.Load(), "completed stages are not re-run")
	assert.Equal(t, 2, h.ledger.Payouts())
}

func TestRecoverStartsCreatedWorkflows(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))

	w := workflow.New(source.Ref{Repo: widgetRepo}, 1000, time.Now())
	w.Wallet = ownerAddr
	require.NoError(t, h.store.CreateWorkflow(ctx, w))

	n, err := h.engine.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, workflow.StageCompleted, h.wait(t, w.ID).Stage)

	n, err = h.engine.Recover(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "terminal workflows are not recovered")
}

func TestSettlementRerunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))

	w := h.wait(t, h.create(t, ownerAddr).ID)
	require.Equal(t, workflow.StageCompleted, w.Stage)
	require.Equal(t, 2, h.ledger.Payouts())

	// Simulate a crash after the last ledger call but before the final
	// checkpoint.
	w.Stage = workflow.StageSettling
	w.FinishedAt = nil
	require.NoError(t, h.store.UpdateWorkflow(ctx, w))

	n, err := h.engine.Recover(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	w = h.wait(t, w.ID)
	assert.Equal(t, workflow.StageCompleted, w.Stage)
	assert.Equal(t, 2, h.ledger.Payouts(), "no double payment")
}

func TestSettlementRejected(t *testing.T) {
	h := newHarness(t, widgetRemote(t))
	h.ledger.Reject[bobID] = true

	w := h.wait(t, h.create(t, ownerAddr).ID)
	require.Equal(t, workflow.StageFailed, w.Stage)
	assert.Equal(t, errors.ErrCodeSettlementRejected, w.Failure.Code)
	assert.Equal(t, workflow.StageSettling, w.Failure.Stage)
	assert.False(t, h.ledger.Finished(w.ID))
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	remote := widgetRemote(t)
	remote.err = errors.New(errors.ErrCodeFetchNetwork, "connection reset")
	remote.failures.Store(2)
	h := newHarness(t, remote)

	w := h.wait(t, h.create(t, ownerAddr).ID)
	require.Equal(t, workflow.StageCompleted, w.Stage, "failure: %+v", w.Failure)
	assert.EqualValues(t, 3, remote.resolves.Load())
}

func TestFetchFailures(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		failures int32
		code     errors.Code
		resolves int32
	}{
		{"not found is permanent", errors.New(errors.ErrCodeFetchNotFound, "gone"), -1, errors.ErrCodeFetchNotFound, 1},
		{"network exhausts retries", errors.New(errors.ErrCodeFetchNetwork, "down"), -1, errors.ErrCodeFetchNetwork, 3},
		{"auth is retried", errors.New(errors.ErrCodeFetchAuth, "denied"), -1, errors.ErrCodeFetchAuth, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := widgetRemote(t)
			remote.err = tt.err
			remote.failures.Store(tt.failures)
			h := newHarness(t, remote)

			w := h.wait(t, h.create(t, ownerAddr).ID)
			if w.Stage != workflow.StageFailed {
				t.Fatalf("Stage = %s, want failed", w.Stage)
			}
			if w.Failure.Code != tt.code {
				t.Errorf("Failure.Code = %s, want %s", w.Failure.Code, tt.code)
			}
			if w.Failure.Stage != workflow.StageFetching {
				t.Errorf("Failure.Stage = %s, want fetching", w.Failure.Stage)
			}
			if got := remote.resolves.Load(); got != tt.resolves {
				t.Errorf("resolves = %d, want %d", got, tt.resolves)
			}
		})
	}
}

func TestConcurrentWorkflowsShareClone(t *testing.T) {
	remote := widgetRemote(t)
	remote.delay = 50 * time.Millisecond
	h := newHarness(t, remote)

	const n = 4
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w, err := h.engine.Create(context.Background(), CreateRequest{Ref: source.Ref{Repo: widgetRepo}, Wallet: ownerAddr})
			if err != nil {
				t.Errorf("Create: %v", err)
				return
			}
			ids[i] = w.ID
		}()
	}
	wg.Wait()
	if t.Failed() {
		t.FailNow()
	}

	for _, id := range ids {
		w := h.wait(t, id)
		assert.Equal(t, workflow.StageCompleted, w.Stage, "failure: %+v", w.Failure)
	}
	assert.EqualValues(t, 1, remote.clones.Load())
	assert.Equal(t, 2*n, h.ledger.Payouts())
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))
	require.NoError(t, h.engine.BindWallet(ctx, aliceID, aliceAddr))
	w := h.wait(t, h.create(t, ownerAddr).ID)
	require.Equal(t, workflow.StageCompleted, w.Stage)

	t.Run("allocation", func(t *testing.T) {
		id := workflow.DeriveID(w.ID, "allocation", bobID)
		a, err := h.engine.Allocation(ctx, w.ID, id)
		require.NoError(t, err)
		assert.Equal(t, int64(250), a.Amount)

		_, err = h.engine.Allocation(ctx, w.ID, "nope")
		assert.True(t, stderrors.Is(err, store.ErrNotFound))
		_, err = h.engine.Allocations(ctx, "nope")
		assert.True(t, stderrors.Is(err, store.ErrNotFound))
	})

	t.Run("contributions", func(t *testing.T) {
		cs, err := h.engine.Contributions(ctx, w.ID)
		require.NoError(t, err)
		commits := map[string]int{}
		for _, c := range cs {
			commits[c.Identity] += c.Commits
		}
		assert.Equal(t, map[string]int{aliceID: 3, bobID: 1}, commits)

		c, err := h.engine.Contribution(ctx, w.ID, cs[0].ID)
		require.NoError(t, err)
		assert.Equal(t, cs[0], *c)

		_, err = h.engine.Contributions(ctx, "nope")
		assert.True(t, stderrors.Is(err, store.ErrNotFound))
	})

	t.Run("project contributors", func(t *testing.T) {
		cs, err := h.engine.ProjectContributors(ctx, "acme", "widget")
		require.NoError(t, err)
		require.Len(t, cs, 2)
		assert.Equal(t, aliceID, cs[0].Identity)
		assert.Equal(t, int64(750), cs[0].Amount)
		assert.Equal(t, 3, cs[0].Commits)
		assert.Equal(t, aliceAddr, cs[0].Wallet)
		assert.InDelta(t, 1.0, cs[0].Score+cs[1].Score, 1e-9)

		c, err := h.engine.ProjectContributor(ctx, "ACME", "Widget", bobID)
		require.NoError(t, err)
		assert.Equal(t, int64(250), c.Amount)

		_, err = h.engine.ProjectContributor(ctx, "acme", "widget", "carol")
		assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
		_, err = h.engine.ProjectContributors(ctx, "acme", "missing")
		assert.True(t, stderrors.Is(err, store.ErrNotFound))
	})

	t.Run("project dependencies", func(t *testing.T) {
		ds, err := h.engine.ProjectDependencies(ctx, "acme", "widget")
		require.NoError(t, err)
		require.Len(t, ds, 1)
		assert.Equal(t, "example.com/lib", ds[0].Name)
		assert.Equal(t, "v1.0.0", ds[0].Version)
		assert.Equal(t, 1, ds[0].Depth)

		d, err := h.engine.ProjectDependency(ctx, "acme", "widget", "example.com/lib")
		require.NoError(t, err)
		assert.Equal(t, ds[0], *d)
		d, err = h.engine.ProjectDependency(ctx, "acme", "widget", ds[0].Key)
		require.NoError(t, err)
		assert.Equal(t, ds[0], *d)

		_, err = h.engine.ProjectDependency(ctx, "acme", "widget", "left-pad")
		assert.True(t, errors.Is(err, errors.ErrCodeNotFound))
	})
}

func TestContributorWallets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))

	tests := []struct {
		name     string
		identity string
		address  string
		code     errors.Code
	}{
		{"valid", aliceID, aliceAddr, ""},
		{"bad identity", "-alice", aliceAddr, errors.ErrCodeInvalidInput},
		{"bad address", aliceID, "alice", errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := h.engine.BindWallet(ctx, tt.identity, tt.address)
			if tt.code == "" {
				require.NoError(t, err)
				return
			}
			if !errors.Is(err, tt.code) {
				t.Errorf("BindWallet() error = %v, want code %s", err, tt.code)
			}
		})
	}

	b, err := h.engine.Wallet(ctx, aliceID)
	require.NoError(t, err)
	assert.Equal(t, aliceAddr, b.Address)

	require.NoError(t, h.engine.UnbindWallet(ctx, aliceID))
	require.NoError(t, h.engine.UnbindWallet(ctx, aliceID))
	_, err = h.engine.Wallet(ctx, aliceID)
	assert.True(t, stderrors.Is(err, store.ErrNotFound))
}

func TestAirdrops(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))
	w := h.wait(t, h.create(t, ownerAddr).ID)
	require.Equal(t, workflow.StageCompleted, w.Stage)
	require.NoError(t, h.engine.BindWallet(ctx, aliceID, aliceAddr))
	require.NoError(t, h.engine.BindWallet(ctx, bobID, bobAddr))

	a, err := h.engine.CreateAirdrop(ctx, AirdropRequest{Name: "spring", WorkflowID: w.ID, MinAmount: 500})
	require.NoError(t, err)
	assert.Equal(t, workflow.AirdropOpen, a.Status)

	c, err := h.engine.Claim(ctx, a.ID, aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, aliceID, c.Identity)
	assert.Equal(t, int64(750), c.Amount)

	again, err := h.engine.Claim(ctx, a.ID, aliceAddr)
	require.NoError(t, err)
	assert.Equal(t, c.ClaimedAt, again.ClaimedAt, "claims are idempotent")

	_, err = h.engine.Claim(ctx, a.ID, bobAddr)
	assert.True(t, errors.Is(err, errors.ErrCodeNotEligible), "below minimum: %v", err)
	_, err = h.engine.Claim(ctx, a.ID, "0xdead")
	assert.True(t, errors.Is(err, errors.ErrCodeNotEligible), "unbound address: %v", err)
	_, err = h.engine.Claim(ctx, a.ID, "bogus")
	assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput))
	_, err = h.engine.Claim(ctx, "missing", aliceAddr)
	assert.True(t, stderrors.Is(err, store.ErrNotFound))

	require.NoError(t, h.engine.CloseAirdrop(ctx, a.ID))
	_, err = h.engine.Claim(ctx, a.ID, bobAddr)
	assert.True(t, stderrors.Is(err, store.ErrClosed))
	_, err = h.engine.Claim(ctx, a.ID, aliceAddr)
	require.NoError(t, err, "existing claims survive closing")

	got, err := h.engine.Airdrop(ctx, a.ID)
	require.NoError(t, err)
	assert.Len(t, got.Claims, 1)
	assert.Equal(t, workflow.AirdropClosed, got.Status)
}

func TestCreateAirdropValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, widgetRemote(t))

	running := workflow.New(source.Ref{Repo: widgetRepo}, 1000, time.Now())
	running.Stage = workflow.StageRanking
	require.NoError(t, h.store.CreateWorkflow(ctx, running))

	tests := []struct {
		name string
		req  AirdropRequest
		code errors.Code
	}{
		{"missing name", AirdropRequest{WorkflowID: running.ID}, errors.ErrCodeInvalidInput},
		{"negative minimum", AirdropRequest{Name: "x", WorkflowID: running.ID, MinAmount: -1}, errors.ErrCodeInvalidInput},
		{"unknown workflow", AirdropRequest{Name: "x", WorkflowID: "nope"}, errors.ErrCodeNotFound},
		{"incomplete workflow", AirdropRequest{Name: "x", WorkflowID: running.ID}, errors.ErrCodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.CreateAirdrop(ctx, tt.req)
			if !errors.Is(err, tt.code) {
				t.Errorf("CreateAirdrop() error = %v, want code %s", err, tt.code)
			}
		})
	}
}
