package engine

import (
	"context"
	stderrors "errors"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/httputil"
	"github.com/matzehuels/deprank/pkg/lease"
	"github.com/matzehuels/deprank/pkg/observability"
	"github.com/matzehuels/deprank/pkg/store"
	"github.com/matzehuels/deprank/pkg/workflow"
)

// errAwaitingWallet parks a workflow that reached settlement without a
// wallet binding.
var errAwaitingWallet = stderrors.New("workflow has no wallet")

type stageFunc func(ctx context.Context, w *workflow.Workflow) error

type stageSpec struct {
	run     stageFunc
	pool    *semaphore.Weighted
	timeout time.Duration
	code    errors.Code // raised when timeout elapses
}

func (e *Engine) spec(s workflow.Stage) stageSpec {
	switch s {
	case workflow.StageFetching:
		return stageSpec{e.fetch, e.network, e.cfg.FetchTimeout, errors.ErrCodeFetchNetwork}
	case workflow.StageAnalyzing:
		return stageSpec{run: e.analyze, pool: e.network}
	case workflow.StageRanking:
		return stageSpec{run: e.rank, pool: e.cpu}
	case workflow.StageAllocating:
		return stageSpec{run: e.allocate, pool: e.cpu}
	case workflow.StageSettling:
		return stageSpec{e.settle, e.network, e.cfg.SettleTimeout, errors.ErrCodeSettlementTimeout}
	}
	return stageSpec{}
}

// drive runs a workflow until it is terminal, parked or stopped, and
// reports whether it was parked.
func (e *Engine) drive(ctx context.Context, cancel context.CancelCauseFunc, id string) bool {
	logger := e.logger.With("workflow", id)

	l, err := e.locker.Acquire(ctx, id, e.leaseTTL)
	if err != nil {
		logger.Debug("workflow not acquired", "err", err)
		return false
	}
	defer func() {
		if err := l.Release(context.WithoutCancel(ctx)); err != nil {
			logger.Debug("release lease", "err", err)
		}
	}()
	keepCtx, stopKeep := context.WithCancel(ctx)
	defer stopKeep()
	go lease.Keep(keepCtx, l, e.leaseTTL, func(err error) {
		logger.Warn("lease lost, stopping", "err", err)
		cancel(errLeaseLost)
	})

	w, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		logger.Debug("workflow not loaded", "err", err)
		return false
	}

	for !w.Terminal() {
		if ctx.Err() != nil {
			e.stop(ctx, w)
			return false
		}

		if w.Stage == workflow.StageCreated {
			if err := e.advance(ctx, w); err != nil {
				logger.Error("checkpoint failed", "stage", w.Stage, "err", err)
				return false
			}
			continue
		}

		logger.Debug("stage started", "stage", w.Stage)
		err := e.execute(ctx, w)
		switch {
		case err == nil:
		case stderrors.Is(err, errAwaitingWallet):
			parked, err := e.park(ctx, w)
			if err != nil {
				logger.Error("checkpoint failed", "stage", w.Stage, "err", err)
				return false
			}
			if parked {
				return true
			}
			continue
		case ctx.Err() != nil:
			e.stop(ctx, w)
			return false
		case e.deleted(ctx, id):
			logger.Info("workflow deleted while running", "stage", w.Stage)
			return false
		default:
			e.fail(ctx, w, err)
			return false
		}

		if err := e.advance(ctx, w); err != nil {
			if e.deleted(ctx, id) {
				return false
			}
			logger.Error("checkpoint failed", "stage", w.Stage, "err", err)
			return false
		}
	}
	return false
}

// advance moves w to its next stage and persists the checkpoint.
func (e *Engine) advance(ctx context.Context, w *workflow.Workflow) error {
	next := w.Stage.Next()
	if next == workflow.StageCompleted {
		if err := e.publish(ctx, w); err != nil {
			return err
		}
	}
	if err := w.Advance(next, e.now()); err != nil {
		return err
	}
	if err := e.save(ctx, w); err != nil {
		return err
	}
	if next == workflow.StageCompleted {
		e.logger.Info("workflow completed", "workflow", w.ID, "warnings", len(w.Warnings))
		observability.Workflow().OnWorkflowFinished(ctx, w.ID, string(next), "")
	}
	return nil
}

// execute runs the current stage with retries.
func (e *Engine) execute(ctx context.Context, w *workflow.Workflow) error {
	stage := w.Stage
	spec := e.spec(stage)
	if spec.run == nil {
		return errors.New(errors.ErrCodeInternal, "no runner for stage %s", stage)
	}

	hooks := observability.Workflow()
	hooks.OnStageStart(ctx, w.ID, string(stage))
	start := time.Now()

	err := httputil.RetryNotify(ctx, e.cfg.MaxRetries+1, e.delay, func() error {
		return e.attempt(ctx, w, stage, spec)
	}, func(attempt int, err error) {
		e.logger.Warn("stage failed, retrying", "workflow", w.ID, "stage", stage, "attempt", attempt, "err", err)
	})

	hooks.OnStageComplete(ctx, w.ID, string(stage), time.Since(start), err)
	return err
}

func (e *Engine) attempt(ctx context.Context, w *workflow.Workflow, stage workflow.Stage, spec stageSpec) error {
	if err := spec.pool.Acquire(ctx, 1); err != nil {
		return err
	}
	defer spec.pool.Release(1)

	sctx := ctx
	if spec.timeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, spec.timeout)
		defer cancel()
	}
	err := spec.run(sctx, w)
	if err != nil && ctx.Err() == nil && stderrors.Is(sctx.Err(), context.DeadlineExceeded) {
		return errors.Wrap(spec.code, err, "%s exceeded %s", stage, spec.timeout)
	}
	return err
}

// park records that w waits for a wallet. It reports false when a wallet
// was bound concurrently and the run should continue.
func (e *Engine) park(ctx context.Context, w *workflow.Workflow) (bool, error) {
	w.AwaitingWallet = true
	if err := e.save(ctx, w); err != nil {
		return false, err
	}
	if w.Wallet != "" {
		w.AwaitingWallet = false
		return false, e.save(ctx, w)
	}
	e.logger.Info("workflow awaiting wallet", "workflow", w.ID)
	observability.Workflow().OnWorkflowFinished(ctx, w.ID, string(w.Stage), "awaiting wallet")
	return true, nil
}

// stop ends a run whose context was cancelled. Shutdown and lease loss
// leave the checkpoint as is; anything else fails the workflow.
func (e *Engine) stop(ctx context.Context, w *workflow.Workflow) {
	cause := context.Cause(ctx)
	if stderrors.Is(cause, errShutdown) || stderrors.Is(cause, errLeaseLost) {
		e.logger.Debug("run stopped", "workflow", w.ID, "stage", w.Stage, "cause", cause)
		return
	}
	if err := e.abort(context.WithoutCancel(ctx), w, cause); err != nil && !stderrors.Is(err, store.ErrNotFound) {
		e.logger.Error("record cancellation", "workflow", w.ID, "err", err)
	}
}

// abort fails w as cancelled and discards its partial artifacts.
func (e *Engine) abort(ctx context.Context, w *workflow.Workflow, cause error) error {
	if err := w.Fail(errors.Wrap(errors.ErrCodeCancelled, cause, "workflow cancelled during %s", w.Stage), e.now()); err != nil {
		return err
	}
	if err := e.store.ClearArtifacts(ctx, w.ID); err != nil {
		return err
	}
	if err := e.save(ctx, w); err != nil {
		return err
	}
	e.logger.Info("workflow cancelled", "workflow", w.ID, "stage", w.Failure.Stage)
	observability.Workflow().OnWorkflowFinished(ctx, w.ID, string(w.Stage), string(errors.ErrCodeCancelled))
	return nil
}

func (e *Engine) fail(ctx context.Context, w *workflow.Workflow, cause error) {
	if err := w.Fail(cause, e.now()); err != nil {
		e.logger.Error("fail workflow", "workflow", w.ID, "err", err)
		return
	}
	if err := e.save(ctx, w); err != nil {
		e.logger.Error("checkpoint failed", "workflow", w.ID, "err", err)
		return
	}
	e.logger.Error("workflow failed", "workflow", w.ID, "stage", w.Failure.Stage, "code", w.Failure.Code, "err", cause)
	observability.Workflow().OnWorkflowFinished(ctx, w.ID, string(w.Stage), string(w.Failure.Code))
}

// save persists w. The wallet is the only field written outside the run,
// so a version conflict is resolved by adopting the stored wallet.
func (e *Engine) save(ctx context.Context, w *workflow.Workflow) error {
	w.UpdatedAt = e.now()
	err := e.store.UpdateWorkflow(ctx, w)
	if !stderrors.Is(err, store.ErrConflict) {
		return err
	}
	cur, err := e.store.GetWorkflow(ctx, w.ID)
	if err != nil {
		return err
	}
	w.Wallet = cur.Wallet
	w.Version = cur.Version
	return e.store.UpdateWorkflow(ctx, w)
}

func (e *Engine) deleted(ctx context.Context, id string) bool {
	_, err := e.store.GetWorkflow(context.WithoutCancel(ctx), id)
	return stderrors.Is(err, store.ErrNotFound)
}
