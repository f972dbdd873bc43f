package engine

import (
	"context"
	stderrors "errors"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/semaphore"

	"github.com/matzehuels/deprank/pkg/config"
	"github.com/matzehuels/deprank/pkg/deps"
	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/integrations"
	"github.com/matzehuels/deprank/pkg/lease"
	"github.com/matzehuels/deprank/pkg/manifest"
	"github.com/matzehuels/deprank/pkg/settlement"
	"github.com/matzehuels/deprank/pkg/source"
	"github.com/matzehuels/deprank/pkg/store"
	"github.com/matzehuels/deprank/pkg/workflow"
)

// DefaultRetryDelay is the first backoff delay between stage attempts.
const DefaultRetryDelay = time.Second

// Fetcher resolves references to local snapshots. [source.Fetcher]
// implements it.
type Fetcher interface {
	Fetch(ctx context.Context, ref source.Ref) (*source.Snapshot, error)
}

// MetricsSource enriches projects with hosting metadata. The GitHub client
// implements it.
type MetricsSource interface {
	Fetch(ctx context.Context, owner, repo string, refresh bool) (*integrations.RepoMetrics, error)
}

// Options wires an Engine to its collaborators.
type Options struct {
	// Pipeline holds the analysis parameters, timeouts and pool sizes.
	Pipeline config.Pipeline

	// Settlement configures ledger polling.
	Settlement settlement.Options

	Store   store.Store      // Required
	Fetcher Fetcher          // Required
	Chain   settlement.Chain // Required

	// Resolver expands dependencies. Defaults to a deps.RepoResolver over
	// Fetcher without a locator.
	Resolver deps.Resolver

	// Parser reads manifests. Defaults to manifest.NewParser().
	Parser *manifest.Parser

	// Metrics is optional.
	Metrics MetricsSource

	// Locker enforces a single writer per workflow. Defaults to lease.NewLocal().
	Locker   lease.Locker
	LeaseTTL time.Duration

	// RetryDelay is the first backoff delay (default: 1s).
	RetryDelay time.Duration

	Logger *log.Logger
}

// Engine drives workflows. It is safe for concurrent use.
type Engine struct {
	cfg      config.Pipeline
	store    store.Store
	fetcher  Fetcher
	resolver deps.Resolver
	parser   *manifest.Parser
	metrics  MetricsSource
	settler  *settlement.Settler
	locker   lease.Locker
	leaseTTL time.Duration
	delay    time.Duration
	logger   *log.Logger
	now      func() time.Time

	network *semaphore.Weighted
	cpu     *semaphore.Weighted

	base     context.Context
	shutdown context.CancelCauseFunc
	mu       sync.Mutex
	runs     map[string]*run
	closed   bool
	wg       sync.WaitGroup
}

type run struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

var (
	// errShutdown stops a run without failing it.
	errShutdown = stderrors.New("engine shutting down")

	errCancelled = stderrors.New("workflow cancelled")
	errLeaseLost = stderrors.New("workflow lease lost")
)

// New creates an engine. Call Recover to resume persisted workflows.
func New(opts Options) (*Engine, error) {
	if opts.Store == nil || opts.Fetcher == nil || opts.Chain == nil {
		return nil, errors.New(errors.ErrCodeInvalidInput, "engine requires a store, a fetcher and a chain")
	}
	cfg := opts.Pipeline
	if err := cfg.Rank().Validate(); err != nil {
		return nil, err
	}
	cfg.NetworkWorkers = max(cfg.NetworkWorkers, 1)
	cfg.CPUWorkers = max(cfg.CPUWorkers, 1)

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	parser := opts.Parser
	if parser == nil {
		parser = manifest.NewParser()
	}
	resolver := opts.Resolver
	if resolver == nil {
		resolver = deps.NewRepoResolver(opts.Fetcher, parser, nil)
	}
	locker := opts.Locker
	if locker == nil {
		locker = lease.NewLocal()
	}
	ttl := opts.LeaseTTL
	if ttl <= 0 {
		ttl = lease.DefaultTTL
	}
	delay := opts.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	sopts := opts.Settlement
	if sopts.Logger == nil {
		sopts.Logger = logger
	}

	base, shutdown := context.WithCancelCause(context.Background())
	return &Engine{
		cfg:      cfg,
		store:    opts.Store,
		fetcher:  opts.Fetcher,
		resolver: resolver,
		parser:   parser,
		metrics:  opts.Metrics,
		settler:  settlement.NewSettler(opts.Chain, sopts),
		locker:   locker,
		leaseTTL: ttl,
		delay:    delay,
		logger:   logger,
		now:      time.Now,
		network:  semaphore.NewWeighted(int64(cfg.NetworkWorkers)),
		cpu:      semaphore.NewWeighted(int64(cfg.CPUWorkers)),
		base:     base,
		shutdown: shutdown,
		runs:     make(map[string]*run),
	}, nil
}

// CreateRequest starts a workflow.
type CreateRequest struct {
	Ref source.Ref

	// Budget overrides the configured budget when non-nil.
	Budget *int64

	// Wallet optionally binds the workflow wallet up front.
	Wallet string
}

// Create persists a new workflow and starts it in the background.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (*workflow.Workflow, error) {
	if err := req.Ref.Validate(); err != nil {
		return nil, err
	}
	budget := e.cfg.Budget
	if req.Budget != nil {
		budget = *req.Budget
	}
	if budget < 0 {
		return nil, errors.New(errors.ErrCodeBudgetInvalid, "budget must not be negative, got %d", budget)
	}
	if req.Wallet != "" {
		if err := errors.ValidateWalletAddress(req.Wallet); err != nil {
			return nil, err
		}
	}

	ref := req.Ref
	ref.Repo = ref.Normalized()
	w := workflow.New(ref, budget, e.now())
	w.Wallet = req.Wallet
	if err := e.store.CreateWorkflow(ctx, w); err != nil {
		return nil, err
	}
	e.logger.Info("workflow created", "workflow", w.ID, "repo", ref.Repo)
	e.start(w.ID)
	return w, nil
}

// Get returns a workflow.
func (e *Engine) Get(ctx context.Context, id string) (*workflow.Workflow, error) {
	return e.store.GetWorkflow(ctx, id)
}

// Wait blocks until the local run of a workflow stops, then returns the
// persisted workflow.
func (e *Engine) Wait(ctx context.Context, id string) (*workflow.Workflow, error) {
	if r := e.running(id); r != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return e.store.GetWorkflow(ctx, id)
}

// Cancel stops a workflow. A running workflow ends Failed{CANCELLED} once
// its current stage observes the cancellation; Cancel waits for that. A
// workflow that is not running locally is failed directly. Terminal
// workflows are returned unchanged.
func (e *Engine) Cancel(ctx context.Context, id string) (*workflow.Workflow, error) {
	w, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Terminal() {
		return w, nil
	}
	if r := e.running(id); r != nil {
		r.cancel(errCancelled)
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return e.store.GetWorkflow(ctx, id)
	}

	l, err := e.locker.Acquire(ctx, id, e.leaseTTL)
	if err != nil {
		if stderrors.Is(err, lease.ErrHeld) {
			return nil, errors.New(errors.ErrCodeConflict, "workflow %s is running on another instance", id)
		}
		return nil, err
	}
	defer l.Release(context.WithoutCancel(ctx))
	if w, err = e.store.GetWorkflow(ctx, id); err != nil {
		return nil, err
	}
	if w.Terminal() {
		return w, nil
	}
	if err := e.abort(ctx, w, errCancelled); err != nil {
		return nil, err
	}
	return w, nil
}

// Delete removes a workflow and its artifacts. Non-terminal workflows
// running here are cancelled first and Delete waits for the run to stop.
// A non-terminal workflow held by another instance cannot be deleted here
// and yields CONFLICT.
func (e *Engine) Delete(ctx context.Context, id string) error {
	w, err := e.store.GetWorkflow(ctx, id)
	if err != nil {
		return err
	}
	if !w.Terminal() {
		if r := e.running(id); r != nil {
			r.cancel(errCancelled)
			select {
			case <-r.done:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		l, err := e.locker.Acquire(ctx, id, e.leaseTTL)
		if err != nil {
			if stderrors.Is(err, lease.ErrHeld) {
				return errors.New(errors.ErrCodeConflict, "workflow %s is running on another instance", id)
			}
			return err
		}
		defer l.Release(context.WithoutCancel(ctx))
	}
	if err := e.store.DeleteWorkflow(ctx, id); err != nil {
		return err
	}
	e.logger.Info("workflow deleted", "workflow", id)
	return nil
}

// Recover starts every persisted non-terminal workflow that is not parked
// waiting for a wallet. It returns the number of workflows started.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	ws, err := e.store.ListWorkflows(ctx, store.Filter{Active: true})
	if err != nil {
		return 0, err
	}
	n := 0
	for _, w := range ws {
		if w.AwaitingWallet {
			continue
		}
		if e.start(w.ID) {
			n++
		}
	}
	if n > 0 {
		e.logger.Info("recovered workflows", "count", n)
	}
	return n, nil
}

// Close stops all runs without failing them and waits for them to exit.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.shutdown(errShutdown)

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) running(id string) *run {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runs[id]
}

// start launches the run of id unless it is already running here.
func (e *Engine) start(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	if _, ok := e.runs[id]; ok {
		return false
	}
	ctx, cancel := context.WithCancelCause(e.base)
	r := &run{cancel: cancel, done: make(chan struct{})}
	e.runs[id] = r
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		parked := e.drive(ctx, cancel, id)
		cancel(nil)

		e.mu.Lock()
		delete(e.runs, id)
		e.mu.Unlock()
		close(r.done)

		// A wallet bound while the run was parking must not be lost.
		if !parked {
			return
		}
		if w, err := e.store.GetWorkflow(e.base, id); err == nil && !w.Terminal() && !w.AwaitingWallet {
			e.start(id)
		}
	}()
	return true
}
