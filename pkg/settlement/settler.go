package settlement

import (
	"cmp"
	"context"
	stderrors "errors"
	"io"
	"slices"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/deprank/pkg/dag"
	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/observability"
	"github.com/matzehuels/deprank/pkg/workflow"
)

const (
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultPollInterval   = 2 * time.Second
	DefaultCallTimeout    = 30 * time.Second
)

// Related ids of the workflow-level steps.
const (
	stepRegister = "register"
	stepFinish   = "finish"
)

// Options configures a Settler.
type Options struct {
	ConfirmTimeout time.Duration // Bound on waiting for finality (default: 2m)
	PollInterval   time.Duration // Status polling interval (default: 2s)
	CallTimeout    time.Duration // Bound on each ledger call (default: 30s)
	Logger         *log.Logger
}

// Settler drives workflows through a [Chain].
type Settler struct {
	chain  Chain
	opts   Options
	logger *log.Logger
	now    func() time.Time
}

// NewSettler creates a Settler.
func NewSettler(chain Chain, opts Options) *Settler {
	if opts.ConfirmTimeout <= 0 {
		opts.ConfirmTimeout = DefaultConfirmTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Settler{chain: chain, opts: opts, logger: logger, now: time.Now}
}

// Plan is the input of one settlement.
type Plan struct {
	Workflow     *workflow.Workflow
	Owner        string
	Dependencies []Dependency
	Allocations  []workflow.Allocation
}

// Checkpoint persists the plan's workflow and allocations. It is called
// after every ledger call that changed them.
type Checkpoint func(ctx context.Context, w *workflow.Workflow, allocs []workflow.Allocation) error

// Settle records the plan on the ledger. Work already recorded on the
// workflow's steps or the allocations' receipts is skipped, so Settle may
// be called again after any failure. Allocations are updated in place.
func (s *Settler) Settle(ctx context.Context, p *Plan, save Checkpoint) error {
	w := p.Workflow
	if w.Wallet == "" {
		return errors.New(errors.ErrCodeInvalidInput, "workflow %s has no wallet", w.ID)
	}
	slices.SortFunc(p.Allocations, func(a, b workflow.Allocation) int { return cmp.Compare(a.Identity, b.Identity) })
	slices.SortFunc(p.Dependencies, func(a, b Dependency) int { return cmp.Compare(depKey(a), depKey(b)) })

	checkpoint := func() error { return save(ctx, w, p.Allocations) }

	if !hasStep(w, workflow.StepWorkflow, stepRegister) {
		tx, err := call(ctx, s.opts.CallTimeout, func(ctx context.Context) (string, error) {
			return s.chain.RegisterWorkflow(ctx, w.ID, p.Owner, w.Wallet)
		})
		if err != nil {
			return err
		}
		w.AddStep(workflow.Step{Type: workflow.StepWorkflow, TxHash: tx, RelatedID: stepRegister, At: s.now()})
		if err := checkpoint(); err != nil {
			return err
		}
	}

	for _, d := range p.Dependencies {
		key := depKey(d)
		if hasStep(w, workflow.StepReceipt, key) {
			continue
		}
		tx, err := call(ctx, s.opts.CallTimeout, func(ctx context.Context) (string, error) {
			return s.chain.RecordReceipt(ctx, w.ID, d, d.MetadataHash())
		})
		if err != nil {
			return err
		}
		w.AddStep(workflow.Step{Type: workflow.StepReceipt, TxHash: tx, RelatedID: key, At: s.now()})
		if err := checkpoint(); err != nil {
			return err
		}
	}

	for i := range p.Allocations {
		if err := s.settleAllocation(ctx, w, &p.Allocations[i], checkpoint); err != nil {
			return err
		}
	}

	if !hasStep(w, workflow.StepWorkflow, stepFinish) {
		tx, err := call(ctx, s.opts.CallTimeout, func(ctx context.Context) (string, error) {
			return s.chain.FinishWorkflow(ctx, w.ID)
		})
		if err != nil {
			return err
		}
		w.AddStep(workflow.Step{Type: workflow.StepWorkflow, TxHash: tx, RelatedID: stepFinish, At: s.now()})
		if err := checkpoint(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Settler) settleAllocation(ctx context.Context, w *workflow.Workflow, a *workflow.Allocation, checkpoint func() error) error {
	switch a.Status {
	case workflow.AllocationConfirmed:
		return nil
	case workflow.AllocationFailed:
		return errors.New(errors.ErrCodeSettlementRejected, "allocation %s to %s was rejected", a.ID, a.Identity)
	}

	if a.ReceiptID == "" {
		var receipt Receipt
		_, err := call(ctx, s.opts.CallTimeout, func(ctx context.Context) (string, error) {
			var err error
			receipt, err = s.chain.Submit(ctx, Transfer{
				Key:        TransferKey(w.ID, a.Identity),
				WorkflowID: w.ID,
				Identity:   a.Identity,
				Recipient:  a.Wallet,
				Amount:     a.Amount,
			})
			return receipt.TxHash, err
		})
		if err != nil {
			observability.Workflow().OnSettlement(ctx, w.ID, a.Identity, a.Amount, err)
			return err
		}
		a.ReceiptID = receipt.ID
		a.TxHash = receipt.TxHash
		a.Status = workflow.AllocationSubmitted
		w.AddStep(workflow.Step{Type: workflow.StepAllocation, TxHash: receipt.TxHash, RelatedID: a.ID, At: s.now()})
		if err := checkpoint(); err != nil {
			return err
		}
		s.logger.Debug("allocation submitted", "workflow", w.ID, "identity", a.Identity, "amount", a.Amount, "tx", receipt.TxHash)
	}

	status, err := s.await(ctx, a.ReceiptID)
	if err != nil {
		observability.Workflow().OnSettlement(ctx, w.ID, a.Identity, a.Amount, err)
		return err
	}
	switch status {
	case StatusConfirmed:
		a.Status = workflow.AllocationConfirmed
		w.AddStep(workflow.Step{Type: workflow.StepSign, TxHash: a.TxHash, RelatedID: a.ID, At: s.now()})
		observability.Workflow().OnSettlement(ctx, w.ID, a.Identity, a.Amount, nil)
		return checkpoint()
	default:
		a.Status = workflow.AllocationFailed
		err := errors.New(errors.ErrCodeSettlementRejected, "ledger rejected allocation %s to %s", a.ID, a.Identity)
		observability.Workflow().OnSettlement(ctx, w.ID, a.Identity, a.Amount, err)
		if cerr := checkpoint(); cerr != nil {
			return cerr
		}
		return err
	}
}

// await polls a receipt until it leaves Pending or the confirm timeout
// elapses.
func (s *Settler) await(ctx context.Context, receiptID string) (Status, error) {
	deadline := time.NewTimer(s.opts.ConfirmTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		var status Status
		_, err := call(ctx, s.opts.CallTimeout, func(ctx context.Context) (string, error) {
			var err error
			status, err = s.chain.Status(ctx, receiptID)
			return "", err
		})
		if err != nil {
			return "", err
		}
		if status != StatusPending {
			return status, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", errors.New(errors.ErrCodeSettlementUnconfirmed,
				"receipt %s not final after %s", receiptID, s.opts.ConfirmTimeout)
		case <-ticker.C:
		}
	}
}

// call runs one ledger call under a timeout. Errors without a code become
// SETTLEMENT_TIMEOUT when the call timed out and SETTLEMENT_REJECTED
// otherwise; the caller's own cancellation is returned unchanged.
func call(ctx context.Context, timeout time.Duration, fn func(context.Context) (string, error)) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tx, err := fn(callCtx)
	switch {
	case err == nil:
		return tx, nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	case errors.GetCode(err) != "":
		return "", err
	case stderrors.Is(err, context.DeadlineExceeded):
		return "", errors.Wrap(errors.ErrCodeSettlementTimeout, err, "ledger call timed out after %s", timeout)
	default:
		return "", errors.Wrap(errors.ErrCodeSettlementRejected, err, "ledger call failed")
	}
}

func hasStep(w *workflow.Workflow, typ workflow.StepType, related string) bool {
	for _, s := range w.Steps {
		if s.Type == typ && s.RelatedID == related {
			return true
		}
	}
	return false
}

func depKey(d Dependency) string {
	return dag.Coordinate{Name: d.Name, Version: d.Version, Ecosystem: d.Ecosystem}.Key()
}
