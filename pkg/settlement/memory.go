package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	"github.com/matzehuels/deprank/pkg/errors"
)

// MemoryLedger is an in-memory [Chain]. Transfers confirm after a
// configurable number of status polls.
type MemoryLedger struct {
	mu sync.Mutex

	// ConfirmAfter is the number of Status calls that report Pending before
	// a receipt confirms.
	ConfirmAfter int

	// Reject lists identities whose transfers fail.
	Reject map[string]bool

	workflows map[string]ledgerWorkflow
	receipts  map[string][]string // workflow -> metadata hashes
	transfers map[string]*ledgerTransfer
	byID      map[string]*ledgerTransfer
	payouts   int
}

type ledgerWorkflow struct {
	owner, wallet string
	finished      bool
}

type ledgerTransfer struct {
	Transfer
	receipt Receipt
	polls   int
}

// NewMemoryLedger creates an empty ledger whose transfers confirm on the
// first status poll.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		Reject:    make(map[string]bool),
		workflows: make(map[string]ledgerWorkflow),
		receipts:  make(map[string][]string),
		transfers: make(map[string]*ledgerTransfer),
		byID:      make(map[string]*ledgerTransfer),
	}
}

func txHash(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

func (l *MemoryLedger) RegisterWorkflow(ctx context.Context, workflowID, owner, wallet string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.workflows[workflowID] = ledgerWorkflow{owner: owner, wallet: wallet}
	return txHash("workflow", workflowID), nil
}

func (l *MemoryLedger) RecordReceipt(ctx context.Context, workflowID string, dep Dependency, metadataHash string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.workflows[workflowID]; !ok {
		return "", errors.New(errors.ErrCodeSettlementRejected, "workflow %s not registered", workflowID)
	}
	l.receipts[workflowID] = append(l.receipts[workflowID], metadataHash)
	return txHash("receipt", workflowID, metadataHash), nil
}

func (l *MemoryLedger) Submit(ctx context.Context, t Transfer) (Receipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if existing, ok := l.transfers[t.Key]; ok {
		return existing.receipt, nil
	}
	if _, ok := l.workflows[t.WorkflowID]; !ok {
		return Receipt{}, errors.New(errors.ErrCodeSettlementRejected, "workflow %s not registered", t.WorkflowID)
	}
	tx := txHash("transfer", t.Key)
	lt := &ledgerTransfer{Transfer: t, receipt: Receipt{ID: tx[2:34], TxHash: tx}}
	l.transfers[t.Key] = lt
	l.byID[lt.receipt.ID] = lt
	l.payouts++
	return lt.receipt, nil
}

func (l *MemoryLedger) Status(ctx context.Context, receiptID string) (Status, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t, ok := l.byID[receiptID]
	if !ok {
		return "", errors.New(errors.ErrCodeSettlementRejected, "unknown receipt %s", receiptID)
	}
	if l.Reject[t.Identity] {
		return StatusFailed, nil
	}
	if t.polls < l.ConfirmAfter {
		t.polls++
		return StatusPending, nil
	}
	return StatusConfirmed, nil
}

func (l *MemoryLedger) FinishWorkflow(ctx context.Context, workflowID string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	wf, ok := l.workflows[workflowID]
	if !ok {
		return "", errors.New(errors.ErrCodeSettlementRejected, "workflow %s not registered", workflowID)
	}
	wf.finished = true
	l.workflows[workflowID] = wf
	return txHash("finish", workflowID), nil
}

// Payouts returns the number of distinct transfers accepted.
func (l *MemoryLedger) Payouts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.payouts
}

// Transfers returns the accepted transfers of a workflow.
func (l *MemoryLedger) Transfers(workflowID string) []Transfer {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Transfer
	for _, t := range l.transfers {
		if t.WorkflowID == workflowID {
			out = append(out, t.Transfer)
		}
	}
	return out
}

// Receipts returns the metadata hashes recorded for a workflow.
func (l *MemoryLedger) Receipts(workflowID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.receipts[workflowID]...)
}

// Finished reports whether the workflow was finished on the ledger.
func (l *MemoryLedger) Finished(workflowID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.workflows[workflowID].finished
}
