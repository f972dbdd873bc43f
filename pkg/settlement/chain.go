package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Status is the finality state of a submitted transfer.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Transfer is one allocation submitted to the ledger.
type Transfer struct {
	// Key makes submission idempotent. See [TransferKey].
	Key        string `json:"key"`
	WorkflowID string `json:"workflow_id"`
	Identity   string `json:"identity"`

	// Recipient is the bound wallet. When empty the amount is recorded
	// against the identity and stays claimable.
	Recipient string `json:"recipient,omitempty"`
	Amount    int64  `json:"amount"`
}

// Receipt identifies a submitted transfer.
type Receipt struct {
	ID     string `json:"id"`
	TxHash string `json:"tx_hash"`
}

// Dependency is the receipt payload recorded for one graph node.
type Dependency struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Ecosystem string `json:"ecosystem,omitempty"`
	Repo      string `json:"repo,omitempty"`
	Revision  string `json:"revision,omitempty"`
	License   string `json:"license,omitempty"`
}

// MetadataHash returns the hex sha256 of the dependency's JSON encoding.
func (d Dependency) MetadataHash() string {
	data, _ := json.Marshal(d)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Chain is the ledger capability used by a [Settler].
type Chain interface {
	// RegisterWorkflow creates the on-chain workflow record.
	RegisterWorkflow(ctx context.Context, workflowID, owner, wallet string) (txHash string, err error)

	// RecordReceipt stores a dependency receipt for the workflow.
	RecordReceipt(ctx context.Context, workflowID string, dep Dependency, metadataHash string) (txHash string, err error)

	// Submit sends a transfer. Submitting a known key returns the original
	// receipt without a second payout.
	Submit(ctx context.Context, t Transfer) (Receipt, error)

	// Status reports the finality of a receipt.
	Status(ctx context.Context, receiptID string) (Status, error)

	// FinishWorkflow marks the on-chain workflow completed.
	FinishWorkflow(ctx context.Context, workflowID string) (txHash string, err error)
}

// TransferKey returns the idempotency key of a workflow's transfer to an
// identity.
func TransferKey(workflowID, identity string) string {
	return workflowID + ":" + identity
}
