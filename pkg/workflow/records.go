package workflow

import (
	"time"

	"github.com/google/uuid"

	"github.com/matzehuels/deprank/pkg/dag"
)

// Project is the resolved unit under analysis.
type Project struct {
	Owner      string `json:"owner" bson:"owner"`
	Name       string `json:"name" bson:"name"`
	Repo       string `json:"repo" bson:"repo"`
	Revision   string `json:"revision" bson:"revision"`
	WorkflowID string `json:"workflow_id" bson:"workflow_id"`

	Description   string `json:"description,omitempty" bson:"description,omitempty"`
	DefaultBranch string `json:"default_branch,omitempty" bson:"default_branch,omitempty"`
	License       string `json:"license,omitempty" bson:"license,omitempty"`
	Language      string `json:"language,omitempty" bson:"language,omitempty"`
	Stars         int    `json:"stars,omitempty" bson:"stars,omitempty"`

	AnalyzedAt time.Time `json:"analyzed_at" bson:"analyzed_at"`
}

// Key returns "owner/name".
func (p Project) Key() string { return p.Owner + "/" + p.Name }

// Contribution links a contributor to a graph node with a raw weight.
type Contribution struct {
	ID         string `json:"id" bson:"id"`
	WorkflowID string `json:"workflow_id" bson:"workflow_id"`
	Identity   string `json:"identity" bson:"identity"`

	// Subject is the coordinate key of the node contributed to.
	Subject string `json:"subject" bson:"subject"`
	Repo    string `json:"repo,omitempty" bson:"repo,omitempty"`

	Commits int     `json:"commits" bson:"commits"`
	Lines   int     `json:"lines,omitempty" bson:"lines,omitempty"`
	Weight  float64 `json:"weight" bson:"weight"`
}

// Analysis is the artifact persisted when Analyzing completes.
type Analysis struct {
	WorkflowID    string         `json:"workflow_id" bson:"_id"`
	Project       Project        `json:"project" bson:"project"`
	Manifests     []string       `json:"manifests" bson:"manifests"`
	Graph         dag.Export     `json:"graph" bson:"graph"`
	Contributions []Contribution `json:"contributions" bson:"contributions"`
}

// Score is one entry of a ranking, keyed by identity or coordinate key.
type Score struct {
	Key   string  `json:"key" bson:"key"`
	Value float64 `json:"value" bson:"value"`
}

// Scores is the artifact persisted when Ranking completes.
type Scores struct {
	WorkflowID   string  `json:"workflow_id" bson:"_id"`
	Contributors []Score `json:"contributors" bson:"contributors"`
	Nodes        []Score `json:"nodes" bson:"nodes"`
	Iterations   int     `json:"iterations" bson:"iterations"`
	Converged    bool    `json:"converged" bson:"converged"`
	CyclesBroken int     `json:"cycles_broken,omitempty" bson:"cycles_broken,omitempty"`
}

// AllocationStatus tracks an allocation through settlement.
type AllocationStatus string

const (
	AllocationPending   AllocationStatus = "pending"
	AllocationSubmitted AllocationStatus = "submitted"
	AllocationConfirmed AllocationStatus = "confirmed"
	AllocationFailed    AllocationStatus = "failed"
)

// Allocation is a contributor's share of a workflow budget.
type Allocation struct {
	ID         string  `json:"id" bson:"id"`
	WorkflowID string  `json:"workflow_id" bson:"workflow_id"`
	Identity   string  `json:"identity" bson:"identity"`
	Amount     int64   `json:"amount" bson:"amount"`
	Score      float64 `json:"score" bson:"score"`

	// Wallet is the bound address at settlement time. Allocations without
	// one are recorded against the identity and stay claimable.
	Wallet    string           `json:"wallet_address,omitempty" bson:"wallet,omitempty"`
	Status    AllocationStatus `json:"status" bson:"status"`
	ReceiptID string           `json:"receipt_id,omitempty" bson:"receipt_id,omitempty"`
	TxHash    string           `json:"tx_hash,omitempty" bson:"tx_hash,omitempty"`
}

// WalletBinding maps a contributor identity to a wallet address.
type WalletBinding struct {
	Identity  string    `json:"identity" bson:"_id"`
	Address   string    `json:"address" bson:"address"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

// AirdropStatus is the lifecycle state of an airdrop.
type AirdropStatus string

const (
	AirdropOpen   AirdropStatus = "open"
	AirdropClosed AirdropStatus = "closed"
)

// Airdrop is a distribution event. Contributors of the referenced workflow
// whose allocation reaches MinAmount may claim it with a bound wallet.
type Airdrop struct {
	ID         string        `json:"id" bson:"_id"`
	Name       string        `json:"name" bson:"name"`
	WorkflowID string        `json:"workflow_id" bson:"workflow_id"`
	MinAmount  int64         `json:"min_amount" bson:"min_amount"`
	Status     AirdropStatus `json:"status" bson:"status"`
	Claims     []Claim       `json:"claims" bson:"claims"`
	CreatedAt  time.Time     `json:"created_at" bson:"created_at"`
}

// Claim is a wallet's claim on an airdrop.
type Claim struct {
	Address   string    `json:"address" bson:"address"`
	Identity  string    `json:"identity" bson:"identity"`
	Amount    int64     `json:"amount" bson:"amount"`
	ClaimedAt time.Time `json:"claimed_at" bson:"claimed_at"`
}

// Claimed returns the claim of address, if any.
func (a *Airdrop) Claimed(address string) (Claim, bool) {
	for _, c := range a.Claims {
		if c.Address == address {
			return c, true
		}
	}
	return Claim{}, false
}

// DeriveID returns a stable id for name within the scope of parent.
// Re-running a stage therefore produces identical record ids.
func DeriveID(parent string, name ...string) string {
	ns, err := uuid.Parse(parent)
	if err != nil {
		ns = uuid.NewSHA1(uuid.NameSpaceURL, []byte(parent))
	}
	key := ""
	for i, n := range name {
		if i > 0 {
			key += "\x00"
		}
		key += n
	}
	return uuid.NewSHA1(ns, []byte(key)).String()
}
