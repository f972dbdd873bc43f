// Package store persists workflows and the artifacts they produce.
//
// [Store] is implemented by [Memory] for tests and one-shot runs and by
// the mongo subpackage for the service. [Cached] puts an LRU cache of
// finished workflows in front of any implementation.
//
// Workflows are versioned: [Store.UpdateWorkflow] succeeds only when the
// caller's Version matches the stored one and then increments it, so a
// writer holding a stale copy gets [ErrConflict] instead of overwriting a
// newer state. Updating a deleted workflow returns [ErrNotFound].
package store

import (
	"context"
	"strings"

	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/workflow"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New(errors.ErrCodeNotFound, "record not found")

	// ErrConflict is returned by UpdateWorkflow for stale versions and by
	// CreateWorkflow for duplicate ids.
	ErrConflict = errors.New(errors.ErrCodeConflict, "record was modified concurrently")

	// ErrClosed is returned by AddClaim when the airdrop no longer accepts
	// claims.
	ErrClosed = errors.New(errors.ErrCodeConflict, "airdrop is closed")
)

// Filter selects workflows in ListWorkflows.
type Filter struct {
	// Active selects non-terminal workflows only.
	Active bool
}

// Store is the persistence capability of the engine.
type Store interface {
	CreateWorkflow(ctx context.Context, w *workflow.Workflow) error
	GetWorkflow(ctx context.Context, id string) (*workflow.Workflow, error)
	UpdateWorkflow(ctx context.Context, w *workflow.Workflow) error
	ListWorkflows(ctx context.Context, f Filter) ([]*workflow.Workflow, error)

	// DeleteWorkflow removes the workflow and every artifact it produced.
	DeleteWorkflow(ctx context.Context, id string) error

	// ClearArtifacts removes the analysis, scores and allocations of a
	// workflow but keeps the workflow itself.
	ClearArtifacts(ctx context.Context, workflowID string) error

	PutAnalysis(ctx context.Context, a *workflow.Analysis) error
	GetAnalysis(ctx context.Context, workflowID string) (*workflow.Analysis, error)

	PutScores(ctx context.Context, s *workflow.Scores) error
	GetScores(ctx context.Context, workflowID string) (*workflow.Scores, error)

	// PutAllocations replaces the allocations of a workflow.
	PutAllocations(ctx context.Context, workflowID string, allocs []workflow.Allocation) error
	ListAllocations(ctx context.Context, workflowID string) ([]workflow.Allocation, error)

	// PutProject records the latest analysis of a project.
	PutProject(ctx context.Context, p workflow.Project) error
	GetProject(ctx context.Context, owner, name string) (*workflow.Project, error)

	PutWallet(ctx context.Context, b workflow.WalletBinding) error
	GetWallet(ctx context.Context, identity string) (*workflow.WalletBinding, error)
	FindWallet(ctx context.Context, address string) (*workflow.WalletBinding, error)

	// DeleteWallet is a no-op for unbound identities.
	DeleteWallet(ctx context.Context, identity string) error

	CreateAirdrop(ctx context.Context, a *workflow.Airdrop) error
	GetAirdrop(ctx context.Context, id string) (*workflow.Airdrop, error)

	// AddClaim appends c unless its address already claimed. It returns
	// the airdrop after the change and [ErrClosed] for closed airdrops.
	AddClaim(ctx context.Context, airdropID string, c workflow.Claim) (*workflow.Airdrop, error)
	SetAirdropStatus(ctx context.Context, id string, s workflow.AirdropStatus) error

	Close(ctx context.Context) error
}

// ProjectKey returns the storage key of a project.
func ProjectKey(owner, name string) string {
	return strings.ToLower(owner + "/" + name)
}
