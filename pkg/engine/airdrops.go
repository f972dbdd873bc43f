package engine

import (
	"context"
	stderrors "errors"

	"github.com/google/uuid"

	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/store"
	"github.com/matzehuels/deprank/pkg/workflow"
)

// AirdropRequest creates an airdrop over a completed workflow.
type AirdropRequest struct {
	Name       string
	WorkflowID string
	MinAmount  int64
}

// CreateAirdrop opens an airdrop. The workflow must have completed.
func (e *Engine) CreateAirdrop(ctx context.Context, req AirdropRequest) (*workflow.Airdrop, error) {
	if req.Name == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "airdrop name is required")
	}
	if req.MinAmount < 0 {
		return nil, errors.New(errors.ErrCodeInvalidInput, "minimum amount must not be negative")
	}
	w, err := e.store.GetWorkflow(ctx, req.WorkflowID)
	if err != nil {
		return nil, err
	}
	if !w.Succeeded() {
		return nil, errors.New(errors.ErrCodeInvalidInput, "workflow %s has not completed", w.ID)
	}
	a := &workflow.Airdrop{
		ID:         uuid.NewString(),
		Name:       req.Name,
		WorkflowID: w.ID,
		MinAmount:  req.MinAmount,
		Status:     workflow.AirdropOpen,
		Claims:     []workflow.Claim{},
		CreatedAt:  e.now(),
	}
	if err := e.store.CreateAirdrop(ctx, a); err != nil {
		return nil, err
	}
	e.logger.Info("airdrop created", "airdrop", a.ID, "workflow", w.ID)
	return a, nil
}

// Airdrop returns an airdrop.
func (e *Engine) Airdrop(ctx context.Context, id string) (*workflow.Airdrop, error) {
	return e.store.GetAirdrop(ctx, id)
}

// CloseAirdrop stops accepting claims.
func (e *Engine) CloseAirdrop(ctx context.Context, id string) error {
	return e.store.SetAirdropStatus(ctx, id, workflow.AirdropClosed)
}

// Claim submits address for an airdrop. The address must be bound to a
// contributor whose allocation in the airdrop's workflow reaches the
// minimum. Claiming twice returns the first claim.
func (e *Engine) Claim(ctx context.Context, airdropID, address string) (*workflow.Claim, error) {
	if err := errors.ValidateWalletAddress(address); err != nil {
		return nil, err
	}
	a, err := e.store.GetAirdrop(ctx, airdropID)
	if err != nil {
		return nil, err
	}
	if c, ok := a.Claimed(address); ok {
		return &c, nil
	}
	if a.Status != workflow.AirdropOpen {
		return nil, store.ErrClosed
	}

	b, err := e.store.FindWallet(ctx, address)
	if stderrors.Is(err, store.ErrNotFound) {
		return nil, errors.New(errors.ErrCodeNotEligible, "address %s is not bound to a contributor", address)
	}
	if err != nil {
		return nil, err
	}
	allocs, err := e.store.ListAllocations(ctx, a.WorkflowID)
	if err != nil {
		return nil, err
	}
	var amount int64
	found := false
	for _, al := range allocs {
		if al.Identity == b.Identity {
			amount, found = al.Amount, true
			break
		}
	}
	if !found || amount < a.MinAmount || amount == 0 {
		return nil, errors.New(errors.ErrCodeNotEligible, "%s is not eligible for airdrop %s", b.Identity, a.ID)
	}

	claim := workflow.Claim{Address: address, Identity: b.Identity, Amount: amount, ClaimedAt: e.now()}
	updated, err := e.store.AddClaim(ctx, a.ID, claim)
	if err != nil {
		return nil, err
	}
	c, _ := updated.Claimed(address)
	e.logger.Info("airdrop claimed", "airdrop", a.ID, "identity", b.Identity, "amount", amount)
	return &c, nil
}
