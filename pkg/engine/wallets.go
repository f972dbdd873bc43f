package engine

import (
	"context"
	stderrors "errors"

	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/store"
	"github.com/matzehuels/deprank/pkg/workflow"
)

// maxWalletWrites bounds the optimistic retries of a workflow wallet
// update racing its run.
const maxWalletWrites = 5

// BindWorkflowWallet sets the wallet that receives the workflow on the
// ledger. A workflow parked for lack of a wallet resumes.
func (e *Engine) BindWorkflowWallet(ctx context.Context, id, address string) error {
	if err := errors.ValidateWalletAddress(address); err != nil {
		return err
	}
	w, err := e.setWorkflowWallet(ctx, id, address)
	if err != nil {
		return err
	}
	e.logger.Info("workflow wallet bound", "workflow", id, "address", address)
	if w.Stage == workflow.StageSettling && !w.Terminal() {
		e.start(id)
	}
	return nil
}

// UnbindWorkflowWallet clears the workflow wallet. Unbinding an unbound
// workflow is a no-op.
func (e *Engine) UnbindWorkflowWallet(ctx context.Context, id string) error {
	_, err := e.setWorkflowWallet(ctx, id, "")
	return err
}

func (e *Engine) setWorkflowWallet(ctx context.Context, id, address string) (*workflow.Workflow, error) {
	for range maxWalletWrites {
		w, err := e.store.GetWorkflow(ctx, id)
		if err != nil {
			return nil, err
		}
		if w.Wallet == address && !(address != "" && w.AwaitingWallet) {
			return w, nil
		}
		w.Wallet = address
		if address != "" {
			w.AwaitingWallet = false
		}
		w.UpdatedAt = e.now()
		err = e.store.UpdateWorkflow(ctx, w)
		if err == nil {
			return w, nil
		}
		if !stderrors.Is(err, store.ErrConflict) {
			return nil, err
		}
	}
	return nil, errors.New(errors.ErrCodeConflict, "workflow %s changed concurrently", id)
}

// BindWallet maps a contributor identity to a wallet. Allocations not yet
// submitted are paid to the bound wallet.
func (e *Engine) BindWallet(ctx context.Context, identity, address string) error {
	if err := errors.ValidateIdentity(identity); err != nil {
		return err
	}
	if err := errors.ValidateWalletAddress(address); err != nil {
		return err
	}
	return e.store.PutWallet(ctx, workflow.WalletBinding{Identity: identity, Address: address, UpdatedAt: e.now()})
}

// UnbindWallet removes a contributor binding. Unbinding an unbound identity
// is a no-op.
func (e *Engine) UnbindWallet(ctx context.Context, identity string) error {
	if err := errors.ValidateIdentity(identity); err != nil {
		return err
	}
	return e.store.DeleteWallet(ctx, identity)
}

// Wallet returns the binding of a contributor.
func (e *Engine) Wallet(ctx context.Context, identity string) (*workflow.WalletBinding, error) {
	return e.store.GetWallet(ctx, identity)
}
