package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/deprank/pkg/engine"
	"github.com/matzehuels/deprank/pkg/source"
)

// CreateWorkflowRequest is the body of POST /v1/workflows.
type CreateWorkflowRequest struct {
	Repo   string `json:"repo"`
	Branch string `json:"branch,omitempty"`
	Tag    string `json:"tag,omitempty"`
	Rev    string `json:"rev,omitempty"`

	// Budget overrides the configured budget.
	Budget *int64 `json:"budget,omitempty"`

	Wallet string `json:"wallet_address,omitempty"`
}

// WalletRequest is the body of the wallet-address and claim routes.
type WalletRequest struct {
	Address string `json:"address"`
}

func (s *Server) createWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := decode(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	wf, err := s.engine.Create(r.Context(), engine.CreateRequest{
		Ref:    source.Ref{Repo: req.Repo, Branch: req.Branch, Tag: req.Tag, Rev: req.Rev},
		Budget: req.Budget,
		Wallet: req.Wallet,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wf)
}

func (s *Server) getWorkflow(w http.ResponseWriter, r *http.Request) {
	wf, err := s.engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

func (s *Server) deleteWorkflow(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listAllocations(w http.ResponseWriter, r *http.Request) {
	allocs, err := s.engine.Allocations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, allocs)
}

func (s *Server) getAllocation(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Allocation(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "item"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) listContributions(w http.ResponseWriter, r *http.Request) {
	cs, err := s.engine.Contributions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) getContribution(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.Contribution(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "item"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) bindWorkflowWallet(w http.ResponseWriter, r *http.Request) {
	var req WalletRequest
	if err := decode(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.BindWorkflowWallet(r.Context(), chi.URLParam(r, "id"), req.Address); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unbindWorkflowWallet(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.UnbindWorkflowWallet(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
