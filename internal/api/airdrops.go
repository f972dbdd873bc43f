package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) getAirdrop(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Airdrop(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// claimAirdrop submits a claim. Repeating a successful claim succeeds.
func (s *Server) claimAirdrop(w http.ResponseWriter, r *http.Request) {
	var req WalletRequest
	if err := decode(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.engine.Claim(r.Context(), chi.URLParam(r, "id"), req.Address); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
