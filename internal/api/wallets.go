package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	b, err := s.engine.Wallet(r.Context(), chi.URLParam(r, "login"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) bindWallet(w http.ResponseWriter, r *http.Request) {
	var req WalletRequest
	if err := decode(r, w, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.BindWallet(r.Context(), chi.URLParam(r, "login"), req.Address); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unbindWallet(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.UnbindWallet(r.Context(), chi.URLParam(r, "login")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
