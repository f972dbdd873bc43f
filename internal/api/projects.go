package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) getProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.Project(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) listProjectContributors(w http.ResponseWriter, r *http.Request) {
	cs, err := s.engine.ProjectContributors(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cs)
}

func (s *Server) getProjectContributor(w http.ResponseWriter, r *http.Request) {
	c, err := s.engine.ProjectContributor(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "name"), chi.URLParam(r, "item"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) listProjectDependencies(w http.ResponseWriter, r *http.Request) {
	ds, err := s.engine.ProjectDependencies(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "name"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (s *Server) getProjectDependency(w http.ResponseWriter, r *http.Request) {
	d, err := s.engine.ProjectDependency(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "name"), chi.URLParam(r, "*"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}
