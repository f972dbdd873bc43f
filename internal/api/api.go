// Package api serves the deprank REST surface over an [engine.Engine].
//
// All routes live under /v1 and exchange JSON. Failures are reported as
// {"error": CODE, "message": text} with the status derived from the error
// code: NOT_FOUND maps to 404, invalid input and budgets to 400, conflicts
// and ineligible claims to 409, and everything else to 500.
package api

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/matzehuels/deprank/pkg/buildinfo"
	"github.com/matzehuels/deprank/pkg/engine"
	"github.com/matzehuels/deprank/pkg/errors"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Server holds the handler dependencies.
type Server struct {
	engine *engine.Engine
	logger *log.Logger
}

// New creates a Server. A nil logger discards output.
func New(e *engine.Engine, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Server{engine: e, logger: logger}
}

// Handler returns the router with every route registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/healthz", s.health)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/workflows", func(r chi.Router) {
			r.Post("/", s.createWorkflow)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getWorkflow)
				r.Delete("/", s.deleteWorkflow)
				r.Get("/allocations", s.listAllocations)
				r.Get("/allocations/{item}", s.getAllocation)
				r.Get("/contributions", s.listContributions)
				r.Get("/contributions/{item}", s.getContribution)
				r.Put("/wallet-address", s.bindWorkflowWallet)
				r.Delete("/wallet-address", s.unbindWorkflowWallet)
			})
		})

		r.Route("/projects/{owner}/{name}", func(r chi.Router) {
			r.Get("/", s.getProject)
			r.Get("/contributors", s.listProjectContributors)
			r.Get("/contributors/{item}", s.getProjectContributor)
			r.Get("/dependencies", s.listProjectDependencies)
			// Dependency names may contain slashes.
			r.Get("/dependencies/*", s.getProjectDependency)
		})

		r.Route("/contributors/{login}/wallet-address", func(r chi.Router) {
			r.Get("/", s.getWallet)
			r.Put("/", s.bindWallet)
			r.Delete("/", s.unbindWallet)
		})

		r.Get("/airdrops/{id}", s.getAirdrop)
		r.Post("/airdrops/{id}", s.claimAirdrop)
	})
	return r
}

// logRequests logs one line per request at debug level, and at warn level
// for server errors.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		kv := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start).Round(time.Microsecond),
			"request_id", middleware.GetReqID(r.Context()),
		}
		if ww.Status() >= http.StatusInternalServerError {
			s.logger.Warn("request failed", kv...)
			return
		}
		s.logger.Debug("request", kv...)
	})
}

type healthResponse struct {
	Status string         `json:"status"`
	Build  buildinfo.Info `json:"build"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Build: buildinfo.Get()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   errors.Code `json:"error"`
	Message string      `json:"message"`
}

// statusFor maps an error code to an HTTP status.
func statusFor(code errors.Code) int {
	switch code {
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeInvalidInput, errors.ErrCodeBudgetInvalid:
		return http.StatusBadRequest
	case errors.ErrCodeConflict, errors.ErrCodeNotEligible:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := errors.CodeOr(err, errors.ErrCodeInternal)
	status := statusFor(code)
	msg := errors.UserMessage(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request error", "method", r.Method, "path", r.URL.Path, "err", err)
		if errors.GetCode(err) == "" {
			msg = "internal error"
		}
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: msg})
}

// decode reads a JSON body into v, rejecting unknown fields.
func decode(r *http.Request, w http.ResponseWriter, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.New(errors.ErrCodeInvalidInput, "request body exceeds %d bytes", maxBodyBytes)
		}
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid request body")
	}
	return nil
}
