// Package api exposes health, metrics, status, leaderboard and call
// submission over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"callwatch/internal/chain"
	"callwatch/internal/domain"
	"callwatch/internal/observability"
	"callwatch/internal/scheduler"
	"callwatch/internal/storage"
	"callwatch/internal/submission"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100
	maxBodyBytes            = 1 << 16
)

// Submitter creates and administers calls.
type Submitter interface {
	Submit(ctx context.Context, req submission.Request) (*domain.Call, error)
	CallsByCaller(ctx context.Context, callerID string) ([]*domain.Call, error)
	Cancel(ctx context.Context, id string) error
	SetPeakLock(ctx context.Context, id string, locked bool) error
	SetExcluded(ctx context.Context, id string, excluded bool) error
}

// Ranker produces leaderboard views.
type Ranker interface {
	Rank(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	CallerStats(ctx context.Context, callerID string) (domain.LeaderboardEntry, bool, error)
}

// StatusProvider reports scheduler state.
type StatusProvider interface {
	Status() scheduler.Status
}

// Options configures Server.
type Options struct {
	Submitter  Submitter
	Ranker     Ranker
	Scheduler  StatusProvider
	Feed       http.Handler // websocket alert feed, optional
	AdminToken string       // bearer token for /admin routes; empty disables them
	Logger     *zerolog.Logger
}

// Server routes HTTP requests to the engine.
type Server struct {
	submitter  Submitter
	ranker     Ranker
	scheduler  StatusProvider
	feed       http.Handler
	adminToken string
	started    time.Time
	logger     zerolog.Logger
	mux        *http.ServeMux
}

// New creates a new Server.
func New(opts Options) *Server {
	logger := log.Logger
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	s := &Server{
		submitter:  opts.Submitter,
		ranker:     opts.Ranker,
		scheduler:  opts.Scheduler,
		feed:       opts.Feed,
		adminToken: opts.AdminToken,
		started:    time.Now(),
		logger:     logger.With().Str("component", "api").Logger(),
		mux:        http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.mux.Handle("GET /metrics", observability.Handler())
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /leaderboard", s.handleLeaderboard)
	s.mux.HandleFunc("GET /callers/{id}", s.handleCaller)
	s.mux.HandleFunc("POST /calls", s.handleSubmit)

	if s.feed != nil {
		s.mux.Handle("GET /ws", s.feed)
	}
	if s.adminToken != "" {
		s.mux.HandleFunc("POST /admin/calls/{id}/cancel", s.admin(s.handleCancel))
		s.mux.HandleFunc("POST /admin/calls/{id}/peak-lock", s.admin(s.handlePeakLock))
		s.mux.HandleFunc("POST /admin/calls/{id}/exclude", s.admin(s.handleExclude))
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status    string           `json:"status"`
	Uptime    string           `json:"uptime"`
	Scheduler scheduler.Status `json:"scheduler"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Status: "running",
		Uptime: time.Since(s.started).Truncate(time.Second).String(),
	}
	if s.scheduler != nil {
		resp.Scheduler = s.scheduler.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := defaultLeaderboardLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLeaderboardLimit)
	}

	entries, err := s.ranker.Rank(r.Context(), limit)
	if err != nil {
		s.internalError(w, err, "rank callers")
		return
	}

	out := make([]entryView, len(entries))
	for i, e := range entries {
		out[i] = newEntryView(i+1, e)
	}
	writeJSON(w, http.StatusOK, out)
}

// CallerResponse is the JSON response for /callers/{id}.
type CallerResponse struct {
	Stats *entryView `json:"stats,omitempty"`
	Calls []callView `json:"calls"`
}

func (s *Server) handleCaller(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	calls, err := s.submitter.CallsByCaller(r.Context(), id)
	if err != nil {
		s.internalError(w, err, "load caller calls")
		return
	}
	stats, ok, err := s.ranker.CallerStats(r.Context(), id)
	if err != nil {
		s.internalError(w, err, "load caller stats")
		return
	}

	resp := CallerResponse{Calls: make([]callView, len(calls))}
	for i, c := range calls {
		resp.Calls[i] = newCallView(c)
	}
	if ok {
		v := newEntryView(0, stats)
		resp.Stats = &v
	}
	writeJSON(w, http.StatusOK, resp)
}

// SubmitRequest is the JSON body of POST /calls.
type SubmitRequest struct {
	Chain       string `json:"chain"`
	Address     string `json:"address"`
	CallerID    string `json:"caller_id"`
	DisplayName string `json:"display_name,omitempty"`
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body SubmitRequest
	// Unknown fields are ignored. Entitlements come from configuration,
	// never from the body.
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	req := submission.Request{
		Chain:   domain.Chain(strings.ToUpper(strings.TrimSpace(body.Chain))),
		Address: body.Address,
		Caller:  domain.Caller{UserID: body.CallerID},
	}
	if body.DisplayName != "" {
		name := body.DisplayName
		req.Caller.DisplayName = &name
	}

	call, err := s.submitter.Submit(r.Context(), req)
	if err != nil {
		var denied *submission.DeniedError
		switch {
		case errors.As(err, &denied):
			secs := int(denied.RetryAfter.Round(time.Second) / time.Second)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, denied.Reason)
		case isInvalidInput(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			s.internalError(w, err, "submit call")
		}
		return
	}

	writeJSON(w, http.StatusCreated, newCallView(call))
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.adminResult(w, s.submitter.Cancel(r.Context(), r.PathValue("id")))
}

func (s *Server) handlePeakLock(w http.ResponseWriter, r *http.Request) {
	locked, ok := boolParam(w, r, "locked")
	if !ok {
		return
	}
	s.adminResult(w, s.submitter.SetPeakLock(r.Context(), r.PathValue("id"), locked))
}

func (s *Server) handleExclude(w http.ResponseWriter, r *http.Request) {
	excluded, ok := boolParam(w, r, "excluded")
	if !ok {
		return
	}
	s.adminResult(w, s.submitter.SetExcluded(r.Context(), r.PathValue("id"), excluded))
}

func (s *Server) adminResult(w http.ResponseWriter, err error) {
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "call not found")
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusConflict, "transition not allowed")
	default:
		s.internalError(w, err, "admin update")
	}
}

func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.adminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func (s *Server) internalError(w http.ResponseWriter, err error, op string) {
	s.logger.Error().Err(err).Str("op", op).Msg("request failed")
	writeError(w, http.StatusInternalServerError, "internal error")
}

func boolParam(w http.ResponseWriter, r *http.Request, name string) (bool, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return true, true
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, name+" must be a boolean")
		return false, false
	}
	return v, true
}

func isInvalidInput(err error) bool {
	for _, target := range []error{
		domain.ErrInvalidChain,
		domain.ErrMissingCaller,
		domain.ErrMissingAddress,
		storage.ErrInvalidInput,
		chain.ErrInvalidAddress,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
