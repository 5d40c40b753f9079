package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/troupe"
	"github.com/aretw0/troupe/internal/logging"
	"github.com/aretw0/troupe/pkg/domain"
	"github.com/aretw0/troupe/pkg/registry"
	"github.com/aretw0/troupe/pkg/session"
	"github.com/go-chi/chi/v5"
)

// Server exposes the machines of a registry and their sessions over HTTP.
type Server struct {
	Registry *registry.Registry
	Sessions *session.Manager
	Streams  *StreamManager

	metrics  http.Handler
	validate bool
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger used for request errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetricsHandler mounts h on GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithRequestValidation validates every request against the OpenAPI document
// served on /openapi.yaml before it reaches a handler.
func WithRequestValidation() Option {
	return func(s *Server) {
		s.validate = true
	}
}

// NewServer creates a server for the machines of reg, persisted by sessions.
func NewServer(reg *registry.Registry, sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		Registry: reg,
		Sessions: sessions,
		Streams:  NewStreamManager(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.Streams.logger = s.logger
	return s
}

// NewHandler creates a new HTTP handler for the machines of reg.
// It panics if request validation is enabled and the embedded OpenAPI
// document cannot be loaded.
func NewHandler(reg *registry.Registry, sessions *session.Manager, opts ...Option) http.Handler {
	return NewServer(reg, sessions, opts...).Handler()
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(enableCORS)
	if s.validate {
		v, err := newValidator()
		if err != nil {
			panic(fmt.Sprintf("invalid embedded OpenAPI document: %v", err))
		}
		r.Use(v.middleware(s))
	}

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(openapiSpec)
	})
	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/machines", func(r chi.Router) {
		r.Get("/", s.ListMachines)
		r.Route("/{machine}", func(r chi.Router) {
			r.Get("/", s.GetMachine)
			r.Get("/sessions", s.ListSessions)
			r.Get("/sessions/{session}", s.GetSession)
			r.Delete("/sessions/{session}", s.DeleteSession)
			r.Post("/sessions/{session}/events", s.SendEvents)
			r.Get("/sessions/{session}/stream", s.StreamSession)
		})
	})
	return r
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// MachineInfo describes a hosted machine.
type MachineInfo struct {
	ID      string   `json:"id"`
	Version string   `json:"version,omitempty"`
	States  []string `json:"states"`
	Events  []string `json:"events"`
}

// SendRequest is the body of POST .../events.
// Input is only used when the request creates the session.
type SendRequest struct {
	Input  any            `json:"input,omitempty"`
	Events []domain.Event `json:"events"`
}

// SendResponse is the result of POST .../events.
type SendResponse struct {
	Created  bool                      `json:"created"`
	Snapshot *domain.PersistedSnapshot `json:"snapshot"`
	Diff     *domain.SnapshotDiff      `json:"diff,omitempty"`
}

// GetHealth handles the GET /healthz request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if doc, err := loadSpec(); err == nil && doc.Info != nil {
		apiVersion = doc.Info.Version
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "troupe-http",
		"version":     strings.TrimSpace(troupe.Version),
		"api_version": apiVersion,
	})
}

// ListMachines handles the GET /machines request.
func (s *Server) ListMachines(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.Registry.List())
}

// GetMachine handles the GET /machines/{machine} request.
func (s *Server) GetMachine(w http.ResponseWriter, r *http.Request) {
	m, err := s.Registry.Machine(chi.URLParam(r, "machine"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	info := MachineInfo{
		ID:      m.ID(),
		Version: m.Version(),
		Events:  m.Events(),
	}
	for _, n := range m.StateNodes() {
		info.States = append(info.States, n.ID)
	}
	s.writeJSON(w, http.StatusOK, info)
}

// ListSessions handles the GET /machines/{machine}/sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	logic, err := s.Registry.Get(chi.URLParam(r, "machine"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	ids, err := s.Sessions.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		snap, err := s.Sessions.Load(r.Context(), id)
		if err != nil {
			// Expired or deleted between List and Load.
			if errors.Is(err, domain.ErrSessionNotFound) {
				continue
			}
			s.writeError(w, err)
			return
		}
		if snap.LogicID == logic.LogicID() {
			out = append(out, id)
		}
	}
	s.writeJSON(w, http.StatusOK, out)
}

// GetSession handles the GET /machines/{machine}/sessions/{session} request.
func (s *Server) GetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.loadSession(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// DeleteSession handles the DELETE /machines/{machine}/sessions/{session} request.
// Deleting a session that does not exist succeeds.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	_, err := s.loadSession(r)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
	case err != nil:
		s.writeError(w, err)
		return
	default:
		if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "session")); err != nil {
			s.writeError(w, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// SendEvents handles the POST /machines/{machine}/sessions/{session}/events request.
// The session is created with the request input when it does not exist.
func (s *Server) SendEvents(w http.ResponseWriter, r *http.Request) {
	logic, err := s.Registry.Get(chi.URLParam(r, "machine"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	sessionID := chi.URLParam(r, "session")

	var body SendRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("SendEvents: Invalid request body", "err", err)
		return
	}
	for _, ev := range body.Events {
		if ev.Type == "" {
			s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "event type is required"})
			return
		}
	}

	res, err := s.Sessions.Dispatch(r.Context(), sessionID, logic, body.Input, body.Events...)
	if err != nil {
		s.writeError(w, err)
		return
	}

	diff := domain.Diff(sessionID, res.Previous, res.Snapshot)
	if diff != nil {
		s.logger.Debug("SendEvents: Diff calculated", "diff", diff, "session_id", sessionID)
		if bytes, err := json.Marshal(diff); err == nil {
			s.Streams.Broadcast(sessionID, string(bytes))
		}
	}

	s.writeJSON(w, http.StatusOK, SendResponse{
		Created:  res.Created(),
		Snapshot: res.Snapshot,
		Diff:     diff,
	})
}

func (s *Server) loadSession(r *http.Request) (*domain.PersistedSnapshot, error) {
	logic, err := s.Registry.Get(chi.URLParam(r, "machine"))
	if err != nil {
		return nil, err
	}
	sessionID := chi.URLParam(r, "session")
	snap, err := s.Sessions.Load(r.Context(), sessionID)
	if err != nil {
		return nil, err
	}
	// Sessions are keyed globally; a session of another machine is not visible here.
	if snap.LogicID != logic.LogicID() {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, sessionID)
	}
	return snap, nil
}

type errorBody struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	} else {
		s.logger.Debug("request rejected", "err", err, "status", status)
	}
	s.writeJSON(w, status, errorBody{Error: err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, registry.ErrNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrLogicMismatch), errors.Is(err, domain.ErrActorStopped):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}
