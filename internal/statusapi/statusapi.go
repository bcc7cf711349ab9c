// Package statusapi serves a minimal read-only HTTP status/control
// surface for a long-running compile: GET /status, GET /phases, and
// POST /cancel. It is the control-plane endpoint a progress UI would
// poll, not the UI itself (per spec.md §1's Non-goals, which exclude a
// progress-bar UI from this repo's scope).
package statusapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// PhaseStatus is one compile phase's observed timing, as seen from the
// control plane rather than from telemetry.Sink's persisted rows.
type PhaseStatus struct {
	Index    int       `json:"index"`
	Name     string    `json:"name"`
	Started  time.Time `json:"started_at"`
	Finished time.Time `json:"finished_at,omitempty"`
	Done     bool      `json:"done"`
}

// State tracks one compile run's live progress. A caller (typically
// cmd/navcompile's orchestrator.ProgressFunc closure) calls BeginPhase
// and EndPhase as phases start and finish, and checks CancelRequested
// at each phase boundary, ORed with internal/telemetry.Sink.Aborted for
// the NATS transport.
type State struct {
	mu         sync.RWMutex
	phaseCount int
	phases     []PhaseStatus
	result     string
	finished   bool

	cancelRequested atomic.Bool
}

// NewState returns a fresh, unstarted State.
func NewState() *State {
	return &State{}
}

// BeginPhase records that phase index/count/name has started.
func (s *State) BeginPhase(index, count int, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phaseCount = count
	s.phases = append(s.phases, PhaseStatus{Index: index, Name: name, Started: time.Now()})
}

// EndPhase marks the most recently begun phase as finished.
func (s *State) EndPhase() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.phases) == 0 {
		return
	}
	p := &s.phases[len(s.phases)-1]
	p.Finished = time.Now()
	p.Done = true
}

// Finish records the compile's terminal result code.
func (s *State) Finish(resultCode string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finished = true
	s.result = resultCode
}

// RequestCancel flips the cooperative-cancellation flag a running
// compile's progress callback should check.
func (s *State) RequestCancel() {
	s.cancelRequested.Store(true)
}

// CancelRequested reports whether RequestCancel has been called.
func (s *State) CancelRequested() bool {
	return s.cancelRequested.Load()
}

// StatusResponse is the JSON body GET /status returns.
type StatusResponse struct {
	PhaseCount     int    `json:"phase_count"`
	PhasesRun      int    `json:"phases_run"`
	CurrentPhase   string `json:"current_phase,omitempty"`
	Finished       bool   `json:"finished"`
	Result         string `json:"result,omitempty"`
	CancelRequested bool  `json:"cancel_requested"`
}

func (s *State) snapshot() StatusResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := StatusResponse{
		PhaseCount:      s.phaseCount,
		PhasesRun:       len(s.phases),
		Finished:        s.finished,
		Result:          s.result,
		CancelRequested: s.cancelRequested.Load(),
	}
	if n := len(s.phases); n > 0 && !s.phases[n-1].Done {
		resp.CurrentPhase = s.phases[n-1].Name
	}
	return resp
}

func (s *State) phaseList() []PhaseStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PhaseStatus, len(s.phases))
	copy(out, s.phases)
	return out
}

// Config holds the server's listen port and optional API-key auth for
// the mutating /cancel endpoint.
type Config struct {
	Port    int
	APIKeys []string // when non-empty, POST /cancel requires one of these keys.
}

// Server exposes one State over HTTP.
type Server struct {
	state   *State
	port    int
	apiKeys map[string]bool
}

// NewServer builds a Server for state.
func NewServer(state *State, cfg Config) *Server {
	keys := make(map[string]bool, len(cfg.APIKeys))
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	return &Server{state: state, port: cfg.Port, apiKeys: keys}
}

// Router returns the configured chi router, for embedding inside
// another server's mux rather than listening standalone.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/status", s.handleStatus)
	r.Get("/phases", s.handlePhases)
	r.With(s.authMiddleware).Post("/cancel", s.handleCancel)

	return r
}

// Run starts a standalone HTTP listener for Router.
func (s *Server) Run() error {
	addr := fmt.Sprintf(":%d", s.port)
	return http.ListenAndServe(addr, s.Router())
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.apiKeys) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("X-API-Key")
		if key == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimPrefix(auth, "Bearer ")
			}
		}
		if key == "" || !s.apiKeys[key] {
			writeError(w, http.StatusUnauthorized, "valid API key required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.snapshot())
}

func (s *Server) handlePhases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state.phaseList())
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.state.RequestCancel()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancel requested"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
