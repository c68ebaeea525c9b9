// Package health provides liveness, readiness, and status probes. Dependency
// checks are registered by the binary that owns the dependency handles.
package health

import (
	"encoding/json"
	"maps"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
)

// Version is set at build time via ldflags.
var Version = "dev"

// CheckFunc probes one dependency. It returns nil when the dependency is
// usable, or an error describing the outage.
type CheckFunc func() error

// Handler serves the probe endpoints.
type Handler struct {
	startTime time.Time
	storage   string

	mu     sync.RWMutex
	checks map[string]CheckFunc
}

// New creates a health handler. storage names the persistence mode the
// process runs with ("postgres" or "memory") so probes can report it.
func New(storage string) *Handler {
	return &Handler{
		startTime: time.Now(),
		storage:   storage,
		checks:    make(map[string]CheckFunc),
	}
}

// RegisterCheck adds a named dependency check for the readiness probe.
func (h *Handler) RegisterCheck(name string, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = check
}

// Register mounts the probe routes. /healthz is the liveness alias load
// balancers are usually pointed at.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.HandleLiveness)
	r.Get("/health", h.HandleStatus)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}

// HandleLiveness answers 200 whenever the process is up.
func (h *Handler) HandleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeJSONBody(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ReadinessResponse reports the outcome of every registered check.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleReadiness runs all registered checks and answers 503 if any fail.
func (h *Handler) HandleReadiness(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	checks := make(map[string]CheckFunc, len(h.checks))
	maps.Copy(checks, h.checks)
	h.mu.RUnlock()

	response := ReadinessResponse{
		Status: "ready",
		Checks: make(map[string]string),
	}

	ready := true
	for name, check := range checks {
		if err := check(); err != nil {
			response.Checks[name] = "down: " + err.Error()
			ready = false
		} else {
			response.Checks[name] = "up"
		}
	}

	if !ready {
		response.Status = "not_ready"
		writeJSONBody(w, http.StatusServiceUnavailable, response)
		return
	}
	writeJSONBody(w, http.StatusOK, response)
}

// StatusResponse carries build and uptime information for operators.
type StatusResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Storage       string `json:"storage"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Timestamp     string `json:"timestamp"`
}

// HandleStatus reports version, storage mode, and uptime.
func (h *Handler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSONBody(w, http.StatusOK, StatusResponse{
		Status:        "healthy",
		Version:       Version,
		Storage:       h.storage,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSONBody(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
