// Package handlers implements the HTTP endpoints of the serve command:
// health probes, version, and the read-only search API.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	apperrors "github.com/3leaps/gotrawl/internal/errors"
)

// checkTimeout bounds each individual health check.
const checkTimeout = 2 * time.Second

// Health status strings reported per check and overall.
const (
	statusHealthy   = "healthy"
	statusUnhealthy = "unhealthy"
	statusTimeout   = "timeout"
	statusDegraded  = "degraded"
)

// HealthChecker probes one dependency. Implementations must honor ctx.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the JSON body of a passing health probe.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthManager aggregates registered checkers into the health endpoints.
type HealthManager struct {
	version string

	mu       sync.RWMutex
	checkers map[string]HealthChecker
}

// NewHealthManager returns a manager reporting the given version.
func NewHealthManager(version string) *HealthManager {
	return &HealthManager{
		version:  version,
		checkers: make(map[string]HealthChecker),
	}
}

// RegisterChecker adds a named checker. Re-registering a name replaces it.
func (m *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers[name] = checker
}

// runChecks executes every checker under its own deadline.
func (m *HealthManager) runChecks(ctx context.Context) map[string]string {
	m.mu.RLock()
	checkers := make(map[string]HealthChecker, len(m.checkers))
	for name, c := range m.checkers {
		checkers[name] = c
	}
	m.mu.RUnlock()

	results := make(map[string]string, len(checkers))
	for name, checker := range checkers {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := checker.CheckHealth(checkCtx)
		cancel()

		switch {
		case err == nil:
			results[name] = statusHealthy
		case errors.Is(err, context.DeadlineExceeded):
			results[name] = statusTimeout
		default:
			results[name] = statusUnhealthy
		}
	}
	return results
}

// determineOverallStatus folds per-check results into one status. Any
// unhealthy check fails the probe; timeouts alone only degrade it.
func (m *HealthManager) determineOverallStatus(checks map[string]string) string {
	status := statusHealthy
	for _, s := range checks {
		switch s {
		case statusUnhealthy:
			return statusUnhealthy
		case statusTimeout:
			status = statusDegraded
		}
	}
	return status
}

// HealthHandler reports overall health: 200 with per-check statuses, or
// 503 with the failing checks in the error details.
func (m *HealthManager) HealthHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == statusUnhealthy {
		apperrors.ServiceUnavailable(w, r, "health checks failed", map[string]interface{}{
			"checks": checks,
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:  status,
		Version: m.version,
		Checks:  checks,
	})
}

// LivenessHandler reports process liveness. It never runs checkers: a
// live process that cannot reach a dependency is still live.
func (m *HealthManager) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "alive", Version: m.version})
}

// ReadinessHandler reports whether the process should receive traffic.
func (m *HealthManager) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	checks := m.runChecks(r.Context())
	status := m.determineOverallStatus(checks)

	if status == statusUnhealthy {
		apperrors.ServiceUnavailable(w, r, "not ready", map[string]interface{}{
			"checks": checks,
		})
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{Status: "ready", Version: m.version, Checks: checks})
}

// StartupHandler reports startup completion. The manager exists only
// after initialization finished, so reaching it means startup is done.
func (m *HealthManager) StartupHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "started", Version: m.version})
}

var (
	globalMu            sync.RWMutex
	globalHealthManager *HealthManager
)

// InitHealthManager installs the process-wide manager used by the
// package-level handlers.
func InitHealthManager(version string) *HealthManager {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalHealthManager = NewHealthManager(version)
	return globalHealthManager
}

// GetHealthManager returns the process-wide manager, or nil before
// InitHealthManager runs.
func GetHealthManager() *HealthManager {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalHealthManager
}

// HealthHandler serves /health through the process-wide manager.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	m := GetHealthManager()
	if m == nil {
		apperrors.ServiceUnavailable(w, r, "health manager not initialized", nil)
		return
	}
	m.HealthHandler(w, r)
}

// LivenessHandler serves /health/live through the process-wide manager.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	m := GetHealthManager()
	if m == nil {
		apperrors.ServiceUnavailable(w, r, "health manager not initialized", nil)
		return
	}
	m.LivenessHandler(w, r)
}

// ReadinessHandler serves /health/ready through the process-wide manager.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	m := GetHealthManager()
	if m == nil {
		apperrors.ServiceUnavailable(w, r, "health manager not initialized", nil)
		return
	}
	m.ReadinessHandler(w, r)
}

// StartupHandler serves /health/startup through the process-wide manager.
func StartupHandler(w http.ResponseWriter, r *http.Request) {
	m := GetHealthManager()
	if m == nil {
		apperrors.ServiceUnavailable(w, r, "health manager not initialized", nil)
		return
	}
	m.StartupHandler(w, r)
}

// writeJSON writes v with the given status. Encode failures are logged
// nowhere: the status line already went out and there is no recovery.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
