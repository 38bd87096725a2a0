package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// HealthChecker is implemented by components that can report their health.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// HealthResponse is the aggregate health body.
type HealthResponse struct {
	Status    string            `json:"status"`
	Version   string            `json:"version"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthManager runs registered health checks.
type HealthManager struct {
	mu       sync.RWMutex
	checkers map[string]HealthChecker
	version  string
}

var healthManager = &HealthManager{checkers: make(map[string]HealthChecker)}

// InitHealthManager stamps the health responses with the build version.
func InitHealthManager(version string) {
	healthManager.mu.Lock()
	healthManager.version = version
	healthManager.mu.Unlock()
}

// GetHealthManager returns the process-wide health manager.
func GetHealthManager() *HealthManager {
	return healthManager
}

// RegisterChecker registers a named health checker.
func (hm *HealthManager) RegisterChecker(name string, checker HealthChecker) {
	hm.mu.Lock()
	hm.checkers[name] = checker
	hm.mu.Unlock()
}

func (hm *HealthManager) run(ctx context.Context) (string, map[string]string) {
	hm.mu.RLock()
	checkers := make(map[string]HealthChecker, len(hm.checkers))
	for name, checker := range hm.checkers {
		checkers[name] = checker
	}
	hm.mu.RUnlock()

	status := "healthy"
	checks := make(map[string]string, len(checkers))
	for name, checker := range checkers {
		if err := checker.CheckHealth(ctx); err != nil {
			checks[name] = "unhealthy"
			status = "unhealthy"
		} else {
			checks[name] = "healthy"
		}
	}
	return status, checks
}

// HealthHandler reports aggregate health across registered checkers.
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	healthManager.mu.RLock()
	version := healthManager.version
	healthManager.mu.RUnlock()

	status, checks := healthManager.run(ctx)
	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, HealthResponse{
		Status:    status,
		Version:   version,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	})
}

// LivenessHandler reports that the process is up.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "alive",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ReadinessHandler reports whether the service can take traffic.
func ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	HealthHandler(w, r)
}
