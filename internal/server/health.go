package server

import (
	"context"
	"net/http"
	"time"
)

// HealthStatus represents the overall health of the system
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single system component
type ComponentHealth struct {
	Status    string  `json:"status"`
	Message   string  `json:"message,omitempty"`
	LatencyMs float64 `json:"latency_ms,omitempty"`
}

// Health represents the complete health check response
type Health struct {
	Status     HealthStatus               `json:"status"`
	Timestamp  time.Time                  `json:"timestamp"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]ComponentHealth `json:"components"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	components := map[string]ComponentHealth{}
	overall := HealthStatusHealthy

	// Database
	start := time.Now()
	if err := s.db.PingContext(ctx); err != nil {
		components["database"] = ComponentHealth{Status: "down", Message: err.Error()}
		overall = HealthStatusUnhealthy
	} else {
		components["database"] = ComponentHealth{
			Status:    "up",
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
		}
	}

	// Content store: probe with a key that should not exist; any
	// non-error answer proves the store is reachable.
	start = time.Now()
	if _, err := s.store.Exists(ctx, "healthcheck-probe"); err != nil {
		components["content_store"] = ComponentHealth{Status: "down", Message: err.Error()}
		if overall == HealthStatusHealthy {
			overall = HealthStatusDegraded
		}
	} else {
		components["content_store"] = ComponentHealth{
			Status:    "up",
			LatencyMs: float64(time.Since(start).Microseconds()) / 1000,
		}
	}

	components["scanner_breaker"] = ComponentHealth{Status: s.scanBreaker.State().String()}
	components["store_breaker"] = ComponentHealth{Status: s.storeBreaker.State().String()}

	statusCode := http.StatusOK
	if overall == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, Health{
		Status:     overall,
		Timestamp:  time.Now().UTC(),
		Version:    s.cfg.Build.Version,
		Components: components,
	})
}

// handleReady is a fast readiness probe for load balancers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
