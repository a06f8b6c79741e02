package api

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/reflex-iq/internal/engine"
	"github.com/MJE43/reflex-iq/internal/store"
)

const healthCheckTimeout = 2 * time.Second

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheckResponse represents a comprehensive health check response
type HealthCheckResponse struct {
	Status        HealthStatus           `json:"status"`
	Timestamp     string                 `json:"timestamp"`
	EngineVersion string                 `json:"engine_version"`
	GitCommit     string                 `json:"git_commit,omitempty"`
	BuildTime     string                 `json:"build_time,omitempty"`
	Uptime        string                 `json:"uptime"`
	Started       string                 `json:"started"`
	Checks        map[string]HealthCheck `json:"checks"`
	System        SystemInfo             `json:"system"`
	RequestID     string                 `json:"request_id,omitempty"`
}

// HealthCheck represents an individual health check
type HealthCheck struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked string       `json:"last_checked"`
	Duration    string       `json:"duration,omitempty"`
}

// SystemInfo contains system information
type SystemInfo struct {
	GoVersion     string `json:"go_version"`
	NumGoroutines int    `json:"num_goroutines"`
	NumCPU        int    `json:"num_cpu"`
	GOMAXPROCS    int    `json:"gomaxprocs"`
	MemoryAlloc   string `json:"memory_alloc"`
	MemorySys     string `json:"memory_sys"`
	GCCycles      uint32 `json:"gc_cycles"`
}

// handleHealthCheck provides comprehensive health check endpoint
func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())
	start := time.Now()

	checks := map[string]HealthCheck{
		"kernel":   s.checkKernelHealth(),
		"prover":   s.checkProverHealth(r.Context()),
		"database": s.checkDatabaseHealth(r.Context()),
	}

	overallStatus := HealthStatusHealthy
	for _, c := range checks {
		switch {
		case c.Status == HealthStatusUnhealthy:
			overallStatus = HealthStatusUnhealthy
		case c.Status == HealthStatusDegraded && overallStatus == HealthStatusHealthy:
			overallStatus = HealthStatusDegraded
		}
	}

	response := HealthCheckResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		EngineVersion: EngineVersion,
		GitCommit:     GitCommit,
		BuildTime:     BuildTime,
		Uptime:        time.Since(s.startTime).Round(time.Second).String(),
		Started:       humanize.Time(s.startTime),
		Checks:        checks,
		System:        s.getSystemInfo(),
		RequestID:     requestID,
	}

	statusCode := http.StatusOK
	if overallStatus == HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	s.logger.Printf("health_check request_id=%s status=%s duration=%v", requestID, overallStatus, time.Since(start))
	s.writeJSON(w, statusCode, response)
}

// handleReadiness provides readiness probe endpoint
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	ready := true
	message := "Ready"

	if db := s.checkDatabaseHealth(r.Context()); db.Status != HealthStatusHealthy {
		ready = false
		message = db.Message
	}
	if s.prover == nil {
		ready = false
		message = "Prover not initialized"
	}

	statusCode := http.StatusOK
	if !ready {
		statusCode = http.StatusServiceUnavailable
	}
	s.writeJSON(w, statusCode, map[string]any{
		"ready":          ready,
		"message":        message,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

// handleLiveness provides liveness probe endpoint
func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"alive":          true,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
		"engine_version": EngineVersion,
		"uptime":         time.Since(s.startTime).Round(time.Second).String(),
		"request_id":     middleware.GetReqID(r.Context()),
	})
}

// checkKernelHealth scores a fixed session and compares the known result.
func (s *Server) checkKernelHealth() HealthCheck {
	start := time.Now()
	status := HealthStatusHealthy
	message := "Kernel scoring matches reference session"

	want := engine.GameResult{AvgReaction: 300, IQScore: 180, Consistency: 66, Rounds: 2}
	got := engine.Score(engine.GameInputs{ReactionTimes: []float32{200, 400}, TotalPerfects: 3})
	if got != want {
		status = HealthStatusUnhealthy
		message = fmt.Sprintf("Kernel returned %+v, expected %+v", got, want)
	}
	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// checkProverHealth proves and verifies an empty session.
func (s *Server) checkProverHealth(ctx context.Context) HealthCheck {
	start := time.Now()
	status := HealthStatusHealthy
	message := "Prover round trip healthy"

	if s.prover == nil {
		status = HealthStatusUnhealthy
		message = "Prover not initialized"
	} else if receipt, err := s.prover.Prove(ctx, engine.GameInputs{}); err != nil {
		status = HealthStatusUnhealthy
		message = fmt.Sprintf("Prove failed: %v", err)
	} else if _, err := s.verifier.Verify(receipt); err != nil {
		status = HealthStatusUnhealthy
		message = fmt.Sprintf("Verify failed: %v", err)
	}
	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// checkDatabaseHealth checks database connectivity
func (s *Server) checkDatabaseHealth(ctx context.Context) HealthCheck {
	start := time.Now()
	status := HealthStatusHealthy
	message := "Database connection healthy"

	if s.db == nil {
		status = HealthStatusUnhealthy
		message = "Database not initialized"
	} else {
		ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
		if _, err := s.db.ListSessions(ctx, store.SessionsQuery{Page: 1, PerPage: 1}); err != nil {
			status = HealthStatusUnhealthy
			message = fmt.Sprintf("Database query failed: %v", err)
		}
	}
	return HealthCheck{
		Status:      status,
		Message:     message,
		LastChecked: time.Now().UTC().Format(time.RFC3339),
		Duration:    time.Since(start).String(),
	}
}

// getSystemInfo collects system information
func (s *Server) getSystemInfo() SystemInfo {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SystemInfo{
		GoVersion:     runtime.Version(),
		NumGoroutines: runtime.NumGoroutine(),
		NumCPU:        runtime.NumCPU(),
		GOMAXPROCS:    runtime.GOMAXPROCS(0),
		MemoryAlloc:   humanize.Bytes(m.Alloc),
		MemorySys:     humanize.Bytes(m.Sys),
		GCCycles:      m.NumGC,
	}
}
