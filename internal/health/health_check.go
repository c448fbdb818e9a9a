package health

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fastmem/fastmem/internal/service"
)

// Status of the store as a whole.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a health check
type CheckResult struct {
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HealthCheckConfig holds configuration for health checks
type HealthCheckConfig struct {
	MaxEntries     int
	MaxMemoryBytes int64
	Interval       time.Duration
	MaxGoroutines  int
}

// HealthChecker periodically inspects store utilization and reports
// liveness and readiness.
type HealthChecker struct {
	cfg         *HealthCheckConfig
	stats       func() service.Stats
	logger      *zap.Logger
	mu          sync.RWMutex
	lastCheck   time.Time
	status      Status
	checks      map[string]CheckResult
	readinessOK bool
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(cfg *HealthCheckConfig, stats func() service.Stats, logger *zap.Logger) *HealthChecker {
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Second
	}
	if cfg.MaxGoroutines <= 0 {
		cfg.MaxGoroutines = 10000
	}
	return &HealthChecker{
		cfg:         cfg,
		stats:       stats,
		logger:      logger,
		checks:      make(map[string]CheckResult),
		status:      StatusHealthy,
		readinessOK: true,
	}
}

// Start runs periodic health checks until ctx is canceled.
func (h *HealthChecker) Start(ctx context.Context) {
	ticker := time.NewTicker(h.cfg.Interval)
	defer ticker.Stop()

	h.runHealthChecks()

	for {
		select {
		case <-ticker.C:
			h.runHealthChecks()
		case <-ctx.Done():
			h.logger.Info("Health checker stopped")
			return
		}
	}
}

// runHealthChecks runs all health checks
func (h *HealthChecker) runHealthChecks() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastCheck = time.Now()

	checks := []func() CheckResult{
		h.checkCapacity,
		h.checkMemory,
		h.checkGoroutines,
	}

	allHealthy := true
	allReady := true
	for _, check := range checks {
		result := check()
		h.checks[result.Name] = result
		if result.Status != "healthy" {
			allHealthy = false
			if result.Status == "critical" {
				allReady = false
			}
		}
	}

	if !allHealthy {
		if !allReady {
			h.status = StatusUnhealthy
		} else {
			h.status = StatusDegraded
		}
	} else {
		h.status = StatusHealthy
	}
	h.readinessOK = allReady

	h.logger.Debug("Health check completed",
		zap.String("status", string(h.status)),
		zap.Bool("readiness", h.readinessOK))
}

// checkCapacity checks entry count against the configured ceiling.
func (h *HealthChecker) checkCapacity() CheckResult {
	now := time.Now()
	if h.cfg.MaxEntries <= 0 {
		return CheckResult{
			Name:      "capacity",
			Status:    "healthy",
			Message:   "No entry limit configured",
			Timestamp: now,
		}
	}

	stats := h.stats()
	usagePercent := float64(stats.Entries) / float64(h.cfg.MaxEntries) * 100

	if usagePercent >= 100 {
		return CheckResult{
			Name:      "capacity",
			Status:    "warning",
			Message:   fmt.Sprintf("Store at capacity: %d/%d entries, eviction active", stats.Entries, h.cfg.MaxEntries),
			Timestamp: now,
		}
	}
	return CheckResult{
		Name:      "capacity",
		Status:    "healthy",
		Message:   fmt.Sprintf("Entry usage: %.2f%% (%d/%d)", usagePercent, stats.Entries, h.cfg.MaxEntries),
		Timestamp: now,
	}
}

// checkMemory checks the store's memory estimate against its ceiling.
func (h *HealthChecker) checkMemory() CheckResult {
	now := time.Now()
	if h.cfg.MaxMemoryBytes <= 0 {
		return CheckResult{
			Name:      "memory",
			Status:    "healthy",
			Message:   "No memory limit configured",
			Timestamp: now,
		}
	}

	stats := h.stats()
	usagePercent := float64(stats.MemoryEstimateBytes) / float64(h.cfg.MaxMemoryBytes) * 100

	if usagePercent > 95 {
		return CheckResult{
			Name:      "memory",
			Status:    "critical",
			Message:   fmt.Sprintf("Memory usage critical: %.2f%%", usagePercent),
			Timestamp: now,
		}
	} else if usagePercent > 90 {
		return CheckResult{
			Name:      "memory",
			Status:    "warning",
			Message:   fmt.Sprintf("Memory usage high: %.2f%%", usagePercent),
			Timestamp: now,
		}
	}
	return CheckResult{
		Name:      "memory",
		Status:    "healthy",
		Message:   fmt.Sprintf("Memory usage: %.2f%% (%d bytes)", usagePercent, stats.MemoryEstimateBytes),
		Timestamp: now,
	}
}

// checkGoroutines guards against runaway goroutine growth, usually a
// sign of feed subscribers that were never closed.
func (h *HealthChecker) checkGoroutines() CheckResult {
	now := time.Now()
	n := runtime.NumGoroutine()
	if n > h.cfg.MaxGoroutines {
		return CheckResult{
			Name:      "goroutines",
			Status:    "warning",
			Message:   fmt.Sprintf("Goroutine count high: %d (limit %d)", n, h.cfg.MaxGoroutines),
			Timestamp: now,
		}
	}
	return CheckResult{
		Name:      "goroutines",
		Status:    "healthy",
		Message:   fmt.Sprintf("Goroutines: %d", n),
		Timestamp: now,
	}
}

// Status returns the overall status from the last check pass.
func (h *HealthChecker) Status() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

// Ready reports whether the store can serve traffic.
func (h *HealthChecker) Ready() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.readinessOK
}

// Checks returns a copy of the latest individual check results.
func (h *HealthChecker) Checks() map[string]CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make(map[string]CheckResult, len(h.checks))
	for k, v := range h.checks {
		out[k] = v
	}
	return out
}
