// Package health provides periodic health checks with auto-recovery.
package health

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/touchsync/touchsync/internal/infra/metrics"
)

// Pinger is anything that can report its own liveness, e.g. a domain.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Check defines a single health check with optional recovery action.
type Check struct {
	Name      string
	CheckFn   func(ctx context.Context) error
	RecoverFn func(ctx context.Context) error
}

// Status represents the result of a health check.
type Status struct {
	Name      string    `json:"name"`
	Healthy   bool      `json:"healthy"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Checker runs periodic health checks with auto-recovery.
type Checker struct {
	mu       sync.RWMutex
	checks   []Check
	statuses []Status
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger
}

// NewChecker creates a checker for the store and, when dataDir is set, the
// directory the store writes to.
func NewChecker(store Pinger, dataDir string, interval time.Duration, logger *zap.Logger) *Checker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	checks := []Check{
		{
			Name:    "store",
			CheckFn: store.Ping,
		},
	}
	if dataDir != "" {
		checks = append(checks, Check{
			Name: "data_dir",
			CheckFn: func(ctx context.Context) error {
				return checkDataDir(dataDir)
			},
			RecoverFn: func(ctx context.Context) error {
				return os.MkdirAll(dataDir, 0700)
			},
		})
	}
	return &Checker{
		checks:   checks,
		interval: interval,
		timeout:  5 * time.Second,
		log:      logger.Named("health"),
	}
}

// Add registers an extra check. Call before Run.
func (c *Checker) Add(check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// Run starts the health check loop. Call in a goroutine.
func (c *Checker) Run(ctx context.Context) {
	c.RunOnce(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RunOnce(ctx)
		}
	}
}

// RunOnce runs every check once and records the results.
func (c *Checker) RunOnce(ctx context.Context) {
	c.mu.RLock()
	checks := append([]Check(nil), c.checks...)
	c.mu.RUnlock()

	statuses := make([]Status, len(checks))
	for i, check := range checks {
		statuses[i] = c.run(ctx, check)
	}

	c.mu.Lock()
	c.statuses = statuses
	c.mu.Unlock()
}

func (c *Checker) run(ctx context.Context, check Check) Status {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	s := Status{Name: check.Name, Healthy: true, CheckedAt: time.Now()}
	err := check.CheckFn(ctx)
	if err == nil {
		metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(1)
		return s
	}

	s.Healthy = false
	s.Error = err.Error()
	metrics.HealthCheckStatus.WithLabelValues(check.Name).Set(0)
	c.log.Warn("health check failed", zap.String("check", check.Name), zap.Error(err))

	if check.RecoverFn != nil {
		metrics.HealthRecoveries.WithLabelValues(check.Name).Inc()
		if rerr := check.RecoverFn(ctx); rerr != nil {
			c.log.Error("recovery failed", zap.String("check", check.Name), zap.Error(rerr))
		}
	}
	return s
}

// Statuses returns the latest health check results.
func (c *Checker) Statuses() []Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	result := make([]Status, len(c.statuses))
	copy(result, c.statuses)
	return result
}

// IsHealthy returns true if all checks pass.
func (c *Checker) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.statuses {
		if !s.Healthy {
			return false
		}
	}
	return true
}

// ─── Check Implementations ──────────────────────────────────────────────────

func checkDataDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("check data dir: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("data path %s is not a directory", dir)
	}
	return nil
}
