// Package health aggregates readiness of the indexer's shards and of the
// services it leans on. Each index shard reports its committed version and
// document counts; Redis and PostgreSQL report reachability. A check that
// overruns its deadline counts as down so one wedged shard cannot stall the
// readiness probe.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status represents the health state of a component or the system overall.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// DefaultCheckTimeout bounds a single check.
const DefaultCheckTimeout = 2 * time.Second

// Check probes one shard or dependency.
type Check func(ctx context.Context) ComponentHealth

// ComponentHealth is the result of one check. Details carries structured
// state such as a shard's segment count.
type ComponentHealth struct {
	Status  Status         `json:"status"`
	Message string         `json:"message,omitempty"`
	Details map[string]any `json:"details,omitempty"`
	Latency string         `json:"latency,omitempty"`
}

type Report struct {
	Status     Status                     `json:"status"`
	Components map[string]ComponentHealth `json:"components"`
	Timestamp  string                     `json:"timestamp"`
}

// PingCheck adapts a ping function into a Check that reports the component
// down when ping fails.
func PingCheck(ping func(ctx context.Context) error) Check {
	return func(ctx context.Context) ComponentHealth {
		if err := ping(ctx); err != nil {
			return ComponentHealth{Status: StatusDown, Message: err.Error()}
		}
		return ComponentHealth{Status: StatusUp}
	}
}

// Checker runs registered checks concurrently.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]Check
	timeout time.Duration
	last    Status
	logger  *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithCheckTimeout sets the deadline of each check.
func WithCheckTimeout(d time.Duration) Option {
	return func(c *Checker) { c.timeout = d }
}

func NewChecker(opts ...Option) *Checker {
	c := &Checker{
		checks:  make(map[string]Check),
		timeout: DefaultCheckTimeout,
		logger:  slog.Default().With("component", "health"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Register adds a named check, replacing any check of the same name.
func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = check
}

// Run executes all checks and returns the aggregate. The overall status is
// the worst component status. Changes of the overall status are logged.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	checks := make(map[string]Check, len(c.checks))
	for name, check := range c.checks {
		checks[name] = check
	}
	c.mu.RUnlock()

	report := Report{
		Status:     StatusUp,
		Components: make(map[string]ComponentHealth, len(checks)),
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
	var mu sync.Mutex
	var g errgroup.Group
	for name, check := range checks {
		g.Go(func() error {
			result := c.runOne(ctx, check)
			mu.Lock()
			report.Components[name] = result
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	for _, comp := range report.Components {
		if comp.Status == StatusDown {
			report.Status = StatusDown
			break
		}
		if comp.Status == StatusDegraded {
			report.Status = StatusDegraded
		}
	}
	c.observe(report)
	return report
}

func (c *Checker) runOne(ctx context.Context, check Check) ComponentHealth {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	done := make(chan ComponentHealth, 1)
	go func() { done <- check(ctx) }()

	var result ComponentHealth
	select {
	case result = <-done:
	case <-ctx.Done():
		result = ComponentHealth{Status: StatusDown, Message: fmt.Sprintf("check timed out after %v", c.timeout)}
	}
	result.Latency = time.Since(start).Round(time.Millisecond).String()
	return result
}

func (c *Checker) observe(report Report) {
	c.mu.Lock()
	prev := c.last
	c.last = report.Status
	c.mu.Unlock()
	if prev == report.Status {
		return
	}
	attrs := []any{"from", string(prev), "to", string(report.Status)}
	for name, comp := range report.Components {
		if comp.Status != StatusUp {
			attrs = append(attrs, name, comp.Message)
		}
	}
	if report.Status == StatusUp {
		c.logger.Info("health status changed", attrs...)
	} else {
		c.logger.Warn("health status changed", attrs...)
	}
}

// LiveHandler answers liveness probes; the process is alive while it serves.
func (c *Checker) LiveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "alive"})
	}
}

// ReadyHandler answers readiness probes with the full Report; anything but
// up is 503.
func (c *Checker) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := c.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if report.Status == StatusUp {
			w.WriteHeader(http.StatusOK)
		} else {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	}
}
