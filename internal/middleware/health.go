package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const (
	HealthHealthy   = "healthy"
	HealthDegraded  = "degraded"
	HealthUnhealthy = "unhealthy"

	defaultCheckTimeout = 2 * time.Second
)

// HealthChecker reports whether one dependency is usable.
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a plain function to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// PingDB checks a database handle.
func PingDB(db *sql.DB) HealthChecker { return CheckFunc(db.PingContext) }

// HealthCheck names one dependency. A failing optional check degrades
// /health but keeps it 200 and never fails /ready.
type HealthCheck struct {
	Name     string
	Checker  HealthChecker
	Optional bool
}

// Health runs the registered checks concurrently, each under its own timeout.
type Health struct {
	Checks  []HealthCheck
	Timeout time.Duration
}

// Add registers a check and returns h for chaining.
func (h *Health) Add(name string, c HealthChecker, optional bool) *Health {
	h.Checks = append(h.Checks, HealthCheck{Name: name, Checker: c, Optional: optional})
	return h
}

type HealthReport struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
}

type CheckResult struct {
	Status    string `json:"status"`
	Optional  bool   `json:"optional,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Run executes every check. Status is unhealthy when a required check
// failed, degraded when only optional ones did.
func (h *Health) Run(ctx context.Context) HealthReport {
	report := HealthReport{
		Status:    HealthHealthy,
		Timestamp: time.Now().UTC(),
		Checks:    make(map[string]CheckResult, len(h.Checks)),
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, c := range h.Checks {
		c := c // per-iteration copy for go < 1.22 loop semantics
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			err := c.Checker.Check(cctx)
			res := CheckResult{Status: HealthHealthy, Optional: c.Optional, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				res.Status = HealthUnhealthy
				res.Error = err.Error()
			}

			mu.Lock()
			defer mu.Unlock()
			report.Checks[c.Name] = res
			switch {
			case err == nil:
			case !c.Optional:
				report.Status = HealthUnhealthy
			case report.Status == HealthHealthy:
				report.Status = HealthDegraded
			}
			return nil
		})
	}
	_ = g.Wait()
	return report
}

// Handler serves the full report; only a required failure turns it 503.
func (h *Health) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := h.Run(r.Context())
		status := http.StatusOK
		if report.Status == HealthUnhealthy {
			status = http.StatusServiceUnavailable
		}
		writeHealth(w, status, report)
	}
}

// Readiness answers 503 while any required dependency is down.
func (h *Health) Readiness() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := h.Run(r.Context())
		var failing []string
		for name, res := range report.Checks {
			if res.Status != HealthHealthy && !res.Optional {
				failing = append(failing, name)
			}
		}
		sort.Strings(failing)

		body := map[string]any{"status": "ready", "timestamp": report.Timestamp}
		status := http.StatusOK
		if len(failing) > 0 {
			body["status"] = "not_ready"
			body["failing"] = failing
			status = http.StatusServiceUnavailable
		}
		writeHealth(w, status, body)
	}
}

// LivenessHandler only proves the process is serving.
func LivenessHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func writeHealth(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
