package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Probe reports whether a dependency is usable.
type Probe func(ctx context.Context) error

// Check is one readiness dependency. A failing required check makes the
// service unready; a failing optional one only degrades it.
type Check struct {
	Name     string
	Required bool
	Probe    Probe
}

type CheckResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMs int64  `json:"latency_ms"`
}

type HealthReport struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Checks    map[string]CheckResult `json:"checks"`
	Timestamp string                 `json:"timestamp"`
}

type HealthChecker struct {
	checks  []Check
	version string
	timeout time.Duration
}

func NewHealthChecker(version string, checks ...Check) *HealthChecker {
	return &HealthChecker{checks: checks, version: version, timeout: 2 * time.Second}
}

// Healthz is the liveness probe. It never touches dependencies.
func (h *HealthChecker) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz runs every check concurrently, each under its own timeout.
func (h *HealthChecker) Readyz(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "shutting_down"})
		return
	default:
	}

	results := make(map[string]CheckResult, len(h.checks))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, check := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := h.run(r.Context(), check)
			mu.Lock()
			results[check.Name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()

	overall := "healthy"
	status := http.StatusOK
	for _, check := range h.checks {
		if results[check.Name].Status == "pass" {
			continue
		}
		if check.Required {
			overall = "unhealthy"
			status = http.StatusServiceUnavailable
			break
		}
		overall = "degraded"
	}

	writeJSON(w, status, HealthReport{
		Status:    overall,
		Version:   h.version,
		Checks:    results,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *HealthChecker) run(ctx context.Context, check Check) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	start := time.Now()
	err := check.Probe(ctx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		status := "warn"
		if check.Required {
			status = "fail"
		}
		return CheckResult{Status: status, Message: err.Error(), LatencyMs: latency}
	}
	return CheckResult{Status: "pass", LatencyMs: latency}
}
