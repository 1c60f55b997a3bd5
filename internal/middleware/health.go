package middleware

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

const defaultCheckTimeout = 5 * time.Second

// HealthChecker defines interface for health checking
type HealthChecker interface {
	Check(ctx context.Context) error
}

// CheckFunc adapts a ping function (redis, minio) to HealthChecker.
type CheckFunc func(ctx context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// DatabaseHealthChecker pings the history database
type DatabaseHealthChecker struct {
	DB *sql.DB
}

func (d *DatabaseHealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return d.DB.PingContext(ctx)
}

type HealthStatus struct {
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Sessions  int                    `json:"sessions"`
	Checks    map[string]CheckStatus `json:"checks"`
}

type CheckStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// ReadyStatus is the body of the readiness endpoint.
type ReadyStatus struct {
	Status   string   `json:"status"`
	Sessions int      `json:"sessions"`
	Failing  []string `json:"failing,omitempty"`
}

// Monitor holds what the health endpoints look at. Sessions and Draining may
// be nil.
type Monitor struct {
	Checkers map[string]HealthChecker
	Sessions func() int
	// Draining reports true once shutdown has started.
	Draining func() bool
	Timeout  time.Duration
}

// Health runs every checker; any failure turns the response into 503.
func (m Monitor) Health(w http.ResponseWriter, r *http.Request) {
	checks, ok := m.run(r.Context())
	health := HealthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Sessions:  m.sessions(),
		Checks:    checks,
	}
	statusCode := http.StatusOK
	if !ok {
		health.Status = "unhealthy"
		statusCode = http.StatusServiceUnavailable
	}
	writeHealth(w, statusCode, health)
}

// Ready says whether new sessions should be routed here: not while
// draining, and not while a dependency is down.
func (m Monitor) Ready(w http.ResponseWriter, r *http.Request) {
	status := ReadyStatus{Status: "ready", Sessions: m.sessions()}
	if m.Draining != nil && m.Draining() {
		status.Status = "draining"
		writeHealth(w, http.StatusServiceUnavailable, status)
		return
	}

	checks, ok := m.run(r.Context())
	if !ok {
		for name, c := range checks {
			if c.Status != "healthy" {
				status.Failing = append(status.Failing, name)
			}
		}
		sort.Strings(status.Failing)
		status.Status = "not ready"
		writeHealth(w, http.StatusServiceUnavailable, status)
		return
	}
	writeHealth(w, http.StatusOK, status)
}

// Live only proves the process is serving.
func Live(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (m Monitor) run(ctx context.Context) (map[string]CheckStatus, bool) {
	timeout := m.Timeout
	if timeout <= 0 {
		timeout = defaultCheckTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok := true
	checks := make(map[string]CheckStatus, len(m.Checkers))
	for name, checker := range m.Checkers {
		if err := checker.Check(ctx); err != nil {
			ok = false
			checks[name] = CheckStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		checks[name] = CheckStatus{Status: "healthy"}
	}
	return checks, ok
}

func (m Monitor) sessions() int {
	if m.Sessions == nil {
		return 0
	}
	return m.Sessions()
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
