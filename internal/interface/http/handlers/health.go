package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// HealthChecker reports the state of the service and its dependencies.
type HealthChecker interface {
	Check(ctx context.Context) Report
}

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// Pinger is satisfied by the Postgres connection and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping adapts a Pinger.
func Ping(p Pinger) CheckFunc { return p.Ping }

// Report is the /health body. Healthy is false when any check fails; Ready is
// false only when a critical one does, so a lost cache degrades the service
// without taking it out of rotation.
type Report struct {
	Healthy bool             `json:"healthy"`
	Ready   bool             `json:"ready"`
	Summary string           `json:"message"`
	Checks  map[string]Probe `json:"checks,omitempty"`
	Uptime  string           `json:"uptime"`
	Version string           `json:"version,omitempty"`
	At      time.Time        `json:"timestamp"`
}

// Probe is the outcome of one check.
type Probe struct {
	Healthy  bool   `json:"healthy"`
	Critical bool   `json:"critical"`
	Detail   string `json:"message"`
	Took     string `json:"duration"`
}

type check struct {
	name     string
	fn       CheckFunc
	critical bool
}

// Health runs registered checks concurrently, each under its own timeout.
type Health struct {
	version string
	started time.Time

	mu      sync.RWMutex
	checks  map[string]check
	timeout time.Duration
}

var _ HealthChecker = (*Health)(nil)

func NewHealth(version string) *Health {
	return &Health{
		version: version,
		started: time.Now(),
		checks:  make(map[string]check),
		timeout: 5 * time.Second,
	}
}

// SetTimeout bounds each check.
func (h *Health) SetTimeout(d time.Duration) {
	h.mu.Lock()
	h.timeout = d
	h.mu.Unlock()
}

// Critical registers a check whose failure makes the service not ready.
// Registering a name again replaces the check.
func (h *Health) Critical(name string, fn CheckFunc) { h.register(check{name, fn, true}) }

// Optional registers a check whose failure only marks the service unhealthy.
func (h *Health) Optional(name string, fn CheckFunc) { h.register(check{name, fn, false}) }

func (h *Health) register(c check) {
	h.mu.Lock()
	h.checks[c.name] = c
	h.mu.Unlock()
}

func (h *Health) Check(ctx context.Context) Report {
	h.mu.RLock()
	checks := make([]check, 0, len(h.checks))
	for _, c := range h.checks {
		checks = append(checks, c)
	}
	timeout := h.timeout
	h.mu.RUnlock()

	rep := Report{
		Healthy: true,
		Ready:   true,
		Uptime:  time.Since(h.started).Round(time.Second).String(),
		Version: h.version,
		At:      time.Now().UTC(),
	}
	if len(checks) == 0 {
		rep.Summary = "no health checks registered"
		return rep
	}

	probes := make([]Probe, len(checks))
	var wg sync.WaitGroup
	for i, c := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			probes[i] = run(ctx, c, timeout)
		}()
	}
	wg.Wait()

	rep.Checks = make(map[string]Probe, len(checks))
	var failing []string
	for i, p := range probes {
		rep.Checks[checks[i].name] = p
		if !p.Healthy {
			failing = append(failing, checks[i].name)
			rep.Healthy = false
			rep.Ready = rep.Ready && !p.Critical
		}
	}
	if rep.Healthy {
		rep.Summary = "all checks passed"
	} else {
		sort.Strings(failing)
		rep.Summary = "failing: " + strings.Join(failing, ", ")
	}
	return rep
}

func run(ctx context.Context, c check, timeout time.Duration) Probe {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	err := c.fn(ctx)
	p := Probe{
		Healthy:  err == nil,
		Critical: c.critical,
		Detail:   "OK",
		Took:     time.Since(start).Round(time.Millisecond).String(),
	}
	if err != nil {
		p.Detail = err.Error()
	}
	return p
}
