// Package circuitbreaker stops calling a collaborator that keeps failing and
// probes it again after a cooldown.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned without calling the collaborator while open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTooManyRequests is returned when every half-open probe slot is taken.
	ErrTooManyRequests = errors.New("too many requests in half-open state")
)

// Settings configures a CircuitBreaker. Zero values take the defaults noted
// on each field.
type Settings struct {
	Name string

	// MaxFailures consecutive failures open the breaker. Default 5.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing. Default 30s.
	Cooldown time.Duration

	// ProbeSuccesses successful probes close a half-open breaker. Default 1.
	ProbeSuccesses int

	// MaxProbes bounds concurrent calls while half-open. Default 1.
	MaxProbes int

	// OnStateChange is called under the breaker lock; keep it short.
	OnStateChange func(name string, from, to State)

	// Now is the clock. Default time.Now.
	Now func() time.Time
}

func (s Settings) withDefaults() Settings {
	if s.MaxFailures <= 0 {
		s.MaxFailures = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.ProbeSuccesses <= 0 {
		s.ProbeSuccesses = 1
	}
	if s.MaxProbes <= 0 {
		s.MaxProbes = 1
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return s
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	settings Settings

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probes    int
	openedAt  time.Time
}

// New creates a closed breaker.
func New(settings Settings) *CircuitBreaker {
	return &CircuitBreaker{settings: settings.withDefaults()}
}

// Execute calls fn unless the breaker is open. Errors caused by the caller's
// own context ending do not count against the collaborator.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := cb.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	if probe && cb.probes > 0 {
		cb.probes--
	}
	switch {
	case err == nil:
		cb.success()
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// caller gave up
	default:
		cb.failure()
	}
	return err
}

func (cb *CircuitBreaker) admit() (probe bool, err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.settings.Now().Sub(cb.openedAt) < cb.settings.Cooldown {
			return false, ErrCircuitOpen
		}
		cb.transition(StateHalfOpen)
	}
	if cb.state == StateHalfOpen {
		if cb.probes >= cb.settings.MaxProbes {
			return false, ErrTooManyRequests
		}
		cb.probes++
		return true, nil
	}
	return false, nil
}

func (cb *CircuitBreaker) success() {
	cb.failures = 0
	if cb.state != StateHalfOpen {
		return
	}
	cb.successes++
	if cb.successes >= cb.settings.ProbeSuccesses {
		cb.transition(StateClosed)
	}
}

func (cb *CircuitBreaker) failure() {
	cb.failures++
	if cb.state == StateHalfOpen || cb.failures >= cb.settings.MaxFailures {
		cb.openedAt = cb.settings.Now()
		cb.transition(StateOpen)
	}
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	cb.failures, cb.successes, cb.probes = 0, 0, 0
	if cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}

// State reports the current state. An open breaker whose cooldown has passed
// still reports open until the next call probes it.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// WebhookBreaker opens after five consecutive failed deliveries and probes
// the webhook again after thirty seconds.
func WebhookBreaker(onStateChange func(name string, from, to State)) *CircuitBreaker {
	return New(Settings{
		Name:          "notification-webhook",
		MaxFailures:   5,
		Cooldown:      30 * time.Second,
		OnStateChange: onStateChange,
	})
}
