// Package breaker provides a three-state circuit breaker guarding calls to a
// single unreliable dependency.
package breaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without invoking the
// guarded function.
var ErrOpen = errors.New("breaker: circuit open")

// State represents the circuit breaker state.
type State int

const (
	Closed   State = iota // Calls pass through.
	Open                  // Calls rejected immediately.
	HalfOpen              // One trial call allowed to test recovery.
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Stats is a point-in-time snapshot of a breaker.
type Stats struct {
	Name        string
	State       State
	Failures    int
	LastFailure time.Time
}

// Breaker trips open after a run of consecutive failures and stays open for
// the reset timeout. The first call after the timeout is the single
// half-open trial; its outcome closes or re-opens the circuit.
type Breaker struct {
	mu            sync.Mutex
	name          string
	state         State
	failures      int
	lastFailure   time.Time
	trialInFlight bool

	threshold     int
	resetTimeout  time.Duration
	now           func() time.Time
	onStateChange func(name string, from, to State)
}

// Option configures a Breaker.
type Option func(*Breaker)

// WithFailureThreshold sets the consecutive failure count that opens the
// circuit. Default is 5.
func WithFailureThreshold(n int) Option {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithResetTimeout sets how long the circuit stays open before a trial call
// is admitted. Default is 60s.
func WithResetTimeout(d time.Duration) Option {
	return func(b *Breaker) {
		if d > 0 {
			b.resetTimeout = d
		}
	}
}

// WithClock sets a custom clock function (for testing).
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		if now != nil {
			b.now = now
		}
	}
}

// WithName names the breaker for logging and metrics.
func WithName(name string) Option {
	return func(b *Breaker) { b.name = name }
}

// WithOnStateChange registers a callback invoked after every transition.
// It runs outside the breaker lock.
func WithOnStateChange(fn func(name string, from, to State)) Option {
	return func(b *Breaker) { b.onStateChange = fn }
}

// New creates a closed breaker: 5 failures to open, 60s reset timeout.
func New(opts ...Option) *Breaker {
	b := &Breaker{
		state:        Closed,
		threshold:    5,
		resetTimeout: 60 * time.Second,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// Name returns the breaker's name.
func (b *Breaker) Name() string { return b.name }

// State returns the current state. It does not admit a trial, so an open
// breaker past its timeout still reports Open until the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Stats returns a snapshot of the breaker.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{Name: b.name, State: b.state, Failures: b.failures, LastFailure: b.lastFailure}
}

// Reset forces the breaker back to closed with zero failures.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = Closed
	b.failures = 0
	b.trialInFlight = false
	b.mu.Unlock()
	b.notify(from, Closed)
}

// Execute runs fn if the breaker admits the call and records its outcome.
// A rejected call returns ErrOpen. If ctx is already done, its error is
// returned and the breaker state is left untouched.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	trial, err := b.admit()
	if err != nil {
		return err
	}
	ok := false
	defer func() {
		// A panicking fn counts as a failure before the panic continues.
		if !ok {
			b.record(trial, false)
		}
	}()
	err = fn(ctx)
	ok = true
	b.record(trial, err == nil)
	return err
}

// Do is Execute for functions that produce a value.
func Do[T any](ctx context.Context, b *Breaker, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := b.Execute(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// admit decides whether a call may proceed and whether it is the half-open
// trial.
func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	var from State
	changed := false
	switch b.state {
	case Open:
		if b.now().Sub(b.lastFailure) <= b.resetTimeout {
			b.mu.Unlock()
			return false, ErrOpen
		}
		from, changed = b.state, true
		b.state = HalfOpen
		b.trialInFlight = true
		trial = true
	case HalfOpen:
		if b.trialInFlight {
			b.mu.Unlock()
			return false, ErrOpen
		}
		b.trialInFlight = true
		trial = true
	}
	b.mu.Unlock()
	if changed {
		b.notify(from, HalfOpen)
	}
	return trial, nil
}

func (b *Breaker) record(trial, success bool) {
	b.mu.Lock()
	from := b.state
	if trial {
		b.trialInFlight = false
	} else if b.state != Closed {
		// Admitted while closed, finished after the circuit tripped.
		b.mu.Unlock()
		return
	}
	if success {
		b.failures = 0
		if b.state == HalfOpen {
			b.state = Closed
		}
	} else {
		b.failures++
		b.lastFailure = b.now()
		switch b.state {
		case HalfOpen:
			b.state = Open
		case Closed:
			if b.failures >= b.threshold {
				b.state = Open
			}
		}
	}
	to := b.state
	b.mu.Unlock()
	if from != to {
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to State) {
	if b.onStateChange != nil && from != to {
		b.onStateChange(b.name, from, to)
	}
}
