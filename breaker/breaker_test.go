package breaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var errBoom = errors.New("boom")

type counted struct {
	calls atomic.Int64
	err   error
}

func (c *counted) call(context.Context) error {
	c.calls.Add(1)
	return c.err
}

func tripped(t *testing.T, clk *fakeClock, dep *counted) *Breaker {
	t.Helper()
	b := New(WithFailureThreshold(3), WithResetTimeout(time.Minute), WithClock(clk.Now))
	for i := 0; i < 3; i++ {
		if err := b.Execute(context.Background(), dep.call); !errors.Is(err, errBoom) {
			t.Fatalf("call %d: want errBoom, got %v", i, err)
		}
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}
	return b
}

func TestOpensAfterThreshold(t *testing.T) {
	clk := newFakeClock()
	dep := &counted{err: errBoom}
	b := tripped(t, clk, dep)

	before := dep.calls.Load()
	if err := b.Execute(context.Background(), dep.call); !errors.Is(err, ErrOpen) {
		t.Fatalf("want ErrOpen, got %v", err)
	}
	if dep.calls.Load() != before {
		t.Fatalf("dependency invoked while open")
	}
	if s := b.Stats(); s.Failures != 3 || !s.LastFailure.Equal(clk.Now()) {
		t.Fatalf("stats = %+v", s)
	}
}

func TestSuccessResetsConsecutiveCount(t *testing.T) {
	b := New(WithFailureThreshold(2))
	ctx := context.Background()
	_ = b.Execute(ctx, func(context.Context) error { return errBoom })
	_ = b.Execute(ctx, func(context.Context) error { return nil })
	_ = b.Execute(ctx, func(context.Context) error { return errBoom })
	if b.State() != Closed {
		t.Fatalf("non-consecutive failures opened the circuit")
	}
}

func TestStaysOpenUntilTimeoutElapses(t *testing.T) {
	clk := newFakeClock()
	dep := &counted{err: errBoom}
	b := tripped(t, clk, dep)

	// Exactly the timeout is not enough; it must be exceeded.
	clk.Advance(time.Minute)
	if err := b.Execute(context.Background(), dep.call); !errors.Is(err, ErrOpen) {
		t.Fatalf("want ErrOpen at the boundary, got %v", err)
	}
}

func TestHalfOpenSuccessCloses(t *testing.T) {
	clk := newFakeClock()
	dep := &counted{err: errBoom}
	b := tripped(t, clk, dep)

	clk.Advance(time.Minute + time.Second)
	dep.err = nil
	before := dep.calls.Load()
	if err := b.Execute(context.Background(), dep.call); err != nil {
		t.Fatalf("trial call: %v", err)
	}
	if dep.calls.Load() != before+1 {
		t.Fatalf("trial did not reach the dependency")
	}
	if s := b.Stats(); s.State != Closed || s.Failures != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	clk := newFakeClock()
	dep := &counted{err: errBoom}
	b := tripped(t, clk, dep)

	clk.Advance(2 * time.Minute)
	if err := b.Execute(context.Background(), dep.call); !errors.Is(err, errBoom) {
		t.Fatalf("want errBoom, got %v", err)
	}
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}
	if !b.Stats().LastFailure.Equal(clk.Now()) {
		t.Fatalf("failure timer not reset")
	}

	// Timer restarted: still open shortly after.
	clk.Advance(time.Second)
	if err := b.Execute(context.Background(), dep.call); !errors.Is(err, ErrOpen) {
		t.Fatalf("want ErrOpen, got %v", err)
	}
}

func TestHalfOpenAdmitsSingleTrial(t *testing.T) {
	clk := newFakeClock()
	dep := &counted{err: errBoom}
	b := tripped(t, clk, dep)
	clk.Advance(2 * time.Minute)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(context.Background(), func(context.Context) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want half_open", b.State())
	}
	var wg sync.WaitGroup
	var rejected atomic.Int64
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := b.Execute(context.Background(), dep.call); errors.Is(err, ErrOpen) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()
	if rejected.Load() != 8 {
		t.Fatalf("rejected = %d, want 8", rejected.Load())
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("trial: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("state = %v, want closed", b.State())
	}
}

func TestCancelledContextLeavesStateAlone(t *testing.T) {
	dep := &counted{err: errBoom}
	b := New(WithFailureThreshold(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Execute(ctx, dep.call); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if dep.calls.Load() != 0 || b.State() != Closed || b.Stats().Failures != 0 {
		t.Fatalf("cancelled call touched the breaker")
	}
}

func TestPanicCountsAsFailure(t *testing.T) {
	b := New(WithFailureThreshold(1))
	func() {
		defer func() { _ = recover() }()
		_ = b.Execute(context.Background(), func(context.Context) error { panic("sink exploded") })
	}()
	if b.State() != Open {
		t.Fatalf("state = %v, want open", b.State())
	}
}

func TestDo(t *testing.T) {
	b := New()
	got, err := Do(context.Background(), b, func(context.Context) (int, error) { return 42, nil })
	if err != nil || got != 42 {
		t.Fatalf("got %d, %v", got, err)
	}
	got, err = Do(context.Background(), b, func(context.Context) (int, error) { return 7, errBoom })
	if !errors.Is(err, errBoom) || got != 0 {
		t.Fatalf("got %d, %v", got, err)
	}
}

func TestOnStateChangeAndReset(t *testing.T) {
	clk := newFakeClock()
	var mu sync.Mutex
	var transitions []string
	b := New(
		WithName("collector"),
		WithFailureThreshold(1),
		WithResetTimeout(time.Second),
		WithClock(clk.Now),
		WithOnStateChange(func(name string, from, to State) {
			mu.Lock()
			defer mu.Unlock()
			transitions = append(transitions, name+":"+from.String()+"->"+to.String())
		}),
	)
	ctx := context.Background()
	_ = b.Execute(ctx, func(context.Context) error { return errBoom })
	clk.Advance(2 * time.Second)
	_ = b.Execute(ctx, func(context.Context) error { return errBoom })
	b.Reset()

	want := []string{
		"collector:closed->open",
		"collector:open->half_open",
		"collector:half_open->open",
		"collector:open->closed",
	}
	mu.Lock()
	defer mu.Unlock()
	if len(transitions) != len(want) {
		t.Fatalf("transitions = %v", transitions)
	}
	for i := range want {
		if transitions[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", transitions, want)
		}
	}
	if b.State() != Closed || b.Stats().Failures != 0 {
		t.Fatalf("reset did not close the breaker")
	}
}

func TestConcurrentUse(t *testing.T) {
	b := New(WithFailureThreshold(1000))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = b.Execute(context.Background(), func(context.Context) error {
				if i%2 == 0 {
					return errBoom
				}
				return nil
			})
			_ = b.Stats()
		}(i)
	}
	wg.Wait()
	if b.State() != Closed {
		t.Fatalf("state = %v", b.State())
	}
}
