// Package sessionstest is a conformance suite for streaminghttp.Sessions
// implementations.
package sessionstest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mcp-obs/mcp-server-go/streaminghttp"
)

// Factory creates a new, empty Sessions for one test.
type Factory func(t *testing.T) streaminghttp.Sessions

// RunSessionsTests runs the suite against sessions built by factory.
func RunSessionsTests(t *testing.T, factory Factory) {
	t.Run("OpenThenLookup", func(t *testing.T) { testOpenThenLookup(t, factory) })
	t.Run("UnknownID", func(t *testing.T) { testUnknownID(t, factory) })
	t.Run("CloseForgets", func(t *testing.T) { testCloseForgets(t, factory) })
	t.Run("CloseUnknownIsNotAnError", func(t *testing.T) { testCloseUnknown(t, factory) })
	t.Run("DistinctIDs", func(t *testing.T) { testDistinctIDs(t, factory) })
	t.Run("ConcurrentOpen", func(t *testing.T) { testConcurrentOpen(t, factory) })
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func testOpenThenLookup(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := testContext(t)

	id, err := s.Open(ctx, "Bearer tok-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if id == "" {
		t.Fatal("expected non-empty session id")
	}
	info, ok := s.Lookup(ctx, id)
	if !ok {
		t.Fatalf("Lookup(%q) found nothing", id)
	}
	if info.ID != id || info.Authorization != "Bearer tok-1" {
		t.Fatalf("Lookup = %+v", info)
	}
}

func testUnknownID(t *testing.T, factory Factory) {
	s := factory(t)
	if _, ok := s.Lookup(testContext(t), "does-not-exist"); ok {
		t.Fatal("expected unknown id to be absent")
	}
}

func testCloseForgets(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := testContext(t)
	id, err := s.Open(ctx, "")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Close(ctx, id); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := s.Lookup(ctx, id); ok {
		t.Fatal("session still present after Close")
	}
}

func testCloseUnknown(t *testing.T, factory Factory) {
	s := factory(t)
	if err := s.Close(testContext(t), "does-not-exist"); err != nil {
		t.Fatalf("Close(unknown) = %v", err)
	}
}

func testDistinctIDs(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := testContext(t)
	a, err := s.Open(ctx, "Bearer a")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, err := s.Open(ctx, "Bearer b")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if a == b {
		t.Fatalf("both sessions got id %q", a)
	}
	ia, _ := s.Lookup(ctx, a)
	ib, _ := s.Lookup(ctx, b)
	if ia == nil || ib == nil || ia.Authorization != "Bearer a" || ib.Authorization != "Bearer b" {
		t.Fatalf("sessions not isolated: %+v %+v", ia, ib)
	}
}

func testConcurrentOpen(t *testing.T, factory Factory) {
	s := factory(t)
	ctx := testContext(t)

	const n = 20
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]bool, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Open(ctx, "Bearer x")
			if err != nil {
				t.Errorf("Open: %v", err)
				return
			}
			mu.Lock()
			ids[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != n {
		t.Fatalf("got %d distinct ids, want %d", len(ids), n)
	}
}
