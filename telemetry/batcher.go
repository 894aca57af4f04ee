package telemetry

import (
	"context"
	"sync"
	"time"
)

// Recorder accepts finished records.
type Recorder interface {
	Record(ctx context.Context, rec Record)
}

// RecorderFunc adapts a function to the Recorder interface.
type RecorderFunc func(ctx context.Context, rec Record)

func (f RecorderFunc) Record(ctx context.Context, rec Record) { f(ctx, rec) }

// BatchExporter is what a Batcher flushes into. *ResilientExporter
// satisfies it.
type BatchExporter interface {
	Export(ctx context.Context, batch []Record)
}

// BatcherOption configures a Batcher.
type BatcherOption func(*Batcher)

// WithBatchSize flushes once this many records are buffered. Default 512.
func WithBatchSize(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.size = n
		}
	}
}

// WithFlushInterval flushes buffered records at least this often. Default 5s.
func WithFlushInterval(d time.Duration) BatcherOption {
	return func(b *Batcher) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithMaxQueue caps buffered records; beyond it new records are dropped.
// Default 2048.
func WithMaxQueue(n int) BatcherOption {
	return func(b *Batcher) {
		if n > 0 {
			b.maxQueue = n
		}
	}
}

// WithBatcherMetrics counts dropped records on m.
func WithBatcherMetrics(m *Metrics) BatcherOption {
	return func(b *Batcher) { b.metrics = m }
}

// Batcher buffers records and hands them to an exporter from a single
// background goroutine, so Record never blocks on the network.
type Batcher struct {
	exp      BatchExporter
	size     int
	interval time.Duration
	maxQueue int
	metrics  *Metrics

	mu     sync.Mutex
	buf    []Record
	closed bool

	kick chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

var _ Recorder = (*Batcher)(nil)

// NewBatcher starts a batcher feeding exp. Call Close to flush and stop it.
func NewBatcher(exp BatchExporter, opts ...BatcherOption) *Batcher {
	b := &Batcher{
		exp:      exp,
		size:     512,
		interval: 5 * time.Second,
		maxQueue: 2048,
		kick:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.maxQueue < b.size {
		b.maxQueue = b.size
	}
	b.wg.Add(1)
	go b.loop()
	return b
}

// Record buffers rec. Records arriving after Close, or while the queue is
// full, are dropped.
func (b *Batcher) Record(_ context.Context, rec Record) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.metrics.recordDropped("closed", 1)
		return
	}
	if len(b.buf) >= b.maxQueue {
		b.mu.Unlock()
		b.metrics.recordDropped("queue_full", 1)
		return
	}
	b.buf = append(b.buf, rec)
	full := len(b.buf) >= b.size
	b.mu.Unlock()

	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of buffered records.
func (b *Batcher) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.buf)
}

func (b *Batcher) loop() {
	defer b.wg.Done()
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			b.flush()
		case <-b.kick:
			b.flush()
		case <-b.done:
			b.flush()
			return
		}
	}
}

// flush drains the buffer in batches of at most size records.
func (b *Batcher) flush() {
	for {
		b.mu.Lock()
		n := min(len(b.buf), b.size)
		if n == 0 {
			b.mu.Unlock()
			return
		}
		batch := make([]Record, n)
		copy(batch, b.buf[:n])
		b.buf = append(b.buf[:0], b.buf[n:]...)
		b.mu.Unlock()

		b.exp.Export(context.Background(), batch)
	}
}

// Close flushes buffered records and stops the background goroutine. It
// returns ctx's error if ctx ends before the final flush completes.
func (b *Batcher) Close(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()
	close(b.done)

	stopped := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BatchExporterFunc adapts a function to the BatchExporter interface.
type BatchExporterFunc func(ctx context.Context, batch []Record)

func (f BatchExporterFunc) Export(ctx context.Context, batch []Record) { f(ctx, batch) }
