package telemetry

import "context"

// Sink delivers a batch of records somewhere. Implementations report any
// delivery problem as an error; the ResilientExporter decides what to do
// with it.
type Sink interface {
	Export(ctx context.Context, recs []Record) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, recs []Record) error

func (f SinkFunc) Export(ctx context.Context, recs []Record) error { return f(ctx, recs) }

// shutdowner is implemented by sinks holding resources.
type shutdowner interface {
	Shutdown(ctx context.Context) error
}
