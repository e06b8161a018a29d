package observe

import (
	"context"
	"io"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("scribe")

// Observer bundles the structured logger and the tracer every component
// reports through.
type Observer struct {
	log *bolt.Logger
}

// New creates an Observer writing human readable lines to out.
// Unless verbose is set only warnings and errors are emitted.
func New(out io.Writer, verbose bool) *Observer {
	return withLevel(bolt.New(bolt.NewConsoleHandler(out)), verbose)
}

// NewJSON creates an Observer emitting one JSON object per line, for CI and
// machine consumption.
func NewJSON(out io.Writer, verbose bool) *Observer {
	return withLevel(bolt.New(bolt.NewJSONHandler(out)), verbose)
}

// Nop returns an Observer that drops every log line.
func Nop() *Observer {
	return withLevel(bolt.New(bolt.NewJSONHandler(io.Discard)), false)
}

func withLevel(l *bolt.Logger, verbose bool) *Observer {
	if !verbose {
		l.SetLevel(bolt.WARN)
	}
	return &Observer{log: l}
}

// Log returns the underlying logger.
func (o *Observer) Log() *bolt.Logger {
	return o.log
}

// StartSpan starts a span named name carrying the given string attributes as
// key/value pairs.
func (o *Observer) StartSpan(ctx context.Context, name string, kv ...string) (context.Context, trace.Span) {
	var attrs []attribute.KeyValue
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Close flushes buffered output. Both handlers write synchronously, so there
// is nothing to flush yet.
func (o *Observer) Close() error {
	return nil
}

// OrNop returns o, or a discarding Observer when o is nil.
func OrNop(o *Observer) *Observer {
	if o == nil {
		return Nop()
	}
	return o
}
