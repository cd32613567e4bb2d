// pkg/telemetry/telemetry.go
package telemetry

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	cerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkresource "go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	mu       sync.Mutex
	tracer   trace.Tracer = noop.NewTracerProvider().Tracer("diskstat")
	shutdown              = func(context.Context) error { return nil }
)

// Init configures OpenTelemetry. With an empty path spans are discarded;
// otherwise they are appended as JSON lines to path.
func Init(service, path string) error {
	mu.Lock()
	defer mu.Unlock()

	if path == "" {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		tracer = tp.Tracer(service)
		shutdown = func(context.Context) error { return nil }
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return cerr.Wrap(err, "failed to create telemetry directory")
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return cerr.Wrap(err, "failed to open telemetry file")
	}

	tp, err := newFileProvider(service, file)
	if err != nil {
		_ = file.Close()
		return err
	}

	otel.SetTracerProvider(tp)
	tracer = tp.Tracer(service)
	shutdown = func(ctx context.Context) error {
		err := tp.Shutdown(ctx)
		if closeErr := file.Close(); err == nil {
			err = closeErr
		}
		return err
	}
	return nil
}

func newFileProvider(service string, w io.Writer) (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithoutTimestamps(),
	)
	if err != nil {
		return nil, cerr.Wrap(err, "failed to create file exporter")
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exp),
		sdktrace.WithResource(
			sdkresource.NewWithAttributes(
				semconv.SchemaURL,
				semconv.ServiceName(service),
				attribute.String("host.name", hostname()),
			),
		),
	), nil
}

// Start a telemetry span with optional attributes.
func Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	mu.Lock()
	t := tracer
	mu.Unlock()
	return t.Start(ctx, name, trace.WithAttributes(attrs...))
}

// Shutdown flushes pending spans and closes the telemetry file.
func Shutdown(ctx context.Context) error {
	mu.Lock()
	fn := shutdown
	shutdown = func(context.Context) error { return nil }
	mu.Unlock()
	return fn(ctx)
}

func hostname() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "unknown"
}
