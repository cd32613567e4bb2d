// pkg/ds_io/context.go

package ds_io

import (
	"context"
	"os"
	"os/user"
	"runtime"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_err"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Version is stamped into telemetry; set at build time via ldflags.
var Version = "dev"

type RuntimeContext struct {
	Ctx        context.Context
	Log        *zap.Logger
	Timestamp  time.Time
	Span       trace.Span
	Command    string
	TraceID    string
	Attributes map[string]string
}

// NewContext sets up tracing and a logger scoped to the command.
func NewContext(parent context.Context, cmdName string) *RuntimeContext {
	ctx, span := telemetry.Start(parent, cmdName)

	traceID := logger.GenerateTraceID()
	if sc := span.SpanContext(); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}

	log := zap.L().With(
		zap.String("command", cmdName),
		zap.String("trace_id", traceID),
	).Named(cmdName)

	return &RuntimeContext{
		Ctx:        ctx,
		Span:       span,
		Log:        log,
		Timestamp:  time.Now(),
		Command:    cmdName,
		TraceID:    traceID,
		Attributes: make(map[string]string),
	}
}

// HandlePanic recovers panics, logs them, and converts to an error.
func (rc *RuntimeContext) HandlePanic(errPtr *error) {
	if r := recover(); r != nil {
		*errPtr = ds_err.NewUnexpectedError("internal error", cerr.AssertionFailedf("panic: %v", r))
		rc.Log.Error("Panic recovered", zap.Any("panic", r))
	}
}

// End logs outcome, records the span attributes, and ends the span.
func (rc *RuntimeContext) End(errPtr *error) {
	defer rc.Span.End()

	var err error
	if errPtr != nil {
		err = *errPtr
	}
	duration := time.Since(rc.Timestamp)
	outcome := ds_err.OutcomeOf(err)

	if err == nil {
		rc.Log.Info("Command completed", zap.Duration("duration", duration))
	} else {
		rc.Log.Error("Command failed",
			zap.Duration("duration", duration),
			zap.String("outcome", outcome.String()),
			zap.Error(err))
		rc.Span.RecordError(err)
		rc.Span.SetStatus(codes.Error, outcome.String())
	}

	attrs := []attribute.KeyValue{
		attribute.Bool("success", err == nil),
		attribute.Int64("duration_ms", duration.Milliseconds()),
		attribute.String("os", runtime.GOOS),
		attribute.String("args", strings.Join(os.Args[1:], " ")),
		attribute.String("version", Version),
		attribute.String("outcome", outcome.String()),
		attribute.Int("exit_code", outcome.ExitCode()),
	}
	for k, v := range rc.Attributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	rc.Span.SetAttributes(attrs...)
}

// LogRuntimeExecutionContext records who is running the command. The
// effective UID decides the permission check, so it is always logged.
func LogRuntimeExecutionContext(rc *RuntimeContext) {
	fields := []zap.Field{
		zap.Int("real_uid", os.Getuid()),
		zap.Int("effective_uid", os.Geteuid()),
		zap.Int("real_gid", os.Getgid()),
		zap.Int("effective_gid", os.Getegid()),
	}
	if u, err := user.Current(); err == nil {
		fields = append(fields, zap.String("username", u.Username))
	}
	if exe, err := os.Executable(); err == nil {
		fields = append(fields, zap.String("executable", exe))
	}
	rc.Log.Debug("User + UID/GID context", fields...)
}
