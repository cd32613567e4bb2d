// pkg/execute/execute.go

// Package execute runs external commands without a shell, capturing their
// output and recording a telemetry span per invocation.
package execute

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_err"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/telemetry"
	cerr "github.com/cockroachdb/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Options describes a single command invocation.
type Options struct {
	Command string
	Args    []string
	Dir     string
	// Timeout bounds the run; zero means DefaultTimeout.
	Timeout time.Duration
	Logger  *zap.Logger
}

const DefaultTimeout = 30 * time.Second

// Run executes the command once and returns its combined output. A non-zero
// exit, a start failure or a timeout is returned as an error that carries a
// summary of the output.
func Run(ctx context.Context, opts Options) (string, error) {
	cmdStr := buildCommandString(opts.Command, opts.Args...)

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	timeout := defaultTimeout(opts.Timeout)
	rc, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rc, span := telemetry.Start(rc, "execute.Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("command", opts.Command),
		attribute.String("args", strings.Join(opts.Args, " ")),
	)

	logger.Debug("Starting execution", zap.String("command", cmdStr))

	cmd := exec.CommandContext(rc, opts.Command, opts.Args...)
	if opts.Dir != "" {
		cmd.Dir = opts.Dir
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf

	start := time.Now()
	err := cmd.Run()
	output := buf.String()
	elapsed := time.Since(start)

	if err == nil {
		logger.Debug("Execution succeeded",
			zap.String("command", cmdStr),
			zap.Duration("duration", elapsed))
		return output, nil
	}

	span.RecordError(err)
	if cerr.Is(rc.Err(), context.DeadlineExceeded) {
		err = cerr.Wrapf(err, "timed out after %s", timeout)
	}
	summary := ds_err.ExtractSummary(output, 2)
	logger.Debug("Execution failed",
		zap.String("command", cmdStr),
		zap.String("summary", summary),
		zap.Duration("duration", elapsed),
		zap.Error(err))

	return output, cerr.Wrapf(err, "%s (%s)", cmdStr, summary)
}
