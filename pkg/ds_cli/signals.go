// pkg/ds_cli/signals.go

package ds_cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// NotifyContext cancels the returned context on SIGINT or SIGTERM so the
// stimulation subprocess and the settle wait stop promptly.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
