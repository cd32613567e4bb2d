// pkg/ds_cli/wrap.go

package ds_cli

import (
	"context"

	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_err"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_io"
	"github.com/spf13/cobra"
)

// RunFunc is the signature every diskstat command body implements.
type RunFunc func(rc *ds_io.RuntimeContext, cmd *cobra.Command, args []string) error

// Wrap ensures panic recovery, signal cancellation, telemetry and lifecycle
// logging. Errors leaving the wrapper always carry an outcome.
func Wrap(fn RunFunc) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) (err error) {
		parent := cmd.Context()
		if parent == nil {
			parent = context.Background()
		}
		parent, stop := NotifyContext(parent)
		defer stop()

		rc := ds_io.NewContext(parent, cmd.Name())
		defer rc.End(&err)
		defer rc.HandlePanic(&err)

		ds_io.LogRuntimeExecutionContext(rc)

		err = fn(rc, cmd, args)
		return ds_err.WrapUnexpected(err, cmd.Name()+" failed")
	}
}
