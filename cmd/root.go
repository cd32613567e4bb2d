/* cmd/root.go */

package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/config"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/diskstat"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_cli"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_err"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_io"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/logger"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/platform"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// newVerifier builds the verifier for a resolved configuration. Tests replace
// it to run the command against fake hosts.
var newVerifier = func(cfg *config.Config) *diskstat.Verifier {
	return diskstat.NewVerifier(
		diskstat.Paths{DevDir: cfg.DevDir, SysBlockDir: cfg.SysBlockDir, ProcDir: cfg.ProcDir},
		cfg.StimulationTool,
		cfg.StimulationTimeout,
	)
}

// hostPlatform names the running OS. Tests replace it alongside newVerifier.
var hostPlatform = platform.GetOSPlatform

// app holds per-invocation state shared between the cobra hooks.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     *config.Config
	stderr  io.Writer
}

// NewRootCmd returns the diskstat command. Output goes to the writers set on
// the command with SetOut and SetErr.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRootCmd()
	return cmd
}

func newRootCmd() (*cobra.Command, *app) {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:   "diskstat [flags] DEVICE",
		Short: "Verify that a block device is recognised and shows I/O activity",
		Long: `diskstat checks that DEVICE (e.g. sda) is published by the kernel under
/dev, /sys/block and /proc, reads it briefly with hdparm, and reports whether
its I/O counters moved.

Requires root. Exit codes:
  0  success (including an inactive device unless --require-activity)
  1  unexpected error
  2  invalid argument or configuration
  3  unsupported platform (not Linux)
  4  missing dependency (hdparm)
  5  device not found
  6  counters unchanged with --require-activity
  13 permission denied (not root)`,
		Example: `  sudo diskstat sda
  sudo diskstat -v nvme0n1
  sudo diskstat --no-stimulate --format json sdb`,
		Version:       ds_io.Version,
		Args:          linuxAndOneDevice,
		SilenceErrors: true,
		SilenceUsage:  true,
		PreRunE:       a.setup,
		RunE:          ds_cli.Wrap(a.run),
	}

	cmd.Flags().BoolP("verbose", "v", false, "Include raw counters, commands and paths in the report")
	cmd.Flags().Bool("no-stimulate", false, "Read counters without running the stimulation tool")
	cmd.Flags().Duration("settle", diskstat.DefaultSettleDelay, "Wait after stimulation before the final capture")
	cmd.Flags().Bool("require-activity", false, "Fail with exit code 6 when the counters did not change")
	cmd.Flags().String("format", string(diskstat.FormatText), "Report format: text, json or yaml")
	cmd.Flags().StringVar(&a.cfgFile, "config", "", "Config file (default /etc/diskstat/config.yaml)")

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return ds_err.NewValidationError(err.Error(), "Run diskstat --help for usage")
	})
	return cmd, a
}

// linuxAndOneDevice runs before setup, so a non-Linux host is rejected
// before arguments are counted or any file is opened.
func linuxAndOneDevice(cmd *cobra.Command, args []string) error {
	if p := hostPlatform(); !platform.IsLinux(p) {
		return ds_err.NewPlatformError(p)
	}
	if err := cobra.ExactArgs(1)(cmd, args); err != nil {
		return ds_err.NewValidationError(err.Error(),
			"Usage: diskstat [flags] DEVICE (e.g. diskstat sda)")
	}
	return nil
}

// setup resolves configuration and brings up logging and telemetry before the
// command body runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	a.stderr = cmd.ErrOrStderr()

	if err := config.BindFlagsToViper(cmd, a.v); err != nil {
		return ds_err.NewUnexpectedError("failed to bind flags", err)
	}
	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	path, logErr := logger.Initialize(logger.Options{
		Verbose:  cfg.Verbose,
		Level:    cfg.LogLevel,
		FilePath: cfg.LogFile,
		Console:  a.stderr,
	})
	if logErr != nil {
		logger.L().Warn("File logging disabled", zap.String("path", cfg.LogFile), zap.Error(logErr))
	}
	if err := telemetry.Init(config.AppID, cfg.Telemetry); err != nil {
		logger.L().Warn("Telemetry disabled", zap.String("path", cfg.Telemetry), zap.Error(err))
	}

	logger.L().Debug("Configuration resolved",
		zap.String("config_file", cfg.ConfigFile),
		zap.String("log_file", path),
		zap.String("stimulation_tool", cfg.StimulationTool),
		zap.Duration("settle", cfg.Settle))
	return nil
}

func (a *app) run(rc *ds_io.RuntimeContext, cmd *cobra.Command, args []string) error {
	log := otelzap.Ctx(rc.Ctx)
	cfg := a.cfg

	opts := diskstat.RunOptions{
		Device:          diskstat.DeviceName(args[0]),
		Verbose:         cfg.Verbose,
		Stimulate:       !cfg.NoStimulate,
		SettleDelay:     cfg.Settle,
		RequireActivity: cfg.RequireActivity,
		Format:          diskstat.Format(cfg.Format),
	}
	log.Info("Verifying disk activity",
		zap.String("device", args[0]),
		zap.Bool("stimulate", opts.Stimulate))

	snap, err := newVerifier(cfg).Run(rc, opts)
	if snap != nil {
		if rerr := diskstat.Render(cmd.OutOrStdout(), snap, opts.Verbose, opts.Format); rerr != nil {
			return ds_err.NewUnexpectedError("failed to write report", rerr)
		}
	}
	return err
}

// verbose reports whether error hints should be shown. The config may not
// have loaded, so fall back to the raw flag.
func (a *app) verbose(cmd *cobra.Command) bool {
	if a.cfg != nil {
		return a.cfg.Verbose
	}
	v, _ := cmd.Flags().GetBool("verbose")
	return v
}

// ExecuteArgs runs diskstat with the given arguments and writers and returns
// the process exit code.
func ExecuteArgs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd, a := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
		_ = logger.Sync()
	}()

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ds_err.ExitSuccess
	}

	fmt.Fprintf(stderr, "Error: %s\n", ds_err.Summary(err))
	if a.verbose(cmd) {
		for _, hint := range ds_err.Hints(err) {
			fmt.Fprintf(stderr, "  hint: %s\n", hint)
		}
	}
	return ds_err.GetExitCode(err)
}

// Execute runs diskstat against the process arguments.
func Execute() int {
	return ExecuteArgs(context.Background(), os.Args[1:], os.Stdout, os.Stderr)
}
