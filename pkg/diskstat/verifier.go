// pkg/diskstat/verifier.go

// Package diskstat verifies that a block device is recognised by the kernel
// and that its I/O counters move when the device is read.
package diskstat

import (
	"fmt"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_err"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_io"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/platform"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const DefaultSettleDelay = 5 * time.Second

// SkipReasonNVDIMM is recorded on snapshots of persistent-memory devices.
const SkipReasonNVDIMM = "NVDIMM device has no disk counters to exercise"

// Verifier runs the ordered checks and the measurement for one device.
// Nil Stimulator and Sources fall back to hdparm and the sysfs/diskstats
// readers rooted at Paths.
type Verifier struct {
	Host               Host
	Stimulator         Stimulator
	Sources            []StatsSource
	Paths              Paths
	Tool               string
	StimulationTimeout time.Duration
}

// NewVerifier returns a Verifier for the running machine.
func NewVerifier(paths Paths, tool string, timeout time.Duration) *Verifier {
	return &Verifier{
		Host:               NewOSHost(),
		Paths:              paths,
		Tool:               tool,
		StimulationTimeout: timeout,
	}
}

// Run checks platform, name, dependency, permission and device presence in
// that order, failing fast with a classified error, then captures counters
// before and after stimulating the device.
//
// An inactive device is not an error unless opts.RequireActivity is set; in
// that case the snapshot is returned alongside a StatsUnchanged error.
func (v *Verifier) Run(rc *ds_io.RuntimeContext, opts RunOptions) (*Snapshot, error) {
	log := otelzap.Ctx(rc.Ctx)

	// ASSESS
	if p := v.Host.Platform(); !platform.IsLinux(p) {
		return nil, ds_err.NewPlatformError(p)
	}
	if err := opts.Device.Validate(); err != nil {
		return nil, err
	}
	if opts.Stimulate {
		if _, err := v.Host.LookPath(v.tool()); err != nil {
			return nil, ds_err.NewDependencyError(v.tool(), "disk stimulation",
				fmt.Sprintf("Install it with: apt-get install %s", v.tool()),
				"Or run with --no-stimulate to read counters only")
		}
	}
	if uid := v.Host.EffectiveUID(); uid != 0 {
		return nil, ds_err.NewPermissionError(v.Paths.DeviceNode(opts.Device), "read",
			"Run as root: sudo diskstat "+string(opts.Device))
	}

	snap := &Snapshot{Device: opts.Device, CapturedAt: time.Now().UTC()}

	if opts.Device.IsNVDIMM() {
		log.Info("Skipping NVDIMM device", zap.String("device", string(opts.Device)))
		snap.Skipped = SkipReasonNVDIMM
		return snap, nil
	}

	paths, err := v.checkExists(opts.Device)
	if err != nil {
		return nil, err
	}
	snap.Paths = paths
	log.Debug("Device present", zap.String("device", string(opts.Device)), zap.Strings("paths", paths))

	sources := v.sources()

	// INTERVENE
	if opts.Stimulate {
		before, err := v.capture(rc, sources, opts.Device)
		if err != nil {
			return nil, err
		}
		snap.Before = before

		stim, err := v.stimulator(rc).Stimulate(rc.Ctx, v.Paths.DeviceNode(opts.Device))
		snap.Commands = append(snap.Commands, stim.Command)
		snap.Output = stim.Output
		if err != nil {
			return nil, ds_err.NewUnexpectedError(
				fmt.Sprintf("stimulation failed: %s", ds_err.ExtractSummary(stim.Output, 2)), err)
		}
		snap.Stimulated = true
		log.Debug("Stimulation finished", zap.String("command", stim.Command))

		if err := settle(rc, opts.SettleDelay); err != nil {
			return nil, err
		}
	}

	after, err := v.capture(rc, sources, opts.Device)
	if err != nil {
		return nil, err
	}
	snap.After = after
	snap.Reads = after[0].Counters.ReadsCompleted
	snap.Writes = after[0].Counters.WritesCompleted

	// EVALUATE
	unchanged := decide(snap)
	rc.Span.SetAttributes(
		attribute.String("device", string(opts.Device)),
		attribute.Bool("active", snap.Active),
		attribute.Bool("stimulated", snap.Stimulated),
	)
	log.Info("Finished testing stats",
		zap.String("device", string(opts.Device)),
		zap.Bool("active", snap.Active),
		zap.Uint64("reads", snap.Reads),
		zap.Uint64("writes", snap.Writes))

	if !snap.Active && opts.RequireActivity {
		return snap, ds_err.NewStatsUnchangedError(string(opts.Device), unchanged)
	}
	return snap, nil
}

// decide sets snap.Active and returns the sources that showed no activity.
// With a baseline, every source must have moved. Without one, any completed
// read or write counts.
func decide(snap *Snapshot) []string {
	var unchanged []string
	if len(snap.Before) == 0 {
		for _, r := range snap.After {
			if r.Counters.Idle() {
				unchanged = append(unchanged, r.Source)
			}
		}
		snap.Active = len(unchanged) == 0
		return unchanged
	}
	for i, r := range snap.After {
		if !r.Counters.ChangedFrom(snap.Before[i].Counters) {
			unchanged = append(unchanged, r.Source)
		}
	}
	snap.Active = len(unchanged) == 0
	return unchanged
}

// checkExists confirms the kernel publishes the device everywhere the
// verifier reads from. It returns the paths consulted.
func (v *Verifier) checkExists(d DeviceName) ([]string, error) {
	fs := v.Host.Fs()
	node, sysDir, stat := v.Paths.DeviceNode(d), v.Paths.SysBlock(d), v.Paths.SysStat(d)

	if ok, err := afero.Exists(fs, node); !ok {
		return nil, ds_err.NewDeviceNotFoundError(string(d), v.Paths.DevDir, err)
	}
	if ok, err := afero.DirExists(fs, sysDir); !ok {
		return nil, ds_err.NewDeviceNotFoundError(string(d), v.Paths.SysBlockDir, err)
	}
	info, err := fs.Stat(stat)
	if err != nil || info.IsDir() || info.Size() == 0 {
		return nil, ds_err.NewDeviceNotFoundError(string(d), stat, err)
	}
	if _, err := FindPartitionsLine(fs, v.Paths.Partitions(), d); err != nil {
		return nil, ds_err.NewDeviceNotFoundError(string(d), v.Paths.Partitions(), err)
	}
	if _, err := FindDiskstatsLine(fs, v.Paths.Diskstats(), d); err != nil {
		return nil, ds_err.NewDeviceNotFoundError(string(d), v.Paths.Diskstats(), err)
	}
	return []string{node, sysDir, stat, v.Paths.Partitions(), v.Paths.Diskstats()}, nil
}

func (v *Verifier) capture(rc *ds_io.RuntimeContext, sources []StatsSource, d DeviceName) ([]SourceReading, error) {
	var (
		readings []SourceReading
		result   *multierror.Error
	)
	for _, s := range sources {
		r, err := s.Read(rc.Ctx, d)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		readings = append(readings, r)
	}
	if result != nil {
		result.ErrorFormat = joinErrors
		return nil, ds_err.NewUnexpectedError("failed to read disk statistics", result)
	}
	if len(readings) == 0 {
		return nil, ds_err.NewUnexpectedError("no statistics sources configured", nil)
	}
	return readings, nil
}

func joinErrors(errs []error) string {
	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

// settle gives the kernel time to fold completed requests into the counters.
func settle(rc *ds_io.RuntimeContext, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	otelzap.Ctx(rc.Ctx).Debug("Waiting for counters to settle", zap.Duration("delay", d))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-rc.Ctx.Done():
		return ds_err.NewUnexpectedError("interrupted while waiting for counters to settle", rc.Ctx.Err())
	}
}

func (v *Verifier) tool() string {
	if v.Tool == "" {
		return DefaultStimulationTool
	}
	return v.Tool
}

func (v *Verifier) stimulator(rc *ds_io.RuntimeContext) Stimulator {
	if v.Stimulator != nil {
		return v.Stimulator
	}
	return &HdparmStimulator{Tool: v.tool(), Timeout: v.StimulationTimeout, Logger: rc.Log}
}

func (v *Verifier) sources() []StatsSource {
	if v.Sources != nil {
		return v.Sources
	}
	return []StatsSource{
		&SysfsSource{Fs: v.Host.Fs(), Paths: v.Paths},
		&DiskstatsSource{Paths: v.Paths},
	}
}
