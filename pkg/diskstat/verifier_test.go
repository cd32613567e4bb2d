package diskstat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_err"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_io"
	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	platform  string
	uid       int
	lookErr   error
	fs        afero.Fs
	fsCalls   int
	lookCalls int
}

func (h *fakeHost) Platform() string { return h.platform }
func (h *fakeHost) LookPath(file string) (string, error) {
	h.lookCalls++
	if h.lookErr != nil {
		return "", h.lookErr
	}
	return "/usr/sbin/" + file, nil
}
func (h *fakeHost) EffectiveUID() int { return h.uid }
func (h *fakeHost) Fs() afero.Fs {
	h.fsCalls++
	return h.fs
}

type fakeStimulator struct {
	calls  int
	path   string
	output string
	err    error
	after  func()
}

func (s *fakeStimulator) Stimulate(_ context.Context, devicePath string) (Stimulation, error) {
	s.calls++
	s.path = devicePath
	if s.after != nil {
		s.after()
	}
	return Stimulation{Command: "hdparm -t " + devicePath, Output: s.output}, s.err
}

// fakeSource returns its readings in order, repeating the last one.
type fakeSource struct {
	name     string
	readings []Counters
	err      error
	calls    int
}

func (s *fakeSource) Name() string { return s.name }
func (s *fakeSource) Read(_ context.Context, _ DeviceName) (SourceReading, error) {
	if s.err != nil {
		return SourceReading{}, s.err
	}
	i := s.calls
	if i >= len(s.readings) {
		i = len(s.readings) - 1
	}
	s.calls++
	return SourceReading{Source: s.name, Path: "/fake/" + s.name, Counters: s.readings[i]}, nil
}

var (
	idle    = Counters{}
	baseSDA = Counters{ReadsCompleted: 100, SectorsRead: 800, WritesCompleted: 40, SectorsWritten: 320}
	busySDA = Counters{ReadsCompleted: 612, SectorsRead: 262944, WritesCompleted: 40, SectorsWritten: 320, IOTimeMs: 900}
)

func sdaFixture(t *testing.T) *testutil.DiskFixture {
	f := testutil.NewDiskFixture(t)
	f.AddDevice("sda", 8, 0, [11]uint64{100, 0, 800, 10, 40, 0, 320, 5, 0, 20, 15})
	return f
}

type harness struct {
	host    *fakeHost
	stim    *fakeStimulator
	sources []*fakeSource
	v       *Verifier
	fixture *testutil.DiskFixture
}

func newHarness(t *testing.T) *harness {
	f := sdaFixture(t)
	h := &harness{
		host:    &fakeHost{platform: "linux", uid: 0, fs: f.Fs},
		stim:    &fakeStimulator{output: "Timing buffered disk reads: 512 MB in 3.00 seconds"},
		fixture: f,
		sources: []*fakeSource{
			{name: "sysfs", readings: []Counters{baseSDA, busySDA}},
			{name: "diskstats", readings: []Counters{baseSDA, busySDA}},
		},
	}
	h.v = &Verifier{
		Host:       h.host,
		Stimulator: h.stim,
		Sources:    []StatsSource{h.sources[0], h.sources[1]},
		Paths:      Paths{DevDir: f.DevDir(), SysBlockDir: f.SysBlockDir(), ProcDir: f.ProcDir()},
	}
	return h
}

func newRC(t *testing.T) *ds_io.RuntimeContext {
	t.Helper()
	return ds_io.NewContext(context.Background(), "diskstat-test")
}

func stimOpts(dev string) RunOptions {
	return RunOptions{Device: DeviceName(dev), Stimulate: true, Format: FormatText}
}

func TestRunNonLinuxTouchesNothing(t *testing.T) {
	for _, p := range []string{"macos", "windows", "freebsd", "openbsd", ""} {
		t.Run(p, func(t *testing.T) {
			h := newHarness(t)
			h.host.platform = p

			snap, err := h.v.Run(newRC(t), stimOpts("sda"))

			require.Error(t, err)
			assert.Nil(t, snap)
			assert.Equal(t, ds_err.UnsupportedPlatform, ds_err.OutcomeOf(err))
			assert.Equal(t, ds_err.ExitUnsupportedPlatform, ds_err.GetExitCode(err))
			assert.Zero(t, h.host.fsCalls)
			assert.Zero(t, h.host.lookCalls)
			assert.Zero(t, h.stim.calls)
			assert.Zero(t, h.sources[0].calls)
		})
	}
}

func TestRunInvalidNames(t *testing.T) {
	for _, name := range []string{"", "../sda", "sd a", "sda;reboot", "/dev/sda"} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)

			_, err := h.v.Run(newRC(t), stimOpts(name))

			assert.Equal(t, ds_err.InvalidArgument, ds_err.OutcomeOf(err))
			assert.Zero(t, h.host.fsCalls)
			assert.Zero(t, h.host.lookCalls)
			assert.Zero(t, h.stim.calls)
		})
	}
}

func TestRunMissingDependency(t *testing.T) {
	h := newHarness(t)
	h.host.lookErr = testutil.NewTestError("executable file not found in $PATH")

	_, err := h.v.Run(newRC(t), stimOpts("sda"))

	assert.Equal(t, ds_err.MissingDependency, ds_err.OutcomeOf(err))
	assert.Contains(t, err.Error(), "hdparm")
	assert.Zero(t, h.host.fsCalls)
	assert.Zero(t, h.stim.calls)
}

func TestRunDependencyIgnoredWithoutStimulation(t *testing.T) {
	h := newHarness(t)
	h.host.lookErr = errors.New("not found")
	opts := stimOpts("sda")
	opts.Stimulate = false

	_, err := h.v.Run(newRC(t), opts)

	require.NoError(t, err)
	assert.Zero(t, h.host.lookCalls)
}

func TestRunNonRoot(t *testing.T) {
	for _, uid := range []int{1000, 1, -1} {
		h := newHarness(t)
		h.host.uid = uid

		_, err := h.v.Run(newRC(t), stimOpts("sda"))

		assert.Equal(t, ds_err.PermissionDenied, ds_err.OutcomeOf(err))
		assert.Equal(t, 13, ds_err.GetExitCode(err))
		assert.Zero(t, h.stim.calls)
		assert.Zero(t, h.host.fsCalls)
	}
}

func TestRunDeviceNotFound(t *testing.T) {
	tests := []struct {
		name    string
		device  string
		mutate  func(f *testutil.DiskFixture)
		locates string
	}{
		{name: "unknown device", device: "zzz", locates: "/dev"},
		{name: "no sysfs dir", device: "sda", mutate: func(f *testutil.DiskFixture) { f.Remove("sys/block/sda") }, locates: "/sys/block"},
		{name: "no stat file", device: "sda", mutate: func(f *testutil.DiskFixture) { f.Remove("sys/block/sda/stat") }, locates: "/sys/block/sda/stat"},
		{name: "empty stat file", device: "sda", mutate: func(f *testutil.DiskFixture) {
			testutil.CreateTestFile(t, f.Fs, "/sys/block/sda/stat", "")
		}, locates: "/sys/block/sda/stat"},
		{name: "not in partitions", device: "sda", mutate: func(f *testutil.DiskFixture) {
			testutil.CreateTestFile(t, f.Fs, "/proc/partitions", "major minor  #blocks  name\n")
		}, locates: "/proc/partitions"},
		{name: "not in diskstats", device: "sda", mutate: func(f *testutil.DiskFixture) {
			testutil.CreateTestFile(t, f.Fs, "/proc/diskstats", "   8       16 sdb 1 2 3 4 5 6 7 8 9 10 11\n")
		}, locates: "/proc/diskstats"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			if tt.mutate != nil {
				tt.mutate(h.fixture)
			}

			snap, err := h.v.Run(newRC(t), stimOpts(tt.device))

			assert.Nil(t, snap)
			assert.Equal(t, ds_err.DeviceNotFound, ds_err.OutcomeOf(err))
			assert.Equal(t, ds_err.ExitDeviceNotFound, ds_err.GetExitCode(err))
			assert.Contains(t, err.Error(), tt.locates)
			assert.Zero(t, h.stim.calls)
			assert.Zero(t, h.sources[0].calls)
		})
	}
}

func TestRunSDAActive(t *testing.T) {
	h := newHarness(t)

	snap, err := h.v.Run(newRC(t), stimOpts("sda"))

	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 1, h.stim.calls)
	assert.Equal(t, "/dev/sda", h.stim.path)
	assert.True(t, snap.Active)
	assert.True(t, snap.Stimulated)
	assert.Equal(t, uint64(612), snap.Reads)
	assert.Equal(t, uint64(40), snap.Writes)
	assert.Equal(t, []string{"hdparm -t /dev/sda"}, snap.Commands)
	assert.Len(t, snap.Before, 2)
	assert.Len(t, snap.After, 2)
	assert.Contains(t, snap.Paths, "/proc/diskstats")
	assert.Equal(t, 0, ds_err.GetExitCode(err))
}

func TestRunUnchangedCounters(t *testing.T) {
	h := newHarness(t)
	h.sources[1].readings = []Counters{baseSDA, baseSDA}

	snap, err := h.v.Run(newRC(t), stimOpts("sda"))
	require.NoError(t, err)
	assert.False(t, snap.Active)

	h = newHarness(t)
	h.sources[1].readings = []Counters{baseSDA, baseSDA}
	opts := stimOpts("sda")
	opts.RequireActivity = true

	snap, err = h.v.Run(newRC(t), opts)
	require.NotNil(t, snap)
	assert.False(t, snap.Active)
	assert.Equal(t, ds_err.StatsUnchanged, ds_err.OutcomeOf(err))
	assert.Equal(t, 6, ds_err.GetExitCode(err))
	assert.Contains(t, err.Error(), "diskstats")
	assert.NotContains(t, err.Error(), "sysfs")
}

func TestRunInProgressGaugeIsNotActivity(t *testing.T) {
	h := newHarness(t)
	moving := baseSDA
	moving.IOsInProgress = 3
	h.sources[0].readings = []Counters{baseSDA, moving}
	h.sources[1].readings = []Counters{baseSDA, moving}

	snap, err := h.v.Run(newRC(t), stimOpts("sda"))

	require.NoError(t, err)
	assert.False(t, snap.Active)
}

func TestRunWithoutStimulation(t *testing.T) {
	tests := []struct {
		name   string
		reads  Counters
		active bool
	}{
		{name: "used device", reads: baseSDA, active: true},
		{name: "never used", reads: idle, active: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.sources[0].readings = []Counters{tt.reads}
			h.sources[1].readings = []Counters{tt.reads}
			opts := stimOpts("sda")
			opts.Stimulate = false

			snap, err := h.v.Run(newRC(t), opts)

			require.NoError(t, err)
			assert.Equal(t, tt.active, snap.Active)
			assert.False(t, snap.Stimulated)
			assert.Empty(t, snap.Before)
			assert.Zero(t, h.stim.calls)
			assert.Equal(t, 1, h.sources[0].calls)
		})
	}
}

func TestRunNVDIMMIsSkipped(t *testing.T) {
	h := newHarness(t)

	snap, err := h.v.Run(newRC(t), stimOpts("pmem0"))

	require.NoError(t, err)
	assert.Equal(t, SkipReasonNVDIMM, snap.Skipped)
	assert.False(t, snap.Active)
	assert.Zero(t, h.stim.calls)
	assert.Zero(t, h.host.fsCalls)
	assert.Zero(t, h.sources[0].calls)
}

func TestRunStimulationFailure(t *testing.T) {
	h := newHarness(t)
	h.stim.output = "/dev/sda:\n HDIO_DRIVE_CMD(identify) failed: Inappropriate ioctl for device\n"
	h.stim.err = errors.New("exit status 1")

	snap, err := h.v.Run(newRC(t), stimOpts("sda"))

	assert.Nil(t, snap)
	assert.Equal(t, ds_err.UnexpectedError, ds_err.OutcomeOf(err))
	assert.Equal(t, 1, ds_err.GetExitCode(err))
	assert.Contains(t, err.Error(), "Inappropriate ioctl for device")
	assert.ErrorContains(t, errors.Unwrap(err), "exit status 1")
}

func TestRunSourceFailureIsUnexpected(t *testing.T) {
	h := newHarness(t)
	h.sources[0].err = errors.New("read /sys/block/sda/stat: input/output error")
	h.sources[1].err = errors.New("read /proc/diskstats: no entry for sda")

	_, err := h.v.Run(newRC(t), stimOpts("sda"))

	assert.Equal(t, ds_err.UnexpectedError, ds_err.OutcomeOf(err))
	assert.Contains(t, err.Error(), "sysfs: read /sys/block/sda/stat")
	assert.Contains(t, err.Error(), "diskstats: read /proc/diskstats")
	assert.Zero(t, h.stim.calls)
}

func TestRunSettleHonoursCancellation(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	rc := ds_io.NewContext(ctx, "diskstat-test")
	h.stim.after = cancel
	opts := stimOpts("sda")
	opts.SettleDelay = time.Hour

	start := time.Now()
	_, err := h.v.Run(rc, opts)

	assert.Less(t, time.Since(start), time.Minute)
	assert.Equal(t, ds_err.UnexpectedError, ds_err.OutcomeOf(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunWithSysfsSource(t *testing.T) {
	h := newHarness(t)
	f := h.fixture
	h.v.Sources = []StatsSource{&SysfsSource{Fs: f.Fs, Paths: h.v.Paths}}
	h.stim.after = func() {
		f.SetStat("sda", [11]uint64{612, 0, 262944, 300, 40, 0, 320, 5, 0, 320, 305})
	}

	snap, err := h.v.Run(newRC(t), stimOpts("sda"))

	require.NoError(t, err)
	assert.True(t, snap.Active)
	assert.Equal(t, uint64(612), snap.Reads)
	assert.Equal(t, uint64(100), snap.Before[0].Counters.ReadsCompleted)
	assert.Equal(t, "/sys/block/sda/stat", snap.After[0].Path)
}
