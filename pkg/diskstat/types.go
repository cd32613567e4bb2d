// pkg/diskstat/types.go

package diskstat

import (
	"fmt"
	"strings"
	"time"

	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/ds_err"
	"github.com/go-playground/validator/v10"
)

// DeviceName is a kernel block device name such as "sda" or "nvme0n1".
type DeviceName string

var nameValidator = validator.New()

// Validate rejects empty names and anything that is not a bare alphanumeric
// kernel name, so the value is safe to join onto /dev and /sys paths and to
// pass to a subprocess.
func (d DeviceName) Validate() error {
	if strings.TrimSpace(string(d)) == "" {
		return ds_err.NewValidationError("device name is required",
			"Usage: diskstat [flags] DEVICE (e.g. diskstat sda)")
	}
	if err := nameValidator.Var(string(d), "alphanum,max=32"); err != nil {
		return ds_err.NewValidationError(
			fmt.Sprintf("invalid device name %q: expected a kernel name such as sda or nvme0n1", string(d)),
			"Pass the name under /sys/block, not a path",
		)
	}
	return nil
}

// IsNVDIMM reports whether the name refers to persistent memory, which has no
// meaningful disk counters to exercise.
func (d DeviceName) IsNVDIMM() bool {
	return strings.Contains(string(d), "pmem")
}

// Format selects the report encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// RunOptions configures a single verification run.
type RunOptions struct {
	Device          DeviceName
	Verbose         bool
	Stimulate       bool
	SettleDelay     time.Duration
	RequireActivity bool
	Format          Format
}

// Counters are the eleven cumulative fields shared by /sys/block/<dev>/stat
// and /proc/diskstats. IOsInProgress is a gauge; the rest only grow.
type Counters struct {
	ReadsCompleted  uint64 `json:"reads_completed" yaml:"reads_completed"`
	ReadsMerged     uint64 `json:"reads_merged" yaml:"reads_merged"`
	SectorsRead     uint64 `json:"sectors_read" yaml:"sectors_read"`
	ReadTimeMs      uint64 `json:"read_time_ms" yaml:"read_time_ms"`
	WritesCompleted uint64 `json:"writes_completed" yaml:"writes_completed"`
	WritesMerged    uint64 `json:"writes_merged" yaml:"writes_merged"`
	SectorsWritten  uint64 `json:"sectors_written" yaml:"sectors_written"`
	WriteTimeMs     uint64 `json:"write_time_ms" yaml:"write_time_ms"`
	IOsInProgress   uint64 `json:"ios_in_progress" yaml:"ios_in_progress"`
	IOTimeMs        uint64 `json:"io_time_ms" yaml:"io_time_ms"`
	WeightedIOMs    uint64 `json:"weighted_io_ms" yaml:"weighted_io_ms"`
}

// ChangedFrom reports whether any cumulative counter differs from before.
func (c Counters) ChangedFrom(before Counters) bool {
	a, b := c, before
	a.IOsInProgress, b.IOsInProgress = 0, 0
	return a != b
}

// Idle reports whether no read or write has ever completed.
func (c Counters) Idle() bool {
	return c.ReadsCompleted == 0 && c.WritesCompleted == 0
}

func (c Counters) String() string {
	return fmt.Sprintf(
		"reads_completed=%d reads_merged=%d sectors_read=%d read_ms=%d "+
			"writes_completed=%d writes_merged=%d sectors_written=%d write_ms=%d "+
			"in_progress=%d io_ms=%d weighted_io_ms=%d",
		c.ReadsCompleted, c.ReadsMerged, c.SectorsRead, c.ReadTimeMs,
		c.WritesCompleted, c.WritesMerged, c.SectorsWritten, c.WriteTimeMs,
		c.IOsInProgress, c.IOTimeMs, c.WeightedIOMs)
}

// SourceReading is one capture from one statistics source.
type SourceReading struct {
	Source   string   `json:"source" yaml:"source"`
	Path     string   `json:"path" yaml:"path"`
	Raw      string   `json:"raw,omitempty" yaml:"raw,omitempty"`
	Counters Counters `json:"counters" yaml:"counters"`
}

// Snapshot is the immutable result of a run.
type Snapshot struct {
	Device     DeviceName      `json:"device" yaml:"device"`
	Active     bool            `json:"active" yaml:"active"`
	Stimulated bool            `json:"stimulated" yaml:"stimulated"`
	Reads      uint64          `json:"reads" yaml:"reads"`
	Writes     uint64          `json:"writes" yaml:"writes"`
	Skipped    string          `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Before     []SourceReading `json:"before,omitempty" yaml:"before,omitempty"`
	After      []SourceReading `json:"after,omitempty" yaml:"after,omitempty"`
	Commands   []string        `json:"commands,omitempty" yaml:"commands,omitempty"`
	Output     string          `json:"command_output,omitempty" yaml:"command_output,omitempty"`
	Paths      []string        `json:"paths,omitempty" yaml:"paths,omitempty"`
	CapturedAt time.Time       `json:"captured_at" yaml:"captured_at"`
}

// Delta returns after-minus-before for the primary source. ok is false when
// there is no baseline to compare against.
func (s *Snapshot) Delta() (reads, writes, sectorsRead, sectorsWritten uint64, ok bool) {
	if len(s.Before) == 0 || len(s.After) == 0 {
		return 0, 0, 0, 0, false
	}
	b, a := s.Before[0].Counters, s.After[0].Counters
	return sub(a.ReadsCompleted, b.ReadsCompleted),
		sub(a.WritesCompleted, b.WritesCompleted),
		sub(a.SectorsRead, b.SectorsRead),
		sub(a.SectorsWritten, b.SectorsWritten),
		true
}

// sub never wraps; counters can reset if the device is re-attached.
func sub(a, b uint64) uint64 {
	if a < b {
		return 0
	}
	return a - b
}
