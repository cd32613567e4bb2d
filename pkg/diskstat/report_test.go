package diskstat

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func sampleSnapshot() *Snapshot {
	return &Snapshot{
		Device:     "sda",
		Active:     true,
		Stimulated: true,
		Reads:      612,
		Writes:     40,
		Before:     []SourceReading{{Source: "sysfs", Path: "/sys/block/sda/stat", Counters: baseSDA}},
		After:      []SourceReading{{Source: "sysfs", Path: "/sys/block/sda/stat", Counters: busySDA}},
		Commands:   []string{"hdparm -t /dev/sda"},
		Output:     "\n/dev/sda:\n Timing buffered disk reads: 128 MB in  3.01 seconds =  42.52 MB/sec\n",
		Paths:      []string{"/dev/sda", "/sys/block/sda", "/proc/diskstats"},
		CapturedAt: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
	}
}

func render(t *testing.T, snap *Snapshot, verbose bool, format Format) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Render(&buf, snap, verbose, format))
	return buf.String()
}

func TestRenderText(t *testing.T) {
	out := render(t, sampleSnapshot(), false, FormatText)
	assert.Equal(t, "device: sda\nactive: true\nreads: 612 writes: 40\nPASS: finished testing stats for sda\n", out)

	inactive := sampleSnapshot()
	inactive.Active = false
	assert.Contains(t, render(t, inactive, false, FormatText), "active: false\n")
	assert.Contains(t, render(t, inactive, false, FormatText), "INFO: no activity observed on sda")

	skipped := &Snapshot{Device: "pmem0", Skipped: SkipReasonNVDIMM}
	assert.Contains(t, render(t, skipped, false, FormatText), "INFO: skipped pmem0")
}

func TestRenderVerboseIsSuperset(t *testing.T) {
	for _, snap := range []*Snapshot{
		sampleSnapshot(),
		{Device: "pmem0", Skipped: SkipReasonNVDIMM},
		{Device: "sdb", After: []SourceReading{{Source: "sysfs", Counters: idle}}},
	} {
		plain := render(t, snap, false, FormatText)
		verbose := render(t, snap, true, FormatText)

		require.True(t, strings.HasPrefix(verbose, plain))
		assert.Greater(t, len(verbose), len(plain))
		for _, line := range strings.Split(strings.TrimSpace(plain), "\n") {
			assert.Contains(t, verbose, line)
		}
	}
}

func TestRenderVerboseDetail(t *testing.T) {
	out := render(t, sampleSnapshot(), true, FormatText)

	assert.Contains(t, out, "stimulated: true\n")
	assert.Contains(t, out, "command: hdparm -t /dev/sda\n")
	assert.Contains(t, out, "  Timing buffered disk reads: 128 MB")
	assert.Contains(t, out, "path: /proc/diskstats\n")
	assert.Contains(t, out, "before[sysfs]: reads_completed=100 ")
	assert.Contains(t, out, "after[sysfs]: reads_completed=612 ")
	assert.Contains(t, out, "delta: reads +512 writes +0 (134 MB read, 0 B written)")
	assert.Contains(t, out, "captured_at: 2026-10-19T09:30:00Z")
}

func TestRenderDocuments(t *testing.T) {
	var fromJSON map[string]any
	require.NoError(t, json.Unmarshal([]byte(render(t, sampleSnapshot(), false, FormatJSON)), &fromJSON))
	assert.Equal(t, "sda", fromJSON["device"])
	assert.Equal(t, true, fromJSON["active"])
	assert.EqualValues(t, 612, fromJSON["reads"])

	var fromYAML map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(render(t, sampleSnapshot(), false, FormatYAML)), &fromYAML))
	assert.Equal(t, "sda", fromYAML["device"])
	assert.Equal(t, 40, fromYAML["writes"])

	var buf bytes.Buffer
	assert.Error(t, Render(&buf, sampleSnapshot(), false, "xml"))
}
