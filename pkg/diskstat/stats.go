// pkg/diskstat/stats.go

package diskstat

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shirou/gopsutil/v4/common"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/spf13/afero"
)

// StatsSource reads the current counters of one device from one
// kernel-published location.
type StatsSource interface {
	Name() string
	Read(ctx context.Context, device DeviceName) (SourceReading, error)
}

// statFieldCount is the number of fields the verifier relies on. Newer
// kernels append discard and flush counters, which are ignored.
const statFieldCount = 11

// ParseStatFields parses the leading counter fields shared by
// /sys/block/<dev>/stat and columns 4+ of /proc/diskstats.
func ParseStatFields(fields []string) (Counters, error) {
	if len(fields) < statFieldCount {
		return Counters{}, fmt.Errorf("expected at least %d counter fields, got %d", statFieldCount, len(fields))
	}
	var vals [statFieldCount]uint64
	for i := 0; i < statFieldCount; i++ {
		v, err := strconv.ParseUint(fields[i], 10, 64)
		if err != nil {
			return Counters{}, fmt.Errorf("field %d: %w", i+1, err)
		}
		vals[i] = v
	}
	return Counters{
		ReadsCompleted:  vals[0],
		ReadsMerged:     vals[1],
		SectorsRead:     vals[2],
		ReadTimeMs:      vals[3],
		WritesCompleted: vals[4],
		WritesMerged:    vals[5],
		SectorsWritten:  vals[6],
		WriteTimeMs:     vals[7],
		IOsInProgress:   vals[8],
		IOTimeMs:        vals[9],
		WeightedIOMs:    vals[10],
	}, nil
}

// ParseDiskstatsLine parses a line from /proc/diskstats.
// Format: major minor name reads_completed reads_merged sectors_read read_time
//
//	writes_completed writes_merged sectors_written write_time ios_in_progress io_time weighted_io_time
func ParseDiskstatsLine(line string) (string, Counters, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3+statFieldCount {
		return "", Counters{}, false
	}
	c, err := ParseStatFields(fields[3:])
	if err != nil {
		return "", Counters{}, false
	}
	return fields[2], c, true
}

// FindDiskstatsLine returns the first /proc/diskstats line for device.
func FindDiskstatsLine(fs afero.Fs, path string, device DeviceName) (string, error) {
	return findLine(fs, path, func(fields []string) bool {
		return len(fields) >= 3 && fields[2] == string(device)
	})
}

// FindPartitionsLine returns the /proc/partitions line for device.
// Format: major minor #blocks name
func FindPartitionsLine(fs afero.Fs, path string, device DeviceName) (string, error) {
	return findLine(fs, path, func(fields []string) bool {
		return len(fields) >= 4 && fields[3] == string(device)
	})
}

// errNoMatch is returned by the line finders when the file has no entry.
var errNoMatch = errors.New("no matching entry")

func findLine(fs afero.Fs, path string, match func([]string) bool) (string, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", err
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if match(strings.Fields(line)) {
			return strings.TrimSpace(line), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return "", errNoMatch
}

// SysfsSource reads /sys/block/<dev>/stat.
type SysfsSource struct {
	Fs    afero.Fs
	Paths Paths
}

func (s *SysfsSource) Name() string { return "sysfs" }

func (s *SysfsSource) Read(_ context.Context, device DeviceName) (SourceReading, error) {
	path := s.Paths.SysStat(device)
	data, err := afero.ReadFile(s.Fs, path)
	if err != nil {
		return SourceReading{}, fmt.Errorf("read %s: %w", path, err)
	}
	raw := strings.TrimSpace(string(data))
	c, err := ParseStatFields(strings.Fields(raw))
	if err != nil {
		return SourceReading{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return SourceReading{Source: s.Name(), Path: path, Raw: raw, Counters: c}, nil
}

// DiskstatsSource reads /proc/diskstats through gopsutil, rooted at
// Paths.ProcDir.
type DiskstatsSource struct {
	Paths Paths
}

func (s *DiskstatsSource) Name() string { return "diskstats" }

func (s *DiskstatsSource) Read(ctx context.Context, device DeviceName) (SourceReading, error) {
	path := s.Paths.Diskstats()
	ctx = context.WithValue(ctx, common.EnvKey, common.EnvMap{common.HostProcEnvKey: s.Paths.ProcDir})

	stats, err := disk.IOCountersWithContext(ctx, string(device))
	if err != nil {
		return SourceReading{}, fmt.Errorf("read %s: %w", path, err)
	}
	st, ok := stats[string(device)]
	if !ok {
		return SourceReading{}, fmt.Errorf("read %s: no entry for %s", path, device)
	}

	c := Counters{
		ReadsCompleted:  st.ReadCount,
		ReadsMerged:     st.MergedReadCount,
		SectorsRead:     st.ReadBytes / sectorSize,
		ReadTimeMs:      st.ReadTime,
		WritesCompleted: st.WriteCount,
		WritesMerged:    st.MergedWriteCount,
		SectorsWritten:  st.WriteBytes / sectorSize,
		WriteTimeMs:     st.WriteTime,
		IOsInProgress:   st.IopsInProgress,
		IOTimeMs:        st.IoTime,
		WeightedIOMs:    st.WeightedIO,
	}
	return SourceReading{Source: s.Name(), Path: path, Counters: c}, nil
}

// /proc/diskstats always counts 512-byte sectors, whatever the device's
// logical block size.
const sectorSize = 512
