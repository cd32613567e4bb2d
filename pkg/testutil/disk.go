package testutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
)

// =====================================
// Block Device Fixtures
// =====================================

// StatLine formats eleven counters the way /sys/block/<dev>/stat does.
func StatLine(c [11]uint64) string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = fmt.Sprintf("%8d", v)
	}
	return strings.Join(parts, " ")
}

// DiskFixture lays out a fake /dev, /sys/block and /proc on an in-memory
// filesystem.
type DiskFixture struct {
	t    *testing.T
	Fs   afero.Fs
	Root string

	diskstats  []string
	partitions []string
}

func NewDiskFixture(t *testing.T) *DiskFixture {
	t.Helper()
	f := &DiskFixture{t: t, Fs: afero.NewMemMapFs(), Root: "/"}
	CreateTestDir(t, f.Fs, f.DevDir())
	CreateTestDir(t, f.Fs, f.SysBlockDir())
	f.flush()
	return f
}

func (f *DiskFixture) DevDir() string      { return filepath.Join(f.Root, "dev") }
func (f *DiskFixture) SysBlockDir() string { return filepath.Join(f.Root, "sys", "block") }
func (f *DiskFixture) ProcDir() string     { return filepath.Join(f.Root, "proc") }

// AddDevice publishes name everywhere the kernel would: a device node, a
// sysfs directory with a stat file, and entries in /proc/diskstats and
// /proc/partitions.
func (f *DiskFixture) AddDevice(name string, major, minor int, c [11]uint64) *DiskFixture {
	f.t.Helper()
	CreateTestFile(f.t, f.Fs, filepath.Join(f.DevDir(), name), "")
	f.SetStat(name, c)
	f.diskstats = append(f.diskstats, fmt.Sprintf("%4d %7d %s %s 0 0 0 0", major, minor, name, joinFields(c)))
	f.partitions = append(f.partitions, fmt.Sprintf("%4d %7d %10d %s", major, minor, 1048576, name))
	f.flush()
	return f
}

// SetStat rewrites the sysfs stat file for name.
func (f *DiskFixture) SetStat(name string, c [11]uint64) {
	f.t.Helper()
	CreateTestFile(f.t, f.Fs, filepath.Join(f.SysBlockDir(), name, "stat"), StatLine(c)+"\n")
}

// Remove deletes path relative to the fixture root.
func (f *DiskFixture) Remove(rel string) {
	f.t.Helper()
	if err := f.Fs.RemoveAll(filepath.Join(f.Root, rel)); err != nil {
		f.t.Fatalf("remove %s: %v", rel, err)
	}
}

func (f *DiskFixture) flush() {
	f.t.Helper()
	header := "major minor  #blocks  name\n\n"
	CreateTestFile(f.t, f.Fs, filepath.Join(f.ProcDir(), "partitions"), header+strings.Join(f.partitions, "\n")+"\n")
	CreateTestFile(f.t, f.Fs, filepath.Join(f.ProcDir(), "diskstats"), strings.Join(f.diskstats, "\n")+"\n")
}

func joinFields(c [11]uint64) string {
	parts := make([]string, len(c))
	for i, v := range c {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, " ")
}
