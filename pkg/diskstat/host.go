// pkg/diskstat/host.go

package diskstat

import (
	"path/filepath"

	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/platform"
	"github.com/spf13/afero"
)

// Host is the set of machine facilities consulted by the precondition checks.
// Every filesystem access the verifier performs goes through Fs.
type Host interface {
	Platform() string
	LookPath(file string) (string, error)
	EffectiveUID() int
	Fs() afero.Fs
}

// OSHost is the Host of the running machine.
type OSHost struct {
	fs afero.Fs
}

func NewOSHost() *OSHost {
	return &OSHost{fs: afero.NewReadOnlyFs(afero.NewOsFs())}
}

func (h *OSHost) Platform() string                     { return platform.GetOSPlatform() }
func (h *OSHost) LookPath(file string) (string, error) { return platform.LookPath(file) }
func (h *OSHost) EffectiveUID() int                    { return platform.EffectiveUID() }
func (h *OSHost) Fs() afero.Fs                         { return h.fs }

// Paths are the kernel-published locations the verifier reads.
type Paths struct {
	DevDir      string
	SysBlockDir string
	ProcDir     string
}

func DefaultPaths() Paths {
	return Paths{DevDir: "/dev", SysBlockDir: "/sys/block", ProcDir: "/proc"}
}

func (p Paths) DeviceNode(d DeviceName) string { return filepath.Join(p.DevDir, string(d)) }
func (p Paths) SysBlock(d DeviceName) string   { return filepath.Join(p.SysBlockDir, string(d)) }
func (p Paths) SysStat(d DeviceName) string    { return filepath.Join(p.SysBlockDir, string(d), "stat") }
func (p Paths) Diskstats() string              { return filepath.Join(p.ProcDir, "diskstats") }
func (p Paths) Partitions() string             { return filepath.Join(p.ProcDir, "partitions") }
