/* pkg/logger/paths.go */

package logger

import (
	"os"
	"path/filepath"
)

const appID = "diskstat"

// PlatformLogPaths returns candidate log paths in order of priority.
func PlatformLogPaths() []string {
	return []string{
		filepath.Join("/var/log", appID, appID+".log"), // root runs
		xdgStatePath(appID, appID+".log"),
		filepath.Join(os.TempDir(), appID, appID+".log"),
	}
}

// ResolveLogPath returns the first candidate path that can be opened for
// appending, or "" if none can.
func ResolveLogPath() string {
	for _, path := range PlatformLogPaths() {
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			continue
		}
		file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err == nil {
			_ = file.Close()
			return path
		}
	}
	return ""
}

func xdgStatePath(app, file string) string {
	base := os.Getenv("XDG_STATE_HOME")
	if base == "" {
		base = filepath.Join(os.Getenv("HOME"), ".local", "state")
	}
	return filepath.Join(base, app, file)
}
