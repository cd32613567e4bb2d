/* pkg/platform/context.go */

package platform

import (
	"os/exec"
	"runtime"
)

//
//---------------------------- OPERATING SYSTEMS ---------------------------- //
//

// GetOSPlatform returns a string representing the OS platform.
func GetOSPlatform() string {
	switch runtime.GOOS {
	case "darwin":
		return "macos"
	case "linux":
		return "linux"
	case "windows":
		return "windows"
	default:
		return runtime.GOOS
	}
}

// IsLinux reports whether platform names a Linux host.
func IsLinux(platform string) bool {
	return platform == "linux"
}

// LookPath resolves a command in the system PATH.
func LookPath(name string) (string, error) {
	return exec.LookPath(name)
}
