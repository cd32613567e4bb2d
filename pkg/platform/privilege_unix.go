//go:build unix

// pkg/platform/privilege_unix.go

package platform

import "golang.org/x/sys/unix"

// EffectiveUID returns the effective user ID of the process.
func EffectiveUID() int {
	return unix.Geteuid()
}
