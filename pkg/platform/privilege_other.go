//go:build !unix

// pkg/platform/privilege_other.go

package platform

// EffectiveUID has no meaning outside unix; -1 never matches root.
func EffectiveUID() int {
	return -1
}
