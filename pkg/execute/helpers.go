// pkg/execute/helpers.go

package execute

import (
	"strings"
	"time"
)

func defaultTimeout(t time.Duration) time.Duration {
	if t > 0 {
		return t
	}
	return DefaultTimeout
}

func buildCommandString(command string, args ...string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}
