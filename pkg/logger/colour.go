// pkg/logger/colour.go

package logger

import (
	"io"
	"os"

	"golang.org/x/term"
)

// IsColourTerminal reports whether w is a terminal that should get ANSI level
// colours. NO_COLOR disables colour unconditionally.
func IsColourTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
