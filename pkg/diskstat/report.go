// pkg/diskstat/report.go

package diskstat

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Render writes the snapshot to w. The text summary is always the first
// four lines; verbose text appends detail after them.
func Render(w io.Writer, snap *Snapshot, verbose bool, format Format) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(snap); err != nil {
			return err
		}
		return enc.Close()
	case FormatText, "":
		return renderText(w, snap, verbose)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func renderText(w io.Writer, snap *Snapshot, verbose bool) error {
	r := lipgloss.NewRenderer(w)
	pass := r.NewStyle().Bold(true).Foreground(lipgloss.Color("2"))
	info := r.NewStyle().Bold(true).Foreground(lipgloss.Color("3"))

	var b strings.Builder
	fmt.Fprintf(&b, "device: %s\n", snap.Device)
	fmt.Fprintf(&b, "active: %t\n", snap.Active)
	fmt.Fprintf(&b, "reads: %d writes: %d\n", snap.Reads, snap.Writes)
	switch {
	case snap.Skipped != "":
		fmt.Fprintf(&b, "%s: skipped %s: %s\n", info.Render("INFO"), snap.Device, snap.Skipped)
	case snap.Active:
		fmt.Fprintf(&b, "%s: finished testing stats for %s\n", pass.Render("PASS"), snap.Device)
	default:
		fmt.Fprintf(&b, "%s: no activity observed on %s\n", info.Render("INFO"), snap.Device)
	}

	if verbose {
		writeDetail(&b, snap)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func writeDetail(b *strings.Builder, snap *Snapshot) {
	fmt.Fprintf(b, "stimulated: %t\n", snap.Stimulated)
	for _, c := range snap.Commands {
		fmt.Fprintf(b, "command: %s\n", c)
	}
	if out := strings.TrimSpace(snap.Output); out != "" {
		b.WriteString("output:\n")
		for _, line := range strings.Split(out, "\n") {
			fmt.Fprintf(b, "  %s\n", strings.TrimSpace(line))
		}
	}
	for _, p := range snap.Paths {
		fmt.Fprintf(b, "path: %s\n", p)
	}
	for _, r := range snap.Before {
		fmt.Fprintf(b, "before[%s]: %s\n", r.Source, r.Counters)
	}
	for _, r := range snap.After {
		fmt.Fprintf(b, "after[%s]: %s\n", r.Source, r.Counters)
	}
	if reads, writes, sr, sw, ok := snap.Delta(); ok {
		fmt.Fprintf(b, "delta: reads +%d writes +%d (%s read, %s written)\n",
			reads, writes,
			humanize.Bytes(sr*sectorSize), humanize.Bytes(sw*sectorSize))
	}
	fmt.Fprintf(b, "captured_at: %s\n", snap.CapturedAt.Format("2006-01-02T15:04:05Z07:00"))
}
