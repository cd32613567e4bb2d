// pkg/diskstat/stimulate.go

package diskstat

import (
	"context"
	"time"

	"github.com/CodeMonkeyCybersecurity/diskstat/pkg/execute"
	"go.uber.org/zap"
)

// Stimulation records what was run to produce I/O on the device.
type Stimulation struct {
	Command string
	Output  string
}

// Stimulator issues a short burst of reads against a device node.
type Stimulator interface {
	Stimulate(ctx context.Context, devicePath string) (Stimulation, error)
}

const (
	DefaultStimulationTool    = "hdparm"
	DefaultStimulationTimeout = 60 * time.Second
)

// HdparmStimulator runs "<Tool> -t <device>", a buffered read timing test.
type HdparmStimulator struct {
	Tool    string
	Timeout time.Duration
	Logger  *zap.Logger
}

func (h *HdparmStimulator) Stimulate(ctx context.Context, devicePath string) (Stimulation, error) {
	tool := h.Tool
	if tool == "" {
		tool = DefaultStimulationTool
	}
	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultStimulationTimeout
	}
	args := []string{"-t", devicePath}

	out, err := execute.Run(ctx, execute.Options{
		Command: tool,
		Args:    args,
		Timeout: timeout,
		Logger:  h.Logger,
	})
	return Stimulation{Command: tool + " -t " + devicePath, Output: out}, err
}
