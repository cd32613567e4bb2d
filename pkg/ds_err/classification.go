// pkg/ds_err/classification.go
//
// Outcome classification for the disk activity verifier. Every failure the
// verifier can report maps onto exactly one Outcome, and every Outcome onto a
// stable process exit code.

package ds_err

import (
	"errors"
	"fmt"
	"strings"
)

// Outcome is the result class of a single diskstat invocation.
type Outcome int

const (
	// Success - the device was inspected and a snapshot was reported (exit 0)
	Success Outcome = iota
	// UnexpectedError - subprocess, I/O or internal failure (exit 1)
	UnexpectedError
	// InvalidArgument - bad device name or flag value (exit 2)
	InvalidArgument
	// UnsupportedPlatform - host is not Linux (exit 3)
	UnsupportedPlatform
	// MissingDependency - stimulation utility not on PATH (exit 4)
	MissingDependency
	// DeviceNotFound - no device node / sysfs entry for the name (exit 5)
	DeviceNotFound
	// StatsUnchanged - counters did not move and activity was required (exit 6)
	StatsUnchanged
	// PermissionDenied - not running with root privileges (exit 13, EACCES)
	PermissionDenied
)

// Exit codes are part of the CLI contract; never renumber them.
const (
	ExitSuccess             = 0
	ExitUnexpectedError     = 1
	ExitInvalidArgument     = 2
	ExitUnsupportedPlatform = 3
	ExitMissingDependency   = 4
	ExitDeviceNotFound      = 5
	ExitStatsUnchanged      = 6
	ExitPermissionDenied    = 13
)

var outcomeNames = map[Outcome]string{
	Success:             "success",
	UnexpectedError:     "unexpected_error",
	InvalidArgument:     "invalid_argument",
	UnsupportedPlatform: "unsupported_platform",
	MissingDependency:   "missing_dependency",
	DeviceNotFound:      "device_not_found",
	StatsUnchanged:      "stats_unchanged",
	PermissionDenied:    "permission_denied",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// ExitCode returns the process exit code for the outcome.
func (o Outcome) ExitCode() int {
	switch o {
	case Success:
		return ExitSuccess
	case InvalidArgument:
		return ExitInvalidArgument
	case UnsupportedPlatform:
		return ExitUnsupportedPlatform
	case MissingDependency:
		return ExitMissingDependency
	case DeviceNotFound:
		return ExitDeviceNotFound
	case StatsUnchanged:
		return ExitStatsUnchanged
	case PermissionDenied:
		return ExitPermissionDenied
	default:
		return ExitUnexpectedError
	}
}

// ClassifiedError wraps an error with its outcome and remediation info
type ClassifiedError struct {
	Outcome     Outcome
	Message     string
	Cause       error
	Remediation []string
}

// Error returns a single line: the message, followed by the cause when it adds
// information.
func (e *ClassifiedError) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s", e.Message, firstLine(e.Cause.Error()))
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *ClassifiedError) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error's outcome
func (e *ClassifiedError) ExitCode() int {
	return e.Outcome.ExitCode()
}

// OutcomeOf extracts the outcome from any error.
// Returns Success for nil and UnexpectedError for unclassified errors.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return Success
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Outcome
	}
	return UnexpectedError
}

// GetExitCode extracts exit code from any error
func GetExitCode(err error) int {
	return OutcomeOf(err).ExitCode()
}

// Is reports whether err carries the given outcome.
func Is(err error, o Outcome) bool {
	return err != nil && OutcomeOf(err) == o
}

// Summary is the one-line, user-facing description of err.
func Summary(err error) string {
	if err == nil {
		return ""
	}
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Error()
	}
	return firstLine(err.Error())
}

// Hints returns the remediation steps attached to err, if any.
func Hints(err error) []string {
	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified.Remediation
	}
	return nil
}

// NewPlatformError creates an error for running on a non-Linux host
func NewPlatformError(platform string) error {
	return &ClassifiedError{
		Outcome: UnsupportedPlatform,
		Message: fmt.Sprintf("unsupported platform %q: diskstat only runs on Linux", platform),
		Remediation: []string{
			"Run diskstat on the Linux host that owns the disk",
		},
	}
}

// NewValidationError creates an error for input validation failures
func NewValidationError(message string, remediation ...string) error {
	return &ClassifiedError{
		Outcome:     InvalidArgument,
		Message:     message,
		Remediation: remediation,
	}
}

// NewDependencyError creates an error for missing dependencies
func NewDependencyError(dependency, operation string, remediation ...string) error {
	return &ClassifiedError{
		Outcome: MissingDependency,
		Message: fmt.Sprintf("%s is required for %s but not found on PATH",
			dependency, operation),
		Remediation: remediation,
	}
}

// NewPermissionError creates an error for permission issues
func NewPermissionError(resource, operation string, remediation ...string) error {
	return &ClassifiedError{
		Outcome: PermissionDenied,
		Message: fmt.Sprintf("permission denied: cannot %s %s",
			operation, resource),
		Remediation: remediation,
	}
}

// NewDeviceNotFoundError creates an error for a device missing from one of the
// locations the kernel publishes block devices under.
func NewDeviceNotFoundError(device, location string, cause error) error {
	return &ClassifiedError{
		Outcome: DeviceNotFound,
		Message: fmt.Sprintf("device %s not found in %s", device, location),
		Cause:   cause,
		Remediation: []string{
			"List block devices with: lsblk -d -o NAME",
			"Pass the kernel name (e.g. sda, nvme0n1), not a path",
		},
	}
}

// NewStatsUnchangedError creates an error for counters that did not move
func NewStatsUnchangedError(device string, sources []string) error {
	return &ClassifiedError{
		Outcome: StatsUnchanged,
		Message: fmt.Sprintf("stats for %s did not change in %s",
			device, strings.Join(sources, ", ")),
		Remediation: []string{
			"Increase the settle delay with --settle",
			"Check that the device is not held idle by a controller cache",
		},
	}
}

// NewUnexpectedError creates an error for unanticipated failures.
// The cause is preserved for diagnosis.
func NewUnexpectedError(message string, cause error) error {
	return &ClassifiedError{
		Outcome: UnexpectedError,
		Message: message,
		Cause:   cause,
	}
}

// ExtractSummary picks the most relevant lines out of command output.
func ExtractSummary(output string, maxCandidates int) string {
	trimmed := strings.TrimSpace(output)
	if trimmed == "" {
		return "No output provided."
	}
	if maxCandidates <= 0 {
		maxCandidates = 1
	}

	var candidates []string
	var last string
	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		last = line
		lower := strings.ToLower(line)
		for _, kw := range summaryKeywords {
			if strings.Contains(lower, kw) {
				candidates = append(candidates, line)
				break
			}
		}
		if len(candidates) == maxCandidates {
			break
		}
	}

	if len(candidates) == 0 {
		return last
	}
	return strings.Join(candidates, " - ")
}

var summaryKeywords = []string{"error", "failed", "fatal", "panic", "timeout", "cannot", "denied", "no such"}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}
