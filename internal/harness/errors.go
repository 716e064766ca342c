package harness

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/dbgconform/internal/debugger"
	"github.com/roach88/dbgconform/internal/fixture"
)

// BuildError reports a fixture that failed to build.
type BuildError = fixture.BuildError

// Reasons a run step can miss its breakpoint.
const (
	MissExited     = "process exited"
	MissElsewhere  = "stopped elsewhere"
	MissNoLocation = "no locations"
	MissTimeout    = "timed out"
)

// BreakpointMissedError is returned when a run step does not stop at its
// breakpoint.
type BreakpointMissedError struct {
	Breakpoint string
	Reason     string // one of the Miss* constants
	Stop       debugger.Stop
	Err        error
}

func (e *BreakpointMissedError) Error() string {
	msg := fmt.Sprintf("breakpoint %q missed: %s", e.Breakpoint, e.Reason)
	if e.Stop.Reason != "" {
		msg += " (" + e.Stop.String() + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *BreakpointMissedError) Unwrap() error { return e.Err }

// PatternMismatchError is returned when captured output does not satisfy a
// step's expectations. It carries everything needed to diagnose the failure
// without re-running.
type PatternMismatchError struct {
	Step     int
	StepName string
	Kind     string // "pattern", "substr" or "register"
	Pattern  string
	Output   string
	Diff     string
}

func (e *PatternMismatchError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "step %d", e.Step)
	if e.StepName != "" {
		fmt.Fprintf(&buf, " (%s)", e.StepName)
	}
	fmt.Fprintf(&buf, ": %s %q not found in output\n", e.Kind, e.Pattern)
	fmt.Fprintf(&buf, "  Output:\n")
	for _, line := range strings.Split(strings.TrimRight(e.Output, "\n"), "\n") {
		fmt.Fprintf(&buf, "    %s\n", line)
	}
	if e.Diff != "" {
		fmt.Fprintf(&buf, "\n%s", e.Diff)
	}
	return buf.String()
}

// EnvironmentError means the run cannot happen here: a tool is missing or
// the platform does not qualify. It is reported as a skip.
type EnvironmentError struct {
	Reason string
	Err    error
}

func (e *EnvironmentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("environment: %s: %v", e.Reason, e.Err)
	}
	return "environment: " + e.Reason
}

func (e *EnvironmentError) Unwrap() error { return e.Err }

// DebuggerError is returned when a debugger call itself fails.
type DebuggerError struct {
	Op  string
	Err error
}

func (e *DebuggerError) Error() string {
	return fmt.Sprintf("debugger %s: %v", e.Op, e.Err)
}

func (e *DebuggerError) Unwrap() error { return e.Err }

// RegisterError reports misuse of a result register.
type RegisterError struct {
	Name   string
	Reason string
}

func (e *RegisterError) Error() string {
	return fmt.Sprintf("register %s: %s", e.Name, e.Reason)
}

// ScenarioError reports an invalid scenario file.
type ScenarioError struct {
	Path string
	Err  error
}

func (e *ScenarioError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("invalid scenario: %v", e.Err)
	}
	return fmt.Sprintf("invalid scenario %s: %v", e.Path, e.Err)
}

func (e *ScenarioError) Unwrap() error { return e.Err }

// IsBuildError reports whether err is or wraps a BuildError.
func IsBuildError(err error) bool {
	var target *BuildError
	return errors.As(err, &target)
}

// IsBreakpointMissed reports whether err is or wraps a BreakpointMissedError.
func IsBreakpointMissed(err error) bool {
	var target *BreakpointMissedError
	return errors.As(err, &target)
}

// IsPatternMismatch reports whether err is or wraps a PatternMismatchError.
func IsPatternMismatch(err error) bool {
	var target *PatternMismatchError
	return errors.As(err, &target)
}

// IsSkip reports whether err means the run should be skipped.
func IsSkip(err error) bool {
	var target *EnvironmentError
	return errors.As(err, &target)
}

// IsRegisterError reports whether err is or wraps a RegisterError.
func IsRegisterError(err error) bool {
	var target *RegisterError
	return errors.As(err, &target)
}

// errorKind names the taxonomy class of err for transcripts and storage.
func errorKind(err error) string {
	var (
		build   *BuildError
		missed  *BreakpointMissedError
		pattern *PatternMismatchError
		env     *EnvironmentError
		dbg     *DebuggerError
		reg     *RegisterError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &build):
		return "build"
	case errors.As(err, &missed):
		return "breakpoint_missed"
	case errors.As(err, &pattern):
		return "pattern_mismatch"
	case errors.As(err, &env):
		return "environment"
	case errors.As(err, &reg):
		return "register"
	case errors.As(err, &dbg):
		return "debugger"
	}
	return "internal"
}
