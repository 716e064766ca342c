package debugger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"
)

// ErrUnavailable reports that a backend cannot run on this machine
// (missing executable, missing python module, unsupported platform).
var ErrUnavailable = errors.New("debugger unavailable")

// ErrUnsupported reports that a session does not offer a capability,
// e.g. breakpoints in a REPL session.
var ErrUnsupported = errors.New("operation not supported by this debugger")

// ErrSessionBroken is returned by every call after a session lost sync
// with its debugger (a reply timed out or the connection dropped).
var ErrSessionBroken = errors.New("debugger session is broken")

// Register patterns understood by the harness. Each has a "name" and a
// "value" group.
const (
	// LLDBRegisterPattern matches "$R0: Int = 5" and "(int) $0 = 2".
	LLDBRegisterPattern = `(?P<name>\$R?[0-9]+)(?::[^=\n]*)?\s*=\s*(?P<value>[^\n]*)`

	// GDBRegisterPattern matches "$1 = 5".
	GDBRegisterPattern = `(?P<name>\$[0-9]+)\s*=\s*(?P<value>[^\n]*)`
)

// Debugger opens sessions against one external debugger.
type Debugger interface {
	// Name identifies the backend ("lldb", "gdb", "repl", "scripted").
	Name() string

	// Probe checks that the backend can run. Errors wrap ErrUnavailable.
	Probe() error

	// RegisterPattern is the default result-register pattern for output
	// produced by this debugger.
	RegisterPattern() string

	// Open starts a new session. The session owns its debugger process;
	// the caller must Close it.
	Open(ctx context.Context, opts SessionOptions) (Session, error)
}

// Session is one live connection to a debugger, scoped to one fixture.
// Calls block until the debugger reports completion or ctx is done.
type Session interface {
	CreateTarget(ctx context.Context, executable string) error
	CreateBreakpoint(ctx context.Context, spec BreakpointSpec) (Breakpoint, error)
	Launch(ctx context.Context) (Stop, error)
	Continue(ctx context.Context) (Stop, error)
	Evaluate(ctx context.Context, expr string) (Reply, error)
	Command(ctx context.Context, command string) (Reply, error)

	// Close tears the session down and terminates the debugger process.
	// It is safe to call more than once.
	Close() error
}

// SessionOptions configure one session.
type SessionOptions struct {
	// WorkDir is the directory the debugger runs in (usually the fixture's
	// staging directory). Empty means the current directory.
	WorkDir string
}

// BreakpointSpec locates a breakpoint by source pattern or line.
type BreakpointSpec struct {
	Name    string // scenario-level name
	File    string // source file as the debugger knows it
	Path    string // staged path of the file, when known
	Pattern string // regular expression matched against source lines
	Line    int    // used when Pattern is empty
}

// Location renders the spec as file:line or file:/pattern/.
func (b BreakpointSpec) Location() string {
	if b.Pattern != "" {
		return fmt.Sprintf("%s:/%s/", b.File, b.Pattern)
	}
	return fmt.Sprintf("%s:%d", b.File, b.Line)
}

// Breakpoint is a breakpoint registered in a session.
type Breakpoint struct {
	ID        int
	Name      string
	Locations int // number of resolved addresses; zero means it can never hit
}

// StopReason says why a launched process stopped.
type StopReason string

const (
	StopBreakpoint StopReason = "breakpoint"
	StopExited     StopReason = "exited"
	StopSignal     StopReason = "signal"
	StopOther      StopReason = "stopped"
)

// Stop describes the state of the process after Launch or Continue.
type Stop struct {
	Reason       StopReason
	BreakpointID int    // set when Reason is StopBreakpoint
	ExitStatus   int    // set when Reason is StopExited
	Detail       string // free-form debugger detail
}

func (s Stop) String() string {
	switch s.Reason {
	case StopBreakpoint:
		return fmt.Sprintf("stopped at breakpoint %d", s.BreakpointID)
	case StopExited:
		return fmt.Sprintf("process exited with status %d", s.ExitStatus)
	}
	if s.Detail != "" {
		return fmt.Sprintf("%s (%s)", s.Reason, s.Detail)
	}
	return string(s.Reason)
}

// Reply is the captured textual result of an evaluation or command.
type Reply struct {
	Output    string
	Succeeded bool // whether the debugger considered the command successful
}

// Config configures a backend. Zero values select defaults.
type Config struct {
	// Path overrides the debugger executable (lldb, gdb).
	Path string

	// Python overrides the python interpreter used by the lldb agent.
	Python string

	// Command is the REPL command line. Defaults to "lldb --repl".
	Command []string

	// Prompt is the REPL primary prompt regex.
	Prompt string

	// Env is appended to the debugger process environment.
	Env []string

	// Output receives the debugger process stdout and stderr.
	Output io.Writer

	// StartTimeout bounds how long Open waits for the debugger to come up.
	StartTimeout time.Duration

	Logger *slog.Logger
}

func (c Config) startTimeout() time.Duration {
	if c.StartTimeout <= 0 {
		return 30 * time.Second
	}
	return c.StartTimeout
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.Logger
}

var backends = map[string]func(Config) Debugger{
	"lldb":     func(c Config) Debugger { return NewLLDB(c) },
	"gdb":      func(c Config) Debugger { return NewGDB(c) },
	"repl":     func(c Config) Debugger { return NewREPL(c) },
	"scripted": func(Config) Debugger { return &Scripted{} },
}

// Names lists the registered backends in sorted order.
func Names() []string {
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New constructs the named backend.
func New(name string, cfg Config) (Debugger, error) {
	ctor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown debugger %q: must be one of %v", name, Names())
	}
	return ctor(cfg), nil
}
