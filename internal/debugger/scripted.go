package debugger

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"

	"gopkg.in/yaml.v3"
)

// Scripted is an in-memory debugger that answers from a fixed script.
// Every session starts from the same script, so repeated runs see
// identical replies.
type Scripted struct {
	// Outputs maps an evaluate or command input to its output.
	Outputs map[string]string `yaml:"outputs"`

	// Failures lists inputs whose replies are marked unsuccessful.
	Failures []string `yaml:"failures,omitempty"`

	// Locations maps a breakpoint name to its resolved location count.
	// Breakpoints not listed resolve to one location.
	Locations map[string]int `yaml:"locations,omitempty"`

	// Stops lists, in order, the breakpoint names that Launch and Continue
	// stop at; "exit" stops with a process exit. When nil, each resume stops
	// at the next created, resolvable, not yet hit breakpoint, then exits.
	Stops []string `yaml:"stops,omitempty"`

	// Hang makes Launch and Continue block until their context is done.
	Hang bool `yaml:"hang,omitempty"`

	// Pattern overrides the register pattern.
	Pattern string `yaml:"register_pattern,omitempty"`

	// Unavailable makes Probe fail with ErrUnavailable.
	Unavailable bool `yaml:"unavailable,omitempty"`

	// REPLOnly makes sessions behave like a REPL: targets, breakpoints and
	// process control fail with ErrUnsupported.
	REPLOnly bool `yaml:"repl_only,omitempty"`

	opened atomic.Int64
	closed atomic.Int64
}

// LoadReplay reads a Scripted debugger from a YAML replay file.
func LoadReplay(path string) (*Scripted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read replay file: %w", err)
	}
	var s Scripted
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("failed to parse replay file %s: %w", path, err)
	}
	return &s, nil
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) RegisterPattern() string {
	if s.Pattern != "" {
		return s.Pattern
	}
	return LLDBRegisterPattern
}

func (s *Scripted) Probe() error {
	if s.Unavailable {
		return fmt.Errorf("%w: scripted debugger marked unavailable", ErrUnavailable)
	}
	return nil
}

// Opened and Closed count sessions, for teardown checks in tests.
func (s *Scripted) Opened() int64 { return s.opened.Load() }
func (s *Scripted) Closed() int64 { return s.closed.Load() }

func (s *Scripted) Open(ctx context.Context, _ SessionOptions) (Session, error) {
	if err := s.Probe(); err != nil {
		return nil, err
	}
	s.opened.Add(1)
	return &scriptedSession{script: s, failed: toSet(s.Failures), hit: map[int]bool{}}, nil
}

type scriptedSession struct {
	mu          sync.Mutex
	script      *Scripted
	failed      map[string]bool
	target      string
	breakpoints []Breakpoint
	hit         map[int]bool
	stopIdx     int
	launched    bool
	exited      bool
	closed      bool
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func (s *scriptedSession) unsupported(op string) error {
	if s.script.REPLOnly {
		return fmt.Errorf("scripted %s: %w", op, ErrUnsupported)
	}
	return nil
}

func (s *scriptedSession) CreateTarget(_ context.Context, executable string) error {
	if err := s.unsupported("target"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.target = executable
	return nil
}

func (s *scriptedSession) CreateBreakpoint(_ context.Context, spec BreakpointSpec) (Breakpoint, error) {
	if err := s.unsupported("breakpoint"); err != nil {
		return Breakpoint{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	locations := 1
	if n, ok := s.script.Locations[spec.Name]; ok {
		locations = n
	}
	bp := Breakpoint{ID: len(s.breakpoints) + 1, Name: spec.Name, Locations: locations}
	s.breakpoints = append(s.breakpoints, bp)
	return bp, nil
}

func (s *scriptedSession) Launch(ctx context.Context) (Stop, error) {
	s.mu.Lock()
	if s.launched {
		s.mu.Unlock()
		return Stop{}, fmt.Errorf("process already launched")
	}
	s.launched = true
	s.mu.Unlock()
	return s.resume(ctx)
}

func (s *scriptedSession) Continue(ctx context.Context) (Stop, error) {
	s.mu.Lock()
	launched := s.launched
	s.mu.Unlock()
	if !launched {
		return Stop{}, fmt.Errorf("process not launched")
	}
	return s.resume(ctx)
}

func (s *scriptedSession) resume(ctx context.Context) (Stop, error) {
	if err := s.unsupported("resume"); err != nil {
		return Stop{}, err
	}
	if s.script.Hang {
		<-ctx.Done()
		return Stop{}, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.exited {
		return Stop{}, fmt.Errorf("process has exited")
	}

	if s.script.Stops != nil {
		if s.stopIdx >= len(s.script.Stops) {
			return s.exit(), nil
		}
		name := s.script.Stops[s.stopIdx]
		s.stopIdx++
		for _, bp := range s.breakpoints {
			if bp.Name == name {
				return Stop{Reason: StopBreakpoint, BreakpointID: bp.ID}, nil
			}
		}
		if name == "exit" {
			return s.exit(), nil
		}
		return Stop{Reason: StopOther, Detail: "stopped at " + name}, nil
	}

	for _, bp := range s.breakpoints {
		if bp.Locations > 0 && !s.hit[bp.ID] {
			s.hit[bp.ID] = true
			return Stop{Reason: StopBreakpoint, BreakpointID: bp.ID}, nil
		}
	}
	return s.exit(), nil
}

func (s *scriptedSession) exit() Stop {
	s.exited = true
	return Stop{Reason: StopExited, ExitStatus: 0}
}

func (s *scriptedSession) reply(input string) (Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Reply{}, ErrSessionBroken
	}
	out, ok := s.script.Outputs[input]
	if !ok {
		return Reply{Output: "error: no scripted reply for " + strconv.Quote(input) + "\n"}, nil
	}
	return Reply{Output: out, Succeeded: !s.failed[input]}, nil
}

func (s *scriptedSession) Evaluate(_ context.Context, expr string) (Reply, error) {
	return s.reply(expr)
}

func (s *scriptedSession) Command(_ context.Context, command string) (Reply, error) {
	return s.reply(command)
}

func (s *scriptedSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.script.closed.Add(1)
	}
	return nil
}
