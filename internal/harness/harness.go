package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/roach88/dbgconform/internal/debugger"
	"github.com/roach88/dbgconform/internal/fixture"
	"github.com/roach88/dbgconform/internal/tracing"
	"github.com/roach88/dbgconform/internal/transcript"
)

// Harness runs scenarios against one debugger backend. A Harness holds no
// per-run state; concurrent Run calls are independent.
type Harness struct {
	debugger debugger.Debugger
	builder  fixture.Builder
	logger   *slog.Logger
	env      Environment
	timeout  time.Duration
	newID    func() string
	workDir  string
	now      func() time.Time
}

// Option configures a Harness.
type Option func(*Harness)

// WithDebugger sets the debugger backend. Required.
func WithDebugger(d debugger.Debugger) Option {
	return func(h *Harness) { h.debugger = d }
}

// WithBuilder sets the fixture builder. Defaults to a shell builder.
func WithBuilder(b fixture.Builder) Option {
	return func(h *Harness) { h.builder = b }
}

// WithLogger sets the logger. Defaults to discarding.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// WithEnvironment overrides host detection for conditions.
func WithEnvironment(env Environment) Option {
	return func(h *Harness) { h.env = env }
}

// WithStepTimeout overrides every scenario's step timeout.
func WithStepTimeout(d time.Duration) Option {
	return func(h *Harness) { h.timeout = d }
}

// WithIDGenerator sets the run ID generator. Defaults to UUIDv7.
func WithIDGenerator(f func() string) Option {
	return func(h *Harness) { h.newID = f }
}

// WithWorkDir sets the parent directory for per-run work directories.
func WithWorkDir(dir string) Option {
	return func(h *Harness) { h.workDir = dir }
}

// WithClock sets the wall clock used for StartedAt and durations.
func WithClock(now func() time.Time) Option {
	return func(h *Harness) { h.now = now }
}

// New returns a Harness. A debugger is required.
func New(opts ...Option) (*Harness, error) {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		env:    DetectEnvironment(),
		newID:  NewRunID,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.debugger == nil {
		return nil, fmt.Errorf("harness: a debugger is required")
	}
	if h.builder == nil {
		h.builder = &fixture.ShellBuilder{Logger: h.logger}
	}
	return h, nil
}

// Run is shorthand for New(opts...) followed by Run.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	h, err := New(opts...)
	if err != nil {
		return nil, err
	}
	return h.Run(ctx, scenario)
}

// Run executes a scenario. Test failures, skips and build errors are
// reported in the Result; the error is non-nil only when the scenario is
// invalid or the run could not be set up.
//
// Lifecycle: Created → Building → Running → (Evaluating → Asserting per
// step) → Completed or Failed. The debugger session is closed on every
// path out of Run, including cancellation of ctx.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	if scenario == nil {
		return nil, fmt.Errorf("harness: nil scenario")
	}
	if err := scenario.Validate(); err != nil {
		return nil, &ScenarioError{Path: scenario.Path, Err: err}
	}

	result := newResult(h.newID(), scenario.Name, h.debugger.Name())
	result.StartedAt = h.now()
	logger := h.logger.With("scenario", scenario.Name, "run_id", result.RunID, "debugger", h.debugger.Name())

	ctx, span := tracing.StartSpan(ctx, "harness.run", map[string]string{
		"scenario": scenario.Name,
		"debugger": h.debugger.Name(),
		"run_id":   result.RunID,
	})

	x := &execution{h: h, scenario: scenario, result: result, logger: logger}
	x.run(ctx)

	result.Duration = h.now().Sub(result.StartedAt)
	if err := finish(result); err != nil {
		tracing.EndSpan(span, err)
		return nil, err
	}
	span.WithAttributes(map[string]string{"outcome": string(result.Outcome)})
	if result.Outcome.Counts() {
		tracing.EndSpan(span, result.Err)
	} else {
		tracing.EndSpan(span, nil)
	}

	logger.Info("scenario finished",
		"outcome", result.Outcome,
		"state", result.State,
		"steps", len(result.Steps),
		"duration", result.Duration,
	)
	return result, nil
}

// execution is the state of one Run.
type execution struct {
	h        *Harness
	scenario *Scenario
	result   *Result
	logger   *slog.Logger

	verdict     verdict
	timeout     time.Duration
	session     debugger.Session
	artifact    *fixture.Artifact
	regs        *registerFile
	breakpoints map[string]debugger.Breakpoint
	byID        map[int]string
	launched    bool
}

func (x *execution) run(ctx context.Context) {
	x.verdict = x.scenario.Conditions.evaluate(x.environment())
	if x.verdict.skip != "" {
		x.result.skip(x.verdict.skip, nil)
		return
	}
	if x.verdict.expectedFailure {
		x.result.expectFailure = true
		x.result.Bug = x.verdict.bug
	}

	if err := x.h.debugger.Probe(); err != nil {
		if errors.Is(err, debugger.ErrUnavailable) {
			envErr := &EnvironmentError{Reason: x.h.debugger.Name() + " unavailable", Err: err}
			x.result.skip(envErr.Error(), envErr)
			return
		}
		x.result.fail(&DebuggerError{Op: "probe", Err: err})
		return
	}

	x.timeout = x.scenario.StepTimeout()
	if x.h.timeout > 0 {
		x.timeout = x.h.timeout
	}
	pattern := x.h.debugger.RegisterPattern()
	if x.scenario.Registers != nil && x.scenario.Registers.Pattern != "" {
		pattern = x.scenario.Registers.Pattern
	}
	regs, err := newRegisterFile(pattern)
	if err != nil {
		x.result.fail(&DebuggerError{Op: "register pattern", Err: err})
		return
	}
	x.regs = regs
	defer func() { x.result.Registers = x.regs.all() }()
	x.breakpoints = make(map[string]debugger.Breakpoint)
	x.byID = make(map[int]string)

	workDir, err := os.MkdirTemp(x.h.workDir, "dbgconform-")
	if err != nil {
		x.result.fail(fmt.Errorf("create work directory: %w", err))
		return
	}
	defer os.RemoveAll(workDir)

	if x.scenario.Fixture != nil {
		x.result.enter(StateBuilding)
		x.logger.Debug("building fixture", "work_dir", workDir)
		art, err := x.h.builder.Build(ctx, *x.scenario.Fixture, workDir)
		if err != nil {
			var buildErr *BuildError
			if !errors.As(err, &buildErr) {
				err = &BuildError{Err: err}
			}
			x.result.fail(err)
			return
		}
		x.artifact = art
		x.result.BuildLog = transcript.NormalizeOutput(art.Log)
	}

	x.result.enter(StateRunning)
	session, err := x.h.debugger.Open(ctx, debugger.SessionOptions{WorkDir: workDir})
	if err != nil {
		if errors.Is(err, debugger.ErrUnavailable) {
			envErr := &EnvironmentError{Reason: x.h.debugger.Name() + " unavailable", Err: err}
			x.result.skip(envErr.Error(), envErr)
			return
		}
		x.result.fail(&DebuggerError{Op: "open", Err: err})
		return
	}
	x.session = session
	defer func() {
		if err := session.Close(); err != nil {
			x.logger.Warn("debugger session close failed", "error", err)
		}
	}()

	if err := x.setup(ctx); err != nil {
		x.abort(err)
		return
	}

	for i := range x.scenario.Steps {
		if err := x.step(ctx, i, &x.scenario.Steps[i]); err != nil {
			x.abort(err)
			return
		}
	}
	x.result.enter(StateCompleted)
}

// abort ends the run. A capability the debugger does not offer skips the
// run; anything else fails it.
func (x *execution) abort(err error) {
	if errors.Is(err, debugger.ErrUnsupported) {
		envErr := &EnvironmentError{Reason: x.h.debugger.Name() + " does not support this scenario", Err: err}
		x.result.skip(envErr.Error(), envErr)
		return
	}
	x.result.fail(err)
}

// setup creates the target and scenario-level breakpoints.
func (x *execution) setup(ctx context.Context) error {
	if x.artifact != nil {
		err := x.call(ctx, func(ctx context.Context) error {
			return x.session.CreateTarget(ctx, x.artifact.Executable)
		})
		if err != nil {
			return &DebuggerError{Op: "create target", Err: err}
		}
	}
	for i := range x.scenario.Breakpoints {
		if _, err := x.createBreakpoint(ctx, &x.scenario.Breakpoints[i]); err != nil {
			return err
		}
	}
	return nil
}

// call runs fn under the step timeout.
func (x *execution) call(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, x.timeout)
	defer cancel()
	return fn(ctx)
}

func (x *execution) createBreakpoint(ctx context.Context, def *BreakpointDef) (debugger.Breakpoint, error) {
	spec := debugger.BreakpointSpec{
		Name:    def.Name,
		File:    def.File,
		Path:    x.artifact.SourcePath(def.File),
		Pattern: def.Pattern,
		Line:    def.Line,
	}
	var bp debugger.Breakpoint
	err := x.call(ctx, func(ctx context.Context) error {
		var err error
		bp, err = x.session.CreateBreakpoint(ctx, spec)
		return err
	})
	if err != nil {
		return bp, &DebuggerError{Op: "create breakpoint " + spec.Location(), Err: err}
	}
	x.breakpoints[def.Name] = bp
	x.byID[bp.ID] = def.Name
	x.logger.Debug("breakpoint created", "name", def.Name, "location", spec.Location(), "locations", bp.Locations)
	return bp, nil
}

// step executes one step. A returned error ends the run.
func (x *execution) step(ctx context.Context, index int, step *Step) (err error) {
	sr := StepResult{Index: index, Name: step.Name, Kind: step.Kind(), Input: step.Input()}
	started := x.h.now()

	v := step.Conditions.evaluate(x.environment())
	if v.skip != "" {
		sr.Outcome = OutcomeSkipped
		sr.Error = v.skip
		x.result.Steps = append(x.result.Steps, sr)
		x.logger.Info("step skipped", "step", index, "reason", v.skip)
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "harness.step", map[string]string{
		"step": strconv.Itoa(index),
		"kind": sr.Kind,
	})
	defer func() { tracing.EndSpan(span, err) }()

	x.result.enter(StateEvaluating)
	stepErr := x.perform(ctx, index, step, &sr)
	if stepErr == nil {
		x.result.enter(StateAsserting)
		stepErr = x.assert(index, step, &sr)
	}
	sr.Duration = x.h.now().Sub(started)

	switch {
	case stepErr == nil && v.expectedFailure:
		sr.Outcome = OutcomeUnexpectedSuccess
		sr.Bug = v.bug
	case stepErr == nil:
		sr.Outcome = OutcomePassed
	case errors.Is(stepErr, debugger.ErrUnsupported):
		sr.Outcome = OutcomeSkipped
		sr.Err = stepErr
		sr.Error = stepErr.Error()
		sr.ErrorKind = errorKind(stepErr)
	case v.expectedFailure && ctx.Err() == nil:
		sr.Outcome = OutcomeExpectedFailure
		sr.Bug = v.bug
		sr.Err = stepErr
		sr.Error = stepErr.Error()
		sr.ErrorKind = errorKind(stepErr)
		stepErr = nil
	default:
		sr.Outcome = OutcomeFailed
		sr.Err = stepErr
		sr.Error = stepErr.Error()
		sr.ErrorKind = errorKind(stepErr)
	}
	x.result.Steps = append(x.result.Steps, sr)

	x.logger.Info("step completed",
		"step", index,
		"kind", sr.Kind,
		"outcome", sr.Outcome,
	)
	return stepErr
}

func (x *execution) environment() Environment {
	env := x.h.env
	env.Debugger = x.h.debugger.Name()
	return env
}

// perform issues the step's debugger action and records its output.
func (x *execution) perform(ctx context.Context, index int, step *Step, sr *StepResult) error {
	switch step.Kind() {
	case KindRun:
		return x.runTo(ctx, step.Run, sr)
	case KindBreakpoint:
		bp, err := x.createBreakpoint(ctx, step.Breakpoint)
		if err != nil {
			return err
		}
		sr.Output = fmt.Sprintf("breakpoint %d: %d locations\n", bp.ID, bp.Locations)
		sr.Succeeded = true
		return nil
	}

	input, err := x.regs.expand(step.Input(), identity)
	if err != nil {
		return err
	}
	sr.Input = input

	var reply debugger.Reply
	err = x.call(ctx, func(ctx context.Context) error {
		var err error
		if step.Kind() == KindEvaluate {
			reply, err = x.session.Evaluate(ctx, input)
		} else {
			reply, err = x.session.Command(ctx, input)
		}
		return err
	})
	if err != nil {
		return &DebuggerError{Op: step.Kind(), Err: err}
	}
	sr.Output = transcript.NormalizeOutput(reply.Output)
	sr.Succeeded = reply.Succeeded

	captured, err := x.regs.capture(index, sr.Output)
	if err != nil {
		return err
	}
	if step.Bind != "" {
		bound, err := x.regs.bind(step.Bind, captured)
		if err != nil {
			return err
		}
		captured[0] = bound
	}
	sr.Registers = captured
	return nil
}

// runTo resumes the process until the named breakpoint.
func (x *execution) runTo(ctx context.Context, name string, sr *StepResult) error {
	bp, ok := x.breakpoints[name]
	if !ok {
		return &BreakpointMissedError{Breakpoint: name, Reason: MissNoLocation, Err: fmt.Errorf("breakpoint not created")}
	}
	if bp.Locations == 0 {
		return &BreakpointMissedError{Breakpoint: name, Reason: MissNoLocation}
	}

	var stop debugger.Stop
	op := "continue"
	if !x.launched {
		op = "launch"
	}
	err := x.call(ctx, func(ctx context.Context) error {
		var err error
		if !x.launched {
			stop, err = x.session.Launch(ctx)
			x.launched = err == nil
		} else {
			stop, err = x.session.Continue(ctx)
		}
		return err
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return &BreakpointMissedError{Breakpoint: name, Reason: MissTimeout, Err: err}
		}
		return &DebuggerError{Op: op, Err: err}
	}

	sr.Output = stop.String()
	if stop.Reason == debugger.StopBreakpoint {
		if other, ok := x.byID[stop.BreakpointID]; ok {
			sr.Output += fmt.Sprintf(" (%s)", other)
		}
	}
	sr.Output += "\n"

	switch {
	case stop.Reason == debugger.StopBreakpoint && stop.BreakpointID == bp.ID:
		sr.Succeeded = true
		return nil
	case stop.Reason == debugger.StopExited:
		return &BreakpointMissedError{Breakpoint: name, Reason: MissExited, Stop: stop}
	default:
		return &BreakpointMissedError{Breakpoint: name, Reason: MissElsewhere, Stop: stop}
	}
}

// assert checks the captured output against the step expectations.
func (x *execution) assert(index int, step *Step, sr *StepResult) error {
	if step.Expect.Empty() {
		return nil
	}
	exp, err := resolveExpect(step.Expect, x.regs)
	if err != nil {
		return err
	}
	if mismatch := exp.match(index, step.Name, sr.Output); mismatch != nil {
		return mismatch
	}
	return nil
}

// finish classifies the outcome and computes the fingerprint.
func finish(r *Result) error {
	if r.Outcome != OutcomeSkipped {
		failed := r.State == StateFailed
		switch {
		case failed && r.expectFailure:
			r.Outcome = OutcomeExpectedFailure
		case failed:
			r.Outcome = OutcomeFailed
		case r.expectFailure:
			r.Outcome = OutcomeUnexpectedSuccess
		default:
			r.Outcome = OutcomePassed
		}
	}
	r.Pass = !r.Outcome.Counts()

	fp, err := transcript.Fingerprint(transcript.DomainRun, Transcript(r))
	if err != nil {
		return fmt.Errorf("harness: %w", err)
	}
	r.Fingerprint = fp
	return nil
}
