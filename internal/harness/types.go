package harness

import "time"

// State is a point in the run lifecycle.
type State string

const (
	StateCreated    State = "created"
	StateBuilding   State = "building"
	StateRunning    State = "running"
	StateEvaluating State = "evaluating"
	StateAsserting  State = "asserting"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Outcome classifies a finished run or step.
type Outcome string

const (
	OutcomePassed            Outcome = "passed"
	OutcomeFailed            Outcome = "failed"
	OutcomeSkipped           Outcome = "skipped"
	OutcomeExpectedFailure   Outcome = "expected_failure"
	OutcomeUnexpectedSuccess Outcome = "unexpected_success"
)

// Counts reports whether the outcome counts as a failure for exit status.
func (o Outcome) Counts() bool { return o == OutcomeFailed }

// StepResult records one executed step.
type StepResult struct {
	Index     int               `json:"index"`
	Name      string            `json:"name,omitempty"`
	Kind      string            `json:"kind"`
	Input     string            `json:"input"`
	Output    string            `json:"output"`
	Succeeded bool              `json:"succeeded"` // debugger-reported status
	Outcome   Outcome           `json:"outcome"`
	Registers []RegisterBinding `json:"registers,omitempty"`
	Error     string            `json:"error,omitempty"`
	ErrorKind string            `json:"error_kind,omitempty"`
	Bug       string            `json:"bug,omitempty"`
	Duration  time.Duration     `json:"duration"`

	Err error `json:"-"`
}

// Result is the outcome of a scenario run.
type Result struct {
	RunID    string `json:"run_id"`
	Scenario string `json:"scenario"`
	Debugger string `json:"debugger"`

	// Pass is false only when the outcome counts as a failure.
	Pass    bool    `json:"pass"`
	Outcome Outcome `json:"outcome"`

	// State is the final state. States lists every state visited in order,
	// with Evaluating and Asserting repeated per step.
	State  State   `json:"state"`
	States []State `json:"states"`

	Steps     []StepResult      `json:"steps"`
	Registers []RegisterBinding `json:"registers,omitempty"`

	Error      string `json:"error,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	SkipReason string `json:"skip_reason,omitempty"`
	Bug        string `json:"bug,omitempty"`
	BuildLog   string `json:"build_log,omitempty"`

	// Fingerprint digests the transcript; identical runs share it.
	Fingerprint string `json:"fingerprint"`

	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	Err error `json:"-"`

	expectFailure bool
}

func newResult(runID, scenario, debuggerName string) *Result {
	return &Result{
		RunID:    runID,
		Scenario: scenario,
		Debugger: debuggerName,
		Pass:     true,
		State:    StateCreated,
		States:   []State{StateCreated},
		Steps:    []StepResult{},
	}
}

func (r *Result) enter(s State) {
	r.State = s
	r.States = append(r.States, s)
}

// fail records the run-level error and moves to Failed.
func (r *Result) fail(err error) {
	r.Err = err
	r.Error = err.Error()
	r.ErrorKind = errorKind(err)
	r.enter(StateFailed)
}

// skip records why the run did not happen.
func (r *Result) skip(reason string, err error) {
	r.Outcome = OutcomeSkipped
	r.SkipReason = reason
	if err != nil {
		r.Err = err
		r.ErrorKind = errorKind(err)
	}
}
