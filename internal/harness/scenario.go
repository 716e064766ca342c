package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dbgconform/internal/fixture"
)

// DefaultStepTimeout bounds each debugger call when a scenario sets none.
const DefaultStepTimeout = 30 * time.Second

// Scenario defines a conformance test: a fixture program, breakpoints and
// an ordered list of debugger interactions with expected output.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name" json:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description" json:"description"`

	// Debugger names the backend the scenario was written for. The runner
	// may override it.
	Debugger string `yaml:"debugger,omitempty" json:"debugger,omitempty"`

	Tags []string `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Timeout bounds every debugger call ("30s"). Defaults to
	// DefaultStepTimeout.
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// Fixture is the program under the debugger. REPL scenarios have none.
	Fixture *fixture.Spec `yaml:"fixture,omitempty" json:"fixture,omitempty"`

	// Breakpoints are created after the target and before the first step.
	Breakpoints []BreakpointDef `yaml:"breakpoints,omitempty" json:"breakpoints,omitempty"`

	// Registers overrides how result registers are recognised in output.
	Registers *RegisterConfig `yaml:"registers,omitempty" json:"registers,omitempty"`

	Conditions Conditions `yaml:"conditions,omitempty" json:"conditions,omitempty"`

	Steps []Step `yaml:"steps" json:"steps"`

	// Path is the file the scenario was loaded from.
	Path string `yaml:"-" json:"-"`
}

// BreakpointDef locates a breakpoint by source pattern or line.
type BreakpointDef struct {
	Name    string `yaml:"name" json:"name"`
	File    string `yaml:"file" json:"file"`
	Pattern string `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Line    int    `yaml:"line,omitempty" json:"line,omitempty"`
}

// RegisterConfig holds the register pattern. It must have "name" and
// "value" groups.
type RegisterConfig struct {
	Pattern string `yaml:"pattern" json:"pattern"`
}

// Step kinds.
const (
	KindRun        = "run"
	KindEvaluate   = "evaluate"
	KindCommand    = "command"
	KindBreakpoint = "breakpoint"
)

// Step is one debugger interaction. Exactly one of Run, Evaluate, Command
// and Breakpoint is set.
type Step struct {
	Name string `yaml:"name,omitempty" json:"name,omitempty"`

	// Run resumes the process until the named breakpoint. The first run
	// launches the process.
	Run string `yaml:"run,omitempty" json:"run,omitempty"`

	// Evaluate is an expression, or REPL input. ${alias} expands to the
	// register bound to alias.
	Evaluate string `yaml:"evaluate,omitempty" json:"evaluate,omitempty"`

	// Command is a raw debugger command. ${alias} expands as for Evaluate.
	Command string `yaml:"command,omitempty" json:"command,omitempty"`

	// Breakpoint creates a breakpoint mid-session.
	Breakpoint *BreakpointDef `yaml:"breakpoint,omitempty" json:"breakpoint,omitempty"`

	// Bind names the first result register this step produces.
	Bind string `yaml:"bind,omitempty" json:"bind,omitempty"`

	Expect Expect `yaml:"expect,omitempty" json:"expect,omitempty"`

	Conditions Conditions `yaml:"conditions,omitempty" json:"conditions,omitempty"`
}

// Kind returns the step kind, or "" when none or several are set.
func (s *Step) Kind() string {
	var kinds []string
	if s.Run != "" {
		kinds = append(kinds, KindRun)
	}
	if s.Evaluate != "" {
		kinds = append(kinds, KindEvaluate)
	}
	if s.Command != "" {
		kinds = append(kinds, KindCommand)
	}
	if s.Breakpoint != nil {
		kinds = append(kinds, KindBreakpoint)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// Input returns the text sent to the debugger for this step.
func (s *Step) Input() string {
	switch s.Kind() {
	case KindRun:
		return s.Run
	case KindEvaluate:
		return s.Evaluate
	case KindCommand:
		return s.Command
	case KindBreakpoint:
		return s.Breakpoint.Name
	}
	return ""
}

// Label returns the step name, or its kind and input.
func (s *Step) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return s.Kind() + " " + s.Input()
}

// Expect lists what a step's output must contain. An empty Expect always
// matches.
type Expect struct {
	// Patterns are regular expressions searched for in the output.
	// ${alias} expands to the quoted register name.
	Patterns []string `yaml:"patterns,omitempty" json:"patterns,omitempty"`

	// Substrs are literal substrings.
	Substrs []string `yaml:"substrs,omitempty" json:"substrs,omitempty"`

	// Registers are aliases whose bound values must appear verbatim.
	Registers []string `yaml:"registers,omitempty" json:"registers,omitempty"`

	// Ordered requires Patterns to match one after another.
	Ordered bool `yaml:"ordered,omitempty" json:"ordered,omitempty"`
}

// Empty reports whether e has no expectations.
func (e Expect) Empty() bool {
	return len(e.Patterns) == 0 && len(e.Substrs) == 0 && len(e.Registers) == 0
}

// StepTimeout returns the parsed Timeout or the default.
func (s *Scenario) StepTimeout() time.Duration {
	if s.Timeout == "" {
		return DefaultStepTimeout
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d <= 0 {
		return DefaultStepTimeout
	}
	return d
}

// LoadScenario reads and parses a scenario file. Files ending in .cue are
// evaluated with CUE; everything else is YAML. Fixture sources are
// resolved relative to the scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario *Scenario
	if filepath.Ext(path) == ".cue" {
		scenario, err = ParseCUE(data, path)
	} else {
		scenario, err = ParseYAML(data)
	}
	if err != nil {
		return nil, &ScenarioError{Path: path, Err: err}
	}
	scenario.Path = path
	scenario.resolvePaths(filepath.Dir(path))

	if err := scenario.Validate(); err != nil {
		return nil, &ScenarioError{Path: path, Err: err}
	}
	return scenario, nil
}

// ParseYAML decodes a scenario, rejecting unknown fields. It does not
// validate.
func ParseYAML(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &scenario, nil
}

// ParseCUE evaluates a CUE scenario, which must be fully concrete. It does
// not validate.
func ParseCUE(data []byte, filename string) (*Scenario, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("failed to compile CUE: %w", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("CUE scenario is not concrete: %w", err)
	}
	var scenario Scenario
	if err := value.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to decode CUE scenario: %w", err)
	}
	return &scenario, nil
}

// resolvePaths makes relative fixture paths relative to baseDir.
func (s *Scenario) resolvePaths(baseDir string) {
	if s.Fixture == nil || baseDir == "" {
		return
	}
	for i, src := range s.Fixture.Sources {
		if !filepath.IsAbs(src) && !hasScheme(src) {
			s.Fixture.Sources[i] = filepath.Join(baseDir, src)
		}
	}
	if p := s.Fixture.Prebuilt; p != "" && !filepath.IsAbs(p) && !hasScheme(p) {
		s.Fixture.Prebuilt = filepath.Join(baseDir, p)
	}
}

func hasScheme(u string) bool {
	for i := 0; i < len(u); i++ {
		switch c := u[i]; {
		case c == ':':
			return i > 1 && i+2 < len(u) && u[i+1] == '/' && u[i+2] == '/'
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '+', c == '-', c == '.':
		default:
			return false
		}
	}
	return false
}

// Validate checks the scenario and returns every problem found, joined.
func (s *Scenario) Validate() error {
	errs := ValidateScenario(s)
	if len(errs) == 0 {
		return nil
	}
	joined := make([]error, len(errs))
	for i, e := range errs {
		joined[i] = e
	}
	return errors.Join(joined...)
}
