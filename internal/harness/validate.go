package harness

import (
	"fmt"
	"regexp"
	"time"

	"github.com/roach88/dbgconform/internal/debugger"
)

// Scenario validation error codes (E200-E299).
const (
	ErrScenarioName        = "E201" // name is required
	ErrScenarioDescription = "E202" // description is required
	ErrNoSteps             = "E203" // at least one step required
	ErrStepKind            = "E204" // step must have exactly one kind
	ErrUnknownBreakpoint   = "E205" // run targets a breakpoint not yet created
	ErrDuplicateBreakpoint = "E206" // breakpoint name reused
	ErrBreakpointLocation  = "E207" // breakpoint needs file and pattern or line
	ErrInvalidPattern      = "E208" // expectation or breakpoint regex does not compile
	ErrUnboundAlias        = "E209" // alias used before it is bound
	ErrDuplicateAlias      = "E210" // alias bound twice
	ErrRegisterPattern     = "E211" // register pattern invalid or missing groups
	ErrInvalidTimeout      = "E212" // timeout is not a positive duration
	ErrInvalidFixture      = "E213" // fixture has neither sources nor prebuilt
	ErrUnknownDebugger     = "E214" // debugger is not a registered backend
)

// ValidationError is one problem found in a scenario.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// aliasRef matches ${alias} references in step input and patterns.
var aliasRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var aliasName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidateScenario returns all problems found in s. Steps are walked in
// order so that breakpoint and alias references are checked against what
// earlier steps define.
func ValidateScenario(s *Scenario) []ValidationError {
	var errs []ValidationError
	add := func(field, code, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Code: code, Message: fmt.Sprintf(format, args...)})
	}

	if s.Name == "" {
		add("name", ErrScenarioName, "name is required")
	}
	if s.Description == "" {
		add("description", ErrScenarioDescription, "description is required")
	}
	if s.Debugger != "" {
		if _, err := debugger.New(s.Debugger, debugger.Config{}); err != nil {
			add("debugger", ErrUnknownDebugger, "%v", err)
		}
	}
	if s.Timeout != "" {
		if d, err := time.ParseDuration(s.Timeout); err != nil || d <= 0 {
			add("timeout", ErrInvalidTimeout, "invalid timeout %q", s.Timeout)
		}
	}
	if f := s.Fixture; f != nil && len(f.Sources) == 0 && f.Prebuilt == "" {
		add("fixture", ErrInvalidFixture, "fixture needs sources or prebuilt")
	}
	if s.Registers != nil {
		if err := checkRegisterPattern(s.Registers.Pattern); err != nil {
			add("registers.pattern", ErrRegisterPattern, "%v", err)
		}
	}
	if len(s.Steps) == 0 {
		add("steps", ErrNoSteps, "steps list is required and must be non-empty")
	}

	breakpoints := make(map[string]bool)
	checkBreakpoint := func(field string, bp *BreakpointDef) {
		if bp.Name == "" {
			add(field+".name", ErrBreakpointLocation, "name is required")
		} else if breakpoints[bp.Name] {
			add(field+".name", ErrDuplicateBreakpoint, "breakpoint %q already defined", bp.Name)
		}
		breakpoints[bp.Name] = true
		if bp.File == "" {
			add(field+".file", ErrBreakpointLocation, "file is required")
		}
		switch {
		case bp.Pattern != "" && bp.Line != 0:
			add(field, ErrBreakpointLocation, "pattern and line are mutually exclusive")
		case bp.Pattern == "" && bp.Line <= 0:
			add(field, ErrBreakpointLocation, "pattern or a positive line is required")
		case bp.Pattern != "":
			if _, err := regexp.Compile(bp.Pattern); err != nil {
				add(field+".pattern", ErrInvalidPattern, "%v", err)
			}
		}
	}
	for i := range s.Breakpoints {
		checkBreakpoint(fmt.Sprintf("breakpoints[%d]", i), &s.Breakpoints[i])
	}

	aliases := make(map[string]bool)
	checkRefs := func(field, text string) {
		for _, m := range aliasRef.FindAllStringSubmatch(text, -1) {
			if !aliases[m[1]] {
				add(field, ErrUnboundAlias, "register alias %q is not bound by an earlier step", m[1])
			}
		}
	}

	for i := range s.Steps {
		step := &s.Steps[i]
		field := fmt.Sprintf("steps[%d]", i)

		switch step.Kind() {
		case "":
			add(field, ErrStepKind, "step must set exactly one of run, evaluate, command, breakpoint")
		case KindRun:
			if !breakpoints[step.Run] {
				add(field+".run", ErrUnknownBreakpoint, "breakpoint %q is not created before this step", step.Run)
			}
		case KindEvaluate:
			checkRefs(field+".evaluate", step.Evaluate)
		case KindCommand:
			checkRefs(field+".command", step.Command)
		case KindBreakpoint:
			checkBreakpoint(field+".breakpoint", step.Breakpoint)
		}

		for j, p := range step.Expect.Patterns {
			pfield := fmt.Sprintf("%s.expect.patterns[%d]", field, j)
			checkRefs(pfield, p)
			if _, err := regexp.Compile(aliasRef.ReplaceAllString(p, "x")); err != nil {
				add(pfield, ErrInvalidPattern, "%v", err)
			}
		}
		for j, alias := range step.Expect.Registers {
			if !aliases[alias] && alias != step.Bind {
				add(fmt.Sprintf("%s.expect.registers[%d]", field, j), ErrUnboundAlias, "register alias %q is not bound", alias)
			}
		}

		if step.Bind != "" {
			switch {
			case !aliasName.MatchString(step.Bind):
				add(field+".bind", ErrUnboundAlias, "invalid alias %q", step.Bind)
			case aliases[step.Bind]:
				add(field+".bind", ErrDuplicateAlias, "alias %q already bound", step.Bind)
			case step.Kind() != KindEvaluate && step.Kind() != KindCommand:
				add(field+".bind", ErrUnboundAlias, "only evaluate and command steps produce registers")
			}
			aliases[step.Bind] = true
		}
	}

	return errs
}

func checkRegisterPattern(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	if re.SubexpIndex("name") < 0 || re.SubexpIndex("value") < 0 {
		return fmt.Errorf("pattern %q must have (?P<name>...) and (?P<value>...) groups", pattern)
	}
	return nil
}
