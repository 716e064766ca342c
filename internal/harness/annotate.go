package harness

import (
	"fmt"
	"path/filepath"

	"github.com/roach88/dbgconform/internal/fixture"
)

// FromAnnotations builds a scenario from parsed "// BREAKPOINT" annotations
// for one debugger. Each annotation becomes a line breakpoint, a run step
// and one command step per annotated command.
func FromAnnotations(name string, spec fixture.Spec, anns []fixture.Annotation, debuggerName string) (*Scenario, error) {
	s := &Scenario{
		Name:        name,
		Description: fmt.Sprintf("breakpoint annotations for %s", debuggerName),
		Debugger:    debuggerName,
		Fixture:     &spec,
	}
	for i, ann := range anns {
		tests := ann.For(debuggerName)
		if len(tests) == 0 {
			continue
		}
		bp := BreakpointDef{
			Name: fmt.Sprintf("bp%d", i+1),
			File: filepath.Base(ann.File),
			Line: ann.Line,
		}
		s.Breakpoints = append(s.Breakpoints, bp)
		s.Steps = append(s.Steps, Step{Run: bp.Name})
		for _, t := range tests {
			s.Steps = append(s.Steps, Step{
				Name:    fmt.Sprintf("%s:%d", bp.File, t.Line),
				Command: t.Command,
				Expect:  Expect{Patterns: t.Want, Ordered: true},
			})
		}
	}
	if len(s.Steps) == 0 {
		return nil, fmt.Errorf("no %s annotations found", debuggerName)
	}
	return s, nil
}
