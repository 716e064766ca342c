package harness

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// expectation is an Expect resolved against the register file: patterns
// compiled with aliases expanded, register aliases replaced by values.
type expectation struct {
	patterns []*regexp.Regexp
	sources  []string // pattern text as written, for reporting
	substrs  []string
	values   []string // bound register values
	aliases  []string
	ordered  bool
}

func resolveExpect(e Expect, regs *registerFile) (*expectation, error) {
	exp := &expectation{ordered: e.Ordered, substrs: e.Substrs, sources: e.Patterns}
	for _, p := range e.Patterns {
		expanded, err := regs.expand(p, regexp.QuoteMeta)
		if err != nil {
			return nil, err
		}
		re, err := regexp.Compile(expanded)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		exp.patterns = append(exp.patterns, re)
	}
	for _, alias := range e.Registers {
		b, err := regs.lookup(alias)
		if err != nil {
			return nil, err
		}
		exp.values = append(exp.values, b.Value)
		exp.aliases = append(exp.aliases, alias)
	}
	return exp, nil
}

// match checks output against exp and returns the first unmet expectation.
// Patterns are searched anywhere in output; in ordered mode each search
// starts where the previous match ended.
func (exp *expectation) match(step int, name, output string) *PatternMismatchError {
	mismatch := func(kind, pattern string) *PatternMismatchError {
		return &PatternMismatchError{
			Step:     step,
			StepName: name,
			Kind:     kind,
			Pattern:  pattern,
			Output:   output,
			Diff:     expectationDiff(exp.sources, exp.substrs, output),
		}
	}

	pos := 0
	for i, re := range exp.patterns {
		if !exp.ordered {
			if !re.MatchString(output) {
				return mismatch("pattern", exp.sources[i])
			}
			continue
		}
		loc := re.FindStringIndex(output[pos:])
		if loc == nil {
			return mismatch("pattern", exp.sources[i])
		}
		pos += loc[1]
	}
	for _, s := range exp.substrs {
		if !strings.Contains(output, s) {
			return mismatch("substr", s)
		}
	}
	for i, v := range exp.values {
		if !strings.Contains(output, v) {
			return mismatch("register", fmt.Sprintf("${%s} = %s", exp.aliases[i], v))
		}
	}
	return nil
}

// expectationDiff renders a unified diff from the expected lines to the
// captured output lines.
func expectationDiff(patterns, substrs []string, output string) string {
	var want []string
	want = append(want, patterns...)
	want = append(want, substrs...)
	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(strings.Join(want, "\n") + "\n"),
		B:        difflib.SplitLines(strings.TrimRight(output, "\n") + "\n"),
		FromFile: "expected",
		ToFile:   "output",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return ""
	}
	return text
}
