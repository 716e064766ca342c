package fixture

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const breakpointMarker = "// BREAKPOINT"

// Annotation is one "// BREAKPOINT" comment group.
type Annotation struct {
	File string
	// Line is the first line of code after the comment group, where the
	// breakpoint is placed.
	Line  int
	Tests []AnnotatedTest
}

// AnnotatedTest is one debugger command with its expected output.
type AnnotatedTest struct {
	Line     int
	Debugger string // "gdb" or "lldb"
	Command  string
	Want     []string // regular expressions, matched in order
}

// For returns the tests that run under the named debugger.
func (a Annotation) For(debugger string) []AnnotatedTest {
	var out []AnnotatedTest
	for _, t := range a.Tests {
		if t.Debugger == debugger {
			out = append(out, t)
		}
	}
	return out
}

// ParseAnnotations reads breakpoint annotations from a fixture source.
func ParseAnnotations(r io.Reader, filename string) ([]Annotation, error) {
	var (
		anns    []Annotation
		current *Annotation
		lineno  int
		inBlock bool
	)
	scan := bufio.NewScanner(r)
	for scan.Scan() {
		lineno++
		line := strings.TrimSpace(scan.Text())

		if inBlock {
			if i := strings.Index(line, "*/"); i >= 0 {
				inBlock = false
				line = strings.TrimSpace(line[i+2:])
				if line == "" {
					continue
				}
			} else {
				continue
			}
		}
		if strings.HasPrefix(line, "/*") {
			if !strings.Contains(line[2:], "*/") {
				inBlock = true
			}
			continue
		}

		if current == nil {
			if line == breakpointMarker {
				current = &Annotation{File: filename}
			}
			continue
		}

		if !strings.HasPrefix(line, "//") {
			if len(current.Tests) == 0 {
				return nil, fmt.Errorf("%s:%d: breakpoint has no commands", filename, lineno)
			}
			current.Line = lineno
			anns = append(anns, *current)
			current = nil
			continue
		}

		text := strings.TrimSpace(line[2:])
		if dbg, cmd, ok := parseCommand(text); ok {
			current.Tests = append(current.Tests, AnnotatedTest{Line: lineno, Debugger: dbg, Command: cmd})
			continue
		}
		if len(current.Tests) == 0 {
			return nil, fmt.Errorf("%s:%d: expected (gdb) or (lldb) command, got %q", filename, lineno, text)
		}
		last := &current.Tests[len(current.Tests)-1]
		last.Want = append(last.Want, text)
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	if current != nil {
		return nil, fmt.Errorf("%s:%d: breakpoint annotation at end of file", filename, lineno)
	}
	return anns, nil
}

func parseCommand(text string) (debugger, command string, ok bool) {
	for _, name := range []string{"gdb", "lldb"} {
		prefix := "(" + name + ")"
		if strings.HasPrefix(text, prefix) {
			return name, strings.TrimSpace(text[len(prefix):]), true
		}
	}
	return "", "", false
}
