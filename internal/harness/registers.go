package harness

import (
	"fmt"
	"regexp"
	"strings"
)

// RegisterBinding is a captured result register.
type RegisterBinding struct {
	Name  string `json:"name"`            // debugger-side name, e.g. $R0
	Value string `json:"value"`           // first line of the printed value
	Alias string `json:"alias,omitempty"` // scenario-side name from bind
	Step  int    `json:"step"`
}

// registerFile holds the append-only register bindings of one run.
type registerFile struct {
	pattern  *regexp.Regexp
	nameIdx  int
	valueIdx int
	bindings []RegisterBinding
	byName   map[string]int
	byAlias  map[string]int
}

func newRegisterFile(pattern string) (*registerFile, error) {
	if err := checkRegisterPattern(pattern); err != nil {
		return nil, err
	}
	re := regexp.MustCompile(pattern)
	return &registerFile{
		pattern:  re,
		nameIdx:  re.SubexpIndex("name"),
		valueIdx: re.SubexpIndex("value"),
		byName:   make(map[string]int),
		byAlias:  make(map[string]int),
	}, nil
}

// capture binds every register in output. A name already bound by an
// earlier step is an error; repeats within the same output are not.
func (r *registerFile) capture(step int, output string) ([]RegisterBinding, error) {
	var captured []RegisterBinding
	seen := make(map[string]bool)
	for _, m := range r.pattern.FindAllStringSubmatch(output, -1) {
		name := m[r.nameIdx]
		value := strings.TrimRight(m[r.valueIdx], " \t\r")
		if seen[name] {
			continue
		}
		if i, ok := r.byName[name]; ok {
			prev := r.bindings[i]
			return captured, &RegisterError{
				Name:   name,
				Reason: fmt.Sprintf("already bound by step %d to %q; registers are append-only", prev.Step, prev.Value),
			}
		}
		seen[name] = true
		b := RegisterBinding{Name: name, Value: value, Step: step}
		r.byName[name] = len(r.bindings)
		r.bindings = append(r.bindings, b)
		captured = append(captured, b)
	}
	return captured, nil
}

// bind attaches alias to the first register captured by a step.
func (r *registerFile) bind(alias string, captured []RegisterBinding) (RegisterBinding, error) {
	if _, ok := r.byAlias[alias]; ok {
		return RegisterBinding{}, &RegisterError{Name: alias, Reason: "alias already bound"}
	}
	if len(captured) == 0 {
		return RegisterBinding{}, &RegisterError{Name: alias, Reason: "step produced no result register to bind"}
	}
	i := r.byName[captured[0].Name]
	r.bindings[i].Alias = alias
	r.byAlias[alias] = i
	return r.bindings[i], nil
}

// lookup returns the binding for alias.
func (r *registerFile) lookup(alias string) (RegisterBinding, error) {
	i, ok := r.byAlias[alias]
	if !ok {
		return RegisterBinding{}, &RegisterError{Name: alias, Reason: "not bound"}
	}
	return r.bindings[i], nil
}

// expand replaces ${alias} in text with the bound register name, passed
// through quote.
func (r *registerFile) expand(text string, quote func(string) string) (string, error) {
	var firstErr error
	out := aliasRef.ReplaceAllStringFunc(text, func(ref string) string {
		alias := aliasRef.FindStringSubmatch(ref)[1]
		b, err := r.lookup(alias)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return ref
		}
		return quote(b.Name)
	})
	return out, firstErr
}

func (r *registerFile) all() []RegisterBinding {
	return append([]RegisterBinding(nil), r.bindings...)
}

func identity(s string) string { return s }
