package harness

import (
	"fmt"
	"os/exec"
	"runtime"
	"slices"
	"strings"
)

// Platform selects hosts by operating system, architecture and debugger.
// Empty lists match everything.
type Platform struct {
	OS       []string `yaml:"os,omitempty" json:"os,omitempty"`
	Arch     []string `yaml:"arch,omitempty" json:"arch,omitempty"`
	Debugger []string `yaml:"debugger,omitempty" json:"debugger,omitempty"`
}

func (p *Platform) matches(env Environment) bool {
	return matchList(p.OS, env.OS) && matchList(p.Arch, env.Arch) && matchList(p.Debugger, env.Debugger)
}

func (p *Platform) String() string {
	var parts []string
	if len(p.OS) > 0 {
		parts = append(parts, "os="+strings.Join(p.OS, ","))
	}
	if len(p.Arch) > 0 {
		parts = append(parts, "arch="+strings.Join(p.Arch, ","))
	}
	if len(p.Debugger) > 0 {
		parts = append(parts, "debugger="+strings.Join(p.Debugger, ","))
	}
	if len(parts) == 0 {
		return "any"
	}
	return strings.Join(parts, " ")
}

func matchList(list []string, value string) bool {
	return len(list) == 0 || slices.Contains(list, value)
}

// ExpectedFailure marks a known failure on matching hosts.
type ExpectedFailure struct {
	Platform `yaml:",inline"`
	Bug      string `yaml:"bug,omitempty" json:"bug,omitempty"`
}

// Conditions gate whether a scenario or step runs and how its outcome is
// classified.
type Conditions struct {
	SkipUnless      *Platform        `yaml:"skip_unless,omitempty" json:"skip_unless,omitempty"`
	SkipIf          *Platform        `yaml:"skip_if,omitempty" json:"skip_if,omitempty"`
	Requires        []string         `yaml:"requires,omitempty" json:"requires,omitempty"`
	ExpectedFailure *ExpectedFailure `yaml:"expected_failure,omitempty" json:"expected_failure,omitempty"`
}

// Environment describes the host a run happens on.
type Environment struct {
	OS       string
	Arch     string
	Debugger string

	// LookPath resolves required executables. Defaults to exec.LookPath.
	LookPath func(string) (string, error)
}

// DetectEnvironment describes the current host.
func DetectEnvironment() Environment {
	return Environment{OS: runtime.GOOS, Arch: runtime.GOARCH, LookPath: exec.LookPath}
}

func (e Environment) lookPath(name string) error {
	look := e.LookPath
	if look == nil {
		look = exec.LookPath
	}
	_, err := look(name)
	return err
}

// verdict is the evaluation of Conditions against an Environment.
type verdict struct {
	skip            string // non-empty when the run must be skipped
	expectedFailure bool
	bug             string
}

func (c Conditions) evaluate(env Environment) verdict {
	if c.SkipUnless != nil && !c.SkipUnless.matches(env) {
		return verdict{skip: "requires " + c.SkipUnless.String()}
	}
	if c.SkipIf != nil && c.SkipIf.matches(env) {
		return verdict{skip: "skipped on " + c.SkipIf.String()}
	}
	for _, tool := range c.Requires {
		if err := env.lookPath(tool); err != nil {
			return verdict{skip: fmt.Sprintf("required tool %q not found", tool)}
		}
	}
	if c.ExpectedFailure != nil && c.ExpectedFailure.matches(env) {
		return verdict{expectedFailure: true, bug: c.ExpectedFailure.Bug}
	}
	return verdict{}
}
