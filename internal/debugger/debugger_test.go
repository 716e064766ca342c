package debugger

import (
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"gdb", "lldb", "repl", "scripted"}, Names())
}

func TestNew(t *testing.T) {
	for _, name := range Names() {
		d, err := New(name, Config{})
		require.NoError(t, err, name)
		assert.Equal(t, name, d.Name())
		_, err = regexp.Compile(d.RegisterPattern())
		assert.NoError(t, err, name)
	}

	_, err := New("windbg", Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown debugger "windbg"`)
}

func TestRegisterPatterns(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		output  string
		reg     string
		value   string
	}{
		{"lldb expression", LLDBRegisterPattern, "(Int) $R0 = 5\n", "$R0", "5"},
		{"swift repl", LLDBRegisterPattern, "$R1: String = \"hi\"\n", "$R1", `"hi"`},
		{"lldb numbered", LLDBRegisterPattern, "(int) $0 = 42\n", "$0", "42"},
		{"gdb print", GDBRegisterPattern, "$3 = {a = 1, b = 2}\n", "$3", "{a = 1, b = 2}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			re := regexp.MustCompile(tt.pattern)
			m := re.FindStringSubmatch(tt.output)
			require.NotNil(t, m)
			assert.Equal(t, tt.reg, m[re.SubexpIndex("name")])
			assert.Equal(t, tt.value, m[re.SubexpIndex("value")])
		})
	}
}

func TestBreakpointSpecLocation(t *testing.T) {
	assert.Equal(t, "main.swift:12", BreakpointSpec{File: "main.swift", Line: 12}.Location())
	assert.Equal(t, "main.swift:/BREAK/", BreakpointSpec{File: "main.swift", Pattern: "BREAK", Line: 3}.Location())
}

func TestREPLPrompt(t *testing.T) {
	r := NewREPL(Config{Prompt: "("})
	assert.Error(t, r.Probe())
	assert.Equal(t, DefaultREPLPrompt, r.prompt.String())

	re := regexp.MustCompile(DefaultREPLPrompt)
	assert.True(t, re.MatchString("$R0: Int = 5\n  2> "))
	assert.False(t, re.MatchString("  2> 1 + 1"))
	assert.Equal(t, "12", re.FindStringSubmatch(" 12> ")[re.SubexpIndex("n")])
}

func TestGDBAgent_ResolvedLocations(t *testing.T) {
	python, err := exec.LookPath("python3")
	if err != nil {
		t.Skip("python3 not available")
	}

	var script strings.Builder
	require.NoError(t, gdbAgent.ExecuteTemplate(&script, "gdb-locations", nil))
	script.WriteString(`
class BP:
	def __init__(self, pending, locations=None):
		self.pending = pending
		if locations is not None:
			self.locations = locations

class Old:
	pending = False

print(resolved_locations(BP(True, [])), resolved_locations(BP(False, [1, 2])), resolved_locations(Old()))
`)
	out, err := exec.Command(python, "-c", script.String()).CombinedOutput()
	require.NoError(t, err, string(out))
	assert.Equal(t, "0 2 1\n", string(out))
}

func TestGDBAgent_Renders(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.py")
	require.NoError(t, renderScript(gdbAgent, path, scriptContext{Sock: "/tmp/agent.sock"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `sock.connect("/tmp/agent.sock")`)
	assert.Contains(t, string(data), "def resolved_locations(bp):")
	assert.Contains(t, string(data), "locations=total")
}
