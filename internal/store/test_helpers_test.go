package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/dbgconform/internal/debugger"
	"github.com/roach88/dbgconform/internal/harness"
	"github.com/roach88/dbgconform/internal/testutil"
)

// createTestStore opens a fresh store under t.TempDir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func intVarsScenario() *harness.Scenario {
	return &harness.Scenario{
		Name:        "repl_int_vars",
		Description: "basic integer arithmetic works in the REPL",
		Steps: []harness.Step{
			{Evaluate: "3 + 2", Bind: "sum", Expect: harness.Expect{Patterns: []string{`\$R0: Int = 5`}}},
			{Evaluate: "${sum} + 5", Expect: harness.Expect{Patterns: []string{`\$R1: Int = 10`}}},
		},
	}
}

// runScenario executes scenario against a scripted debugger answering with
// outputs and returns the result.
func runScenario(t *testing.T, ids func() string, scenario *harness.Scenario, outputs map[string]string) *harness.Result {
	t.Helper()
	h, err := harness.New(
		harness.WithDebugger(&debugger.Scripted{Outputs: outputs}),
		harness.WithEnvironment(harness.Environment{OS: "linux", Arch: "amd64"}),
		harness.WithIDGenerator(ids),
		harness.WithClock(testutil.NewFakeClock(testutil.Epoch, time.Millisecond).Now),
		harness.WithWorkDir(t.TempDir()),
	)
	if err != nil {
		t.Fatalf("harness.New() failed: %v", err)
	}
	result, err := h.Run(context.Background(), scenario)
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	return result
}

var passingOutputs = map[string]string{
	"3 + 2":   "$R0: Int = 5\n",
	"$R0 + 5": "$R1: Int = 10\n",
}

var failingOutputs = map[string]string{
	"3 + 2":   "$R0: Int = 5\n",
	"$R0 + 5": "$R1: Int = <overflow>\n",
}
