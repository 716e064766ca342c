package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dbgconform/internal/debugger"
	"github.com/roach88/dbgconform/internal/harness"
	"github.com/roach88/dbgconform/internal/store"
	"github.com/roach88/dbgconform/internal/tracing"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Debugger  string        // overrides each scenario's debugger
	Filter    string        // scenario filter (glob pattern)
	Tags      []string      // run only scenarios with one of these tags
	Timeout   time.Duration // per-call timeout, overrides scenario timeouts
	Database  string        // history database; empty disables recording
	Update    bool          // regenerate golden files
	GoldenDir string        // golden transcript directory
	Replay    string        // scripted debugger replay file
	Trace     string        // OpenTelemetry span output file
	Parallel  int           // concurrent scenarios
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name        string          `json:"name"`
	Path        string          `json:"path,omitempty"`
	Debugger    string          `json:"debugger,omitempty"`
	Outcome     harness.Outcome `json:"outcome"`
	Pass        bool            `json:"pass"`
	RunID       string          `json:"run_id,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	SkipReason  string          `json:"skip_reason,omitempty"`
	Bug         string          `json:"bug,omitempty"`
	Golden      string          `json:"golden,omitempty"` // "matched" or "updated"
	Errors      []string        `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-path>",
		Short: "Run conformance scenarios",
		Long: `Run debugger conformance scenarios.

Each scenario file (.yaml, .yml or .cue) drives one debugger session and
checks the captured output against the scenario's expectations. When a
golden transcript exists for a scenario it must also match.

Exit codes:
  0 - All scenarios passed (skips and expected failures included)
  1 - One or more scenarios failed
  2 - Command error (invalid paths, unknown debugger, etc.)

Examples:
  dbgconform test ./scenarios
  dbgconform test ./scenarios --debugger gdb --filter "generic_*"
  dbgconform test ./scenarios --replay ./replays/int_vars.yaml
  dbgconform test ./scenarios --update
  dbgconform test ./scenarios --db ./history.db --parallel 4 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Debugger, "debugger", "", fmt.Sprintf("debugger backend %v (default: scenario's, else lldb)", debugger.Names()))
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringSliceVar(&opts.Tags, "tag", nil, "run only scenarios with this tag (repeatable)")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "per debugger call timeout (default: scenario's, else 30s)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "record runs in this SQLite history database")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden transcript directory or afs URL (default: <scenarios>/golden)")
	cmd.Flags().StringVar(&opts.Replay, "replay", "", "answer from a scripted replay file instead of a real debugger")
	cmd.Flags().StringVar(&opts.Trace, "trace", "", "write OpenTelemetry spans to this file")
	cmd.Flags().IntVar(&opts.Parallel, "parallel", 1, "number of scenarios to run concurrently")

	return cmd
}

// testRun is the shared state of one test command invocation.
type testRun struct {
	opts    *TestOptions
	logger  *slog.Logger
	replay  *debugger.Scripted
	history *store.Store
	golden  *harness.GoldenStore
}

func runTests(opts *TestOptions, path string, cmd *cobra.Command) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if opts.Debugger != "" {
		if _, err := debugger.New(opts.Debugger, debugger.Config{}); err != nil {
			return WrapExitError(ExitCommandError, "invalid --debugger", err)
		}
	}
	if opts.Parallel < 1 {
		return NewExitError(ExitCommandError, fmt.Sprintf("--parallel must be at least 1, got %d", opts.Parallel))
	}

	files, err := FindScenarioFiles(path, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}
	formatter.VerboseLog("Found %d scenario file(s) in %s", len(files), path)

	run := &testRun{opts: opts, logger: newLogger(opts.RootOptions, cmd.ErrOrStderr())}
	run.golden = harness.NewGoldenStore(goldenDir(opts.GoldenDir, path))

	if opts.Replay != "" {
		run.replay, err = debugger.LoadReplay(opts.Replay)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load replay", err)
		}
	}

	if opts.Trace != "" {
		provider, err := tracing.Init("dbgconform", Version, opts.Trace)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to initialise tracing", err)
		}
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				run.logger.Warn("trace shutdown failed", "error", err)
			}
		}()
	}

	if opts.Database != "" {
		run.history, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open history database", err)
		}
		defer run.history.Close()
	}

	scenarios, loadErrs := LoadScenarios(files, LoadModeCollectAll)
	scenarios = filterByTags(scenarios, opts.Tags)

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(loadErrs)+len(scenarios))}
	for _, err := range loadErrs {
		result.Scenarios = append(result.Scenarios, ScenarioResult{
			Name:    scenarioFileName(err),
			Outcome: harness.OutcomeFailed,
			Errors:  []string{fmt.Sprintf("failed to load scenario: %v", err)},
		})
	}
	result.Scenarios = append(result.Scenarios, run.all(ctx, scenarios)...)

	for _, sr := range result.Scenarios {
		result.Total++
		switch {
		case !sr.Pass:
			result.Failed++
		case sr.Outcome == harness.OutcomeSkipped:
			result.Skipped++
		default:
			result.Passed++
		}
	}

	if result.Total == 0 {
		if opts.Format == "json" {
			return outputTestJSON(formatter, result)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	if opts.Format == "json" {
		return outputTestJSON(formatter, result)
	}
	return outputTestText(cmd.OutOrStdout(), result)
}

// all runs scenarios on a bounded pool of workers. Results keep the order
// of scenarios.
func (r *testRun) all(ctx context.Context, scenarios []*harness.Scenario) []ScenarioResult {
	results := make([]ScenarioResult, len(scenarios))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < min(r.opts.Parallel, len(scenarios)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = r.one(ctx, scenarios[i])
			}
		}()
	}
	for i := range scenarios {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}

// one runs a single scenario and applies history recording and golden
// comparison.
func (r *testRun) one(ctx context.Context, s *harness.Scenario) ScenarioResult {
	sr := ScenarioResult{Name: s.Name, Path: s.Path, Outcome: harness.OutcomeFailed}
	failed := func(format string, args ...any) ScenarioResult {
		sr.Pass = false
		sr.Outcome = harness.OutcomeFailed
		sr.Errors = append(sr.Errors, fmt.Sprintf(format, args...))
		return sr
	}

	d, err := r.debuggerFor(s)
	if err != nil {
		return failed("debugger: %v", err)
	}
	sr.Debugger = d.Name()

	opts := []harness.Option{
		harness.WithDebugger(d),
		harness.WithLogger(r.logger),
	}
	if r.opts.Timeout > 0 {
		opts = append(opts, harness.WithStepTimeout(r.opts.Timeout))
	}
	h, err := harness.New(opts...)
	if err != nil {
		return failed("%v", err)
	}

	result, err := h.Run(ctx, s)
	if err != nil {
		return failed("execution failed: %v", err)
	}
	sr.Outcome = result.Outcome
	sr.Pass = result.Pass
	sr.RunID = result.RunID
	sr.Fingerprint = result.Fingerprint
	sr.SkipReason = result.SkipReason
	sr.Bug = result.Bug
	if result.Outcome.Counts() && result.Error != "" {
		sr.Errors = append(sr.Errors, result.Error)
	}

	if r.history != nil {
		if err := r.history.WriteRun(ctx, result); err != nil {
			return failed("history: %v", err)
		}
	}

	if result.Outcome == harness.OutcomeSkipped {
		return sr
	}
	if r.opts.Update {
		if err := r.golden.Update(ctx, s.Name, result); err != nil {
			return failed("golden update: %v", err)
		}
		sr.Golden = "updated"
		return sr
	}
	exists, err := r.golden.Exists(ctx, s.Name)
	if err != nil {
		return failed("golden: %v", err)
	}
	if !exists {
		return sr
	}
	if err := r.golden.Check(ctx, s.Name, result); err != nil {
		return failed("%v\n(run with --update to regenerate)", err)
	}
	sr.Golden = "matched"
	return sr
}

// debuggerFor picks the backend for s: the replay file, then --debugger,
// then the scenario's own debugger, then lldb.
func (r *testRun) debuggerFor(s *harness.Scenario) (debugger.Debugger, error) {
	if r.replay != nil {
		return r.replay, nil
	}
	name := r.opts.Debugger
	if name == "" {
		name = s.Debugger
	}
	if name == "" {
		name = "lldb"
	}
	return debugger.New(name, debugger.Config{Logger: r.logger})
}

// goldenDir returns dir, or a "golden" directory next to the scenarios.
func goldenDir(dir, scenariosPath string) string {
	if dir != "" {
		return dir
	}
	if info, err := os.Stat(scenariosPath); err == nil && !info.IsDir() {
		scenariosPath = filepath.Dir(scenariosPath)
	}
	return filepath.Join(scenariosPath, "golden")
}

func scenarioFileName(err error) string {
	var path string
	if serr, ok := err.(*harness.ScenarioError); ok {
		path = serr.Path
	}
	if path == "" {
		return "unknown"
	}
	return filepath.Base(path)
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(f *OutputFormatter, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "E_TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}
	if err := f.JSON(response); err != nil {
		return err
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}
	return nil
}

// outputTestText prints one line per scenario and a summary.
func outputTestText(w io.Writer, result TestResult) error {
	for _, sr := range result.Scenarios {
		switch {
		case !sr.Pass:
			fmt.Fprintf(w, "✗ %s\n", sr.Name)
			for _, e := range sr.Errors {
				for _, line := range strings.Split(strings.TrimRight(e, "\n"), "\n") {
					fmt.Fprintf(w, "  %s\n", line)
				}
			}
		case sr.Outcome == harness.OutcomeSkipped:
			fmt.Fprintf(w, "- %s (skipped: %s)\n", sr.Name, sr.SkipReason)
		case sr.Outcome == harness.OutcomeExpectedFailure:
			fmt.Fprintf(w, "✓ %s (expected failure%s)\n", sr.Name, bugSuffix(sr.Bug))
		case sr.Outcome == harness.OutcomeUnexpectedSuccess:
			fmt.Fprintf(w, "! %s (unexpected success%s)\n", sr.Name, bugSuffix(sr.Bug))
		case sr.Golden == "updated":
			fmt.Fprintf(w, "✓ %s (golden updated)\n", sr.Name)
		default:
			fmt.Fprintf(w, "✓ %s\n", sr.Name)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d skipped, %d total\n",
		result.Passed, result.Failed, result.Skipped, result.Total)

	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", result.Failed))
	}

	fmt.Fprintln(w, "✓ All scenarios passed")
	return nil
}

func bugSuffix(bug string) string {
	if bug == "" {
		return ""
	}
	return ": " + bug
}
