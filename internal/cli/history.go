package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/dbgconform/internal/harness"
	"github.com/roach88/dbgconform/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	Scenario string
	Outcome  string
	Limit    int
	Run      string // show one run in detail
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded runs",
		Long: `List runs recorded with "dbgconform test --db".

Runs are listed most recent first. With --run, one run is shown with
every step's input and captured output.

Examples:
  dbgconform history --db ./history.db
  dbgconform history --db ./history.db --scenario repl_int_vars --limit 5
  dbgconform history --db ./history.db --outcome failed
  dbgconform history --db ./history.db --run 0192f0c4-... --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to history database (required)")
	cmd.Flags().StringVar(&opts.Scenario, "scenario", "", "only runs of this scenario")
	cmd.Flags().StringVar(&opts.Outcome, "outcome", "", "only runs with this outcome")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum runs to list (0 for all)")
	cmd.Flags().StringVar(&opts.Run, "run", "", "show one run by ID")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
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

	s, err := store.Open(opts.Database)
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open history database", err)
	}
	defer s.Close()

	if opts.Run != "" {
		return showRun(ctx, s, opts.Run, formatter)
	}

	runs, err := s.ListRuns(ctx, store.ListOptions{
		Scenario: opts.Scenario,
		Outcome:  harness.Outcome(opts.Outcome),
		Limit:    opts.Limit,
	})
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to list runs", err)
	}

	if opts.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: runs})
	}
	w := cmd.OutOrStdout()
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-20s  %-8s  %-18s  %s  %s\n",
			r.RunID, r.Scenario, r.Debugger, r.Outcome,
			r.StartedAt.Format(time.RFC3339), shortFingerprint(r.Fingerprint))
	}
	return nil
}

func showRun(ctx context.Context, s *store.Store, runID string, formatter *OutputFormatter) error {
	run, err := s.ReadRun(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("run not found: %s", runID), nil)
		return WrapExitError(ExitCommandError, "run not found", err)
	}
	if err != nil {
		formatter.Error(ErrCodeStore, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to read run", err)
	}

	if formatter.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: run})
	}
	writeRun(formatter.Writer, run)
	return nil
}

func writeRun(w io.Writer, r *harness.Result) {
	fmt.Fprintf(w, "Run:         %s\n", r.RunID)
	fmt.Fprintf(w, "Scenario:    %s\n", r.Scenario)
	fmt.Fprintf(w, "Debugger:    %s\n", r.Debugger)
	fmt.Fprintf(w, "Outcome:     %s\n", r.Outcome)
	fmt.Fprintf(w, "State:       %s\n", r.State)
	fmt.Fprintf(w, "Fingerprint: %s\n", r.Fingerprint)
	if r.SkipReason != "" {
		fmt.Fprintf(w, "Skipped:     %s\n", r.SkipReason)
	}
	if r.Bug != "" {
		fmt.Fprintf(w, "Bug:         %s\n", r.Bug)
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error:       %s\n", firstLine(r.Error))
	}

	for _, step := range r.Steps {
		fmt.Fprintf(w, "\n[%d] %s %s  %s\n", step.Index, step.Kind, step.Input, step.Outcome)
		for _, line := range strings.Split(strings.TrimRight(step.Output, "\n"), "\n") {
			fmt.Fprintf(w, "    %s\n", line)
		}
		for _, reg := range step.Registers {
			if reg.Alias != "" {
				fmt.Fprintf(w, "    %s = %s (bound to %s)\n", reg.Name, reg.Value, reg.Alias)
			}
		}
	}
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
