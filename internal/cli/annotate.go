package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/dbgconform/internal/fixture"
	"github.com/roach88/dbgconform/internal/harness"
)

// AnnotateOptions holds flags for the annotate command.
type AnnotateOptions struct {
	*RootOptions
	Debugger string
	Name     string
	Build    string
}

// NewAnnotateCommand creates the annotate command.
func NewAnnotateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &AnnotateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "annotate <source-file>",
		Short: "Print a scenario derived from // BREAKPOINT annotations",
		Long: `Read "// BREAKPOINT" comment blocks from a fixture source file and
print the equivalent scenario.

Each block starts with "// BREAKPOINT" and lists debugger commands, each
followed by the patterns its output must match in order:

  a := 1
  // BREAKPOINT
  // (lldb) frame variable a
  // \(int\) a = 1
  // (gdb) print a
  // \$[0-9]+ = 1
  _ = a

The breakpoint is placed on the first code line after the block. The
fixture source is referenced by file name, so save the scenario next to
the source file.

Examples:
  dbgconform annotate ./fixtures/main.go > ./fixtures/main.yaml
  dbgconform annotate ./fixtures/main.go --debugger gdb --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnnotate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Debugger, "debugger", "lldb", "debugger whose annotations to use")
	cmd.Flags().StringVar(&opts.Name, "name", "", "scenario name (default: source file name)")
	cmd.Flags().StringVar(&opts.Build, "build", "", "fixture build command template")

	return cmd
}

func runAnnotate(opts *AnnotateOptions, path string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	f, err := os.Open(path)
	if err != nil {
		formatter.Error(ErrCodeNotFound, fmt.Sprintf("cannot open source file: %v", err), nil)
		return WrapExitError(ExitCommandError, "annotate failed", err)
	}
	defer f.Close()

	anns, err := fixture.ParseAnnotations(f, filepath.Base(path))
	if err != nil {
		formatter.Error(ErrCodeAnnotations, err.Error(), nil)
		return WrapExitError(ExitFailure, "annotate failed", err)
	}
	formatter.VerboseLog("Found %d annotation block(s) in %s", len(anns), path)

	name := opts.Name
	if name == "" {
		base := filepath.Base(path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	spec := fixture.Spec{Sources: []string{filepath.Base(path)}, Build: opts.Build}

	scenario, err := harness.FromAnnotations(name, spec, anns, opts.Debugger)
	if err != nil {
		formatter.Error(ErrCodeAnnotations, err.Error(), nil)
		return WrapExitError(ExitFailure, "annotate failed", err)
	}

	if opts.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: scenario})
	}
	data, err := yaml.Marshal(scenario)
	if err != nil {
		return fmt.Errorf("marshal scenario: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
