package fixture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
)

// Spec describes how to obtain a fixture executable.
type Spec struct {
	// Sources are staged into the work directory under their base names.
	// Any afs URL is accepted; bare paths are local files.
	Sources []string `yaml:"sources,omitempty" json:"sources,omitempty"`

	// Build is the build command template. See Command.
	Build string `yaml:"build,omitempty" json:"build,omitempty"`

	// Executable is the output file name (default "a.out").
	Executable string `yaml:"executable,omitempty" json:"executable,omitempty"`

	// Prebuilt is an existing executable; no build is run.
	Prebuilt string `yaml:"prebuilt,omitempty" json:"prebuilt,omitempty"`

	// Env is added to the build environment.
	Env map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// Artifact is a built fixture.
type Artifact struct {
	Executable string
	WorkDir    string
	// Sources maps each source base name to its staged path.
	Sources map[string]string
	// Log is the build command output.
	Log string
}

// SourcePath returns the staged path for a source file name.
func (a *Artifact) SourcePath(name string) string {
	if a == nil {
		return ""
	}
	return a.Sources[filepath.Base(name)]
}

// BuildError reports a fixture that failed to build.
type BuildError struct {
	Command string
	Status  int
	Output  string
	Err     error
}

func (e *BuildError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "fixture build failed")
	if e.Command != "" {
		fmt.Fprintf(&buf, ": %s", e.Command)
	}
	if e.Status != 0 {
		fmt.Fprintf(&buf, " (exit status %d)", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&buf, ": %v", e.Err)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		fmt.Fprintf(&buf, "\n%s", out)
	}
	return buf.String()
}

func (e *BuildError) Unwrap() error { return e.Err }

// Builder produces a fixture executable in workDir.
type Builder interface {
	Build(ctx context.Context, spec Spec, workDir string) (*Artifact, error)
}

// defaultCommands are used when a spec has no build command.
var defaultCommands = map[string]string{
	".go":    `go build -gcflags "all=-N -l" -o {{.Output}} {{.Sources}}`,
	".swift": `swiftc -g -Onone -o {{.Output}} {{.Sources}}`,
	".c":     `cc -g -O0 -o {{.Output}} {{.Sources}}`,
	".cpp":   `c++ -g -O0 -o {{.Output}} {{.Sources}}`,
}

// commandContext is the data available to build command templates.
type commandContext struct {
	Output  string // executable path
	Sources string // shell-quoted staged source paths, space separated
	WorkDir string
}

// Command renders the build command for spec. staged are the staged
// source paths and output is the executable path.
func Command(spec Spec, staged []string, output, workDir string) (string, error) {
	text := spec.Build
	if text == "" {
		if len(staged) == 0 {
			return "", fmt.Errorf("fixture has no sources and no build command")
		}
		var ok bool
		text, ok = defaultCommands[filepath.Ext(staged[0])]
		if !ok {
			return "", fmt.Errorf("no default build command for %q files", filepath.Ext(staged[0]))
		}
	}
	tmpl, err := template.New("build").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("invalid build command template: %w", err)
	}
	quoted := make([]string, len(staged))
	for i, s := range staged {
		quoted[i] = shellQuote(s)
	}
	var buf bytes.Buffer
	dot := commandContext{Output: shellQuote(output), Sources: strings.Join(quoted, " "), WorkDir: shellQuote(workDir)}
	if err := tmpl.Execute(&buf, dot); err != nil {
		return "", fmt.Errorf("render build command: %w", err)
	}
	return buf.String(), nil
}

func shellQuote(s string) string {
	if s != "" && strings.IndexFunc(s, func(r rune) bool {
		return !(r == '/' || r == '.' || r == '-' || r == '_' || r == '+' || r == ':' ||
			r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z')
	}) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// ShellBuilder stages sources with afs and runs the build command in a
// local gosh session.
type ShellBuilder struct {
	FS      afs.Service
	Timeout time.Duration // per build; default 5 minutes
	Logger  *slog.Logger
}

// NewShellBuilder returns a builder backed by the default afs service.
func NewShellBuilder() *ShellBuilder {
	return &ShellBuilder{FS: afs.New()}
}

func (b *ShellBuilder) logger() *slog.Logger {
	if b.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return b.Logger
}

func (b *ShellBuilder) fs() afs.Service {
	if b.FS == nil {
		b.FS = afs.New()
	}
	return b.FS
}

// Build implements Builder.
func (b *ShellBuilder) Build(ctx context.Context, spec Spec, workDir string) (*Artifact, error) {
	artifact := &Artifact{WorkDir: workDir, Sources: make(map[string]string)}
	if err := checkSourceNames(spec.Sources); err != nil {
		return nil, &BuildError{Err: err}
	}

	if spec.Prebuilt != "" {
		exists, err := b.fs().Exists(ctx, spec.Prebuilt)
		if err != nil {
			return nil, &BuildError{Err: fmt.Errorf("check prebuilt executable %s: %w", spec.Prebuilt, err)}
		}
		if !exists {
			return nil, &BuildError{Err: fmt.Errorf("prebuilt executable not found: %s", spec.Prebuilt)}
		}
		artifact.Executable = spec.Prebuilt
		for _, src := range spec.Sources {
			artifact.Sources[filepath.Base(src)] = src
		}
		return artifact, nil
	}

	staged, err := b.stage(ctx, spec.Sources, workDir)
	if err != nil {
		return nil, &BuildError{Err: err}
	}
	for _, path := range staged {
		artifact.Sources[filepath.Base(path)] = path
	}

	name := spec.Executable
	if name == "" {
		name = "a.out"
	}
	output := filepath.Join(workDir, name)
	command, err := Command(spec, staged, output, workDir)
	if err != nil {
		return nil, &BuildError{Err: err}
	}

	log, err := b.run(ctx, command, workDir, spec.Env)
	artifact.Log = log
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(output); err != nil {
		return nil, &BuildError{Command: command, Output: log, Err: fmt.Errorf("build produced no executable at %s", output)}
	}
	artifact.Executable = output
	return artifact, nil
}

// checkSourceNames rejects sources that would be staged under the same
// file name.
func checkSourceNames(sources []string) error {
	seen := make(map[string]string, len(sources))
	for _, src := range sources {
		name := filepath.Base(src)
		if prev, ok := seen[name]; ok {
			return fmt.Errorf("fixture sources %s and %s share the file name %s", prev, src, name)
		}
		seen[name] = src
	}
	return nil
}

// stage copies sources into workDir and returns the staged paths.
func (b *ShellBuilder) stage(ctx context.Context, sources []string, workDir string) ([]string, error) {
	staged := make([]string, 0, len(sources))
	for _, src := range sources {
		data, err := b.fs().DownloadWithURL(ctx, src)
		if err != nil {
			return nil, fmt.Errorf("failed to read fixture source %s: %w", src, err)
		}
		dest := filepath.Join(workDir, filepath.Base(src))
		if err := b.fs().Upload(ctx, dest, file.DefaultFileOsMode, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to stage fixture source %s: %w", src, err)
		}
		staged = append(staged, dest)
	}
	return staged, nil
}

// run executes command in workDir through a fresh local shell session.
func (b *ShellBuilder) run(ctx context.Context, command, workDir string, env map[string]string) (string, error) {
	var opts []runner.Option
	if len(env) > 0 {
		opts = append(opts, runner.WithEnvironment(env))
	}
	service, err := gosh.New(ctx, local.New(opts...))
	if err != nil {
		return "", &BuildError{Command: command, Err: fmt.Errorf("failed to start shell: %w", err)}
	}
	defer service.Close()

	if _, _, err := service.Run(ctx, "cd "+shellQuote(workDir)); err != nil {
		return "", &BuildError{Command: command, Err: fmt.Errorf("failed to change directory: %w", err)}
	}

	timeout := b.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	b.logger().Debug("building fixture", "command", command, "dir", workDir)
	out, status, err := service.Run(ctx, command, runner.WithTimeout(int(timeout.Milliseconds())))
	if err != nil || status != 0 {
		return out, &BuildError{Command: command, Status: status, Output: out, Err: err}
	}
	return out, nil
}
