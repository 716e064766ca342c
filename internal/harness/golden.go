package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sebdah/goldie/v2"
	"github.com/viant/afs"
	"github.com/viant/afs/file"
	"github.com/viant/afs/url"

	"github.com/roach88/dbgconform/internal/transcript"
)

// GoldenSuffix is the file extension of golden transcripts.
const GoldenSuffix = ".golden"

// Transcript returns the deterministic view of a result: everything except
// run ID, timings, build log and fingerprint. It is the input to both the
// fingerprint and golden snapshots.
func Transcript(r *Result) map[string]any {
	states := make([]any, len(r.States))
	for i, s := range r.States {
		states[i] = string(s)
	}
	steps := make([]any, len(r.Steps))
	for i, s := range r.Steps {
		step := map[string]any{
			"index":     s.Index,
			"kind":      s.Kind,
			"input":     s.Input,
			"output":    s.Output,
			"succeeded": s.Succeeded,
			"outcome":   string(s.Outcome),
		}
		if s.Name != "" {
			step["name"] = s.Name
		}
		if len(s.Registers) > 0 {
			step["registers"] = registerList(s.Registers)
		}
		if s.ErrorKind != "" {
			step["error_kind"] = s.ErrorKind
		}
		if s.Bug != "" {
			step["bug"] = s.Bug
		}
		steps[i] = step
	}

	t := map[string]any{
		"scenario": r.Scenario,
		"debugger": r.Debugger,
		"outcome":  string(r.Outcome),
		"state":    string(r.State),
		"states":   states,
		"steps":    steps,
	}
	if len(r.Registers) > 0 {
		t["registers"] = registerList(r.Registers)
	}
	if r.ErrorKind != "" {
		t["error_kind"] = r.ErrorKind
	}
	if r.SkipReason != "" {
		t["skip_reason"] = r.SkipReason
	}
	if r.Bug != "" {
		t["bug"] = r.Bug
	}
	return t
}

func registerList(bindings []RegisterBinding) []any {
	out := make([]any, len(bindings))
	for i, b := range bindings {
		m := map[string]any{"name": b.Name, "value": b.Value, "step": b.Step}
		if b.Alias != "" {
			m["alias"] = b.Alias
		}
		out[i] = m
	}
	return out
}

// MarshalTranscript encodes the transcript of r as canonical JSON.
func MarshalTranscript(r *Result) ([]byte, error) {
	return transcript.MarshalCanonical(Transcript(r))
}

// RunWithGolden runs scenario and compares its transcript against
// testdata/golden/{scenario.Name}.golden. Regenerate with:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, h *Harness, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := h.Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := MarshalTranscript(result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(GoldenSuffix),
	)
	g.Assert(t, name, data)
	return nil
}

// GoldenMismatchError reports a transcript that differs from its golden
// file.
type GoldenMismatchError struct {
	Name string
	Diff string
}

func (e *GoldenMismatchError) Error() string {
	return fmt.Sprintf("transcript %s differs from golden file:\n%s", e.Name, e.Diff)
}

// GoldenStore keeps golden transcripts outside of go test, for the CLI.
// Dir may be any afs URL.
type GoldenStore struct {
	Dir string
	FS  afs.Service
}

// NewGoldenStore returns a store rooted at dir.
func NewGoldenStore(dir string) *GoldenStore {
	return &GoldenStore{Dir: dir, FS: afs.New()}
}

func (g *GoldenStore) url(name string) string {
	return url.Join(g.Dir, name+GoldenSuffix)
}

// Exists reports whether a golden file for name is present.
func (g *GoldenStore) Exists(ctx context.Context, name string) (bool, error) {
	return g.FS.Exists(ctx, g.url(name))
}

// Update writes the transcript of result as the golden file for name.
func (g *GoldenStore) Update(ctx context.Context, name string, result *Result) error {
	data, err := MarshalTranscript(result)
	if err != nil {
		return err
	}
	return g.FS.Upload(ctx, g.url(name), file.DefaultFileOsMode, bytes.NewReader(data))
}

// Check compares the transcript of result with the golden file for name.
// A missing golden file is an error.
func (g *GoldenStore) Check(ctx context.Context, name string, result *Result) error {
	got, err := MarshalTranscript(result)
	if err != nil {
		return err
	}
	want, err := g.FS.DownloadWithURL(ctx, g.url(name))
	if err != nil {
		return fmt.Errorf("read golden file %s: %w", g.url(name), err)
	}
	if bytes.Equal(got, want) {
		return nil
	}
	diff, _ := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(prettyLines(want)),
		B:        difflib.SplitLines(prettyLines(got)),
		FromFile: "golden",
		ToFile:   "result",
		Context:  3,
	})
	return &GoldenMismatchError{Name: name, Diff: diff}
}

// prettyLines splits canonical JSON at object and array boundaries so a
// diff of two transcripts points at the differing field.
func prettyLines(data []byte) string {
	var buf bytes.Buffer
	inString, escaped := false, false
	for _, c := range data {
		buf.WriteByte(c)
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && (c == ',' || c == '{' || c == '['):
			buf.WriteByte('\n')
		}
	}
	buf.WriteByte('\n')
	return buf.String()
}
