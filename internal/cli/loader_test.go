package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbgconform/internal/harness"
	"github.com/roach88/dbgconform/internal/testutil"
)

func TestFindScenarioFiles(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"a/int_vars.yaml":   intVarsScenario,
		"a/strings.yml":     stringsScenario,
		"b/locals.cue":      "name: \"locals\"\n",
		"b/notes.txt":       "not a scenario",
		"b/int_fields.yaml": intVarsScenario,
	})

	files, err := FindScenarioFiles(root, "")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a/int_vars.yaml"),
		filepath.Join(root, "a/strings.yml"),
		filepath.Join(root, "b/int_fields.yaml"),
		filepath.Join(root, "b/locals.cue"),
	}, files)

	files, err = FindScenarioFiles(root, "int_*")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(root, "a/int_vars.yaml"),
		filepath.Join(root, "b/int_fields.yaml"),
	}, files)
}

func TestFindScenarioFiles_SingleFile(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{"one.yaml": intVarsScenario})
	path := filepath.Join(root, "one.yaml")

	files, err := FindScenarioFiles(path, "ignored*")
	require.NoError(t, err)
	assert.Equal(t, []string{path}, files)
}

func TestFindScenarioFiles_Errors(t *testing.T) {
	_, err := FindScenarioFiles("/nonexistent/scenarios", "")
	var loadErr *LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeNotFound, loadErr.Code)

	_, err = FindScenarioFiles(t.TempDir(), "[")
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, ErrCodeScanError, loadErr.Code)
}

func TestLoadScenarios_Modes(t *testing.T) {
	root := testutil.WriteTree(t, map[string]string{
		"a_bad.yaml":  "name: [\n",
		"b_good.yaml": intVarsScenario,
	})
	files := []string{filepath.Join(root, "a_bad.yaml"), filepath.Join(root, "b_good.yaml")}

	scenarios, errs := LoadScenarios(files, LoadModeFailFast)
	assert.Empty(t, scenarios)
	assert.Len(t, errs, 1)

	scenarios, errs = LoadScenarios(files, LoadModeCollectAll)
	require.Len(t, scenarios, 1)
	assert.Equal(t, "repl_int_vars", scenarios[0].Name)
	assert.Len(t, errs, 1)
}

func TestFilterByTags(t *testing.T) {
	a := &harness.Scenario{Name: "a", Tags: []string{"repl"}}
	b := &harness.Scenario{Name: "b", Tags: []string{"strings", "repl"}}
	c := &harness.Scenario{Name: "c"}
	all := []*harness.Scenario{a, b, c}

	assert.Equal(t, all, filterByTags(all, nil))
	assert.Equal(t, []*harness.Scenario{b}, filterByTags(all, []string{"strings"}))
	assert.Equal(t, []*harness.Scenario{a, b}, filterByTags(all, []string{"repl", "strings"}))
	assert.Empty(t, filterByTags(all, []string{"gdb"}))
}

func TestValidationErrors(t *testing.T) {
	first := harness.ValidationError{Field: "steps", Code: harness.ErrNoSteps, Message: "empty"}
	second := harness.ValidationError{Field: "timeout", Code: harness.ErrInvalidTimeout, Message: "bad"}
	wrapped := &harness.ScenarioError{Path: "x.yaml", Err: errors.Join(first, second)}

	assert.Equal(t, []harness.ValidationError{first, second}, validationErrors(wrapped))

	plain := &harness.ScenarioError{Path: "x.yaml", Err: fmt.Errorf("failed to read scenario file: %w", errors.New("boom"))}
	got := validationErrors(plain)
	require.Len(t, got, 1)
	assert.Equal(t, ErrCodeLoadFailed, got[0].Code)
	assert.Equal(t, "file", got[0].Field)
	assert.Contains(t, got[0].Message, "boom")
}
