package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/roach88/dbgconform/internal/harness"
)

// LoadMode controls how errors are handled during scenario loading.
type LoadMode int

const (
	// LoadModeFailFast stops on the first error encountered.
	LoadModeFailFast LoadMode = iota
	// LoadModeCollectAll collects all errors before returning.
	LoadModeCollectAll
)

// Error codes for CLI operations. Scenario validation codes (E2xx) come
// from the harness.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeScanError   = "E002" // Directory scan error
	ErrCodeNoFiles     = "E003" // No scenario files found
	ErrCodeLoadFailed  = "E004" // Scenario file unreadable or unparsable
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeDebugger    = "E006" // Unknown or misconfigured debugger
	ErrCodeStore       = "E007" // History database error
	ErrCodeAnnotations = "E008" // Annotation parse error
)

// scenarioExts are the file extensions treated as scenarios.
var scenarioExts = []string{".yaml", ".yml", ".cue"}

// LoadError represents an error that occurred while loading scenarios.
type LoadError struct {
	Code    string
	Message string
	Path    string // scenario file, when known
}

func (e *LoadError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %s", e.Path, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FindScenarioFiles walks path for scenario files. A path naming a single
// file is returned as-is. filter is a glob matched against the file name
// without its extension.
func FindScenarioFiles(path, filter string) ([]string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("scenarios path not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing scenarios path: %v", err)}
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	if filter != "" {
		if _, err := filepath.Match(filter, ""); err != nil {
			return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("invalid filter pattern: %v", err)}
		}
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := filepath.Ext(p)
		if !slices.Contains(scenarioExts, ext) {
			return nil
		}
		if filter != "" {
			name := strings.TrimSuffix(filepath.Base(p), ext)
			if matched, _ := filepath.Match(filter, name); !matched {
				return nil
			}
		}
		files = append(files, p)
		return nil
	})
	if err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: fmt.Sprintf("error scanning directory: %v", err)}
	}
	return files, nil
}

// LoadScenarios loads and validates every file. In LoadModeFailFast the
// first failure stops loading; in LoadModeCollectAll every failure is
// returned alongside the scenarios that did load.
func LoadScenarios(files []string, mode LoadMode) ([]*harness.Scenario, []error) {
	var (
		scenarios []*harness.Scenario
		errs      []error
	)
	for _, file := range files {
		s, err := harness.LoadScenario(file)
		if err != nil {
			errs = append(errs, err)
			if mode == LoadModeFailFast {
				return scenarios, errs
			}
			continue
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, errs
}

// filterByTags keeps scenarios carrying at least one of tags. No tags keeps
// everything.
func filterByTags(scenarios []*harness.Scenario, tags []string) []*harness.Scenario {
	if len(tags) == 0 {
		return scenarios
	}
	var kept []*harness.Scenario
	for _, s := range scenarios {
		for _, tag := range tags {
			if slices.Contains(s.Tags, tag) {
				kept = append(kept, s)
				break
			}
		}
	}
	return kept
}

// validationErrors flattens a scenario load error into its validation
// errors. Errors that are not validation failures become one E004 entry.
func validationErrors(err error) []harness.ValidationError {
	var out []harness.ValidationError
	collect(err, &out)
	if len(out) == 0 {
		out = append(out, harness.ValidationError{Field: "file", Code: ErrCodeLoadFailed, Message: err.Error()})
	}
	return out
}

func collect(err error, out *[]harness.ValidationError) {
	if verr, ok := err.(harness.ValidationError); ok {
		*out = append(*out, verr)
		return
	}
	switch e := err.(type) {
	case interface{ Unwrap() []error }:
		for _, inner := range e.Unwrap() {
			collect(inner, out)
		}
	case interface{ Unwrap() error }:
		if inner := e.Unwrap(); inner != nil {
			collect(inner, out)
		}
	}
}
