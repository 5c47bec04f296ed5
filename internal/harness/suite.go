package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// GraphNotFoundError is returned when a scenario names a graph file that
// doesn't exist.
type GraphNotFoundError struct {
	Scenario     string
	ResolvedPath string
}

// Error implements the error interface.
func (e *GraphNotFoundError) Error() string {
	return fmt.Sprintf("scenario %q references graph file %s which does not exist", e.Scenario, e.ResolvedPath)
}

func checkGraphExists(s *Scenario) error {
	if _, err := os.Stat(s.Graph); os.IsNotExist(err) {
		return &GraphNotFoundError{Scenario: s.Name, ResolvedPath: s.Graph}
	}
	return nil
}

// FindScenarios returns the scenario files under dir, sorted by path. A path
// naming a single file is returned as is.
func FindScenarios(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return []string{dir}, nil
	}

	var paths []string
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && d.Name() == "golden" {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

// SuiteResult summarizes a run over many scenario files.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioFailure is one scenario that did not pass.
type ScenarioFailure struct {
	Path     string   `json:"path"`
	Scenario string   `json:"scenario,omitempty"`
	Errors   []string `json:"errors"`
}

// RunSuite loads and runs every scenario in paths. Load and execution errors
// count as failures; the suite keeps going.
func RunSuite(paths []string, opts ...Option) *SuiteResult {
	result := &SuiteResult{}
	for _, path := range paths {
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(path, "", fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		run, err := Run(scenario, opts...)
		if err != nil {
			result.fail(path, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}
		if !run.Pass {
			result.fail(path, scenario.Name, run.Errors...)
			continue
		}
		result.Passed++
	}
	return result
}

func (r *SuiteResult) fail(path, name string, errs ...string) {
	r.Failed++
	r.Failures = append(r.Failures, ScenarioFailure{Path: path, Scenario: name, Errors: errs})
}
