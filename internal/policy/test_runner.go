package policy

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/open-policy-agent/opa/v1/ast"
	"github.com/open-policy-agent/opa/v1/tester"
	"github.com/open-policy-agent/opa/v1/topdown"
	"github.com/spf13/afero"
)

// TestResult is the outcome of one Rego test rule.
type TestResult struct {
	// Name is the full rule name, e.g. "data.kindred.candidates.test_deny_removed".
	Name     string        `json:"name"`
	Package  string        `json:"package"`
	Passed   bool          `json:"passed"`
	Failed   bool          `json:"failed"`
	Skipped  bool          `json:"skipped"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`

	// Output carries trace/print statements emitted by the test.
	Output []string `json:"output,omitempty"`
}

// TestSummary aggregates a test run.
type TestSummary struct {
	Passed   int           `json:"passed"`
	Failed   int           `json:"failed"`
	Skipped  int           `json:"skipped"`
	Errored  int           `json:"errored"`
	Total    int           `json:"total"`
	Duration time.Duration `json:"duration"`
	Results  []*TestResult `json:"results"`
}

// TestRunner runs the Rego unit tests shipped alongside admission policies.
// Test rules are the OPA convention: names starting with "test_".
type TestRunner struct {
	fs          afero.Fs
	policiesDir string
}

// NewTestRunner builds a runner over the policies directory.
func NewTestRunner(fs afero.Fs, policiesDir string) *TestRunner {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &TestRunner{fs: fs, policiesDir: policiesDir}
}

// Run executes every test rule found under the policies directory.
func (r *TestRunner) Run(ctx context.Context) (*TestSummary, error) {
	start := time.Now()

	modules, err := r.loadModules()
	if err != nil {
		return nil, fmt.Errorf("load modules: %w", err)
	}
	if len(modules) == 0 {
		return &TestSummary{Duration: time.Since(start), Results: []*TestResult{}}, nil
	}

	compiler := ast.NewCompiler()
	compiler.Compile(modules)
	if compiler.Failed() {
		msgs := make([]string, 0, len(compiler.Errors))
		for _, cerr := range compiler.Errors {
			msgs = append(msgs, cerr.Error())
		}
		return nil, fmt.Errorf("compile policies: %s", strings.Join(msgs, "; "))
	}

	runner := tester.NewRunner().
		SetCompiler(compiler).
		SetModules(modules).
		EnableTracing(true).
		SetTimeout(30 * time.Second)

	ch, err := runner.RunTests(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("run tests: %w", err)
	}

	var results []*TestResult
	for tr := range ch {
		result := &TestResult{
			Name:     tr.Name,
			Package:  tr.Package,
			Duration: tr.Duration,
		}
		switch {
		case tr.Skip:
			result.Skipped = true
		case tr.Error != nil:
			result.Error = tr.Error.Error()
		case tr.Fail:
			result.Failed = true
		default:
			result.Passed = true
		}
		for _, evt := range tr.Trace {
			if evt.Op == topdown.NoteOp && evt.Message != "" {
				result.Output = append(result.Output, evt.Message)
			}
		}
		results = append(results, result)
	}

	summary := &TestSummary{Duration: time.Since(start), Results: results}
	for _, res := range results {
		summary.Total++
		switch {
		case res.Passed:
			summary.Passed++
		case res.Failed:
			summary.Failed++
		case res.Skipped:
			summary.Skipped++
		case res.Error != "":
			summary.Errored++
		}
	}
	return summary, nil
}

// loadModules parses every .rego file under the policies directory.
func (r *TestRunner) loadModules() (map[string]*ast.Module, error) {
	modules := make(map[string]*ast.Module)

	exists, err := afero.DirExists(r.fs, r.policiesDir)
	if err != nil {
		return nil, err
	}
	if !exists {
		return modules, nil
	}

	err = afero.Walk(r.fs, r.policiesDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".rego") {
			return nil
		}

		content, err := afero.ReadFile(r.fs, path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		module, err := ast.ParseModule(path, string(content))
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		relPath, _ := filepath.Rel(r.policiesDir, path)
		if relPath == "" {
			relPath = path
		}
		modules[relPath] = module
		return nil
	})
	return modules, err
}

// HasTests reports whether any *_test.rego files exist.
func (r *TestRunner) HasTests() (bool, error) {
	exists, err := afero.DirExists(r.fs, r.policiesDir)
	if err != nil || !exists {
		return false, err
	}

	hasTests := false
	err = afero.Walk(r.fs, r.policiesDir, func(path string, info fs.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if strings.HasSuffix(info.Name(), "_test.rego") {
			hasTests = true
			return filepath.SkipDir
		}
		return nil
	})
	if err == filepath.SkipDir {
		err = nil
	}
	return hasTests, err
}

// FormatSummary renders a one-line human-readable summary.
func (s *TestSummary) FormatSummary() string {
	if s.Total == 0 {
		return "No tests found.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("\n%d tests, %d passed", s.Total, s.Passed))
	if s.Failed > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", s.Failed))
	}
	if s.Errored > 0 {
		sb.WriteString(fmt.Sprintf(", %d errored", s.Errored))
	}
	if s.Skipped > 0 {
		sb.WriteString(fmt.Sprintf(", %d skipped", s.Skipped))
	}
	sb.WriteString(fmt.Sprintf(" in %s\n", s.Duration.Round(time.Millisecond)))
	return sb.String()
}

// AllPassed reports a clean run.
func (s *TestSummary) AllPassed() bool {
	return s.Failed == 0 && s.Errored == 0
}
