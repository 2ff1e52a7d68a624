package policy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// DefaultPoliciesDir is the policies directory name under .kindred.
const DefaultPoliciesDir = "policies"

// PolicyFile is one loaded Rego source file.
type PolicyFile struct {
	Path    string `json:"path"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// Loader scans a directory tree for .rego files. It works over afero so
// tests run against an in-memory filesystem.
type Loader struct {
	fs      afero.Fs
	baseDir string
}

// NewLoader wraps fs rooted at baseDir.
func NewLoader(fs afero.Fs, baseDir string) *Loader {
	return &Loader{fs: fs, baseDir: baseDir}
}

// NewOsLoader uses the real filesystem.
func NewOsLoader(baseDir string) *Loader {
	return NewLoader(afero.NewOsFs(), baseDir)
}

// LoadAll loads every .rego file under the base directory, recursively. A
// missing directory means no policies are configured and yields an empty
// slice, not an error.
func (l *Loader) LoadAll() ([]*PolicyFile, error) {
	exists, err := afero.DirExists(l.fs, l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("check policies directory: %w", err)
	}
	if !exists {
		return []*PolicyFile{}, nil
	}

	var policies []*PolicyFile
	err = afero.Walk(l.fs, l.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".rego") {
			return nil
		}
		policy, err := l.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load policy %s: %w", path, err)
		}
		policies = append(policies, policy)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk policies directory: %w", err)
	}
	return policies, nil
}

// LoadFile loads one policy by path.
func (l *Loader) LoadFile(path string) (*PolicyFile, error) {
	file, err := l.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	return &PolicyFile{
		Path:    path,
		Name:    strings.TrimSuffix(filepath.Base(path), ".rego"),
		Content: string(content),
	}, nil
}

// Exists reports whether the policies directory is present.
func (l *Loader) Exists() (bool, error) {
	return afero.DirExists(l.fs, l.baseDir)
}

// ListFiles returns the paths of all .rego files without reading them.
func (l *Loader) ListFiles() ([]string, error) {
	exists, err := afero.DirExists(l.fs, l.baseDir)
	if err != nil {
		return nil, fmt.Errorf("check policies directory: %w", err)
	}
	if !exists {
		return []string{}, nil
	}

	var paths []string
	err = afero.Walk(l.fs, l.baseDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.HasSuffix(info.Name(), ".rego") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk policies directory: %w", err)
	}
	return paths, nil
}

// GetPoliciesPath resolves the policies directory under a project root.
func GetPoliciesPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".kindred", DefaultPoliciesDir)
}
