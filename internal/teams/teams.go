// Package teams loads the team-to-area-path map that scopes candidate
// queries. The map is a small json, yaml or toml file kept next to the
// project config; only verified entries take part in area-path resolution.
package teams

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	yaml "gopkg.in/yaml.v3"
)

const (
	// DefaultFile is the map file name used when the config names none.
	DefaultFile = "teams.json"

	formatJSON = "json"
	formatYAML = "yaml"
	formatTOML = "toml"
)

// Entry binds one team name to its tracker area path. Unverified entries are
// kept (so tooling can list them) but never resolve to an area path.
type Entry struct {
	Team     string `json:"team" yaml:"team" toml:"team"`
	AreaPath string `json:"areaPath" yaml:"areaPath" toml:"areaPath"`
	Verified bool   `json:"verified" yaml:"verified" toml:"verified"`
}

// document is the on-disk shape, shared by all three formats.
type document struct {
	Teams []Entry `json:"teams" yaml:"teams" toml:"teams"`
}

// Map resolves team names to verified area paths. Lookups are
// case-insensitive; iteration order is first-seen file order.
type Map struct {
	entries map[string]Entry
	order   []string
}

// New builds a Map from entries. Blank team names are dropped; a repeated
// name keeps its first position but takes the later entry's values.
func New(entries []Entry) *Map {
	m := &Map{entries: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		e.Team = strings.TrimSpace(e.Team)
		e.AreaPath = strings.TrimSpace(e.AreaPath)
		if e.Team == "" {
			continue
		}
		key := foldName(e.Team)
		if _, seen := m.entries[key]; !seen {
			m.order = append(m.order, key)
		}
		m.entries[key] = e
	}
	return m
}

// Load reads the map file at path, picking the codec from the extension.
// A missing file is an error; callers that treat the map as optional check
// existence first.
func Load(fsys afero.Fs, path string) (*Map, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("read team map %s: %w", path, err)
	}

	var doc document
	switch format := formatForPath(path); format {
	case formatJSON:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse team map %s: %w", path, err)
		}
	case formatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse team map %s: %w", path, err)
		}
	case formatTOML:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse team map %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported team map format %q: supported formats are json, yaml, toml", filepath.Ext(path))
	}

	return New(doc.Teams), nil
}

// formatForPath maps a file extension to a codec name. Unknown extensions
// return the extension itself so the error message can show it.
func formatForPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON
	case ".yaml", ".yml":
		return formatYAML
	case ".toml":
		return formatTOML
	default:
		return ""
	}
}

// Len reports the number of distinct teams in the map.
func (m *Map) Len() int {
	if m == nil {
		return 0
	}
	return len(m.entries)
}

// Entries returns all entries in file order.
func (m *Map) Entries() []Entry {
	if m == nil {
		return nil
	}
	out := make([]Entry, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, m.entries[key])
	}
	return out
}

// Lookup finds a team by name, case-insensitively.
func (m *Map) Lookup(team string) (Entry, bool) {
	if m == nil {
		return Entry{}, false
	}
	e, ok := m.entries[foldName(team)]
	return e, ok
}

// Resolve turns team names into verified area paths, preserving input order
// and deduplicating paths. Unknown teams, unverified entries and entries
// without an area path are skipped. An empty name list resolves every
// verified team.
func (m *Map) Resolve(names []string) []string {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(names))
	if len(names) == 0 {
		keys = m.order
	} else {
		for _, n := range names {
			keys = append(keys, foldName(n))
		}
	}

	var paths []string
	seen := make(map[string]bool, len(keys))
	for _, key := range keys {
		e, ok := m.entries[key]
		if !ok || !e.Verified || e.AreaPath == "" {
			continue
		}
		if seen[e.AreaPath] {
			continue
		}
		seen[e.AreaPath] = true
		paths = append(paths, e.AreaPath)
	}
	return paths
}

// VerifiedAreas returns every verified area path, sorted, deduplicated.
// Diagnostics use it; query building goes through Resolve.
func (m *Map) VerifiedAreas() []string {
	paths := m.Resolve(nil)
	sort.Strings(paths)
	return paths
}

// Unverified lists team names whose entries cannot resolve, for doctor-style
// reporting.
func (m *Map) Unverified() []string {
	if m == nil {
		return nil
	}
	var names []string
	for _, key := range m.order {
		e := m.entries[key]
		if !e.Verified || e.AreaPath == "" {
			names = append(names, e.Team)
		}
	}
	return names
}

func foldName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
