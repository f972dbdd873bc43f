package manifest

import (
	"cmp"
	"io"
	"slices"

	"github.com/matzehuels/deprank/pkg/dag"
)

// Dependency is one declared dependency.
type Dependency struct {
	Name      string `json:"name"`
	Version   string `json:"version,omitempty"`
	Ecosystem string `json:"ecosystem"`

	// Pinned is true when the declaration names one exact version rather
	// than a range.
	Pinned bool `json:"pinned"`

	// Repo is the source repository when the declaration names one, as
	// "host/owner/name".
	Repo string `json:"repo,omitempty"`
}

// Coordinate returns the graph coordinate of the dependency.
func (d Dependency) Coordinate() dag.Coordinate {
	return dag.Coordinate{Name: d.Name, Version: d.Version, Ecosystem: d.Ecosystem}
}

// Manifest is a parsed manifest file.
type Manifest struct {
	// Path is relative to the snapshot root, slash separated.
	Path      string `json:"path"`
	Dialect   string `json:"dialect"`
	Ecosystem string `json:"ecosystem"`

	// Name and Version describe the package the manifest declares, when it
	// declares one.
	Name    string `json:"name,omitempty"`
	Version string `json:"version,omitempty"`

	Dependencies []Dependency `json:"dependencies"`
}

// Dialect parses one manifest format.
type Dialect interface {
	// Name identifies the dialect, e.g. "go.mod".
	Name() string

	// Ecosystem is the package ecosystem of the dependencies it declares.
	Ecosystem() string

	// Supports reports whether the dialect handles a file name.
	Supports(filename string) bool

	// Parse reads a manifest. Path, Dialect and Ecosystem are filled in by
	// the caller.
	Parse(r io.Reader) (*Manifest, error)
}

// DefaultDialects returns every built-in dialect.
func DefaultDialects() []Dialect {
	return []Dialect{
		GoMod{},
		PackageJSON{},
		Requirements{},
		Cargo{},
		Pubspec{},
	}
}

// finish dedups dependencies by name, keeping the first declaration, and
// sorts them so that results never depend on map iteration order.
func finish(m *Manifest, ecosystem string) *Manifest {
	seen := make(map[string]bool, len(m.Dependencies))
	out := m.Dependencies[:0]
	for _, d := range m.Dependencies {
		if d.Name == "" || seen[d.Name] {
			continue
		}
		seen[d.Name] = true
		d.Ecosystem = ecosystem
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Dependency) int { return cmp.Compare(a.Name, b.Name) })
	m.Dependencies = out
	return m
}
