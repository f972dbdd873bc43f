package manifest

import (
	"fmt"
	"io"
	"strings"

	"github.com/BurntSushi/toml"
)

// Cargo parses Cargo.toml files. Normal, dev and build dependencies are all
// included. A requirement is pinned when it uses the "=" operator.
type Cargo struct{}

func (Cargo) Name() string                  { return "Cargo.toml" }
func (Cargo) Ecosystem() string             { return "cargo" }
func (Cargo) Supports(filename string) bool { return strings.EqualFold(filename, "cargo.toml") }

type cargoFile struct {
	Package struct {
		Name    string `toml:"name"`
		Version any    `toml:"version"`
	} `toml:"package"`
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

func (d Cargo) Parse(r io.Reader) (*Manifest, error) {
	var cargo cargoFile
	if _, err := toml.NewDecoder(r).Decode(&cargo); err != nil {
		return nil, err
	}

	m := &Manifest{Name: cargo.Package.Name}
	if v, ok := cargo.Package.Version.(string); ok {
		m.Version = v
	}
	for _, set := range []map[string]any{cargo.Dependencies, cargo.DevDependencies, cargo.BuildDependencies} {
		for name, spec := range set {
			dep, err := cargoDependency(name, spec)
			if err != nil {
				return nil, err
			}
			m.Dependencies = append(m.Dependencies, dep)
		}
	}
	return finish(m, d.Ecosystem()), nil
}

func cargoDependency(name string, spec any) (Dependency, error) {
	dep := Dependency{Name: name}
	switch s := spec.(type) {
	case string:
		dep.Version = s
	case map[string]any:
		if pkg, ok := s["package"].(string); ok {
			dep.Name = pkg
		}
		if v, ok := s["version"].(string); ok {
			dep.Version = v
		}
		if g, ok := s["git"].(string); ok {
			dep.Repo = gitURLRepo(g)
		}
	default:
		return dep, fmt.Errorf("dependency %s: unsupported specification %T", name, spec)
	}
	if v, ok := strings.CutPrefix(dep.Version, "="); ok {
		dep.Version = strings.TrimSpace(v)
		dep.Pinned = true
	}
	return dep, nil
}
