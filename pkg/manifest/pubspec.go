package manifest

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Pubspec parses Dart pubspec.yaml files. SDK dependencies such as flutter
// are skipped.
type Pubspec struct{}

func (Pubspec) Name() string                  { return "pubspec.yaml" }
func (Pubspec) Ecosystem() string             { return "pub" }
func (Pubspec) Supports(filename string) bool { return filename == "pubspec.yaml" }

type pubspecFile struct {
	Name            string               `yaml:"name"`
	Version         string               `yaml:"version"`
	Dependencies    map[string]yaml.Node `yaml:"dependencies"`
	DevDependencies map[string]yaml.Node `yaml:"dev_dependencies"`
}

type pubspecDetail struct {
	Version string    `yaml:"version"`
	SDK     string    `yaml:"sdk"`
	Path    string    `yaml:"path"`
	Git     yaml.Node `yaml:"git"`
}

func (d Pubspec) Parse(r io.Reader) (*Manifest, error) {
	var spec pubspecFile
	if err := yaml.NewDecoder(r).Decode(&spec); err != nil && err != io.EOF {
		return nil, err
	}
	if spec.Name == "" {
		return nil, fmt.Errorf("missing package name")
	}

	m := &Manifest{Name: spec.Name, Version: spec.Version}
	for _, set := range []map[string]yaml.Node{spec.Dependencies, spec.DevDependencies} {
		for name, node := range set {
			dep, skip, err := pubDependency(name, &node)
			if err != nil {
				return nil, err
			}
			if !skip {
				m.Dependencies = append(m.Dependencies, dep)
			}
		}
	}
	return finish(m, d.Ecosystem()), nil
}

func pubDependency(name string, node *yaml.Node) (Dependency, bool, error) {
	dep := Dependency{Name: name}
	switch node.Kind {
	case yaml.ScalarNode:
		// "name:" with no value means any version.
		if node.Tag != "!!null" {
			dep.Version = node.Value
		}
	case yaml.MappingNode:
		var detail pubspecDetail
		if err := node.Decode(&detail); err != nil {
			return dep, false, fmt.Errorf("dependency %s: %w", name, err)
		}
		if detail.SDK != "" || detail.Path != "" {
			return dep, true, nil
		}
		dep.Version = detail.Version
		switch detail.Git.Kind {
		case yaml.ScalarNode:
			dep.Repo = gitURLRepo(detail.Git.Value)
		case yaml.MappingNode:
			var g struct {
				URL string `yaml:"url"`
			}
			if err := detail.Git.Decode(&g); err == nil {
				dep.Repo = gitURLRepo(g.URL)
			}
		}
	default:
		return dep, false, fmt.Errorf("dependency %s: unsupported specification", name)
	}
	dep.Pinned = exactSemverRE.MatchString(dep.Version)
	return dep, false, nil
}
