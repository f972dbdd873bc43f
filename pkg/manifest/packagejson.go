package manifest

import (
	"encoding/json"
	"io"
	"regexp"
	"strings"
)

// PackageJSON parses npm package.json files, including dev and peer
// dependencies.
type PackageJSON struct{}

func (PackageJSON) Name() string                  { return "package.json" }
func (PackageJSON) Ecosystem() string             { return "npm" }
func (PackageJSON) Supports(filename string) bool { return filename == "package.json" }

type packageFile struct {
	Name             string            `json:"name"`
	Version          string            `json:"version"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

func (d PackageJSON) Parse(r io.Reader) (*Manifest, error) {
	var pkg packageFile
	if err := json.NewDecoder(r).Decode(&pkg); err != nil {
		return nil, err
	}

	m := &Manifest{Name: pkg.Name, Version: pkg.Version}
	for _, set := range []map[string]string{pkg.Dependencies, pkg.DevDependencies, pkg.PeerDependencies} {
		for name, spec := range set {
			m.Dependencies = append(m.Dependencies, npmDependency(name, spec))
		}
	}
	return finish(m, d.Ecosystem()), nil
}

var exactSemverRE = regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?$`)

func npmDependency(name, spec string) Dependency {
	dep := Dependency{Name: name, Version: spec}
	switch {
	case strings.HasPrefix(spec, "github:"):
		dep.Repo = "github.com/" + strings.SplitN(strings.TrimPrefix(spec, "github:"), "#", 2)[0]
		dep.Version = ""
	case strings.Contains(spec, "github.com/"):
		dep.Repo = gitURLRepo(spec)
		dep.Version = ""
	default:
		dep.Pinned = exactSemverRE.MatchString(strings.TrimPrefix(spec, "="))
		dep.Version = strings.TrimPrefix(spec, "=")
	}
	return dep
}

// gitURLRepo extracts "github.com/owner/name" from git URLs such as
// "git+https://github.com/owner/name.git#v1".
func gitURLRepo(raw string) string {
	i := strings.Index(raw, "github.com")
	if i < 0 {
		return ""
	}
	s := raw[i:]
	s = strings.SplitN(s, "#", 2)[0]
	s = strings.Replace(s, "github.com:", "github.com/", 1)
	s = strings.TrimSuffix(s, ".git")
	parts := strings.Split(s, "/")
	if len(parts) < 3 {
		return ""
	}
	return strings.Join(parts[:3], "/")
}
