package manifest

import (
	"bufio"
	"io"
	"path"
	"regexp"
	"strings"
)

// Requirements parses pip requirements files (requirements.txt,
// requirements-dev.txt, ...). Option lines, URLs and VCS references are
// skipped, and names are normalized the way PyPI normalizes them.
type Requirements struct{}

func (Requirements) Name() string      { return "requirements.txt" }
func (Requirements) Ecosystem() string { return "pypi" }

func (Requirements) Supports(filename string) bool {
	ok, _ := path.Match("requirements*.txt", strings.ToLower(filename))
	return ok
}

var (
	reqNameRE    = regexp.MustCompile(`^([a-zA-Z0-9][-a-zA-Z0-9._]*)(\[[^\]]*\])?\s*(.*)$`)
	pyNormalizer = regexp.MustCompile(`[-_.]+`)
)

func (d Requirements) Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, " #"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") ||
			strings.Contains(line, "://") || strings.HasPrefix(line, "git+") {
			continue
		}
		if i := strings.Index(line, ";"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		match := reqNameRE.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		spec := strings.ReplaceAll(match[3], " ", "")
		dep := Dependency{Name: normalizePyName(match[1]), Version: spec}
		if v, ok := strings.CutPrefix(spec, "=="); ok && !strings.ContainsAny(v, ",*") {
			dep.Version = v
			dep.Pinned = true
		}
		m.Dependencies = append(m.Dependencies, dep)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return finish(m, d.Ecosystem()), nil
}

func normalizePyName(name string) string {
	return strings.ToLower(pyNormalizer.ReplaceAllString(name, "-"))
}
