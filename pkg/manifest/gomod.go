package manifest

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// GoMod parses go.mod files. Indirect requirements are skipped; every
// requirement is pinned because module versions are exact.
type GoMod struct{}

func (GoMod) Name() string                  { return "go.mod" }
func (GoMod) Ecosystem() string             { return "go" }
func (GoMod) Supports(filename string) bool { return filename == "go.mod" }

func (d GoMod) Parse(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	inRequire := false
	lineNo := 0

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		if strings.HasPrefix(line, "module ") {
			m.Name = strings.Trim(strings.TrimSpace(strings.TrimPrefix(line, "module ")), `"`)
			continue
		}

		if strings.HasPrefix(line, "require (") || line == "require(" {
			inRequire = true
			continue
		}
		if inRequire && line == ")" {
			inRequire = false
			continue
		}

		if strings.HasPrefix(line, "require ") && !strings.Contains(line, "(") {
			line = strings.TrimPrefix(line, "require ")
		} else if !inRequire {
			continue
		}

		if strings.Contains(line, "// indirect") {
			continue
		}
		if i := strings.Index(line, "//"); i >= 0 {
			line = line[:i]
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, fmt.Errorf("line %d: malformed require %q", lineNo, line)
		}
		m.Dependencies = append(m.Dependencies, Dependency{
			Name:    fields[0],
			Version: fields[1],
			Pinned:  true,
			Repo:    moduleRepo(fields[0]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if inRequire {
		return nil, fmt.Errorf("unterminated require block")
	}
	if m.Name == "" {
		return nil, fmt.Errorf("missing module directive")
	}
	return finish(m, d.Ecosystem()), nil
}

// moduleRepo maps a module path hosted on a known forge to its repository.
func moduleRepo(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) < 3 {
		return ""
	}
	switch parts[0] {
	case "github.com", "gitlab.com", "bitbucket.org":
		return strings.Join(parts[:3], "/")
	}
	return ""
}
