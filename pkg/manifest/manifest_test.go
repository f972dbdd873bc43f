package manifest

import (
	"reflect"
	"strings"
	"testing"
)

func TestGoModParse(t *testing.T) {
	src := `module github.com/acme/widget

go 1.22

require github.com/single/dep v1.0.0

require (
	github.com/spf13/cobra v1.8.0
	golang.org/x/sync v0.5.0 // indirect
	gopkg.in/yaml.v3 v3.0.1
)
`
	m, err := GoMod{}.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Name != "github.com/acme/widget" {
		t.Errorf("Name = %q, want github.com/acme/widget", m.Name)
	}
	want := []Dependency{
		{Name: "github.com/single/dep", Version: "v1.0.0", Ecosystem: "go", Pinned: true, Repo: "github.com/single/dep"},
		{Name: "github.com/spf13/cobra", Version: "v1.8.0", Ecosystem: "go", Pinned: true, Repo: "github.com/spf13/cobra"},
		{Name: "gopkg.in/yaml.v3", Version: "v3.0.1", Ecosystem: "go", Pinned: true},
	}
	if !reflect.DeepEqual(m.Dependencies, want) {
		t.Errorf("Dependencies = %+v, want %+v", m.Dependencies, want)
	}
}

func TestGoModMalformed(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"unterminated", "module x\nrequire (\n\ta v1\n"},
		{"bad require", "module x\nrequire a\n"},
		{"no module", "go 1.22\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := (GoMod{}).Parse(strings.NewReader(tt.src)); err == nil {
				t.Error("Parse() error = nil, want error")
			}
		})
	}
}

func TestPackageJSONParse(t *testing.T) {
	src := `{
  "name": "widget",
  "version": "1.2.3",
  "dependencies": {"react": "^18.2.0", "left-pad": "1.3.0"},
  "devDependencies": {"jest": "29.0.0", "tool": "github:acme/tool#main"},
  "peerDependencies": {"react": "^17"}
}`
	m, err := PackageJSON{}.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Name != "widget" || m.Version != "1.2.3" {
		t.Errorf("package = %s@%s, want widget@1.2.3", m.Name, m.Version)
	}
	want := []Dependency{
		{Name: "jest", Version: "29.0.0", Ecosystem: "npm", Pinned: true},
		{Name: "left-pad", Version: "1.3.0", Ecosystem: "npm", Pinned: true},
		{Name: "react", Version: "^18.2.0", Ecosystem: "npm"},
		{Name: "tool", Ecosystem: "npm", Repo: "github.com/acme/tool"},
	}
	if !reflect.DeepEqual(m.Dependencies, want) {
		t.Errorf("Dependencies = %+v, want %+v", m.Dependencies, want)
	}

	if _, err := (PackageJSON{}).Parse(strings.NewReader("{not json")); err == nil {
		t.Error("Parse(invalid) error = nil, want error")
	}
}

func TestRequirementsParse(t *testing.T) {
	src := `# comment
-r base.txt
Django==4.2.1
requests>=2.31 ; python_version >= "3.8"
typing_extensions
Flask[async] == 3.0.0  # web
git+https://github.com/acme/private.git
`
	m, err := Requirements{}.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Dependency{
		{Name: "django", Version: "4.2.1", Ecosystem: "pypi", Pinned: true},
		{Name: "flask", Version: "3.0.0", Ecosystem: "pypi", Pinned: true},
		{Name: "requests", Version: ">=2.31", Ecosystem: "pypi"},
		{Name: "typing-extensions", Ecosystem: "pypi"},
	}
	if !reflect.DeepEqual(m.Dependencies, want) {
		t.Errorf("Dependencies = %+v, want %+v", m.Dependencies, want)
	}
}

func TestRequirementsSupports(t *testing.T) {
	tests := map[string]bool{
		"requirements.txt":     true,
		"requirements-dev.txt": true,
		"Requirements.txt":     true,
		"constraints.txt":      false,
		"requirements.in":      false,
	}
	for name, want := range tests {
		if got := (Requirements{}).Supports(name); got != want {
			t.Errorf("Supports(%q) = %v, want %v", name, got, want)
		}
	}
}

func TestCargoParse(t *testing.T) {
	src := `[package]
name = "widget"
version = "0.3.0"

[dependencies]
serde = "1.0"
tokio = { version = "=1.35.0", features = ["full"] }
forked = { git = "https://github.com/acme/forked.git", branch = "main" }

[dev-dependencies]
proptest = "1"
`
	m, err := Cargo{}.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if m.Name != "widget" || m.Version != "0.3.0" {
		t.Errorf("package = %s@%s, want widget@0.3.0", m.Name, m.Version)
	}
	want := []Dependency{
		{Name: "forked", Ecosystem: "cargo", Repo: "github.com/acme/forked"},
		{Name: "proptest", Version: "1", Ecosystem: "cargo"},
		{Name: "serde", Version: "1.0", Ecosystem: "cargo"},
		{Name: "tokio", Version: "1.35.0", Ecosystem: "cargo", Pinned: true},
	}
	if !reflect.DeepEqual(m.Dependencies, want) {
		t.Errorf("Dependencies = %+v, want %+v", m.Dependencies, want)
	}

	if _, err := (Cargo{}).Parse(strings.NewReader("[package\nname=")); err == nil {
		t.Error("Parse(invalid) error = nil, want error")
	}
}

func TestPubspecParse(t *testing.T) {
	src := `name: widget
version: 1.0.0
dependencies:
  flutter:
    sdk: flutter
  http: ^1.1.0
  collection: 1.18.0
  any_version:
  forked:
    git:
      url: https://github.com/acme/forked.git
dev_dependencies:
  lints: ^3.0.0
`
	m, err := Pubspec{}.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := []Dependency{
		{Name: "any_version", Ecosystem: "pub"},
		{Name: "collection", Version: "1.18.0", Ecosystem: "pub", Pinned: true},
		{Name: "forked", Ecosystem: "pub", Repo: "github.com/acme/forked"},
		{Name: "http", Version: "^1.1.0", Ecosystem: "pub"},
		{Name: "lints", Version: "^3.0.0", Ecosystem: "pub"},
	}
	if !reflect.DeepEqual(m.Dependencies, want) {
		t.Errorf("Dependencies = %+v, want %+v", m.Dependencies, want)
	}

	if _, err := (Pubspec{}).Parse(strings.NewReader("version: 1.0.0\n")); err == nil {
		t.Error("Parse(no name) error = nil, want error")
	}
}

func TestGitURLRepo(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"git+https://github.com/acme/widget.git#v1", "github.com/acme/widget"},
		{"git@github.com:acme/widget.git", "github.com/acme/widget"},
		{"https://github.com/acme", ""},
		{"https://gitlab.com/acme/widget", ""},
	}
	for _, tt := range tests {
		if got := gitURLRepo(tt.in); got != tt.want {
			t.Errorf("gitURLRepo(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
