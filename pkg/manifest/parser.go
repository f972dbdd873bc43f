package manifest

import (
	"context"
	"io/fs"
	"iter"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/matzehuels/deprank/pkg/errors"
)

// DefaultIgnore lists directory globs that never hold first-party manifests.
var DefaultIgnore = []string{
	".git",
	"**/node_modules",
	"**/vendor",
	"**/testdata",
	"**/third_party",
	"**/.venv",
	"**/target",
	"**/.dart_tool",
}

// Result is one element of the sequence returned by [Parser.Parse]. Exactly
// one of Manifest and Err is set.
type Result struct {
	Path     string
	Manifest *Manifest
	Err      error
}

// Parser walks snapshots for manifests.
type Parser struct {
	dialects []Dialect
	ignore   []string
}

// Option configures a Parser.
type Option func(*Parser)

// WithIgnore adds directory globs to skip, relative to the snapshot root.
func WithIgnore(globs ...string) Option {
	return func(p *Parser) { p.ignore = append(p.ignore, globs...) }
}

// NewParser creates a Parser with the default dialects and ignore globs.
func NewParser(opts ...Option) *Parser {
	p := &Parser{
		dialects: DefaultDialects(),
		ignore:   append([]string(nil), DefaultIgnore...),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Parse lazily walks root in lexical order. The walk stops early when the
// consumer stops ranging or ctx is done; a cancelled walk yields one final
// Result carrying the context error.
func (p *Parser) Parse(ctx context.Context, root string) iter.Seq[Result] {
	return func(yield func(Result) bool) {
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			rel, _ := filepath.Rel(root, path)
			rel = filepath.ToSlash(rel)
			if d.IsDir() {
				if rel != "." && p.ignored(rel) {
					return filepath.SkipDir
				}
				return nil
			}
			dialect := p.dialect(d.Name())
			if dialect == nil {
				return nil
			}
			if !yield(p.parseFile(path, rel, dialect)) {
				return filepath.SkipAll
			}
			return nil
		})
		if err != nil && ctx.Err() != nil {
			yield(Result{Err: ctx.Err()})
		} else if err != nil {
			yield(Result{Err: errors.Wrap(errors.ErrCodeInternal, err, "walk %s", root)})
		}
	}
}

func (p *Parser) parseFile(path, rel string, d Dialect) Result {
	f, err := os.Open(path)
	if err != nil {
		return Result{Path: rel, Err: errors.Wrap(errors.ErrCodeMalformedManifest, err, "%s", rel)}
	}
	defer f.Close()

	m, err := d.Parse(f)
	if err != nil {
		return Result{Path: rel, Err: errors.Wrap(errors.ErrCodeMalformedManifest, err, "%s", rel)}
	}
	m.Path = rel
	m.Dialect = d.Name()
	m.Ecosystem = d.Ecosystem()
	return Result{Path: rel, Manifest: m}
}

func (p *Parser) dialect(name string) Dialect {
	for _, d := range p.dialects {
		if d.Supports(name) {
			return d
		}
	}
	return nil
}

func (p *Parser) ignored(rel string) bool {
	for _, g := range p.ignore {
		if ok, _ := doublestar.Match(g, rel); ok {
			return true
		}
	}
	return false
}

// Collect drains seq. Per-file failures are returned as warnings. It fails
// with PARSE_NO_MANIFEST when no manifest parsed, and with the context
// error when the walk was cancelled.
func Collect(seq iter.Seq[Result]) ([]*Manifest, []error, error) {
	var (
		manifests []*Manifest
		warnings  []error
	)
	for r := range seq {
		switch {
		case r.Manifest != nil:
			manifests = append(manifests, r.Manifest)
		case errors.Is(r.Err, errors.ErrCodeMalformedManifest):
			warnings = append(warnings, r.Err)
		default:
			return nil, warnings, r.Err
		}
	}
	if len(manifests) == 0 {
		return nil, warnings, errors.New(errors.ErrCodeNoManifest, "no supported manifest parsed successfully")
	}
	return manifests, warnings, nil
}
