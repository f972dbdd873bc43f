package deps

import (
	"context"
	"io"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/deprank/pkg/manifest"
	"github.com/matzehuels/deprank/pkg/source"
)

const (
	DefaultMaxDepth = 3    // Default expansion depth below the root
	DefaultMaxNodes = 2000 // Default maximum graph size
	DefaultWorkers  = 8    // Default concurrent resolutions per level
)

// EdgeWeights assigns edge weights by declaration kind. Zero values mean 1.
type EdgeWeights struct {
	Pinned float64 `toml:"pinned"`
	Range  float64 `toml:"range"`
}

// For returns the weight of an edge declared by d.
func (w EdgeWeights) For(d manifest.Dependency) float64 {
	v := w.Range
	if d.Pinned {
		v = w.Pinned
	}
	if v <= 0 {
		return 1
	}
	return v
}

// Options configures graph construction.
type Options struct {
	MaxDepth int         // Levels expanded below the root (default: 3)
	MaxNodes int         // Maximum nodes in the graph (default: 2000)
	Workers  int         // Concurrent resolutions per level (default: 8)
	Weights  EdgeWeights // Edge weight policy (default: all 1)
	Logger   *log.Logger // Progress logging (optional)
}

// WithDefaults returns a copy of Options with zero values replaced by defaults.
func (o Options) WithDefaults() Options {
	opts := o
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}
	if opts.MaxNodes <= 0 {
		opts.MaxNodes = DefaultMaxNodes
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return opts
}

// Resolution is the source a dependency was resolved to.
type Resolution struct {
	Repo      string
	Snapshot  *source.Snapshot
	Manifests []*manifest.Manifest

	// Warnings are non-fatal problems met while resolving, such as
	// malformed manifests in the dependency's repository.
	Warnings []error
}

// Revision returns the resolved commit.
func (r *Resolution) Revision() string {
	if r == nil || r.Snapshot == nil {
		return ""
	}
	return r.Snapshot.Revision
}

// Dependencies returns the dependencies declared by every manifest.
func (r *Resolution) Dependencies() []manifest.Dependency {
	if r == nil {
		return nil
	}
	return declared(r.Manifests)
}

// Resolver locates and parses the source of a dependency.
type Resolver interface {
	// Resolve returns nil and no error when the dependency has no
	// locatable source; it then stays a leaf.
	Resolve(ctx context.Context, dep manifest.Dependency) (*Resolution, error)
}

// ResolverFunc adapts a function to [Resolver].
type ResolverFunc func(ctx context.Context, dep manifest.Dependency) (*Resolution, error)

func (f ResolverFunc) Resolve(ctx context.Context, dep manifest.Dependency) (*Resolution, error) {
	return f(ctx, dep)
}

// NopResolver resolves nothing, yielding a graph of direct dependencies only.
var NopResolver Resolver = ResolverFunc(func(context.Context, manifest.Dependency) (*Resolution, error) {
	return nil, nil
})

func declared(ms []*manifest.Manifest) []manifest.Dependency {
	var out []manifest.Dependency
	for _, m := range ms {
		out = append(out, m.Dependencies...)
	}
	return out
}
