package deps

import (
	"context"
	"strings"

	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/integrations/github"
	"github.com/matzehuels/deprank/pkg/integrations/registry"
	"github.com/matzehuels/deprank/pkg/manifest"
	"github.com/matzehuels/deprank/pkg/source"
)

// SnapshotFetcher is the part of [source.Fetcher] a RepoResolver uses.
type SnapshotFetcher interface {
	Fetch(ctx context.Context, ref source.Ref) (*source.Snapshot, error)
}

// Locator finds the source repository of a dependency that does not name
// one itself.
type Locator interface {
	Locate(ctx context.Context, dep manifest.Dependency) (repo string, ok bool)
}

// RepoResolver resolves dependencies through their source repositories,
// using the same fetcher and parser as the project itself.
type RepoResolver struct {
	Fetcher SnapshotFetcher
	Parser  *manifest.Parser
	Locator Locator // optional
}

// NewRepoResolver creates a RepoResolver. locator may be nil.
func NewRepoResolver(f SnapshotFetcher, p *manifest.Parser, locator Locator) *RepoResolver {
	if p == nil {
		p = manifest.NewParser()
	}
	return &RepoResolver{Fetcher: f, Parser: p, Locator: locator}
}

// Resolve fetches the dependency's repository at the tag matching a pinned
// version when one exists, or at its default branch otherwise. A repository
// without manifests resolves to a leaf.
func (r *RepoResolver) Resolve(ctx context.Context, dep manifest.Dependency) (*Resolution, error) {
	repo := dep.Repo
	if repo == "" && r.Locator != nil {
		repo, _ = r.Locator.Locate(ctx, dep)
	}
	if repo == "" {
		return nil, nil
	}

	snap, err := r.fetch(ctx, repo, dep)
	if err != nil {
		return nil, err
	}

	res := &Resolution{Repo: source.NormalizeRepo(repo), Snapshot: snap}
	manifests, warnings, err := manifest.Collect(r.Parser.Parse(ctx, snap.Dir))
	switch {
	case errors.Is(err, errors.ErrCodeNoManifest):
	case err != nil:
		return nil, err
	}
	res.Manifests = manifests
	res.Warnings = warnings
	return res, nil
}

func (r *RepoResolver) fetch(ctx context.Context, repo string, dep manifest.Dependency) (*source.Snapshot, error) {
	if dep.Pinned && dep.Version != "" {
		for _, tag := range candidateTags(dep.Version) {
			snap, err := r.Fetcher.Fetch(ctx, source.Ref{Repo: repo, Tag: tag})
			if err == nil {
				return snap, nil
			}
			if !errors.Is(err, errors.ErrCodeFetchNotFound) {
				return nil, err
			}
		}
	}
	return r.Fetcher.Fetch(ctx, source.Ref{Repo: repo})
}

func candidateTags(version string) []string {
	if errors.ValidateRefName(version) != nil {
		return nil
	}
	if strings.HasPrefix(version, "v") {
		return []string{version}
	}
	return []string{"v" + version, version}
}

// manifestFiles names the manifest searched for per ecosystem.
var manifestFiles = map[string]string{
	"go":    "go.mod",
	"npm":   "package.json",
	"pypi":  "requirements.txt",
	"cargo": "Cargo.toml",
	"pub":   "pubspec.yaml",
}

// GitHubLocator locates repositories with GitHub code search.
type GitHubLocator struct {
	client *github.Client
}

// NewGitHubLocator creates a locator backed by client.
func NewGitHubLocator(client *github.Client) *GitHubLocator {
	return &GitHubLocator{client: client}
}

// Locate searches GitHub for the manifest that declares the dependency.
func (g *GitHubLocator) Locate(ctx context.Context, dep manifest.Dependency) (string, bool) {
	file, ok := manifestFiles[dep.Ecosystem]
	if !ok {
		return "", false
	}
	owner, name, ok := g.client.SearchPackageRepo(ctx, dep.Name, file)
	if !ok {
		return "", false
	}
	return "github.com/" + owner + "/" + name, true
}

// RegistryLocator reads the repository a package registry publishes for
// the dependency.
type RegistryLocator struct {
	client *registry.Client
}

// NewRegistryLocator creates a locator backed by client.
func NewRegistryLocator(client *registry.Client) *RegistryLocator {
	return &RegistryLocator{client: client}
}

func (l *RegistryLocator) Locate(ctx context.Context, dep manifest.Dependency) (string, bool) {
	if !l.client.Supports(dep.Ecosystem) {
		return "", false
	}
	repo, err := l.client.Repository(ctx, dep.Ecosystem, dep.Name)
	if err != nil {
		return "", false
	}
	return repo, true
}

// Locators tries each locator in order and returns the first match.
type Locators []Locator

func (ls Locators) Locate(ctx context.Context, dep manifest.Dependency) (string, bool) {
	for _, l := range ls {
		if repo, ok := l.Locate(ctx, dep); ok {
			return repo, true
		}
	}
	return "", false
}
