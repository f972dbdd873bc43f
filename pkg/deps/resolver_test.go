package deps

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/integrations/registry"
	"github.com/matzehuels/deprank/pkg/manifest"
	"github.com/matzehuels/deprank/pkg/source"
)

type fakeFetcher struct {
	dirs map[string]string // "repo@tag" -> dir
	refs []source.Ref
}

func (f *fakeFetcher) Fetch(ctx context.Context, ref source.Ref) (*source.Snapshot, error) {
	f.refs = append(f.refs, ref)
	dir, ok := f.dirs[ref.Repo+"@"+ref.Tag]
	if !ok {
		return nil, errors.New(errors.ErrCodeFetchNotFound, "no %s@%s", ref.Repo, ref.Tag)
	}
	return &source.Snapshot{Repo: ref.Repo, Revision: "abc1234", Dir: dir}, nil
}

type staticLocator map[string]string

func (l staticLocator) Locate(ctx context.Context, d manifest.Dependency) (string, bool) {
	r, ok := l[d.Name]
	return r, ok
}

func manifestDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestRepoResolverPinnedTag(t *testing.T) {
	dir := manifestDir(t, map[string]string{"go.mod": "module github.com/acme/lib\nrequire github.com/acme/leaf v0.1.0\n"})
	f := &fakeFetcher{dirs: map[string]string{"github.com/acme/lib@v1.2.0": dir}}
	r := NewRepoResolver(f, nil, nil)

	res, err := r.Resolve(context.Background(), manifest.Dependency{
		Name: "github.com/acme/lib", Version: "v1.2.0", Ecosystem: "go", Pinned: true, Repo: "github.com/acme/lib",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Revision() != "abc1234" || len(res.Manifests) != 1 {
		t.Fatalf("Resolution = %+v", res)
	}
	if got := res.Dependencies(); len(got) != 1 || got[0].Name != "github.com/acme/leaf" {
		t.Errorf("Dependencies = %+v", got)
	}
	if len(f.refs) != 1 || f.refs[0].Tag != "v1.2.0" {
		t.Errorf("fetched refs = %+v, want the pinned tag only", f.refs)
	}
}

func TestRepoResolverFallsBackToDefaultBranch(t *testing.T) {
	dir := manifestDir(t, map[string]string{"package.json": `{"name":"lib"}`})
	f := &fakeFetcher{dirs: map[string]string{"github.com/acme/lib@": dir}}
	r := NewRepoResolver(f, nil, staticLocator{"lib": "github.com/acme/lib"})

	res, err := r.Resolve(context.Background(), manifest.Dependency{Name: "lib", Version: "2.0.0", Ecosystem: "npm", Pinned: true})
	if err != nil {
		t.Fatal(err)
	}
	if res.Repo != "github.com/acme/lib" {
		t.Errorf("Repo = %q", res.Repo)
	}
	var tags []string
	for _, ref := range f.refs {
		tags = append(tags, ref.Tag)
	}
	if want := []string{"v2.0.0", "2.0.0", ""}; !reflect.DeepEqual(tags, want) {
		t.Errorf("tags tried = %q, want %q", tags, want)
	}
}

func TestRepoResolverUnlocatable(t *testing.T) {
	r := NewRepoResolver(&fakeFetcher{}, nil, staticLocator{})
	res, err := r.Resolve(context.Background(), manifest.Dependency{Name: "ghost", Ecosystem: "npm"})
	if res != nil || err != nil {
		t.Errorf("Resolve() = %v, %v; want nil, nil", res, err)
	}
}

func TestRepoResolverNoManifestIsLeaf(t *testing.T) {
	dir := manifestDir(t, map[string]string{"README.md": "hi"})
	f := &fakeFetcher{dirs: map[string]string{"github.com/acme/docs@": dir}}
	res, err := NewRepoResolver(f, nil, nil).Resolve(context.Background(), manifest.Dependency{Name: "docs", Repo: "github.com/acme/docs"})
	if err != nil {
		t.Fatal(err)
	}
	if res == nil || len(res.Manifests) != 0 || res.Revision() == "" {
		t.Errorf("Resolution = %+v, want resolved leaf", res)
	}
}

func TestRepoResolverFetchError(t *testing.T) {
	r := NewRepoResolver(&fakeFetcher{}, nil, nil)
	_, err := r.Resolve(context.Background(), manifest.Dependency{Name: "x", Repo: "github.com/acme/x"})
	if !errors.Is(err, errors.ErrCodeFetchNotFound) {
		t.Errorf("Resolve() error = %v, want FETCH_NOT_FOUND", err)
	}
}

func TestCandidateTags(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"v1.2.3", []string{"v1.2.3"}},
		{"1.2.3", []string{"v1.2.3", "1.2.3"}},
		{"1.0 || 2.0", nil},
	}
	for _, tt := range tests {
		if got := candidateTags(tt.in); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("candidateTags(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLocatorsFirstMatchWins(t *testing.T) {
	ls := Locators{
		staticLocator{"a": "github.com/first/a"},
		staticLocator{"a": "github.com/second/a", "b": "github.com/second/b"},
	}
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"a", "github.com/first/a", true},
		{"b", "github.com/second/b", true},
		{"c", "", false},
	}
	for _, tt := range tests {
		got, ok := ls.Locate(context.Background(), manifest.Dependency{Name: tt.name})
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Locate(%s) = %q, %v, want %q, %v", tt.name, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRegistryLocator(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/left-pad" {
			w.Write([]byte(`{"repository":{"url":"git+https://github.com/stevemao/left-pad.git"}}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	client := registry.NewClient(nil, 0)
	client.SetBaseURL(registry.NPM, srv.URL)
	l := NewRegistryLocator(client)

	repo, ok := l.Locate(context.Background(), manifest.Dependency{Name: "left-pad", Ecosystem: "npm"})
	if !ok || repo != "github.com/stevemao/left-pad" {
		t.Errorf("Locate(left-pad) = %q, %v", repo, ok)
	}
	if _, ok := l.Locate(context.Background(), manifest.Dependency{Name: "missing", Ecosystem: "npm"}); ok {
		t.Error("Locate(missing) should fail")
	}
	if _, ok := l.Locate(context.Background(), manifest.Dependency{Name: "golang.org/x/mod", Ecosystem: "go"}); ok {
		t.Error("go modules have no registry")
	}
}
