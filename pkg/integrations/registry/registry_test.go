package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/deprank/pkg/cache"
	"github.com/matzehuels/deprank/pkg/integrations"
)

func testClient(t *testing.T, handler http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	c := NewClient(fc, time.Hour)
	for eco := range c.baseURLs {
		c.baseURLs[eco] = srv.URL + "/" + eco
	}
	return c, &hits
}

func TestRepository(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/npm/left-pad":
			w.Write([]byte(`{"repository":{"type":"git","url":"git+https://github.com/Stevemao/left-pad.git"}}`))
		case "/npm/plain":
			w.Write([]byte(`{"repository":"git@github.com:acme/plain.git"}`))
		case "/pypi/requests-oauthlib/json":
			w.Write([]byte(`{"info":{"project_urls":{"Funding":"https://github.com/sponsors/psf","Source":"https://github.com/requests/requests-oauthlib"}}}`))
		case "/cargo/crates/serde":
			w.Write([]byte(`{"crate":{"repository":"https://github.com/serde-rs/serde","homepage":"https://serde.rs"}}`))
		case "/pub/packages/http":
			w.Write([]byte(`{"latest":{"pubspec":{"repository":"https://github.com/dart-lang/http/tree/master/pkgs/http"}}}`))
		case "/npm/homepage-only":
			w.Write([]byte(`{"homepage":"https://gitlab.com/acme/tool#readme"}`))
		default:
			http.NotFound(w, r)
		}
	})

	tests := []struct {
		eco, name string
		want      string
	}{
		{NPM, "left-pad", "github.com/stevemao/left-pad"},
		{NPM, "plain", "github.com/acme/plain"},
		{NPM, "homepage-only", "gitlab.com/acme/tool"},
		{PyPI, "Requests_OAuthlib", "github.com/requests/requests-oauthlib"},
		{Cargo, "serde", "github.com/serde-rs/serde"},
		{Pub, "http", "github.com/dart-lang/http"},
	}
	for _, tt := range tests {
		t.Run(tt.eco+"/"+tt.name, func(t *testing.T) {
			got, err := c.Repository(context.Background(), tt.eco, tt.name)
			if err != nil {
				t.Fatalf("Repository: %v", err)
			}
			if got != tt.want {
				t.Errorf("Repository(%s, %s) = %q, want %q", tt.eco, tt.name, got, tt.want)
			}
		})
	}
}

func TestRepositoryNotFound(t *testing.T) {
	c, _ := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/cargo/crates/nourl" {
			w.Write([]byte(`{"crate":{"homepage":"https://example.com"}}`))
			return
		}
		http.NotFound(w, r)
	})

	for _, tt := range []struct{ eco, name string }{
		{NPM, "missing"},
		{Cargo, "nourl"},
		{"go", "golang.org/x/mod"},
	} {
		_, err := c.Repository(context.Background(), tt.eco, tt.name)
		if !errors.Is(err, integrations.ErrNotFound) {
			t.Errorf("Repository(%s, %s) error = %v, want ErrNotFound", tt.eco, tt.name, err)
		}
	}
}

func TestRepositoryCached(t *testing.T) {
	c, hits := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"crate":{"repository":"https://github.com/serde-rs/serde"}}`))
	})

	for range 3 {
		if _, err := c.Repository(context.Background(), Cargo, "serde"); err != nil {
			t.Fatal(err)
		}
	}
	if n := hits.Load(); n != 1 {
		t.Errorf("registry hits = %d, want 1", n)
	}
}

func TestSupports(t *testing.T) {
	c := NewClient(nil, time.Hour)
	for _, eco := range []string{NPM, PyPI, Cargo, Pub} {
		if !c.Supports(eco) {
			t.Errorf("Supports(%q) = false", eco)
		}
	}
	if c.Supports("go") {
		t.Error("go modules are located from their import path")
	}
}
