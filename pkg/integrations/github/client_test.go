package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matzehuels/deprank/pkg/cache"
	"github.com/matzehuels/deprank/pkg/integrations"
)

func TestClient_Fetch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/repos/owner/repo":
			json.NewEncoder(w).Encode(map[string]any{
				"stargazers_count": 100,
				"default_branch":   "main",
				"description":      "a widget",
				"license":          map[string]string{"spdx_id": "MIT"},
			})
		case "/repos/owner/repo/contributors":
			json.NewEncoder(w).Encode([]contributorResponse{
				{Login: "user1", Contributions: 10, Type: "User"},
				{Login: "dependabot[bot]", Contributions: 50, Type: "Bot"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c := testClient(t, server.URL, "")

	metrics, err := c.Fetch(context.Background(), "owner", "repo", true)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if metrics.Stars != 100 {
		t.Errorf("expected 100 stars, got %d", metrics.Stars)
	}
	if metrics.DefaultBranch != "main" {
		t.Errorf("DefaultBranch = %q, want %q", metrics.DefaultBranch, "main")
	}
	if metrics.License != "MIT" {
		t.Errorf("License = %q, want %q", metrics.License, "MIT")
	}
	if len(metrics.Contributors) != 1 || metrics.Contributors[0].Login != "user1" {
		t.Errorf("Contributors = %+v, want only user1", metrics.Contributors)
	}
}

func TestClient_FetchNotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	c := testClient(t, server.URL, "")
	_, err := c.Fetch(context.Background(), "owner", "missing", true)
	if err == nil {
		t.Fatal("expected error for missing repo")
	}
}

func TestClient_FetchInvalidRef(t *testing.T) {
	c := testClient(t, "http://unused", "")
	if _, err := c.Fetch(context.Background(), "-bad", "repo", true); err == nil {
		t.Error("expected validation error")
	}
}

func TestClient_SearchPackageRepo(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/search/code" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"items":[{"repository":{"name":"serde","owner":{"login":"serde-rs"}}}]}`))
	}))
	defer server.Close()

	c := testClient(t, server.URL, "token")

	owner, repo, ok := c.SearchPackageRepo(context.Background(), "serde", "Cargo.toml")
	if !ok || owner != "serde-rs" || repo != "serde" {
		t.Errorf("SearchPackageRepo() = %q, %q, %v", owner, repo, ok)
	}

	// Second lookup is served from cache.
	c.SearchPackageRepo(context.Background(), "serde", "Cargo.toml")
	if n := calls.Load(); n != 1 {
		t.Errorf("server calls = %d, want 1", n)
	}
}

func TestNewClient(t *testing.T) {
	c := NewClient("test-token", nil, time.Hour)
	if c.Client == nil {
		t.Error("expected client to be initialized")
	}
}

func testClient(t *testing.T, serverURL, token string) *Client {
	t.Helper()
	fc, err := cache.NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	headers := map[string]string{"Accept": "application/vnd.github.v3+json"}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return &Client{
		Client:  integrations.NewClient(fc, "github", time.Hour, headers),
		baseURL: serverURL,
	}
}
