package github

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/matzehuels/deprank/pkg/cache"
	"github.com/matzehuels/deprank/pkg/integrations"
)

// Client provides access to the GitHub API for project metadata and
// repository discovery. It handles caching, automatic retries, and optional
// authentication.
type Client struct {
	*integrations.Client
	baseURL string
}

// NewClient creates a GitHub API client with optional authentication.
// Pass an empty string for token to use unauthenticated requests (lower rate
// limits) and a nil cache to disable response caching.
func NewClient(token string, c cache.Cache, ttl time.Duration) *Client {
	headers := map[string]string{"Accept": "application/vnd.github.v3+json"}
	if token != "" {
		headers["Authorization"] = "Bearer " + token
	}
	return &Client{
		Client:  integrations.NewClient(c, "github", ttl, headers),
		baseURL: "https://api.github.com",
	}
}

// Fetch retrieves repository metrics (stars, contributors, activity) from GitHub.
// If refresh is true, cached data is bypassed.
func (c *Client) Fetch(ctx context.Context, owner, repo string, refresh bool) (*integrations.RepoMetrics, error) {
	if err := ValidateRepoRef(owner, repo); err != nil {
		return nil, err
	}
	key := owner + "/" + repo

	var m integrations.RepoMetrics
	err := c.Cached(ctx, key, refresh, &m, func() error {
		return c.fetchMetrics(ctx, owner, repo, &m)
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) fetchMetrics(ctx context.Context, owner, repo string, m *integrations.RepoMetrics) error {
	data, err := c.fetchRepo(ctx, owner, repo)
	if err != nil {
		return err
	}

	*m = integrations.RepoMetrics{
		RepoURL:       fmt.Sprintf("https://github.com/%s/%s", owner, repo),
		Owner:         owner,
		Description:   data.Description,
		DefaultBranch: data.DefaultBranch,
		Stars:         data.Stars,
		License:       data.License.SPDXID,
		Language:      data.Language,
		Archived:      data.Archived,
		LastCommitAt:  data.PushedAt,
	}
	if contribs, err := c.fetchContributors(ctx, owner, repo); err == nil {
		m.Contributors = contribs
	}
	return nil
}

func (c *Client) fetchRepo(ctx context.Context, owner, repo string) (*repoResponse, error) {
	var data repoResponse
	url := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, owner, repo)
	if err := c.Get(ctx, url, &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return nil, fmt.Errorf("%w: github repo %s/%s", err, owner, repo)
		}
		return nil, err
	}
	return &data, nil
}

func (c *Client) fetchContributors(ctx context.Context, owner, repo string) ([]integrations.Contributor, error) {
	var data []contributorResponse
	url := fmt.Sprintf("%s/repos/%s/%s/contributors?per_page=10", c.baseURL, owner, repo)
	if err := c.Get(ctx, url, &data); err != nil {
		return nil, err
	}

	var result []integrations.Contributor
	for _, cr := range data {
		if cr.Type != "Bot" {
			result = append(result, integrations.Contributor{
				Login:         cr.Login,
				Contributions: cr.Contributions,
			})
		}
	}
	return result, nil
}

// SearchPackageRepo searches GitHub code for a manifest file that declares
// pkgName and returns the repository that holds it.
func (c *Client) SearchPackageRepo(ctx context.Context, pkgName, manifestFile string) (owner, repo string, ok bool) {
	key := fmt.Sprintf("search:%s:%s", manifestFile, pkgName)

	var result searchResult
	_ = c.Cached(ctx, key, false, &result, func() error {
		result.Owner, result.Repo, result.Found = c.doSearch(ctx, pkgName, manifestFile)
		return nil
	})
	return result.Owner, result.Repo, result.Found
}

func (c *Client) doSearch(ctx context.Context, pkgName, manifestFile string) (owner, repo string, ok bool) {
	query := fmt.Sprintf(`"%s" filename:%s`, pkgName, manifestFile)
	url := fmt.Sprintf("%s/search/code?q=%s&per_page=1", c.baseURL, integrations.URLEncode(query))

	var data searchResponse
	if err := c.Get(ctx, url, &data); err != nil || len(data.Items) == 0 {
		return "", "", false
	}
	item := data.Items[0]
	return item.Repository.Owner.Login, item.Repository.Name, true
}
