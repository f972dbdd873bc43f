package registry

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/matzehuels/deprank/pkg/cache"
	"github.com/matzehuels/deprank/pkg/integrations"
)

// Ecosystems served by a Client, keyed like manifest ecosystems.
const (
	NPM   = "npm"
	PyPI  = "pypi"
	Cargo = "cargo"
	Pub   = "pub"
)

var defaultBaseURLs = map[string]string{
	NPM:   "https://registry.npmjs.org",
	PyPI:  "https://pypi.org/pypi",
	Cargo: "https://crates.io/api/v1",
	Pub:   "https://pub.dev/api",
}

// repoURLPattern matches repository URLs on the hosts the fetcher can clone,
// capturing "host/owner" and the repository name.
var repoURLPattern = regexp.MustCompile(`https?://(?:www\.)?((?:github\.com|gitlab\.com|codeberg\.org)/[\w.-]+)/([\w.-]+)`)

// Client resolves package names to repositories.
type Client struct {
	*integrations.Client
	baseURLs map[string]string
}

// NewClient creates a registry client. Pass a nil cache to disable caching.
func NewClient(c cache.Cache, ttl time.Duration) *Client {
	base := make(map[string]string, len(defaultBaseURLs))
	for k, v := range defaultBaseURLs {
		base[k] = v
	}
	return &Client{
		Client:   integrations.NewClient(c, "registry", ttl, map[string]string{"User-Agent": "deprank"}),
		baseURLs: base,
	}
}

// SetBaseURL points an ecosystem at another registry mirror.
func (c *Client) SetBaseURL(ecosystem, baseURL string) {
	c.baseURLs[ecosystem] = strings.TrimSuffix(baseURL, "/")
}

// Supports reports whether ecosystem has a registry.
func (c *Client) Supports(ecosystem string) bool {
	_, ok := c.baseURLs[ecosystem]
	return ok
}

type lookup struct {
	Repo string `json:"repo"`
}

// Repository returns the "host/owner/name" repository published for a
// package. It returns [integrations.ErrNotFound] for unknown packages and
// for packages that publish no recognisable repository URL.
func (c *Client) Repository(ctx context.Context, ecosystem, name string) (string, error) {
	base, ok := c.baseURLs[ecosystem]
	if !ok {
		return "", fmt.Errorf("%w: no registry for ecosystem %q", integrations.ErrNotFound, ecosystem)
	}
	name = normalizeName(ecosystem, name)

	var res lookup
	err := c.Cached(ctx, ecosystem+":"+name, false, &res, func() error {
		urls, homepage, err := c.fetchURLs(ctx, ecosystem, base, name)
		if err != nil {
			return err
		}
		res.Repo = pickRepo(urls, homepage)
		return nil
	})
	if err != nil {
		return "", err
	}
	if res.Repo == "" {
		return "", fmt.Errorf("%w: %s package %s has no repository", integrations.ErrNotFound, ecosystem, name)
	}
	return res.Repo, nil
}

// fetchURLs returns the URLs a package publishes, keyed like PyPI project
// URLs, plus its homepage.
func (c *Client) fetchURLs(ctx context.Context, ecosystem, base, name string) (map[string]string, string, error) {
	switch ecosystem {
	case NPM:
		var data npmResponse
		if err := c.Get(ctx, base+"/"+url.PathEscape(name), &data); err != nil {
			return nil, "", err
		}
		return map[string]string{"Repository": field(data.Repository, "url")}, data.Homepage, nil

	case PyPI:
		var data pypiResponse
		if err := c.Get(ctx, base+"/"+url.PathEscape(name)+"/json", &data); err != nil {
			return nil, "", err
		}
		return data.Info.ProjectURLs, data.Info.HomePage, nil

	case Cargo:
		var data cratesResponse
		if err := c.Get(ctx, base+"/crates/"+url.PathEscape(name), &data); err != nil {
			return nil, "", err
		}
		return map[string]string{"Repository": data.Crate.Repository}, data.Crate.HomePage, nil

	case Pub:
		var data pubResponse
		if err := c.Get(ctx, base+"/packages/"+url.PathEscape(name), &data); err != nil {
			return nil, "", err
		}
		return map[string]string{"Repository": data.Latest.Pubspec.Repository}, data.Latest.Pubspec.Homepage, nil
	}
	return nil, "", integrations.ErrNotFound
}

// pickRepo returns the first URL that names a cloneable repository as
// "host/owner/name", or "" when none does.
func pickRepo(urls map[string]string, homepage string) string {
	normalized := make(map[string]string, len(urls))
	for k, u := range urls {
		if u = integrations.NormalizeRepoURL(u); u != "" {
			normalized[k] = u
		}
	}
	owner, repo, ok := integrations.ExtractRepoURL(repoURLPattern, normalized, integrations.NormalizeRepoURL(homepage))
	if !ok {
		return ""
	}
	return strings.ToLower(owner + "/" + repo)
}

// normalizeName applies the registry's canonical package naming. PyPI
// follows PEP 503.
func normalizeName(ecosystem, name string) string {
	name = strings.TrimSpace(name)
	switch ecosystem {
	case PyPI:
		return strings.ToLower(strings.NewReplacer("_", "-", ".", "-").Replace(name))
	case NPM, Cargo:
		return strings.ToLower(name)
	}
	return name
}

// field reads a string or the named key of an object, the two shapes npm
// uses for repository and author fields.
func field(v any, key string) string {
	switch val := v.(type) {
	case string:
		return val
	case map[string]any:
		if s, ok := val[key].(string); ok {
			return s
		}
	}
	return ""
}

type npmResponse struct {
	Repository any    `json:"repository"`
	Homepage   string `json:"homepage"`
}

type pypiResponse struct {
	Info struct {
		ProjectURLs map[string]string `json:"project_urls"`
		HomePage    string            `json:"home_page"`
	} `json:"info"`
}

type cratesResponse struct {
	Crate struct {
		Repository string `json:"repository"`
		HomePage   string `json:"homepage"`
	} `json:"crate"`
}

type pubResponse struct {
	Latest struct {
		Pubspec struct {
			Repository string `json:"repository"`
			Homepage   string `json:"homepage"`
		} `json:"pubspec"`
	} `json:"latest"`
}
