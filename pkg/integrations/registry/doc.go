// Package registry looks up the source repository of published packages.
//
// Manifests name dependencies by package, not by repository. [Client]
// asks the package's registry (npm, PyPI, crates.io or pub.dev) for the
// repository URL it publishes, so the dependency can be fetched and
// analysed like the project itself.
//
//	c := registry.NewClient(fileCache, 24*time.Hour)
//	repo, err := c.Repository(ctx, "npm", "left-pad") // "github.com/left-pad/left-pad"
//
// Lookups are cached through the shared [integrations.Client].
package registry
