// Package github provides an HTTP client for the GitHub API.
//
// # Overview
//
// The client serves two purposes: enriching analysed projects with
// repository metadata, and locating the repository behind a dependency
// whose manifest does not name one.
//
// # Usage
//
//	client := github.NewClient(token, fileCache, 24*time.Hour)
//
//	metrics, err := client.Fetch(ctx, "acme", "widget", false)
//	if err != nil {
//	    return err
//	}
//	fmt.Println("Default branch:", metrics.DefaultBranch)
//
// # Authentication
//
// A GitHub personal access token is optional but recommended to avoid rate
// limits. Without a token, the client is limited to 60 requests/hour.
//
// # Package Search
//
// [Client.SearchPackageRepo] searches GitHub code for manifest files
// declaring a package name, which the dependency resolver uses when a
// coordinate is not itself a repository path.
package github
