// Package source resolves repository references to local, cached snapshots
// and extracts authorship from their history.
//
// # Reference Resolution
//
// A [Ref] names a repository plus an optional branch, tag or revision. When
// several are given the most specific wins: revision, then tag, then branch,
// then the remote's default branch.
//
// # Snapshot Cache
//
// [Fetcher.Fetch] keeps one checkout per (repository, revision) under its
// cache directory. A hit never touches the network. Concurrent fetches of the
// same key collapse into a single clone whose result every caller receives.
// Branch and tag resolutions are memoized in a [cache.Cache] with a TTL.
//
// Network access goes through the [Remote] capability; [GitRemote] is the
// go-git implementation.
//
// # Authorship
//
// [History] walks the commit log of a snapshot and aggregates non-merge
// commits per contributor identity. GitHub noreply addresses map to the
// account handle; other authors are identified by email.
package source
