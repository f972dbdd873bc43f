// Package cache provides byte-oriented caches shared by the fetcher, the
// GitHub client and the engine.
//
// Backends:
//   - [FileCache]: sha256-sharded JSON files, for the CLI and single-node servers
//   - [RedisCache]: shared cache for multi-instance deployments
//   - [Disabled]: stores nothing
//
// Keys are produced by a [Keyer] so that every component agrees on the
// layout, and [ScopedKeyer] isolates tenants or environments by prefix.
package cache

import (
	"context"
	"time"
)

// Cache stores opaque byte values with an optional TTL.
type Cache interface {
	// Get returns the value for key. A miss is reported as ok=false with a
	// nil error.
	Get(ctx context.Context, key string) (data []byte, ok bool, err error)

	// Set stores data under key. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases backend resources.
	Close() error
}

// Keyer builds cache keys.
type Keyer interface {
	// HTTPKey keys a cached HTTP response.
	HTTPKey(namespace, key string) string

	// RefKey keys the resolution of a branch or tag to a commit hash.
	// kind is "branch", "tag" or "default".
	RefKey(repo, kind, name string) string

	// SnapshotKey keys a checked-out repository at a resolved revision.
	SnapshotKey(repo, revision string) string
}

// DefaultKeyer is the standard key layout.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the standard key layout.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// HTTPKey returns "http:<namespace>:<key>".
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// RefKey returns "ref:<sha256>".
func (DefaultKeyer) RefKey(repo, kind, name string) string {
	return digestKey("ref", repo, kind, name)
}

// SnapshotKey returns "snapshot:<sha256>".
func (DefaultKeyer) SnapshotKey(repo, revision string) string {
	return digestKey("snapshot", repo, revision)
}
