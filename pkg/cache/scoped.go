package cache

// ScopedKeyer wraps a Keyer with a prefix, so that several deployments can
// share one Redis instance without colliding.
//
//	keyer := NewScopedKeyer(NewDefaultKeyer(), "staging:")
type ScopedKeyer struct {
	inner  Keyer
	prefix string
}

// NewScopedKeyer creates a keyer with a prefix.
// The prefix is prepended to all generated keys.
func NewScopedKeyer(inner Keyer, prefix string) Keyer {
	if inner == nil {
		inner = NewDefaultKeyer()
	}
	return &ScopedKeyer{
		inner:  inner,
		prefix: prefix,
	}
}

// HTTPKey generates a prefixed key for HTTP response caching.
func (k *ScopedKeyer) HTTPKey(namespace, key string) string {
	return k.prefix + k.inner.HTTPKey(namespace, key)
}

// RefKey generates a prefixed key for ref resolution.
func (k *ScopedKeyer) RefKey(repo, kind, name string) string {
	return k.prefix + k.inner.RefKey(repo, kind, name)
}

// SnapshotKey generates a prefixed key for repository snapshots.
func (k *ScopedKeyer) SnapshotKey(repo, revision string) string {
	return k.prefix + k.inner.SnapshotKey(repo, revision)
}
