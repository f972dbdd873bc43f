package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"strings"
)

// digestKey builds "<kind>:<sha256>" over parts. Parts are joined with a NUL
// so ("a/b", "c") and ("a", "b/c") never collide.
func digestKey(kind string, parts ...string) string {
	return kind + ":" + Digest(strings.Join(parts, "\x00"))
}

// Digest returns the hex SHA-256 of key.
func Digest(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

// ShardPath maps key to root/<2 hex>/<62 hex>. Cache entries and snapshot
// checkouts use it to keep directories small.
func ShardPath(root, key string) string {
	h := Digest(key)
	return filepath.Join(root, h[:2], h[2:])
}
