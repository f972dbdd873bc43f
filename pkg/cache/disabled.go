package cache

import (
	"context"
	"time"
)

// Disabled stands in when no metadata cache is available, for instance
// when the cache directory cannot be created. Every Get misses.
type Disabled struct{}

// NewDisabled returns a cache that stores nothing.
func NewDisabled() Cache { return Disabled{} }

func (Disabled) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, nil
}

func (Disabled) Set(context.Context, string, []byte, time.Duration) error {
	return nil
}

func (Disabled) Delete(context.Context, string) error {
	return nil
}

func (Disabled) Close() error {
	return nil
}

var _ Cache = Disabled{}
