// Package lease provides expiring exclusive locks that enforce a single
// writer per workflow.
//
// [Local] serves a single process. [Redis] coordinates several service
// instances sharing one store. Both hand out a random token per lease so a
// holder whose lease expired cannot release or refresh the lease of the
// next holder.
package lease

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/google/uuid"
)

// ErrHeld is returned by Acquire when another holder owns the key.
var ErrHeld = stderrors.New("lease is held")

// ErrLost is returned by Refresh and Release when the lease expired and
// was taken over or removed.
var ErrLost = stderrors.New("lease lost")

// DefaultTTL is the lease duration used when zero is passed.
const DefaultTTL = 30 * time.Second

// Locker hands out leases.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	Key() string
	Refresh(ctx context.Context) error
	Release(ctx context.Context) error
}

func newToken() string { return uuid.NewString() }

// Keep refreshes l every ttl/3 until ctx is done. It calls lost once if a
// refresh fails, and returns when ctx ends or the lease is lost.
func Keep(ctx context.Context, l Lease, ttl time.Duration, lost func(error)) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	t := time.NewTicker(ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := l.Refresh(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				lost(err)
				return
			}
		}
	}
}
