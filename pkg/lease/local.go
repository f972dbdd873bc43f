package lease

import (
	"context"
	"sync"
	"time"
)

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	held  map[string]localEntry
	clock func() time.Time
}

type localEntry struct {
	token   string
	expires time.Time
	ttl     time.Duration
}

// NewLocal creates an in-process Locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]localEntry), clock: time.Now}
}

func (l *Local) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.clock()
	if e, ok := l.held[key]; ok && now.Before(e.expires) {
		return nil, ErrHeld
	}
	tok := newToken()
	l.held[key] = localEntry{token: tok, expires: now.Add(ttl), ttl: ttl}
	return &localLease{owner: l, key: key, token: tok}, nil
}

type localLease struct {
	owner *Local
	key   string
	token string
}

func (x *localLease) Key() string { return x.key }

func (x *localLease) Refresh(ctx context.Context) error {
	l := x.owner
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.held[x.key]
	now := l.clock()
	if !ok || e.token != x.token || !now.Before(e.expires) {
		return ErrLost
	}
	e.expires = now.Add(e.ttl)
	l.held[x.key] = e
	return nil
}

func (x *localLease) Release(ctx context.Context) error {
	l := x.owner
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.held[x.key]
	if !ok || e.token != x.token {
		return ErrLost
	}
	delete(l.held, x.key)
	return nil
}
