package source

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/singleflight"

	"github.com/matzehuels/deprank/pkg/cache"
	"github.com/matzehuels/deprank/pkg/observability"
)

// Default fetcher settings.
const (
	DefaultRefTTL       = 10 * time.Minute
	DefaultCloneTimeout = 10 * time.Minute
)

// Options configures a Fetcher.
type Options struct {
	// Dir is the snapshot cache directory. Required.
	Dir string

	// Remote performs network access. Defaults to an unauthenticated GitRemote.
	Remote Remote

	// Refs memoizes branch and tag resolution. Defaults to no memoization.
	Refs cache.Cache

	// Keyer lays out cache keys. Defaults to cache.NewDefaultKeyer().
	Keyer cache.Keyer

	// RefTTL bounds how long a branch or tag resolution is reused.
	RefTTL time.Duration

	// CloneTimeout bounds a shared clone. Clones are not cancelled when the
	// caller that started them goes away, since other callers may be waiting.
	CloneTimeout time.Duration

	Logger *log.Logger
}

// Fetcher resolves references to cached snapshots.
type Fetcher struct {
	dir     string
	remote  Remote
	refs    cache.Cache
	keyer   cache.Keyer
	refTTL  time.Duration
	timeout time.Duration
	logger  *log.Logger
	group   singleflight.Group
}

// NewFetcher creates a Fetcher, creating the cache directory if needed.
func NewFetcher(opts Options) (*Fetcher, error) {
	if opts.Dir == "" {
		return nil, stderrors.New("source: cache directory is required")
	}
	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, err
	}
	f := &Fetcher{
		dir:     opts.Dir,
		remote:  opts.Remote,
		refs:    opts.Refs,
		keyer:   opts.Keyer,
		refTTL:  opts.RefTTL,
		timeout: opts.CloneTimeout,
		logger:  opts.Logger,
	}
	if f.remote == nil {
		f.remote = NewGitRemote("")
	}
	if f.refs == nil {
		f.refs = cache.NewDisabled()
	}
	if f.keyer == nil {
		f.keyer = cache.NewDefaultKeyer()
	}
	if f.refTTL <= 0 {
		f.refTTL = DefaultRefTTL
	}
	if f.timeout <= 0 {
		f.timeout = DefaultCloneTimeout
	}
	if f.logger == nil {
		f.logger = log.New(io.Discard)
	}
	return f, nil
}

// Dir returns the snapshot cache directory.
func (f *Fetcher) Dir() string { return f.dir }

// Fetch returns a snapshot of ref, cloning it on a cache miss.
func (f *Fetcher) Fetch(ctx context.Context, ref Ref) (*Snapshot, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	repo := ref.Normalized()

	revision := ref.Rev
	if revision == "" {
		var err error
		if revision, err = f.resolve(ctx, ref); err != nil {
			return nil, err
		}
	}

	key := f.keyer.SnapshotKey(repo, revision)
	dir := f.snapshotDir(key)
	if snap, ok := f.lookup(dir); ok {
		observability.Cache().OnCacheHit(ctx, "snapshot")
		return snap, nil
	}
	observability.Cache().OnCacheMiss(ctx, "snapshot")

	ch := f.group.DoChan(key, func() (any, error) {
		if snap, ok := f.lookup(dir); ok {
			return snap, nil
		}
		return f.clone(ctx, ref, repo, revision, dir)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Snapshot), nil
	}
}

func (f *Fetcher) resolve(ctx context.Context, ref Ref) (string, error) {
	repo := ref.Normalized()
	kind, name := ref.Target()
	key := f.keyer.RefKey(repo, kind, name)

	var rev string
	if ok, _ := cache.GetJSON(ctx, f.refs, key, &rev); ok && rev != "" {
		observability.Cache().OnCacheHit(ctx, "ref")
		return rev, nil
	}
	observability.Cache().OnCacheMiss(ctx, "ref")

	v, err, _ := f.group.Do(key, func() (any, error) {
		return f.remote.Resolve(ctx, ref.CloneURL(), ref)
	})
	if err != nil {
		return "", err
	}
	rev = v.(string)
	if err := cache.SetJSON(ctx, f.refs, key, rev, f.refTTL); err == nil {
		observability.Cache().OnCacheSet(ctx, "ref", len(rev))
	}
	f.logger.Debug("resolved ref", "repo", repo, kind, name, "revision", rev)
	return rev, nil
}

func (f *Fetcher) clone(ctx context.Context, ref Ref, repo, revision, dir string) (*Snapshot, error) {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.timeout)
	defer cancel()

	// A checkout without metadata is a leftover from an interrupted run.
	if err := os.RemoveAll(dir); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(dir), 0755); err != nil {
		return nil, err
	}
	tmp, err := os.MkdirTemp(filepath.Dir(dir), ".clone-*")
	if err != nil {
		return nil, err
	}

	start := time.Now()
	full, err := f.remote.Clone(cctx, ref.CloneURL(), revision, tmp)
	if err != nil {
		os.RemoveAll(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, dir); err != nil {
		os.RemoveAll(tmp)
		// Another process may have finished the same snapshot first.
		if snap, ok := f.lookup(dir); ok {
			return snap, nil
		}
		return nil, err
	}

	snap := &Snapshot{Repo: repo, Revision: full, Dir: dir}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(dir+".json", data, 0644); err != nil {
		return nil, err
	}
	// An abbreviated or symbolic revision also answers for its full hash.
	if full != revision {
		alias := f.snapshotDir(f.keyer.SnapshotKey(repo, full))
		if err := os.MkdirAll(filepath.Dir(alias), 0755); err == nil {
			if err := os.WriteFile(alias+".json", data, 0644); err != nil {
				f.logger.Warn("snapshot alias not written", "repo", repo, "revision", full, "err", err)
			}
		}
	}
	observability.Cache().OnCacheSet(ctx, "snapshot", len(data))
	f.logger.Info("cloned repository", "repo", repo, "revision", full, "took", time.Since(start).Round(time.Millisecond))
	return snap, nil
}

// lookup reports a completed snapshot. The metadata file is written last, so
// its presence marks the checkout as complete.
func (f *Fetcher) lookup(dir string) (*Snapshot, bool) {
	data, err := os.ReadFile(dir + ".json")
	if err != nil {
		return nil, false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, false
	}
	if _, err := os.Stat(snap.Dir); stderrors.Is(err, fs.ErrNotExist) {
		return nil, false
	}
	return &snap, true
}

func (f *Fetcher) snapshotDir(key string) string {
	return cache.ShardPath(filepath.Join(f.dir, "snapshots"), key)
}
