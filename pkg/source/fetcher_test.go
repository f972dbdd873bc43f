package source

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/matzehuels/deprank/pkg/cache"
	"github.com/matzehuels/deprank/pkg/errors"
)

func newTestFetcher(t *testing.T, remote Remote, refs cache.Cache) *Fetcher {
	t.Helper()
	f, err := NewFetcher(Options{Dir: t.TempDir(), Remote: remote, Refs: refs})
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func TestFetchCachesSnapshot(t *testing.T) {
	remote := &fakeRemote{t: t, commits: sampleCommits}
	f := newTestFetcher(t, remote, nil)
	ref := Ref{Repo: "github.com/acme/widget", Rev: "abc1234"}

	snap, err := f.Fetch(context.Background(), ref)
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}
	if snap.Repo != "github.com/acme/widget" {
		t.Errorf("Repo = %q", snap.Repo)
	}
	if len(snap.Revision) != 40 {
		t.Errorf("Revision = %q, want full hash", snap.Revision)
	}
	if _, err := os.Stat(filepath.Join(snap.Dir, "go.mod")); err != nil {
		t.Errorf("checkout missing go.mod: %v", err)
	}

	again, err := f.Fetch(context.Background(), ref)
	if err != nil {
		t.Fatal(err)
	}
	if again.Dir != snap.Dir {
		t.Errorf("second Fetch() dir = %q, want %q", again.Dir, snap.Dir)
	}
	if n := remote.clones.Load(); n != 1 {
		t.Errorf("clones = %d, want 1", n)
	}
	if n := remote.resolves.Load(); n != 0 {
		t.Errorf("resolves = %d, want 0 for an explicit revision", n)
	}
}

func TestFetchAbbreviatedRevisionServesFullHash(t *testing.T) {
	remote := &fakeRemote{t: t, commits: sampleCommits}
	f := newTestFetcher(t, remote, nil)
	ctx := context.Background()

	snap, err := f.Fetch(ctx, Ref{Repo: "github.com/acme/widget", Rev: "abc1234"})
	if err != nil {
		t.Fatalf("Fetch() error: %v", err)
	}

	tests := []Ref{
		{Repo: "github.com/acme/widget", Rev: snap.Revision},
		{Repo: "https://github.com/acme/widget.git", Rev: snap.Revision},
	}
	for _, ref := range tests {
		again, err := f.Fetch(ctx, ref)
		if err != nil {
			t.Fatalf("Fetch(%+v) error: %v", ref, err)
		}
		if again.Dir != snap.Dir || again.Revision != snap.Revision {
			t.Errorf("Fetch(%+v) = %+v, want %+v", ref, again, snap)
		}
	}
	if n := remote.clones.Load(); n != 1 {
		t.Errorf("clones = %d, want 1", n)
	}
}

func TestFetchResolvedBranchServesFullHash(t *testing.T) {
	remote := &fakeRemote{t: t, commits: sampleCommits}
	f := newTestFetcher(t, remote, nil)
	ctx := context.Background()

	snap, err := f.Fetch(ctx, Ref{Repo: "github.com/acme/widget", Branch: "main"})
	if err != nil {
		t.Fatal(err)
	}
	again, err := f.Fetch(ctx, Ref{Repo: "github.com/acme/widget", Rev: snap.Revision})
	if err != nil {
		t.Fatal(err)
	}
	if again.Dir != snap.Dir {
		t.Errorf("pinned Fetch() dir = %q, want %q", again.Dir, snap.Dir)
	}
	if n := remote.clones.Load(); n != 1 {
		t.Errorf("clones = %d, want 1", n)
	}
}

func TestFetchCollapsesConcurrentRequests(t *testing.T) {
	remote := &fakeRemote{t: t, commits: sampleCommits, delay: 50 * time.Millisecond}
	f := newTestFetcher(t, remote, nil)
	ref := Ref{Repo: "github.com/acme/widget", Rev: "abc1234"}

	const n = 16
	var wg sync.WaitGroup
	start := make(chan struct{})
	dirs := make([]string, n)
	errs := make([]error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			snap, err := f.Fetch(context.Background(), ref)
			errs[i] = err
			if snap != nil {
				dirs[i] = snap.Dir
			}
		}()
	}
	close(start)
	wg.Wait()

	for i := range n {
		if errs[i] != nil {
			t.Fatalf("Fetch() #%d error: %v", i, errs[i])
		}
		if dirs[i] != dirs[0] {
			t.Errorf("Fetch() #%d dir = %q, want %q", i, dirs[i], dirs[0])
		}
	}
	if got := remote.clones.Load(); got != 1 {
		t.Errorf("clones = %d, want 1", got)
	}
}

func TestFetchMemoizesRefResolution(t *testing.T) {
	remote := &fakeRemote{t: t, commits: sampleCommits}
	refs, _ := cache.NewFileCache(t.TempDir())
	f := newTestFetcher(t, remote, refs)
	ref := Ref{Repo: "github.com/acme/widget", Branch: "main"}

	for range 3 {
		if _, err := f.Fetch(context.Background(), ref); err != nil {
			t.Fatal(err)
		}
	}
	if n := remote.resolves.Load(); n != 1 {
		t.Errorf("resolves = %d, want 1", n)
	}
	if n := remote.clones.Load(); n != 1 {
		t.Errorf("clones = %d, want 1", n)
	}
}

func TestFetchPropagatesRemoteErrors(t *testing.T) {
	remote := &fakeRemote{t: t, err: errors.New(errors.ErrCodeFetchNotFound, "gone")}
	f := newTestFetcher(t, remote, nil)

	_, err := f.Fetch(context.Background(), Ref{Repo: "github.com/acme/missing", Rev: "abc1234"})
	if !errors.Is(err, errors.ErrCodeFetchNotFound) {
		t.Errorf("Fetch() error = %v, want %s", err, errors.ErrCodeFetchNotFound)
	}

	entries, _ := os.ReadDir(filepath.Join(f.Dir(), "snapshots"))
	for _, shard := range entries {
		inner, _ := os.ReadDir(filepath.Join(f.Dir(), "snapshots", shard.Name()))
		if len(inner) != 0 {
			t.Errorf("failed clone left %d entries behind", len(inner))
		}
	}
}

func TestFetchRejectsInvalidRef(t *testing.T) {
	f := newTestFetcher(t, &fakeRemote{t: t}, nil)
	_, err := f.Fetch(context.Background(), Ref{Repo: "not-a-repo"})
	if !errors.Is(err, errors.ErrCodeInvalidInput) {
		t.Errorf("Fetch() error = %v, want %s", err, errors.ErrCodeInvalidInput)
	}
}

func TestFetchHonoursCallerContext(t *testing.T) {
	remote := &fakeRemote{t: t, commits: sampleCommits, delay: 200 * time.Millisecond}
	f := newTestFetcher(t, remote, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	ref := Ref{Repo: "github.com/acme/widget", Rev: "abc1234"}
	_, err := f.Fetch(ctx, ref)
	if err != context.DeadlineExceeded {
		t.Errorf("Fetch() error = %v, want %v", err, context.DeadlineExceeded)
	}

	// The shared clone keeps running for other callers.
	if _, err := f.Fetch(context.Background(), ref); err != nil {
		t.Fatalf("Fetch() after abandoned call error: %v", err)
	}
	if n := remote.clones.Load(); n != 1 {
		t.Errorf("clones = %d, want 1", n)
	}
}
