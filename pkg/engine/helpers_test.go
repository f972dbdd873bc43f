package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/matzehuels/deprank/pkg/config"
	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/observability"
	"github.com/matzehuels/deprank/pkg/settlement"
	"github.com/matzehuels/deprank/pkg/source"
	"github.com/matzehuels/deprank/pkg/store"
	"github.com/matzehuels/deprank/pkg/workflow"
)

const (
	widgetRepo = "github.com/acme/widget"
	aliceID    = "alice"
	bobID      = "bob"
	aliceAddr  = "0xa11ce"
	bobAddr    = "0xb0b"
	ownerAddr  = "0x0a"
)

type commitSpec struct {
	name, email string
	file        string
	content     string
}

// widgetCommits gives alice three commits and bob one.
var widgetCommits = []commitSpec{
	{"Alice", "1+alice@users.noreply.github.com", "go.mod", "module github.com/acme/widget\n\ngo 1.22\n\nrequire example.com/lib v1.0.0\n"},
	{"Alice", "1+alice@users.noreply.github.com", "a.go", "package widget\n"},
	{"Bob", "2+bob@users.noreply.github.com", "b.go", "package widget\n"},
	{"Alice", "1+alice@users.noreply.github.com", "c.go", "package widget\n"},
}

// bareCommits has no manifest.
var bareCommits = []commitSpec{
	{"Alice", "1+alice@users.noreply.github.com", "README.md", "# bare\n"},
}

func writeRepo(t testing.TB, dir string, commits []commitSpec) string {
	t.Helper()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatal(err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatal(err)
	}
	var head string
	for i, c := range commits {
		if err := os.WriteFile(filepath.Join(dir, c.file), []byte(c.content), 0644); err != nil {
			t.Fatal(err)
		}
		if _, err := wt.Add(c.file); err != nil {
			t.Fatal(err)
		}
		h, err := wt.Commit(fmt.Sprintf("commit %d", i), &git.CommitOptions{
			Author: &object.Signature{Name: c.name, Email: c.email, When: time.Unix(int64(1700000000+i), 0)},
		})
		if err != nil {
			t.Fatal(err)
		}
		head = h.String()
	}
	return head
}

// fakeRemote serves deterministic repositories. Commits are written with
// fixed timestamps, so every clone of a repository has the same head.
type fakeRemote struct {
	t     testing.TB
	repos map[string][]commitSpec // keyed by clone URL
	heads map[string]string

	// failures is the number of Resolve calls that fail with err before
	// resolution succeeds. A negative value fails every call.
	failures atomic.Int32
	err      error

	delay    time.Duration
	clones   atomic.Int32
	resolves atomic.Int32
}

func newFakeRemote(t testing.TB, repos map[string][]commitSpec) *fakeRemote {
	t.Helper()
	f := &fakeRemote{t: t, repos: make(map[string][]commitSpec), heads: make(map[string]string)}
	for repo, commits := range repos {
		url := source.Ref{Repo: repo}.CloneURL()
		f.repos[url] = commits
		f.heads[url] = writeRepo(t, t.TempDir(), commits)
	}
	return f
}

func (f *fakeRemote) Resolve(ctx context.Context, url string, ref source.Ref) (string, error) {
	f.resolves.Add(1)
	if n := f.failures.Load(); n != 0 {
		if n > 0 {
			f.failures.Add(-1)
		}
		return "", f.err
	}
	head, ok := f.heads[url]
	if !ok {
		return "", errors.New(errors.ErrCodeFetchNotFound, "repository %s not found", url)
	}
	return head, nil
}

func (f *fakeRemote) Clone(ctx context.Context, url, revision, dir string) (string, error) {
	f.clones.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	commits, ok := f.repos[url]
	if !ok {
		return "", errors.New(errors.ErrCodeFetchNotFound, "repository %s not found", url)
	}
	return writeRepo(f.t, dir, commits), nil
}

type harness struct {
	engine  *Engine
	store   *store.Memory
	ledger  *settlement.MemoryLedger
	remote  *fakeRemote
	fetcher *source.Fetcher
}

func testPipeline() config.Pipeline {
	p := config.Default().Pipeline
	p.MaxRetries = 2
	p.FetchTimeout = 10 * time.Second
	p.SettleTimeout = 10 * time.Second
	return p
}

func newHarness(t *testing.T, remote *fakeRemote, mods ...func(*Options)) *harness {
	t.Helper()
	fetcher, err := source.NewFetcher(source.Options{Dir: t.TempDir(), Remote: remote})
	if err != nil {
		t.Fatal(err)
	}
	h := &harness{
		store:   store.NewMemory(),
		ledger:  settlement.NewMemoryLedger(),
		remote:  remote,
		fetcher: fetcher,
	}
	h.engine = h.newEngine(t, mods...)
	return h
}

// newEngine creates another engine over the harness store, ledger and
// fetcher, as a second instance or a restarted process would.
func (h *harness) newEngine(t *testing.T, mods ...func(*Options)) *Engine {
	t.Helper()
	opts := Options{
		Pipeline:   testPipeline(),
		Settlement: settlement.Options{PollInterval: time.Millisecond, ConfirmTimeout: 5 * time.Second},
		Store:      h.store,
		Fetcher:    h.fetcher,
		Chain:      h.ledger,
		RetryDelay: time.Millisecond,
	}
	for _, mod := range mods {
		mod(&opts)
	}
	e, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { e.Close(context.Background()) })
	return e
}

func (h *harness) create(t *testing.T, wallet string) *workflow.Workflow {
	t.Helper()
	w, err := h.engine.Create(context.Background(), CreateRequest{Ref: source.Ref{Repo: widgetRepo}, Wallet: wallet})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return w
}

func (h *harness) wait(t *testing.T, id string) *workflow.Workflow {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	w, err := h.engine.Wait(ctx, id)
	if err != nil {
		t.Fatalf("Wait(%s): %v", id, err)
	}
	return w
}

// hooks records workflow outcomes and can hold a stage until the run's
// context is cancelled.
type hooks struct {
	observability.NoopWorkflowHooks

	mu       sync.Mutex
	block    string
	entered  chan string
	finished map[string]string
}

func installHooks(t *testing.T, block workflow.Stage) *hooks {
	t.Helper()
	h := &hooks{block: string(block), entered: make(chan string, 16), finished: make(map[string]string)}
	observability.SetWorkflowHooks(h)
	t.Cleanup(observability.Reset)
	return h
}

func (h *hooks) OnStageStart(ctx context.Context, id, stage string) {
	h.mu.Lock()
	block := h.block
	h.mu.Unlock()
	if stage != block {
		return
	}
	h.entered <- id
	<-ctx.Done()
}

func (h *hooks) OnWorkflowFinished(ctx context.Context, id, stage, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finished[id] = reason
}

func (h *hooks) release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.block = ""
}

func (h *hooks) reason(id string) (string, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.finished[id]
	return r, ok
}

func (h *hooks) awaitStage(t *testing.T) string {
	t.Helper()
	select {
	case id := <-h.entered:
		return id
	case <-time.After(30 * time.Second):
		t.Fatal("stage never started")
		return ""
	}
}
