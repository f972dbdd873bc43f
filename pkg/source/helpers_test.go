package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

type commitSpec struct {
	name, email string
	file        string
	content     string
}

// writeRepo initializes a repository in dir with one commit per spec and
// returns the head hash.
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

// fakeRemote builds a fresh repository on every clone and counts network
// operations.
type fakeRemote struct {
	t        testing.TB
	commits  []commitSpec
	delay    time.Duration
	err      error
	clones   atomic.Int32
	resolves atomic.Int32
}

func (f *fakeRemote) Resolve(ctx context.Context, url string, ref Ref) (string, error) {
	f.resolves.Add(1)
	if f.err != nil {
		return "", f.err
	}
	return "0123456789abcdef0123456789abcdef01234567", nil
}

func (f *fakeRemote) Clone(ctx context.Context, url, revision, dir string) (string, error) {
	f.clones.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return "", f.err
	}
	return writeRepo(f.t, dir, f.commits), nil
}

var sampleCommits = []commitSpec{
	{"Alice", "alice@example.com", "go.mod", "module example.com/widget\n"},
	{"Alice", "alice@example.com", "a.go", "package widget\n"},
	{"Bob", "12345+bob@users.noreply.github.com", "b.go", "package widget\n"},
	{"Alice", "Alice@Example.com", "c.go", "package widget\n"},
}
