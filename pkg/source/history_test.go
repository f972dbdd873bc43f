package source

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5/plumbing/object"
)

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	head := writeRepo(t, dir, append(sampleCommits,
		commitSpec{"dependabot[bot]", "49699333+dependabot[bot]@users.noreply.github.com", "d.go", "package widget\n"},
	))

	got, err := History(context.Background(), &Snapshot{Dir: dir, Revision: head}, HistoryOptions{CountLines: true})
	if err != nil {
		t.Fatalf("History() error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("History() = %+v, want 2 authors", got)
	}
	if got[0].Identity != "alice@example.com" || got[0].Commits != 3 {
		t.Errorf("got[0] = %+v, want alice@example.com with 3 commits", got[0])
	}
	if got[1].Identity != "bob" || got[1].Commits != 1 {
		t.Errorf("got[1] = %+v, want bob with 1 commit", got[1])
	}
	if got[0].Lines != 3 {
		t.Errorf("alice lines = %d, want 3", got[0].Lines)
	}
}

func TestHistoryMaxCommits(t *testing.T) {
	dir := t.TempDir()
	head := writeRepo(t, dir, sampleCommits)

	got, err := History(context.Background(), &Snapshot{Dir: dir, Revision: head}, HistoryOptions{MaxCommits: 1})
	if err != nil {
		t.Fatal(err)
	}
	total := 0
	for _, a := range got {
		total += a.Commits
	}
	if total != 1 {
		t.Errorf("commits walked = %d, want 1", total)
	}
}

func TestHistoryCancelled(t *testing.T) {
	dir := t.TempDir()
	head := writeRepo(t, dir, sampleCommits)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := History(ctx, &Snapshot{Dir: dir, Revision: head}, HistoryOptions{}); err != context.Canceled {
		t.Errorf("History() error = %v, want %v", err, context.Canceled)
	}
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		sig  object.Signature
		want string
	}{
		{object.Signature{Name: "Bob", Email: "12345+bob@users.noreply.github.com"}, "bob"},
		{object.Signature{Name: "Old", Email: "old@users.noreply.github.com"}, "old"},
		{object.Signature{Name: "Alice", Email: " Alice@Example.com "}, "alice@example.com"},
		{object.Signature{Name: "anon"}, "anon"},
	}
	for _, tt := range tests {
		if got := Identity(tt.sig); got != tt.want {
			t.Errorf("Identity(%+v) = %q, want %q", tt.sig, got, tt.want)
		}
	}
}
