package source

import (
	"context"
	"slices"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"

	"github.com/matzehuels/deprank/pkg/errors"
)

// Authorship aggregates one contributor's commits in a snapshot.
type Authorship struct {
	Identity string `json:"identity"`
	Commits  int    `json:"commits"`
	Lines    int    `json:"lines,omitempty"`
}

// HistoryOptions configures [History].
type HistoryOptions struct {
	// MaxCommits stops the walk after this many commits. 0 means no limit.
	MaxCommits int

	// CountLines also sums added and deleted lines per author. It requires
	// diffing every commit and is noticeably slower.
	CountLines bool
}

// History aggregates the non-merge commits reachable from the snapshot's
// revision by author identity. Bot accounts are skipped. The result is
// sorted by identity.
func History(ctx context.Context, snap *Snapshot, opts HistoryOptions) ([]Authorship, error) {
	repo, err := git.PlainOpen(snap.Dir)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "open snapshot %s", snap.Dir)
	}
	iter, err := repo.Log(&git.LogOptions{From: plumbing.NewHash(snap.Revision)})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "log %s", snap.Revision)
	}
	defer iter.Close()

	byID := make(map[string]*Authorship)
	seen := 0
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if opts.MaxCommits > 0 && seen >= opts.MaxCommits {
			return storer.ErrStop
		}
		seen++
		if c.NumParents() > 1 {
			return nil
		}
		id := Identity(c.Author)
		if id == "" || strings.HasSuffix(id, "[bot]") {
			return nil
		}
		a, ok := byID[id]
		if !ok {
			a = &Authorship{Identity: id}
			byID[id] = a
		}
		a.Commits++
		if opts.CountLines {
			stats, err := c.Stats()
			if err != nil {
				return err
			}
			for _, s := range stats {
				a.Lines += s.Addition + s.Deletion
			}
		}
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "walk history")
	}

	out := make([]Authorship, 0, len(byID))
	for _, a := range byID {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b Authorship) int { return strings.Compare(a.Identity, b.Identity) })
	return out, nil
}

const noreplySuffix = "@users.noreply.github.com"

// Identity derives a contributor identity from a commit signature: the
// GitHub login for noreply addresses, otherwise the lowercased email, and
// the name when no email is recorded.
func Identity(sig object.Signature) string {
	email := strings.ToLower(strings.TrimSpace(sig.Email))
	if local, ok := strings.CutSuffix(email, noreplySuffix); ok {
		if _, login, found := strings.Cut(local, "+"); found {
			return login
		}
		return local
	}
	if email != "" {
		return email
	}
	return strings.TrimSpace(sig.Name)
}
