package source

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/matzehuels/deprank/pkg/errors"
)

// Remote is the network capability used by [Fetcher].
type Remote interface {
	// Resolve maps the tag, branch or default branch of ref to a commit hash.
	Resolve(ctx context.Context, url string, ref Ref) (string, error)

	// Clone checks out revision from url into dir and returns the full
	// commit hash. dir exists and is empty.
	Clone(ctx context.Context, url, revision, dir string) (string, error)
}

// GitRemote implements Remote with go-git over https.
type GitRemote struct {
	token string
}

// NewGitRemote returns a GitRemote. A non-empty token is sent as basic auth,
// which GitHub and GitLab accept for private repositories.
func NewGitRemote(token string) *GitRemote {
	return &GitRemote{token: token}
}

func (g *GitRemote) auth() transport.AuthMethod {
	if g.token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: g.token}
}

// Resolve lists the remote refs and picks the one ref names.
func (g *GitRemote) Resolve(ctx context.Context, url string, ref Ref) (string, error) {
	rem := git.NewRemote(memory.NewStorage(), &config.RemoteConfig{
		Name: git.DefaultRemoteName,
		URLs: []string{url},
	})
	refs, err := rem.ListContext(ctx, &git.ListOptions{
		Auth:          g.auth(),
		PeelingOption: git.AppendPeeled,
	})
	if err != nil {
		return "", classify(err, url)
	}
	return pick(refs, ref, url)
}

// pick selects the commit ref names among advertised refs. Annotated tags
// resolve through their peeled entry and a symbolic HEAD through its target.
func pick(refs []*plumbing.Reference, ref Ref, url string) (string, error) {
	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, r := range refs {
		byName[r.Name()] = r
	}

	kind, name := ref.Target()
	var target plumbing.ReferenceName
	switch kind {
	case TargetTag:
		target = plumbing.NewTagReferenceName(name)
		if peeled, ok := byName[plumbing.ReferenceName(string(target)+"^{}")]; ok {
			return peeled.Hash().String(), nil
		}
	case TargetBranch:
		target = plumbing.NewBranchReferenceName(name)
	default:
		target = plumbing.HEAD
	}

	r, ok := byName[target]
	if !ok {
		return "", errors.New(errors.ErrCodeFetchNotFound, "%s %q not found in %s", kind, name, url)
	}
	if r.Type() == plumbing.SymbolicReference {
		if r, ok = byName[r.Target()]; !ok {
			return "", errors.New(errors.ErrCodeFetchNotFound, "default branch not found in %s", url)
		}
	}
	return r.Hash().String(), nil
}

// Clone performs a full clone into dir and checks out revision. The full
// history is kept because authorship is derived from it.
func (g *GitRemote) Clone(ctx context.Context, url, revision, dir string) (string, error) {
	repo, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:        url,
		Auth:       g.auth(),
		NoCheckout: true,
	})
	if err != nil {
		return "", classify(err, url)
	}
	return Checkout(repo, revision)
}

// Checkout resolves revision (full or abbreviated hash, branch or tag) in
// repo and checks it out, returning the full hash.
func Checkout(repo *git.Repository, revision string) (string, error) {
	h, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeFetchNotFound, err, "revision %s", revision)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "worktree")
	}
	if err := wt.Checkout(&git.CheckoutOptions{Hash: *h, Force: true}); err != nil {
		return "", errors.Wrap(errors.ErrCodeFetchNetwork, err, "checkout %s", revision)
	}
	return h.String(), nil
}

// classify maps go-git transport errors onto fetch error codes.
func classify(err error, url string) error {
	switch {
	case stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		return err
	case stderrors.Is(err, transport.ErrRepositoryNotFound),
		stderrors.Is(err, transport.ErrEmptyRemoteRepository),
		stderrors.Is(err, plumbing.ErrReferenceNotFound):
		return errors.Wrap(errors.ErrCodeFetchNotFound, err, "repository %s", url)
	case stderrors.Is(err, transport.ErrAuthenticationRequired),
		stderrors.Is(err, transport.ErrAuthorizationFailed),
		strings.Contains(err.Error(), "authentication required"):
		return errors.Wrap(errors.ErrCodeFetchAuth, err, "repository %s", url)
	default:
		return errors.Wrap(errors.ErrCodeFetchNetwork, err, "repository %s", url)
	}
}
