package source

import (
	"net/url"
	"path"
	"strings"

	"github.com/matzehuels/deprank/pkg/errors"
)

// Ref describes the repository state to analyse.
type Ref struct {
	Repo   string `json:"repo" bson:"repo"`
	Branch string `json:"branch,omitempty" bson:"branch,omitempty"`
	Tag    string `json:"tag,omitempty" bson:"tag,omitempty"`
	Rev    string `json:"rev,omitempty" bson:"rev,omitempty"`
}

// Ref target kinds, in precedence order.
const (
	TargetRevision = "revision"
	TargetTag      = "tag"
	TargetBranch   = "branch"
	TargetDefault  = "default"
)

// Validate checks the repository reference and every ref name.
func (r Ref) Validate() error {
	if err := errors.ValidateRepoURL(r.Repo); err != nil {
		return err
	}
	if err := errors.ValidateRefName(r.Branch); err != nil {
		return err
	}
	if err := errors.ValidateRefName(r.Tag); err != nil {
		return err
	}
	return errors.ValidateRevision(r.Rev)
}

// Target returns the kind and name of the ref that decides the revision.
func (r Ref) Target() (kind, name string) {
	switch {
	case r.Rev != "":
		return TargetRevision, r.Rev
	case r.Tag != "":
		return TargetTag, r.Tag
	case r.Branch != "":
		return TargetBranch, r.Branch
	default:
		return TargetDefault, ""
	}
}

// Normalized returns the repository as "host/owner/name", lowercased host,
// without scheme, trailing slash or .git suffix.
func (r Ref) Normalized() string {
	return NormalizeRepo(r.Repo)
}

// CloneURL returns the https URL to clone from.
func (r Ref) CloneURL() string {
	return "https://" + r.Normalized()
}

// OwnerName splits the repository path into owner and name. For nested
// groups the owner includes every segment except the last.
func (r Ref) OwnerName() (owner, name string) {
	n := r.Normalized()
	_, p, _ := strings.Cut(n, "/")
	return path.Dir(p), path.Base(p)
}

// NormalizeRepo canonicalizes a repository reference.
func NormalizeRepo(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Host + u.Path
		}
	}
	s = strings.Trim(s, "/")
	s = strings.TrimSuffix(s, ".git")
	host, rest, ok := strings.Cut(s, "/")
	if !ok {
		return strings.ToLower(s)
	}
	return strings.ToLower(host) + "/" + rest
}

// Snapshot is a checked-out repository at a resolved revision.
type Snapshot struct {
	Repo     string `json:"repo"`
	Revision string `json:"revision"`
	Dir      string `json:"dir"`
}
