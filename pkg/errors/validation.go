package errors

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"
)

// ValidateRepoURL validates a repository reference submitted by a client.
// It accepts https URLs and bare host/owner/name references
// ("github.com/acme/widget"). The rules are intentionally conservative:
//   - No empty references
//   - No control characters or whitespace
//   - No path traversal sequences
//   - Only http(s) schemes when a scheme is present
//   - At least host/owner/name path segments
func ValidateRepoURL(raw string) error {
	if raw == "" {
		return New(ErrCodeInvalidInput, "repository cannot be empty")
	}
	if len(raw) > 512 {
		return New(ErrCodeInvalidInput, "repository reference too long (max 512 characters)")
	}
	for _, r := range raw {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidInput, "repository reference contains invalid characters")
		}
	}
	if strings.Contains(raw, "..") || strings.Contains(raw, "\\") {
		return New(ErrCodeInvalidInput, "repository reference contains invalid characters")
	}

	s := raw
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return Wrap(ErrCodeInvalidInput, err, "invalid repository URL")
		}
		if u.Scheme != "https" && u.Scheme != "http" {
			return New(ErrCodeInvalidInput, "repository URL must use http or https scheme")
		}
		s = u.Host + u.Path
	}

	parts := strings.Split(strings.Trim(s, "/"), "/")
	if len(parts) < 3 {
		return New(ErrCodeInvalidInput, "repository must include host, owner and name: %q", raw)
	}
	for _, p := range parts {
		if p == "" {
			return New(ErrCodeInvalidInput, "repository contains empty path segment: %q", raw)
		}
	}
	return nil
}

// gitRefRegex matches branch and tag names accepted by git check-ref-format,
// minus the rarely used characters that only complicate cache keys.
var gitRefRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._/-]*$`)

// ValidateRefName validates a branch or tag name. Empty names are valid
// and mean "not specified".
func ValidateRefName(name string) error {
	if name == "" {
		return nil
	}
	if len(name) > 255 || strings.Contains(name, "..") || strings.HasSuffix(name, ".lock") {
		return New(ErrCodeInvalidInput, "invalid ref name: %q", name)
	}
	if !gitRefRegex.MatchString(name) {
		return New(ErrCodeInvalidInput, "invalid ref name: %q", name)
	}
	return nil
}

var revisionRegex = regexp.MustCompile(`^[0-9a-fA-F]{7,64}$`)

// ValidateRevision validates a commit revision (abbreviated or full hash).
func ValidateRevision(rev string) error {
	if rev == "" {
		return nil
	}
	if !revisionRegex.MatchString(rev) {
		return New(ErrCodeInvalidInput, "invalid revision: %q", rev)
	}
	return nil
}

var walletAddressRegex = regexp.MustCompile(`^0x[0-9a-fA-F]{1,64}$`)

// ValidateWalletAddress validates a hex-encoded ledger address.
func ValidateWalletAddress(addr string) error {
	if addr == "" {
		return New(ErrCodeInvalidInput, "wallet address cannot be empty")
	}
	if !walletAddressRegex.MatchString(addr) {
		return New(ErrCodeInvalidInput, "invalid wallet address: %q", addr)
	}
	return nil
}

var identityRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@+-]*$`)

// ValidateIdentity validates a contributor identity (account handle or email).
func ValidateIdentity(id string) error {
	if id == "" || len(id) > 256 || !identityRegex.MatchString(id) {
		return New(ErrCodeInvalidInput, "invalid contributor identity: %q", id)
	}
	return nil
}
