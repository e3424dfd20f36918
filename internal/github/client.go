package gh

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Repository identifies a GitHub repository by owner and name.
type Repository struct {
	Owner string
	Name  string
}

// String renders the repository as owner/name.
func (r Repository) String() string {
	return r.Owner + "/" + r.Name
}

// ParseRepository splits an "owner/name" path. Surrounding slashes, whitespace and a
// trailing ".git" are ignored.
func ParseRepository(path string) (Repository, error) {
	trimmed := strings.Trim(strings.TrimSpace(path), "/")
	trimmed = strings.TrimSuffix(trimmed, ".git")

	owner, name, ok := strings.Cut(trimmed, "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return Repository{}, fmt.Errorf("github repository %q must be in owner/name form", path)
	}
	return Repository{Owner: owner, Name: name}, nil
}

// Client exposes the GitHub operations needed to check the canonical repository.
type Client interface {
	// BranchExists reports whether branch exists in the repository. A missing
	// repository is reported as an error, a missing branch is not.
	BranchExists(ctx context.Context, repo Repository, branch string) (bool, error)
}

// Factory builds concrete GitHub clients (e.g., REST-backed).
type Factory interface {
	New(ctx context.Context, token string) (Client, error)
}

// ErrBranchNotFound indicates the requested branch does not exist.
var ErrBranchNotFound = errors.New("github: branch not found")

// retryableError marks an error that may succeed if the operation is retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	if e == nil || e.err == nil {
		return ""
	}
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

// IsRetryable reports whether the supplied error resulted from a retryable GitHub
// API failure (for example, a transient network problem or rate-limited request).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var target *retryableError
	return errors.As(err, &target)
}
