package gl

import (
	"context"
	"errors"
)

// Project is the resolved handle for a GitLab project.
type Project struct {
	ID            int
	Name          string
	Path          string
	WebURL        string
	DefaultBranch string
}

// Branch identifies a branch and the commit it points at.
type Branch struct {
	Name      string
	CommitSHA string
}

// File is a single repository file read at a ref.
type File struct {
	Path    string
	Ref     string
	Content string
}

// Trigger is a pipeline trigger token attached to a project.
type Trigger struct {
	ID          int
	Description string
	Token       string
}

// Pipeline is the handle returned after a pipeline run was started.
type Pipeline struct {
	ID     int
	Ref    string
	WebURL string
}

// FileAction selects how CommitFile writes a file.
type FileAction string

const (
	FileActionCreate FileAction = "create"
	FileActionUpdate FileAction = "update"
)

// CommitFileOptions describes a single-file commit on a branch.
type CommitFileOptions struct {
	Branch        string
	Path          string
	Content       string
	CommitMessage string
	Action        FileAction
}

// Client exposes the GitLab operations required by the feature-branch orchestrator.
// Lookups report absence through a found/deleted flag instead of an error; errors
// are reserved for failures that should abort the caller.
type Client interface {
	GetProject(ctx context.Context, path string) (Project, error)
	ListProtectedBranches(ctx context.Context, projectID int) ([]string, error)
	GetBranch(ctx context.Context, projectID int, name string) (Branch, bool, error)
	CreateBranch(ctx context.Context, projectID int, name, fromRef string) (Branch, error)
	DeleteBranch(ctx context.Context, projectID int, name string) (bool, error)
	GetFile(ctx context.Context, projectID int, path, ref string) (File, bool, error)
	CommitFile(ctx context.Context, projectID int, opts CommitFileOptions) error
	GetDefaultBranch(ctx context.Context, projectID int) (string, error)
	SetDefaultBranch(ctx context.Context, projectID int, name string) error
	ListTriggers(ctx context.Context, projectID int) ([]Trigger, error)
	CreateTrigger(ctx context.Context, projectID int, description string) (Trigger, error)
	DeleteTrigger(ctx context.Context, projectID int, triggerID int) (bool, error)
	TriggerPipeline(ctx context.Context, projectID int, token, ref string, variables map[string]string) (Pipeline, error)
}

// Factory builds concrete GitLab clients for the orchestrator.
type Factory interface {
	New(ctx context.Context, token string) (Client, error)
}

var (
	// ErrNotFound indicates the requested project, branch, file or trigger does not exist.
	ErrNotFound = errors.New("gitlab: not found")

	// ErrRejected indicates GitLab refused a request (permission denied, validation
	// failure, conflict). Such requests are never retried.
	ErrRejected = errors.New("gitlab: request rejected")
)

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

// IsRetryable reports whether the supplied error resulted from a transient GitLab
// API failure (rate limiting, 5xx responses, network timeouts).
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var target *retryableError
	return errors.As(err, &target)
}

// rejectedError carries the HTTP status of a refused request while matching ErrRejected.
type rejectedError struct {
	status int
	err    error
}

func (e *rejectedError) Error() string {
	return e.err.Error()
}

func (e *rejectedError) Unwrap() []error {
	return []error{ErrRejected, e.err}
}

// StatusCode returns the HTTP status carried by a rejected error, or 0.
func StatusCode(err error) int {
	var rejected *rejectedError
	if errors.As(err, &rejected) {
		return rejected.status
	}
	return 0
}
