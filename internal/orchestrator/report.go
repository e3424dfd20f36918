package orchestrator

import (
	"errors"

	gl "github.com/lzqa/feature-qa/internal/gitlab"
)

// ReportEntry is the per-repository outcome handed back to the caller.
type ReportEntry struct {
	Environment   string   `json:"environment"`
	PipelineURL   *string  `json:"pipeline_url"`
	RepositoryURL string   `json:"repo_url"`
	Error         string   `json:"error,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
}

// BuildReport summarises run in repository order. Error strings name the failed step and
// a coarse category; platform error bodies are never included.
func BuildReport(run WorkflowRun) []ReportEntry {
	entries := make([]ReportEntry, 0, len(run.Repos))
	for _, repo := range run.Repos {
		entry := ReportEntry{
			Environment:   repo.Target.Environment,
			RepositoryURL: repo.Project.WebURL,
			Warnings:      repo.Warnings,
		}
		if repo.Pipeline != nil {
			url := repo.Pipeline.WebURL
			entry.PipelineURL = &url
		}
		if repo.Err != nil {
			entry.Error = DescribeFailure(repo.Err)
		}
		entries = append(entries, entry)
	}
	return entries
}

// DescribeFailure renders err for the caller: the failed step or target followed by
// a coarse category. Validation and configuration errors carry no platform response
// and are returned as they are.
func DescribeFailure(err error) string {
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		return string(stepErr.Step) + ": " + describeError(stepErr.Err)
	}
	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Op + " " + remoteErr.Target + ": " + describeError(remoteErr.Err)
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Error()
	}
	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return cfgErr.Error()
	}
	return describeError(err)
}

func describeError(err error) string {
	switch {
	case errors.Is(err, ErrStillDefault):
		return "feature branch is still the default branch"
	case errors.Is(err, ErrNoTrigger):
		return "no pipeline trigger available"
	case errors.Is(err, gl.ErrRejected):
		return "rejected by platform"
	case errors.Is(err, gl.ErrNotFound):
		return "not found"
	case gl.IsRetryable(err):
		return "platform unavailable"
	default:
		return "remote call failed"
	}
}
