package orchestrator

import (
	"context"
	"fmt"

	gh "github.com/lzqa/feature-qa/internal/github"
	gl "github.com/lzqa/feature-qa/internal/gitlab"
)

// BranchSource answers whether the canonical landing-zone repository carries a branch.
type BranchSource interface {
	BranchExists(ctx context.Context, branch string) (bool, error)
	String() string
}

// GitLabBranchSource looks the branch up in a GitLab project.
type GitLabBranchSource struct {
	Client gl.Client
	Path   string
}

func (s GitLabBranchSource) BranchExists(ctx context.Context, branch string) (bool, error) {
	project, err := s.Client.GetProject(ctx, s.Path)
	if err != nil {
		return false, fmt.Errorf("get canonical project %s: %w", s.Path, err)
	}
	_, found, err := s.Client.GetBranch(ctx, project.ID, branch)
	if err != nil {
		return false, fmt.Errorf("get branch %s in %s: %w", branch, s.Path, err)
	}
	return found, nil
}

func (s GitLabBranchSource) String() string {
	return s.Path
}

// GitHubBranchSource looks the branch up in a GitHub repository.
type GitHubBranchSource struct {
	Client gh.Client
	Repo   gh.Repository
}

func (s GitHubBranchSource) BranchExists(ctx context.Context, branch string) (bool, error) {
	return s.Client.BranchExists(ctx, s.Repo, branch)
}

func (s GitHubBranchSource) String() string {
	return s.Repo.String()
}
