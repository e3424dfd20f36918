package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	gl "github.com/lzqa/feature-qa/internal/gitlab"
	"github.com/lzqa/feature-qa/internal/targets"
)

var mainBranchCandidates = []string{"main", "master"}

// Resolve builds a WorkflowRun for ticket by looking up every target repository, its
// protected main branch and any trigger already created for the ticket. It only reads
// remote state; any failure aborts the whole run.
func (o *Orchestrator) Resolve(ctx context.Context, ticket string, repos []targets.RepoTarget) (WorkflowRun, error) {
	run := WorkflowRun{ID: o.runID, Ticket: ticket}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if err := o.requireClient(); err != nil {
		return run, err
	}
	if len(repos) == 0 {
		return run, &ConfigurationError{Reason: "no target repositories"}
	}

	seen := make(map[string]struct{}, len(repos))
	for _, repo := range repos {
		if _, ok := seen[repo.Environment]; ok {
			return run, &ConfigurationError{Target: repo.Environment, Reason: "environment listed more than once"}
		}
		seen[repo.Environment] = struct{}{}
	}

	states := make([]RepoState, len(repos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for i, repo := range repos {
		g.Go(func() error {
			state, err := o.resolveOne(gctx, ticket, repo)
			if err != nil {
				return err
			}
			states[i] = state
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return run, err
	}

	run.Repos = states
	return run, nil
}

func (o *Orchestrator) resolveOne(ctx context.Context, ticket string, target targets.RepoTarget) (RepoState, error) {
	path := target.Path()

	project, err := o.gl.GetProject(ctx, path)
	if err != nil {
		return RepoState{}, &RemoteError{Op: "resolve", Target: path, Err: fmt.Errorf("get project: %w", err)}
	}

	protected, err := o.gl.ListProtectedBranches(ctx, project.ID)
	if err != nil {
		return RepoState{}, &RemoteError{Op: "resolve", Target: path, Err: fmt.Errorf("list protected branches: %w", err)}
	}

	mainBranch, ok := pickMainBranch(protected)
	if !ok {
		return RepoState{}, &ConfigurationError{Target: path, Reason: "no protected main or master branch"}
	}

	trigger, err := o.findTrigger(ctx, project.ID, ticket)
	if err != nil {
		return RepoState{}, &RemoteError{Op: "resolve", Target: path, Err: fmt.Errorf("look up trigger: %w", err)}
	}

	if o.log != nil {
		o.log.Info("resolved repository", "environment", target.Environment, "project", path, "main_branch", mainBranch, "trigger_found", trigger != nil)
	}

	return RepoState{
		Target:     target,
		Project:    project,
		MainBranch: mainBranch,
		Trigger:    trigger,
	}, nil
}

func pickMainBranch(protected []string) (string, bool) {
	for _, candidate := range mainBranchCandidates {
		if slices.Contains(protected, candidate) {
			return candidate, true
		}
	}
	return "", false
}

func (o *Orchestrator) findTrigger(ctx context.Context, projectID int, ticket string) (*gl.Trigger, error) {
	triggers, err := o.gl.ListTriggers(ctx, projectID)
	if err != nil {
		if errors.Is(err, gl.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	description := TriggerDescription(ticket)
	for _, trigger := range triggers {
		if trigger.Description == description {
			found := trigger
			return &found, nil
		}
	}
	return nil, nil
}
