package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gl "github.com/lzqa/feature-qa/internal/gitlab"
)

// PipelineRef selects which branch a pipeline runs against.
type PipelineRef int

const (
	// FeatureRef runs the pipeline on the ticket branch.
	FeatureRef PipelineRef = iota
	// MainRef runs the pipeline on the repository's main branch.
	MainRef
)

func (r PipelineRef) resolve(ticket string, state RepoState) string {
	if r == MainRef {
		return state.MainBranch
	}
	return ticket
}

func (o *Orchestrator) repoLog(state RepoState) *slog.Logger {
	if o.log == nil {
		return nil
	}
	return o.log.With("environment", state.Target.Environment, "project", state.Target.Path())
}

// EnsureFeatureBranch creates the ticket branch from the main branch unless it exists.
func (o *Orchestrator) EnsureFeatureBranch(ctx context.Context, ticket string, state RepoState) (RepoState, error) {
	log := o.repoLog(state)

	_, found, err := o.gl.GetBranch(ctx, state.Project.ID, ticket)
	if err != nil && !errors.Is(err, gl.ErrNotFound) {
		return state, fmt.Errorf("get branch %s: %w", ticket, err)
	}
	if found {
		if log != nil {
			log.Info("feature branch exists", "branch", ticket)
		}
		return state, nil
	}

	if _, err := o.gl.CreateBranch(ctx, state.Project.ID, ticket, state.MainBranch); err != nil {
		return state, fmt.Errorf("create branch %s from %s: %w", ticket, state.MainBranch, err)
	}
	if log != nil {
		log.Info("feature branch created", "branch", ticket, "from", state.MainBranch)
	}
	return state, nil
}

// WriteFeatureConfig commits the rendered config file to the ticket branch. Failures are
// logged and recorded as warnings; they never fail the repository.
func (o *Orchestrator) WriteFeatureConfig(ctx context.Context, ticket string, state RepoState) (RepoState, error) {
	log := o.repoLog(state)
	path := o.cfg.ConfigFilePath

	skip := func(reason string, err error) (RepoState, error) {
		if log != nil {
			log.Warn("config file not written", "path", path, "reason", reason, "error", err)
		}
		return state.warn(fmt.Sprintf("%s: %s", StepWriteFeatureConfig, reason)), nil
	}

	data := templateDataFor(ticket, state)
	content, err := renderTemplate("config file", o.cfg.ConfigFileTemplate, data)
	if err != nil {
		return skip("template error", err)
	}
	message, err := renderTemplate("commit message", o.cfg.CommitMessageTemplate, data)
	if err != nil {
		return skip("template error", err)
	}

	_, found, err := o.gl.GetFile(ctx, state.Project.ID, path, ticket)
	if err != nil && !errors.Is(err, gl.ErrNotFound) {
		return skip(describeError(err), err)
	}

	action := gl.FileActionCreate
	if found {
		action = gl.FileActionUpdate
	}

	err = o.gl.CommitFile(ctx, state.Project.ID, gl.CommitFileOptions{
		Branch:        ticket,
		Path:          path,
		Content:       content,
		CommitMessage: message,
		Action:        action,
	})
	if err != nil {
		return skip(describeError(err), err)
	}

	if log != nil {
		log.Info("config file committed", "path", path, "action", action, "branch", ticket)
	}
	return state, nil
}

// PromoteToFeature makes the ticket branch the repository default.
func (o *Orchestrator) PromoteToFeature(ctx context.Context, ticket string, state RepoState) (RepoState, error) {
	if err := o.gl.SetDefaultBranch(ctx, state.Project.ID, ticket); err != nil {
		return state, fmt.Errorf("set default branch to %s: %w", ticket, err)
	}
	state.Project.DefaultBranch = ticket

	if log := o.repoLog(state); log != nil {
		log.Info("default branch set", "branch", ticket)
	}
	return state, nil
}

// EnsureTrigger reuses the ticket's trigger or creates it.
func (o *Orchestrator) EnsureTrigger(ctx context.Context, ticket string, state RepoState) (RepoState, error) {
	log := o.repoLog(state)

	if state.Trigger != nil {
		if log != nil {
			log.Info("reusing trigger", "trigger_id", state.Trigger.ID)
		}
		return state, nil
	}

	existing, err := o.findTrigger(ctx, state.Project.ID, ticket)
	if err != nil {
		return state, fmt.Errorf("list triggers: %w", err)
	}
	if existing != nil {
		state.Trigger = existing
		if log != nil {
			log.Info("reusing trigger", "trigger_id", existing.ID)
		}
		return state, nil
	}

	created, err := o.gl.CreateTrigger(ctx, state.Project.ID, TriggerDescription(ticket))
	if err != nil {
		return state, fmt.Errorf("create trigger: %w", err)
	}
	state.Trigger = &created

	if log != nil {
		log.Info("trigger created", "trigger_id", created.ID)
	}
	return state, nil
}

// FirePipeline returns an action that starts a pipeline on ref with the configured variables.
func (o *Orchestrator) FirePipeline(ref PipelineRef) Action {
	return func(ctx context.Context, ticket string, state RepoState) (RepoState, error) {
		target := ref.resolve(ticket, state)
		if state.Trigger == nil {
			return state, fmt.Errorf("trigger pipeline on %s: %w", target, ErrNoTrigger)
		}

		pipeline, err := o.gl.TriggerPipeline(ctx, state.Project.ID, state.Trigger.Token, target, o.cfg.PipelineVariables)
		if err != nil {
			return state, fmt.Errorf("trigger pipeline on %s: %w", target, err)
		}
		state.Pipeline = &pipeline

		if log := o.repoLog(state); log != nil {
			log.Info("pipeline triggered", "ref", target, "pipeline_id", pipeline.ID, "pipeline_url", pipeline.WebURL)
		}
		return state, nil
	}
}

// RestoreMainDefault makes the main branch the repository default again.
func (o *Orchestrator) RestoreMainDefault(ctx context.Context, _ string, state RepoState) (RepoState, error) {
	if err := o.gl.SetDefaultBranch(ctx, state.Project.ID, state.MainBranch); err != nil {
		return state, fmt.Errorf("set default branch to %s: %w", state.MainBranch, err)
	}
	state.Project.DefaultBranch = state.MainBranch

	if log := o.repoLog(state); log != nil {
		log.Info("default branch reset", "branch", state.MainBranch)
	}
	return state, nil
}

// DeleteFeatureBranch removes the ticket branch. It refuses while the branch is still the
// live default, and treats an absent branch as done.
func (o *Orchestrator) DeleteFeatureBranch(ctx context.Context, ticket string, state RepoState) (RepoState, error) {
	log := o.repoLog(state)

	if ticket == state.MainBranch {
		return state, fmt.Errorf("delete branch %s: %w", ticket, ErrStillDefault)
	}

	current, err := o.gl.GetDefaultBranch(ctx, state.Project.ID)
	if err != nil {
		return state, fmt.Errorf("get default branch: %w", err)
	}
	if current == ticket {
		return state, fmt.Errorf("delete branch %s: %w", ticket, ErrStillDefault)
	}

	deleted, err := o.gl.DeleteBranch(ctx, state.Project.ID, ticket)
	if err != nil && !errors.Is(err, gl.ErrNotFound) {
		return state, fmt.Errorf("delete branch %s: %w", ticket, err)
	}

	if log != nil {
		if deleted {
			log.Info("feature branch deleted", "branch", ticket)
		} else {
			log.Info("feature branch not found", "branch", ticket)
		}
	}
	return state, nil
}

// DeleteTrigger removes the ticket's trigger and clears it from state. A missing trigger
// is not an error.
func (o *Orchestrator) DeleteTrigger(ctx context.Context, _ string, state RepoState) (RepoState, error) {
	log := o.repoLog(state)

	if state.Trigger == nil {
		if log != nil {
			log.Info("trigger not found")
		}
		return state, nil
	}

	deleted, err := o.gl.DeleteTrigger(ctx, state.Project.ID, state.Trigger.ID)
	if err != nil && !errors.Is(err, gl.ErrNotFound) {
		return state, fmt.Errorf("delete trigger %d: %w", state.Trigger.ID, err)
	}

	if log != nil {
		if deleted {
			log.Info("trigger deleted", "trigger_id", state.Trigger.ID)
		} else {
			log.Info("trigger already gone", "trigger_id", state.Trigger.ID)
		}
	}
	state.Trigger = nil
	return state, nil
}
