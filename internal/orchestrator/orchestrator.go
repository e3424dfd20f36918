package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	gl "github.com/lzqa/feature-qa/internal/gitlab"
	"github.com/lzqa/feature-qa/internal/targets"
)

// StepRecorder receives the outcome of every lifecycle step.
type StepRecorder interface {
	ObserveStep(step, outcome string, elapsed time.Duration)
}

// Orchestrator drives the feature-branch lifecycle across a set of GitLab repositories.
type Orchestrator struct {
	cfg       Config
	gl        gl.Client
	canonical BranchSource
	log       *slog.Logger
	metrics   StepRecorder
	runID     string
	now       func() time.Time
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

// WithStepRecorder reports step outcomes to r.
func WithStepRecorder(r StepRecorder) Option {
	return func(o *Orchestrator) {
		o.metrics = r
	}
}

// WithRunID fixes the ID given to runs resolved by this Orchestrator.
func WithRunID(id string) Option {
	return func(o *Orchestrator) {
		o.runID = id
	}
}

// New returns a configured Orchestrator instance.
func New(cfg Config, glClient gl.Client, canonical BranchSource, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		cfg:       cfg.withDefaults(),
		gl:        glClient,
		canonical: canonical,
		log:       logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Step is one named lifecycle action.
type Step struct {
	Name StepName
	Run  Action
}

// Action advances one repository's state. Implementations must be safe to repeat
// against unchanged remote state.
type Action func(ctx context.Context, ticket string, state RepoState) (RepoState, error)

// DeploySteps returns the ordered steps that put the ticket branch under test.
func (o *Orchestrator) DeploySteps() []Step {
	return []Step{
		{Name: StepEnsureFeatureBranch, Run: o.EnsureFeatureBranch},
		{Name: StepWriteFeatureConfig, Run: o.WriteFeatureConfig},
		{Name: StepPromoteToFeature, Run: o.PromoteToFeature},
		{Name: StepEnsureTrigger, Run: o.EnsureTrigger},
		{Name: StepFireFeaturePipeline, Run: o.FirePipeline(FeatureRef)},
	}
}

// ResetSteps returns the ordered steps that put the repositories back on their main branch.
func (o *Orchestrator) ResetSteps() []Step {
	return []Step{
		{Name: StepRestoreMainDefault, Run: o.RestoreMainDefault},
		{Name: StepDeleteFeatureBranch, Run: o.DeleteFeatureBranch},
		{Name: StepEnsureTrigger, Run: o.EnsureTrigger},
		{Name: StepFireMainPipeline, Run: o.FirePipeline(MainRef)},
		{Name: StepDeleteTrigger, Run: o.DeleteTrigger},
	}
}

// Deploy resolves the targets, checks preconditions and runs the deploy steps. The
// returned error is non-nil only when the workflow stopped before any mutation;
// per-repository failures are recorded on the returned run.
func (o *Orchestrator) Deploy(ctx context.Context, ticket string, repos []targets.RepoTarget) (WorkflowRun, error) {
	return o.runWorkflow(ctx, "deploy", ticket, repos, o.DeploySteps())
}

// Reset resolves the targets, checks preconditions and runs the reset steps.
func (o *Orchestrator) Reset(ctx context.Context, ticket string, repos []targets.RepoTarget) (WorkflowRun, error) {
	return o.runWorkflow(ctx, "reset", ticket, repos, o.ResetSteps())
}

// Plan resolves the targets and checks preconditions without changing anything.
func (o *Orchestrator) Plan(ctx context.Context, ticket string, repos []targets.RepoTarget) (WorkflowRun, error) {
	run, err := o.Resolve(ctx, ticket, repos)
	if err != nil {
		return run, err
	}
	if err := o.Check(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

func (o *Orchestrator) runWorkflow(ctx context.Context, name, ticket string, repos []targets.RepoTarget, steps []Step) (WorkflowRun, error) {
	run, err := o.Plan(ctx, ticket, repos)
	if err != nil {
		if o.log != nil {
			o.log.Warn("workflow stopped before any change", "workflow", name, "ticket", ticket, "error", err)
		}
		return run, err
	}

	if o.log != nil {
		o.log.Info("starting workflow", "workflow", name, "ticket", ticket, "run_id", run.ID, "repositories", len(run.Repos))
	}

	run = o.Apply(ctx, run, steps...)

	if o.log != nil {
		o.log.Info("workflow finished", "workflow", name, "ticket", ticket, "run_id", run.ID, "failed", run.Failed())
	}
	return run, nil
}

// Apply runs steps for every repository of run. Repositories proceed in parallel up to
// the configured concurrency; steps of one repository run in order and stop at the first
// failure, which is recorded on that repository only.
func (o *Orchestrator) Apply(ctx context.Context, run WorkflowRun, steps ...Step) WorkflowRun {
	repos := make([]RepoState, len(run.Repos))
	copy(repos, run.Repos)

	var g errgroup.Group
	g.SetLimit(o.cfg.Concurrency)

	for i := range repos {
		if repos[i].Failed() {
			continue
		}
		g.Go(func() error {
			repos[i] = o.applySteps(ctx, run.Ticket, repos[i], steps)
			return nil
		})
	}
	_ = g.Wait()

	run.Repos = repos
	return run
}

func (o *Orchestrator) applySteps(ctx context.Context, ticket string, state RepoState, steps []Step) RepoState {
	for _, step := range steps {
		started := o.now()
		next, err := step.Run(ctx, ticket, state)
		elapsed := o.now().Sub(started)

		if err != nil {
			o.observe(step.Name, "failure", elapsed)
			if o.log != nil {
				o.log.Error("step failed", "step", step.Name, "environment", state.Target.Environment, "project", state.Target.Path(), "error", err)
			}
			state.Err = &StepError{Step: step.Name, Err: err}
			return state
		}

		outcome := "success"
		if len(next.Warnings) > len(state.Warnings) {
			outcome = "skipped"
		}
		o.observe(step.Name, outcome, elapsed)
		state = next.completed(step.Name)
	}
	return state
}

func (o *Orchestrator) observe(step StepName, outcome string, elapsed time.Duration) {
	if o.metrics != nil {
		o.metrics.ObserveStep(string(step), outcome, elapsed)
	}
}

func (o *Orchestrator) requireClient() error {
	if o.gl == nil {
		return fmt.Errorf("gitlab client is required")
	}
	return nil
}
