package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	gh "github.com/lzqa/feature-qa/internal/github"
	gl "github.com/lzqa/feature-qa/internal/gitlab"
	"github.com/lzqa/feature-qa/internal/lock"
	"github.com/lzqa/feature-qa/internal/metrics"
	"github.com/lzqa/feature-qa/internal/orchestrator"
	"github.com/lzqa/feature-qa/internal/request"
	"github.com/lzqa/feature-qa/internal/targets"
)

// Runner glues together the orchestrator and supporting services to execute one workflow request.
type Runner struct {
	cfg       Config
	log       *slog.Logger
	glFactory gl.Factory
	ghFactory gh.Factory
	locker    lock.Locker
	metrics   *metrics.Recorder
	stdout    io.Writer
	closers   []func() error
}

// NewRunner constructs a Runner with the supplied configuration.
func NewRunner(cfg Config) (*Runner, error) {
	logger, err := NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}

	r := &Runner{
		cfg: cfg,
		log: logger,
		glFactory: gl.NewRESTFactory(gl.RESTOptions{
			BaseURL:            cfg.GitLab.BaseURL,
			AuthMode:           cfg.GitLab.AuthMode,
			InsecureSkipVerify: cfg.GitLab.InsecureSkipVerify,
			Timeout:            cfg.GitLab.Timeout,
			Retries:            cfg.GitLab.Retries,
			RequestsPerSecond:  cfg.GitLab.RequestsPerSecond,
		}),
		ghFactory: gh.NewRESTFactory(gh.RESTOptions{
			BaseURL:   cfg.GitHub.BaseURL,
			UploadURL: cfg.GitHub.UploadURL,
			Retries:   cfg.GitHub.Retries,
		}),
		metrics: metrics.NewRecorder(),
		stdout:  os.Stdout,
	}

	locker, err := r.buildLocker()
	if err != nil {
		return nil, fmt.Errorf("configure lock: %w", err)
	}
	r.locker = locker

	return r, nil
}

// NewRunnerWithDeps constructs a Runner with injected dependencies for testing.
func NewRunnerWithDeps(cfg Config, log *slog.Logger, glFactory gl.Factory, ghFactory gh.Factory, locker lock.Locker, stdout io.Writer) *Runner {
	if locker == nil {
		locker = lock.Noop()
	}
	return &Runner{
		cfg:       cfg,
		log:       log,
		glFactory: glFactory,
		ghFactory: ghFactory,
		locker:    locker,
		metrics:   metrics.NewRecorder(),
		stdout:    stdout,
	}
}

// Metrics exposes the recorder fed by this Runner.
func (r *Runner) Metrics() *metrics.Recorder {
	return r.metrics
}

// Close releases connections held by the configured lock backend.
func (r *Runner) Close() error {
	var errs []error
	for _, closeFn := range r.closers {
		if err := closeFn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Run executes the workflow named by req. It returns an error when preconditions
// fail, when the workflow could not start, or when any repository failed.
func (r *Runner) Run(ctx context.Context, req request.Request) error {
	runID := uuid.NewString()
	log := runLogger(r.log, runID, req)
	if log != nil {
		log.Info("starting feature-qa run", "environments", req.Environments, "project", req.Project)
	}

	out := outcome{Action: req.Action, Ticket: req.Ticket, RunID: runID}
	err := r.run(ctx, log, runID, req, &out)

	result := metrics.OutcomeSuccess
	if err != nil {
		result = metrics.OutcomeFailure
		out.Err = err
		if out.Failure == "" && len(out.Violations) == 0 && out.Report == nil {
			out.Failure = describeRunError(err)
		}
	}
	r.metrics.ObserveWorkflow(string(req.Action), result)
	if pushErr := r.metrics.Push(ctx, r.cfg.Metrics.PushgatewayURL, r.cfg.Metrics.Job, runID); pushErr != nil && log != nil {
		log.Warn("failed to push metrics", "error", pushErr)
	}

	if writeErr := r.writeReport(out); writeErr != nil && log != nil {
		log.Warn("failed to write report", "error", writeErr)
	}
	if writeErr := r.writeStepSummary(out); writeErr != nil && log != nil {
		log.Warn("failed to write step summary", "error", writeErr)
	}
	if writeErr := r.writeOutputs(out); writeErr != nil && log != nil {
		log.Warn("failed to write outputs", "error", writeErr)
	}

	return err
}

func (r *Runner) run(ctx context.Context, log *slog.Logger, runID string, req request.Request, out *outcome) error {
	// Errors raised before the orchestrator runs come from local configuration and are
	// safe to hand back as they are.
	local := func(err error) error {
		out.Failure = err.Error()
		return err
	}

	repos, err := r.cfg.TargetTable().Expand(req.Environments, req.Project)
	if err != nil {
		return local(fmt.Errorf("expand targets: %w", err))
	}
	if req.Ticket != "" {
		if err := targets.ValidateBranchName(req.Ticket); err != nil {
			out.Violations = []string{fmt.Sprintf("invalid feature branch [%s]: %v", req.Ticket, err)}
			return &orchestrator.ValidationError{Violations: out.Violations}
		}
	}

	glClient, err := r.glFactory.New(ctx, r.cfg.GitLab.Token)
	if err != nil {
		return local(fmt.Errorf("initialize gitlab client: %w", err))
	}

	canonical, err := r.canonicalSource(ctx, glClient)
	if err != nil {
		return local(err)
	}

	orch := orchestrator.New(r.cfg.OrchestratorConfig(), glClient, canonical, log,
		orchestrator.WithStepRecorder(r.metrics),
		orchestrator.WithRunID(runID),
	)

	if req.Action != request.ActionValidate {
		leases, err := r.acquireLocks(ctx, repos)
		if err != nil {
			var validationErr *orchestrator.ValidationError
			if errors.As(err, &validationErr) {
				out.Violations = validationErr.Violations
				return err
			}
			if log != nil {
				log.Error("failed to acquire locks", "error", err)
			}
			out.Failure = "acquire locks: lock backend unavailable"
			return &runError{msg: out.Failure, err: err}
		}
		defer func() {
			if releaseErr := leases.Release(context.WithoutCancel(ctx)); releaseErr != nil && log != nil {
				log.Warn("failed to release locks", "error", releaseErr)
			}
		}()
	}

	var run orchestrator.WorkflowRun
	switch req.Action {
	case request.ActionDeploy:
		run, err = orch.Deploy(ctx, req.Ticket, repos)
	case request.ActionReset:
		run, err = orch.Reset(ctx, req.Ticket, repos)
	case request.ActionValidate:
		run, err = orch.Plan(ctx, req.Ticket, repos)
	default:
		return local(fmt.Errorf("unsupported action %q", req.Action))
	}

	if err != nil {
		var validationErr *orchestrator.ValidationError
		if errors.As(err, &validationErr) {
			out.Violations = validationErr.Violations
			return err
		}
		if log != nil {
			log.Error("workflow aborted before any change", "error", err)
		}
		out.Failure = orchestrator.DescribeFailure(err)
		return &runError{msg: fmt.Sprintf("%s %s: %s", req.Action, req.Ticket, out.Failure), err: err}
	}

	out.Report = orchestrator.BuildReport(run)

	var failed []string
	for _, repo := range run.Repos {
		if log != nil {
			log.Info("repository finished", "environment", repo.Target.Environment, "project", repo.Target.Path(), "completed", len(repo.Completed), "failed", repo.Failed())
		}
		if repo.Failed() {
			failed = append(failed, repo.Target.Environment)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%s failed for %d environment(s): %s", req.Action, len(failed), strings.Join(failed, ", "))
	}
	return nil
}

// runError keeps the platform error for errors.Is/As while its message only carries
// the sanitized description.
type runError struct {
	msg string
	err error
}

func (e *runError) Error() string { return e.msg }

func (e *runError) Unwrap() error { return e.err }

func (r *Runner) canonicalSource(ctx context.Context, glClient gl.Client) (orchestrator.BranchSource, error) {
	switch r.cfg.Canonical.Host {
	case canonicalHostGitHub:
		repo, err := gh.ParseRepository(r.cfg.Canonical.Path)
		if err != nil {
			return nil, fmt.Errorf("parse canonical repository: %w", err)
		}
		ghClient, err := r.ghFactory.New(ctx, r.cfg.GitHub.Token)
		if err != nil {
			return nil, fmt.Errorf("initialize github client: %w", err)
		}
		return orchestrator.GitHubBranchSource{Client: ghClient, Repo: repo}, nil
	case canonicalHostGitLab, "":
		return orchestrator.GitLabBranchSource{Client: glClient, Path: r.cfg.Canonical.Path}, nil
	default:
		return nil, fmt.Errorf("unsupported canonical host %q", r.cfg.Canonical.Host)
	}
}

func (r *Runner) acquireLocks(ctx context.Context, repos []targets.RepoTarget) (lock.Leases, error) {
	keys := make([]string, 0, len(repos))
	for _, repo := range repos {
		keys = append(keys, repo.Path())
	}

	leases, err := lock.AcquireAll(ctx, r.locker, keys)
	if err == nil {
		return leases, nil
	}

	var keyErr *lock.KeyError
	if errors.Is(err, lock.ErrLocked) && errors.As(err, &keyErr) {
		return nil, &orchestrator.ValidationError{Violations: []string{
			fmt.Sprintf("repository %s is locked by another run", keyErr.Key),
		}}
	}
	return nil, err
}

func (r *Runner) buildLocker() (lock.Locker, error) {
	switch r.cfg.Lock.Backend {
	case lock.BackendFile:
		return lock.NewFileLocker(r.cfg.Lock.Dir)
	case lock.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     r.cfg.Lock.RedisAddr,
			Password: r.cfg.Lock.RedisPassword,
			DB:       r.cfg.Lock.RedisDB,
		})
		r.closers = append(r.closers, client.Close)
		return lock.NewRedisLocker(client, lock.RedisOptions{TTL: r.cfg.Lock.TTL}), nil
	case lock.BackendNone, "":
		return lock.Noop(), nil
	default:
		return nil, fmt.Errorf("unsupported lock backend %q", r.cfg.Lock.Backend)
	}
}
