package orchestrator

import (
	"errors"
	"fmt"
	"strings"

	gl "github.com/lzqa/feature-qa/internal/gitlab"
	"github.com/lzqa/feature-qa/internal/targets"
)

// StepName identifies a lifecycle action.
type StepName string

const (
	StepEnsureFeatureBranch StepName = "ensure_feature_branch"
	StepWriteFeatureConfig  StepName = "write_feature_config"
	StepPromoteToFeature    StepName = "promote_to_feature"
	StepEnsureTrigger       StepName = "ensure_trigger"
	StepFireFeaturePipeline StepName = "fire_feature_pipeline"
	StepRestoreMainDefault  StepName = "restore_main_default"
	StepDeleteFeatureBranch StepName = "delete_feature_branch"
	StepFireMainPipeline    StepName = "fire_main_pipeline"
	StepDeleteTrigger       StepName = "delete_trigger"
)

// RepoState is the runtime state of one target repository within a workflow run.
// Actions take a RepoState by value and return the updated value.
type RepoState struct {
	Target     targets.RepoTarget
	Project    gl.Project
	MainBranch string

	// Trigger is the ticket's pipeline trigger, nil until found or created.
	Trigger *gl.Trigger
	// Pipeline is set only after a pipeline was started successfully.
	Pipeline *gl.Pipeline

	Completed []StepName
	Warnings  []string
	Err       error
}

// Failed reports whether a step failed for this repository.
func (s RepoState) Failed() bool {
	return s.Err != nil
}

func (s RepoState) completed(step StepName) RepoState {
	s.Completed = append(append([]StepName(nil), s.Completed...), step)
	return s
}

func (s RepoState) warn(msg string) RepoState {
	s.Warnings = append(append([]string(nil), s.Warnings...), msg)
	return s
}

// WorkflowRun is the aggregate state of one deploy, reset or validate invocation.
type WorkflowRun struct {
	ID     string
	Ticket string
	Repos  []RepoState
}

// Failed reports whether any repository in the run failed.
func (r WorkflowRun) Failed() bool {
	for _, repo := range r.Repos {
		if repo.Failed() {
			return true
		}
	}
	return false
}

// TriggerDescription is the deterministic description that identifies the ticket's trigger.
func TriggerDescription(ticket string) string {
	return "temp token to test " + ticket
}

// ValidationError carries the precondition violations that stopped a workflow.
type ValidationError struct {
	Violations []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Violations, ", ")
}

// ConfigurationError reports a target set that cannot be worked on as configured.
type ConfigurationError struct {
	Target string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Target == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Target, e.Reason)
}

// StepError ties a failure to the lifecycle step that produced it.
type StepError struct {
	Step StepName
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// RemoteError is a platform failure raised while resolving or validating a target,
// before any repository was changed.
type RemoteError struct {
	Op     string
	Target string
	Err    error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Target, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

var (
	// ErrNoTrigger indicates a pipeline was requested before a trigger was available.
	ErrNoTrigger = errors.New("no pipeline trigger available")

	// ErrStillDefault indicates the feature branch is still the repository default.
	ErrStillDefault = errors.New("feature branch is still the default branch")
)
