package orchestrator

import (
	"context"
	"fmt"
)

var reservedTickets = map[string]struct{}{"": {}, "main": {}, "master": {}}

// Validate evaluates every precondition against run and returns the violations in rule
// order. All rules are evaluated even when an earlier one fails. The error is reserved
// for remote failures while checking.
func (o *Orchestrator) Validate(ctx context.Context, run WorkflowRun) ([]string, error) {
	if err := o.requireClient(); err != nil {
		return nil, err
	}

	var violations []string

	if _, reserved := reservedTickets[run.Ticket]; reserved {
		violations = append(violations, fmt.Sprintf("wrong feature branch configured: [%s]", run.Ticket))
	}

	for _, repo := range run.Repos {
		current, err := o.gl.GetDefaultBranch(ctx, repo.Project.ID)
		if err != nil {
			return nil, &RemoteError{Op: "validate", Target: repo.Target.Path(), Err: fmt.Errorf("get default branch: %w", err)}
		}
		if current != repo.MainBranch && current != run.Ticket {
			violations = append(violations, fmt.Sprintf("default branch [%s] of %s is in use by others", current, repo.Target.Path()))
		}
	}

	exists, err := o.canonicalHasBranch(ctx, run.Ticket)
	if err != nil {
		return nil, err
	}
	if !exists {
		violations = append(violations, fmt.Sprintf("feature branch [%s] not found in %s", run.Ticket, o.canonicalName()))
	}

	return violations, nil
}

// Check runs Validate and folds any violations into a *ValidationError.
func (o *Orchestrator) Check(ctx context.Context, run WorkflowRun) error {
	violations, err := o.Validate(ctx, run)
	if err != nil {
		return fmt.Errorf("validate preconditions: %w", err)
	}
	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

func (o *Orchestrator) canonicalHasBranch(ctx context.Context, ticket string) (bool, error) {
	if o.canonical == nil {
		return false, fmt.Errorf("canonical repository is not configured")
	}
	if ticket == "" {
		return false, nil
	}
	exists, err := o.canonical.BranchExists(ctx, ticket)
	if err != nil {
		return false, &RemoteError{Op: "validate", Target: o.canonicalName(), Err: fmt.Errorf("check branch %s: %w", ticket, err)}
	}
	return exists, nil
}

func (o *Orchestrator) canonicalName() string {
	if o.canonical == nil {
		return "canonical repository"
	}
	return "canonical repository " + o.canonical.String()
}
