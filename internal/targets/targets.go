package targets

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// RepoTarget identifies one managed repository: the environment it belongs to and
// where it lives on the hosting platform.
type RepoTarget struct {
	Environment string
	GroupPath   string
	Project     string
}

// Path joins the group path and project name into a full project path.
func (t RepoTarget) Path() string {
	group := strings.Trim(strings.TrimSpace(t.GroupPath), "/")
	project := strings.Trim(strings.TrimSpace(t.Project), "/")
	if group == "" {
		return project
	}
	return group + "/" + project
}

// UnknownEnvironmentError reports an environment key that is missing from the table.
type UnknownEnvironmentError struct {
	Environment string
	Known       []string
}

func (e *UnknownEnvironmentError) Error() string {
	return fmt.Sprintf("unknown environment %q (known: %s)", e.Environment, strings.Join(e.Known, ", "))
}

var errEmptyProject = errors.New("project name cannot be empty")

// Table maps environment keys to the group path holding that environment's repositories.
type Table map[string]string

// DefaultTable is the environment table the landing-zone repositories were laid out with.
func DefaultTable() Table {
	return Table{
		"gccplus_stg": "wog/gvt/gccplus/gvt-gccplus/provisioning/tlz-stg/agency-baseline/stg/gvt/",
		"gccplus_prd": "wog/gvt/gccplus/gvt-gccplus/provisioning/tlz/agency-baseline/prod/gvt/",
		"gcc2_dev":    "wog/gvt/gcc/gcc2.0/gcc-provisioning-squad/tlz-dev/agency-baseline/dev/gvt/",
		"gcc2_prd":    "wog/gvt/gcc/gcc2.0/gcc-provisioning-squad/tlz/agency-baseline/prod/gvt/",
	}
}

// Environments returns the sorted environment keys of the table.
func (t Table) Environments() []string {
	keys := make([]string, 0, len(t))
	for key := range t {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// Expand resolves each environment key into a RepoTarget for project. Keys are matched
// case-insensitively after trimming, duplicates collapse onto their first occurrence,
// and request order is preserved.
func (t Table) Expand(environments []string, project string) ([]RepoTarget, error) {
	project = strings.Trim(strings.TrimSpace(project), "/")
	if project == "" {
		return nil, errEmptyProject
	}

	result := make([]RepoTarget, 0, len(environments))
	seen := make(map[string]struct{})

	for _, raw := range environments {
		env := NormalizeEnvironment(raw)
		if env == "" {
			continue
		}
		if _, ok := seen[env]; ok {
			continue
		}

		group, ok := t.lookup(env)
		if !ok {
			return nil, &UnknownEnvironmentError{Environment: env, Known: t.Environments()}
		}

		seen[env] = struct{}{}
		result = append(result, RepoTarget{Environment: env, GroupPath: group, Project: project})
	}

	if len(result) == 0 {
		return nil, errors.New("at least one environment is required")
	}

	return result, nil
}

func (t Table) lookup(env string) (string, bool) {
	if group, ok := t[env]; ok {
		return strings.Trim(strings.TrimSpace(group), "/"), true
	}
	for key, group := range t {
		if strings.EqualFold(key, env) {
			return strings.Trim(strings.TrimSpace(group), "/"), true
		}
	}
	return "", false
}

// NormalizeEnvironment trims and lower-cases an environment key.
func NormalizeEnvironment(env string) string {
	return strings.ToLower(strings.TrimSpace(env))
}

// NormalizeBranch trims whitespace, removes leading/trailing slashes, and strips
// refs/heads prefixes from a branch name. It returns an empty string when the
// normalized branch would otherwise be empty.
func NormalizeBranch(branch string) string {
	branch = strings.TrimSpace(branch)
	branch = strings.Trim(branch, "/")

	if len(branch) >= len("refs/heads/") && strings.EqualFold(branch[:len("refs/heads/")], "refs/heads/") {
		branch = branch[len("refs/heads/"):]
	}

	branch = strings.TrimSpace(branch)
	branch = strings.Trim(branch, "/")

	return strings.TrimSpace(branch)
}

// ValidateBranchName applies git's basic ref-name rules to a ticket branch.
func ValidateBranchName(branch string) error {
	if branch == "" {
		return errors.New("branch cannot be empty")
	}

	if strings.ContainsAny(branch, " \t\n\r") {
		return errors.New("branch cannot contain whitespace")
	}

	if strings.Contains(branch, "..") {
		return errors.New("branch cannot contain '..'")
	}

	if strings.ContainsAny(branch, "~^:?*[]@{\\") {
		return errors.New("branch contains forbidden git characters")
	}

	return nil
}
