package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lzqa/feature-qa/internal/app"
	"github.com/lzqa/feature-qa/internal/request"
	"github.com/lzqa/feature-qa/internal/targets"
)

type rootOptions struct {
	configPath string
}

type workflowOptions struct {
	ticket       string
	environments []string
	project      string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "feature-qa",
		Short: "Deploy landing-zone feature branches to GitLab projects for QA",
		Long: `feature-qa points the repositories of one project at a ticket branch, runs their
pipelines, and resets them back to the main branch afterwards.

Configuration is read from --config (YAML) and FEATURE_QA_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		newWorkflowCmd(opts, request.ActionDeploy, "Deploy a feature branch to the project in each environment"),
		newWorkflowCmd(opts, request.ActionReset, "Reset the project in each environment back to its main branch"),
		newWorkflowCmd(opts, request.ActionValidate, "Check preconditions without changing anything"),
		newRunCmd(opts),
		newEnvironmentsCmd(opts),
	)

	return root
}

func newWorkflowCmd(root *rootOptions, action request.Action, short string) *cobra.Command {
	opts := &workflowOptions{}

	cmd := &cobra.Command{
		Use:   string(action),
		Short: short,
		Example: fmt.Sprintf(`  feature-qa %s --ticket JIRA-123 --env gcc2_dev --project agency-baseline
  feature-qa %s --ticket JIRA-123 --env gcc2_dev --env gcc2_prd --project agency-baseline`, action, action),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := opts.request(action)
			if err != nil {
				return err
			}
			return execute(cmd, root, req)
		},
	}

	cmd.Flags().StringVar(&opts.ticket, "ticket", "", "ticket branch name, e.g. JIRA-123")
	cmd.Flags().StringSliceVar(&opts.environments, "env", nil, "environment key (repeatable or comma separated)")
	cmd.Flags().StringVar(&opts.project, "project", "", "project name inside each environment group")
	_ = cmd.MarkFlagRequired("env")
	_ = cmd.MarkFlagRequired("project")

	return cmd
}

func (o *workflowOptions) request(action request.Action) (request.Request, error) {
	req := request.Request{
		Action:  action,
		Ticket:  targets.NormalizeBranch(o.ticket),
		Project: strings.Trim(strings.TrimSpace(o.project), "/"),
	}
	for _, env := range o.environments {
		if env = strings.TrimSpace(env); env != "" {
			req.Environments = append(req.Environments, env)
		}
	}

	if req.Project == "" {
		return request.Request{}, fmt.Errorf("--project cannot be empty")
	}
	if len(req.Environments) == 0 {
		return request.Request{}, fmt.Errorf("at least one --env is required")
	}
	return req, nil
}

func newRunCmd(root *rootOptions) *cobra.Command {
	var requestPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute a JSON workflow request",
		Long: fmt.Sprintf(`Execute a workflow request read from a file or stdin.

The request is either flat:

  {"action": "deploy", "ticket": "JIRA-123", "environment": "gcc2_dev", "project": "agency-baseline"}

or a tool call naming %s or %s:

  {"name": "%s", "arguments": {"branch": "JIRA-123", "gcc_env": "gcc2_dev", "project": "agency-baseline"}}`,
			request.ToolDeploy, request.ToolReset, request.ToolDeploy),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := request.ParseFile(requestPath)
			if err != nil {
				return err
			}
			return execute(cmd, root, req)
		},
	}
	cmd.Flags().StringVar(&requestPath, "request", "-", `request file, "-" reads stdin`)

	return cmd
}

func newEnvironmentsCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "environments",
		Short: "List the configured environments and their group paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := app.LoadConfig(root.configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			table := cfg.TargetTable()
			for _, env := range table.Environments() {
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", env, table[env]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func execute(cmd *cobra.Command, root *rootOptions, req request.Request) error {
	cfg, err := app.LoadConfig(root.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runner, err := app.NewRunner(cfg)
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}
	defer func() {
		if closeErr := runner.Close(); closeErr != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "failed to close runner: %v\n", closeErr)
		}
	}()

	return runner.Run(cmd.Context(), req)
}
