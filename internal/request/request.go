package request

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lzqa/feature-qa/internal/targets"
)

// Action enumerates the workflows a request can ask for.
type Action string

const (
	ActionDeploy   Action = "deploy"
	ActionReset    Action = "reset"
	ActionValidate Action = "validate"
)

// Tool names the calling layer registers for the deploy and reset workflows.
const (
	ToolDeploy = "gitlab_deploy_a_feature_branch_to_project"
	ToolReset  = "gitlab_reset_project_to_main_branch"
)

// Request is a normalised workflow request.
type Request struct {
	Action       Action
	Ticket       string
	Environments []string
	Project      string
}

type arguments struct {
	Ticket       string   `json:"ticket"`
	Branch       string   `json:"branch"`
	Environment  string   `json:"environment"`
	GCCEnv       string   `json:"gcc_env"`
	Environments []string `json:"environments"`
	Project      string   `json:"project"`
}

type payload struct {
	arguments
	Action    string          `json:"action"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// Parse decodes a request. Both the flat form
//
//	{"action": "deploy", "ticket": "JIRA-123", "environment": "gcc2_dev", "project": "baseline"}
//
// and the tool-call form
//
//	{"name": "gitlab_deploy_a_feature_branch_to_project", "arguments": "{\"branch\": ...}"}
//
// are accepted. The ticket is normalised but never rejected here; precondition checks
// report reserved or empty tickets.
func Parse(r io.Reader) (Request, error) {
	var raw payload
	dec := json.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return Request{}, fmt.Errorf("decode request: %w", err)
	}

	args := raw.arguments
	if len(raw.Arguments) > 0 {
		nested, err := decodeArguments(raw.Arguments)
		if err != nil {
			return Request{}, err
		}
		args = mergeArguments(args, nested)
	}

	action, err := parseAction(raw.Action, raw.Name)
	if err != nil {
		return Request{}, err
	}

	req := Request{
		Action:  action,
		Ticket:  targets.NormalizeBranch(firstNonEmpty(args.Ticket, args.Branch)),
		Project: strings.Trim(strings.TrimSpace(args.Project), "/"),
	}

	for _, env := range append([]string{args.Environment, args.GCCEnv}, args.Environments...) {
		if env = strings.TrimSpace(env); env != "" {
			req.Environments = append(req.Environments, env)
		}
	}

	if req.Project == "" {
		return Request{}, fmt.Errorf("request is missing the project")
	}
	if len(req.Environments) == 0 {
		return Request{}, fmt.Errorf("request is missing the environment")
	}

	return req, nil
}

// ParseFile reads a request from path, or from stdin when path is "-".
func ParseFile(path string) (Request, error) {
	if path == "-" {
		return Parse(os.Stdin)
	}

	f, err := os.Open(path)
	if err != nil {
		return Request{}, fmt.Errorf("open request file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "failed to close request file: %v\n", closeErr)
		}
	}()

	return Parse(f)
}

// decodeArguments accepts arguments either as an object or as a JSON-encoded string.
func decodeArguments(raw json.RawMessage) (arguments, error) {
	var args arguments

	var encoded string
	if err := json.Unmarshal(raw, &encoded); err == nil {
		raw = json.RawMessage(encoded)
	}

	if err := json.Unmarshal(raw, &args); err != nil {
		return arguments{}, fmt.Errorf("decode request arguments: %w", err)
	}
	return args, nil
}

func mergeArguments(base, override arguments) arguments {
	base.Ticket = firstNonEmpty(override.Ticket, base.Ticket)
	base.Branch = firstNonEmpty(override.Branch, base.Branch)
	base.Environment = firstNonEmpty(override.Environment, base.Environment)
	base.GCCEnv = firstNonEmpty(override.GCCEnv, base.GCCEnv)
	base.Project = firstNonEmpty(override.Project, base.Project)
	base.Environments = append(base.Environments, override.Environments...)
	return base
}

func parseAction(action, name string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(firstNonEmpty(action, name))) {
	case string(ActionDeploy), ToolDeploy:
		return ActionDeploy, nil
	case string(ActionReset), ToolReset:
		return ActionReset, nil
	case string(ActionValidate):
		return ActionValidate, nil
	case "":
		return "", fmt.Errorf("request is missing the action")
	default:
		return "", fmt.Errorf("unsupported request action %q", firstNonEmpty(action, name))
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
