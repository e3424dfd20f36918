package orchestrator

import (
	"bytes"
	"fmt"
	"text/template"

	"github.com/Masterminds/sprig/v3"
)

// TemplateData is exposed to the config file and commit message templates.
type TemplateData struct {
	Ticket      string
	Environment string
	Project     string
	MainBranch  string
}

func templateDataFor(ticket string, state RepoState) TemplateData {
	return TemplateData{
		Ticket:      ticket,
		Environment: state.Target.Environment,
		Project:     state.Target.Project,
		MainBranch:  state.MainBranch,
	}
}

func parseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse %s template: %w", name, err)
	}
	return tmpl, nil
}

func renderTemplate(name, text string, data TemplateData) (string, error) {
	tmpl, err := parseTemplate(name, text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s template: %w", name, err)
	}
	return buf.String(), nil
}

// CheckTemplates parses both templates of cfg, reporting the first syntax error.
func CheckTemplates(cfg Config) error {
	cfg = cfg.withDefaults()
	if _, err := parseTemplate("config file", cfg.ConfigFileTemplate); err != nil {
		return err
	}
	if _, err := parseTemplate("commit message", cfg.CommitMessageTemplate); err != nil {
		return err
	}
	return nil
}
