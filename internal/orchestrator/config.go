package orchestrator

import "maps"

// Defaults used by the landing-zone QA flow.
const (
	DefaultConcurrency           = 4
	DefaultConfigFilePath        = ".lz_config.yml"
	DefaultConfigFileTemplate    = ".lz_version: {{ .Ticket }}"
	DefaultCommitMessageTemplate = "test {{ .Ticket }}"
)

// DefaultPipelineVariables returns the variable set passed to every triggered pipeline.
func DefaultPipelineVariables() map[string]string {
	return map[string]string{
		"POLICY_MATCH_TYPE": "",
		"POLICY_LIST":       "[]",
	}
}

// Config captures the runtime controls the orchestrator needs.
type Config struct {
	// Concurrency bounds how many repositories are worked on at once.
	Concurrency int

	ConfigFilePath        string
	ConfigFileTemplate    string
	CommitMessageTemplate string
	PipelineVariables     map[string]string
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.ConfigFilePath == "" {
		c.ConfigFilePath = DefaultConfigFilePath
	}
	if c.ConfigFileTemplate == "" {
		c.ConfigFileTemplate = DefaultConfigFileTemplate
	}
	if c.CommitMessageTemplate == "" {
		c.CommitMessageTemplate = DefaultCommitMessageTemplate
	}
	if c.PipelineVariables == nil {
		c.PipelineVariables = DefaultPipelineVariables()
	} else {
		c.PipelineVariables = maps.Clone(c.PipelineVariables)
	}
	return c
}
