package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	gh "github.com/lzqa/feature-qa/internal/github"
	"github.com/lzqa/feature-qa/internal/lock"
	"github.com/lzqa/feature-qa/internal/orchestrator"
	"github.com/lzqa/feature-qa/internal/targets"
)

// EnvPrefix namespaces the environment variables read by LoadConfig.
const EnvPrefix = "FEATURE_QA_"

const (
	defaultGitLabBaseURL  = "https://sgts.gitlab-dedicated.com/"
	defaultCanonicalPath  = "wog/gvt/gcc/gcc2.0/gcc-provisioning-squad/tlz/aws-tlz-landingzones/aws-landingzones"
	defaultAuthMode       = "private"
	defaultGitLabTimeout  = 30 * time.Second
	defaultRetries        = 3
	defaultLogLevel       = "info"
	defaultLogFormat      = "text"
	defaultLockTTL        = 15 * time.Minute
	defaultMetricsJob     = "feature_qa"
	canonicalHostGitLab   = "gitlab"
	canonicalHostGitHub   = "github"
	maxConfigFileSizeByte = 1024 * 1024
)

// Config captures runtime options sourced from an optional YAML file and the environment.
type Config struct {
	GitLab       GitLabConfig      `koanf:"gitlab"`
	GitHub       GitHubConfig      `koanf:"github"`
	Canonical    CanonicalConfig   `koanf:"canonical"`
	Environments map[string]string `koanf:"environments"`
	Workflow     WorkflowConfig    `koanf:"workflow"`
	Log          LogConfig         `koanf:"log"`
	Lock         LockConfig        `koanf:"lock"`
	Metrics      MetricsConfig     `koanf:"metrics"`
	Output       OutputConfig      `koanf:"output"`
}

type GitLabConfig struct {
	BaseURL            string        `koanf:"base_url" validate:"required,url"`
	Token              string        `koanf:"token" validate:"required"`
	AuthMode           string        `koanf:"auth_mode" validate:"oneof=private oauth"`
	InsecureSkipVerify bool          `koanf:"insecure_skip_verify"`
	Timeout            time.Duration `koanf:"timeout" validate:"gt=0"`
	Retries            int           `koanf:"retries" validate:"gte=-1,lte=10"`
	RequestsPerSecond  float64       `koanf:"requests_per_second" validate:"gte=0"`
}

type GitHubConfig struct {
	Token     string `koanf:"token"`
	BaseURL   string `koanf:"base_url" validate:"omitempty,url"`
	UploadURL string `koanf:"upload_url" validate:"omitempty,url"`
	Retries   int    `koanf:"retries" validate:"gte=-1,lte=10"`
}

// CanonicalConfig locates the landing-zone repository that must carry the ticket branch.
type CanonicalConfig struct {
	Host string `koanf:"host" validate:"oneof=gitlab github"`
	Path string `koanf:"path" validate:"required"`
}

type WorkflowConfig struct {
	Concurrency           int               `koanf:"concurrency" validate:"gte=1,lte=32"`
	ConfigFilePath        string            `koanf:"config_file_path" validate:"required"`
	ConfigFileTemplate    string            `koanf:"config_file_template" validate:"required"`
	CommitMessageTemplate string            `koanf:"commit_message_template" validate:"required"`
	PipelineVariables     map[string]string `koanf:"pipeline_variables"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn warning error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

type LockConfig struct {
	Backend       string        `koanf:"backend" validate:"oneof=none file redis"`
	Dir           string        `koanf:"dir"`
	RedisAddr     string        `koanf:"redis_addr" validate:"required_if=Backend redis"`
	RedisPassword string        `koanf:"redis_password"`
	RedisDB       int           `koanf:"redis_db" validate:"gte=0"`
	TTL           time.Duration `koanf:"ttl" validate:"gte=0"`
}

type MetricsConfig struct {
	PushgatewayURL string `koanf:"pushgateway_url" validate:"omitempty,url"`
	Job            string `koanf:"job"`
}

// OutputConfig names the files the run summary is appended to. Both default to the
// GitHub Actions step summary and output files when running inside a workflow.
type OutputConfig struct {
	SummaryFile string `koanf:"summary_file"`
	OutputsFile string `koanf:"outputs_file"`
}

// LoadConfig reads the YAML file at path (skipped when empty), overlays FEATURE_QA_*
// environment variables, applies defaults and validates the result.
//
// Environment variables map onto the first key segment only:
//
//	FEATURE_QA_GITLAB_TOKEN       -> gitlab.token
//	FEATURE_QA_LOCK_REDIS_ADDR    -> lock.redis_addr
//	FEATURE_QA_ENVIRONMENTS_GCC2_DEV -> environments.gcc2_dev
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if path = strings.TrimSpace(path); path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config file %s is a directory", path)
	}
	if info.Size() > maxConfigFileSizeByte {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSizeByte)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}

// envKey turns GITLAB_BASE_URL (prefix already stripped) into gitlab.base_url.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	section, field, ok := strings.Cut(lower, "_")
	if !ok {
		return lower
	}
	return section + "." + field
}

func applyDefaults(cfg *Config) {
	cfg.GitLab.BaseURL = strings.TrimSpace(cfg.GitLab.BaseURL)
	if cfg.GitLab.BaseURL == "" {
		cfg.GitLab.BaseURL = defaultGitLabBaseURL
	}
	cfg.GitLab.Token = strings.TrimSpace(cfg.GitLab.Token)
	if cfg.GitLab.Token == "" {
		cfg.GitLab.Token = strings.TrimSpace(os.Getenv("GITLAB_TOKEN"))
	}
	cfg.GitLab.AuthMode = strings.ToLower(strings.TrimSpace(cfg.GitLab.AuthMode))
	if cfg.GitLab.AuthMode == "" {
		cfg.GitLab.AuthMode = defaultAuthMode
	}
	if cfg.GitLab.Timeout == 0 {
		cfg.GitLab.Timeout = defaultGitLabTimeout
	}
	if cfg.GitLab.Retries == 0 {
		cfg.GitLab.Retries = defaultRetries
	}

	if cfg.GitHub.Retries == 0 {
		cfg.GitHub.Retries = defaultRetries
	}
	cfg.GitHub.Token = strings.TrimSpace(cfg.GitHub.Token)
	if cfg.GitHub.Token == "" {
		cfg.GitHub.Token = strings.TrimSpace(os.Getenv("GITHUB_TOKEN"))
	}

	cfg.Canonical.Host = strings.ToLower(strings.TrimSpace(cfg.Canonical.Host))
	if cfg.Canonical.Host == "" {
		cfg.Canonical.Host = canonicalHostGitLab
	}
	cfg.Canonical.Path = strings.Trim(strings.TrimSpace(cfg.Canonical.Path), "/")
	if cfg.Canonical.Path == "" && cfg.Canonical.Host == canonicalHostGitLab {
		cfg.Canonical.Path = defaultCanonicalPath
	}

	if len(cfg.Environments) == 0 {
		cfg.Environments = targets.DefaultTable()
	}

	if cfg.Workflow.Concurrency == 0 {
		cfg.Workflow.Concurrency = orchestrator.DefaultConcurrency
	}
	if cfg.Workflow.ConfigFilePath == "" {
		cfg.Workflow.ConfigFilePath = orchestrator.DefaultConfigFilePath
	}
	if cfg.Workflow.ConfigFileTemplate == "" {
		cfg.Workflow.ConfigFileTemplate = orchestrator.DefaultConfigFileTemplate
	}
	if cfg.Workflow.CommitMessageTemplate == "" {
		cfg.Workflow.CommitMessageTemplate = orchestrator.DefaultCommitMessageTemplate
	}
	if cfg.Workflow.PipelineVariables == nil {
		cfg.Workflow.PipelineVariables = orchestrator.DefaultPipelineVariables()
	}

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	if cfg.Log.Level == "" {
		cfg.Log.Level = defaultLogLevel
	}
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if cfg.Log.Format == "" {
		cfg.Log.Format = defaultLogFormat
	}

	cfg.Lock.Backend = strings.ToLower(strings.TrimSpace(cfg.Lock.Backend))
	if cfg.Lock.Backend == "" {
		cfg.Lock.Backend = lock.BackendNone
	}
	if cfg.Lock.Backend == lock.BackendFile && cfg.Lock.Dir == "" {
		cfg.Lock.Dir = filepath.Join(os.TempDir(), "feature-qa-locks")
	}
	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = defaultLockTTL
	}

	if cfg.Metrics.Job == "" {
		cfg.Metrics.Job = defaultMetricsJob
	}

	cfg.Output.SummaryFile = envOrDefault(cfg.Output.SummaryFile, "GITHUB_STEP_SUMMARY")
	cfg.Output.OutputsFile = envOrDefault(cfg.Output.OutputsFile, "GITHUB_OUTPUT")
}

func envOrDefault(value, key string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return strings.TrimSpace(os.Getenv(key))
}

// Validate checks field constraints and the combinations the struct tags cannot express.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", describeValidation(err))
	}

	if c.Canonical.Host == canonicalHostGitHub {
		if c.GitHub.Token == "" {
			return fmt.Errorf("github token is required when the canonical repository is on github (set %sGITHUB_TOKEN or GITHUB_TOKEN)", EnvPrefix)
		}
		if _, err := gh.ParseRepository(c.Canonical.Path); err != nil {
			return fmt.Errorf("invalid canonical path: %w", err)
		}
	}

	if c.GitHub.UploadURL != "" && c.GitHub.BaseURL == "" {
		return fmt.Errorf("github.upload_url requires github.base_url")
	}

	for key, group := range c.Environments {
		if strings.TrimSpace(key) == "" || strings.Trim(strings.TrimSpace(group), "/") == "" {
			return fmt.Errorf("environment %q must map to a group path", key)
		}
	}

	if err := orchestrator.CheckTemplates(c.OrchestratorConfig()); err != nil {
		return fmt.Errorf("invalid workflow template: %w", err)
	}

	return nil
}

// OrchestratorConfig projects the workflow section onto the orchestrator's Config.
func (c Config) OrchestratorConfig() orchestrator.Config {
	return orchestrator.Config{
		Concurrency:           c.Workflow.Concurrency,
		ConfigFilePath:        c.Workflow.ConfigFilePath,
		ConfigFileTemplate:    c.Workflow.ConfigFileTemplate,
		CommitMessageTemplate: c.Workflow.CommitMessageTemplate,
		PipelineVariables:     c.Workflow.PipelineVariables,
	}
}

// TargetTable returns the configured environment table.
func (c Config) TargetTable() targets.Table {
	return targets.Table(c.Environments)
}

func describeValidation(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
