package gl

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	gitlab "gitlab.com/gitlab-org/api/client-go"
	"golang.org/x/time/rate"
)

const (
	defaultUserAgent  = "feature-qa"
	defaultTimeout    = 30 * time.Second
	defaultRetries    = 3
	defaultRetryDelay = 500 * time.Millisecond
	defaultPerPage    = 100
)

// Supported authentication modes for the REST client.
const (
	AuthModePrivateToken = "private"
	AuthModeOAuth        = "oauth"
)

// RESTOptions configures the REST-backed client factory.
type RESTOptions struct {
	// BaseURL is the GitLab instance root, e.g. https://gitlab.example.com/.
	BaseURL string

	// AuthMode selects how the token is sent: "private" (PRIVATE-TOKEN header,
	// default) or "oauth" (Authorization: Bearer).
	AuthMode string

	// InsecureSkipVerify disables TLS certificate verification. Only meant for
	// instances reached through TLS-intercepting proxies.
	InsecureSkipVerify bool

	// Timeout bounds every HTTP request. Defaults to 30s.
	Timeout time.Duration

	// Retries is the number of additional attempts for idempotent calls that
	// failed with a retryable error. Defaults to 3; negative disables retries.
	Retries int

	// RetryDelay is the initial exponential backoff delay. Defaults to 500ms.
	RetryDelay time.Duration

	// RequestsPerSecond throttles outgoing requests when positive.
	RequestsPerSecond float64
}

// NewRESTFactory returns a GitLab client factory backed by the client-go REST client.
func NewRESTFactory(opts RESTOptions) Factory {
	return &restFactory{userAgent: defaultUserAgent, opts: opts}
}

type restFactory struct {
	userAgent string
	opts      RESTOptions
}

type restClient struct {
	client     *gitlab.Client
	retries    int
	retryDelay time.Duration
}

func (f *restFactory) New(_ context.Context, token string) (Client, error) {
	if token == "" {
		return nil, fmt.Errorf("gitlab token is required")
	}

	baseURL, err := normalizeGitLabURL(f.opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse gitlab base url: %w", err)
	}

	timeout := f.opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := &http.Client{Timeout: timeout}
	if f.opts.InsecureSkipVerify {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- explicit opt-in
		httpClient.Transport = transport
	}

	options := []gitlab.ClientOptionFunc{
		gitlab.WithBaseURL(baseURL),
		gitlab.WithHTTPClient(httpClient),
		gitlab.WithoutRetries(),
	}

	if rps := f.opts.RequestsPerSecond; rps > 0 {
		burst := int(math.Ceil(rps))
		options = append(options, gitlab.WithCustomLimiter(rate.NewLimiter(rate.Limit(rps), burst)))
	}

	var glClient *gitlab.Client
	switch strings.ToLower(strings.TrimSpace(f.opts.AuthMode)) {
	case "", AuthModePrivateToken:
		glClient, err = gitlab.NewClient(token, options...)
	case AuthModeOAuth:
		glClient, err = gitlab.NewOAuthClient(token, options...)
	default:
		return nil, fmt.Errorf("unsupported gitlab auth mode %q", f.opts.AuthMode)
	}
	if err != nil {
		return nil, fmt.Errorf("construct gitlab client: %w", err)
	}

	if f.userAgent != "" {
		glClient.UserAgent = f.userAgent
	}

	retries := f.opts.Retries
	if retries == 0 {
		retries = defaultRetries
	}
	retryDelay := f.opts.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}

	return &restClient{client: glClient, retries: retries, retryDelay: retryDelay}, nil
}

func normalizeGitLabURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("url cannot be empty")
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}

	if parsed.Scheme == "" {
		return "", fmt.Errorf("url must include scheme (e.g. https://)")
	}

	if parsed.Host == "" {
		return "", fmt.Errorf("url must include host")
	}

	if parsed.Path == "" {
		parsed.Path = "/"
	} else if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}

	parsed.RawQuery = ""
	parsed.Fragment = ""

	return parsed.String(), nil
}

// idempotent runs op, retrying with exponential backoff while it fails with a
// retryable error.
func (c *restClient) idempotent(ctx context.Context, op func(ctx context.Context) error) error {
	if c.retries < 0 {
		return op(ctx)
	}

	backoff := retry.WithMaxRetries(uint64(c.retries), retry.NewExponential(c.retryDelay)) // #nosec G115 -- checked above
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := op(ctx)
		if err != nil && IsRetryable(err) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func (c *restClient) GetProject(ctx context.Context, path string) (Project, error) {
	var project *gitlab.Project
	err := c.idempotent(ctx, func(ctx context.Context) error {
		p, resp, err := c.client.Projects.GetProject(path, nil, gitlab.WithContext(ctx))
		if err != nil {
			if isNotFound(resp, err) {
				return ErrNotFound
			}
			return classifyGitLabError(resp, err)
		}
		project = p
		return nil
	})
	if err != nil {
		return Project{}, fmt.Errorf("get project %s: %w", path, err)
	}
	return toProject(project), nil
}

func (c *restClient) ListProtectedBranches(ctx context.Context, projectID int) ([]string, error) {
	opt := &gitlab.ListProtectedBranchesOptions{}
	opt.PerPage = defaultPerPage
	opt.Page = 1

	var names []string
	for {
		var next int
		err := c.idempotent(ctx, func(ctx context.Context) error {
			branches, resp, err := c.client.ProtectedBranches.ListProtectedBranches(projectID, opt, gitlab.WithContext(ctx))
			if err != nil {
				return classifyGitLabError(resp, err)
			}
			for _, b := range branches {
				if b == nil || b.Name == "" {
					continue
				}
				names = append(names, b.Name)
			}
			next = nextPage(resp)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list protected branches: %w", err)
		}
		if next == 0 {
			break
		}
		opt.Page = next
	}

	return names, nil
}

func (c *restClient) GetBranch(ctx context.Context, projectID int, name string) (Branch, bool, error) {
	var branch Branch
	found := true
	err := c.idempotent(ctx, func(ctx context.Context) error {
		b, resp, err := c.client.Branches.GetBranch(projectID, name, gitlab.WithContext(ctx))
		if err != nil {
			if isNotFound(resp, err) {
				found = false
				return nil
			}
			return classifyGitLabError(resp, err)
		}
		branch = toBranch(b)
		return nil
	})
	if err != nil {
		return Branch{}, false, fmt.Errorf("get branch %s: %w", name, err)
	}
	return branch, found, nil
}

func (c *restClient) CreateBranch(ctx context.Context, projectID int, name, fromRef string) (Branch, error) {
	b, resp, err := c.client.Branches.CreateBranch(projectID, &gitlab.CreateBranchOptions{
		Branch: gitlab.Ptr(name),
		Ref:    gitlab.Ptr(fromRef),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return Branch{}, fmt.Errorf("create branch %s from %s: %w", name, fromRef, classifyGitLabError(resp, err))
	}
	return toBranch(b), nil
}

func (c *restClient) DeleteBranch(ctx context.Context, projectID int, name string) (bool, error) {
	deleted := true
	err := c.idempotent(ctx, func(ctx context.Context) error {
		resp, err := c.client.Branches.DeleteBranch(projectID, name, gitlab.WithContext(ctx))
		if err != nil {
			if isNotFound(resp, err) {
				deleted = false
				return nil
			}
			return classifyGitLabError(resp, err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete branch %s: %w", name, err)
	}
	return deleted, nil
}

func (c *restClient) GetFile(ctx context.Context, projectID int, path, ref string) (File, bool, error) {
	var file File
	found := true
	err := c.idempotent(ctx, func(ctx context.Context) error {
		f, resp, err := c.client.RepositoryFiles.GetFile(projectID, path, &gitlab.GetFileOptions{Ref: gitlab.Ptr(ref)}, gitlab.WithContext(ctx))
		if err != nil {
			if isNotFound(resp, err) {
				found = false
				return nil
			}
			return classifyGitLabError(resp, err)
		}
		content, err := decodeFileContent(f)
		if err != nil {
			return err
		}
		file = File{Path: path, Ref: ref, Content: content}
		return nil
	})
	if err != nil {
		return File{}, false, fmt.Errorf("get file %s@%s: %w", path, ref, err)
	}
	return file, found, nil
}

func (c *restClient) CommitFile(ctx context.Context, projectID int, opts CommitFileOptions) error {
	action := gitlab.FileActionValue(opts.Action)
	_, resp, err := c.client.Commits.CreateCommit(projectID, &gitlab.CreateCommitOptions{
		Branch:        gitlab.Ptr(opts.Branch),
		CommitMessage: gitlab.Ptr(opts.CommitMessage),
		Actions: []*gitlab.CommitActionOptions{
			{
				Action:   &action,
				FilePath: gitlab.Ptr(opts.Path),
				Content:  gitlab.Ptr(opts.Content),
			},
		},
	}, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("commit %s to %s: %w", opts.Path, opts.Branch, classifyGitLabError(resp, err))
	}
	return nil
}

func (c *restClient) GetDefaultBranch(ctx context.Context, projectID int) (string, error) {
	var branch string
	err := c.idempotent(ctx, func(ctx context.Context) error {
		p, resp, err := c.client.Projects.GetProject(projectID, nil, gitlab.WithContext(ctx))
		if err != nil {
			if isNotFound(resp, err) {
				return ErrNotFound
			}
			return classifyGitLabError(resp, err)
		}
		branch = p.DefaultBranch
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("get default branch: %w", err)
	}
	return branch, nil
}

func (c *restClient) SetDefaultBranch(ctx context.Context, projectID int, name string) error {
	err := c.idempotent(ctx, func(ctx context.Context) error {
		_, resp, err := c.client.Projects.EditProject(projectID, &gitlab.EditProjectOptions{
			DefaultBranch: gitlab.Ptr(name),
		}, gitlab.WithContext(ctx))
		if err != nil {
			return classifyGitLabError(resp, err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set default branch %s: %w", name, err)
	}
	return nil
}

func (c *restClient) ListTriggers(ctx context.Context, projectID int) ([]Trigger, error) {
	opt := &gitlab.ListPipelineTriggersOptions{}
	opt.PerPage = defaultPerPage
	opt.Page = 1

	var triggers []Trigger
	for {
		var next int
		err := c.idempotent(ctx, func(ctx context.Context) error {
			page, resp, err := c.client.PipelineTriggers.ListPipelineTriggers(projectID, opt, gitlab.WithContext(ctx))
			if err != nil {
				if isNotFound(resp, err) {
					return ErrNotFound
				}
				return classifyGitLabError(resp, err)
			}
			for _, t := range page {
				if t == nil {
					continue
				}
				triggers = append(triggers, toTrigger(t))
			}
			next = nextPage(resp)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("list pipeline triggers: %w", err)
		}
		if next == 0 {
			break
		}
		opt.Page = next
	}

	return triggers, nil
}

func (c *restClient) CreateTrigger(ctx context.Context, projectID int, description string) (Trigger, error) {
	t, resp, err := c.client.PipelineTriggers.AddPipelineTrigger(projectID, &gitlab.AddPipelineTriggerOptions{
		Description: gitlab.Ptr(description),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return Trigger{}, fmt.Errorf("create pipeline trigger: %w", classifyGitLabError(resp, err))
	}
	return toTrigger(t), nil
}

func (c *restClient) DeleteTrigger(ctx context.Context, projectID int, triggerID int) (bool, error) {
	deleted := true
	err := c.idempotent(ctx, func(ctx context.Context) error {
		resp, err := c.client.PipelineTriggers.DeletePipelineTrigger(projectID, triggerID, gitlab.WithContext(ctx))
		if err != nil {
			if isNotFound(resp, err) {
				deleted = false
				return nil
			}
			return classifyGitLabError(resp, err)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("delete pipeline trigger %d: %w", triggerID, err)
	}
	return deleted, nil
}

func (c *restClient) TriggerPipeline(ctx context.Context, projectID int, token, ref string, variables map[string]string) (Pipeline, error) {
	p, resp, err := c.client.PipelineTriggers.RunPipelineTrigger(projectID, &gitlab.RunPipelineTriggerOptions{
		Ref:       gitlab.Ptr(ref),
		Token:     gitlab.Ptr(token),
		Variables: variables,
	}, gitlab.WithContext(ctx))
	if err != nil {
		err = classifyGitLabError(resp, err)
		if isNotFound(resp, err) {
			err = &rejectedError{status: http.StatusNotFound, err: err}
		}
		return Pipeline{}, fmt.Errorf("trigger pipeline on %s: %w", ref, err)
	}
	if p == nil {
		return Pipeline{}, fmt.Errorf("trigger pipeline on %s: empty response", ref)
	}
	return Pipeline{ID: p.ID, Ref: ref, WebURL: p.WebURL}, nil
}

func toProject(p *gitlab.Project) Project {
	if p == nil {
		return Project{}
	}
	return Project{
		ID:            p.ID,
		Name:          p.Name,
		Path:          p.PathWithNamespace,
		WebURL:        p.WebURL,
		DefaultBranch: p.DefaultBranch,
	}
}

func toBranch(b *gitlab.Branch) Branch {
	if b == nil {
		return Branch{}
	}
	branch := Branch{Name: b.Name}
	if b.Commit != nil {
		branch.CommitSHA = b.Commit.ID
	}
	return branch
}

func toTrigger(t *gitlab.PipelineTrigger) Trigger {
	if t == nil {
		return Trigger{}
	}
	return Trigger{ID: t.ID, Description: t.Description, Token: t.Token}
}

func decodeFileContent(f *gitlab.File) (string, error) {
	if f == nil {
		return "", nil
	}
	if !strings.EqualFold(f.Encoding, "base64") {
		return f.Content, nil
	}
	raw, err := base64.StdEncoding.DecodeString(f.Content)
	if err != nil {
		return "", fmt.Errorf("decode file content: %w", err)
	}
	return string(raw), nil
}

func nextPage(resp *gitlab.Response) int {
	if resp == nil {
		return 0
	}
	return resp.NextPage
}

func statusOf(resp *gitlab.Response, err error) int {
	if resp != nil && resp.Response != nil {
		return resp.StatusCode
	}
	var glErr *gitlab.ErrorResponse
	if errors.As(err, &glErr) && glErr.Response != nil {
		return glErr.Response.StatusCode
	}
	return 0
}

func isNotFound(resp *gitlab.Response, err error) bool {
	return statusOf(resp, err) == http.StatusNotFound
}

func classifyGitLabError(resp *gitlab.Response, err error) error {
	if err == nil {
		return nil
	}
	if isRetryableGitLabError(resp, err) {
		return &retryableError{err: err}
	}
	if code := statusOf(resp, err); code >= 400 && code < 500 && code != http.StatusNotFound {
		return &rejectedError{status: code, err: err}
	}
	return err
}

func isRetryableGitLabError(resp *gitlab.Response, err error) bool {
	if err == nil {
		return false
	}

	code := statusOf(resp, err)
	if code == http.StatusTooManyRequests || (code >= 500 && code <= 599) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
