package gh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	github "github.com/google/go-github/v55/github"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
)

const (
	defaultUserAgent  = "feature-qa"
	defaultRetries    = 3
	defaultRetryDelay = 500 * time.Millisecond
)

// RESTOptions configures the REST-backed client factory.
type RESTOptions struct {
	// BaseURL and UploadURL target a GitHub Enterprise instance when set.
	BaseURL   string
	UploadURL string

	// Retries is the number of additional attempts after a retryable failure.
	// Defaults to 3; negative disables retries.
	Retries int

	// RetryDelay is the initial exponential backoff delay. Defaults to 500ms.
	RetryDelay time.Duration
}

// NewRESTFactory returns a GitHub client factory backed by the go-github REST client.
func NewRESTFactory(opts RESTOptions) Factory {
	return &restFactory{
		userAgent: defaultUserAgent,
		baseURL:   strings.TrimSpace(opts.BaseURL),
		uploadURL: strings.TrimSpace(opts.UploadURL),
		retries:   opts.Retries,
		delay:     opts.RetryDelay,
	}
}

type restFactory struct {
	userAgent string
	baseURL   string
	uploadURL string
	retries   int
	delay     time.Duration
}

type restClient struct {
	client     *github.Client
	retries    int
	retryDelay time.Duration
}

func (f *restFactory) New(ctx context.Context, token string) (Client, error) {
	if token == "" {
		return nil, fmt.Errorf("github token is required")
	}

	if f.baseURL == "" && f.uploadURL != "" {
		return nil, fmt.Errorf("github upload url cannot be set without base url")
	}

	tc := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	ghClient := github.NewClient(tc)

	if f.baseURL != "" {
		base, err := normalizeGitHubURL(f.baseURL)
		if err != nil {
			return nil, fmt.Errorf("parse github base url: %w", err)
		}

		upload := f.uploadURL
		if upload == "" {
			upload = base
		}
		upload, err = normalizeGitHubURL(upload)
		if err != nil {
			return nil, fmt.Errorf("parse github upload url: %w", err)
		}

		ghClient, err = ghClient.WithEnterpriseURLs(base, upload)
		if err != nil {
			return nil, fmt.Errorf("construct enterprise github client: %w", err)
		}
	}

	if f.userAgent != "" {
		ghClient.UserAgent = f.userAgent
	}

	retries := f.retries
	if retries == 0 {
		retries = defaultRetries
	}
	delay := f.delay
	if delay <= 0 {
		delay = defaultRetryDelay
	}

	return &restClient{client: ghClient, retries: retries, retryDelay: delay}, nil
}

func normalizeGitHubURL(raw string) (string, error) {
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

	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""

	return parsed.String(), nil
}

func (c *restClient) BranchExists(ctx context.Context, repo Repository, branch string) (bool, error) {
	err := c.withRetry(ctx, func(ctx context.Context) error {
		return c.getBranch(ctx, repo, branch)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrBranchNotFound):
		return false, nil
	default:
		return false, err
	}
}

// withRetry runs op, backing off exponentially while it fails with a retryable error.
func (c *restClient) withRetry(ctx context.Context, op func(ctx context.Context) error) error {
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

func (c *restClient) getBranch(ctx context.Context, repo Repository, branch string) error {
	_, resp, err := c.client.Repositories.GetBranch(ctx, repo.Owner, repo.Name, branch, false)
	if err == nil {
		return nil
	}
	if !isNotFound(resp, err) {
		return fmt.Errorf("get branch %s in %s: %w", branch, repo, classifyGitHubError(err))
	}

	// A 404 for the branch and a 404 for the repository look the same; tell them
	// apart so a mistyped canonical repository is not reported as a missing branch.
	if _, repoResp, repoErr := c.client.Repositories.Get(ctx, repo.Owner, repo.Name); repoErr != nil {
		if isNotFound(repoResp, repoErr) {
			return fmt.Errorf("github repository %s not found", repo)
		}
		return fmt.Errorf("get repository %s: %w", repo, classifyGitHubError(repoErr))
	}
	return ErrBranchNotFound
}

func isNotFound(resp *github.Response, err error) bool {
	if resp != nil && resp.StatusCode == http.StatusNotFound {
		return true
	}
	var githubErr *github.ErrorResponse
	if errors.As(err, &githubErr) {
		if githubErr.Response != nil && githubErr.Response.StatusCode == http.StatusNotFound {
			return true
		}
	}
	return false
}

func classifyGitHubError(err error) error {
	if err == nil {
		return nil
	}
	if isRetryableGitHubError(err) {
		return &retryableError{err: err}
	}
	return err
}

func isRetryableGitHubError(err error) bool {
	if err == nil {
		return false
	}

	var rateLimitErr *github.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return true
	}

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var respErr *github.ErrorResponse
	if errors.As(err, &respErr) && respErr.Response != nil {
		code := respErr.Response.StatusCode
		if code == http.StatusTooManyRequests || (code >= 500 && code <= 599) {
			return true
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}
