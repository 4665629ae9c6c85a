package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	errs "jirabackup/pkg/errors"
	"jirabackup/pkg/logger"
	"jirabackup/pkg/ratelimit"
	"jirabackup/pkg/retry"
)

const userAgent = "jirabackup/1.0"

// Options configures a Client
type Options struct {
	BaseURL  string
	Username string
	Password string

	// Timeout bounds the wait for response headers. Bodies are not covered
	// so large attachments can stream for as long as the caller's context allows.
	Timeout time.Duration

	MaxRetries    int
	BackoffFactor time.Duration
	MaxBackoff    time.Duration

	// Limiter is consulted before every attempt. Nil means unlimited.
	Limiter ratelimit.Limiter

	HTTPClient *http.Client
	Logger     logger.Logger
}

// Stats counts requests made by a Client
type Stats struct {
	Requests int64
	Retries  int64
	Failures int64
}

// Client talks to one Jira server on behalf of one user
type Client struct {
	httpClient *http.Client
	baseURL    string
	username   string
	password   string
	retry      *retry.Config
	limiter    ratelimit.Limiter
	logger     logger.Logger

	requests atomic.Int64
	retries  atomic.Int64
	failures atomic.Int64
}

// NewClient creates a Client. Retry settings are taken as given; MaxBackoff
// defaults to two minutes when zero.
func NewClient(opts Options) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("invalid jira url %q", opts.BaseURL)
	}

	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = opts.Timeout
		httpClient = &http.Client{Transport: transport}
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}

	maxBackoff := opts.MaxBackoff
	if maxBackoff == 0 {
		maxBackoff = 2 * time.Minute
	}

	c := &Client{
		httpClient: httpClient,
		baseURL:    opts.BaseURL,
		username:   opts.Username,
		password:   opts.Password,
		limiter:    limiter,
		logger:     log,
	}
	c.retry = retry.ForRetries(opts.MaxRetries, opts.BackoffFactor, maxBackoff, log)
	c.retry.OnRetry = func(int, error, time.Duration) { c.retries.Add(1) }
	return c, nil
}

// BaseURL returns the server URL the client was created with
func (c *Client) BaseURL() string { return c.baseURL }

// Stats returns a snapshot of the request counters
func (c *Client) Stats() Stats {
	return Stats{
		Requests: c.requests.Load(),
		Retries:  c.retries.Load(),
		Failures: c.failures.Load(),
	}
}

// Get issues an authenticated GET with retries and returns the successful
// response with its body unread. The caller must close the body.
func (c *Client) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	resp, err := retry.DoWithResult(func() (*http.Response, error) {
		return c.attempt(ctx, rawURL, "*/*")
	}, c.retry.WithContext(ctx))
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}
	return resp, nil
}

// getJSON fetches rawURL and returns its body. Reading the body is part of
// the retried operation.
func (c *Client) getJSON(ctx context.Context, rawURL string) ([]byte, error) {
	body, err := retry.DoWithResult(func() ([]byte, error) {
		resp, err := c.attempt(ctx, rawURL, "application/json")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errs.Network(rawURL, fmt.Errorf("failed to read response body: %w", err))
		}
		return data, nil
	}, c.retry.WithContext(ctx))
	if err != nil {
		c.failures.Add(1)
		return nil, err
	}
	return body, nil
}

// attempt performs exactly one HTTP exchange
func (c *Client) attempt(ctx context.Context, rawURL, accept string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("failed to create request: %v", err),
			URL:     rawURL,
		}
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)

	c.requests.Add(1)
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.LogRequest(c.logger, req.Method, rawURL, 0, duration)
		return nil, errs.Network(rawURL, err)
	}

	logger.LogRequest(c.logger, req.Method, rawURL, resp.StatusCode, duration)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, errs.FromStatus(resp.StatusCode, rawURL)
	}

	return resp, nil
}

// ListIssues returns one page of issue references of board
func (c *Client) ListIssues(ctx context.Context, board string, startAt, maxResults int) (*SearchResponse, error) {
	searchURL := SearchURL(c.baseURL, board, startAt, maxResults)

	body, err := c.getJSON(ctx, searchURL)
	if err != nil {
		return nil, fmt.Errorf("list issues of %s at %d: %w", board, startAt, err)
	}

	var page SearchResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypeParsing,
			Message: fmt.Sprintf("failed to parse search response: %v", err),
			Code:    http.StatusOK,
			URL:     searchURL,
		}
	}

	c.logger.DebugWithFields("listed issues", map[string]interface{}{
		"board":    board,
		"start_at": startAt,
		"returned": len(page.Issues),
		"total":    page.Total,
	})
	return &page, nil
}

// Total returns the number of issues in board as reported by a one-item search
func (c *Client) Total(ctx context.Context, board string) (int, error) {
	page, err := c.ListIssues(ctx, board, 0, 1)
	if err != nil {
		return 0, err
	}
	return page.Total, nil
}

// FetchIssue retrieves the full issue document at its canonical URL
func (c *Client) FetchIssue(ctx context.Context, self string) (*Issue, error) {
	body, err := c.getJSON(ctx, self)
	if err != nil {
		return nil, fmt.Errorf("fetch issue %s: %w", self, err)
	}

	issue, err := ParseIssue(body)
	if err != nil {
		var apiErr *errs.Error
		if errors.As(err, &apiErr) {
			apiErr.URL = self
		}
		return nil, err
	}
	if issue.Self == "" {
		issue.Self = self
	}
	return issue, nil
}
