package ticket

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/NotEclipsed/jira-dashboard/internal/logging"
)

const (
	defaultTimeout = 10 * time.Second
	maxBodyLog     = 512
	maxBodyRead    = 4 << 20
)

var issueFields = []string{"summary", "status", "assignee", "priority", "updated"}

// UpstreamError describes a failed tracker call. Its message never includes
// the upstream response body.
type UpstreamError struct {
	Op         string
	StatusCode int
	Timeout    bool
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.Timeout:
		return fmt.Sprintf("tracker %s: timed out", e.Op)
	case e.StatusCode != 0:
		return fmt.Sprintf("tracker %s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("tracker %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("tracker %s: failed", e.Op)
	}
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

type ClientConfig struct {
	BaseURL  string
	Email    string
	APIToken string
	// Timeout bounds each call including the wait for a rate-limit slot.
	Timeout time.Duration
	// RPS caps requests per second to the tracker. Zero disables throttling.
	RPS        float64
	HTTPClient *http.Client
	Logger     logging.Logger
}

// Client talks to the Jira REST API v2 with basic auth (email + API token).
type Client struct {
	baseURL  string
	email    string
	apiToken string
	timeout  time.Duration
	http     *http.Client
	limiter  *rate.Limiter
	log      logging.Logger
}

func NewClient(cfg ClientConfig) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RPS > 0 {
		burst := int(cfg.RPS)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Client{
		baseURL:  cfg.BaseURL,
		email:    cfg.Email,
		apiToken: cfg.APIToken,
		timeout:  timeout,
		http:     httpClient,
		limiter:  limiter,
		log:      log.With("component", "tracker"),
	}
}

func (c *Client) GetIssue(ctx context.Context, key string) (*TicketSummary, error) {
	var issue jiraIssue
	q := url.Values{"fields": {strings.Join(issueFields, ",")}}
	if err := c.do(ctx, "GetIssue", http.MethodGet, "/rest/api/2/issue/"+url.PathEscape(key)+"?"+q.Encode(), nil, &issue); err != nil {
		return nil, err
	}
	summary := issue.summary()
	return &summary, nil
}

func (c *Client) Search(ctx context.Context, jql string, maxResults int) (*SearchResult, error) {
	req := map[string]any{
		"jql":        jql,
		"maxResults": maxResults,
		"fields":     issueFields,
	}
	var res jiraSearch
	if err := c.do(ctx, "Search", http.MethodPost, "/rest/api/2/search", req, &res); err != nil {
		return nil, err
	}
	out := &SearchResult{Total: res.Total, Issues: make([]TicketSummary, 0, len(res.Issues))}
	for _, issue := range res.Issues {
		out.Issues = append(out.Issues, issue.summary())
	}
	return out, nil
}

func (c *Client) AddComment(ctx context.Context, key, body string) (*Comment, error) {
	var created jiraComment
	path := "/rest/api/2/issue/" + url.PathEscape(key) + "/comment"
	if err := c.do(ctx, "AddComment", http.MethodPost, path, map[string]string{"body": body}, &created); err != nil {
		return nil, err
	}
	comment := created.comment()
	return &comment, nil
}

func (c *Client) Transition(ctx context.Context, key string, transitionID int) error {
	path := "/rest/api/2/issue/" + url.PathEscape(key) + "/transitions"
	req := map[string]any{"transition": map[string]string{"id": strconv.Itoa(transitionID)}}
	return c.do(ctx, "Transition", http.MethodPost, path, req, nil)
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.limiter.Wait(ctx); err != nil {
		return &UpstreamError{Op: op, Timeout: true, Err: err}
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return &UpstreamError{Op: op, Err: err}
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.email != "" || c.apiToken != "" {
		req.SetBasicAuth(c.email, c.apiToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		timeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
		c.log.Warn(ctx, "tracker request failed", "op", op, "timeout", timeout, "error", err.Error())
		return &UpstreamError{Op: op, Timeout: timeout, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyRead))
	if err != nil {
		timeout := errors.Is(ctx.Err(), context.DeadlineExceeded)
		return &UpstreamError{Op: op, Timeout: timeout, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.log.Warn(ctx, "tracker returned error status",
			"op", op,
			"status", resp.StatusCode,
			"duration_ms", time.Since(start).Milliseconds(),
			"body", truncate(raw, maxBodyLog),
		)
		return &UpstreamError{Op: op, StatusCode: resp.StatusCode}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		c.log.Warn(ctx, "tracker returned malformed JSON", "op", op, "body", truncate(raw, maxBodyLog))
		return &UpstreamError{Op: op, Err: errors.New("malformed response")}
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}
