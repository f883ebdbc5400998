package github

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cli/go-gh/v2/pkg/api"
	"github.com/cli/go-gh/v2/pkg/auth"

	"speculum/internal/config"
	"speculum/internal/services"
	"speculum/internal/tracker"
)

const defaultHost = "github.com"

// Options configures a Client.
type Options struct {
	Repository string
	Host       string
	Token      string
	Timeout    time.Duration
	// Transport overrides the HTTP transport.
	Transport http.RoundTripper
}

// Client talks to one repository's issues.
type Client struct {
	rest  *api.RESTClient
	owner string
	repo  string
}

var _ tracker.Tracker = (*Client)(nil)

// NewFromConfig builds a client from the [tracker] section.
func NewFromConfig(cfg *config.Config) (*Client, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "github", "init", "config is nil", nil)
	}
	return New(Options{
		Repository: cfg.Tracker.Repository,
		Host:       cfg.Tracker.Host,
		Token:      cfg.Tracker.Token,
		Timeout:    cfg.TrackerTimeout(),
	})
}

// New constructs a client. An empty token falls back to the gh CLI login for
// the host.
func New(opts Options) (*Client, error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(opts.Repository), "/")
	if !ok || owner == "" || repo == "" {
		return nil, services.WithHint(
			services.Wrap(services.ErrConfiguration, "github", "init", fmt.Sprintf("repository %q must be owner/name", opts.Repository), nil),
			"set tracker.repository in config.toml",
		)
	}
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = defaultHost
	}
	token := strings.TrimSpace(opts.Token)
	if token == "" {
		token, _ = auth.TokenForHost(host)
	}
	if token == "" {
		return nil, services.WithHint(
			services.Wrap(services.ErrConfiguration, "github", "init", "no GitHub token available", nil),
			"set GH_TOKEN, tracker.token, or run gh auth login",
		)
	}
	rest, err := api.NewRESTClient(api.ClientOptions{
		Host:      host,
		AuthToken: token,
		Timeout:   opts.Timeout,
		Transport: opts.Transport,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "github", "init", "create REST client", err)
	}
	return &Client{rest: rest, owner: owner, repo: repo}, nil
}

type issuePayload struct {
	Number  int    `json:"number"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	State   string `json:"state"`
	HTMLURL string `json:"html_url"`
	Labels  []struct {
		Name string `json:"name"`
	} `json:"labels"`
	Assignees []struct {
		Login string `json:"login"`
	} `json:"assignees"`
}

// GetIssue fetches one issue.
func (c *Client) GetIssue(ctx context.Context, number int) (tracker.Issue, error) {
	var payload issuePayload
	if err := c.do(ctx, "get issue", http.MethodGet, c.issuePath(number, ""), nil, &payload); err != nil {
		return tracker.Issue{}, err
	}
	issue := tracker.Issue{
		Number: payload.Number,
		Title:  payload.Title,
		Body:   payload.Body,
		State:  payload.State,
		URL:    payload.HTMLURL,
	}
	for _, l := range payload.Labels {
		issue.Labels = append(issue.Labels, l.Name)
	}
	for _, a := range payload.Assignees {
		issue.Assignees = append(issue.Assignees, a.Login)
	}
	return issue, nil
}

// AddLabels adds labels to an issue.
func (c *Client) AddLabels(ctx context.Context, number int, labels ...string) error {
	labels = compact(labels)
	if len(labels) == 0 {
		return nil
	}
	return c.do(ctx, "add labels", http.MethodPost, c.issuePath(number, "/labels"), map[string]any{"labels": labels}, nil)
}

// RemoveLabels removes labels one by one; labels that are not present are ignored.
func (c *Client) RemoveLabels(ctx context.Context, number int, labels ...string) error {
	for _, label := range compact(labels) {
		err := c.do(ctx, "remove label", http.MethodDelete, c.issuePath(number, "/labels/"+url.PathEscape(label)), nil, nil)
		if err != nil && !errors.Is(err, services.ErrNotFound) {
			return err
		}
	}
	return nil
}

// Comment posts a comment.
func (c *Client) Comment(ctx context.Context, number int, body string) error {
	return c.do(ctx, "comment", http.MethodPost, c.issuePath(number, "/comments"), map[string]any{"body": body}, nil)
}

// EditBody replaces the issue body.
func (c *Client) EditBody(ctx context.Context, number int, body string) error {
	return c.do(ctx, "edit body", http.MethodPatch, c.issuePath(number, ""), map[string]any{"body": body}, nil)
}

// Assign adds assignees.
func (c *Client) Assign(ctx context.Context, number int, logins ...string) error {
	logins = compact(logins)
	if len(logins) == 0 {
		return nil
	}
	return c.do(ctx, "assign", http.MethodPost, c.issuePath(number, "/assignees"), map[string]any{"assignees": logins}, nil)
}

// Unassign removes assignees.
func (c *Client) Unassign(ctx context.Context, number int, logins ...string) error {
	logins = compact(logins)
	if len(logins) == 0 {
		return nil
	}
	return c.do(ctx, "unassign", http.MethodDelete, c.issuePath(number, "/assignees"), map[string]any{"assignees": logins}, nil)
}

func (c *Client) issuePath(number int, suffix string) string {
	return fmt.Sprintf("repos/%s/%s/issues/%d%s", url.PathEscape(c.owner), url.PathEscape(c.repo), number, suffix)
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return services.Wrap(services.ErrValidation, "github", op, "encode request", err)
		}
		reader = bytes.NewReader(payload)
	}
	if err := c.rest.DoWithContext(ctx, method, path, reader, out); err != nil {
		return classify(op, err)
	}
	return nil
}

func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "github", op, "request timed out", err)
	}
	var httpErr *api.HTTPError
	if !errors.As(err, &httpErr) {
		return services.Wrap(services.ErrTransient, "github", op, "request failed", err)
	}
	status := httpErr.StatusCode
	switch {
	case status == http.StatusNotFound:
		return services.Wrap(services.ErrNotFound, "github", op, "", err)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return services.WithHint(services.Wrap(services.ErrConfiguration, "github", op, "access denied", err),
			"check the token scopes include repo access")
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		return services.Wrap(services.ErrValidation, "github", op, "request rejected", err)
	case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
		return services.Wrap(services.ErrTransient, "github", op, fmt.Sprintf("status %d", status), err)
	default:
		return services.Wrap(services.ErrExecution, "github", op, fmt.Sprintf("status %d", status), err)
	}
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
