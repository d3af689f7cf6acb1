package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/oauth2"

	"jira-sync/models"
)

const defaultTimeout = 30 * time.Second

// Client is a thin HTTP client for the tracker REST API (v2 or v3).
// It is immutable once built.
type Client struct {
	baseURL    string
	apiVersion string
	authHeader string
	httpClient *http.Client
	maxRetries int
}

// Option customizes a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = d }
}

// WithMaxRetries sets how often a 429 response is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient creates an authenticated client. OAuth tokens are attached by an
// oauth2 transport; API token and basic credentials use a static header.
func NewClient(baseURL, apiVersion string, creds Credentials, opts ...Option) (*Client, error) {
	kind, err := creds.ResolveKind()
	if err != nil {
		return nil, err
	}

	c := newClient(baseURL, apiVersion, opts...)
	switch kind {
	case models.AuthKindOAuth:
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, c.httpClient)
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.AccessToken, TokenType: "Bearer"})
		tc := oauth2.NewClient(ctx, src)
		tc.Timeout = c.httpClient.Timeout
		c.httpClient = tc
	default:
		header, err := BuildAuthHeader(creds)
		if err != nil {
			return nil, err
		}
		c.authHeader = header
	}
	return c, nil
}

// NewAnonymousClient creates a client that sends no credentials.
func NewAnonymousClient(baseURL, apiVersion string, opts ...Option) *Client {
	return newClient(baseURL, apiVersion, opts...)
}

// NewClientForIntegration builds a client from a stored integration.
func NewClientForIntegration(in *models.Integration, opts ...Option) (*Client, error) {
	version := in.APIVersion
	if version == "" {
		version = APIVersionFor(in.DeploymentType)
	}
	return NewClient(in.BaseURL, version, CredentialsFrom(in), opts...)
}

func newClient(baseURL, apiVersion string, opts ...Option) *Client {
	if apiVersion == "" {
		apiVersion = "2"
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: defaultTimeout},
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// APIVersion returns "2" or "3".
func (c *Client) APIVersion() string { return c.apiVersion }

// BaseURL returns the normalized instance URL.
func (c *Client) BaseURL() string { return c.baseURL }

// ServerInfo fetches the instance metadata document.
func (c *Client) ServerInfo(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := c.do(ctx, http.MethodGet, c.api("/serverInfo"), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Myself returns the authenticated user.
func (c *Client) Myself(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, c.api("/myself"), nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetProjects lists the projects visible to the authenticated user.
func (c *Client) GetProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	if err := c.do(ctx, http.MethodGet, c.api("/project"), nil, &projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// GetIssue fetches one issue; a missing issue yields NOT_FOUND.
func (c *Client) GetIssue(ctx context.Context, key string) (*Issue, error) {
	var issue Issue
	path := c.api("/issue/" + url.PathEscape(key) + "?fields=summary,description,status,issuetype,project,updated")
	if err := c.do(ctx, http.MethodGet, path, nil, &issue); err != nil {
		return nil, notFoundAs(err, "issue "+key+" does not exist or is not visible")
	}
	return &issue, nil
}

// SearchIssues runs a JQL query.
func (c *Client) SearchIssues(ctx context.Context, jql string, maxResults int) (*SearchResponse, error) {
	if maxResults <= 0 {
		maxResults = 50
	}
	body := map[string]interface{}{
		"jql":        jql,
		"maxResults": maxResults,
		"fields":     []string{"summary", "status", "issuetype", "project"},
	}
	var res SearchResponse
	if err := c.do(ctx, http.MethodPost, c.api("/search"), body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// CreateIssue creates an issue and returns its key and id.
func (c *Client) CreateIssue(ctx context.Context, in CreateIssueInput) (*CreatedIssue, error) {
	fields := map[string]interface{}{
		"project":   map[string]string{"key": in.ProjectKey},
		"summary":   in.Summary,
		"issuetype": map[string]string{"name": in.IssueType},
	}
	if in.Description != "" {
		fields["description"] = c.richText(in.Description)
	}
	if in.ParentKey != "" {
		fields["parent"] = map[string]string{"key": in.ParentKey}
	}

	var created CreatedIssue
	if err := c.do(ctx, http.MethodPost, c.api("/issue"), map[string]interface{}{"fields": fields}, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateIssue edits summary/description and, when Status is set, moves the
// issue through the matching workflow transition.
func (c *Client) UpdateIssue(ctx context.Context, key string, upd IssueUpdate) error {
	fields := map[string]interface{}{}
	if upd.Summary != nil {
		fields["summary"] = *upd.Summary
	}
	if upd.Description != nil {
		fields["description"] = c.richText(*upd.Description)
	}

	if len(fields) > 0 {
		path := c.api("/issue/" + url.PathEscape(key))
		if err := c.do(ctx, http.MethodPut, path, map[string]interface{}{"fields": fields}, nil); err != nil {
			return notFoundAs(err, "issue "+key+" does not exist or is not visible")
		}
	}

	if upd.Status != nil && *upd.Status != "" {
		return c.TransitionIssue(ctx, key, *upd.Status)
	}
	return nil
}

// TransitionIssue moves an issue to the status whose transition (or target
// status) name matches targetStatus case-insensitively.
func (c *Client) TransitionIssue(ctx context.Context, key, targetStatus string) error {
	path := c.api("/issue/" + url.PathEscape(key) + "/transitions")

	var res TransitionsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &res); err != nil {
		return notFoundAs(err, "issue "+key+" does not exist or is not visible")
	}

	var match *Transition
	for i, t := range res.Transitions {
		if strings.EqualFold(t.Name, targetStatus) || strings.EqualFold(t.To.Name, targetStatus) {
			match = &res.Transitions[i]
			break
		}
	}
	if match == nil {
		names := make([]string, 0, len(res.Transitions))
		for _, t := range res.Transitions {
			names = append(names, t.Name)
		}
		e := Errorf(CodeInvalidTransition, "issue %s cannot move to %q", key, targetStatus)
		e.Details = "available transitions: " + strings.Join(names, ", ")
		return e
	}

	body := map[string]interface{}{"transition": map[string]string{"id": match.ID}}
	return c.do(ctx, http.MethodPost, path, body, nil)
}

// AddComment posts a comment on an issue.
func (c *Client) AddComment(ctx context.Context, key, text string) (*Comment, error) {
	path := c.api("/issue/" + url.PathEscape(key) + "/comment")
	var comment Comment
	if err := c.do(ctx, http.MethodPost, path, map[string]interface{}{"body": c.richText(text)}, &comment); err != nil {
		return nil, notFoundAs(err, "issue "+key+" does not exist or is not visible")
	}
	return &comment, nil
}

// GetIssueTypes lists the issue types available in a project.
func (c *Client) GetIssueTypes(ctx context.Context, projectKey string) ([]IssueType, error) {
	var p Project
	if err := c.do(ctx, http.MethodGet, c.api("/project/"+url.PathEscape(projectKey)), nil, &p); err != nil {
		return nil, notFoundAs(err, "project "+projectKey+" does not exist or is not visible")
	}
	return p.IssueTypes, nil
}

// CreateWebhook registers callbackURL for the given issue events.
func (c *Client) CreateWebhook(ctx context.Context, callbackURL string, events []string) (*WebhookRegistration, error) {
	body := map[string]interface{}{
		"url": callbackURL,
		"webhooks": []map[string]interface{}{
			{"events": events, "jqlFilter": "project IS NOT EMPTY"},
		},
	}
	var reg WebhookRegistration
	if err := c.do(ctx, http.MethodPost, c.api("/webhook"), body, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Probe performs an unauthenticated GET of the base URL. Any HTTP status
// proves reachability; only transport failures are returned.
func (c *Client) Probe(ctx context.Context) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return 0, invalidURL("URL could not be requested", c.baseURL)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, ClassifyTransportError(err, c.baseURL)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	return resp.StatusCode, nil
}

func (c *Client) api(path string) string {
	return "/rest/api/" + c.apiVersion + path
}

// richText encodes free text for the API version in use.
func (c *Client) richText(text string) interface{} {
	if c.apiVersion == "3" {
		return adfDocument(text)
	}
	return text
}

// do is the core HTTP method: it builds the request, attaches auth, retries
// 429 responses with backoff and maps failures onto the error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	for attempt := 0; ; attempt++ {
		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		if c.authHeader != "" {
			req.Header.Set("Authorization", c.authHeader)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return ClassifyTransportError(err, c.baseURL)
		}
		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return ClassifyTransportError(ctx.Err(), c.baseURL)
			case <-time.After(retryAfterDuration(resp, attempt)):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return statusError(resp.StatusCode, method, path, respBody)
		}

		if result == nil || resp.StatusCode == http.StatusNoContent || len(respBody) == 0 {
			return nil
		}
		if err := json.Unmarshal(respBody, result); err != nil {
			e := Errorf(CodeUnexpected, "unreadable response from %s %s", method, path)
			e.Err = err
			return e
		}
		return nil
	}
}

// statusError maps an HTTP status onto the error taxonomy.
func statusError(status int, method, path string, body []byte) *Error {
	upstream := UpstreamMessage(body)
	var e *Error
	switch status {
	case http.StatusUnauthorized:
		e = NewError(CodeAuthenticationFailed, "the tracker rejected the credentials")
	case http.StatusForbidden:
		e = NewError(CodeForbidden, "the account lacks permission for this operation")
	case http.StatusNotFound:
		e = Errorf(CodeAPINotFound, "%s %s was not found", method, path)
	case http.StatusMethodNotAllowed:
		e = Errorf(CodeMethodNotAllowed, "%s is not allowed on %s", method, path)
	default:
		e = Errorf(CodeHTTPError, "tracker returned %d on %s %s", status, method, path)
	}
	e.Details = upstream
	return e
}

// UpstreamMessage extracts the error text from a tracker error body.
func UpstreamMessage(body []byte) string {
	var er ErrorResponse
	if json.Unmarshal(body, &er) == nil && (len(er.ErrorMessages) > 0 || len(er.Errors) > 0) {
		parts := append([]string{}, er.ErrorMessages...)
		for field, msg := range er.Errors {
			parts = append(parts, field+": "+msg)
		}
		return strings.Join(parts, "; ")
	}
	s := strings.TrimSpace(string(body))
	if len(s) > 300 {
		s = s[:300] + "..."
	}
	return s
}

// ClassifyTransportError maps a network-level failure onto DNS_ERROR,
// CONNECTION_REFUSED, TIMEOUT or URL_UNREACHABLE.
func ClassifyTransportError(err error, target string) *Error {
	var (
		e      *Error
		dnsErr *net.DNSError
		netErr net.Error
	)
	switch {
	case errors.As(err, &dnsErr):
		e = Errorf(CodeDNSError, "host %s could not be resolved", hostOf(target))
		e.Solution = "Check the URL for typos and that the host is resolvable from this server."
	case errors.Is(err, syscall.ECONNREFUSED):
		e = Errorf(CodeConnectionRefused, "%s refused the connection", hostOf(target))
		e.Solution = "Check the port and that the tracker is running and accepts connections from this server."
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded),
		errors.As(err, &netErr) && netErr.Timeout():
		e = Errorf(CodeTimeout, "%s did not respond in time", hostOf(target))
		e.Solution = "Check firewalls and proxies between this server and the tracker, then retry."
	default:
		e = Errorf(CodeURLUnreachable, "%s is unreachable", target)
		e.Solution = "Check the URL and network connectivity, then retry."
	}
	e.Details = err.Error()
	e.Err = err
	return e
}

func notFoundAs(err error, msg string) error {
	if e, ok := AsError(err); ok && e.Code == CodeAPINotFound {
		nf := NewError(CodeNotFound, msg)
		nf.Details = e.Details
		return nf
	}
	return err
}

// retryAfterDuration reads Retry-After and falls back to exponential backoff.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if header := resp.Header.Get("Retry-After"); header != "" {
		if seconds, err := strconv.Atoi(header); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	backoff := time.Duration(1<<uint(attempt)) * time.Second
	if backoff > 30*time.Second {
		backoff = 30 * time.Second
	}
	return backoff
}
