package atlassian

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/models"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout is the default HTTP timeout
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is the default rate limit (requests per second)
	DefaultRateLimit = 5

	// DefaultPageSize is the search page size used by bulk fetches
	DefaultPageSize = 100
)

// DefaultSearchFields are the issue fields requested by searches
var DefaultSearchFields = []string{
	"summary", "description", "status", "issuetype", "priority", "assignee", "labels", "created", "updated",
}

// TokenProvider resolves the bearer token and target site for API calls
type TokenProvider interface {
	GetAccessToken(ctx context.Context) (string, error)
	CloudID(ctx context.Context) (string, error)
}

// Client is the authenticated Jira Cloud REST client
type Client struct {
	tokens     TokenProvider
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	pageSize   int
	logger     arbor.ILogger
}

// ClientOption configures the Client
type ClientOption func(*Client)

// WithBaseURL sets a custom API gateway URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRateLimit sets a custom rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		if requestsPerSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
		}
	}
}

// WithPageSize sets the page size used by ListAllProjectIssues
func WithPageSize(pageSize int) ClientOption {
	return func(c *Client) {
		if pageSize > 0 {
			c.pageSize = pageSize
		}
	}
}

// NewClient creates a new Jira REST client
func NewClient(tokens TokenProvider, logger arbor.ILogger, opts ...ClientOption) *Client {
	c := &Client{
		tokens:  tokens,
		baseURL: DefaultAPIBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:  rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		pageSize: DefaultPageSize,
		logger:   logger,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// request is the single authenticated primitive all API calls go through
func (c *Client) request(ctx context.Context, method, endpoint string, body, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	token, err := c.tokens.GetAccessToken(ctx)
	if err != nil {
		return err
	}
	cloudID, err := c.tokens.CloudID(ctx)
	if err != nil {
		return err
	}

	reqURL := fmt.Sprintf("%s/ex/jira/%s/rest/api/3%s", c.baseURL, cloudID, endpoint)

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().
		Str("method", method).
		Str("endpoint", endpoint).
		Msg("Jira API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(resp.Body)
		apiErr := &RemoteAPIError{
			Status:   resp.StatusCode,
			Body:     string(respBody),
			Endpoint: endpoint,
		}
		c.logger.Warn().
			Int("status", resp.StatusCode).
			Str("endpoint", endpoint).
			Msg("Jira API error response")
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// ListProjects returns the projects visible to the connected user
func (c *Client) ListProjects(ctx context.Context) ([]*models.JiraProject, error) {
	var projects []*models.JiraProject
	if err := c.request(ctx, http.MethodGet, "/project", nil, &projects); err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	return projects, nil
}

type rawStatus struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	StatusCategory struct {
		Key string `json:"key"`
	} `json:"statusCategory"`
}

func (s rawStatus) normalize() models.JiraStatus {
	return models.JiraStatus{ID: s.ID, Name: s.Name, Category: s.StatusCategory.Key}
}

// ListProjectStatuses returns the project's statuses across all issue types, de-duplicated by id
func (c *Client) ListProjectStatuses(ctx context.Context, projectKey string) ([]*models.JiraStatus, error) {
	var issueTypes []struct {
		Name     string      `json:"name"`
		Statuses []rawStatus `json:"statuses"`
	}
	endpoint := fmt.Sprintf("/project/%s/statuses", url.PathEscape(projectKey))
	if err := c.request(ctx, http.MethodGet, endpoint, nil, &issueTypes); err != nil {
		return nil, fmt.Errorf("failed to list statuses for %s: %w", projectKey, err)
	}

	seen := make(map[string]bool)
	statuses := make([]*models.JiraStatus, 0)
	for _, issueType := range issueTypes {
		for _, raw := range issueType.Statuses {
			if seen[raw.ID] {
				continue
			}
			seen[raw.ID] = true
			status := raw.normalize()
			statuses = append(statuses, &status)
		}
	}
	return statuses, nil
}

// SearchOptions selects one page of a search
type SearchOptions struct {
	Offset   int
	PageSize int
	Fields   []string
	// ValidateQuery is Jira's validateQuery mode ("strict", "warn", "none"); empty keeps the server default
	ValidateQuery string
}

type rawIssue struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Fields struct {
		Summary     string          `json:"summary"`
		Description json.RawMessage `json:"description"`
		Status      rawStatus       `json:"status"`
		IssueType   *struct {
			Name string `json:"name"`
		} `json:"issuetype"`
		Priority *struct {
			Name string `json:"name"`
		} `json:"priority"`
		Assignee *struct {
			DisplayName string `json:"displayName"`
		} `json:"assignee"`
		Labels  []string `json:"labels"`
		Created string   `json:"created"`
		Updated string   `json:"updated"`
	} `json:"fields"`
}

func (r *rawIssue) normalize() *models.JiraIssue {
	issue := &models.JiraIssue{
		ID:          r.ID,
		Key:         r.Key,
		Summary:     r.Fields.Summary,
		Description: descriptionText(r.Fields.Description),
		Status:      r.Fields.Status.normalize(),
		Labels:      r.Fields.Labels,
		Created:     r.Fields.Created,
		Updated:     r.Fields.Updated,
	}
	if r.Fields.IssueType != nil {
		issue.IssueType = r.Fields.IssueType.Name
	}
	if r.Fields.Priority != nil {
		issue.Priority = r.Fields.Priority.Name
	}
	if r.Fields.Assignee != nil {
		issue.Assignee = r.Fields.Assignee.DisplayName
	}
	return issue
}

// SearchIssues runs one page of a JQL search and normalizes the returned issues
func (c *Client) SearchIssues(ctx context.Context, jql string, opts SearchOptions) (*models.SearchResult, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = c.pageSize
	}
	if len(opts.Fields) == 0 {
		opts.Fields = DefaultSearchFields
	}

	body := map[string]interface{}{
		"jql":        jql,
		"startAt":    opts.Offset,
		"maxResults": opts.PageSize,
		"fields":     opts.Fields,
	}
	if opts.ValidateQuery != "" {
		body["validateQuery"] = opts.ValidateQuery
	}

	var resp struct {
		Total      int         `json:"total"`
		StartAt    int         `json:"startAt"`
		MaxResults int         `json:"maxResults"`
		Issues     []*rawIssue `json:"issues"`
	}
	if err := c.request(ctx, http.MethodPost, "/search", body, &resp); err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	result := &models.SearchResult{
		Total:    resp.Total,
		Offset:   resp.StartAt,
		PageSize: resp.MaxResults,
		Issues:   make([]*models.JiraIssue, 0, len(resp.Issues)),
	}
	for _, raw := range resp.Issues {
		result.Issues = append(result.Issues, raw.normalize())
	}
	return result, nil
}

// jqlString quotes a value as a JQL string literal
func jqlString(value string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value) + `"`
}

// ProjectJQL builds the query used by imports, newest first
func ProjectJQL(projectKey, extraFilter string) string {
	jql := "project = " + jqlString(projectKey)
	if filter := strings.TrimSpace(extraFilter); filter != "" {
		jql = fmt.Sprintf("%s AND (%s)", jql, filter)
	}
	return jql + " ORDER BY created DESC"
}

// ListAllProjectIssues pages through every issue of a project until the reported total is reached
func (c *Client) ListAllProjectIssues(ctx context.Context, projectKey, extraFilter string) ([]*models.JiraIssue, error) {
	jql := ProjectJQL(projectKey, extraFilter)

	var issues []*models.JiraIssue
	offset := 0
	for {
		page, err := c.SearchIssues(ctx, jql, SearchOptions{Offset: offset, PageSize: c.pageSize})
		if err != nil {
			return nil, err
		}
		if len(page.Issues) == 0 {
			break
		}

		issues = append(issues, page.Issues...)
		offset += len(page.Issues)

		if len(issues) >= page.Total {
			break
		}
	}

	c.logger.Debug().
		Str("project", projectKey).
		Int("count", len(issues)).
		Msg("Fetched project issues")

	return issues, nil
}

// SearchIssuesByKeys fetches the given issues, batching keys into pages.
// Keys that no longer exist are dropped from the result rather than failing the batch.
func (c *Client) SearchIssuesByKeys(ctx context.Context, keys []string) ([]*models.JiraIssue, error) {
	var issues []*models.JiraIssue
	for start := 0; start < len(keys); start += c.pageSize {
		end := start + c.pageSize
		if end > len(keys) {
			end = len(keys)
		}
		batch := keys[start:end]

		quoted := make([]string, len(batch))
		for i, key := range batch {
			quoted[i] = jqlString(key)
		}

		jql := fmt.Sprintf("key in (%s)", strings.Join(quoted, ","))
		page, err := c.SearchIssues(ctx, jql, SearchOptions{PageSize: len(batch), ValidateQuery: "warn"})
		if err != nil {
			return nil, err
		}
		issues = append(issues, page.Issues...)
	}
	return issues, nil
}

// GetIssue fetches a single issue by key
func (c *Client) GetIssue(ctx context.Context, key string) (*models.JiraIssue, error) {
	var raw rawIssue
	endpoint := fmt.Sprintf("/issue/%s?fields=%s", url.PathEscape(key), strings.Join(DefaultSearchFields, ","))
	if err := c.request(ctx, http.MethodGet, endpoint, nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", key, err)
	}
	return raw.normalize(), nil
}

// ListTransitions returns the workflow transitions currently legal for an issue
func (c *Client) ListTransitions(ctx context.Context, issueKey string) ([]*models.JiraTransition, error) {
	var resp struct {
		Transitions []struct {
			ID   string    `json:"id"`
			Name string    `json:"name"`
			To   rawStatus `json:"to"`
		} `json:"transitions"`
	}
	endpoint := fmt.Sprintf("/issue/%s/transitions", url.PathEscape(issueKey))
	if err := c.request(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("failed to list transitions for %s: %w", issueKey, err)
	}

	transitions := make([]*models.JiraTransition, 0, len(resp.Transitions))
	for _, t := range resp.Transitions {
		transitions = append(transitions, &models.JiraTransition{ID: t.ID, Name: t.Name, To: t.To.normalize()})
	}
	return transitions, nil
}

// ApplyTransition moves an issue through a transition. Illegal ids fail remotely.
func (c *Client) ApplyTransition(ctx context.Context, issueKey, transitionID string) error {
	body := map[string]interface{}{
		"transition": map[string]string{"id": transitionID},
	}
	endpoint := fmt.Sprintf("/issue/%s/transitions", url.PathEscape(issueKey))
	if err := c.request(ctx, http.MethodPost, endpoint, body, nil); err != nil {
		return fmt.Errorf("failed to transition %s: %w", issueKey, err)
	}
	return nil
}
