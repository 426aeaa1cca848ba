package atlassian

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/common"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
	"github.com/ternarybob/jiralink/internal/services/events"
	"github.com/ternarybob/jiralink/internal/services/kv"
	"github.com/ternarybob/jiralink/internal/storage/badger"
)

const testCloudID = "cloud-1"

type fakeIssue struct {
	ID          string
	Key         string
	Summary     string
	Description interface{}
	Status      models.JiraStatus
	IssueType   string
	Priority    string
	Assignee    string
}

func (i *fakeIssue) raw() map[string]interface{} {
	fields := map[string]interface{}{
		"summary":     i.Summary,
		"description": i.Description,
		"status": map[string]interface{}{
			"id":             i.Status.ID,
			"name":           i.Status.Name,
			"statusCategory": map[string]string{"key": i.Status.Category},
		},
		"issuetype": map[string]string{"name": i.IssueType},
		"labels":    []string{},
		"created":   "2025-01-01T10:00:00.000+0000",
	}
	if i.Priority != "" {
		fields["priority"] = map[string]string{"name": i.Priority}
	}
	if i.Assignee != "" {
		fields["assignee"] = map[string]string{"displayName": i.Assignee}
	}
	return map[string]interface{}{"id": i.ID, "key": i.Key, "fields": fields}
}

// fakeAtlassian serves the OAuth endpoints and the Jira REST API from memory
type fakeAtlassian struct {
	t      *testing.T
	server *httptest.Server
	mu     sync.Mutex

	issues      []*fakeIssue // newest first
	transitions map[string][]models.JiraTransition
	statuses    []models.JiraStatus
	resources   []models.AccessibleResource

	exchangeExpiresIn int
	refreshStatus     int

	exchangeCalls int
	refreshCalls  int
	searchCalls   int
	applied       []string
	failApply     bool
	failSearch    bool
}

var (
	statusTodo       = models.JiraStatus{ID: "1", Name: "To Do", Category: "new"}
	statusInProgress = models.JiraStatus{ID: "3", Name: "In Progress", Category: "indeterminate"}
	statusInReview   = models.JiraStatus{ID: "4", Name: "In Review", Category: "indeterminate"}
	statusDone       = models.JiraStatus{ID: "5", Name: "Done", Category: "done"}
)

func newFakeAtlassian(t *testing.T) *fakeAtlassian {
	f := &fakeAtlassian{
		t:           t,
		transitions: make(map[string][]models.JiraTransition),
		statuses:    []models.JiraStatus{statusTodo, statusInProgress, statusInReview, statusDone},
		resources: []models.AccessibleResource{
			{ID: testCloudID, URL: "https://example.atlassian.net", Name: "example", Scopes: []string{"read:jira-work", "write:jira-work"}},
		},
		exchangeExpiresIn: 3600,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", f.handleToken)
	mux.HandleFunc("GET /oauth/token/accessible-resources", f.handleResources)
	mux.HandleFunc("GET /ex/jira/{cloud}/rest/api/3/project", f.handleProjects)
	mux.HandleFunc("GET /ex/jira/{cloud}/rest/api/3/project/{key}/statuses", f.handleStatuses)
	mux.HandleFunc("POST /ex/jira/{cloud}/rest/api/3/search", f.handleSearch)
	mux.HandleFunc("GET /ex/jira/{cloud}/rest/api/3/issue/{key}", f.handleIssue)
	mux.HandleFunc("GET /ex/jira/{cloud}/rest/api/3/issue/{key}/transitions", f.handleListTransitions)
	mux.HandleFunc("POST /ex/jira/{cloud}/rest/api/3/issue/{key}/transitions", f.handleApplyTransition)

	f.server = httptest.NewServer(f.requireBearer(mux))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAtlassian) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/ex/jira/") || strings.HasSuffix(r.URL.Path, "accessible-resources") {
			if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
				http.Error(w, `{"message":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (f *fakeAtlassian) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		f.exchangeCalls++
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token":  "access-1",
			"refresh_token": "refresh-1",
			"token_type":    "Bearer",
			"expires_in":    f.exchangeExpiresIn,
		})
	case "refresh_token":
		f.refreshCalls++
		if f.refreshStatus != 0 {
			writeJSON(w, f.refreshStatus, map[string]string{"error": "invalid_grant"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"access_token":  fmt.Sprintf("access-refreshed-%d", f.refreshCalls),
			"refresh_token": "refresh-2",
			"token_type":    "Bearer",
			"expires_in":    3600,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
	}
}

func (f *fakeAtlassian) handleResources(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	writeJSON(w, http.StatusOK, f.resources)
}

func (f *fakeAtlassian) handleProjects(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []models.JiraProject{{ID: "10000", Key: "ABC", Name: "Alphabet"}})
}

func (f *fakeAtlassian) handleStatuses(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	raw := func(statuses []models.JiraStatus) []map[string]interface{} {
		out := make([]map[string]interface{}, 0, len(statuses))
		for _, s := range statuses {
			out = append(out, map[string]interface{}{
				"id": s.ID, "name": s.Name, "statusCategory": map[string]string{"key": s.Category},
			})
		}
		return out
	}

	// Two issue types sharing most statuses
	writeJSON(w, http.StatusOK, []map[string]interface{}{
		{"name": "Story", "statuses": raw(f.statuses)},
		{"name": "Bug", "statuses": raw(f.statuses[:2])},
	})
}

func (f *fakeAtlassian) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		JQL           string   `json:"jql"`
		StartAt       int      `json:"startAt"`
		MaxResults    int      `json:"maxResults"`
		Fields        []string `json:"fields"`
		ValidateQuery string   `json:"validateQuery"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls++

	if f.failSearch {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "search unavailable"})
		return
	}

	matched := f.issues
	if strings.HasPrefix(req.JQL, "key in (") {
		keys := strings.Split(strings.TrimSuffix(strings.TrimPrefix(req.JQL, "key in ("), ")"), ",")
		want := make(map[string]bool)
		for _, k := range keys {
			key := strings.Trim(strings.TrimSpace(k), `"`)
			// Like Jira, strict validation rejects the whole query for one unknown key
			if req.ValidateQuery != "warn" && f.findIssue(key) == nil {
				writeJSON(w, http.StatusBadRequest, map[string]interface{}{
					"errorMessages": []string{fmt.Sprintf("An issue with key '%s' does not exist for field 'key'.", key)},
				})
				return
			}
			want[key] = true
		}
		matched = nil
		for _, issue := range f.issues {
			if want[issue.Key] {
				matched = append(matched, issue)
			}
		}
	}

	end := req.StartAt + req.MaxResults
	if end > len(matched) {
		end = len(matched)
	}
	page := []map[string]interface{}{}
	if req.StartAt < len(matched) {
		for _, issue := range matched[req.StartAt:end] {
			page = append(page, issue.raw())
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":      len(matched),
		"startAt":    req.StartAt,
		"maxResults": req.MaxResults,
		"issues":     page,
	})
}

func (f *fakeAtlassian) findIssue(key string) *fakeIssue {
	for _, issue := range f.issues {
		if issue.Key == key {
			return issue
		}
	}
	return nil
}

func (f *fakeAtlassian) handleIssue(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	issue := f.findIssue(r.PathValue("key"))
	if issue == nil {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"errorMessages": []string{"Issue does not exist"}})
		return
	}
	writeJSON(w, http.StatusOK, issue.raw())
}

func (f *fakeAtlassian) handleListTransitions(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := []map[string]interface{}{}
	for _, t := range f.transitions[r.PathValue("key")] {
		out = append(out, map[string]interface{}{
			"id":   t.ID,
			"name": t.Name,
			"to": map[string]interface{}{
				"id": t.To.ID, "name": t.To.Name, "statusCategory": map[string]string{"key": t.To.Category},
			},
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"transitions": out})
}

func (f *fakeAtlassian) handleApplyTransition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Transition struct {
			ID string `json:"id"`
		} `json:"transition"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	key := r.PathValue("key")
	if f.failApply {
		writeJSON(w, http.StatusConflict, map[string]interface{}{"errorMessages": []string{"workflow validator failed"}})
		return
	}
	for _, t := range f.transitions[key] {
		if t.ID == req.Transition.ID {
			f.applied = append(f.applied, key+":"+t.ID)
			if issue := f.findIssue(key); issue != nil {
				issue.Status = t.To
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{"errorMessages": []string{"invalid transition"}})
}

func (f *fakeAtlassian) addIssue(key string, status models.JiraStatus) *fakeIssue {
	f.mu.Lock()
	defer f.mu.Unlock()

	issue := &fakeIssue{
		ID:        fmt.Sprintf("1%04d", len(f.issues)+1),
		Key:       key,
		Summary:   "Summary of " + key,
		Status:    status,
		IssueType: "Story",
		Priority:  "High",
	}
	f.issues = append(f.issues, issue)
	return issue
}

func (f *fakeAtlassian) setStatus(key string, status models.JiraStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.findIssue(key).Status = status
}

func (f *fakeAtlassian) statusOf(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.findIssue(key).Status.Name
}

func (f *fakeAtlassian) counts() (exchange, refresh int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exchangeCalls, f.refreshCalls
}

// testEnv is a connector wired to an in-memory store and the fake Atlassian server
type testEnv struct {
	fake      *fakeAtlassian
	kv        *kv.Service
	tasks     interfaces.TaskStore
	events    interfaces.EventService
	connector *Connector
	logger    arbor.ILogger
}

func newTestEnv(t *testing.T, credOpts ...CredentialOption) *testEnv {
	t.Helper()

	logger := arbor.NewLogger()
	storage, err := badger.NewManager(logger, &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { storage.Close() })

	cipher, err := NewTokenCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	fake := newFakeAtlassian(t)
	store := kv.NewService(storage.KeyValueStorage(), logger)
	eventService := events.NewService(logger)

	opts := ConnectorOptions{
		Credential: append([]CredentialOption{
			WithOAuthEndpoints(
				fake.server.URL+"/authorize",
				fake.server.URL+"/oauth/token",
				fake.server.URL+"/oauth/token/accessible-resources",
			),
		}, credOpts...),
		Client: []ClientOption{
			WithBaseURL(fake.server.URL),
			WithRateLimit(1000),
		},
	}

	return &testEnv{
		fake:      fake,
		kv:        store,
		tasks:     storage.TaskStorage(),
		events:    eventService,
		connector: NewConnector(store, storage.TaskStorage(), eventService, cipher, logger, opts),
		logger:    logger,
	}
}

func (e *testEnv) saveSettings(t *testing.T) {
	t.Helper()
	require.NoError(t, e.connector.Credentials().SaveSettings(context.Background(), &models.OAuthSettings{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "http://localhost:8085/oauth/callback",
	}))
}

// authorize runs the consent URL step and returns the persisted state
func (e *testEnv) authorize(t *testing.T) string {
	t.Helper()
	authURL, err := e.connector.Credentials().BuildAuthorizationURL(context.Background())
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	return parsed.Query().Get("state")
}

func (e *testEnv) connect(t *testing.T) {
	t.Helper()
	e.saveSettings(t)
	state := e.authorize(t)
	_, err := e.connector.Credentials().CompleteAuthorization(context.Background(), "auth-code", state)
	require.NoError(t, err)
}

// defaultRules maps every board column used in tests
func defaultRules() []models.StatusRule {
	return []models.StatusRule{
		{RemoteStatusID: statusTodo.ID, RemoteStatusName: statusTodo.Name, RemoteCategory: "new", LocalColumn: "todo"},
		{RemoteStatusID: statusInProgress.ID, RemoteStatusName: statusInProgress.Name, RemoteCategory: "indeterminate", LocalColumn: "doing"},
		{RemoteStatusID: statusInReview.ID, RemoteStatusName: statusInReview.Name, RemoteCategory: "indeterminate", LocalColumn: "review"},
		{RemoteStatusID: statusDone.ID, RemoteStatusName: statusDone.Name, RemoteCategory: "done", LocalColumn: "done"},
	}
}

func (e *testEnv) saveConfig(t *testing.T, mutate func(c *models.SyncConfig)) {
	t.Helper()
	config := models.DefaultSyncConfig()
	config.ProjectKey = "ABC"
	config.StatusRules = defaultRules()
	if mutate != nil {
		mutate(config)
	}
	require.NoError(t, e.connector.Sync().SaveConfig(context.Background(), config))
}

// createMappedTask creates a local task linked to key with the given stored remote status
func (e *testEnv) createMappedTask(t *testing.T, key, column, remoteStatus string) *models.Task {
	t.Helper()
	ctx := context.Background()
	task, err := e.tasks.CreateTask(ctx, &models.TaskDraft{Title: "[" + key + "] task", Status: column})
	require.NoError(t, err)
	require.NoError(t, e.connector.mappings.Put(ctx, &models.Mapping{
		LocalID:      task.ID,
		RemoteKey:    key,
		RemoteID:     "id-" + key,
		RemoteStatus: remoteStatus,
		Direction:    models.DirectionImport,
	}))
	return task
}
