package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/app"
	"github.com/ternarybob/jiralink/internal/common"
	"github.com/ternarybob/jiralink/internal/models"
)

func newTestServer(t *testing.T, mutate ...func(cfg *common.Config)) *httptest.Server {
	t.Helper()

	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.InMemory = true
	cfg.Security.TokenKeyFile = filepath.Join(t.TempDir(), "token.key")
	cfg.Sync.AutoStart = false
	for _, m := range mutate {
		m(cfg)
	}

	application, err := app.New(cfg, arbor.NewLogger())
	require.NoError(t, err)
	t.Cleanup(func() { application.Close() })

	srv := httptest.NewServer(New(application).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func TestRoutes_SystemEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/does-not-exist")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/jira/settings", nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "GET, PUT", resp.Header.Get("Allow"))

	resp, err = http.Post(srv.URL+"/api/tasks/a/b/move", "application/json", strings.NewReader(`{"status":"done"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode, "task id is a single segment")
}

func doWithOrigin(t *testing.T, method, url, origin, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	require.NoError(t, err)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp
}

func TestCORS_RejectsForeignOrigins(t *testing.T) {
	srv := newTestServer(t)

	for _, tc := range []struct {
		method, path, body string
	}{
		{http.MethodPut, "/api/jira/settings", `{"clientId":"attacker","clientSecret":"x"}`},
		{http.MethodPost, "/api/jira/auth/disconnect", ""},
		{http.MethodPost, "/api/jira/sync/push", `{"localId":"t1","status":"done"}`},
		{http.MethodOptions, "/api/jira/import", ""},
		{http.MethodGet, "/ws", ""},
	} {
		resp := doWithOrigin(t, tc.method, srv.URL+tc.path, "https://evil.example", tc.body)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode, tc.method+" "+tc.path)
		assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
	}

	resp, err := http.Get(srv.URL + "/api/jira/settings")
	require.NoError(t, err)
	var settings map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&settings))
	resp.Body.Close()
	assert.NotEqual(t, "attacker", settings["clientId"], "rejected request changed nothing")
}

func TestCORS_SameOriginAndConfiguredOrigins(t *testing.T) {
	srv := newTestServer(t, func(cfg *common.Config) {
		cfg.Server.AllowedOrigins = []string{"http://localhost:3000/"}
	})

	// Requests without an Origin header are not browser cross-origin calls
	resp := doWithOrigin(t, http.MethodGet, srv.URL+"/api/health", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))

	resp = doWithOrigin(t, http.MethodGet, srv.URL+"/api/health", srv.URL, "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, srv.URL, resp.Header.Get("Access-Control-Allow-Origin"))

	resp = doWithOrigin(t, http.MethodOptions, srv.URL+"/api/tasks", "http://localhost:3000", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:3000", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Values("Vary"), "Origin")
}

func TestRoutes_DisconnectedConnector(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/jira/auth/status")
	require.NoError(t, err)
	var status map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	resp.Body.Close()
	assert.Equal(t, false, status["configured"])
	assert.Equal(t, false, status["connected"])

	// No client id configured
	resp, err = http.Get(srv.URL + "/api/jira/auth/connect")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Callback without a pending authorization is a state mismatch
	resp, err = http.Get(srv.URL + "/oauth/callback?code=abc&state=forged")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/jira/projects")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/jira/history")
	require.NoError(t, err)
	var history []models.HistoryEntry
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&history))
	resp.Body.Close()
	assert.Empty(t, history)
}

func TestRoutes_TaskLifecycle(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/tasks", "application/json", strings.NewReader(`{"title":"Write docs"}`))
	require.NoError(t, err)
	var task models.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "backlog", task.Status)

	resp, err = http.Post(srv.URL+"/api/tasks/"+task.ID+"/move", "application/json", strings.NewReader(`{"status":"doing"}`))
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "doing", task.Status)

	resp, err = http.Get(srv.URL + "/api/tasks?status=doing")
	require.NoError(t, err)
	var tasks []models.Task
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tasks))
	resp.Body.Close()
	require.Len(t, tasks, 1)

	// Unlinking a task that was never linked
	req, _ := http.NewRequest("DELETE", srv.URL+"/api/jira/mappings/"+task.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRoutes_SyncConfigValidation(t *testing.T) {
	srv := newTestServer(t)

	body := `{"projectKey":"","pollEnabled":true,"pollIntervalMinutes":15}`
	req, _ := http.NewRequest("PUT", srv.URL+"/api/jira/config", strings.NewReader(body))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body = `{"projectKey":"proj","pushEnabled":true,"pollIntervalMinutes":30}`
	req, _ = http.NewRequest("PUT", srv.URL+"/api/jira/config", strings.NewReader(body))
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/jira/config")
	require.NoError(t, err)
	var got struct {
		Config models.SyncConfig `json:"config"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	resp.Body.Close()
	assert.Equal(t, "PROJ", got.Config.ProjectKey)
	assert.Equal(t, 30, got.Config.PollIntervalMinutes)
}
