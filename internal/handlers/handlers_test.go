package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
	"github.com/ternarybob/jiralink/internal/services/atlassian"
)

// stubAuth overrides only the JiraAuth methods the tests call
type stubAuth struct {
	interfaces.JiraAuth
	configured  bool
	info        *models.ConnectionInfo
	settings    *models.OAuthSettings
	saved       *models.OAuthSettings
	completeErr error
}

func (s *stubAuth) IsConfigured(ctx context.Context) bool { return s.configured }

func (s *stubAuth) GetConnectionInfo(ctx context.Context) (*models.ConnectionInfo, error) {
	return s.info, nil
}

func (s *stubAuth) GetSettings(ctx context.Context) (*models.OAuthSettings, error) {
	return s.settings, nil
}

func (s *stubAuth) SaveSettings(ctx context.Context, settings *models.OAuthSettings) error {
	s.saved = settings
	return nil
}

func (s *stubAuth) CompleteAuthorization(ctx context.Context, code, state string) (*models.Connection, error) {
	if s.completeErr != nil {
		return nil, s.completeErr
	}
	return &models.Connection{CloudID: "cloud-1", SiteURL: "https://acme.atlassian.net", AccessToken: "secret"}, nil
}

// stubSync overrides only the JiraSync methods the tests call
type stubSync struct {
	interfaces.JiraSync
	push     models.PushResult
	applyErr map[string]error
	applied  []string
	unlinked map[string]bool
}

func (s *stubSync) SyncTaskToJira(ctx context.Context, localID, newStatus string) models.PushResult {
	return s.push
}

func (s *stubSync) ApplyUpdate(ctx context.Context, update models.StatusUpdate) error {
	if err := s.applyErr[update.LocalID]; err != nil {
		return err
	}
	s.applied = append(s.applied, update.LocalID)
	return nil
}

func (s *stubSync) Unlink(ctx context.Context, localID string) error {
	if !s.unlinked[localID] {
		return atlassian.ErrMappingNotFound
	}
	return nil
}

func (s *stubSync) IsAutoSyncRunning() bool { return false }

type stubTasks struct {
	movedID string
	movedTo string
}

func (s *stubTasks) List(ctx context.Context, column string) ([]*models.Task, error) {
	return []*models.Task{{ID: "t1", Status: column}}, nil
}

func (s *stubTasks) Create(ctx context.Context, draft *models.TaskDraft) (*models.Task, error) {
	return &models.Task{ID: "new", Title: draft.Title}, nil
}

func (s *stubTasks) Move(ctx context.Context, id, column string) (*models.Task, error) {
	if id == "missing" {
		return nil, interfaces.ErrTaskNotFound
	}
	s.movedID, s.movedTo = id, column
	return &models.Task{ID: id, Status: column}, nil
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestStatusForError(t *testing.T) {
	remote := &atlassian.RemoteAPIError{Status: 400, Endpoint: "/oauth/token", Body: "invalid_grant"}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"configuration", fmt.Errorf("%w: client id is missing", atlassian.ErrConfiguration), http.StatusBadRequest},
		{"csrf", atlassian.ErrCSRF, http.StatusForbidden},
		{"task not found", fmt.Errorf("move: %w", interfaces.ErrTaskNotFound), http.StatusNotFound},
		{"mapping not found", atlassian.ErrMappingNotFound, http.StatusNotFound},
		{"reauth wraps remote error", fmt.Errorf("%w: %w", atlassian.ErrReauthRequired, remote), http.StatusConflict},
		{"not connected", atlassian.ErrNotConnected, http.StatusConflict},
		{"remote", fmt.Errorf("search: %w", remote), http.StatusBadGateway},
		{"other", errors.New("disk full"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForError(tt.err))
		})
	}
}

func TestPathParam(t *testing.T) {
	assert.Equal(t, "abc", PathParam("/api/tasks/abc/move", "/api/tasks/", "/move"))
	assert.Equal(t, "PROJ", PathParam("/api/jira/projects/PROJ/statuses", "/api/jira/projects/", "/statuses"))
	assert.Equal(t, "t-1", PathParam("/api/jira/mappings/t-1", "/api/jira/mappings/", ""))
	assert.Equal(t, "", PathParam("/api/tasks//move", "/api/tasks/", "/move"))
	assert.Equal(t, "", PathParam("/api/tasks/a/b/move", "/api/tasks/", "/move"))
	assert.Equal(t, "", PathParam("/other/abc", "/api/tasks/", ""))
}

func TestAuthStatusHandler(t *testing.T) {
	auth := &stubAuth{configured: true}
	h := NewAuthHandler(auth, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.StatusHandler(rec, httptest.NewRequest("GET", "/api/jira/auth/status", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["configured"])
	assert.Equal(t, false, body["connected"])
	assert.NotContains(t, body, "connection")

	auth.info = &models.ConnectionInfo{CloudID: "cloud-1", SiteURL: "https://acme.atlassian.net"}
	rec = httptest.NewRecorder()
	h.StatusHandler(rec, httptest.NewRequest("GET", "/api/jira/auth/status", nil))
	body = decodeBody(t, rec)
	assert.Equal(t, true, body["connected"])
	assert.Equal(t, "cloud-1", body["connection"].(map[string]interface{})["cloudId"])
}

func TestCallbackHandler(t *testing.T) {
	t.Run("missing code", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{}, arbor.NewLogger())
		rec := httptest.NewRecorder()
		h.CallbackHandler(rec, httptest.NewRequest("GET", "/oauth/callback?state=x", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("declined", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{}, arbor.NewLogger())
		rec := httptest.NewRecorder()
		h.CallbackHandler(rec, httptest.NewRequest("GET", "/oauth/callback?error=access_denied", nil))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("state mismatch", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{completeErr: atlassian.ErrCSRF}, arbor.NewLogger())
		rec := httptest.NewRecorder()
		h.CallbackHandler(rec, httptest.NewRequest("GET", "/oauth/callback?code=c&state=wrong", nil))
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("connected response has no tokens", func(t *testing.T) {
		h := NewAuthHandler(&stubAuth{}, arbor.NewLogger())
		rec := httptest.NewRecorder()
		h.CallbackHandler(rec, httptest.NewRequest("GET", "/oauth/callback?code=c&state=s", nil))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.NotContains(t, rec.Body.String(), "secret")
		assert.Contains(t, rec.Body.String(), "cloud-1")
	})
}

func TestSettingsHandlers_MaskAndKeepSecret(t *testing.T) {
	auth := &stubAuth{settings: &models.OAuthSettings{
		ClientID:     "client",
		ClientSecret: "stored-secret",
		RedirectURI:  "http://localhost:8085/oauth/callback",
	}}
	h := NewAuthHandler(auth, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.GetSettingsHandler(rec, httptest.NewRequest("GET", "/api/jira/settings", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "stored-secret")
	assert.Equal(t, "stored-secret", auth.settings.ClientSecret)

	body := `{"clientId":" other ","clientSecret":"********","redirectUri":"http://localhost:8085/oauth/callback"}`
	rec = httptest.NewRecorder()
	h.SaveSettingsHandler(rec, httptest.NewRequest("PUT", "/api/jira/settings", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, auth.saved)
	assert.Equal(t, "other", auth.saved.ClientID)
	assert.Equal(t, "stored-secret", auth.saved.ClientSecret)
}

func TestPushHandler_SoftOutcomeIsOK(t *testing.T) {
	sync := &stubSync{push: models.PushResult{
		Synced:               false,
		JiraKey:              "PROJ-1",
		Reason:               models.ReasonNoTransition,
		AvailableTransitions: []string{"Done"},
	}}
	h := NewSyncHandler(sync, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.PushHandler(rec, httptest.NewRequest("POST", "/api/jira/sync/push", strings.NewReader(`{"localId":"t1","status":"review"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var result models.PushResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, models.ReasonNoTransition, result.Reason)
	assert.Equal(t, []string{"Done"}, result.AvailableTransitions)

	rec = httptest.NewRecorder()
	h.PushHandler(rec, httptest.NewRequest("POST", "/api/jira/sync/push", strings.NewReader(`{"localId":"t1"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestApplyHandler_CollectsFailures(t *testing.T) {
	sync := &stubSync{applyErr: map[string]error{"t2": interfaces.ErrTaskNotFound}}
	h := NewSyncHandler(sync, arbor.NewLogger())

	body := `{"updates":[{"localId":"t1","suggestedColumn":"done"},{"localId":"t2","suggestedColumn":"done"}]}`
	rec := httptest.NewRecorder()
	h.ApplyHandler(rec, httptest.NewRequest("POST", "/api/jira/sync/apply", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody(t, rec)
	assert.Equal(t, float64(1), resp["applied"])
	assert.Equal(t, float64(1), resp["failed"])
	assert.Equal(t, []string{"t1"}, sync.applied)
}

func TestUnlinkHandler(t *testing.T) {
	h := NewSyncHandler(&stubSync{unlinked: map[string]bool{"t1": true}}, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.UnlinkHandler(rec, httptest.NewRequest("DELETE", "/api/jira/mappings/t1", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.UnlinkHandler(rec, httptest.NewRequest("DELETE", "/api/jira/mappings/t9", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.UnlinkHandler(rec, httptest.NewRequest("GET", "/api/jira/mappings/t1", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMoveTaskHandler(t *testing.T) {
	tasks := &stubTasks{}
	h := NewTaskHandler(tasks, arbor.NewLogger())

	rec := httptest.NewRecorder()
	h.MoveTaskHandler(rec, httptest.NewRequest("POST", "/api/tasks/t1/move", strings.NewReader(`{"status":"done"}`)))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "t1", tasks.movedID)
	assert.Equal(t, "done", tasks.movedTo)

	rec = httptest.NewRecorder()
	h.MoveTaskHandler(rec, httptest.NewRequest("POST", "/api/tasks/missing/move", strings.NewReader(`{"status":"done"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.MoveTaskHandler(rec, httptest.NewRequest("POST", "/api/tasks/t1/move", strings.NewReader(`not json`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
