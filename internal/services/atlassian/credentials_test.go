package atlassian

import (
	"context"
	"errors"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/jiralink/internal/common"
	"github.com/ternarybob/jiralink/internal/models"
)

func TestIsConfigured(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	assert.False(t, env.connector.Auth().IsConfigured(ctx))
	env.saveSettings(t)
	assert.True(t, env.connector.Auth().IsConfigured(ctx))
}

func TestSaveSettings_RejectsInvalid(t *testing.T) {
	env := newTestEnv(t)

	err := env.connector.Auth().SaveSettings(context.Background(), &models.OAuthSettings{ClientID: "id", RedirectURI: "not a url"})
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestGetSettings_FallsBackToDefaults(t *testing.T) {
	env := newTestEnv(t, WithDefaultSettings(&models.OAuthSettings{ClientID: "from-config", ClientSecret: "secret"}))

	settings, err := env.connector.Auth().GetSettings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-config", settings.ClientID)
	assert.True(t, env.connector.Auth().IsConfigured(context.Background()))
}

func TestBuildAuthorizationURL_RequiresClientID(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.connector.Auth().BuildAuthorizationURL(context.Background())
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestBuildAuthorizationURL(t *testing.T) {
	env := newTestEnv(t)
	env.saveSettings(t)

	authURL, err := env.connector.Auth().BuildAuthorizationURL(context.Background())
	require.NoError(t, err)

	parsed, err := url.Parse(authURL)
	require.NoError(t, err)
	query := parsed.Query()

	assert.Equal(t, "api.atlassian.com", query.Get("audience"))
	assert.Equal(t, "client-id", query.Get("client_id"))
	assert.Equal(t, "read:jira-work read:jira-user write:jira-work offline_access", query.Get("scope"))
	assert.Equal(t, "http://localhost:8085/oauth/callback", query.Get("redirect_uri"))
	assert.Equal(t, "code", query.Get("response_type"))
	assert.Equal(t, "consent", query.Get("prompt"))

	state := query.Get("state")
	assert.Len(t, state, 43) // 32 bytes, unpadded base64url

	persisted, err := env.kv.Get(context.Background(), keyOAuthState)
	require.NoError(t, err)
	assert.Equal(t, state, persisted)
}

func TestBuildAuthorizationURL_FreshStateEachTime(t *testing.T) {
	env := newTestEnv(t)
	env.saveSettings(t)

	first := env.authorize(t)
	second := env.authorize(t)
	assert.NotEqual(t, first, second)
}

func TestCompleteAuthorization_StateMismatch(t *testing.T) {
	env := newTestEnv(t)
	env.saveSettings(t)
	state := env.authorize(t)

	_, err := env.connector.Auth().CompleteAuthorization(context.Background(), "auth-code", state+"x")
	assert.ErrorIs(t, err, ErrCSRF)

	exchange, _ := env.fake.counts()
	assert.Equal(t, 0, exchange, "token endpoint must not be called")
	assert.False(t, env.connector.Auth().IsConnected(context.Background()))
}

func TestCompleteAuthorization_NoPendingState(t *testing.T) {
	env := newTestEnv(t)
	env.saveSettings(t)

	_, err := env.connector.Auth().CompleteAuthorization(context.Background(), "auth-code", "anything")
	assert.ErrorIs(t, err, ErrCSRF)

	_, err = env.connector.Auth().CompleteAuthorization(context.Background(), "auth-code", "")
	assert.ErrorIs(t, err, ErrCSRF)

	exchange, _ := env.fake.counts()
	assert.Equal(t, 0, exchange)
}

func TestCompleteAuthorization_Success(t *testing.T) {
	env := newTestEnv(t)
	env.saveSettings(t)
	state := env.authorize(t)
	ctx := context.Background()

	conn, err := env.connector.Auth().CompleteAuthorization(ctx, "auth-code", state)
	require.NoError(t, err)
	assert.Equal(t, testCloudID, conn.CloudID)
	assert.Equal(t, "https://example.atlassian.net", conn.SiteURL)
	assert.Equal(t, "access-1", conn.AccessToken)

	assert.True(t, env.connector.Auth().IsConnected(ctx))

	info, err := env.connector.Auth().GetConnectionInfo(ctx)
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "example", info.SiteName)

	// Tokens are not stored in plaintext
	raw, err := env.kv.Get(ctx, keyConnection)
	require.NoError(t, err)
	assert.NotContains(t, raw, "access-1")
	assert.NotContains(t, raw, "refresh-1")

	// State is single use
	_, err = env.connector.Auth().CompleteAuthorization(ctx, "auth-code", state)
	assert.ErrorIs(t, err, ErrCSRF)
}

func TestCompleteAuthorization_NoAccessibleSite(t *testing.T) {
	env := newTestEnv(t)
	env.fake.resources = []models.AccessibleResource{
		{ID: "conf-1", URL: "https://wiki.example.net", Name: "wiki", Scopes: []string{"read:confluence-content.all"}},
	}
	env.saveSettings(t)
	state := env.authorize(t)

	_, err := env.connector.Auth().CompleteAuthorization(context.Background(), "auth-code", state)
	assert.ErrorIs(t, err, ErrNoAccessibleSite)
	assert.False(t, env.connector.Auth().IsConnected(context.Background()))
}

func TestGetAccessToken_NotConnected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.connector.Credentials().GetAccessToken(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestGetAccessToken_FreshTokenDoesNotRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	token, err := env.connector.Credentials().GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-1", token)

	_, refresh := env.fake.counts()
	assert.Equal(t, 0, refresh)
}

func TestGetAccessToken_RefreshesNearExpiry(t *testing.T) {
	env := newTestEnv(t)
	env.fake.exchangeExpiresIn = 120 // inside the five minute window
	env.connect(t)

	token, err := env.connector.Credentials().GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed-1", token)

	token, err = env.connector.Credentials().GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed-1", token)

	_, refresh := env.fake.counts()
	assert.Equal(t, 1, refresh, "exactly one refresh")
}

func TestGetAccessToken_ConcurrentCallersShareOneRefresh(t *testing.T) {
	env := newTestEnv(t)
	env.fake.exchangeExpiresIn = 60
	env.connect(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.connector.Credentials().GetAccessToken(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	_, refresh := env.fake.counts()
	assert.Equal(t, 1, refresh)
}

func TestGetAccessToken_UsesClock(t *testing.T) {
	var mu sync.Mutex
	now := time.Now()
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}

	env := newTestEnv(t, WithClock(clock))
	env.connect(t)

	mu.Lock()
	now = now.Add(58 * time.Minute)
	mu.Unlock()

	token, err := env.connector.Credentials().GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed-1", token)
}

func TestRefreshFailure_Disconnects(t *testing.T) {
	env := newTestEnv(t)
	env.fake.exchangeExpiresIn = 60
	env.connect(t)
	env.fake.refreshStatus = 400
	ctx := context.Background()

	_, err := env.connector.Credentials().GetAccessToken(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReauthRequired)

	var apiErr *RemoteAPIError
	require.True(t, errors.As(err, &apiErr), "cause is wrapped")
	assert.Equal(t, 400, apiErr.Status)

	assert.False(t, env.connector.Auth().IsConnected(ctx))
	info, err := env.connector.Auth().GetConnectionInfo(ctx)
	require.NoError(t, err)
	assert.Nil(t, info)
}

func TestRefreshTransportFailure_KeepsConnection(t *testing.T) {
	env := newTestEnv(t)
	env.fake.exchangeExpiresIn = 60
	env.connect(t)
	ctx := context.Background()

	cipher, err := NewTokenCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	unreachable := NewCredentialManager(env.kv, cipher, env.logger, WithOAuthEndpoints(
		env.fake.server.URL+"/authorize",
		"http://127.0.0.1:1/oauth/token",
		env.fake.server.URL+"/oauth/token/accessible-resources",
	))

	_, err = unreachable.GetAccessToken(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReauthRequired)
	assert.True(t, env.connector.Auth().IsConnected(ctx), "connection survives a transport error")

	// The endpoint is reachable again: the stored refresh token still works
	token, err := env.connector.Credentials().GetAccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed-1", token)
}

func TestRefreshCancelledContext_KeepsConnection(t *testing.T) {
	env := newTestEnv(t)
	env.fake.exchangeExpiresIn = 60
	env.connect(t)

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := env.connector.Credentials().GetAccessToken(cancelled)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrReauthRequired)
	assert.True(t, env.connector.Auth().IsConnected(context.Background()))

	_, refresh := env.fake.counts()
	assert.Equal(t, 0, refresh, "cancelled request never reached the token endpoint")
}

func TestRefresh_Explicit(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)

	require.NoError(t, env.connector.Credentials().Refresh(context.Background()))

	token, err := env.connector.Credentials().GetAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "access-refreshed-1", token)
}

func TestDisconnect(t *testing.T) {
	env := newTestEnv(t)
	env.connect(t)
	env.authorize(t)
	ctx := context.Background()

	require.NoError(t, env.connector.Auth().Disconnect(ctx))
	assert.False(t, env.connector.Auth().IsConnected(ctx))

	_, err := env.kv.Get(ctx, keyOAuthState)
	assert.Error(t, err, "pending state is removed")

	// Disconnecting twice is harmless
	assert.NoError(t, env.connector.Auth().Disconnect(ctx))
}

func TestTokenCipher_RoundTrip(t *testing.T) {
	cipher, err := NewTokenCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	sealed, err := cipher.Encrypt("secret-token")
	require.NoError(t, err)
	assert.NotContains(t, sealed, "secret-token")

	opened, err := cipher.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "secret-token", opened)

	empty, err := cipher.Encrypt("")
	require.NoError(t, err)
	assert.Equal(t, "", empty)
}

func TestTokenCipher_RejectsTampering(t *testing.T) {
	cipher, err := NewTokenCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	sealed, err := cipher.Encrypt("secret-token")
	require.NoError(t, err)

	other, err := NewTokenCipher([]byte("fedcba9876543210fedcba9876543210"))
	require.NoError(t, err)
	_, err = other.Decrypt(sealed)
	assert.Error(t, err)

	_, err = cipher.Decrypt(strings.Repeat("A", 20))
	assert.Error(t, err)
}

func TestNewTokenCipher_RejectsShortKey(t *testing.T) {
	_, err := NewTokenCipher([]byte("short"))
	assert.Error(t, err)
}

func TestLoadTokenCipher_GeneratesKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "token.key")

	first, err := LoadTokenCipher(common.SecurityConfig{TokenKeyFile: path})
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	sealed, err := first.Encrypt("value")
	require.NoError(t, err)

	second, err := LoadTokenCipher(common.SecurityConfig{TokenKeyFile: path})
	require.NoError(t, err)
	opened, err := second.Decrypt(sealed)
	require.NoError(t, err)
	assert.Equal(t, "value", opened)
}
