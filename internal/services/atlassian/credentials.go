package atlassian

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
	"github.com/ternarybob/jiralink/internal/services/kv"
	"golang.org/x/oauth2"
)

// refreshWindow is how close to expiry a token may get before it is refreshed
const refreshWindow = 5 * time.Minute

// CredentialManager owns the OAuth 2.0 (3LO) flow and the token lifecycle of the single Jira connection
type CredentialManager struct {
	kv       *kv.Service
	cipher   *TokenCipher
	events   interfaces.EventService
	defaults *models.OAuthSettings
	validate *validator.Validate
	logger   arbor.ILogger

	authURL      string
	tokenURL     string
	resourcesURL string
	httpClient   *http.Client
	now          func() time.Time

	// refreshMu serializes refreshes so concurrent callers near expiry share one
	refreshMu sync.Mutex
}

// CredentialOption configures the CredentialManager
type CredentialOption func(*CredentialManager)

// WithOAuthEndpoints overrides the authorize, token and accessible-resources URLs
func WithOAuthEndpoints(authURL, tokenURL, resourcesURL string) CredentialOption {
	return func(m *CredentialManager) {
		m.authURL = authURL
		m.tokenURL = tokenURL
		m.resourcesURL = resourcesURL
	}
}

// WithCredentialHTTPClient sets the HTTP client used for token and resource calls
func WithCredentialHTTPClient(client *http.Client) CredentialOption {
	return func(m *CredentialManager) {
		m.httpClient = client
	}
}

// WithDefaultSettings seeds OAuth settings used until settings are saved
func WithDefaultSettings(settings *models.OAuthSettings) CredentialOption {
	return func(m *CredentialManager) {
		m.defaults = settings
	}
}

// WithEventService publishes connection changes on the event bus
func WithEventService(events interfaces.EventService) CredentialOption {
	return func(m *CredentialManager) {
		m.events = events
	}
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) CredentialOption {
	return func(m *CredentialManager) {
		m.now = now
	}
}

// NewCredentialManager creates a new credential manager
func NewCredentialManager(store *kv.Service, cipher *TokenCipher, logger arbor.ILogger, opts ...CredentialOption) *CredentialManager {
	m := &CredentialManager{
		kv:           store,
		cipher:       cipher,
		validate:     validator.New(),
		logger:       logger,
		authURL:      DefaultAuthURL,
		tokenURL:     DefaultTokenURL,
		resourcesURL: DefaultResourcesURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// GetSettings returns the stored OAuth settings, or the configured defaults when none are stored
func (m *CredentialManager) GetSettings(ctx context.Context) (*models.OAuthSettings, error) {
	var settings models.OAuthSettings
	found, err := m.kv.GetJSON(ctx, keySettings, &settings)
	if err != nil {
		return nil, err
	}
	if found {
		return &settings, nil
	}
	if m.defaults != nil {
		copied := *m.defaults
		return &copied, nil
	}
	return &models.OAuthSettings{}, nil
}

// SaveSettings validates and persists the OAuth settings
func (m *CredentialManager) SaveSettings(ctx context.Context, settings *models.OAuthSettings) error {
	if settings == nil {
		return fmt.Errorf("%w: settings are required", ErrConfiguration)
	}

	settings.ClientID = strings.TrimSpace(settings.ClientID)
	settings.ClientSecret = strings.TrimSpace(settings.ClientSecret)
	settings.RedirectURI = strings.TrimSpace(settings.RedirectURI)

	if err := m.validate.Struct(settings); err != nil {
		return fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	if err := m.kv.SetJSON(ctx, keySettings, settings, "Jira OAuth app settings"); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	m.logger.Info().Str("redirect_uri", settings.RedirectURI).Msg("Jira OAuth settings saved")
	return nil
}

// IsConfigured reports whether both client id and client secret are present
func (m *CredentialManager) IsConfigured(ctx context.Context) bool {
	settings, err := m.GetSettings(ctx)
	if err != nil {
		return false
	}
	return settings.ClientID != "" && settings.ClientSecret != ""
}

func (m *CredentialManager) oauthConfig(settings *models.OAuthSettings) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     settings.ClientID,
		ClientSecret: settings.ClientSecret,
		RedirectURL:  settings.RedirectURI,
		Scopes:       Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   m.authURL,
			TokenURL:  m.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// oauthContext makes the oauth2 package use our HTTP client
func (m *CredentialManager) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// BuildAuthorizationURL persists a fresh state nonce and returns the consent URL
func (m *CredentialManager) BuildAuthorizationURL(ctx context.Context) (string, error) {
	settings, err := m.GetSettings(ctx)
	if err != nil {
		return "", err
	}
	if settings.ClientID == "" {
		return "", fmt.Errorf("%w: client id is missing", ErrConfiguration)
	}

	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate oauth state: %w", err)
	}
	state := base64.RawURLEncoding.EncodeToString(nonce)

	if err := m.kv.Set(ctx, keyOAuthState, state, "Pending Jira OAuth state"); err != nil {
		return "", fmt.Errorf("failed to persist oauth state: %w", err)
	}

	authURL := m.oauthConfig(settings).AuthCodeURL(state,
		oauth2.SetAuthURLParam("audience", "api.atlassian.com"),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	m.logger.Debug().Msg("Built Jira authorization URL")
	return authURL, nil
}

// CompleteAuthorization verifies the state, exchanges the code and persists the connection
func (m *CredentialManager) CompleteAuthorization(ctx context.Context, code, returnedState string) (*models.Connection, error) {
	persisted, err := m.kv.Get(ctx, keyOAuthState)
	if err != nil && !errors.Is(err, interfaces.ErrKeyNotFound) {
		return nil, fmt.Errorf("failed to load oauth state: %w", err)
	}
	if persisted == "" || returnedState == "" ||
		subtle.ConstantTimeCompare([]byte(persisted), []byte(returnedState)) != 1 {
		m.logger.Warn().Msg("Rejected Jira OAuth callback with mismatched state")
		return nil, ErrCSRF
	}

	if err := m.kv.Delete(ctx, keyOAuthState); err != nil {
		return nil, fmt.Errorf("failed to consume oauth state: %w", err)
	}

	settings, err := m.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	if settings.ClientID == "" || settings.ClientSecret == "" {
		return nil, ErrConfiguration
	}

	token, err := m.oauthConfig(settings).Exchange(m.oauthContext(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("token exchange failed: %w", remoteError(err, m.tokenURL))
	}

	resources, err := m.accessibleResources(ctx, token.AccessToken)
	if err != nil {
		return nil, err
	}

	var site *models.AccessibleResource
	for i := range resources {
		if hasJiraScope(resources[i].Scopes) {
			site = &resources[i]
			break
		}
	}
	if site == nil {
		return nil, ErrNoAccessibleSite
	}

	now := m.now()
	conn := &models.Connection{
		CloudID:      site.ID,
		SiteURL:      site.URL,
		SiteName:     site.Name,
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenExpiry:  tokenExpiry(token, now),
		ConnectedAt:  now,
	}

	if err := m.saveConnection(ctx, conn); err != nil {
		return nil, err
	}

	m.logger.Info().
		Str("site", conn.SiteURL).
		Str("cloud_id", conn.CloudID).
		Msg("Connected to Jira")
	m.publish(ctx, conn.Info())

	return conn, nil
}

func (m *CredentialManager) accessibleResources(ctx context.Context, accessToken string) ([]models.AccessibleResource, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.resourcesURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch accessible resources: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &RemoteAPIError{Status: resp.StatusCode, Body: string(body), Endpoint: m.resourcesURL}
	}

	var resources []models.AccessibleResource
	if err := json.NewDecoder(resp.Body).Decode(&resources); err != nil {
		return nil, fmt.Errorf("failed to decode accessible resources: %w", err)
	}
	return resources, nil
}

func hasJiraScope(scopes []string) bool {
	for _, scope := range scopes {
		if strings.Contains(scope, "jira") {
			return true
		}
	}
	return false
}

// tokenExpiry falls back to one hour when the server omits expires_in
func tokenExpiry(token *oauth2.Token, now time.Time) time.Time {
	if token.Expiry.IsZero() {
		return now.Add(time.Hour)
	}
	return token.Expiry
}

// remoteError converts an oauth2 retrieve error into a RemoteAPIError
func remoteError(err error, endpoint string) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.Response != nil {
		return &RemoteAPIError{
			Status:   retrieveErr.Response.StatusCode,
			Body:     string(retrieveErr.Body),
			Endpoint: endpoint,
		}
	}
	return err
}

// loadConnection returns the decrypted connection, or nil when none is stored
func (m *CredentialManager) loadConnection(ctx context.Context) (*models.Connection, error) {
	var conn models.Connection
	found, err := m.kv.GetJSON(ctx, keyConnection, &conn)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}

	if conn.AccessToken, err = m.cipher.Decrypt(conn.AccessToken); err != nil {
		return nil, err
	}
	if conn.RefreshToken, err = m.cipher.Decrypt(conn.RefreshToken); err != nil {
		return nil, err
	}
	return &conn, nil
}

// saveConnection encrypts the tokens and overwrites the stored connection
func (m *CredentialManager) saveConnection(ctx context.Context, conn *models.Connection) error {
	stored := *conn

	var err error
	if stored.AccessToken, err = m.cipher.Encrypt(conn.AccessToken); err != nil {
		return err
	}
	if stored.RefreshToken, err = m.cipher.Encrypt(conn.RefreshToken); err != nil {
		return err
	}

	if err := m.kv.SetJSON(ctx, keyConnection, &stored, "Jira connection"); err != nil {
		return fmt.Errorf("failed to save connection: %w", err)
	}
	return nil
}

// IsConnected reports whether a connection is stored
func (m *CredentialManager) IsConnected(ctx context.Context) bool {
	conn, err := m.loadConnection(ctx)
	return err == nil && conn != nil
}

// GetConnectionInfo returns the token-free connection view, or nil when not connected
func (m *CredentialManager) GetConnectionInfo(ctx context.Context) (*models.ConnectionInfo, error) {
	conn, err := m.loadConnection(ctx)
	if err != nil || conn == nil {
		return nil, err
	}
	return conn.Info(), nil
}

// CloudID returns the cloud id of the connected site
func (m *CredentialManager) CloudID(ctx context.Context) (string, error) {
	conn, err := m.loadConnection(ctx)
	if err != nil {
		return "", err
	}
	if conn == nil {
		return "", ErrNotConnected
	}
	return conn.CloudID, nil
}

// GetAccessToken returns a usable access token, refreshing first when it expires within five minutes
func (m *CredentialManager) GetAccessToken(ctx context.Context) (string, error) {
	conn, err := m.loadConnection(ctx)
	if err != nil {
		return "", err
	}
	if conn == nil {
		return "", ErrNotConnected
	}
	if !m.needsRefresh(conn) {
		return conn.AccessToken, nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another caller may have refreshed while we waited
	conn, err = m.loadConnection(ctx)
	if err != nil {
		return "", err
	}
	if conn == nil {
		return "", ErrNotConnected
	}
	if !m.needsRefresh(conn) {
		return conn.AccessToken, nil
	}

	refreshed, err := m.refreshLocked(ctx, conn)
	if err != nil {
		return "", err
	}
	return refreshed.AccessToken, nil
}

func (m *CredentialManager) needsRefresh(conn *models.Connection) bool {
	return conn.TokenExpiry.Sub(m.now()) < refreshWindow
}

// Refresh exchanges the refresh token for a new access token.
// A rejected refresh removes the connection and returns ErrReauthRequired;
// transport errors are returned as-is and the connection is kept.
func (m *CredentialManager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	conn, err := m.loadConnection(ctx)
	if err != nil {
		return err
	}
	if conn == nil {
		return ErrNotConnected
	}

	_, err = m.refreshLocked(ctx, conn)
	return err
}

func (m *CredentialManager) refreshLocked(ctx context.Context, conn *models.Connection) (*models.Connection, error) {
	settings, err := m.GetSettings(ctx)
	if err != nil {
		return nil, err
	}

	if settings.ClientID == "" || settings.ClientSecret == "" {
		return nil, ErrConfiguration
	}

	var cause error
	var token *oauth2.Token
	if conn.RefreshToken == "" {
		cause = errors.New("no refresh token stored")
	} else {
		source := m.oauthConfig(settings).TokenSource(m.oauthContext(ctx), &oauth2.Token{RefreshToken: conn.RefreshToken})
		token, cause = source.Token()
		if cause != nil {
			cause = remoteError(cause, m.tokenURL)

			// Transport failures and cancellations leave the connection in place
			var apiErr *RemoteAPIError
			if !errors.As(cause, &apiErr) {
				m.logger.Warn().Err(cause).Msg("Jira token refresh could not reach the token endpoint")
				return nil, cause
			}
		}
	}

	if cause != nil {
		m.logger.Warn().Err(cause).Msg("Jira token refresh rejected, disconnecting")
		if err := m.Disconnect(context.WithoutCancel(ctx)); err != nil {
			m.logger.Error().Err(err).Msg("Failed to remove connection after refresh failure")
		}
		return nil, fmt.Errorf("%w: %w", ErrReauthRequired, cause)
	}

	conn.AccessToken = token.AccessToken
	if token.RefreshToken != "" {
		conn.RefreshToken = token.RefreshToken
	}
	conn.TokenExpiry = tokenExpiry(token, m.now())

	if err := m.saveConnection(ctx, conn); err != nil {
		return nil, err
	}

	m.logger.Debug().Str("expiry", conn.TokenExpiry.Format(time.RFC3339)).Msg("Jira access token refreshed")
	return conn, nil
}

// Disconnect removes the connection and any pending authorization state
func (m *CredentialManager) Disconnect(ctx context.Context) error {
	if err := m.kv.Delete(ctx, keyConnection); err != nil {
		return fmt.Errorf("failed to delete connection: %w", err)
	}
	if err := m.kv.Delete(ctx, keyOAuthState); err != nil {
		return fmt.Errorf("failed to delete oauth state: %w", err)
	}

	m.logger.Info().Msg("Disconnected from Jira")
	m.publish(ctx, nil)
	return nil
}

func (m *CredentialManager) publish(ctx context.Context, info *models.ConnectionInfo) {
	if m.events == nil {
		return
	}
	event := interfaces.Event{Type: interfaces.EventConnectionChanged, Payload: info}
	if err := m.events.Publish(context.WithoutCancel(ctx), event); err != nil {
		m.logger.Warn().Err(err).Msg("Failed to publish connection change")
	}
}
