package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
)

const maskedSecret = "********"

// AuthHandler handles the Jira OAuth connection lifecycle
type AuthHandler struct {
	auth   interfaces.JiraAuth
	logger arbor.ILogger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(auth interfaces.JiraAuth, logger arbor.ILogger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		logger: logger,
	}
}

// StatusHandler handles GET /api/jira/auth/status
func (h *AuthHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	ctx := r.Context()
	response := map[string]interface{}{
		"configured": h.auth.IsConfigured(ctx),
		"connected":  false,
	}

	info, err := h.auth.GetConnectionInfo(ctx)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to load connection")
		return
	}
	if info != nil {
		response["connected"] = true
		response["connection"] = info
	}

	WriteJSON(w, http.StatusOK, response)
}

// ConnectHandler handles GET /api/jira/auth/connect.
// Returns the consent URL, or redirects to it when ?redirect=true.
func (h *AuthHandler) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	authURL, err := h.auth.BuildAuthorizationURL(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to build authorization URL")
		return
	}

	if r.URL.Query().Get("redirect") == "true" {
		http.Redirect(w, r, authURL, http.StatusFound)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"authorizationUrl": authURL,
	})
}

// CallbackHandler handles GET /oauth/callback?code=...&state=...
func (h *AuthHandler) CallbackHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	query := r.URL.Query()
	if oauthErr := query.Get("error"); oauthErr != "" {
		h.logger.Warn().
			Str("error", oauthErr).
			Str("description", query.Get("error_description")).
			Msg("Authorization was declined")
		WriteError(w, http.StatusBadRequest, "Authorization failed: "+oauthErr)
		return
	}

	code := query.Get("code")
	if code == "" {
		WriteError(w, http.StatusBadRequest, "Missing authorization code")
		return
	}

	conn, err := h.auth.CompleteAuthorization(r.Context(), code, query.Get("state"))
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to complete authorization")
		return
	}

	h.logger.Info().
		Str("site", conn.SiteURL).
		Str("cloud_id", conn.CloudID).
		Msg("Jira connected")

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "success",
		"connection": conn.Info(),
	})
}

// DisconnectHandler handles POST /api/jira/auth/disconnect
func (h *AuthHandler) DisconnectHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.auth.Disconnect(r.Context()); err != nil {
		WriteServiceError(w, h.logger, err, "Failed to disconnect")
		return
	}

	WriteSuccess(w, "Jira disconnected")
}

// GetSettingsHandler handles GET /api/jira/settings. The client secret is masked.
func (h *AuthHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	settings, err := h.auth.GetSettings(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to load settings")
		return
	}

	masked := *settings
	if masked.ClientSecret != "" {
		masked.ClientSecret = maskedSecret
	}
	WriteJSON(w, http.StatusOK, masked)
}

// SaveSettingsHandler handles PUT /api/jira/settings.
// Sending the masked secret back (or leaving it empty) keeps the stored one.
func (h *AuthHandler) SaveSettingsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	var settings models.OAuthSettings
	if !DecodeJSON(w, r, &settings) {
		return
	}

	ctx := r.Context()
	if settings.ClientSecret == "" || settings.ClientSecret == maskedSecret {
		current, err := h.auth.GetSettings(ctx)
		if err != nil {
			WriteServiceError(w, h.logger, err, "Failed to load settings")
			return
		}
		settings.ClientSecret = current.ClientSecret
	}
	settings.ClientID = strings.TrimSpace(settings.ClientID)
	settings.RedirectURI = strings.TrimSpace(settings.RedirectURI)

	if err := h.auth.SaveSettings(ctx, &settings); err != nil {
		WriteServiceError(w, h.logger, err, "Failed to save settings")
		return
	}

	WriteSuccess(w, "Settings saved")
}
