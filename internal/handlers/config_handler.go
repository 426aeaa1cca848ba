package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/common"
)

type ConfigHandler struct {
	logger arbor.ILogger
	config *common.Config
}

func NewConfigHandler(logger arbor.ILogger, config *common.Config) *ConfigHandler {
	return &ConfigHandler{
		logger: logger,
		config: config,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	Version string         `json:"version"`
	Build   string         `json:"build"`
	Port    int            `json:"port"`
	Host    string         `json:"host"`
	Config  *common.Config `json:"config"`
}

// GetConfig handles GET /api/config. Secrets are redacted.
func (h *ConfigHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	redacted := *h.config
	if redacted.Jira.ClientSecret != "" {
		redacted.Jira.ClientSecret = maskedSecret
	}
	if redacted.Security.TokenKey != "" {
		redacted.Security.TokenKey = maskedSecret
	}

	WriteJSON(w, http.StatusOK, ConfigResponse{
		Version: common.GetVersion(),
		Build:   common.GetBuild(),
		Port:    redacted.Server.Port,
		Host:    redacted.Server.Host,
		Config:  &redacted,
	})
}
