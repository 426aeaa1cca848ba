package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
)

const mappingsPrefix = "/api/jira/mappings/"

// SyncHandler serves the sync engine: config, push, pull, mappings, history and the scheduler
type SyncHandler struct {
	sync   interfaces.JiraSync
	logger arbor.ILogger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(sync interfaces.JiraSync, logger arbor.ILogger) *SyncHandler {
	return &SyncHandler{
		sync:   sync,
		logger: logger,
	}
}

// GetConfigHandler handles GET /api/jira/config
func (h *SyncHandler) GetConfigHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	config, err := h.sync.GetConfig(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to load sync config")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"config":          config,
		"autoSyncRunning": h.sync.IsAutoSyncRunning(),
	})
}

// SaveConfigHandler handles PUT /api/jira/config
func (h *SyncHandler) SaveConfigHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	var config models.SyncConfig
	if !DecodeJSON(w, r, &config) {
		return
	}

	if err := h.sync.SaveConfig(r.Context(), &config); err != nil {
		WriteServiceError(w, h.logger, err, "Failed to save sync config")
		return
	}

	WriteSuccess(w, "Sync config saved")
}

type pushRequest struct {
	LocalID string `json:"localId"`
	Status  string `json:"status"`
}

// PushHandler handles POST /api/jira/sync/push.
// Soft outcomes (not linked, no rule, no transition) are reported with 200.
func (h *SyncHandler) PushHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req pushRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.LocalID == "" || req.Status == "" {
		WriteError(w, http.StatusBadRequest, "localId and status are required")
		return
	}

	result := h.sync.SyncTaskToJira(r.Context(), req.LocalID, req.Status)
	WriteJSON(w, http.StatusOK, result)
}

// PullHandler handles POST /api/jira/sync/pull
func (h *SyncHandler) PullHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	result, err := h.sync.PullFromJira(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "Pull failed")
		return
	}

	WriteJSON(w, http.StatusOK, result)
}

type applyRequest struct {
	Updates []models.StatusUpdate `json:"updates"`
}

// ApplyHandler handles POST /api/jira/sync/apply.
// Each update is applied independently; failures are collected per task.
func (h *SyncHandler) ApplyHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req applyRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if len(req.Updates) == 0 {
		WriteError(w, http.StatusBadRequest, "updates are required")
		return
	}

	applied := 0
	failures := map[string]string{}
	for _, update := range req.Updates {
		if err := h.sync.ApplyUpdate(r.Context(), update); err != nil {
			h.logger.Warn().Err(err).Str("local_id", update.LocalID).Msg("Failed to apply update")
			failures[update.LocalID] = err.Error()
			continue
		}
		applied++
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"applied": applied,
		"failed":  len(failures),
		"errors":  failures,
	})
}

// StartAutoSyncHandler handles POST /api/jira/sync/auto/start
func (h *SyncHandler) StartAutoSyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.sync.StartAutoSync(r.Context()); err != nil {
		WriteServiceError(w, h.logger, err, "Failed to start auto-sync")
		return
	}

	WriteSuccess(w, "Auto-sync started")
}

// StopAutoSyncHandler handles POST /api/jira/sync/auto/stop
func (h *SyncHandler) StopAutoSyncHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	h.sync.StopAutoSync()
	WriteSuccess(w, "Auto-sync stopped")
}

// ListMappingsHandler handles GET /api/jira/mappings
func (h *SyncHandler) ListMappingsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	mappings, err := h.sync.ListMappings(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to list mappings")
		return
	}

	WriteJSON(w, http.StatusOK, mappings)
}

type linkRequest struct {
	LocalID   string `json:"localId"`
	RemoteKey string `json:"remoteKey"`
}

// LinkHandler handles POST /api/jira/mappings
func (h *SyncHandler) LinkHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var req linkRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	mapping, err := h.sync.Link(r.Context(), strings.TrimSpace(req.LocalID), req.RemoteKey)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to link task")
		return
	}

	WriteJSON(w, http.StatusCreated, mapping)
}

// UnlinkHandler handles DELETE /api/jira/mappings/{localId}
func (h *SyncHandler) UnlinkHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	localID := PathParam(r.URL.Path, mappingsPrefix, "")
	if localID == "" {
		WriteError(w, http.StatusBadRequest, "Local task id is required")
		return
	}

	if err := h.sync.Unlink(r.Context(), localID); err != nil {
		WriteServiceError(w, h.logger, err, "Failed to unlink task")
		return
	}

	WriteSuccess(w, "Task unlinked")
}

// ListHistoryHandler handles GET /api/jira/history?limit=N
func (h *SyncHandler) ListHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	entries, err := h.sync.ListHistory(r.Context(), GetLimitParam(r))
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to list history")
		return
	}

	WriteJSON(w, http.StatusOK, entries)
}

// ClearHistoryHandler handles DELETE /api/jira/history
func (h *SyncHandler) ClearHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "DELETE") {
		return
	}

	if err := h.sync.ClearHistory(r.Context()); err != nil {
		WriteServiceError(w, h.logger, err, "Failed to clear history")
		return
	}

	WriteSuccess(w, "History cleared")
}
