package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
)

const projectsPrefix = "/api/jira/projects/"

// JiraHandler serves project metadata and the import pipeline
type JiraHandler struct {
	projects interfaces.JiraProjects
	imports  interfaces.JiraImport
	logger   arbor.ILogger
}

// NewJiraHandler creates a new Jira handler
func NewJiraHandler(projects interfaces.JiraProjects, imports interfaces.JiraImport, logger arbor.ILogger) *JiraHandler {
	return &JiraHandler{
		projects: projects,
		imports:  imports,
		logger:   logger,
	}
}

// ListProjectsHandler handles GET /api/jira/projects
func (h *JiraHandler) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	projects, err := h.projects.ListProjects(r.Context())
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to list projects")
		return
	}

	WriteJSON(w, http.StatusOK, projects)
}

// ProjectStatusesHandler handles GET /api/jira/projects/{key}/statuses
func (h *JiraHandler) ProjectStatusesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	key := PathParam(r.URL.Path, projectsPrefix, "/statuses")
	if key == "" {
		WriteError(w, http.StatusBadRequest, "Project key is required")
		return
	}

	statuses, err := h.projects.ListProjectStatuses(r.Context(), key)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to list project statuses")
		return
	}

	WriteJSON(w, http.StatusOK, statuses)
}

// SuggestedMappingHandler handles GET /api/jira/projects/{key}/suggested-mapping
func (h *JiraHandler) SuggestedMappingHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	key := PathParam(r.URL.Path, projectsPrefix, "/suggested-mapping")
	if key == "" {
		WriteError(w, http.StatusBadRequest, "Project key is required")
		return
	}

	rules, err := h.projects.GetSuggestedStatusMapping(r.Context(), key)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to suggest status mapping")
		return
	}

	WriteJSON(w, http.StatusOK, rules)
}

// ImportPreviewHandler handles POST /api/jira/import/preview
func (h *JiraHandler) ImportPreviewHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var opts models.ImportOptions
	if !DecodeJSON(w, r, &opts) {
		return
	}

	ctx := r.Context()
	preview, err := h.imports.Preview(ctx, opts)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to preview import")
		return
	}

	drafts, err := h.imports.BuildDrafts(ctx, opts)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to build import drafts")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"preview": preview,
		"items":   drafts,
	})
}

// ImportHandler handles POST /api/jira/import
func (h *JiraHandler) ImportHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var opts models.ImportOptions
	if !DecodeJSON(w, r, &opts) {
		return
	}

	result, err := h.imports.ImportAll(r.Context(), opts)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Import failed")
		return
	}

	h.logger.Info().
		Str("project", opts.ProjectKey).
		Int("created", result.Created).
		Int("failed", result.Failed).
		Msg("Import completed")

	WriteJSON(w, http.StatusOK, result)
}
