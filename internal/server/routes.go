package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// WebSocket route (sync event feed)
	mux.HandleFunc("/ws", s.app.WSHandler.HandleWebSocket)

	// API routes - Jira connection (OAuth 2.0 3LO)
	mux.HandleFunc("/api/jira/auth/status", s.app.AuthHandler.StatusHandler)         // GET
	mux.HandleFunc("/api/jira/auth/connect", s.app.AuthHandler.ConnectHandler)       // GET - consent URL
	mux.HandleFunc("/api/jira/auth/disconnect", s.app.AuthHandler.DisconnectHandler) // POST
	mux.HandleFunc("/oauth/callback", s.app.AuthHandler.CallbackHandler)             // GET - redirect target
	mux.HandleFunc("/api/jira/settings", s.handleSettingsRoute)                      // GET, PUT

	// API routes - Project metadata
	mux.HandleFunc("/api/jira/projects", s.app.JiraHandler.ListProjectsHandler) // GET
	mux.HandleFunc("/api/jira/projects/", s.handleProjectRoutes)               // GET /{key}/statuses, /{key}/suggested-mapping

	// API routes - Import pipeline
	mux.HandleFunc("/api/jira/import/preview", s.app.JiraHandler.ImportPreviewHandler) // POST
	mux.HandleFunc("/api/jira/import", s.app.JiraHandler.ImportHandler)                // POST

	// API routes - Sync engine
	mux.HandleFunc("/api/jira/config", s.handleSyncConfigRoute)                         // GET, PUT
	mux.HandleFunc("/api/jira/sync/push", s.app.SyncHandler.PushHandler)                // POST
	mux.HandleFunc("/api/jira/sync/pull", s.app.SyncHandler.PullHandler)                // POST
	mux.HandleFunc("/api/jira/sync/apply", s.app.SyncHandler.ApplyHandler)              // POST
	mux.HandleFunc("/api/jira/sync/auto/start", s.app.SyncHandler.StartAutoSyncHandler) // POST
	mux.HandleFunc("/api/jira/sync/auto/stop", s.app.SyncHandler.StopAutoSyncHandler)   // POST
	mux.HandleFunc("/api/jira/mappings", s.handleMappingsRoute)                         // GET (list), POST (link)
	mux.HandleFunc("/api/jira/mappings/", s.app.SyncHandler.UnlinkHandler)              // DELETE /{localId}
	mux.HandleFunc("/api/jira/history", s.handleHistoryRoute)                           // GET, DELETE

	// API routes - Local tasks
	mux.HandleFunc("/api/tasks", s.handleTasksRoute)  // GET (list), POST (create)
	mux.HandleFunc("/api/tasks/", s.handleTaskRoutes) // POST /{id}/move

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/config", s.app.ConfigHandler.GetConfig)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// handleSettingsRoute routes /api/jira/settings requests
func (s *Server) handleSettingsRoute(w http.ResponseWriter, r *http.Request) {
	methodRoutes{
		http.MethodGet: s.app.AuthHandler.GetSettingsHandler,
		http.MethodPut: s.app.AuthHandler.SaveSettingsHandler,
	}.serve(w, r)
}

// handleSyncConfigRoute routes /api/jira/config requests
func (s *Server) handleSyncConfigRoute(w http.ResponseWriter, r *http.Request) {
	methodRoutes{
		http.MethodGet: s.app.SyncHandler.GetConfigHandler,
		http.MethodPut: s.app.SyncHandler.SaveConfigHandler,
	}.serve(w, r)
}

// handleMappingsRoute routes /api/jira/mappings requests (list and link)
func (s *Server) handleMappingsRoute(w http.ResponseWriter, r *http.Request) {
	methodRoutes{
		http.MethodGet:  s.app.SyncHandler.ListMappingsHandler,
		http.MethodPost: s.app.SyncHandler.LinkHandler,
	}.serve(w, r)
}

// handleHistoryRoute routes /api/jira/history requests
func (s *Server) handleHistoryRoute(w http.ResponseWriter, r *http.Request) {
	methodRoutes{
		http.MethodGet:    s.app.SyncHandler.ListHistoryHandler,
		http.MethodDelete: s.app.SyncHandler.ClearHistoryHandler,
	}.serve(w, r)
}

// handleProjectRoutes routes /api/jira/projects/{key}/... requests
func (s *Server) handleProjectRoutes(w http.ResponseWriter, r *http.Request) {
	matched := routeBySuffix(w, r, "/api/jira/projects/", []suffixRoute{
		{suffix: "/statuses", handler: s.app.JiraHandler.ProjectStatusesHandler},
		{suffix: "/suggested-mapping", handler: s.app.JiraHandler.SuggestedMappingHandler},
	})
	if !matched {
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}

// handleTasksRoute routes /api/tasks requests (list and create)
func (s *Server) handleTasksRoute(w http.ResponseWriter, r *http.Request) {
	methodRoutes{
		http.MethodGet:  s.app.TaskHandler.ListTasksHandler,
		http.MethodPost: s.app.TaskHandler.CreateTaskHandler,
	}.serve(w, r)
}

// handleTaskRoutes routes /api/tasks/{id}/... requests
func (s *Server) handleTaskRoutes(w http.ResponseWriter, r *http.Request) {
	matched := routeBySuffix(w, r, "/api/tasks/", []suffixRoute{
		{suffix: "/move", handler: s.app.TaskHandler.MoveTaskHandler},
	})
	if !matched {
		s.app.APIHandler.NotFoundHandler(w, r)
	}
}
