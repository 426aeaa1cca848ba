package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/services/atlassian"
)

// RequireMethod validates that the HTTP request uses the specified method.
// Returns true if the method matches, false otherwise (and writes error response).
func RequireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// WriteJSON writes a JSON response with the specified status code and data.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a standard success JSON response.
func WriteSuccess(w http.ResponseWriter, message string) error {
	return WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": message,
	})
}

// WriteError writes a standard error JSON response.
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// DecodeJSON parses the request body into v, writing a 400 on failure
func DecodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// StatusForError maps service errors onto HTTP status codes.
// Sentinels are checked before RemoteAPIError because a failed refresh
// wraps both.
func StatusForError(err error) int {
	var remote *atlassian.RemoteAPIError

	switch {
	case errors.Is(err, atlassian.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, atlassian.ErrCSRF):
		return http.StatusForbidden
	case errors.Is(err, interfaces.ErrTaskNotFound), errors.Is(err, atlassian.ErrMappingNotFound):
		return http.StatusNotFound
	case errors.Is(err, atlassian.ErrReauthRequired),
		errors.Is(err, atlassian.ErrNotConnected),
		errors.Is(err, atlassian.ErrNoAccessibleSite):
		return http.StatusConflict
	case errors.As(err, &remote):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteServiceError logs err and writes it with the mapped status code
func WriteServiceError(w http.ResponseWriter, logger arbor.ILogger, err error, message string) {
	status := StatusForError(err)
	if status >= http.StatusInternalServerError {
		logger.Error().Err(err).Int("status", status).Msg(message)
	} else {
		logger.Warn().Err(err).Int("status", status).Msg(message)
	}
	WriteError(w, status, err.Error())
}

// GetLimitParam reads ?limit=N. Missing or invalid values yield 0 (no limit).
func GetLimitParam(r *http.Request) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			return l
		}
	}
	return 0
}

// PathParam extracts the segment between prefix and suffix.
// Example: PathParam("/api/tasks/abc/move", "/api/tasks/", "/move") -> "abc"
func PathParam(path, prefix, suffix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	value := strings.TrimPrefix(path, prefix)
	value = strings.TrimSuffix(value, suffix)
	if value == "" || strings.Contains(value, "/") {
		return ""
	}
	return value
}
