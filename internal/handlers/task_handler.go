package handlers

import (
	"context"
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/models"
)

const tasksPrefix = "/api/tasks/"

// TaskService defines the methods needed from the task service
type TaskService interface {
	List(ctx context.Context, column string) ([]*models.Task, error)
	Create(ctx context.Context, draft *models.TaskDraft) (*models.Task, error)
	Move(ctx context.Context, id, column string) (*models.Task, error)
}

// TaskHandler handles local task HTTP requests
type TaskHandler struct {
	tasks  TaskService
	logger arbor.ILogger
}

// NewTaskHandler creates a new task handler
func NewTaskHandler(tasks TaskService, logger arbor.ILogger) *TaskHandler {
	return &TaskHandler{
		tasks:  tasks,
		logger: logger,
	}
}

// ListTasksHandler handles GET /api/tasks?status=column
func (h *TaskHandler) ListTasksHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	tasks, err := h.tasks.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to list tasks")
		return
	}

	WriteJSON(w, http.StatusOK, tasks)
}

// CreateTaskHandler handles POST /api/tasks
func (h *TaskHandler) CreateTaskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var draft models.TaskDraft
	if !DecodeJSON(w, r, &draft) {
		return
	}
	if draft.Title == "" {
		WriteError(w, http.StatusBadRequest, "title is required")
		return
	}

	task, err := h.tasks.Create(r.Context(), &draft)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to create task")
		return
	}

	WriteJSON(w, http.StatusCreated, task)
}

type moveRequest struct {
	Status string `json:"status"`
}

// MoveTaskHandler handles POST /api/tasks/{id}/move.
// A column change publishes task_status_changed, which drives the push to Jira.
func (h *TaskHandler) MoveTaskHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	id := PathParam(r.URL.Path, tasksPrefix, "/move")
	if id == "" {
		WriteError(w, http.StatusBadRequest, "Task id is required")
		return
	}

	var req moveRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Status == "" {
		WriteError(w, http.StatusBadRequest, "status is required")
		return
	}

	task, err := h.tasks.Move(r.Context(), id, req.Status)
	if err != nil {
		WriteServiceError(w, h.logger, err, "Failed to move task")
		return
	}

	WriteJSON(w, http.StatusOK, task)
}
