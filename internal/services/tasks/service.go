package tasks

import (
	"context"
	"fmt"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
)

// Service wraps the task store and announces column changes on the event bus
type Service struct {
	store  interfaces.TaskStore
	events interfaces.EventService
	logger arbor.ILogger
}

// NewService creates a new task service
func NewService(store interfaces.TaskStore, events interfaces.EventService, logger arbor.ILogger) *Service {
	return &Service{
		store:  store,
		events: events,
		logger: logger,
	}
}

// List returns tasks in a column, or every task when column is empty
func (s *Service) List(ctx context.Context, column string) ([]*models.Task, error) {
	return s.store.ListTasks(ctx, strings.TrimSpace(column))
}

// Get returns one task
func (s *Service) Get(ctx context.Context, id string) (*models.Task, error) {
	return s.store.GetTask(ctx, id)
}

// Create adds a task
func (s *Service) Create(ctx context.Context, draft *models.TaskDraft) (*models.Task, error) {
	if draft.Status == "" {
		draft.Status = "backlog"
	}
	if draft.Priority == "" {
		draft.Priority = "medium"
	}
	return s.store.CreateTask(ctx, draft)
}

// Move changes a task's column and publishes EventTaskStatusChanged when it actually moved
func (s *Service) Move(ctx context.Context, id, column string) (*models.Task, error) {
	column = strings.TrimSpace(column)
	if column == "" {
		return nil, fmt.Errorf("column is required")
	}

	current, err := s.store.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	from := current.Status

	task, err := s.store.MoveTask(ctx, id, column)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("task_id", id).
		Str("from", from).
		Str("to", column).
		Msg("Task moved")

	if from != column && s.events != nil {
		event := interfaces.Event{
			Type:    interfaces.EventTaskStatusChanged,
			Payload: interfaces.TaskStatusChange{TaskID: id, FromStatus: from, ToStatus: column},
		}
		if err := s.events.Publish(context.WithoutCancel(ctx), event); err != nil {
			s.logger.Warn().Err(err).Str("task_id", id).Msg("Failed to publish task move")
		}
	}

	return task, nil
}
