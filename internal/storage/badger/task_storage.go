package badger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/common"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// TaskStorage is the default local task store used when jiralink runs standalone
type TaskStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewTaskStorage creates a new TaskStorage instance
func NewTaskStorage(db *BadgerDB, logger arbor.ILogger) interfaces.TaskStore {
	return &TaskStorage{
		db:     db,
		logger: logger,
	}
}

// CreateTask inserts a task built from draft and returns it with its new id
func (s *TaskStorage) CreateTask(ctx context.Context, draft *models.TaskDraft) (*models.Task, error) {
	if draft == nil {
		return nil, fmt.Errorf("task draft is nil")
	}
	if strings.TrimSpace(draft.Title) == "" {
		return nil, fmt.Errorf("task title is required")
	}

	now := time.Now()
	task := &models.Task{
		ID:          common.NewTaskID(),
		Title:       draft.Title,
		Description: draft.Description,
		Status:      draft.Status,
		Priority:    draft.Priority,
		Labels:      draft.Labels,
		Source:      draft.Source,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.db.Store().Insert(task.ID, task); err != nil {
		return nil, fmt.Errorf("failed to insert task: %w", err)
	}

	s.logger.Debug().Str("task_id", task.ID).Str("status", task.Status).Msg("Task created")
	return task, nil
}

// GetTask retrieves a task by id
func (s *TaskStorage) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	err := s.db.Store().Get(id, &task)
	if err == badgerhold.ErrNotFound {
		return nil, interfaces.ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// UpdateTask overwrites an existing task
func (s *TaskStorage) UpdateTask(ctx context.Context, task *models.Task) error {
	task.UpdatedAt = time.Now()
	err := s.db.Store().Update(task.ID, task)
	if err == badgerhold.ErrNotFound {
		return interfaces.ErrTaskNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// MoveTask changes the column of a task
func (s *TaskStorage) MoveTask(ctx context.Context, id string, column string) (*models.Task, error) {
	task, err := s.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}

	task.Status = column
	if err := s.UpdateTask(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns tasks in column, or all tasks when column is empty, oldest first
func (s *TaskStorage) ListTasks(ctx context.Context, column string) ([]*models.Task, error) {
	var tasks []*models.Task

	query := badgerhold.Where("ID").Ne("")
	if column != "" {
		query = badgerhold.Where("Status").Eq(column).Index("Status")
	}

	if err := s.db.Store().Find(&tasks, query.SortBy("CreatedAt")); err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}
