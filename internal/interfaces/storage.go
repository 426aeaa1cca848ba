package interfaces

import (
	"context"
	"errors"

	"github.com/ternarybob/jiralink/internal/models"
)

// ErrTaskNotFound is returned when a local task id does not exist
var ErrTaskNotFound = errors.New("task not found")

// TaskStore is the local task-tracking store. The connector only consumes
// this capability; the host application owns the implementation.
type TaskStore interface {
	CreateTask(ctx context.Context, draft *models.TaskDraft) (*models.Task, error)
	GetTask(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, task *models.Task) error
	MoveTask(ctx context.Context, id string, column string) (*models.Task, error)
	ListTasks(ctx context.Context, column string) ([]*models.Task, error)
}

// StorageManager groups the storages backed by one database
type StorageManager interface {
	KeyValueStorage() KeyValueStorage
	TaskStorage() TaskStore
	Close() error
}
