package common

import (
	"github.com/google/uuid"
)

// NewTaskID generates a unique local task ID
// Format: task_<uuid>
func NewTaskID() string {
	return "task_" + uuid.New().String()
}

// NewHistoryID generates a unique sync history entry ID
// Format: hist_<uuid>
func NewHistoryID() string {
	return "hist_" + uuid.New().String()
}
