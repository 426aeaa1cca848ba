package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	// EventTaskStatusChanged is published by the task store when a task changes column.
	// Payload: TaskStatusChange
	EventTaskStatusChanged EventType = "task_status_changed"
	// EventHistoryRecorded is published after a history entry is appended.
	// Payload: models.HistoryEntry
	EventHistoryRecorded EventType = "history_recorded"
	// EventRemoteStatusChanged is published when a pull detects drift.
	// Payload: models.PullResult
	EventRemoteStatusChanged EventType = "remote_status_changed"
	// EventConnectionChanged is published on connect, refresh failure and disconnect.
	// Payload: *models.ConnectionInfo (nil when disconnected)
	EventConnectionChanged EventType = "connection_changed"
)

// TaskStatusChange is the payload of EventTaskStatusChanged
type TaskStatusChange struct {
	TaskID     string `json:"taskId"`
	FromStatus string `json:"fromStatus"`
	ToStatus   string `json:"toStatus"`
}

// Event represents a system event
type Event struct {
	Type    EventType
	Payload interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers asynchronously
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
