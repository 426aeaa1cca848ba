package events

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
)

// NewLoggerSubscriber creates an event handler that logs sync events
func NewLoggerSubscriber(logger arbor.ILogger) interfaces.EventHandler {
	return func(ctx context.Context, event interfaces.Event) error {
		logEvent := logger.Debug().
			Str("event_type", string(event.Type))

		switch payload := event.Payload.(type) {
		case interfaces.TaskStatusChange:
			logEvent = logEvent.
				Str("task_id", payload.TaskID).
				Str("from", payload.FromStatus).
				Str("to", payload.ToStatus)
		case models.HistoryEntry:
			logEvent = logEvent.
				Str("direction", string(payload.Direction)).
				Str("local_id", payload.LocalID).
				Str("remote_key", payload.RemoteKey).
				Bool("success", payload.Success)
		case *models.PullResult:
			if payload != nil {
				logEvent = logEvent.
					Int("checked", payload.Checked).
					Int("updates", len(payload.Updates))
			}
		case *models.ConnectionInfo:
			if payload != nil {
				logEvent = logEvent.Str("site", payload.SiteURL)
			}
		}

		logEvent.Msg("Event published")

		return nil
	}
}

// SubscribeLoggerToAllEvents subscribes the logger to all known event types
func SubscribeLoggerToAllEvents(eventService interfaces.EventService, logger arbor.ILogger) error {
	subscriber := NewLoggerSubscriber(logger)

	eventTypes := []interfaces.EventType{
		interfaces.EventTaskStatusChanged,
		interfaces.EventHistoryRecorded,
		interfaces.EventRemoteStatusChanged,
		interfaces.EventConnectionChanged,
	}

	for _, eventType := range eventTypes {
		if err := eventService.Subscribe(eventType, subscriber); err != nil {
			return fmt.Errorf("failed to subscribe logger to event type %s: %w", eventType, err)
		}
	}

	logger.Debug().
		Int("event_type_count", len(eventTypes)).
		Msg("Logger subscribed to all event types")

	return nil
}
