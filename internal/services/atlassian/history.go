package atlassian

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/common"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
	"github.com/ternarybob/jiralink/internal/services/kv"
)

// MaxHistoryEntries caps the sync history; the oldest entries are evicted first
const MaxHistoryEntries = 100

// History is the bounded, newest-first audit trail of sync attempts
type History struct {
	kv     *kv.Service
	events interfaces.EventService
	mu     sync.Mutex
	now    func() time.Time
	logger arbor.ILogger
}

// NewHistory creates a new history log. events may be nil.
func NewHistory(store *kv.Service, events interfaces.EventService, logger arbor.ILogger) *History {
	return &History{kv: store, events: events, now: time.Now, logger: logger}
}

func (h *History) load(ctx context.Context) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	if _, err := h.kv.GetJSON(ctx, keySyncHistory, &entries); err != nil {
		return nil, fmt.Errorf("failed to load sync history: %w", err)
	}
	return entries, nil
}

// Record stamps the entry with an id and timestamp, prepends it and truncates the log
func (h *History) Record(ctx context.Context, entry models.HistoryEntry) (models.HistoryEntry, error) {
	if entry.ID == "" {
		entry.ID = common.NewHistoryID()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = h.now()
	}

	h.mu.Lock()
	entries, err := h.load(ctx)
	if err == nil {
		entries = append([]models.HistoryEntry{entry}, entries...)
		if len(entries) > MaxHistoryEntries {
			entries = entries[:MaxHistoryEntries]
		}
		err = h.kv.SetJSON(ctx, keySyncHistory, entries, "Jira sync history")
	}
	h.mu.Unlock()

	if err != nil {
		h.logger.Error().Err(err).Str("direction", string(entry.Direction)).Msg("Failed to record sync history")
		return entry, err
	}

	if h.events != nil {
		event := interfaces.Event{Type: interfaces.EventHistoryRecorded, Payload: entry}
		if err := h.events.Publish(context.WithoutCancel(ctx), event); err != nil {
			h.logger.Warn().Err(err).Msg("Failed to publish history event")
		}
	}
	return entry, nil
}

// List returns up to limit of the most recent entries. A non-positive limit returns all.
func (h *History) List(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	entries, err := h.load(ctx)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.HistoryEntry{}
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// Clear empties the log
func (h *History) Clear(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.kv.Delete(ctx, keySyncHistory); err != nil {
		return fmt.Errorf("failed to clear sync history: %w", err)
	}
	h.logger.Info().Msg("Sync history cleared")
	return nil
}
