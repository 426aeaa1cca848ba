package atlassian

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/interfaces"
	"github.com/ternarybob/jiralink/internal/models"
)

// SyncEngine reconciles task status in both directions over the shared mapping table.
// Push is event driven and local status is authoritative; pull is poll driven and
// remote status is authoritative. Neither lets a failure escape as a panic.
type SyncEngine struct {
	client    *Client
	mappings  *MappingStore
	config    *ConfigStore
	history   *History
	tasks     interfaces.TaskStore
	events    interfaces.EventService
	scheduler *Scheduler
	taskLocks sync.Map // local id -> *sync.Mutex
	now       func() time.Time
	logger    arbor.ILogger
}

// NewSyncEngine creates a new sync engine. events may be nil.
func NewSyncEngine(client *Client, mappings *MappingStore, config *ConfigStore, history *History, tasks interfaces.TaskStore, events interfaces.EventService, logger arbor.ILogger) *SyncEngine {
	return &SyncEngine{
		client:    client,
		mappings:  mappings,
		config:    config,
		history:   history,
		tasks:     tasks,
		events:    events,
		scheduler: NewScheduler(logger),
		now:       time.Now,
		logger:    logger,
	}
}

// GetConfig returns the sync configuration
func (e *SyncEngine) GetConfig(ctx context.Context) (*models.SyncConfig, error) {
	return e.config.Get(ctx)
}

// SaveConfig stores the configuration and reschedules the poller to match it
func (e *SyncEngine) SaveConfig(ctx context.Context, config *models.SyncConfig) error {
	if err := e.config.Save(ctx, config); err != nil {
		return err
	}

	if !e.scheduler.IsActive() {
		return nil
	}
	if !config.PollEnabled {
		e.scheduler.Stop()
		return nil
	}
	return e.StartAutoSync(ctx)
}

func (e *SyncEngine) recordFailure(ctx context.Context, direction models.SyncDirection, localID, remoteKey string, err error) {
	e.history.Record(ctx, models.HistoryEntry{
		Direction: direction,
		LocalID:   localID,
		RemoteKey: remoteKey,
		Success:   false,
		Error:     err.Error(),
	})
}

// lockTask serializes push and apply for one local task
func (e *SyncEngine) lockTask(localID string) func() {
	mu, _ := e.taskLocks.LoadOrStore(localID, &sync.Mutex{})
	mu.(*sync.Mutex).Lock()
	return mu.(*sync.Mutex).Unlock
}

// SyncTaskToJira pushes a local column change to Jira as a workflow transition
func (e *SyncEngine) SyncTaskToJira(ctx context.Context, localID, newStatus string) models.PushResult {
	unlock := e.lockTask(localID)
	defer unlock()
	return e.push(ctx, localID, newStatus)
}

// SyncCurrentColumn pushes whatever column the task is in when its turn comes.
// Moves handled out of order still leave Jira on the latest column.
func (e *SyncEngine) SyncCurrentColumn(ctx context.Context, localID string) models.PushResult {
	unlock := e.lockTask(localID)
	defer unlock()

	task, err := e.tasks.GetTask(ctx, localID)
	if err != nil {
		e.recordFailure(ctx, models.DirectionPush, localID, "", err)
		return models.PushResult{Reason: err.Error()}
	}
	return e.push(ctx, localID, task.Status)
}

func (e *SyncEngine) push(ctx context.Context, localID, newStatus string) (result models.PushResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("push panicked: %v", r)
			e.logger.Error().Str("local_id", localID).Err(err).Msg("PANIC RECOVERED in push")
			e.recordFailure(ctx, models.DirectionPush, localID, "", err)
			result = models.PushResult{Reason: err.Error()}
		}
	}()

	mapping, err := e.mappings.Get(ctx, localID)
	if err != nil {
		e.recordFailure(ctx, models.DirectionPush, localID, "", err)
		return models.PushResult{Reason: err.Error()}
	}
	if mapping == nil {
		return models.PushResult{Reason: models.ReasonNotLinked}
	}

	config, err := e.config.Get(ctx)
	if err != nil {
		e.recordFailure(ctx, models.DirectionPush, localID, mapping.RemoteKey, err)
		return models.PushResult{JiraKey: mapping.RemoteKey, Reason: err.Error()}
	}

	rules := RulesForColumn(config.StatusRules, newStatus)
	if len(rules) == 0 {
		e.logger.Debug().
			Str("local_id", localID).
			Str("column", newStatus).
			Msg("No status rule for column, push skipped")
		return models.PushResult{JiraKey: mapping.RemoteKey, Reason: models.ReasonNoMapping}
	}

	current := models.JiraStatus{Name: mapping.RemoteStatus}
	for i := range rules {
		if ruleMatchesStatus(&rules[i], &current) {
			e.logger.Debug().
				Str("remote_key", mapping.RemoteKey).
				Str("status", mapping.RemoteStatus).
				Msg("Issue already in target status, push skipped")
			return models.PushResult{Synced: true, JiraKey: mapping.RemoteKey}
		}
	}

	transitions, err := e.client.ListTransitions(ctx, mapping.RemoteKey)
	if err != nil {
		e.recordFailure(ctx, models.DirectionPush, localID, mapping.RemoteKey, err)
		return models.PushResult{JiraKey: mapping.RemoteKey, Reason: err.Error()}
	}

	transition := transitionForRules(transitions, rules)
	if transition == nil {
		available := make([]string, 0, len(transitions))
		for _, t := range transitions {
			available = append(available, t.To.Name)
		}
		e.logger.Info().
			Str("remote_key", mapping.RemoteKey).
			Str("column", newStatus).
			Strs("available", available).
			Msg("No transition reaches target status")
		return models.PushResult{
			JiraKey:              mapping.RemoteKey,
			Reason:               models.ReasonNoTransition,
			AvailableTransitions: available,
		}
	}

	if err := e.client.ApplyTransition(ctx, mapping.RemoteKey, transition.ID); err != nil {
		e.recordFailure(ctx, models.DirectionPush, localID, mapping.RemoteKey, err)
		return models.PushResult{JiraKey: mapping.RemoteKey, Reason: err.Error()}
	}

	fromStatus := mapping.RemoteStatus
	if _, err := e.mappings.Update(ctx, localID, func(m *models.Mapping) {
		m.RemoteStatus = transition.To.Name
		m.LastSyncedAt = e.now()
		m.Direction = models.DirectionPush
	}); err != nil {
		// The remote already moved; the next pull reports the drift
		e.logger.Error().Err(err).Str("local_id", localID).Msg("Failed to update mapping after push")
	}

	e.history.Record(ctx, models.HistoryEntry{
		Direction:  models.DirectionPush,
		LocalID:    localID,
		RemoteKey:  mapping.RemoteKey,
		Success:    true,
		FromStatus: fromStatus,
		ToStatus:   transition.To.Name,
	})

	e.logger.Info().
		Str("local_id", localID).
		Str("remote_key", mapping.RemoteKey).
		Str("to", transition.To.Name).
		Msg("Pushed status to Jira")

	return models.PushResult{Synced: true, JiraKey: mapping.RemoteKey}
}

// PullFromJira detects remote status drift for every mapped issue. Mappings are
// not changed; updates are applied separately through ApplyUpdate.
func (e *SyncEngine) PullFromJira(ctx context.Context) (result *models.PullResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pull panicked: %v", r)
			e.logger.Error().Err(err).Msg("PANIC RECOVERED in pull")
			e.recordFailure(ctx, models.DirectionPull, "", "", err)
			result = nil
		}
	}()

	mappings, err := e.mappings.List(ctx)
	if err != nil {
		e.recordFailure(ctx, models.DirectionPull, "", "", err)
		return nil, err
	}

	result = &models.PullResult{Updates: []models.StatusUpdate{}}
	if len(mappings) == 0 {
		return result, nil
	}

	byKey := make(map[string]*models.Mapping, len(mappings))
	keys := make([]string, 0, len(mappings))
	for _, m := range mappings {
		byKey[m.RemoteKey] = m
		keys = append(keys, m.RemoteKey)
	}

	config, err := e.config.Get(ctx)
	if err != nil {
		e.recordFailure(ctx, models.DirectionPull, "", "", err)
		return nil, err
	}

	issues, err := e.client.SearchIssuesByKeys(ctx, keys)
	if err != nil {
		e.recordFailure(ctx, models.DirectionPull, "", "", err)
		return nil, err
	}
	result.Checked = len(issues)

	returned := make(map[string]bool, len(issues))
	for _, issue := range issues {
		returned[issue.Key] = true
	}
	for _, key := range keys {
		if returned[key] {
			continue
		}
		result.Missing = append(result.Missing, key)
		e.recordFailure(ctx, models.DirectionPull, byKey[key].LocalID, key, fmt.Errorf("issue %s not found in jira", key))
	}
	if len(result.Missing) > 0 {
		e.logger.Warn().Strs("keys", result.Missing).Msg("Linked issues missing from Jira")
	}

	for _, issue := range issues {
		m, ok := byKey[issue.Key]
		if !ok || issue.Status.Name == m.RemoteStatus {
			continue
		}
		result.Updates = append(result.Updates, models.StatusUpdate{
			LocalID:         m.LocalID,
			RemoteKey:       issue.Key,
			PreviousStatus:  m.RemoteStatus,
			NewStatus:       issue.Status.Name,
			SuggestedColumn: ColumnForStatus(config.StatusRules, &issue.Status),
			Issue:           issue,
		})
	}

	e.logger.Info().
		Int("checked", result.Checked).
		Int("updates", len(result.Updates)).
		Msg("Pulled status from Jira")

	if len(result.Updates) > 0 && e.events != nil {
		event := interfaces.Event{Type: interfaces.EventRemoteStatusChanged, Payload: result}
		if err := e.events.Publish(context.WithoutCancel(ctx), event); err != nil {
			e.logger.Warn().Err(err).Msg("Failed to publish pull result")
		}
	}

	return result, nil
}

// ApplyUpdate moves the local task to the suggested column and records the new remote status
func (e *SyncEngine) ApplyUpdate(ctx context.Context, update models.StatusUpdate) error {
	if update.LocalID == "" || update.SuggestedColumn == "" {
		return fmt.Errorf("%w: update requires a local id and a column", ErrConfiguration)
	}

	unlock := e.lockTask(update.LocalID)
	defer unlock()

	if _, err := e.tasks.MoveTask(ctx, update.LocalID, update.SuggestedColumn); err != nil {
		e.recordFailure(ctx, models.DirectionPull, update.LocalID, update.RemoteKey, err)
		return fmt.Errorf("failed to move task %s: %w", update.LocalID, err)
	}

	found, err := e.mappings.Update(ctx, update.LocalID, func(m *models.Mapping) {
		m.RemoteStatus = update.NewStatus
		m.LastSyncedAt = e.now()
		m.Direction = models.DirectionPull
	})
	if err == nil && !found {
		err = ErrMappingNotFound
	}
	if err != nil {
		e.recordFailure(ctx, models.DirectionPull, update.LocalID, update.RemoteKey, err)
		return err
	}

	e.history.Record(ctx, models.HistoryEntry{
		Direction:  models.DirectionPull,
		LocalID:    update.LocalID,
		RemoteKey:  update.RemoteKey,
		Success:    true,
		FromStatus: update.PreviousStatus,
		ToStatus:   update.NewStatus,
	})
	return nil
}

// Link binds a local task to an existing issue
func (e *SyncEngine) Link(ctx context.Context, localID, remoteKey string) (*models.Mapping, error) {
	remoteKey = strings.ToUpper(strings.TrimSpace(remoteKey))
	if localID == "" || remoteKey == "" {
		return nil, fmt.Errorf("%w: local id and remote key are required", ErrConfiguration)
	}

	if _, err := e.tasks.GetTask(ctx, localID); err != nil {
		return nil, err
	}

	issue, err := e.client.GetIssue(ctx, remoteKey)
	if err != nil {
		e.recordFailure(ctx, models.DirectionLink, localID, remoteKey, err)
		return nil, err
	}

	mapping := &models.Mapping{
		LocalID:      localID,
		RemoteKey:    issue.Key,
		RemoteID:     issue.ID,
		RemoteStatus: issue.Status.Name,
		LastSyncedAt: e.now(),
		Direction:    models.DirectionLink,
	}
	if err := e.mappings.Put(ctx, mapping); err != nil {
		return nil, err
	}

	e.history.Record(ctx, models.HistoryEntry{
		Direction: models.DirectionLink,
		LocalID:   localID,
		RemoteKey: issue.Key,
		Success:   true,
		ToStatus:  issue.Status.Name,
	})
	return mapping, nil
}

// Unlink removes the mapping for a local task
func (e *SyncEngine) Unlink(ctx context.Context, localID string) error {
	found, err := e.mappings.Delete(ctx, localID)
	if err != nil {
		return err
	}
	if !found {
		return ErrMappingNotFound
	}
	e.logger.Info().Str("local_id", localID).Msg("Task unlinked from Jira")
	return nil
}

// GetMapping returns the mapping for a local task, or ErrMappingNotFound
func (e *SyncEngine) GetMapping(ctx context.Context, localID string) (*models.Mapping, error) {
	m, err := e.mappings.Get(ctx, localID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrMappingNotFound
	}
	return m, nil
}

// ListMappings returns every mapping
func (e *SyncEngine) ListMappings(ctx context.Context) ([]*models.Mapping, error) {
	return e.mappings.List(ctx)
}

// ListHistory returns the most recent history entries
func (e *SyncEngine) ListHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error) {
	return e.history.List(ctx, limit)
}

// ClearHistory empties the history
func (e *SyncEngine) ClearHistory(ctx context.Context) error {
	return e.history.Clear(ctx)
}

// StartAutoSync schedules pull cycles at the configured interval
func (e *SyncEngine) StartAutoSync(ctx context.Context) error {
	config, err := e.config.Get(ctx)
	if err != nil {
		return err
	}
	return e.scheduler.Start(ctx, config.PollIntervalMinutes, e.autoSyncCycle)
}

// StopAutoSync cancels the schedule; a no-op when inactive
func (e *SyncEngine) StopAutoSync() {
	e.scheduler.Stop()
}

// IsAutoSyncRunning reports whether a schedule is installed
func (e *SyncEngine) IsAutoSyncRunning() bool {
	return e.scheduler.IsActive()
}

// autoSyncCycle runs one scheduled pull and applies updates when configured to
func (e *SyncEngine) autoSyncCycle(ctx context.Context) error {
	result, err := e.PullFromJira(ctx)
	if err != nil {
		return err
	}

	config, err := e.config.Get(ctx)
	if err != nil {
		return err
	}
	if !config.AutoApplyPulled {
		return nil
	}

	var errs []error
	for _, update := range result.Updates {
		if err := e.ApplyUpdate(ctx, update); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", update.RemoteKey, err))
		}
	}
	return errors.Join(errs...)
}
