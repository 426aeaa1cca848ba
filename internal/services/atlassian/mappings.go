package atlassian

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jiralink/internal/models"
	"github.com/ternarybob/jiralink/internal/services/kv"
)

// MappingStore is the table of local task id to Jira issue bindings, shared by import and sync.
// All writes go through one mutex so concurrent push, pull and import never lose an update.
type MappingStore struct {
	kv     *kv.Service
	mu     sync.Mutex
	logger arbor.ILogger
}

// NewMappingStore creates a new mapping store
func NewMappingStore(store *kv.Service, logger arbor.ILogger) *MappingStore {
	return &MappingStore{kv: store, logger: logger}
}

func (s *MappingStore) load(ctx context.Context) (map[string]*models.Mapping, error) {
	mappings := make(map[string]*models.Mapping)
	if _, err := s.kv.GetJSON(ctx, keyMappings, &mappings); err != nil {
		return nil, fmt.Errorf("failed to load mappings: %w", err)
	}
	if mappings == nil {
		mappings = make(map[string]*models.Mapping)
	}
	return mappings, nil
}

func (s *MappingStore) save(ctx context.Context, mappings map[string]*models.Mapping) error {
	if err := s.kv.SetJSON(ctx, keyMappings, mappings, "Jira issue mappings"); err != nil {
		return fmt.Errorf("failed to save mappings: %w", err)
	}
	return nil
}

// Get returns the mapping for a local id, or nil
func (s *MappingStore) Get(ctx context.Context, localID string) (*models.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mappings, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	return mappings[localID], nil
}

// List returns all mappings ordered by local id
func (s *MappingStore) List(ctx context.Context) ([]*models.Mapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mappings, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	list := make([]*models.Mapping, 0, len(mappings))
	for _, m := range mappings {
		list = append(list, m)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].LocalID < list[j].LocalID })
	return list, nil
}

// ByRemoteKey indexes all mappings by Jira key
func (s *MappingStore) ByRemoteKey(ctx context.Context) (map[string]*models.Mapping, error) {
	list, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	index := make(map[string]*models.Mapping, len(list))
	for _, m := range list {
		index[m.RemoteKey] = m
	}
	return index, nil
}

// Put inserts or replaces the mapping for m.LocalID. Any other local id bound
// to the same remote key is released so a key is linked at most once.
func (s *MappingStore) Put(ctx context.Context, m *models.Mapping) error {
	if m.LocalID == "" || m.RemoteKey == "" {
		return fmt.Errorf("mapping requires a local id and a remote key")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	mappings, err := s.load(ctx)
	if err != nil {
		return err
	}

	for localID, existing := range mappings {
		if localID != m.LocalID && existing.RemoteKey == m.RemoteKey {
			delete(mappings, localID)
		}
	}
	mappings[m.LocalID] = m

	if err := s.save(ctx, mappings); err != nil {
		return err
	}

	s.logger.Debug().
		Str("local_id", m.LocalID).
		Str("remote_key", m.RemoteKey).
		Msg("Mapping saved")
	return nil
}

// Update applies fn to an existing mapping under the write lock.
// Returns false when the local id is not mapped.
func (s *MappingStore) Update(ctx context.Context, localID string, fn func(m *models.Mapping)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mappings, err := s.load(ctx)
	if err != nil {
		return false, err
	}

	m, ok := mappings[localID]
	if !ok {
		return false, nil
	}
	fn(m)

	return true, s.save(ctx, mappings)
}

// Delete removes the mapping for a local id. Returns false when none existed.
func (s *MappingStore) Delete(ctx context.Context, localID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mappings, err := s.load(ctx)
	if err != nil {
		return false, err
	}
	if _, ok := mappings[localID]; !ok {
		return false, nil
	}

	delete(mappings, localID)
	return true, s.save(ctx, mappings)
}
