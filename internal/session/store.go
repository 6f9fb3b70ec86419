package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Store persists resume positions and the bitrate preference.
type Store interface {
	// SavePosition inserts or replaces the position for p.Key.
	SavePosition(ctx context.Context, p Position) error

	// GetPosition returns the saved position for key; ok is false if none.
	GetPosition(ctx context.Context, key Key) (p Position, ok bool, err error)

	DeletePosition(ctx context.Context, key Key) error
	DeletePositions(ctx context.Context, keys []Key) error
	DeleteByEventIDs(ctx context.Context, eventIDs []string) error

	// EventIDs returns the unique event ids with a saved position, sorted.
	EventIDs(ctx context.Context) ([]string, error)

	ClearPositions(ctx context.Context) error

	SaveBitratePreset(ctx context.Context, key string) error

	// BitratePreset returns the saved preset key, or "" if none was saved.
	BitratePreset(ctx context.Context) (string, error)
}

// MemoryStore is a concurrency-safe in-memory Store.
type MemoryStore struct {
	mu        sync.RWMutex
	positions map[Key]Position
	preset    string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{positions: make(map[Key]Position)}
}

// SavePosition implements Store.SavePosition.
func (s *MemoryStore) SavePosition(_ context.Context, p Position) error {
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.positions[p.Key] = p
	s.mu.Unlock()
	return nil
}

// GetPosition implements Store.GetPosition.
func (s *MemoryStore) GetPosition(_ context.Context, key Key) (Position, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[key]
	return p, ok, nil
}

// DeletePosition implements Store.DeletePosition.
func (s *MemoryStore) DeletePosition(_ context.Context, key Key) error {
	s.mu.Lock()
	delete(s.positions, key)
	s.mu.Unlock()
	return nil
}

// DeletePositions implements Store.DeletePositions.
func (s *MemoryStore) DeletePositions(_ context.Context, keys []Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.positions, k)
	}
	return nil
}

// DeleteByEventIDs implements Store.DeleteByEventIDs.
func (s *MemoryStore) DeleteByEventIDs(_ context.Context, eventIDs []string) error {
	drop := make(map[string]bool, len(eventIDs))
	for _, id := range eventIDs {
		drop[id] = true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for k := range s.positions {
		if drop[k.EventID] {
			delete(s.positions, k)
		}
	}
	return nil
}

// EventIDs implements Store.EventIDs.
func (s *MemoryStore) EventIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	seen := make(map[string]bool)
	ids := make([]string, 0)
	for k := range s.positions {
		if !seen[k.EventID] {
			seen[k.EventID] = true
			ids = append(ids, k.EventID)
		}
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids, nil
}

// ClearPositions implements Store.ClearPositions.
func (s *MemoryStore) ClearPositions(_ context.Context) error {
	s.mu.Lock()
	s.positions = make(map[Key]Position)
	s.mu.Unlock()
	return nil
}

// SaveBitratePreset implements Store.SaveBitratePreset.
func (s *MemoryStore) SaveBitratePreset(_ context.Context, key string) error {
	s.mu.Lock()
	s.preset = key
	s.mu.Unlock()
	return nil
}

// BitratePreset implements Store.BitratePreset.
func (s *MemoryStore) BitratePreset(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.preset, nil
}
