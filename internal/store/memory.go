package store

import (
	"context"
	"sync"

	"github.com/i474232898/weather-cache-sync/internal/weather"
)

var (
	// ErrNotFound is returned when the cache holds no weather record.
	ErrNotFound = weather.ErrNoCachedRecord
)

// MemoryStore is a concurrency-safe in-memory single-city cache.
// It holds at most one record; writing another city replaces it.
type MemoryStore struct {
	mu sync.RWMutex

	current *weather.Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Upsert merges rec into the stored record for the same city, or replaces the
// stored record when the city differs.
func (s *MemoryStore) Upsert(_ context.Context, rec weather.Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := rec
	if s.current != nil && s.current.CityName == rec.CityName {
		next = rec.MergeInto(*s.current)
	}
	s.current = &next
	return nil
}

// LoadCurrent returns the stored record.
func (s *MemoryStore) LoadCurrent(_ context.Context) (weather.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return weather.Record{}, ErrNotFound
	}
	return *s.current, nil
}

func (s *MemoryStore) Close() error { return nil }
