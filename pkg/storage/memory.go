package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// DefaultMemoryCapacity keeps one day of samples at the default 10s interval
const DefaultMemoryCapacity = 8640

var errStoreClosed = errors.New("store is closed")

// MemoryStore is a bounded in-process Store. Oldest records are dropped
// once a table reaches capacity.
type MemoryStore struct {
	mu       sync.RWMutex
	capacity int
	samples  []models.StatsSample
	events   []models.SpikeEvent
	closed   bool
}

// NewMemoryStore creates an empty store holding up to capacity records per table
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultMemoryCapacity
	}
	return &MemoryStore{capacity: capacity}
}

// SaveSample stores a copy of the sample, assigning an ID and timestamp if unset
func (s *MemoryStore) SaveSample(ctx context.Context, sample *models.StatsSample) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepareSample(sample)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	s.samples = appendBounded(s.samples, *sample, s.capacity)
	return nil
}

// GetSample retrieves a sample by ID
func (s *MemoryStore) GetSample(ctx context.Context, id string) (*models.StatsSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.samples) - 1; i >= 0; i-- {
		if s.samples[i].ID == id {
			sample := s.samples[i]
			return &sample, nil
		}
	}
	return nil, fmt.Errorf("sample %s: %w", id, ErrNotFound)
}

// ListSamples returns up to limit samples, newest first
func (s *MemoryStore) ListSamples(ctx context.Context, limit int) ([]*models.StatsSample, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.StatsSample
	for i := len(s.samples) - 1; i >= 0 && len(out) < limit; i-- {
		sample := s.samples[i]
		out = append(out, &sample)
	}
	return out, nil
}

// LogSpikeEvent stores a copy of the event
func (s *MemoryStore) LogSpikeEvent(ctx context.Context, event *models.SpikeEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	prepareEvent(event)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}

	s.events = appendBounded(s.events, *event, s.capacity)
	return nil
}

// ListSpikeEvents returns up to limit events, newest first
func (s *MemoryStore) ListSpikeEvents(ctx context.Context, limit int) ([]*models.SpikeEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.SpikeEvent
	for i := len(s.events) - 1; i >= 0 && len(out) < limit; i-- {
		event := s.events[i]
		out = append(out, &event)
	}
	return out, nil
}

// Ping fails once the store is closed
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errStoreClosed
	}
	return nil
}

// Close rejects further writes; stored records stay readable
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func appendBounded[T any](items []T, item T, capacity int) []T {
	if len(items) >= capacity {
		copy(items, items[1:])
		items = items[:len(items)-1]
	}
	return append(items, item)
}
