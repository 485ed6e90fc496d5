package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/opscart/gpu-fleet-sim/pkg/analyzer"
	"github.com/opscart/gpu-fleet-sim/pkg/models"
	"github.com/opscart/gpu-fleet-sim/pkg/storage"
)

// StoreSource reads fleet series from recorded stats samples
type StoreSource struct {
	store storage.Store
	limit int
	now   func() time.Time
}

// NewStoreSource reads at most limit samples per query
func NewStoreSource(store storage.Store, limit int) *StoreSource {
	if limit <= 0 {
		limit = storage.DefaultMemoryCapacity
	}
	return &StoreSource{store: store, limit: limit, now: time.Now}
}

// Series returns the recorded samples of the window ending now
func (s *StoreSource) Series(ctx context.Context, name string, window time.Duration) (analyzer.Series, error) {
	stored, err := s.store.ListSamples(ctx, s.limit)
	if err != nil {
		return analyzer.Series{}, fmt.Errorf("failed to list samples: %w", err)
	}

	cutoff := s.now().Add(-window)
	inWindow := make([]models.StatsSample, 0, len(stored))
	for _, sample := range stored {
		if !sample.RecordedAt.Before(cutoff) {
			inWindow = append(inWindow, *sample)
		}
	}
	if len(inWindow) == 0 {
		return analyzer.Series{}, fmt.Errorf("no samples recorded in the last %v", window)
	}

	return analyzer.SeriesFromSamples(name, inWindow)
}

func (s *StoreSource) IsAvailable(ctx context.Context) bool {
	return s.store.Ping(ctx) == nil
}

func (s *StoreSource) Name() string {
	return "store"
}
