package storage

import (
	"context"
	"errors"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for persistent storage of fleet history
type Store interface {
	SaveSample(ctx context.Context, sample *models.StatsSample) error
	GetSample(ctx context.Context, id string) (*models.StatsSample, error)
	// ListSamples returns up to limit samples, newest first
	ListSamples(ctx context.Context, limit int) ([]*models.StatsSample, error)

	LogSpikeEvent(ctx context.Context, event *models.SpikeEvent) error
	// ListSpikeEvents returns up to limit events, newest first
	ListSpikeEvents(ctx context.Context, limit int) ([]*models.SpikeEvent, error)

	Ping(ctx context.Context) error
	Close() error
}

// Config selects a store implementation
type Config struct {
	Type     string // "postgres" or "memory"
	URL      string
	Capacity int // memory store bound; 0 uses DefaultMemoryCapacity
}

// Open creates the store described by cfg
func Open(cfg Config) (Store, error) {
	switch cfg.Type {
	case "postgres":
		return NewPostgresStore(cfg.URL)
	case "memory", "":
		return NewMemoryStore(cfg.Capacity), nil
	default:
		return nil, errors.New("unknown store type: " + cfg.Type)
	}
}
