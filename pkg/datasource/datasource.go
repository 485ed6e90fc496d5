package datasource

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/opscart/gpu-fleet-sim/pkg/analyzer"
	"github.com/opscart/gpu-fleet-sim/pkg/storage"
)

// ErrNoSource is returned by Select when neither Prometheus nor a store can serve history
var ErrNoSource = errors.New("no history source available")

// HistorySource provides past fleet series for trend analysis
type HistorySource interface {
	// Series returns the named series over the window ending now, oldest first
	Series(ctx context.Context, name string, window time.Duration) (analyzer.Series, error)
	IsAvailable(ctx context.Context) bool
	Name() string
}

type Config struct {
	PrometheusURL string
	Step          time.Duration
	Timeout       time.Duration // availability probe; 0 means 5s
}

// Select prefers Prometheus when it answers and falls back to the store.
// store may be nil.
func Select(ctx context.Context, cfg Config, store storage.Store, logger *zap.Logger) (HistorySource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	if cfg.PrometheusURL != "" {
		prom, err := NewPrometheusSource(cfg.PrometheusURL, cfg.Step, logger)
		if err != nil {
			logger.Warn("prometheus initialization failed", zap.Error(err))
		} else {
			probeCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			available := prom.IsAvailable(probeCtx)
			cancel()
			if available {
				return prom, nil
			}
			logger.Warn("prometheus not reachable, falling back to storage", zap.String("url", cfg.PrometheusURL))
		}
	}

	if store == nil {
		return nil, ErrNoSource
	}
	return NewStoreSource(store, 0), nil
}
