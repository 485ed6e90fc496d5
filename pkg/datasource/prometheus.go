package datasource

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"go.uber.org/zap"

	"github.com/opscart/gpu-fleet-sim/pkg/analyzer"
	"github.com/opscart/gpu-fleet-sim/pkg/metrics"
)

// DefaultStep matches the default recorder interval
const DefaultStep = 10 * time.Second

// maxPoints is Prometheus' own limit on points per range query
const maxPoints = 11000

// exported metric behind each analyzer series
var seriesMetrics = map[string]string{
	analyzer.SeriesPowerDraw:     metrics.PowerDrawMW,
	analyzer.SeriesGPULoad:       metrics.AvgGPULoadPct,
	analyzer.SeriesCooling:       metrics.AvgCoolingPct,
	analyzer.SeriesEnergySavings: metrics.EnergySavingsPct,
	analyzer.SeriesCoolingPUE:    metrics.CoolingPUE,
}

// PrometheusSource reads fleet series previously scraped from /metrics
type PrometheusSource struct {
	client v1.API
	url    string
	step   time.Duration
	logger *zap.Logger
}

func NewPrometheusSource(url string, step time.Duration, logger *zap.Logger) (*PrometheusSource, error) {
	client, err := api.NewClient(api.Config{
		Address: url,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	if step <= 0 {
		step = DefaultStep
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &PrometheusSource{
		client: v1.NewAPI(client),
		url:    url,
		step:   step,
		logger: logger,
	}, nil
}

// Series fetches an analyzer series over the window ending now. Multiple
// scraped instances are averaged.
func (p *PrometheusSource) Series(ctx context.Context, name string, window time.Duration) (analyzer.Series, error) {
	metric, ok := seriesMetrics[name]
	if !ok {
		return analyzer.Series{}, fmt.Errorf("unknown series %q", name)
	}

	end := time.Now()
	samples, err := p.QueryRange(ctx, fmt.Sprintf("avg(%s)", metric), end.Add(-window), end)
	if err != nil {
		return analyzer.Series{}, fmt.Errorf("%s: %w", name, err)
	}

	unit, _ := analyzer.UnitOf(name)
	return analyzer.Series{Name: name, Unit: unit, Samples: samples}, nil
}

// QueryRange runs a PromQL range query and flattens the first returned
// series into samples. The step widens if the window would exceed
// Prometheus' point limit.
func (p *PrometheusSource) QueryRange(ctx context.Context, query string, start, end time.Time) ([]analyzer.MetricSample, error) {
	step := p.step
	if points := end.Sub(start) / step; points > maxPoints {
		step = end.Sub(start) / maxPoints
	}

	result, warnings, err := p.client.QueryRange(ctx, query, v1.Range{
		Start: start,
		End:   end,
		Step:  step,
	})
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	if len(warnings) > 0 {
		p.logger.Warn("prometheus returned warnings", zap.String("query", query), zap.Strings("warnings", warnings))
	}

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %s for query: %s", result.Type(), query)
	}
	if len(matrix) == 0 || len(matrix[0].Values) == 0 {
		return nil, fmt.Errorf("no data for query: %s", query)
	}

	values := matrix[0].Values
	samples := make([]analyzer.MetricSample, 0, len(values))
	for _, v := range values {
		samples = append(samples, analyzer.MetricSample{
			Timestamp: v.Timestamp.Time(),
			Value:     float64(v.Value),
		})
	}
	return samples, nil
}

// IsAvailable reports whether Prometheus answers a trivial query
func (p *PrometheusSource) IsAvailable(ctx context.Context) bool {
	_, _, err := p.client.Query(ctx, "up", time.Now())
	return err == nil
}

func (p *PrometheusSource) Name() string {
	return "prometheus (" + p.url + ")"
}
