package analyzer

import (
	"fmt"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// Series names shared by the recorder, the Prometheus datasource and reports
const (
	SeriesPowerDraw     = "power_draw_mw"
	SeriesGPULoad       = "gpu_load_pct"
	SeriesCooling       = "cooling_pct"
	SeriesEnergySavings = "energy_savings_pct"
	SeriesCoolingPUE    = "cooling_pue"
)

var seriesUnits = map[string]string{
	SeriesPowerDraw:     "MW",
	SeriesGPULoad:       "%",
	SeriesCooling:       "%",
	SeriesEnergySavings: "%",
	SeriesCoolingPUE:    "",
}

// SeriesNames lists the series derivable from stored stats samples
func SeriesNames() []string {
	return []string{SeriesPowerDraw, SeriesGPULoad, SeriesCooling, SeriesEnergySavings, SeriesCoolingPUE}
}

// UnitOf returns the unit of a known series
func UnitOf(name string) (string, bool) {
	unit, ok := seriesUnits[name]
	return unit, ok
}

// SeriesFromSamples extracts one named series from stored stats samples.
// Samples may arrive newest-first; the series is returned oldest-first.
func SeriesFromSamples(name string, samples []models.StatsSample) (Series, error) {
	unit, ok := UnitOf(name)
	if !ok {
		return Series{}, fmt.Errorf("unknown series %q", name)
	}

	series := Series{Name: name, Unit: unit, Samples: make([]MetricSample, 0, len(samples))}
	for _, s := range samples {
		var v float64
		switch name {
		case SeriesPowerDraw:
			v = s.Stats.PowerDrawMW
		case SeriesGPULoad:
			v = s.AvgGPULoad
		case SeriesCooling:
			v = s.AvgCooling
		case SeriesEnergySavings:
			v = s.Stats.EnergySavingsPct
		case SeriesCoolingPUE:
			v = s.Stats.CoolingPUE
		}
		series.Samples = append(series.Samples, MetricSample{Timestamp: s.RecordedAt, Value: v})
	}

	if n := len(series.Samples); n > 1 && series.Samples[0].Timestamp.After(series.Samples[n-1].Timestamp) {
		for i, j := 0, n-1; i < j; i, j = i+1, j-1 {
			series.Samples[i], series.Samples[j] = series.Samples[j], series.Samples[i]
		}
	}
	return series, nil
}

// AnalyzeSeries computes percentiles, usage pattern and, when the window is
// long enough, the growth trend of a series.
func AnalyzeSeries(series Series) (*TrendAnalysis, error) {
	percentiles, err := CalculatePercentiles(series.Samples)
	if err != nil {
		return nil, fmt.Errorf("series %s: %w", series.Name, err)
	}

	analysis := &TrendAnalysis{
		Series:      series.Name,
		Unit:        series.Unit,
		Start:       series.Samples[0].Timestamp,
		End:         series.Samples[len(series.Samples)-1].Timestamp,
		SampleCount: len(series.Samples),
		Percentiles: *percentiles,
		Pattern:     AnalyzeUsagePattern(series.Samples),
	}

	if len(series.Samples) >= MinGrowthSamples {
		growth, err := CalculateGrowthTrend(series.Samples)
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", series.Name, err)
		}
		analysis.Growth = growth
	}
	return analysis, nil
}
