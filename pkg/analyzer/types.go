package analyzer

import "time"

// MetricSample is a single point of a fleet time series
type MetricSample struct {
	Timestamp time.Time
	Value     float64
}

// Series is a named, oldest-first time series (e.g. "power_draw_mw")
type Series struct {
	Name    string
	Unit    string
	Samples []MetricSample
}

// Percentiles contains statistical percentiles
type Percentiles struct {
	Average float64
	P50     float64
	P90     float64
	P95     float64
	P99     float64
	Peak    float64
	Min     float64
}

// PatternType classifies how much a series moves around its mean
type PatternType string

const (
	PatternUnknown        PatternType = "unknown"
	PatternSteady         PatternType = "steady"
	PatternModerate       PatternType = "moderate"
	PatternSpiky          PatternType = "spiky"
	PatternHighlyVariable PatternType = "highly-variable"
)

// UsagePattern describes usage behavior
type UsagePattern struct {
	Type       PatternType
	Variation  float64 // Coefficient of variation
	Confidence float64 // 0-1
}

// GrowthTrend describes the drift of a series over the observed window
type GrowthTrend struct {
	RatePerHour     float64 // % change per hour relative to the window mean
	Confidence      float64 // R² of the fit
	Predicted1Hour  float64
	Predicted24Hour float64
	IsGrowing       bool
	IsShrinking     bool
}

// TrendAnalysis is the full analysis of one series
type TrendAnalysis struct {
	Series      string
	Unit        string
	Start       time.Time
	End         time.Time
	SampleCount int

	Percentiles Percentiles
	Pattern     UsagePattern
	Growth      *GrowthTrend // nil when the window is too short to fit
}
