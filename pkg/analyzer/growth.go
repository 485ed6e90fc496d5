package analyzer

import (
	"fmt"
	"math"
)

const (
	// MinGrowthSamples is the shortest series a trend is fitted to
	MinGrowthSamples = 10

	// Drift beyond ±2% of the mean per hour counts as growing/shrinking
	growthThresholdPerHour = 2.0
)

// CalculateGrowthTrend fits a line through the series with least squares
// and expresses its slope as % of the window mean per hour.
func CalculateGrowthTrend(samples []MetricSample) (*GrowthTrend, error) {
	if len(samples) < MinGrowthSamples {
		return nil, fmt.Errorf("insufficient data for trend analysis (need %d+ samples, got %d)", MinGrowthSamples, len(samples))
	}

	start := samples[0].Timestamp
	x := make([]float64, len(samples)) // hours since start
	y := make([]float64, len(samples))
	for i, s := range samples {
		x[i] = s.Timestamp.Sub(start).Hours()
		y[i] = s.Value
	}

	slope, intercept, r2 := linearRegression(x, y)
	mean := calculateAverage(y)

	var ratePerHour float64
	if mean != 0 {
		ratePerHour = slope / math.Abs(mean) * 100.0
	}

	last := x[len(x)-1]
	predicted1h := slope*(last+1) + intercept
	predicted24h := slope*(last+24) + intercept

	// Power and load never go negative
	if predicted1h < 0 {
		predicted1h = 0
	}
	if predicted24h < 0 {
		predicted24h = 0
	}

	return &GrowthTrend{
		RatePerHour:     ratePerHour,
		Confidence:      r2,
		Predicted1Hour:  predicted1h,
		Predicted24Hour: predicted24h,
		IsGrowing:       ratePerHour > growthThresholdPerHour,
		IsShrinking:     ratePerHour < -growthThresholdPerHour,
	}, nil
}

// linearRegression returns slope, intercept and R² of y over x
func linearRegression(x, y []float64) (slope, intercept, r2 float64) {
	if len(x) == 0 {
		return 0, 0, 0
	}

	meanX := calculateAverage(x)
	meanY := calculateAverage(y)

	numerator, denominator := 0.0, 0.0
	for i := range x {
		numerator += (x[i] - meanX) * (y[i] - meanY)
		denominator += (x[i] - meanX) * (x[i] - meanX)
	}
	if denominator == 0 {
		return 0, meanY, 0
	}

	slope = numerator / denominator
	intercept = meanY - slope*meanX

	ssTotal, ssRes := 0.0, 0.0
	for i := range x {
		predicted := slope*x[i] + intercept
		ssRes += (y[i] - predicted) * (y[i] - predicted)
		ssTotal += (y[i] - meanY) * (y[i] - meanY)
	}
	if ssTotal == 0 {
		return slope, intercept, 0
	}

	r2 = 1.0 - ssRes/ssTotal
	return slope, intercept, math.Max(0, math.Min(1, r2))
}
