package analyzer

import (
	"fmt"
	"math"
	"sort"
)

// Coefficient-of-variation bands for usage patterns
const (
	steadyVariation   = 0.15
	moderateVariation = 0.35
	spikyVariation    = 0.70

	minPatternSamples = 10
)

// CalculatePercentiles computes P50, P90, P95, P99, and peak from samples
func CalculatePercentiles(samples []MetricSample) (*Percentiles, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("no samples provided")
	}

	values := sampleValues(samples)
	sort.Float64s(values)

	return &Percentiles{
		Average: calculateAverage(values),
		P50:     calculatePercentile(values, 50),
		P90:     calculatePercentile(values, 90),
		P95:     calculatePercentile(values, 95),
		P99:     calculatePercentile(values, 99),
		Peak:    values[len(values)-1],
		Min:     values[0],
	}, nil
}

// calculatePercentile computes the Nth percentile using linear interpolation
func calculatePercentile(sortedValues []float64, percentile float64) float64 {
	switch len(sortedValues) {
	case 0:
		return 0
	case 1:
		return sortedValues[0]
	}

	rank := (percentile / 100.0) * float64(len(sortedValues)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sortedValues[lower]
	}

	fraction := rank - float64(lower)
	return sortedValues[lower] + (sortedValues[upper]-sortedValues[lower])*fraction
}

func calculateAverage(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// CalculateCoefficientOfVariation measures relative variability.
// Power and load series sit well above zero, so stdDev/mean is meaningful.
func CalculateCoefficientOfVariation(samples []MetricSample) float64 {
	if len(samples) < 2 {
		return 0
	}
	return coefficientOfVariation(sampleValues(samples))
}

func coefficientOfVariation(values []float64) float64 {
	mean := calculateAverage(values)
	if mean == 0 {
		return 0
	}

	sumSquaredDiff := 0.0
	for _, v := range values {
		diff := v - mean
		sumSquaredDiff += diff * diff
	}

	stdDev := math.Sqrt(sumSquaredDiff / float64(len(values)))
	return stdDev / math.Abs(mean)
}

// AnalyzeUsagePattern classifies a series by its coefficient of variation.
// Spike windows show up as "spiky" or worse.
func AnalyzeUsagePattern(samples []MetricSample) UsagePattern {
	if len(samples) < minPatternSamples {
		return UsagePattern{Type: PatternUnknown}
	}

	cv := CalculateCoefficientOfVariation(samples)

	pattern := UsagePattern{Variation: cv}
	switch {
	case cv < steadyVariation:
		pattern.Type, pattern.Confidence = PatternSteady, 0.95
	case cv < moderateVariation:
		pattern.Type, pattern.Confidence = PatternModerate, 0.85
	case cv < spikyVariation:
		pattern.Type, pattern.Confidence = PatternSpiky, 0.80
	default:
		pattern.Type, pattern.Confidence = PatternHighlyVariable, 0.75
	}
	return pattern
}

func sampleValues(samples []MetricSample) []float64 {
	values := make([]float64, len(samples))
	for i, s := range samples {
		values[i] = s.Value
	}
	return values
}
