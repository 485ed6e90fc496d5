package aggregator

import (
	"math"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// Defaults for the headline statistics
const (
	DefaultBaselinePowerMW = 2.77
	DefaultCO2Factor       = 417.0 // kg CO2 per MWh of grid power
	NeutralPUE             = 1.0
)

// Bounds of the chart energy-savings heuristic
const (
	chartSavingsFloor = 32.0
	chartSavingsSpan  = 15.0
)

// Aggregator reduces fleet snapshots into headline statistics.
// It holds no mutable state.
type Aggregator struct {
	baselinePowerMW float64
	co2Factor       float64
}

// New creates an aggregator against a fixed baseline power draw
func New(baselinePowerMW, co2Factor float64) *Aggregator {
	return &Aggregator{
		baselinePowerMW: baselinePowerMW,
		co2Factor:       co2Factor,
	}
}

// BaselinePowerMW returns the baseline the savings are measured against
func (a *Aggregator) BaselinePowerMW() float64 {
	return a.baselinePowerMW
}

// Stats computes the headline statistics of a fleet snapshot.
// EnergySavingsPct is not clamped and goes negative when the fleet draws
// more than the baseline.
func (a *Aggregator) Stats(fleet models.FleetSnapshot) models.StatsSnapshot {
	var powerKW, coolingKW float64
	for _, c := range fleet.Clusters {
		powerKW += c.TotalPowerKW
		coolingKW += c.TotalCoolingKW
	}

	powerMW := powerKW / 1000

	pue := NeutralPUE
	if powerKW > 0 {
		pue = (powerKW + coolingKW) / powerKW
	}

	var savings float64
	if a.baselinePowerMW > 0 {
		savings = (a.baselinePowerMW - powerMW) / a.baselinePowerMW * 100
	}

	return models.StatsSnapshot{
		EnergySavingsPct: savings,
		CO2OffsetKg:      math.Round(powerMW * a.co2Factor),
		PowerDrawMW:      powerMW,
		CoolingPUE:       pue,
	}
}

// ChartPoint averages load and cooling over every node of the fleet
// (offline nodes count as zero) and derives the chart savings series.
func ChartPoint(fleet models.FleetSnapshot, label string) models.ChartPoint {
	nodes := fleet.Nodes()
	point := models.ChartPoint{
		Label:         label,
		EnergySavings: chartSavingsFloor,
	}
	if len(nodes) == 0 {
		return point
	}

	var load, cooling float64
	for _, n := range nodes {
		load += n.GPULoad
		cooling += n.Cooling
	}
	point.AvgGPULoad = load / float64(len(nodes))
	point.AvgCooling = cooling / float64(len(nodes))
	point.EnergySavings = chartSavings(point.AvgGPULoad, point.AvgCooling)

	return point
}

func chartSavings(load, cooling float64) float64 {
	if cooling <= 0 {
		return chartSavingsFloor
	}
	v := chartSavingsFloor + (1-load/cooling)*chartSavingsSpan
	return math.Max(chartSavingsFloor, math.Min(chartSavingsFloor+chartSavingsSpan, v))
}
