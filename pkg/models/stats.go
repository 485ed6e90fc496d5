package models

import "time"

// StatsSnapshot holds the headline statistics derived from a FleetSnapshot
type StatsSnapshot struct {
	EnergySavingsPct float64 `json:"energySavingsPct"` // may be negative under heavy spikes
	CO2OffsetKg      float64 `json:"co2OffsetKg"`
	PowerDrawMW      float64 `json:"powerDrawMW"`
	CoolingPUE       float64 `json:"coolingPUE"`
}

// ChartPoint is one entry of the rolling chart history
type ChartPoint struct {
	Label         string  `json:"label"`
	AvgGPULoad    float64 `json:"avgGpuLoad"`
	AvgCooling    float64 `json:"avgCooling"`
	EnergySavings float64 `json:"energySavings"` // chart heuristic, not StatsSnapshot.EnergySavingsPct
}

// RegionSummary reduces the clusters sharing one region label
type RegionSummary struct {
	Region          string   `json:"region"`
	Sites           []string `json:"sites"`
	ClusterCount    int      `json:"clusterCount"`
	AvgGPULoad      float64  `json:"avgGpuLoad"`
	AvgCooling      float64  `json:"avgCooling"`
	AvgPowerKW      float64  `json:"avgPowerKW"`
	AvgTemperatureC float64  `json:"avgTemperatureC"`
	OnlineClusters  int      `json:"onlineClusters"`
	OfflineClusters int      `json:"offlineClusters"`
	SpikeClusters   int      `json:"spikeClusters"`
}

// FleetReport is a one-shot view of the fleet for collaborators that do not
// hold a session (REST snapshots, analysis requests, storage).
type FleetReport struct {
	Timestamp time.Time       `json:"timestamp"`
	Stats     StatsSnapshot   `json:"stats"`
	Spike     SpikeState      `json:"spike"`
	Regions   []RegionSummary `json:"regions"`
	Fleet     FleetSnapshot   `json:"fleet"`
}

// StatsSample is a persisted StatsSnapshot with fleet-wide context
type StatsSample struct {
	ID              string
	RecordedAt      time.Time
	Stats           StatsSnapshot
	AvgGPULoad      float64
	AvgCooling      float64
	OnlineNodes     int
	TotalNodes      int
	SpikeActive     bool
	SpikeRegion     string
	SpikeMultiplier float64
}
