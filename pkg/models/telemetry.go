package models

import (
	"math"
	"time"
)

// ClusterState is the cluster status vocabulary consumed by dashboards
type ClusterState string

const (
	ClusterActive     ClusterState = "active"
	ClusterIdle       ClusterState = "idle"
	ClusterOptimizing ClusterState = "optimizing"
)

// NodeState is the node status vocabulary consumed by dashboards
type NodeState string

const (
	NodeActive NodeState = "active"
	NodeHot    NodeState = "hot"
	NodeIdle   NodeState = "idle"
)

// Thresholds for mapping metrics onto the dashboard vocabularies
const (
	IdleLoadThreshold     = 30.0
	ActiveLoadThreshold   = 70.0
	HotLoadThreshold      = 85.0
	HotTemperatureCelsius = 38.0
)

// Chart dataset labels, in the fixed order dashboards expect
const (
	DatasetGPU           = "GPU Utilization (%)"
	DatasetCooling       = "Cooling Output (%)"
	DatasetEnergySavings = "Energy Savings (%)"
)

// TelemetryPayload is the body of a periodic "telemetry" message
type TelemetryPayload struct {
	Timestamp string         `json:"timestamp"`
	Stats     TelemetryStats `json:"stats"`
	Chart     ChartData      `json:"chart"`
	Clusters  []ClusterView  `json:"clusters"`
	Nodes     []NodeView     `json:"nodes"`
}

// TelemetryStats is the wire form of StatsSnapshot
type TelemetryStats struct {
	EnergySavings float64 `json:"energySavings"`
	CO2OffsetKg   float64 `json:"co2OffsetKg"`
	PowerDrawMW   float64 `json:"powerDrawMW"`
	CoolingPUE    float64 `json:"coolingPUE"`
}

// ChartData is the chart history laid out as labels plus three datasets
type ChartData struct {
	Labels   []string       `json:"labels"`
	Datasets []ChartDataset `json:"datasets"`
}

// ChartDataset is one series of the chart
type ChartDataset struct {
	Label string    `json:"label"`
	Data  []float64 `json:"data"`
}

// ClusterView is the per-cluster row of a telemetry payload
type ClusterView struct {
	Name    string       `json:"name"`
	Status  ClusterState `json:"status"`
	GPU     float64      `json:"gpu"`
	Cooling float64      `json:"cooling"`
	Power   float64      `json:"power"`
}

// NodeView is the per-node cell of a telemetry payload
type NodeView struct {
	ID    int       `json:"id"`
	Label string    `json:"label"`
	State NodeState `json:"state"`
}

// ClusterStateOf maps a cluster onto the dashboard vocabulary
func ClusterStateOf(c Cluster) ClusterState {
	switch {
	case c.Status == StatusOffline || c.AvgGPULoad < IdleLoadThreshold:
		return ClusterIdle
	case c.SpikeActive || c.AvgGPULoad >= ActiveLoadThreshold:
		return ClusterActive
	default:
		return ClusterOptimizing
	}
}

// NodeStateOf maps a node onto the dashboard vocabulary
func NodeStateOf(n Node) NodeState {
	switch {
	case !n.Online() || n.GPULoad < IdleLoadThreshold:
		return NodeIdle
	case n.GPULoad >= HotLoadThreshold || n.TemperatureC >= HotTemperatureCelsius:
		return NodeHot
	default:
		return NodeActive
	}
}

// NewChartData lays out chart points oldest-first as GPU, Cooling and
// EnergySavings datasets.
func NewChartData(points []ChartPoint) ChartData {
	labels := make([]string, len(points))
	gpu := make([]float64, len(points))
	cooling := make([]float64, len(points))
	savings := make([]float64, len(points))
	for i, p := range points {
		labels[i] = p.Label
		gpu[i] = Round(p.AvgGPULoad, 1)
		cooling[i] = Round(p.AvgCooling, 1)
		savings[i] = Round(p.EnergySavings, 1)
	}

	return ChartData{
		Labels: labels,
		Datasets: []ChartDataset{
			{Label: DatasetGPU, Data: gpu},
			{Label: DatasetCooling, Data: cooling},
			{Label: DatasetEnergySavings, Data: savings},
		},
	}
}

// NewTelemetryPayload assembles the wire payload for one push
func NewTelemetryPayload(at time.Time, fleet FleetSnapshot, stats StatsSnapshot, points []ChartPoint) TelemetryPayload {
	payload := TelemetryPayload{
		Timestamp: FormatTimestamp(at),
		Stats: TelemetryStats{
			EnergySavings: Round(stats.EnergySavingsPct, 1),
			CO2OffsetKg:   stats.CO2OffsetKg,
			PowerDrawMW:   Round(stats.PowerDrawMW, 2),
			CoolingPUE:    Round(stats.CoolingPUE, 2),
		},
		Chart:    NewChartData(points),
		Clusters: make([]ClusterView, 0, len(fleet.Clusters)),
		Nodes:    make([]NodeView, 0, fleet.NodeCount()),
	}

	for _, c := range fleet.Clusters {
		payload.Clusters = append(payload.Clusters, ClusterView{
			Name:    c.Name(),
			Status:  ClusterStateOf(c),
			GPU:     Round(c.AvgGPULoad, 1),
			Cooling: Round(c.AvgCooling, 1),
			Power:   Round(c.TotalPowerKW, 1),
		})
		for _, n := range c.Nodes {
			payload.Nodes = append(payload.Nodes, NodeView{
				ID:    n.ID,
				Label: n.Label,
				State: NodeStateOf(n),
			})
		}
	}

	return payload
}

// FormatTimestamp renders wire timestamps (RFC 3339, millisecond precision, UTC)
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// Round rounds v to the given number of decimal places
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
