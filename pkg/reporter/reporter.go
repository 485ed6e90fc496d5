package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// ReportFormat represents the output format
type ReportFormat string

const (
	FormatText ReportFormat = "text"
	FormatJSON ReportFormat = "json"
	FormatCSV  ReportFormat = "csv"
	FormatHTML ReportFormat = "html"
)

// ParseFormat validates a user-supplied format name
func ParseFormat(s string) (ReportFormat, error) {
	switch f := ReportFormat(s); f {
	case FormatText, FormatJSON, FormatCSV, FormatHTML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unsupported report format: %s", s)
	}
}

// Report contains all data for rendering one fleet snapshot
type Report struct {
	GeneratedAt time.Time              `json:"generatedAt"`
	Stats       models.StatsSnapshot   `json:"stats"`
	Spike       models.SpikeState      `json:"spike"`
	Clusters    []ClusterRow           `json:"clusters"`
	Regions     []models.RegionSummary `json:"regions"`

	OnlineNodes int `json:"onlineNodes"`
	TotalNodes  int `json:"totalNodes"`
	HotNodes    int `json:"hotNodes"`
}

// ClusterRow is the per-cluster line of a report
type ClusterRow struct {
	Name            string              `json:"name"`
	Region          string              `json:"region"`
	Site            string              `json:"site"`
	Workload        string              `json:"workload"`
	Status          models.ClusterState `json:"status"`
	AvgGPULoad      float64             `json:"avgGpuLoad"`
	AvgCooling      float64             `json:"avgCooling"`
	AvgTemperatureC float64             `json:"avgTemperatureC"`
	PowerKW         float64             `json:"powerKW"`
	CoolingKW       float64             `json:"coolingKW"`
	ActiveNodes     int                 `json:"activeNodes"`
	Nodes           int                 `json:"nodes"`
	SpikeActive     bool                `json:"spikeActive"`
}

// Reporter renders fleet reports
type Reporter struct {
	format ReportFormat
}

// New creates a new reporter
func New(format ReportFormat) *Reporter {
	return &Reporter{
		format: format,
	}
}

func (r *Reporter) Format() ReportFormat {
	return r.format
}

// Generate builds a report from a fleet snapshot
func (r *Reporter) Generate(fleet models.FleetReport) *Report {
	report := &Report{
		GeneratedAt: fleet.Timestamp,
		Stats:       fleet.Stats,
		Spike:       fleet.Spike,
		Regions:     fleet.Regions,
		Clusters:    make([]ClusterRow, 0, len(fleet.Fleet.Clusters)),
	}

	for _, c := range fleet.Fleet.Clusters {
		report.Clusters = append(report.Clusters, ClusterRow{
			Name:            c.Name(),
			Region:          c.Profile.Region,
			Site:            c.Profile.Site,
			Workload:        c.Profile.Workload,
			Status:          models.ClusterStateOf(c),
			AvgGPULoad:      c.AvgGPULoad,
			AvgCooling:      c.AvgCooling,
			AvgTemperatureC: c.AvgTemperatureC,
			PowerKW:         c.TotalPowerKW,
			CoolingKW:       c.TotalCoolingKW,
			ActiveNodes:     c.ActiveNodeCount,
			Nodes:           len(c.Nodes),
			SpikeActive:     c.SpikeActive,
		})

		for _, n := range c.Nodes {
			report.TotalNodes++
			if n.Online() {
				report.OnlineNodes++
			}
			if models.NodeStateOf(n) == models.NodeHot {
				report.HotNodes++
			}
		}
	}

	return report
}

// Write renders the report in the reporter's format
func (r *Reporter) Write(report *Report, w io.Writer) error {
	switch r.format {
	case FormatJSON:
		return GenerateJSON(report, w)
	case FormatCSV:
		return GenerateCSV(report, w)
	case FormatHTML:
		return GenerateHTML(report, w)
	case FormatText, "":
		return GenerateText(report, w)
	default:
		return fmt.Errorf("unsupported report format: %s", r.format)
	}
}

// GenerateJSON writes the report as indented JSON
func GenerateJSON(report *Report, w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(report); err != nil {
		return fmt.Errorf("failed to encode JSON report: %w", err)
	}
	return nil
}
