package reporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// GenerateCSV creates a CSV report
func GenerateCSV(report *Report, writer io.Writer) error {
	w := csv.NewWriter(writer)

	// Write header
	header := []string{
		"Cluster",
		"Region",
		"Site",
		"Status",
		"GPU Load (%)",
		"Cooling (%)",
		"Temperature (C)",
		"Power (kW)",
		"Cooling Power (kW)",
		"Active Nodes",
		"Spike",
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, c := range report.Clusters {
		row := []string{
			c.Name,
			c.Region,
			c.Site,
			string(c.Status),
			fmt.Sprintf("%.1f", c.AvgGPULoad),
			fmt.Sprintf("%.1f", c.AvgCooling),
			fmt.Sprintf("%.1f", c.AvgTemperatureC),
			fmt.Sprintf("%.1f", c.PowerKW),
			fmt.Sprintf("%.1f", c.CoolingKW),
			fmt.Sprintf("%d/%d", c.ActiveNodes, c.Nodes),
			fmt.Sprintf("%t", c.SpikeActive),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	// Summary rows
	rows := [][]string{
		{},
		{"SUMMARY"},
		{"Power Draw (MW)", fmt.Sprintf("%.2f", report.Stats.PowerDrawMW)},
		{"Energy Savings (%)", fmt.Sprintf("%.1f", report.Stats.EnergySavingsPct)},
		{"Cooling PUE", fmt.Sprintf("%.2f", report.Stats.CoolingPUE)},
		{"CO2 Offset (kg)", fmt.Sprintf("%.0f", report.Stats.CO2OffsetKg)},
		{"Online Nodes", fmt.Sprintf("%d/%d", report.OnlineNodes, report.TotalNodes)},
		{"Spike", spikeSummary(report)},
	}

	// Region breakdown
	rows = append(rows,
		[]string{},
		[]string{"REGION BREAKDOWN"},
		[]string{"Region", "Sites", "Clusters", "GPU Load (%)", "Cooling (%)", "Avg Power (kW)", "Offline", "Spiking"},
	)
	for _, r := range report.Regions {
		rows = append(rows, []string{
			r.Region,
			strings.Join(r.Sites, ";"),
			fmt.Sprintf("%d", r.ClusterCount),
			fmt.Sprintf("%.1f", r.AvgGPULoad),
			fmt.Sprintf("%.1f", r.AvgCooling),
			fmt.Sprintf("%.1f", r.AvgPowerKW),
			fmt.Sprintf("%d", r.OfflineClusters),
			fmt.Sprintf("%d", r.SpikeClusters),
		})
	}

	if err := w.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV summary: %w", err)
	}
	return nil
}

func spikeSummary(report *Report) string {
	if !report.Spike.Active() {
		return "none"
	}
	return fmt.Sprintf("%s x%.2f (%d ticks left)", report.Spike.AffectedRegion, report.Spike.Multiplier, report.Spike.TicksRemaining)
}
