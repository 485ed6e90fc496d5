package reporter

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/opscart/gpu-fleet-sim/pkg/analyzer"
)

// GenerateText writes a terminal summary followed by cluster and region tables
func GenerateText(report *Report, writer io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Fleet Snapshot (%s) ===\n\n", report.GeneratedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Power draw:     %.2f MW\n", report.Stats.PowerDrawMW)
	fmt.Fprintf(&b, "Energy savings: %.1f%%\n", report.Stats.EnergySavingsPct)
	fmt.Fprintf(&b, "Cooling PUE:    %.2f\n", report.Stats.CoolingPUE)
	fmt.Fprintf(&b, "CO2 offset:     %.0f kg\n", report.Stats.CO2OffsetKg)
	fmt.Fprintf(&b, "Nodes online:   %d/%d (%d hot)\n", report.OnlineNodes, report.TotalNodes, report.HotNodes)
	fmt.Fprintf(&b, "Spike:          %s\n\n", spikeSummary(report))

	if _, err := io.WriteString(writer, b.String()); err != nil {
		return fmt.Errorf("failed to write summary: %w", err)
	}

	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CLUSTER\tREGION\tSITE\tSTATUS\tGPU%\tCOOL%\tTEMP\tPOWER kW\tNODES\tSPIKE")
	for _, c := range report.Clusters {
		spike := ""
		if c.SpikeActive {
			spike = "yes"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.1f\t%.1f\t%.1f\t%.1f\t%d/%d\t%s\n",
			c.Name, c.Region, c.Site, c.Status,
			c.AvgGPULoad, c.AvgCooling, c.AvgTemperatureC, c.PowerKW,
			c.ActiveNodes, c.Nodes, spike)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write cluster table: %w", err)
	}

	if len(report.Regions) == 0 {
		return nil
	}

	fmt.Fprintln(writer)
	tw = tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "REGION\tSITES\tCLUSTERS\tGPU%\tCOOL%\tAVG POWER kW\tOFFLINE\tSPIKING")
	for _, r := range report.Regions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%.1f\t%.1f\t%.1f\t%d\t%d\n",
			r.Region, strings.Join(r.Sites, ", "), r.ClusterCount,
			r.AvgGPULoad, r.AvgCooling, r.AvgPowerKW,
			r.OfflineClusters, r.SpikeClusters)
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write region table: %w", err)
	}
	return nil
}

// GenerateTrendText describes one analyzed series
func GenerateTrendText(trend *analyzer.TrendAnalysis, writer io.Writer) error {
	var b strings.Builder

	fmt.Fprintf(&b, "=== Trend: %s ===\n", trend.Series)
	fmt.Fprintf(&b, "Window:  %s to %s (%d samples)\n\n",
		trend.Start.UTC().Format(time.RFC3339), trend.End.UTC().Format(time.RFC3339), trend.SampleCount)

	p := trend.Percentiles
	fmt.Fprintf(&b, "Average: %.2f %s\n", p.Average, trend.Unit)
	fmt.Fprintf(&b, "P50:     %.2f\n", p.P50)
	fmt.Fprintf(&b, "P95:     %.2f\n", p.P95)
	fmt.Fprintf(&b, "P99:     %.2f\n", p.P99)
	fmt.Fprintf(&b, "Range:   %.2f - %.2f\n\n", p.Min, p.Peak)

	fmt.Fprintf(&b, "Pattern: %s (variation %.1f%%, confidence %.0f%%)\n",
		trend.Pattern.Type, trend.Pattern.Variation*100, trend.Pattern.Confidence*100)

	if g := trend.Growth; g != nil {
		direction := "flat"
		if g.IsGrowing {
			direction = "growing"
		} else if g.IsShrinking {
			direction = "shrinking"
		}
		fmt.Fprintf(&b, "Growth:  %s at %+.2f%%/h (R² %.2f)\n", direction, g.RatePerHour, g.Confidence)
		fmt.Fprintf(&b, "Predicted in 1h: %.2f %s, in 24h: %.2f %s\n",
			g.Predicted1Hour, trend.Unit, g.Predicted24Hour, trend.Unit)
	} else {
		fmt.Fprintf(&b, "Growth:  not enough samples (need %d)\n", analyzer.MinGrowthSamples)
	}

	if _, err := io.WriteString(writer, b.String()); err != nil {
		return fmt.Errorf("failed to write trend: %w", err)
	}
	return nil
}
