package gateway

import (
	"fmt"
	"strings"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

const systemPrompt = "You are the operations analyst for a global fleet of GPU data centers. " +
	"Answer in at most four sentences of plain prose suitable for reading aloud. " +
	"Lead with the most important finding and quote figures from the telemetry."

const analyzeInstruction = "Summarize the current state of the fleet: efficiency, cooling, hot spots and any load spike."

// BuildPrompt renders a fleet report as the telemetry block of a prompt
func BuildPrompt(report models.FleetReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Telemetry at %s\n", models.FormatTimestamp(report.Timestamp))
	fmt.Fprintf(&b, "Power draw: %.2f MW\n", report.Stats.PowerDrawMW)
	fmt.Fprintf(&b, "Energy savings vs baseline: %.1f%%\n", report.Stats.EnergySavingsPct)
	fmt.Fprintf(&b, "Cooling PUE: %.2f\n", report.Stats.CoolingPUE)
	fmt.Fprintf(&b, "CO2 offset: %.0f kg\n", report.Stats.CO2OffsetKg)

	if report.Spike.Active() {
		fmt.Fprintf(&b, "Load spike: ACTIVE in %s, x%.2f, %d ticks remaining\n",
			report.Spike.AffectedRegion, report.Spike.Multiplier, report.Spike.TicksRemaining)
	} else {
		b.WriteString("Load spike: none\n")
	}

	b.WriteString("\nRegions:\n")
	for _, r := range report.Regions {
		fmt.Fprintf(&b, "- %s (%s): %d clusters, %d offline, %d spiking, load %.1f%%, cooling %.1f%%, power %.1f kW/cluster, %.1f°C\n",
			r.Region, strings.Join(r.Sites, ", "), r.ClusterCount, r.OfflineClusters, r.SpikeClusters,
			r.AvgGPULoad, r.AvgCooling, r.AvgPowerKW, r.AvgTemperatureC)
	}

	b.WriteString("\nClusters:\n")
	for _, c := range report.Fleet.Clusters {
		fmt.Fprintf(&b, "- %s at %s (%s): %s, %d/%d nodes online, load %.1f%%, cooling %.1f%%, %.1f kW\n",
			c.Name(), c.Profile.Site, c.Profile.Workload, models.ClusterStateOf(c),
			c.ActiveNodeCount, len(c.Nodes), c.AvgGPULoad, c.AvgCooling, c.TotalPowerKW)
	}

	return b.String()
}

func analyzeMessage(report models.FleetReport) string {
	return BuildPrompt(report) + "\n" + analyzeInstruction
}

func answerMessage(report models.FleetReport, question string) string {
	return BuildPrompt(report) + "\nQuestion: " + strings.TrimSpace(question)
}
