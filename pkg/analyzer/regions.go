package analyzer

import (
	"sort"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// GroupByRegion reduces clusters into one summary per region label, in the
// order regions first appear in the fleet. Clusters without a region are
// grouped under their site. Means are over clusters, offline ones included.
func GroupByRegion(fleet models.FleetSnapshot) []models.RegionSummary {
	var order []string
	groups := make(map[string][]models.Cluster)

	for _, c := range fleet.Clusters {
		key := c.Profile.Region
		if key == "" {
			key = c.Profile.Site
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], c)
	}

	summaries := make([]models.RegionSummary, 0, len(order))
	for _, region := range order {
		summaries = append(summaries, summarizeRegion(region, groups[region]))
	}
	return summaries
}

func summarizeRegion(region string, clusters []models.Cluster) models.RegionSummary {
	summary := models.RegionSummary{
		Region:       region,
		ClusterCount: len(clusters),
	}

	sites := make(map[string]bool)
	var load, cooling, power, temperature float64
	for _, c := range clusters {
		if !sites[c.Profile.Site] {
			sites[c.Profile.Site] = true
			summary.Sites = append(summary.Sites, c.Profile.Site)
		}

		load += c.AvgGPULoad
		cooling += c.AvgCooling
		power += c.TotalPowerKW
		temperature += c.AvgTemperatureC

		if c.Status == models.StatusOffline {
			summary.OfflineClusters++
		} else {
			summary.OnlineClusters++
		}
		if c.SpikeActive {
			summary.SpikeClusters++
		}
	}
	sort.Strings(summary.Sites)

	if n := float64(len(clusters)); n > 0 {
		summary.AvgGPULoad = load / n
		summary.AvgCooling = cooling / n
		summary.AvgPowerKW = power / n
		summary.AvgTemperatureC = temperature / n
	}
	return summary
}
