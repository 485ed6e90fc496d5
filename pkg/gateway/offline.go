package gateway

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/opscart/gpu-fleet-sim/pkg/models"
)

// Offline answers from the report alone, without any remote service
type Offline struct{}

func NewOffline() *Offline {
	return &Offline{}
}

// Analyze summarizes efficiency, the spike and the hottest cluster
func (o *Offline) Analyze(ctx context.Context, report models.FleetReport) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s := report.Stats
	var parts []string
	parts = append(parts, fmt.Sprintf("The fleet draws %.2f MW at a PUE of %.2f, %s the baseline by %.1f%%.",
		s.PowerDrawMW, s.CoolingPUE, belowOrAbove(s.EnergySavingsPct), abs(s.EnergySavingsPct)))

	if report.Spike.Active() {
		parts = append(parts, fmt.Sprintf("A %s load spike at %.2fx is in progress for %d more ticks.",
			report.Spike.AffectedRegion, report.Spike.Multiplier, report.Spike.TicksRemaining))
	} else {
		parts = append(parts, "No load spike is active.")
	}

	if c, ok := busiestCluster(report.Fleet); ok {
		parts = append(parts, fmt.Sprintf("%s in %s is the busiest at %.1f%% GPU load with %.1f%% cooling.",
			c.Name(), c.Profile.Site, c.AvgGPULoad, c.AvgCooling))
	}

	if offline := offlineClusters(report.Fleet); len(offline) > 0 {
		parts = append(parts, fmt.Sprintf("Offline: %s.", strings.Join(offline, ", ")))
	}

	return strings.Join(parts, " "), nil
}

// Answer cannot interpret free text; it returns the summary prefixed by
// the question so the caller still gets useful figures.
func (o *Offline) Answer(ctx context.Context, report models.FleetReport, question string) (string, error) {
	summary, err := o.Analyze(ctx, report)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Live analysis is not configured, so I can't answer %q directly. %s", strings.TrimSpace(question), summary), nil
}

func (o *Offline) Speak(ctx context.Context, text string) ([]byte, error) {
	return nil, ErrSpeechUnavailable
}

func busiestCluster(fleet models.FleetSnapshot) (models.Cluster, bool) {
	if len(fleet.Clusters) == 0 {
		return models.Cluster{}, false
	}
	clusters := make([]models.Cluster, len(fleet.Clusters))
	copy(clusters, fleet.Clusters)
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].AvgGPULoad > clusters[j].AvgGPULoad
	})
	return clusters[0], true
}

func offlineClusters(fleet models.FleetSnapshot) []string {
	var names []string
	for _, c := range fleet.Clusters {
		if c.Status == models.StatusOffline {
			names = append(names, c.Name())
		}
	}
	return names
}

func belowOrAbove(savings float64) string {
	if savings < 0 {
		return "above"
	}
	return "below"
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
