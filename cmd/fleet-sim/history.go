package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04:05"

func runHistory(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)

	store, err := openStoreForced(cfg)
	if err != nil {
		exitf("%v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if historySamples {
		samples, err := store.ListSamples(ctx, historyLimit)
		if err != nil {
			exitf("%v", err)
		}
		if len(samples) == 0 {
			fmt.Println("No stats samples recorded")
			return
		}

		fmt.Printf("Recent stats samples:\n\n")
		for i, s := range samples {
			fmt.Printf("%d. %s (ID: %s)\n", i+1, s.RecordedAt.Format(timeLayout), s.ID)
			fmt.Printf("   Power: %.2f MW  Savings: %.1f%%  PUE: %.2f\n",
				s.Stats.PowerDrawMW, s.Stats.EnergySavingsPct, s.Stats.CoolingPUE)
			fmt.Printf("   Load: %.1f%%  Cooling: %.1f%%  Nodes: %d/%d\n",
				s.AvgGPULoad, s.AvgCooling, s.OnlineNodes, s.TotalNodes)
			if s.SpikeActive {
				fmt.Printf("   Spike: %s x%.2f\n", s.SpikeRegion, s.SpikeMultiplier)
			}
			fmt.Println()
		}
		return
	}

	events, err := store.ListSpikeEvents(ctx, historyLimit)
	if err != nil {
		exitf("%v", err)
	}
	if len(events) == 0 {
		fmt.Println("No spike events recorded")
		return
	}

	fmt.Printf("Recent spike events:\n\n")
	for i, e := range events {
		fmt.Printf("%d. %s %s (ID: %s)\n", i+1, e.Transition, e.Region, e.ID)
		fmt.Printf("   Multiplier: x%.2f\n", e.Multiplier)
		if e.DurationTicks > 0 {
			fmt.Printf("   Duration: %d ticks\n", e.DurationTicks)
		}
		fmt.Printf("   At: %s\n", e.OccurredAt.Format(timeLayout))
		fmt.Println()
	}
}
