package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opscart/gpu-fleet-sim/pkg/analyzer"
	"github.com/opscart/gpu-fleet-sim/pkg/datasource"
	"github.com/opscart/gpu-fleet-sim/pkg/reporter"
	"github.com/opscart/gpu-fleet-sim/pkg/storage"
)

func runTrend(cmd *cobra.Command, args []string) {
	name := analyzer.SeriesPowerDraw
	if len(args) == 1 {
		name = args[0]
	}
	if _, ok := analyzer.UnitOf(name); !ok {
		exitf("unknown series %q (known: %v)", name, analyzer.SeriesNames())
	}

	window, err := time.ParseDuration(trendWindow)
	if err != nil || window <= 0 {
		exitf("invalid --window %q", trendWindow)
	}
	var step time.Duration
	if trendStep != "" {
		if step, err = time.ParseDuration(trendStep); err != nil {
			exitf("invalid --step %q", trendStep)
		}
	}

	cfg := loadConfig(cmd)
	logger := newLogger(cfg)
	defer logger.Sync()

	// the database is only a fallback here
	var store storage.Store
	if cfg.StorageEnabled {
		store, err = openStore(cfg)
		if err != nil {
			logger.Warn("storage unavailable", zap.Error(err))
		} else {
			defer store.Close()
		}
	}

	ctx := context.Background()
	src, err := datasource.Select(ctx, datasource.Config{
		PrometheusURL: cfg.PrometheusURL,
		Step:          step,
	}, store, logger)
	if err != nil {
		exitf("%v (configure FLEET_PROMETHEUS_URL or enable storage)", err)
	}
	logger.Info("reading fleet history", zap.String("source", src.Name()), zap.String("series", name), zap.Duration("window", window))

	series, err := src.Series(ctx, name, window)
	if err != nil {
		exitf("%v", err)
	}

	analysis, err := analyzer.AnalyzeSeries(series)
	if err != nil {
		exitf("%v", err)
	}

	if trendJSON {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(analysis); err != nil {
			exitf("encoding JSON: %v", err)
		}
		return
	}

	if err := reporter.GenerateTrendText(analysis, os.Stdout); err != nil {
		exitf("%v", err)
	}
	fmt.Printf("\nSource: %s\n", src.Name())
}

func trendHelp() string {
	return fmt.Sprintf("Analyze a recorded fleet series from Prometheus, falling back to the\n"+
		"database. Series: %s (default %s).",
		strings.Join(analyzer.SeriesNames(), ", "), analyzer.SeriesPowerDraw)
}
