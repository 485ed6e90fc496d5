package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opscart/gpu-fleet-sim/pkg/engine"
	"github.com/opscart/gpu-fleet-sim/pkg/models"
	"github.com/opscart/gpu-fleet-sim/pkg/reporter"
)

func runSnapshot(cmd *cobra.Command, args []string) {
	format, err := reporter.ParseFormat(outputFormat)
	if err != nil {
		exitf("%v", err)
	}

	var fleet models.FleetReport
	if serverURL != "" {
		fleet, err = fetchSnapshot(cmd.Context(), serverURL)
		if err != nil {
			exitf("%v", err)
		}
	} else {
		cfg := loadConfig(cmd)
		eng, err := engine.NewFromConfig(cfg, nil, nil, zap.NewNop())
		if err != nil {
			exitf("%v", err)
		}
		fleet = eng.Peek(time.Now())
	}

	var out io.Writer = os.Stdout
	if outputFile != "" {
		file, err := os.Create(outputFile)
		if err != nil {
			exitf("failed to create output file: %v", err)
		}
		defer file.Close()
		out = file
	}

	rep := reporter.New(format)
	if err := rep.Write(rep.Generate(fleet), out); err != nil {
		exitf("%v", err)
	}
	if outputFile != "" {
		fmt.Fprintf(os.Stderr, "[INFO] %s snapshot written to %s\n", strings.ToUpper(string(format)), outputFile)
	}
}

// fetchSnapshot reads /api/snapshot from a running server
func fetchSnapshot(ctx context.Context, base string) (models.FleetReport, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := strings.TrimRight(base, "/") + "/api/snapshot"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.FleetReport{}, fmt.Errorf("invalid server URL: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return models.FleetReport{}, fmt.Errorf("failed to reach server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return models.FleetReport{}, fmt.Errorf("server returned %s", resp.Status)
	}

	var fleet models.FleetReport
	if err := json.NewDecoder(resp.Body).Decode(&fleet); err != nil {
		return models.FleetReport{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return fleet, nil
}
