package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/opscart/gpu-fleet-sim/pkg/config"
	"github.com/opscart/gpu-fleet-sim/pkg/logging"
	"github.com/opscart/gpu-fleet-sim/pkg/storage"
)

var (
	// Global flags
	configPath string
	logLevel   string
	demoMode   bool
	quietMode  bool
	seed       uint64

	// Serve flags
	listenAddr     string
	allowedOrigins []string

	// Snapshot flags
	outputFormat string
	outputFile   string
	serverURL    string

	// Trend flags
	trendWindow string
	trendStep   string
	trendJSON   bool

	// History flags
	historyLimit   int
	historySamples bool
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "fleet-sim",
		Short: "GPU data-center fleet telemetry simulator",
		Long: `Simulate a fleet of GPU clusters with regional load spikes and stream
live telemetry to dashboards over WebSocket.`,
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: ./fleet-sim.yaml or /etc/fleet-sim/fleet-sim.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&demoMode, "demo", false, "Frequent spikes and fast pushes")
	rootCmd.PersistentFlags().BoolVar(&quietMode, "quiet", false, "Disable automatic spikes")
	rootCmd.PersistentFlags().Uint64Var(&seed, "seed", 0, "Random seed (0 seeds from the clock)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the telemetry server",
		Args:  cobra.NoArgs,
		Run:   runServe,
	}
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (overrides listen_addr)")
	serveCmd.Flags().StringSliceVar(&allowedOrigins, "allowed-origin", nil, "Extra origin patterns allowed to open sessions")

	snapshotCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print one fleet snapshot",
		Args:  cobra.NoArgs,
		Run:   runSnapshot,
	}
	snapshotCmd.Flags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, csv, html")
	snapshotCmd.Flags().StringVarP(&outputFile, "file", "f", "", "Write to file instead of stdout")
	snapshotCmd.Flags().StringVar(&serverURL, "server", "", "Read the snapshot from a running server (e.g. http://localhost:8080)")

	trendCmd := &cobra.Command{
		Use:   "trend [series]",
		Short: "Analyze recorded fleet history",
		Long:  trendHelp(),
		Args:  cobra.MaximumNArgs(1),
		Run:   runTrend,
	}
	trendCmd.Flags().StringVar(&trendWindow, "window", "1h", "Lookback window")
	trendCmd.Flags().StringVar(&trendStep, "step", "", "Prometheus query step (default 10s)")
	trendCmd.Flags().BoolVar(&trendJSON, "json", false, "Print the analysis as JSON")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "View recorded spike events",
		Args:  cobra.NoArgs,
		Run:   runHistory,
	}
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "Number of entries to show")
	historyCmd.Flags().BoolVar(&historySamples, "samples", false, "Show stats samples instead of spike events")

	rootCmd.AddCommand(serveCmd, snapshotCmd, trendCmd, historyCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// loadConfig layers file, environment, presets and flags, then validates
func loadConfig(cmd *cobra.Command) *config.Config {
	cfg, err := config.Load(configPath)
	if err != nil {
		exitf("%v", err)
	}

	if demoMode && quietMode {
		exitf("--demo and --quiet are mutually exclusive")
	}
	if demoMode {
		cfg.UseDemoPreset()
	}
	if quietMode {
		cfg.UseQuietPreset()
	}

	flags := cmd.Flags()
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("listen") {
		cfg.ListenAddr = listenAddr
	}

	if err := cfg.Validate(); err != nil {
		exitf("invalid configuration: %v", err)
	}
	return cfg
}

func newLogger(cfg *config.Config) *zap.Logger {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		exitf("%v", err)
	}
	return logger
}

// openStore returns Postgres when storage is enabled and a bounded
// in-memory store otherwise
func openStore(cfg *config.Config) (storage.Store, error) {
	if !cfg.StorageEnabled {
		return storage.Open(storage.Config{Type: "memory"})
	}
	store, err := storage.Open(storage.Config{Type: "postgres", URL: cfg.DatabaseURL})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return store, nil
}

// openStoreForced requires the database, for commands that only read history
func openStoreForced(cfg *config.Config) (storage.Store, error) {
	if !cfg.StorageEnabled {
		return nil, fmt.Errorf("storage is not enabled (set FLEET_STORAGE_ENABLED=true)")
	}
	return openStore(cfg)
}
