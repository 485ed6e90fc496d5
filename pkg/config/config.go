package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override (FLEET_LISTEN_ADDR, ...)
const EnvPrefix = "FLEET"

// Config holds application configuration
type Config struct {
	// Server
	ListenAddr   string        `mapstructure:"listen_addr"`
	PushInterval time.Duration `mapstructure:"push_interval"`

	// Simulation
	SpikeTickInterval time.Duration `mapstructure:"spike_tick_interval"`
	SpikeCountdownMin int           `mapstructure:"spike_countdown_min"`
	SpikeCountdownMax int           `mapstructure:"spike_countdown_max"`
	NodesPerCluster   int           `mapstructure:"nodes_per_cluster"`
	ChartCapacity     int           `mapstructure:"chart_capacity"`
	BaselinePowerMW   float64       `mapstructure:"baseline_power_mw"`
	CO2Factor         float64       `mapstructure:"co2_factor"` // kg CO2 per MWh
	ProfilesPath      string        `mapstructure:"profiles_path"`
	Seed              uint64        `mapstructure:"seed"` // 0 seeds from the clock

	// Prometheus
	PrometheusURL string `mapstructure:"prometheus_url"`

	// Storage
	StorageEnabled bool          `mapstructure:"storage_enabled"`
	DatabaseURL    string        `mapstructure:"database_url"`
	RecordInterval time.Duration `mapstructure:"record_interval"`

	// Analysis gateway
	AnalysisURL     string        `mapstructure:"analysis_url"`
	AnalysisAPIKey  string        `mapstructure:"analysis_api_key"`
	AnalysisModel   string        `mapstructure:"analysis_model"`
	SpeechModel     string        `mapstructure:"speech_model"`
	SpeechVoice     string        `mapstructure:"speech_voice"`
	AnalysisTimeout time.Duration `mapstructure:"analysis_timeout"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"` // console, json
}

// NewConfig creates a new configuration with defaults
func NewConfig() *Config {
	return &Config{
		ListenAddr:   ":8080",
		PushInterval: 2 * time.Second,

		SpikeTickInterval: 2 * time.Second,
		SpikeCountdownMin: 60,  // 2 minutes at 2s ticks
		SpikeCountdownMax: 150, // 5 minutes
		NodesPerCluster:   8,
		ChartCapacity:     20,
		BaselinePowerMW:   2.77,
		CO2Factor:         417,

		PrometheusURL: "http://localhost:9090",

		StorageEnabled: false,
		DatabaseURL:    "host=localhost port=5432 user=fleet password=devpassword dbname=fleetsim sslmode=disable",
		RecordInterval: 10 * time.Second,

		AnalysisURL:     "https://api.openai.com",
		AnalysisModel:   "gpt-4o-mini",
		SpeechModel:     "tts-1",
		SpeechVoice:     "alloy",
		AnalysisTimeout: 30 * time.Second,

		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Load layers defaults, an optional YAML file and FLEET_* environment
// variables. An empty path searches for fleet-sim.yaml in the working
// directory and /etc/fleet-sim; a missing file is not an error then.
// The result is not validated so that presets can still be applied.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, NewConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("fleet-sim")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fleet-sim/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("push_interval", d.PushInterval)
	v.SetDefault("spike_tick_interval", d.SpikeTickInterval)
	v.SetDefault("spike_countdown_min", d.SpikeCountdownMin)
	v.SetDefault("spike_countdown_max", d.SpikeCountdownMax)
	v.SetDefault("nodes_per_cluster", d.NodesPerCluster)
	v.SetDefault("chart_capacity", d.ChartCapacity)
	v.SetDefault("baseline_power_mw", d.BaselinePowerMW)
	v.SetDefault("co2_factor", d.CO2Factor)
	v.SetDefault("profiles_path", d.ProfilesPath)
	v.SetDefault("seed", d.Seed)
	v.SetDefault("prometheus_url", d.PrometheusURL)
	v.SetDefault("storage_enabled", d.StorageEnabled)
	v.SetDefault("database_url", d.DatabaseURL)
	v.SetDefault("record_interval", d.RecordInterval)
	v.SetDefault("analysis_url", d.AnalysisURL)
	v.SetDefault("analysis_api_key", d.AnalysisAPIKey)
	v.SetDefault("analysis_model", d.AnalysisModel)
	v.SetDefault("speech_model", d.SpeechModel)
	v.SetDefault("speech_voice", d.SpeechVoice)
	v.SetDefault("analysis_timeout", d.AnalysisTimeout)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
}

// UseDemoPreset makes spikes frequent and pushes fast for live demos
func (c *Config) UseDemoPreset() {
	c.SpikeCountdownMin = 5
	c.SpikeCountdownMax = 15
	c.PushInterval = 1 * time.Second
}

// UseQuietPreset effectively disables automatic spikes; manual triggers
// still work.
func (c *Config) UseQuietPreset() {
	c.SpikeCountdownMin = 1_000_000
	c.SpikeCountdownMax = 1_000_000
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.PushInterval <= 0 {
		return fmt.Errorf("push interval must be positive, got %v", c.PushInterval)
	}
	if c.SpikeTickInterval <= 0 {
		return fmt.Errorf("spike tick interval must be positive, got %v", c.SpikeTickInterval)
	}
	if c.RecordInterval <= 0 {
		return fmt.Errorf("record interval must be positive, got %v", c.RecordInterval)
	}
	if c.NodesPerCluster < 1 {
		return fmt.Errorf("nodes per cluster must be at least 1")
	}
	if c.ChartCapacity < 1 {
		return fmt.Errorf("chart capacity must be at least 1")
	}
	if c.BaselinePowerMW <= 0 {
		return fmt.Errorf("baseline power must be > 0 MW")
	}
	if c.CO2Factor < 0 {
		return fmt.Errorf("CO2 factor must be >= 0")
	}
	if c.SpikeCountdownMin < 1 {
		return fmt.Errorf("spike countdown must be at least 1 tick")
	}
	if c.SpikeCountdownMin > c.SpikeCountdownMax {
		return fmt.Errorf("spike countdown min %d exceeds max %d", c.SpikeCountdownMin, c.SpikeCountdownMax)
	}
	if c.StorageEnabled && c.DatabaseURL == "" {
		return fmt.Errorf("FLEET_DATABASE_URL must be set when storage is enabled")
	}
	if c.AnalysisTimeout <= 0 {
		return fmt.Errorf("analysis timeout must be positive")
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", c.LogFormat)
	}
	return nil
}

// AnalysisEnabled reports whether a remote analysis service is configured
func (c *Config) AnalysisEnabled() bool {
	return c.AnalysisAPIKey != ""
}
