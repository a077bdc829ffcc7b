package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/pavelkushtia/spotsdk/pkg/types"
)

// SpotConfig is the process-wide agent configuration. It is loaded once
// at orchestrator construction and never mutated afterwards, so it is
// safe for unsynchronized concurrent reads.
type SpotConfig struct {
	Platform      string              `yaml:"platform"`
	CloudProvider types.CloudProvider `yaml:"cloud_provider"`
	NodeID        string              `yaml:"node_id"`

	// Detection
	PollInterval        time.Duration `yaml:"poll_interval"`
	EarlyWarningSeconds int           `yaml:"early_warning_seconds"`
	DetectorTimeout     time.Duration `yaml:"detector_timeout"`

	// Replacement
	ReplacementStrategy    types.Strategy `yaml:"replacement_strategy"`
	MaxReplacementAttempts int            `yaml:"max_replacement_attempts"`
	ReplacementTimeout     time.Duration  `yaml:"replacement_timeout"`

	// State
	StateBackend       string        `yaml:"state_backend"`
	StateDir           string        `yaml:"state_dir"`
	CheckpointInterval time.Duration `yaml:"checkpoint_interval"`
	MaxCheckpoints     int           `yaml:"max_checkpoints"`
	EnableEncryption   bool          `yaml:"enable_encryption"`

	// Shutdown
	MaxGracePeriod        time.Duration `yaml:"max_grace_period"`
	ForceKillAfter        time.Duration `yaml:"force_kill_after"`
	EnablePreemptiveDrain bool          `yaml:"enable_preemptive_drain"`

	// Platform collaborator (remote drain/scale controller)
	PlatformEndpoint string `yaml:"platform_endpoint"`

	// Monitoring
	EnableMetrics bool   `yaml:"enable_metrics"`
	MetricsPort   int    `yaml:"metrics_port"`
	LogLevel      string `yaml:"log_level"`
	LogJSON       bool   `yaml:"log_json"`
}

// Default returns a configuration with the documented defaults applied
func Default() *SpotConfig {
	hostname, _ := os.Hostname()
	return &SpotConfig{
		Platform:               "instance",
		CloudProvider:          types.CloudProviderAWS,
		NodeID:                 hostname,
		PollInterval:           5 * time.Second,
		EarlyWarningSeconds:    30,
		DetectorTimeout:        2 * time.Second,
		ReplacementStrategy:    types.StrategyElasticScale,
		MaxReplacementAttempts: 3,
		ReplacementTimeout:     300 * time.Second,
		StateBackend:           "local",
		StateDir:               "./checkpoints",
		CheckpointInterval:     300 * time.Second,
		MaxCheckpoints:         10,
		EnableEncryption:       false,
		MaxGracePeriod:         120 * time.Second,
		ForceKillAfter:         150 * time.Second,
		EnablePreemptiveDrain:  true,
		EnableMetrics:          true,
		MetricsPort:            9090,
		LogLevel:               "info",
		LogJSON:                true,
	}
}

// Load reads configuration from an optional YAML file, then applies
// SPOT_SDK_* environment overrides and validates the result.
func Load(path string) (*SpotConfig, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays SPOT_SDK_* environment variables onto the config
func (c *SpotConfig) applyEnv() {
	if v := os.Getenv("SPOT_SDK_PLATFORM"); v != "" {
		c.Platform = v
	}
	if v := os.Getenv("SPOT_SDK_CLOUD_PROVIDER"); v != "" {
		c.CloudProvider = types.CloudProvider(v)
	}
	if v := os.Getenv("SPOT_SDK_NODE_ID"); v != "" {
		c.NodeID = v
	}
	if v := os.Getenv("SPOT_SDK_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.PollInterval = d
		}
	}
	if v := os.Getenv("SPOT_SDK_REPLACEMENT_STRATEGY"); v != "" {
		c.ReplacementStrategy = types.Strategy(v)
	}
	if v := os.Getenv("SPOT_SDK_STATE_BACKEND"); v != "" {
		c.StateBackend = v
	}
	if v := os.Getenv("SPOT_SDK_STATE_DIR"); v != "" {
		c.StateDir = v
	}
	if v := os.Getenv("SPOT_SDK_PLATFORM_ENDPOINT"); v != "" {
		c.PlatformEndpoint = v
	}
	if v := os.Getenv("SPOT_SDK_MAX_CHECKPOINTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxCheckpoints = n
		}
	}
	if v := os.Getenv("SPOT_SDK_METRICS_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MetricsPort = n
		}
	}
	if v := os.Getenv("SPOT_SDK_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate checks the configuration for impossible values
func (c *SpotConfig) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %v", c.PollInterval)
	}
	if c.DetectorTimeout <= 0 {
		return fmt.Errorf("detector_timeout must be positive, got %v", c.DetectorTimeout)
	}
	if c.MaxReplacementAttempts < 1 {
		return fmt.Errorf("max_replacement_attempts must be at least 1, got %d", c.MaxReplacementAttempts)
	}
	if c.MaxCheckpoints < 1 {
		return fmt.Errorf("max_checkpoints must be at least 1, got %d", c.MaxCheckpoints)
	}
	if c.ForceKillAfter <= 0 {
		return fmt.Errorf("force_kill_after must be positive, got %v", c.ForceKillAfter)
	}
	if c.NodeID == "" {
		return fmt.Errorf("node_id must not be empty")
	}
	switch c.ReplacementStrategy {
	case types.StrategyElasticScale, types.StrategyCheckpointRestore, types.StrategyMigration:
	default:
		return fmt.Errorf("unknown replacement_strategy: %s", c.ReplacementStrategy)
	}
	return nil
}
