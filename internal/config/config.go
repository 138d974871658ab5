// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Logging    LoggingConfig    `yaml:"logging"`
	Checks     []CheckSeed      `yaml:"checks"`
}

type ServerConfig struct {
	Port         string        `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	AuthHeader   string        `yaml:"auth_header"`
	AuthPrefix   string        `yaml:"auth_prefix"`
}

type DatabaseConfig struct {
	Path             string        `yaml:"path"`
	CleanupInterval  time.Duration `yaml:"cleanup_interval"`
	HistoryRetention time.Duration `yaml:"history_retention"`
}

type MonitoringConfig struct {
	// SweepInterval is read once at startup; changing it requires a restart.
	SweepInterval   time.Duration `yaml:"sweep_interval"`
	DefaultCooldown time.Duration `yaml:"default_cooldown"`
}

type PrometheusConfig struct {
	Enabled     bool   `yaml:"enabled"`
	MetricsPath string `yaml:"metrics_path"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CheckSeed declares a check type synced into the store at startup. Params
// are the per-kind defaults that host configs override per key.
type CheckSeed struct {
	Key      string                 `yaml:"key"`
	Name     string                 `yaml:"name"`
	Severity string                 `yaml:"severity"`
	Params   map[string]interface{} `yaml:"params"`
	Cooldown time.Duration          `yaml:"cooldown"`
	Enabled  *bool                  `yaml:"enabled"`
	Notes    string                 `yaml:"notes"`
}

func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	setDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8000"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 15 * time.Second
	}
	if cfg.Server.AuthHeader == "" {
		cfg.Server.AuthHeader = "Authorization"
	}
	if cfg.Server.AuthPrefix == "" {
		cfg.Server.AuthPrefix = "Bearer "
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/hostwatch.db"
	}
	if cfg.Database.CleanupInterval == 0 {
		cfg.Database.CleanupInterval = 6 * time.Hour
	}
	if cfg.Database.HistoryRetention == 0 {
		cfg.Database.HistoryRetention = 7 * 24 * time.Hour
	}

	if cfg.Monitoring.SweepInterval == 0 {
		cfg.Monitoring.SweepInterval = time.Minute
	}
	if cfg.Monitoring.DefaultCooldown == 0 {
		cfg.Monitoring.DefaultCooldown = time.Hour
	}

	if cfg.Prometheus.MetricsPath == "" {
		cfg.Prometheus.MetricsPath = "/metrics"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}

	if len(cfg.Checks) == 0 {
		cfg.Checks = DefaultChecks()
	}
	for i := range cfg.Checks {
		seed := &cfg.Checks[i]
		if seed.Severity == "" {
			seed.Severity = "L1"
		}
		if seed.Cooldown == 0 {
			seed.Cooldown = cfg.Monitoring.DefaultCooldown
		}
		if seed.Enabled == nil {
			enabled := true
			seed.Enabled = &enabled
		}
	}
}

// DefaultChecks returns the built-in check catalog used when the config file
// declares none.
func DefaultChecks() []CheckSeed {
	return []CheckSeed{
		{
			Key:      "host_online",
			Name:     "Host Online",
			Severity: "L1",
			Params:   map[string]interface{}{"offline_threshold_minutes": 60},
			Notes:    "Checks if host has sent data recently",
		},
		{
			Key:      "disk_space",
			Name:     "Disk Space",
			Severity: "L2",
			Params:   map[string]interface{}{"threshold_pct": 90},
			Notes:    "Alerts when disk usage exceeds threshold",
		},
		{
			Key:      "memory_usage",
			Name:     "Memory Usage",
			Severity: "L2",
			Params:   map[string]interface{}{"threshold_pct": 90},
			Notes:    "Alerts when memory usage exceeds threshold",
		},
		{
			Key:      "cpu_usage",
			Name:     "CPU Usage",
			Severity: "L2",
			Params:   map[string]interface{}{"threshold_pct": 90},
			Notes:    "Alerts when CPU usage exceeds threshold",
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Monitoring.SweepInterval < time.Second {
		return fmt.Errorf("monitoring.sweep_interval must be at least 1s")
	}
	if cfg.Database.HistoryRetention < 0 {
		return fmt.Errorf("database.history_retention must not be negative")
	}
	if cfg.Database.CleanupInterval < time.Second {
		return fmt.Errorf("database.cleanup_interval must be at least 1s")
	}

	seen := make(map[string]bool)
	for _, seed := range cfg.Checks {
		if seed.Key == "" {
			return fmt.Errorf("check seed is missing a key")
		}
		if seen[seed.Key] {
			return fmt.Errorf("duplicate check key: %s", seed.Key)
		}
		seen[seed.Key] = true

		switch seed.Severity {
		case "L1", "L2", "L3":
		default:
			return fmt.Errorf("check '%s' has invalid severity: %s", seed.Key, seed.Severity)
		}
		if seed.Cooldown < 0 {
			return fmt.Errorf("check '%s' has negative cooldown", seed.Key)
		}
	}

	return nil
}
