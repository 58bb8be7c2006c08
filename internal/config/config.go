// Package config loads the static startup configuration: node endpoints,
// recovery log location, retry limits, backoff parameters and polling
// intervals. The configuration is read once and treated as immutable for
// the process lifetime.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/relogd/relog/internal/retry"
)

// Node is one configured database node.
type Node struct {
	ID   int    `mapstructure:"id"`
	Name string `mapstructure:"name"`
	DSN  string `mapstructure:"dsn"`
}

// Config is the full static configuration set.
type Config struct {
	// RecoveryLog is the path of the recovery log database.
	RecoveryLog string `mapstructure:"recovery_log"`

	Nodes []Node `mapstructure:"nodes"`

	// Replay engine scheduling.
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	AllowOutOfOrder bool          `mapstructure:"allow_out_of_order"`

	// Retry policy.
	MaxRetries  int           `mapstructure:"max_retries"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffCap  time.Duration `mapstructure:"backoff_cap"`

	// Health probing.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`

	// MetricsAddr is the Prometheus listen address; empty disables the
	// listener.
	MetricsAddr string `mapstructure:"metrics_addr"`

	LogLevel string `mapstructure:"log_level"`
}

// Load reads the configuration file at path, layered with RELOG_* env
// variables and an optional .env file in the working directory.
func Load(path string) (*Config, error) {
	// Best effort: a missing .env is the normal case.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RELOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("recovery_log", "relog.db")
	v.SetDefault("poll_interval", 5*time.Second)
	v.SetDefault("batch_size", 50)
	v.SetDefault("attempt_timeout", 10*time.Second)
	v.SetDefault("allow_out_of_order", false)
	v.SetDefault("max_retries", 3)
	v.SetDefault("backoff_base", 2*time.Second)
	v.SetDefault("backoff_cap", time.Minute)
	v.SetDefault("probe_interval", 5*time.Second)
	v.SetDefault("probe_timeout", 3*time.Second)
	v.SetDefault("log_level", "info")
}

// Validate checks the loaded configuration for internal consistency.
func (c *Config) Validate() error {
	if c.RecoveryLog == "" {
		return fmt.Errorf("recovery_log must be set")
	}
	if len(c.Nodes) == 0 {
		return fmt.Errorf("at least one node must be configured")
	}

	seen := make(map[int]bool, len(c.Nodes))
	for _, n := range c.Nodes {
		if n.ID <= 0 {
			return fmt.Errorf("node %q: id must be positive, got %d", n.Name, n.ID)
		}
		if seen[n.ID] {
			return fmt.Errorf("duplicate node id %d", n.ID)
		}
		seen[n.ID] = true
		if n.DSN == "" {
			return fmt.Errorf("node %d: dsn must be set", n.ID)
		}
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive")
	}
	if c.ProbeInterval <= 0 {
		return fmt.Errorf("probe_interval must be positive")
	}
	if c.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be positive")
	}
	if c.BackoffBase <= 0 || c.BackoffCap < c.BackoffBase {
		return fmt.Errorf("backoff_base must be positive and backoff_cap >= backoff_base")
	}
	return nil
}

// Policy returns the retry policy described by the configuration.
func (c *Config) Policy() retry.Policy {
	return retry.Policy{
		Base:       c.BackoffBase,
		Cap:        c.BackoffCap,
		MaxRetries: c.MaxRetries,
	}
}

// TargetIDs returns the configured node ids in declaration order.
func (c *Config) TargetIDs() []int {
	ids := make([]int, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		ids = append(ids, n.ID)
	}
	return ids
}
