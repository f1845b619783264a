// Package config loads engine configuration from a YAML file, CHAINRISK_*
// environment variables and built-in defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/WessleyAI/chainrisk/engine/domain"
)

// EnvPrefix is prepended to every environment override, e.g.
// CHAINRISK_GRAPH_URI overrides graph.uri.
const EnvPrefix = "CHAINRISK"

// Config is the full engine configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Traversal TraversalConfig `mapstructure:"traversal"`
	Recalc    RecalcConfig    `mapstructure:"recalc"`
	History   HistoryConfig   `mapstructure:"history"`
	Priority  PriorityConfig  `mapstructure:"priority"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Ops       OpsConfig       `mapstructure:"ops"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// GraphConfig selects and tunes the graph backend. Backend is "neo4j" or "memory";
// the memory backend is seeded from Fixture.
type GraphConfig struct {
	Backend          string        `mapstructure:"backend"`
	URI              string        `mapstructure:"uri"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	Database         string        `mapstructure:"database"`
	Fixture          string        `mapstructure:"fixture"`
	CallTimeout      time.Duration `mapstructure:"call_timeout"`
	RateLimit        float64       `mapstructure:"rate_limit"`
	Burst            int           `mapstructure:"burst"`
	BreakerThreshold int           `mapstructure:"breaker_threshold"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown"`
}

type TraversalConfig struct {
	MaxDepth         int `mapstructure:"max_depth"`
	PathCap          int `mapstructure:"path_cap"`
	AlternativeDepth int `mapstructure:"alternative_depth"`
	Concurrency      int `mapstructure:"concurrency"`
}

type RecalcConfig struct {
	Workers       int           `mapstructure:"workers"`
	EntityTimeout time.Duration `mapstructure:"entity_timeout"`
	SLA           time.Duration `mapstructure:"sla"`
	MaxDepth      int           `mapstructure:"max_depth"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryWait     time.Duration `mapstructure:"retry_wait"`
}

// HistoryConfig selects the history backend: "memory", "redis" or "graph".
type HistoryConfig struct {
	Backend  string `mapstructure:"backend"`
	RedisURL string `mapstructure:"redis_url"`
}

type PriorityConfig struct {
	Weights    WeightsConfig `mapstructure:"weights"`
	AlertRules []string      `mapstructure:"alert_rules"`
}

type WeightsConfig struct {
	Severity   float64 `mapstructure:"severity"`
	Timeline   float64 `mapstructure:"timeline"`
	Products   float64 `mapstructure:"products"`
	Revenue    float64 `mapstructure:"revenue"`
	Confidence float64 `mapstructure:"confidence"`
}

type NATSConfig struct {
	URL   string `mapstructure:"url"`
	Queue string `mapstructure:"queue"`
	// DrainTimeout bounds how long shutdown waits for in-flight batches.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
}

type OpsConfig struct {
	Addr string `mapstructure:"addr"`
}

// SetDefaults registers every key with its default so environment
// overrides apply even when no config file sets the key.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("graph.backend", "neo4j")
	v.SetDefault("graph.uri", "neo4j://localhost:7687")
	v.SetDefault("graph.user", "neo4j")
	v.SetDefault("graph.password", "")
	v.SetDefault("graph.database", "")
	v.SetDefault("graph.fixture", "")
	v.SetDefault("graph.call_timeout", 10*time.Second)
	v.SetDefault("graph.rate_limit", 200.0)
	v.SetDefault("graph.burst", 50)
	v.SetDefault("graph.breaker_threshold", 5)
	v.SetDefault("graph.breaker_cooldown", 30*time.Second)

	v.SetDefault("traversal.max_depth", 5)
	v.SetDefault("traversal.path_cap", 5)
	v.SetDefault("traversal.alternative_depth", 6)
	v.SetDefault("traversal.concurrency", 8)

	v.SetDefault("recalc.workers", 16)
	v.SetDefault("recalc.entity_timeout", 30*time.Second)
	v.SetDefault("recalc.sla", 300*time.Second)
	v.SetDefault("recalc.max_depth", 5)
	v.SetDefault("recalc.retry_attempts", 3)
	v.SetDefault("recalc.retry_wait", time.Second)

	v.SetDefault("history.backend", "memory")
	v.SetDefault("history.redis_url", "redis://localhost:6379/0")

	v.SetDefault("priority.weights.severity", 0.30)
	v.SetDefault("priority.weights.timeline", 0.20)
	v.SetDefault("priority.weights.products", 0.25)
	v.SetDefault("priority.weights.revenue", 0.15)
	v.SetDefault("priority.weights.confidence", 0.10)
	v.SetDefault("priority.alert_rules", []string{})

	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.queue", "chainrisk-recalc")
	v.SetDefault("nats.drain_timeout", 60*time.Second)

	v.SetDefault("ops.addr", ":9090")
}

// Load reads configuration into v and decodes it. An empty path skips the
// file; a missing explicit path is an error.
func Load(v *viper.Viper, path string) (Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail later at construction.
func (c Config) Validate() error {
	var errs []error
	switch c.Graph.Backend {
	case "neo4j", "memory":
	default:
		errs = append(errs, domain.NewConfigurationError("graph.backend", "unknown backend %q", c.Graph.Backend))
	}
	if c.Graph.Backend == "memory" && c.Graph.Fixture == "" {
		errs = append(errs, domain.NewConfigurationError("graph.fixture", "required for the memory backend"))
	}
	switch c.History.Backend {
	case "memory", "redis", "graph":
	default:
		errs = append(errs, domain.NewConfigurationError("history.backend", "unknown backend %q", c.History.Backend))
	}
	if c.History.Backend == "graph" && c.Graph.Backend != "neo4j" {
		errs = append(errs, domain.NewConfigurationError("history.backend", "graph history requires the neo4j graph backend"))
	}
	if c.Traversal.Concurrency <= 0 {
		errs = append(errs, domain.NewConfigurationError("traversal.concurrency", "must be positive"))
	}
	if c.Traversal.MaxDepth <= 0 {
		errs = append(errs, domain.NewConfigurationError("traversal.max_depth", "must be positive"))
	}
	if c.Recalc.Workers <= 0 {
		errs = append(errs, domain.NewConfigurationError("recalc.workers", "must be positive"))
	}
	if c.Recalc.SLA <= 0 {
		errs = append(errs, domain.NewConfigurationError("recalc.sla", "must be positive"))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, domain.NewConfigurationError("log.format", "must be json or text"))
	}
	return errors.Join(errs...)
}
