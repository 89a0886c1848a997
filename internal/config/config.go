package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"ticker-orchestrator/internal/logger"
	"ticker-orchestrator/internal/persistence"
	"ticker-orchestrator/internal/priority"
	"ticker-orchestrator/internal/risk"
	"ticker-orchestrator/internal/scaler"
	"ticker-orchestrator/internal/ticker"
)

// Config is the full orchestrator configuration.
type Config struct {
	OrchestratorID string `yaml:"orchestrator_id" validate:"required"`

	Server struct {
		Port            int           `yaml:"port" validate:"gte=0,lte=65535"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Log logger.Config `yaml:"log"`

	Storage struct {
		// Backend selects the storage implementation: memory or db.
		Backend       string `yaml:"backend" validate:"oneof=memory db"`
		PostgresDSN   string `yaml:"postgres_dsn"`
		ClickhouseDSN string `yaml:"clickhouse_dsn"`
	} `yaml:"storage"`

	Feed struct {
		Endpoint string   `yaml:"endpoint"`
		Tickers  []string `yaml:"tickers" validate:"min=1"`
	} `yaml:"feed"`

	Ticker      ticker.Config      `yaml:"ticker"`
	Priority    priority.Config    `yaml:"priority"`
	Scaler      scaler.Config      `yaml:"scaler"`
	Risk        risk.Config        `yaml:"risk"`
	Persistence persistence.Config `yaml:"persistence"`

	Intervals struct {
		Dispatch        time.Duration `yaml:"dispatch"`
		Checkpoint      time.Duration `yaml:"checkpoint"`
		ScalingCheck    time.Duration `yaml:"scaling_check"`
		FailureCheck    time.Duration `yaml:"failure_check"`
		CooldownSweep   time.Duration `yaml:"cooldown_sweep"`
		Rescore         time.Duration `yaml:"rescore"`
		Retention       time.Duration `yaml:"retention"`
		PerformanceSnap time.Duration `yaml:"performance_snap"`
	} `yaml:"intervals"`
}

// Default returns a complete configuration with production defaults.
// A config file only needs to override what differs.
func Default() *Config {
	c := &Config{
		OrchestratorID: "orchestrator-1",
		Ticker:         ticker.DefaultConfig(),
		Priority:       priority.DefaultConfig(),
		Scaler:         scaler.DefaultConfig(),
		Risk:           risk.DefaultConfig(),
		Persistence:    persistence.DefaultConfig(),
	}
	c.Server.Port = 8080
	c.Server.ShutdownTimeout = 15 * time.Second
	c.Log = logger.Config{Level: "info", Format: "json"}
	c.Storage.Backend = "memory"
	c.Feed.Tickers = []string{"SPY"}
	c.Intervals.Dispatch = 100 * time.Millisecond
	c.Intervals.Checkpoint = 1 * time.Minute
	c.Intervals.ScalingCheck = 30 * time.Second
	c.Intervals.FailureCheck = 10 * time.Second
	c.Intervals.CooldownSweep = 5 * time.Second
	c.Intervals.Rescore = 30 * time.Second
	c.Intervals.Retention = 1 * time.Hour
	c.Intervals.PerformanceSnap = 15 * time.Second
	return c
}

// Load reads a YAML configuration file over the defaults and validates
// the result. An empty path returns validated defaults.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("ORCHESTRATOR_ID"); v != "" {
		c.OrchestratorID = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv("CLICKHOUSE_DSN"); v != "" {
		c.Storage.ClickhouseDSN = v
	}
	if v := os.Getenv("FEED_ENDPOINT"); v != "" {
		c.Feed.Endpoint = v
	}
	if v := os.Getenv("TICKERS"); v != "" {
		c.Feed.Tickers = strings.Split(v, ",")
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}
	if c.Storage.Backend == "db" {
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres_dsn is required with the db backend")
		}
	}
	if c.Ticker.SetConfidence > c.Ticker.GoConfidence {
		return fmt.Errorf("ticker.set_confidence must not exceed ticker.go_confidence")
	}
	if c.Scaler.MinWorkers > c.Scaler.MaxWorkers {
		return fmt.Errorf("scaler.min_workers must not exceed scaler.max_workers")
	}
	return nil
}
