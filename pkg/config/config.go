// Package config loads restseq settings through viper.
package config

import (
	"fmt"
	"time"

	"github.com/blackcoderx/restseq/pkg/auth"
	"github.com/blackcoderx/restseq/pkg/logging"
	"github.com/spf13/viper"
)

// FolderName is the per-project settings directory.
const FolderName = ".restseq"

// EnvPrefix prefixes environment variable overrides, e.g. RESTSEQ_TARGET.
const EnvPrefix = "RESTSEQ"

// Config is the user's restseq configuration.
type Config struct {
	// Target is the host:port requests are sent to.
	Target             string `mapstructure:"target"`
	TLS                bool   `mapstructure:"tls"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	// BasePath replaces every basepath primitive when set.
	BasePath string `mapstructure:"base_path"`

	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Workers   int           `mapstructure:"workers"`
	Strategy  string        `mapstructure:"strategy"`

	Environment string `mapstructure:"environment"`
	ResultsDir  string `mapstructure:"results_dir"`
	ResultsDB   string `mapstructure:"results_db"`

	Log  logging.Config        `mapstructure:"log"`
	Auth []auth.ProviderConfig `mapstructure:"auth"`
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	// Keys without a default are invisible to AutomaticEnv during Unmarshal.
	v.SetDefault("target", "")
	v.SetDefault("tls", false)
	v.SetDefault("insecure_skip_verify", false)
	v.SetDefault("base_path", "")
	v.SetDefault("results_db", "")
	v.SetDefault("timeout", 30*time.Second)
	v.SetDefault("rate_limit", 0)
	v.SetDefault("workers", 1)
	v.SetDefault("strategy", "dependency")
	v.SetDefault("environment", "dev")
	v.SetDefault("results_dir", FolderName+"/results")
	v.SetDefault("log.level", "info")
}

// Load decodes v into a Config and checks it.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative")
	}
	if c.RateLimit < 0 {
		return fmt.Errorf("rate_limit cannot be negative")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	switch c.Strategy {
	case "dependency", "declaration":
	default:
		return fmt.Errorf("unknown strategy '%s' (use: dependency, declaration)", c.Strategy)
	}
	return nil
}
