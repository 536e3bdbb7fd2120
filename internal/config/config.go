// Package config loads this module's layered configuration: defaults,
// an optional YAML file, environment variables, and CLI flags, in that
// increasing order of precedence, using github.com/spf13/viper for the
// layering and github.com/go-playground/validator/v10 to enforce the
// invariants spec.md §4.4/§6 name (positive deadlines, non-negative
// thresholds, FreshMS < StaleMS < CriticalMS).
//
// Grounded on the go.mod manifests for cuemby-warren and
// fredcamaral-mcp-alfarrabio (SPEC_FULL.md §11), which pair viper with
// cobra the same way: cobra owns flag definitions and command wiring,
// viper owns precedence and the optional file layer.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"statusline/internal/freshness"
	"statusline/internal/paths"
)

// Config is the complete set of tunables this module's binaries accept.
type Config struct {
	CacheBase        string                         `mapstructure:"cache_base" validate:"required"`
	GatherDeadlineMS int64                           `mapstructure:"gather_deadline_ms" validate:"gt=0"`
	RunnerTimeoutMS  int64                           `mapstructure:"runner_timeout_ms" validate:"gt=0"`
	WrapperTimeoutMS int64                           `mapstructure:"wrapper_timeout_ms" validate:"gt=0"`
	SessionCacheSize int                             `mapstructure:"session_cache_size" validate:"gt=0"`
	CategoriesFile   string                         `mapstructure:"categories_file"`
	Categories       map[string]freshness.Thresholds `mapstructure:"categories"`
}

// Deadline, RunnerTimeout, and WrapperTimeout convert the millisecond
// fields to time.Duration for callers (viper/YAML has no native duration
// scalar that round-trips cleanly across all three layers).
func (c Config) Deadline() time.Duration      { return time.Duration(c.GatherDeadlineMS) * time.Millisecond }
func (c Config) RunnerTimeout() time.Duration { return time.Duration(c.RunnerTimeoutMS) * time.Millisecond }
func (c Config) WrapperTimeout() time.Duration {
	return time.Duration(c.WrapperTimeoutMS) * time.Millisecond
}

func defaults() Config {
	return Config{
		CacheBase:        paths.DefaultBase(),
		GatherDeadlineMS: 20_000,
		RunnerTimeoutMS:  30_000,
		WrapperTimeoutMS: 500,
		SessionCacheSize: 64,
		Categories:       freshness.DefaultCategories(),
	}
}

var validate = validator.New()

// Load resolves a Config from, in increasing precedence: built-in
// defaults, an optional YAML file at configPath (skipped silently if
// absent), environment variables prefixed STATUSLINE_, and flags already
// bound to fs (if non-nil - cmd/ binaries bind their cobra flag set here).
func Load(configPath string, fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	d := defaults()
	v.SetDefault("cache_base", d.CacheBase)
	v.SetDefault("gather_deadline_ms", d.GatherDeadlineMS)
	v.SetDefault("runner_timeout_ms", d.RunnerTimeoutMS)
	v.SetDefault("wrapper_timeout_ms", d.WrapperTimeoutMS)
	v.SetDefault("session_cache_size", d.SessionCacheSize)

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("config: read %s: %w", configPath, err)
			}
		}
	}

	v.SetEnvPrefix("STATUSLINE")
	v.AutomaticEnv()

	if fs != nil {
		if err := v.BindPFlags(fs); err != nil {
			return Config{}, fmt.Errorf("config: bind flags: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	if cfg.Categories == nil {
		cfg.Categories = d.Categories
	}

	if overrides, err := freshness.LoadCategoriesFile(cfg.CategoriesFile); err != nil {
		return Config{}, fmt.Errorf("config: categories file: %w", err)
	} else if overrides != nil {
		merged := make(map[string]freshness.Thresholds, len(cfg.Categories)+len(overrides))
		for name, t := range cfg.Categories {
			merged[name] = t
		}
		for name, t := range overrides {
			merged[name] = t
		}
		cfg.Categories = merged
	}

	if err := validate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("config: invalid: %w", err)
	}
	for name, t := range cfg.Categories {
		if !(t.FreshMS < t.StaleMS && t.StaleMS < t.CriticalMS) {
			return Config{}, fmt.Errorf("config: category %q thresholds must satisfy fresh < stale < critical", name)
		}
	}
	return cfg, nil
}
