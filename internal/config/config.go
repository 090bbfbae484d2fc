// Package config loads verso settings from a YAML file and VERSO_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/roach88/verso/internal/diff"
	"github.com/roach88/verso/internal/textdiff"
)

// EnvPrefix is prepended to every environment override, e.g.
// VERSO_DATABASE_PATH for database.path.
const EnvPrefix = "VERSO"

var validate = validator.New()

// Config is the full runtime configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Diff     DiffConfig     `mapstructure:"diff"`
	Merge    MergeConfig    `mapstructure:"merge"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	Path   string `mapstructure:"path" validate:"required"`
	Driver string `mapstructure:"driver" validate:"oneof=sqlite3 sqlite"`
}

type SchemaConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

// DiffConfig tunes the semantic text diff and adds predicate rules to the
// strategy registry.
type DiffConfig struct {
	Timeout           time.Duration `mapstructure:"timeout" validate:"gte=0"`
	EfficiencyCleanup bool          `mapstructure:"efficiency_cleanup"`
	EditCost          int           `mapstructure:"edit_cost" validate:"gte=0"`
	Rules             []RuleConfig  `mapstructure:"rules" validate:"dive"`
}

type RuleConfig struct {
	When     string `mapstructure:"when" validate:"required"`
	Strategy string `mapstructure:"strategy" validate:"required"`
}

// MergeConfig selects the hook consulted when a submission is stale.
type MergeConfig struct {
	Hook string `mapstructure:"hook" validate:"oneof=default three-way"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=text json"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "verso.db")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("schema.dir", "schema")
	v.SetDefault("diff.timeout", textdiff.DefaultTimeout)
	v.SetDefault("diff.efficiency_cleanup", false)
	v.SetDefault("diff.edit_cost", textdiff.DefaultEditCost)
	v.SetDefault("merge.hook", "default")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. When file is empty, verso.yaml is searched in
// the working directory and a missing file is not an error; an explicit
// file must exist.
func Load(file string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("verso")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// TextOptions returns the semantic diff tuning.
func (c DiffConfig) TextOptions() textdiff.Options {
	return textdiff.Options{Timeout: c.Timeout, Efficiency: c.EfficiencyCleanup, EditCost: c.EditCost}
}

// ExprRules converts configured rules for Registry.RegisterExprRules.
func (c DiffConfig) ExprRules() []diff.ExprRule {
	rules := make([]diff.ExprRule, 0, len(c.Rules))
	for _, r := range c.Rules {
		rules = append(rules, diff.ExprRule{When: r.When, Strategy: r.Strategy})
	}
	return rules
}

// Registry builds a frozen registry with the built-in strategies plus the
// configured rules. Rule evaluation errors go to logger.
func (c DiffConfig) Registry(logger *slog.Logger) (*diff.Registry, error) {
	reg := diff.NewBuiltinRegistry(c.TextOptions())
	reg.SetLogger(logger)
	if err := reg.RegisterExprRules(c.ExprRules()); err != nil {
		return nil, err
	}
	reg.Freeze()
	return reg, nil
}

// SlogLevel maps the configured level name.
func (c LogConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds a logger writing to w in the configured format.
func (c LogConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
