package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lattice-ir/lattice/internal/compiler/errors"
	"github.com/lattice-ir/lattice/internal/compiler/fold"
	"github.com/lattice-ir/lattice/internal/compiler/pass"
	"github.com/lattice-ir/lattice/internal/compiler/transforms"
	"github.com/lattice-ir/lattice/internal/telemetry"
)

// EnvPrefix prefixes environment overrides, e.g. LATTICE_PASSES_MAX_ITERATIONS.
const EnvPrefix = "LATTICE"

// Config represents the lattice configuration.
type Config struct {
	Passes  PassesConfig            `mapstructure:"passes"`
	Fold    FoldConfig              `mapstructure:"fold"`
	Log     LogConfig               `mapstructure:"log"`
	Tracing telemetry.TracingConfig `mapstructure:"tracing"`
}

// PassesConfig configures the default pipeline.
type PassesConfig struct {
	MaxIterations     int      `mapstructure:"max_iterations"`
	PerPassValidation bool     `mapstructure:"per_pass_validation"`
	Disabled          []string `mapstructure:"disabled"`
	Order             string   `mapstructure:"order"`
}

// FoldConfig configures the constant evaluator.
type FoldConfig struct {
	MaxElements int `mapstructure:"max_elements"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Load loads the configuration. An empty path searches the working directory
// for lattice.yml or lattice.yaml and falls back to defaults when neither
// exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("lattice")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func setDefaults(v *viper.Viper) {
	tracing := telemetry.DefaultTracingConfig()

	v.SetDefault("passes.max_iterations", pass.DefaultMaxIterations)
	v.SetDefault("passes.per_pass_validation", true)
	v.SetDefault("passes.disabled", []string{})
	v.SetDefault("passes.order", pass.TopDown.String())
	v.SetDefault("fold.max_elements", fold.DefaultMaxElements)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("tracing.enabled", tracing.Enabled)
	v.SetDefault("tracing.exporter", tracing.Exporter)
	v.SetDefault("tracing.file_path", "")
	v.SetDefault("tracing.sample_rate", tracing.SampleRate)
	v.SetDefault("tracing.service_name", tracing.ServiceName)
}

// FindConfigFile walks up from the working directory looking for
// lattice.yml or lattice.yaml.
func FindConfigFile() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		for _, name := range []string{"lattice.yml", "lattice.yaml"} {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no lattice.yml found")
		}
		dir = parent
	}
}

// PipelineOptions maps the configuration onto the default pipeline.
func (c *Config) PipelineOptions(logger *zap.Logger, metrics *telemetry.Metrics) transforms.Options {
	order, _ := pass.ParseOrder(c.Passes.Order)
	return transforms.Options{
		MaxIterations:     c.Passes.MaxIterations,
		Order:             order,
		FoldMaxElements:   c.Fold.MaxElements,
		PerPassValidation: c.Passes.PerPassValidation,
		Disabled:          append([]string(nil), c.Passes.Disabled...),
		Logger:            logger,
		Metrics:           metrics,
	}
}

// validateConfig validates the configuration.
func validateConfig(cfg *Config) error {
	if cfg.Passes.MaxIterations <= 0 {
		return errors.NewInvalidConfig("passes.max_iterations",
			fmt.Sprintf("must be positive, got %d", cfg.Passes.MaxIterations))
	}
	if _, ok := pass.ParseOrder(cfg.Passes.Order); !ok {
		return errors.NewInvalidConfig("passes.order",
			fmt.Sprintf("must be top_down or bottom_up, got %q", cfg.Passes.Order))
	}
	if cfg.Fold.MaxElements <= 0 {
		return errors.NewInvalidConfig("fold.max_elements",
			fmt.Sprintf("must be positive, got %d", cfg.Fold.MaxElements))
	}

	known := transforms.NewPassRegistry()
	for _, name := range cfg.Passes.Disabled {
		if _, ok := known.LookupLatest(name); !ok {
			return errors.NewUnknownType("pass", name).
				WithSuggestion("Run 'lattice passes' to list the available passes")
		}
	}
	return nil
}
