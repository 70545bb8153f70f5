// Package config loads the cattledb application configuration from a YAML
// file, with CATTLEDB_* environment overrides. The file selects the storage
// backend and carries the metric and event definition lists that seed a
// connection.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/cattledb/cattledb/internal/engine"
	"github.com/cattledb/cattledb/internal/store"
	"github.com/cattledb/cattledb/internal/types"
)

// DefaultFileName is looked up in the working directory and /etc/cattledb
// when no explicit path is given.
const DefaultFileName = "cattledb"

// AppConfig is the full application configuration.
type AppConfig struct {
	Engine  engine.Config            `yaml:"engine" mapstructure:"engine"`
	Metrics []types.MetricDefinition `yaml:"metrics" mapstructure:"metrics"`
	Events  []types.EventDefinition  `yaml:"events" mapstructure:"events"`
}

// Default returns the built-in configuration: an admin sqlite connection
// with the "cdb" table prefix and no definitions.
func Default() AppConfig {
	return AppConfig{
		Engine: engine.Config{
			Backend:     "sqlite",
			TablePrefix: "cdb",
			DataDir:     ".",
			Admin:       true,
		},
	}
}

// Load reads the configuration from path, or from the default search
// locations when path is empty. A missing file yields the defaults;
// CATTLEDB_* environment variables override either way.
func Load(path string) (AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("CATTLEDB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	def := Default()
	v.SetDefault("engine.backend", def.Engine.Backend)
	v.SetDefault("engine.table_prefix", def.Engine.TablePrefix)
	v.SetDefault("engine.data_dir", def.Engine.DataDir)
	v.SetDefault("engine.admin", def.Engine.Admin)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(DefaultFileName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/cattledb")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return AppConfig{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate checks the backend selection and every definition.
func (c AppConfig) Validate() error {
	if c.Engine.Backend == "" {
		return fmt.Errorf("config: no engine backend selected")
	}
	if c.Engine.TablePrefix == "" {
		return fmt.Errorf("config: empty table prefix")
	}
	for _, m := range c.Metrics {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	for _, e := range c.Events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
	}
	return nil
}

// StoreOptions converts the configuration into connection options.
func (c AppConfig) StoreOptions() store.Options {
	return store.Options{
		Engine:            c.Engine,
		MetricDefinitions: c.Metrics,
		EventDefinitions:  c.Events,
	}
}
