package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/papercomputeco/drills/pkg/dotdir"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the DRILLS_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (DRILLS_API_LISTEN, DRILLS_SCHEDULER_RUN_AT, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	// 1. Register all defaults from NewDefaultConfig().
	setViperDefaults(v)

	// 2. Config file discovery via dotdir resolution.
	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	// 3. Environment variables: DRILLS_STORAGE_DRIVER, DRILLS_LOCKS_REDIS_ADDR, etc.
	v.SetEnvPrefix("DRILLS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)
	for _, key := range configKeyOrder {
		v.SetDefault(key, configKeys[key].get(d))
	}
}

// FromViper resolves every known key through v, so flags, environment and
// file values all land in one Config.
func FromViper(v *viper.Viper) (*Config, error) {
	cfg := NewDefaultConfig()
	for _, key := range configKeyOrder {
		raw := v.GetString(key)
		if key == "notify.kafka_brokers" {
			raw = strings.Join(v.GetStringSlice(key), ",")
		}
		if raw == "" {
			continue
		}
		if err := configKeys[key].set(cfg, raw); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// Watch re-resolves the config whenever the config file changes and hands
// the result to onChange. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, logger *slog.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}

		cfg, err := FromViper(v)
		if err != nil {
			logger.Warn("ignoring invalid config change",
				"file", e.Name,
				"error", err,
			)
			return
		}

		logger.Info("config reloaded", "file", e.Name)
		onChange(cfg)
	})
	v.WatchConfig()
}
