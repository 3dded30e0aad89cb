package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --sqlite
// on "drills serve", "drills generate" and "drills study").
type Flag struct {
	// Name is the long flag name (e.g. "sqlite").
	Name string

	// Shorthand is the one-letter short flag (e.g. "s"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "storage.sqlite_path").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagStorageDriver = "storage-driver"
	FlagSQLite        = "sqlite"
	FlagPostgres      = "postgres"
	FlagAPIListen     = "api-listen"
	FlagTimezone      = "timezone"
	FlagRunAt         = "run-at"
	FlagConcurrency   = "concurrency"
	FlagNotify        = "notify"
	FlagKafkaBrokers  = "kafka-brokers"
	FlagKafkaTopic    = "kafka-topic"
	FlagLocks         = "locks"
	FlagRedisAddr     = "redis-addr"
	FlagWorkers       = "notify-workers"
)

// StorageFlags are shared by every command that opens the store.
var StorageFlags = []string{FlagStorageDriver, FlagSQLite, FlagPostgres, FlagTimezone}

// Flags is the drills flag registry.
var Flags = FlagSet{
	FlagStorageDriver: {
		Name:        "storage",
		ViperKey:    "storage.driver",
		Description: "Storage driver (inmemory, sqlite, postgres)",
	},
	FlagSQLite: {
		Name:        "sqlite",
		Shorthand:   "s",
		ViperKey:    "storage.sqlite_path",
		Description: "Path to the SQLite database (default: .drills/drills.sqlite)",
	},
	FlagPostgres: {
		Name:        "postgres",
		ViperKey:    "storage.postgres_dsn",
		Description: "PostgreSQL connection string",
	},
	FlagAPIListen: {
		Name:        "listen",
		Shorthand:   "l",
		ViperKey:    "api.listen",
		Description: "Address for the API server to listen on",
	},
	FlagTimezone: {
		Name:        "timezone",
		ViperKey:    "scheduler.timezone",
		Description: "IANA timezone that defines the study day",
	},
	FlagRunAt: {
		Name:        "run-at",
		ViperKey:    "scheduler.run_at",
		Description: "Local wall clock time (HH:MM) of the nightly batch",
	},
	FlagConcurrency: {
		Name:        "concurrency",
		ViperKey:    "scheduler.concurrency",
		Description: "Users generated in parallel during a batch",
	},
	FlagNotify: {
		Name:        "notify",
		ViperKey:    "notify.provider",
		Description: "Notification provider (nop, log, kafka)",
	},
	FlagKafkaBrokers: {
		Name:        "kafka-brokers",
		ViperKey:    "notify.kafka_brokers",
		Description: "Comma separated Kafka broker addresses",
	},
	FlagKafkaTopic: {
		Name:        "kafka-topic",
		ViperKey:    "notify.kafka_topic",
		Description: "Kafka topic for pack ready events",
	},
	FlagLocks: {
		Name:        "locks",
		ViperKey:    "locks.provider",
		Description: "Per-user lock provider (local, redis)",
	},
	FlagRedisAddr: {
		Name:        "redis-addr",
		ViperKey:    "locks.redis_addr",
		Description: "Redis address for distributed locks",
	},
	FlagWorkers: {
		Name:        "notify-workers",
		ViperKey:    "notify.workers",
		Description: "Number of async notification workers",
	},
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
