package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent drills configuration stored as config.toml
// in the .drills/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version   int             `toml:"version"`
	Storage   StorageConfig   `toml:"storage"`
	API       APIConfig       `toml:"api"`
	Scheduler SchedulerConfig `toml:"scheduler"`
	Pack      PackConfig      `toml:"pack"`
	Topics    TopicsConfig    `toml:"topics"`
	Notify    NotifyConfig    `toml:"notify"`
	Locks     LocksConfig     `toml:"locks"`
	Log       LogConfig       `toml:"log"`
}

// StorageConfig selects and locates the storage backend.
type StorageConfig struct {
	// Driver is one of "inmemory", "sqlite" or "postgres".
	Driver      string `toml:"driver,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// SchedulerConfig holds daily generation and nightly batch settings.
type SchedulerConfig struct {
	Timezone              string `toml:"timezone,omitempty"`
	RunAt                 string `toml:"run_at,omitempty"`
	Concurrency           int    `toml:"concurrency"`
	UserTimeout           string `toml:"user_timeout,omitempty"`
	RecalculateOnResponse bool   `toml:"recalculate_on_response"`
}

// PackConfig holds the daily pack caps.
type PackConfig struct {
	DueFlashcards   int `toml:"due_flashcards"`
	DueMCQs         int `toml:"due_mcqs"`
	WeakTopicLimit  int `toml:"weak_topic_limit"`
	WeakMinAttempts int `toml:"weak_min_attempts"`
	WeakFlashcards  int `toml:"weak_flashcards"`
	WeakMCQs        int `toml:"weak_mcqs"`
	NewFlashcards   int `toml:"new_flashcards"`
	NewMCQs         int `toml:"new_mcqs"`
	MaxItems        int `toml:"max_items"`
	Oversample      int `toml:"oversample"`
}

// TopicsConfig holds topic accuracy settings.
type TopicsConfig struct {
	WindowDays    int     `toml:"window_days"`
	WeakThreshold float64 `toml:"weak_threshold,omitempty"`
}

// NotifyConfig selects where "pack ready" notifications go.
type NotifyConfig struct {
	// Provider is one of "nop", "log" or "kafka".
	Provider     string   `toml:"provider,omitempty"`
	KafkaBrokers []string `toml:"kafka_brokers,omitempty"`
	KafkaTopic   string   `toml:"kafka_topic,omitempty"`
	PreviewItems int      `toml:"preview_items"`
	Workers      uint     `toml:"workers,omitempty"`
	QueueSize    uint     `toml:"queue_size,omitempty"`
}

// LocksConfig selects the per-user lock implementation.
type LocksConfig struct {
	// Provider is one of "local" or "redis".
	Provider  string `toml:"provider,omitempty"`
	RedisAddr string `toml:"redis_addr,omitempty"`
	TTL       string `toml:"ttl,omitempty"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Debug bool `toml:"debug"`
	JSON  bool `toml:"json"`

	// File, when set, receives a JSON copy of every log line.
	File string `toml:"file,omitempty"`
}

// Location resolves the scheduler timezone.
func (c SchedulerConfig) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid scheduler.timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// UserTimeoutDuration parses the per-user batch timeout.
func (c SchedulerConfig) UserTimeoutDuration() (time.Duration, error) {
	return parseDuration("scheduler.user_timeout", c.UserTimeout)
}

// TTLDuration parses the lock TTL.
func (c LocksConfig) TTLDuration() (time.Duration, error) {
	return parseDuration("locks.ttl", c.TTL)
}

// Window returns the trailing accuracy window.
func (c TopicsConfig) Window() time.Duration {
	return time.Duration(c.WindowDays) * 24 * time.Hour
}

func parseDuration(key, s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, nil
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatUint(uint64(*field(c)), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func boolKey(name string, field func(c *Config) *bool) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatBool(*field(c)) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = b
			return nil
		},
	}
}

func durationKey(name string, field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error {
			if _, err := parseDuration(name, v); err != nil {
				return err
			}
			*field(c) = v
			return nil
		},
	}
}

// configKeyOrder is every supported key in TOML section order.
var configKeyOrder = []string{
	"storage.driver",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"api.listen",
	"scheduler.timezone",
	"scheduler.run_at",
	"scheduler.concurrency",
	"scheduler.user_timeout",
	"scheduler.recalculate_on_response",
	"pack.due_flashcards",
	"pack.due_mcqs",
	"pack.weak_topic_limit",
	"pack.weak_min_attempts",
	"pack.weak_flashcards",
	"pack.weak_mcqs",
	"pack.new_flashcards",
	"pack.new_mcqs",
	"pack.max_items",
	"pack.oversample",
	"topics.window_days",
	"topics.weak_threshold",
	"notify.provider",
	"notify.kafka_brokers",
	"notify.kafka_topic",
	"notify.preview_items",
	"notify.workers",
	"notify.queue_size",
	"locks.provider",
	"locks.redis_addr",
	"locks.ttl",
	"log.debug",
	"log.json",
	"log.file",
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"storage.driver": {
		get: func(c *Config) string { return c.Storage.Driver },
		set: func(c *Config, v string) error {
			switch v {
			case DriverInMemory, DriverSQLite, DriverPostgres:
				c.Storage.Driver = v
				return nil
			}
			return fmt.Errorf("invalid value for storage.driver: %q (available: inmemory, sqlite, postgres)", v)
		},
	},
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),
	"api.listen":           stringKey(func(c *Config) *string { return &c.API.Listen }),
	"scheduler.timezone": {
		get: func(c *Config) string { return c.Scheduler.Timezone },
		set: func(c *Config, v string) error {
			if _, err := (SchedulerConfig{Timezone: v}).Location(); err != nil {
				return err
			}
			c.Scheduler.Timezone = v
			return nil
		},
	},
	"scheduler.run_at": {
		get: func(c *Config) string { return c.Scheduler.RunAt },
		set: func(c *Config, v string) error {
			if _, err := time.Parse("15:04", v); err != nil {
				return fmt.Errorf("invalid value for scheduler.run_at: expected HH:MM, got %q", v)
			}
			c.Scheduler.RunAt = v
			return nil
		},
	},
	"scheduler.concurrency":             intKey("scheduler.concurrency", func(c *Config) *int { return &c.Scheduler.Concurrency }),
	"scheduler.user_timeout":            durationKey("scheduler.user_timeout", func(c *Config) *string { return &c.Scheduler.UserTimeout }),
	"scheduler.recalculate_on_response": boolKey("scheduler.recalculate_on_response", func(c *Config) *bool { return &c.Scheduler.RecalculateOnResponse }),
	"pack.due_flashcards":               intKey("pack.due_flashcards", func(c *Config) *int { return &c.Pack.DueFlashcards }),
	"pack.due_mcqs":                     intKey("pack.due_mcqs", func(c *Config) *int { return &c.Pack.DueMCQs }),
	"pack.weak_topic_limit":             intKey("pack.weak_topic_limit", func(c *Config) *int { return &c.Pack.WeakTopicLimit }),
	"pack.weak_min_attempts":            intKey("pack.weak_min_attempts", func(c *Config) *int { return &c.Pack.WeakMinAttempts }),
	"pack.weak_flashcards":              intKey("pack.weak_flashcards", func(c *Config) *int { return &c.Pack.WeakFlashcards }),
	"pack.weak_mcqs":                    intKey("pack.weak_mcqs", func(c *Config) *int { return &c.Pack.WeakMCQs }),
	"pack.new_flashcards":               intKey("pack.new_flashcards", func(c *Config) *int { return &c.Pack.NewFlashcards }),
	"pack.new_mcqs":                     intKey("pack.new_mcqs", func(c *Config) *int { return &c.Pack.NewMCQs }),
	"pack.max_items":                    intKey("pack.max_items", func(c *Config) *int { return &c.Pack.MaxItems }),
	"pack.oversample":                   intKey("pack.oversample", func(c *Config) *int { return &c.Pack.Oversample }),
	"topics.window_days":                intKey("topics.window_days", func(c *Config) *int { return &c.Topics.WindowDays }),
	"topics.weak_threshold": {
		get: func(c *Config) string { return strconv.FormatFloat(c.Topics.WeakThreshold, 'f', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				return fmt.Errorf("invalid value for topics.weak_threshold: %w", err)
			}
			if f <= 0 || f > 100 {
				return fmt.Errorf("invalid value for topics.weak_threshold: must be in (0, 100], got %v", f)
			}
			c.Topics.WeakThreshold = f
			return nil
		},
	},
	"notify.provider": {
		get: func(c *Config) string { return c.Notify.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case NotifyNop, NotifyLog, NotifyKafka:
				c.Notify.Provider = v
				return nil
			}
			return fmt.Errorf("invalid value for notify.provider: %q (available: nop, log, kafka)", v)
		},
	},
	"notify.kafka_brokers": {
		get: func(c *Config) string { return strings.Join(c.Notify.KafkaBrokers, ",") },
		set: func(c *Config, v string) error { c.Notify.KafkaBrokers = SplitList(v); return nil },
	},
	"notify.kafka_topic":   stringKey(func(c *Config) *string { return &c.Notify.KafkaTopic }),
	"notify.preview_items": intKey("notify.preview_items", func(c *Config) *int { return &c.Notify.PreviewItems }),
	"notify.workers":       uintKey("notify.workers", func(c *Config) *uint { return &c.Notify.Workers }),
	"notify.queue_size":    uintKey("notify.queue_size", func(c *Config) *uint { return &c.Notify.QueueSize }),
	"locks.provider": {
		get: func(c *Config) string { return c.Locks.Provider },
		set: func(c *Config, v string) error {
			switch v {
			case LocksLocal, LocksRedis:
				c.Locks.Provider = v
				return nil
			}
			return fmt.Errorf("invalid value for locks.provider: %q (available: local, redis)", v)
		},
	},
	"locks.redis_addr": stringKey(func(c *Config) *string { return &c.Locks.RedisAddr }),
	"locks.ttl":        durationKey("locks.ttl", func(c *Config) *string { return &c.Locks.TTL }),
	"log.debug":        boolKey("log.debug", func(c *Config) *bool { return &c.Log.Debug }),
	"log.json":         boolKey("log.json", func(c *Config) *bool { return &c.Log.JSON }),
	"log.file":         stringKey(func(c *Config) *string { return &c.Log.File }),
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
