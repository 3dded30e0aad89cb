package config

import (
	"github.com/papercomputeco/drills/pkg/pack"
	"github.com/papercomputeco/drills/pkg/topics"
)

// Storage drivers.
const (
	DriverInMemory = "inmemory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Notification providers.
const (
	NotifyNop   = "nop"
	NotifyLog   = "log"
	NotifyKafka = "kafka"
)

// Lock providers.
const (
	LocksLocal = "local"
	LocksRedis = "redis"
)

const (
	defaultAPIListen = ":8081"

	defaultRunAt       = "02:00"
	defaultTimezone    = "UTC"
	defaultConcurrency = 4
	defaultUserTimeout = "30s"

	defaultKafkaTopic   = "drills.pack.ready"
	defaultPreviewItems = 3
	defaultWorkers      = 3
	defaultQueueSize    = 256

	defaultLockTTL = "2m"

	// DefaultSQLiteFile is created inside the resolved .drills/ directory
	// when storage.sqlite_path is unset.
	DefaultSQLiteFile = "drills.sqlite"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	p := pack.DefaultPolicy()
	return &Config{
		Version: CurrentV,
		Storage: StorageConfig{
			Driver: DriverSQLite,
		},
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Scheduler: SchedulerConfig{
			Timezone:              defaultTimezone,
			RunAt:                 defaultRunAt,
			Concurrency:           defaultConcurrency,
			UserTimeout:           defaultUserTimeout,
			RecalculateOnResponse: true,
		},
		Pack: PackConfig{
			DueFlashcards:   p.DueFlashcards,
			DueMCQs:         p.DueMCQs,
			WeakTopicLimit:  p.WeakTopicLimit,
			WeakMinAttempts: p.WeakMinAttempts,
			WeakFlashcards:  p.WeakFlashcards,
			WeakMCQs:        p.WeakMCQs,
			NewFlashcards:   p.NewFlashcards,
			NewMCQs:         p.NewMCQs,
			MaxItems:        p.MaxItems,
			Oversample:      p.Oversample,
		},
		Topics: TopicsConfig{
			WindowDays:    int(topics.DefaultWindow.Hours() / 24),
			WeakThreshold: topics.DefaultWeakThreshold,
		},
		Notify: NotifyConfig{
			Provider:     NotifyLog,
			KafkaTopic:   defaultKafkaTopic,
			PreviewItems: defaultPreviewItems,
			Workers:      defaultWorkers,
			QueueSize:    defaultQueueSize,
		},
		Locks: LocksConfig{
			Provider: LocksLocal,
			TTL:      defaultLockTTL,
		},
	}
}

// Policy converts the pack section into a composer policy.
func (c PackConfig) Policy() pack.Policy {
	return pack.Policy{
		DueFlashcards:   c.DueFlashcards,
		DueMCQs:         c.DueMCQs,
		WeakTopicLimit:  c.WeakTopicLimit,
		WeakMinAttempts: c.WeakMinAttempts,
		WeakFlashcards:  c.WeakFlashcards,
		WeakMCQs:        c.WeakMCQs,
		NewFlashcards:   c.NewFlashcards,
		NewMCQs:         c.NewMCQs,
		MaxItems:        c.MaxItems,
		Oversample:      c.Oversample,
	}
}
