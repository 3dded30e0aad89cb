// Package stack builds the scheduler and its collaborators from the
// resolved drills configuration. Every command that touches the store goes
// through Load so they all agree on storage, locks and notifications.
package stack

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/papercomputeco/drills/pkg/config"
	"github.com/papercomputeco/drills/pkg/dotdir"
	"github.com/papercomputeco/drills/pkg/eventstream"
	"github.com/papercomputeco/drills/pkg/eventstream/kafka"
	"github.com/papercomputeco/drills/pkg/eventstream/nop"
	"github.com/papercomputeco/drills/pkg/logger"
	"github.com/papercomputeco/drills/pkg/notify"
	"github.com/papercomputeco/drills/pkg/notify/worker"
	"github.com/papercomputeco/drills/pkg/pack"
	"github.com/papercomputeco/drills/pkg/scheduler"
	"github.com/papercomputeco/drills/pkg/storage"
	"github.com/papercomputeco/drills/pkg/storage/inmemory"
	"github.com/papercomputeco/drills/pkg/storage/postgres"
	"github.com/papercomputeco/drills/pkg/storage/sqlite"
	"github.com/papercomputeco/drills/pkg/topics"
	"github.com/papercomputeco/drills/pkg/userlock"
	"github.com/papercomputeco/drills/pkg/userlock/redislock"
)

// ServiceName identifies drills as the source of published events.
const ServiceName = "drills"

// Stack is a fully wired scheduler.
type Stack struct {
	Config       *config.Config
	Viper        *viper.Viper
	Logger       *slog.Logger
	Store        storage.Driver
	Tracker      *topics.Tracker
	Composer     *pack.Composer
	Locker       userlock.Locker
	Orchestrator *scheduler.Orchestrator

	closers []func() error
}

// LoadConfig resolves the configuration for cmd. flagKeys names the
// registry flags cmd registered; they take precedence over the environment
// and the config file.
func LoadConfig(cmd *cobra.Command, flagKeys []string) (*config.Config, *viper.Viper, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)

	cfg, err := config.FromViper(v)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, v, nil
}

// NewLogger builds the process logger. Debug from the flag or the config
// enables debug level; an interactive stderr gets the pretty handler unless
// JSON output is configured. When log.file is set every record is also
// appended to that file as JSON. The returned func closes the file.
func NewLogger(cfg *config.Config, debug bool) (*slog.Logger, func() error, error) {
	debug = debug || cfg.Log.Debug
	console := logger.New(
		logger.WithDebug(debug),
		logger.WithJSON(cfg.Log.JSON),
		logger.WithPretty(!cfg.Log.JSON && logger.IsTerminal(os.Stderr)),
		logger.WithWriter(os.Stderr),
	)
	if cfg.Log.File == "" {
		return console, func() error { return nil }, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	file := logger.New(
		logger.WithDebug(debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	)
	return logger.Multi(console.Handler(), file.Handler()), f.Close, nil
}

// Load resolves configuration for cmd and opens the stack.
func Load(cmd *cobra.Command, flagKeys []string) (*Stack, error) {
	cfg, v, err := LoadConfig(cmd, flagKeys)
	if err != nil {
		return nil, err
	}

	debug, _ := cmd.Flags().GetBool("debug")
	configDir, _ := cmd.Flags().GetString("config-dir")

	log, closeLog, err := NewLogger(cfg, debug)
	if err != nil {
		return nil, err
	}
	s, err := Open(cmd.Context(), cfg, configDir, log)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	s.Viper = v
	// Closers run in reverse, so the log file outlives everything that logs.
	s.closers = append([]func() error{closeLog}, s.closers...)
	return s, nil
}

// Open wires every component described by cfg. The caller must Close the
// stack.
func Open(ctx context.Context, cfg *config.Config, configDir string, log *slog.Logger) (*Stack, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Stack{Config: cfg, Logger: log}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		return nil, err
	}
	userTimeout, err := cfg.Scheduler.UserTimeoutDuration()
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx, cfg.Storage, configDir, log)
	if err != nil {
		return nil, err
	}
	s.Store = store
	s.closers = append(s.closers, store.Close)

	locker, err := s.openLocker(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Locker = locker

	sink, err := s.openSink()
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Tracker = topics.NewTracker(store, log,
		topics.WithWindow(cfg.Topics.Window()),
		topics.WithThreshold(cfg.Topics.WeakThreshold),
		topics.WithLocker(locker),
	)
	s.Composer = pack.NewComposer(store, s.Tracker, log,
		pack.WithPolicy(cfg.Pack.Policy()),
	)

	s.Orchestrator, err = scheduler.New(scheduler.Config{
		Store:                 store,
		Composer:              s.Composer,
		Tracker:               s.Tracker,
		RecalculateOnResponse: cfg.Scheduler.RecalculateOnResponse,
		Sink:                  sink,
		Locker:                locker,
		Location:              loc,
		RunAt:                 cfg.Scheduler.RunAt,
		Concurrency:           cfg.Scheduler.Concurrency,
		UserTimeout:           userTimeout,
		PreviewItems:          cfg.Notify.PreviewItems,
		Logger:                log,
	})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("creating scheduler: %w", err)
	}

	return s, nil
}

// Close stops the scheduler loop and releases everything Open created, in
// reverse order, so queued notifications drain before their publisher and
// the store closes last.
func (s *Stack) Close() error {
	if s.Orchestrator != nil {
		s.Orchestrator.Stop()
	}

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

func openStore(ctx context.Context, c config.StorageConfig, configDir string, log *slog.Logger) (storage.Driver, error) {
	switch c.Driver {
	case config.DriverInMemory:
		log.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case config.DriverPostgres:
		driver, err := postgres.NewDriver(ctx, c.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		log.Info("using PostgreSQL storage")
		return driver, nil

	case config.DriverSQLite, "":
		path, err := SQLitePath(c.SQLitePath, configDir)
		if err != nil {
			return nil, err
		}
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		log.Info("using SQLite storage", "path", path)
		return driver, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", c.Driver)
}

// SQLitePath resolves the database file. An empty path lands in the drills
// dot directory. Parent directories are created as needed.
func SQLitePath(path, configDir string) (string, error) {
	path = strings.TrimSpace(path)
	if path == ":memory:" {
		return path, nil
	}

	if path == "" {
		target, err := dotdir.NewManager().Target(configDir)
		if err != nil {
			return "", fmt.Errorf("resolving drills dir: %w", err)
		}
		if target == "" {
			return "", errors.New("no drills directory found; pass --sqlite")
		}
		path = filepath.Join(target, config.DefaultSQLiteFile)
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return "", fmt.Errorf("sqlite path is a directory: %s", path)
	}

	if parent := filepath.Dir(path); parent != "." && parent != "" {
		if err := os.MkdirAll(parent, 0o755); err != nil {
			return "", fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	return path, nil
}

func (s *Stack) openLocker(ctx context.Context) (userlock.Locker, error) {
	c := s.Config.Locks
	switch c.Provider {
	case config.LocksLocal, "":
		return userlock.NewLocal(), nil

	case config.LocksRedis:
		ttl, err := c.TTLDuration()
		if err != nil {
			return nil, err
		}
		locker, err := redislock.New(ctx, redislock.Config{
			Addr:   c.RedisAddr,
			TTL:    ttl,
			Logger: s.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		s.closers = append(s.closers, locker.Close)
		s.Logger.Info("using redis locks", "addr", c.RedisAddr)
		return locker, nil
	}
	return nil, fmt.Errorf("unknown lock provider %q", c.Provider)
}

func (s *Stack) openSink() (notify.Sink, error) {
	c := s.Config.Notify

	var delivery notify.Sink
	switch c.Provider {
	case config.NotifyNop, "":
		pub := nop.NewPublisher()
		s.closers = append(s.closers, pub.Close)
		delivery = eventstream.NewSink(pub, ServiceName)

	case config.NotifyLog:
		delivery = notify.NewLogSink(s.Logger)

	case config.NotifyKafka:
		pub, err := kafka.NewPublisher(kafka.Config{
			Brokers: c.KafkaBrokers,
			Topic:   c.KafkaTopic,
			Logger:  s.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		s.closers = append(s.closers, pub.Close)
		delivery = eventstream.NewSink(pub, ServiceName)
		s.Logger.Info("publishing pack events to kafka",
			"brokers", strings.Join(c.KafkaBrokers, ","),
			"topic", c.KafkaTopic,
		)

	default:
		return nil, fmt.Errorf("unknown notify provider %q", c.Provider)
	}

	pool, err := worker.NewPool(&worker.Config{
		Sink:       delivery,
		NumWorkers: c.Workers,
		QueueSize:  c.QueueSize,
		Logger:     s.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("creating notification pool: %w", err)
	}
	s.closers = append(s.closers, func() error {
		pool.Close()
		return nil
	})
	return pool, nil
}
