// Package servecmder provides the serve command, which runs the HTTP API,
// the MCP tools and the nightly batch in one process.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/drills/api"
	"github.com/papercomputeco/drills/api/mcp"
	"github.com/papercomputeco/drills/cmd/drills/stack"
	"github.com/papercomputeco/drills/pkg/config"
)

type serveCommander struct {
	listen      string
	storage     string
	sqlitePath  string
	postgresDSN string
	timezone    string
	runAt       string
	concurrency string
	notify      string
	brokers     string
	topic       string
	locks       string
	redisAddr   string
	workers     uint

	noSchedule bool
}

const serveLongDesc string = `Run the drills server.

Starts the HTTP API (with MCP tools mounted at /mcp) and the nightly
batch that generates every learner's daily pack at scheduler.run_at.
Pack policy changes in config.toml apply without a restart.

Examples:
  drills serve
  drills serve --listen :9000 --timezone Europe/Berlin --run-at 05:30
  drills serve --notify kafka --kafka-brokers localhost:9092
  drills serve --locks redis --redis-addr localhost:6379`

const serveShortDesc string = "Run the drills API and nightly batch"

var serveFlags = []string{
	config.FlagAPIListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagTimezone,
	config.FlagRunAt,
	config.FlagConcurrency,
	config.FlagNotify,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
	config.FlagLocks,
	config.FlagRedisAddr,
	config.FlagWorkers,
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmder.run(cmd)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagTimezone, &cmder.timezone)
	config.AddStringFlag(cmd, config.Flags, config.FlagRunAt, &cmder.runAt)
	config.AddStringFlag(cmd, config.Flags, config.FlagConcurrency, &cmder.concurrency)
	config.AddStringFlag(cmd, config.Flags, config.FlagNotify, &cmder.notify)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.topic)
	config.AddStringFlag(cmd, config.Flags, config.FlagLocks, &cmder.locks)
	config.AddStringFlag(cmd, config.Flags, config.FlagRedisAddr, &cmder.redisAddr)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	cmd.Flags().BoolVar(&cmder.noSchedule, "no-schedule", false, "Serve the API without running the nightly batch")

	return cmd
}

func (c *serveCommander) run(cmd *cobra.Command) error {
	s, err := stack.Load(cmd, serveFlags)
	if err != nil {
		return err
	}
	defer s.Close()

	log := s.Logger
	policy := s.Config.Pack.Policy()

	mcpServer, err := mcp.NewServer(mcp.Config{
		Composer:        s.Composer,
		Topics:          s.Tracker,
		Generator:       s.Orchestrator,
		WeakTopicLimit:  policy.WeakTopicLimit,
		WeakMinAttempts: policy.WeakMinAttempts,
		Logger:          log,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer, err := api.NewServer(api.Config{
		ListenAddr:      s.Config.API.Listen,
		Composer:        s.Composer,
		Topics:          s.Tracker,
		Sessions:        s.Store,
		WeakTopicLimit:  policy.WeakTopicLimit,
		WeakMinAttempts: policy.WeakMinAttempts,
		MCPHandler:      mcpServer.Handler(),
	}, s.Orchestrator, log)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if !c.noSchedule {
		if err := s.Orchestrator.Start(ctx); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		log.Info("nightly batch enabled",
			"run_at", s.Config.Scheduler.RunAt,
			"timezone", s.Config.Scheduler.Timezone,
		)
	}

	config.Watch(s.Viper, log, func(cfg *config.Config) {
		if err := s.Composer.SetPolicy(cfg.Pack.Policy()); err != nil {
			log.Warn("ignoring invalid pack policy", "error", err)
			return
		}
		log.Info("pack policy updated")
	})

	log.Info("starting API server", "listen", s.Config.API.Listen)

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		log.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()
	if err := apiServer.Shutdown(); err != nil {
		log.Warn("API server shutdown failed", "error", err)
	}
	return nil
}
