// Package worker provides an asynchronous worker pool that delivers
// notifications through a wrapped notify.Sink.
//
// The pool decouples delivery from pack generation so that a slow or
// unavailable transport never holds a user's generation open.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/drills/pkg/notify"
)

var (
	defaultNumWorkers      uint = 3
	defaultJobQueueSize    uint = 256
	defaultDeliveryTimeout      = 10 * time.Second
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	UserID  string
	Payload *notify.Payload
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Sink performs the actual delivery.
	Sink notify.Sink

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// DeliveryTimeout bounds each delivery attempt (defaults to 10s).
	DeliveryTimeout time.Duration

	// Logger is the provided slog logger
	Logger *slog.Logger
}

// Pool delivers notifications asynchronously via a worker pool. It
// implements notify.Sink itself.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
}

var _ notify.Sink = (*Pool)(nil)

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Sink == nil {
		return nil, fmt.Errorf("worker pool requires a sink")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.DeliveryTimeout <= 0 {
		c.DeliveryTimeout = defaultDeliveryTimeout
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is
// closed, resulting in the job being dropped.
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed", "user_id", job.UserID)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"user_id", job.UserID,
			"type", job.Payload.Type,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"user_id", job.UserID,
			"type", job.Payload.Type,
		)
		return false
	}
}

// Notify enqueues the payload and reports it as queued. Delivery errors
// surface only in the logs.
func (p *Pool) Notify(_ context.Context, userID string, payload *notify.Payload) (notify.DeliveryResult, error) {
	if payload == nil {
		return notify.DeliveryResult{}, notify.ErrNilPayload
	}
	if !p.Enqueue(Job{UserID: userID, Payload: payload}) {
		return notify.DeliveryResult{}, fmt.Errorf("notification for %s dropped", userID)
	}
	return notify.DeliveryResult{Queued: true, Channel: "async"}, nil
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the scheduler has stopped.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("notification worker stopped", "worker_id", id)
}

// processJob delivers one notification through the wrapped sink.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.DeliveryTimeout)
	defer cancel()

	result, err := p.config.Sink.Notify(ctx, job.UserID, job.Payload)
	if err != nil {
		p.logger.Error("async notification delivery failed",
			"user_id", job.UserID,
			"type", job.Payload.Type,
			"error", err,
		)
		return
	}

	p.logger.Info("notification delivered",
		"user_id", job.UserID,
		"channel", result.Channel,
		"message_id", result.MessageID,
	)
}
