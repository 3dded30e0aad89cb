package scheduler

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/papercomputeco/drills/pkg/study"
)

// BatchStatus is the lifecycle state of a batch run.
type BatchStatus string

const (
	BatchRunning   BatchStatus = "running"
	BatchCompleted BatchStatus = "completed"
	BatchFailed    BatchStatus = "failed"
)

// UserOutcome is one user's result within a batch.
type UserOutcome struct {
	UserID    string `json:"userId"`
	Status    Status `json:"status"`
	SessionID string `json:"sessionId,omitempty"`
	Items     int    `json:"items"`
	Error     string `json:"error,omitempty"`
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	RunID      string        `json:"runId"`
	Force      bool          `json:"force"`
	Status     BatchStatus   `json:"status"`
	StartedAt  time.Time     `json:"startedAt"`
	FinishedAt *time.Time    `json:"finishedAt,omitempty"`
	Total      int           `json:"total"`
	Processed  int           `json:"processed"`
	Outcomes   []UserOutcome `json:"outcomes"`
	Error      string        `json:"error,omitempty"`

	failures []study.UserFailure
	err      error
}

// Count returns how many users ended with status s.
func (r *BatchReport) Count(s Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Err returns the error that stopped the run, a *study.PartialBatchFailure
// when some users failed, or nil.
func (r *BatchReport) Err() error {
	if r.err != nil {
		return r.err
	}
	if len(r.failures) > 0 {
		return &study.PartialBatchFailure{RunID: r.RunID, Failures: slices.Clone(r.failures)}
	}
	return nil
}

// BatchRun is a handle on an in-flight or finished batch.
type BatchRun struct {
	done chan struct{}

	processed atomic.Int64

	mu     sync.Mutex
	report BatchReport
}

func newBatchRun(force bool, startedAt time.Time) *BatchRun {
	return &BatchRun{
		done: make(chan struct{}),
		report: BatchReport{
			RunID:     uuid.NewString(),
			Force:     force,
			Status:    BatchRunning,
			StartedAt: startedAt,
		},
	}
}

// ID returns the run id.
func (b *BatchRun) ID() string {
	return b.report.RunID
}

// Done is closed when the run finishes.
func (b *BatchRun) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until the run finishes or ctx is done.
func (b *BatchRun) Wait(ctx context.Context) (BatchReport, error) {
	select {
	case <-b.done:
		return b.Report(), nil
	case <-ctx.Done():
		return BatchReport{}, ctx.Err()
	}
}

// Status returns the current lifecycle state.
func (b *BatchRun) Status() BatchStatus {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.report.Status
}

// Report returns a snapshot of the run's report.
func (b *BatchRun) Report() BatchReport {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.report
	r.Processed = int(b.processed.Load())
	r.Outcomes = slices.Clone(b.report.Outcomes)
	r.failures = slices.Clone(b.report.failures)
	return r
}

func (b *BatchRun) setTotal(n int) {
	b.mu.Lock()
	b.report.Total = n
	b.mu.Unlock()
}

func (b *BatchRun) record(o UserOutcome, cause error) {
	b.mu.Lock()
	b.report.Outcomes = append(b.report.Outcomes, o)
	if o.Status == StatusFailed {
		b.report.failures = append(b.report.failures, study.UserFailure{UserID: o.UserID, Err: cause})
	}
	b.mu.Unlock()
	b.processed.Add(1)
}

func (b *BatchRun) finish(at time.Time, err error) {
	b.mu.Lock()
	slices.SortFunc(b.report.Outcomes, func(x, y UserOutcome) int {
		return strings.Compare(x.UserID, y.UserID)
	})
	slices.SortFunc(b.report.failures, func(x, y study.UserFailure) int {
		return strings.Compare(x.UserID, y.UserID)
	})
	b.report.FinishedAt = &at
	b.report.Status = BatchCompleted
	if err != nil {
		b.report.Status = BatchFailed
		b.report.err = err
		b.report.Error = err.Error()
	}
	b.mu.Unlock()
	close(b.done)
}

// StartBatch runs daily generation for every user in the background and
// returns immediately. The run outlives the caller's context; Stop waits
// for it.
func (o *Orchestrator) StartBatch(ctx context.Context, force bool) *BatchRun {
	run := newBatchRun(force, o.now().UTC())
	o.register(run)

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		o.runBatch(context.WithoutCancel(ctx), run)
	}()
	return run
}

// RunBatch runs daily generation for every user and waits for the result.
// Cancelling ctx skips the users not yet finished.
func (o *Orchestrator) RunBatch(ctx context.Context, force bool) BatchReport {
	run := newBatchRun(force, o.now().UTC())
	o.register(run)

	o.inflight.Add(1)
	defer o.inflight.Done()
	o.runBatch(ctx, run)
	return run.Report()
}

func (o *Orchestrator) runBatch(ctx context.Context, run *BatchRun) {
	force := run.report.Force
	logger := o.logger.With("run_id", run.ID())

	users, err := o.store.ListUserIDs(ctx)
	if err != nil {
		logger.Error("batch could not list users", "error", err)
		run.finish(o.now().UTC(), err)
		return
	}
	run.setTotal(len(users))
	logger.Info("batch started", "users", len(users), "force", force)

	var g errgroup.Group
	g.SetLimit(o.config.Concurrency)
	for _, userID := range users {
		g.Go(func() error {
			outcome, cause := o.generateForBatch(ctx, userID, force)
			if cause != nil {
				logger.Warn("batch user did not complete",
					"user_id", userID,
					"status", outcome.Status,
					"error", cause,
				)
			}
			run.record(outcome, cause)
			// One user's failure never cancels the others.
			return nil
		})
	}
	_ = g.Wait()

	run.finish(o.now().UTC(), nil)
	report := run.Report()
	logger.Info("batch finished",
		"users", report.Total,
		"generated", report.Count(StatusGenerated),
		"already_generated", report.Count(StatusAlreadyGenerated),
		"empty", report.Count(StatusEmpty),
		"skipped", report.Count(StatusSkipped),
		"failed", report.Count(StatusFailed),
	)
}

func (o *Orchestrator) generateForBatch(ctx context.Context, userID string, force bool) (UserOutcome, error) {
	outcome := UserOutcome{UserID: userID}

	if err := ctx.Err(); err != nil {
		outcome.Status = StatusSkipped
		outcome.Error = err.Error()
		return outcome, err
	}

	userCtx, cancel := context.WithTimeout(ctx, o.config.UserTimeout)
	defer cancel()

	// Refresh trailing accuracy first so weak topics reflect every response
	// up to now, including ones recorded without a recalculation.
	if o.config.Tracker != nil {
		if _, err := o.config.Tracker.Recalculate(userCtx, userID, nil); err != nil {
			o.logger.Warn("failed to recalculate topic accuracy before generating",
				"user_id", userID,
				"error", err,
			)
		}
	}

	result, err := o.GenerateDaily(userCtx, userID, force)
	if err != nil {
		outcome.Error = err.Error()
		outcome.Status = StatusFailed
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			if userCtx.Err() != nil {
				outcome.Status = StatusSkipped
			}
		}
		return outcome, err
	}

	outcome.Status = result.Status
	if result.Session != nil {
		outcome.SessionID = result.Session.SessionID
		outcome.Items = result.Session.ItemsTotal
	}
	return outcome, nil
}

func (o *Orchestrator) register(run *BatchRun) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()

	o.runs[run.ID()] = run
	o.runOrder = append(o.runOrder, run.ID())
	for len(o.runOrder) > maxBatchHistory {
		oldest := o.runs[o.runOrder[0]]
		select {
		case <-oldest.Done():
		default:
			// Never forget a run that is still going.
			return
		}
		delete(o.runs, o.runOrder[0])
		o.runOrder = o.runOrder[1:]
	}
}

// Batch looks up a run by id.
func (o *Orchestrator) Batch(runID string) (*BatchRun, bool) {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	run, ok := o.runs[runID]
	return run, ok
}

// Batches returns the remembered runs, newest first.
func (o *Orchestrator) Batches() []*BatchRun {
	o.runsMu.Lock()
	defer o.runsMu.Unlock()
	out := make([]*BatchRun, 0, len(o.runOrder))
	for i := len(o.runOrder) - 1; i >= 0; i-- {
		out = append(out, o.runs[o.runOrder[i]])
	}
	return out
}
