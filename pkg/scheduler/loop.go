package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ParseRunAt parses an "HH:MM" time of day.
func ParseRunAt(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid run time %q, expected HH:MM: %w", s, err)
	}
	return t.Hour(), t.Minute(), nil
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Start launches the nightly loop, which starts a batch at RunAt every day
// until ctx is done or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	if o.config.RunAt == "" {
		return errors.New("scheduler has no run time configured")
	}
	hour, minute, err := ParseRunAt(o.config.RunAt)
	if err != nil {
		return err
	}

	o.loopMu.Lock()
	defer o.loopMu.Unlock()
	if o.loopStop != nil {
		return errors.New("scheduler already started")
	}
	o.loopStop = make(chan struct{})
	o.loopDone = make(chan struct{})

	go o.loop(ctx, hour, minute, o.loopStop, o.loopDone)
	return nil
}

func (o *Orchestrator) loop(ctx context.Context, hour, minute int, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	for {
		now := o.now()
		next := NextRun(now, hour, minute, o.config.Location)
		o.logger.Info("next batch scheduled", "at", next.Format(time.RFC3339))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			o.StartBatch(ctx, false)
		}
	}
}

// Stop ends the nightly loop and waits for in-flight batches.
func (o *Orchestrator) Stop() {
	o.loopMu.Lock()
	stop, done := o.loopStop, o.loopDone
	o.loopStop, o.loopDone = nil, nil
	o.loopMu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	o.inflight.Wait()
}
