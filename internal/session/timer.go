package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"proctor/internal/platform/metrics"
	"proctor/pkg/platform/sentinel"
)

// Timer ticks once per second, independent of network activity, and fires the
// shared submit path exactly once when the attempt's remaining time reaches
// zero. Remaining time is recomputed from the persisted start each tick, so a
// process restart mid-exam resumes the countdown where it was.
type Timer struct {
	submit    *Submitter
	remaining func(time.Time) time.Duration
	submitted func() bool
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
	metrics   *metrics.Metrics

	// OnTick, when set, receives the remaining duration each tick (UI hook).
	OnTick func(time.Duration)
}

// NewTimer builds the session timer over an attempt and its submitter. now is
// injectable for tests; pass nil for time.Now.
func NewTimer(attempt *Attempt, submitter *Submitter, logger *slog.Logger, m *metrics.Metrics, now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{
		submit:    submitter,
		remaining: attempt.Remaining,
		submitted: attempt.Submitted,
		interval:  time.Second,
		now:       now,
		logger:    logger,
		metrics:   m,
	}
}

// Run ticks until expiry or cancellation. On expiry it invokes the same
// submit path as a manual submission; the submitter's guard keeps the two
// from double-firing. A rejected auto-submit is returned, not swallowed:
// the attempt is not finished until the answers landed.
func (t *Timer) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			// A manual submit ends the countdown early.
			if t.submitted() {
				return nil
			}
			remaining := t.remaining(t.now())
			if t.OnTick != nil {
				t.OnTick(remaining)
			}
			if remaining > 0 {
				continue
			}
			t.metrics.TimerExpirySubs.Inc()
			t.logger.Info("exam time expired, auto-submitting")
			err := t.submit.Submit(ctx, TriggerTimerExpiry)
			if err != nil && !errors.Is(err, sentinel.ErrAlreadySubmitted) {
				return fmt.Errorf("auto-submit: %w", err)
			}
			return nil
		}
	}
}
