package capture

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"proctor/internal/platform/metrics"
)

// Scheduler drives the fixed-period capture loop. Each tick snapshots every
// live stream to a still image and hands the frames to the buffer. Cycles are
// single-flight: a tick that arrives while the previous cycle is unresolved
// is skipped, never overlapped.
type Scheduler struct {
	rec        *Recorder
	buf        *Buffer
	olympiadID string
	interval   time.Duration
	warmup     time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
	now        func() time.Time

	inFlight atomic.Bool
}

// NewScheduler builds a scheduler over an acquired recorder. now is
// injectable for tests; pass nil for time.Now.
func NewScheduler(rec *Recorder, buf *Buffer, olympiadID string, interval, warmup time.Duration, logger *slog.Logger, m *metrics.Metrics, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		rec:        rec,
		buf:        buf,
		olympiadID: olympiadID,
		interval:   interval,
		warmup:     warmup,
		logger:     logger,
		metrics:    m,
		now:        now,
	}
}

// Run ticks until ctx is cancelled. An extra capture fires once after the
// warm-up delay so we do not snapshot before the pipelines produced a frame.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	warmup := time.NewTimer(s.warmup)
	defer warmup.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-warmup.C:
			s.tick(ctx)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.metrics.CaptureSkipped.Inc()
		s.logger.Debug("capture tick skipped, previous cycle in flight")
		return
	}
	go func() {
		defer s.inFlight.Store(false)
		s.cycle(ctx)
	}()
}

// cycle snapshots each live stream. An encoding failure on one stream is
// logged and skipped; it never aborts the cycle for the other stream and
// never gates exam input.
func (s *Scheduler) cycle(ctx context.Context) {
	for _, src := range s.rec.Sources() {
		if !src.Live() {
			continue
		}
		data, err := src.Snapshot(ctx)
		if err != nil {
			s.logger.Debug("snapshot failed, skipping cycle", "source", src.Kind(), "error", err)
			continue
		}
		s.buf.Push(Frame{
			Source:     src.Kind(),
			Data:       data,
			CapturedAt: s.now(),
			OlympiadID: s.olympiadID,
			TraceID:    uuid.NewString(),
		})
		s.metrics.FramesCaptured.WithLabelValues(string(src.Kind())).Inc()
	}
}
