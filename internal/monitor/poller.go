package monitor

import (
	"context"
	"log/slog"
	"time"

	"proctor/internal/exam"
	"proctor/internal/platform/metrics"
)

// Poller refreshes the authoritative active-student roster on a fixed
// interval. The relay keeps tiles fresh between polls; the poll catches
// joins and departures whose events the relay never delivered.
type Poller struct {
	exams      *exam.Client
	roster     *Roster
	olympiadID string
	interval   time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewPoller(exams *exam.Client, roster *Roster, olympiadID string, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Poller {
	return &Poller{
		exams:      exams,
		roster:     roster,
		olympiadID: olympiadID,
		interval:   interval,
		logger:     logger,
		metrics:    m,
	}
}

// Run polls immediately, then on every tick until cancellation. A failed poll
// leaves the previous roster in place.
func (p *Poller) Run(ctx context.Context) error {
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	p.metrics.RosterPolls.Inc()
	students, err := p.exams.ActiveStudents(ctx, p.olympiadID)
	if err != nil {
		p.logger.Warn("roster poll failed", "error", err)
		return
	}
	p.roster.MergePoll(students)
	p.logger.Debug("roster refreshed", "active", len(students))
}
