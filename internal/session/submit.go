package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync/atomic"

	"proctor/internal/platform/httpclient"
	"proctor/pkg/platform/sentinel"
)

// SubmitTrigger records what fired the submission, for logging only: the
// manual and timer paths are the same code path by design.
type SubmitTrigger string

const (
	TriggerManual      SubmitTrigger = "manual"
	TriggerTimerExpiry SubmitTrigger = "timer-expiry"
)

// Submitter owns the one-shot submission of an attempt. The in-flight guard
// makes a timer-expiry submit and a manual click in the same tick collapse to
// exactly one request. Unlike capture uploads, a submit failure IS surfaced:
// the student must know their answers did not land, and may retry.
type Submitter struct {
	api     *httpclient.Client
	attempt *Attempt
	logger  *slog.Logger

	inFlight atomic.Bool
}

func NewSubmitter(api *httpclient.Client, attempt *Attempt, logger *slog.Logger) *Submitter {
	return &Submitter{api: api, attempt: attempt, logger: logger}
}

// Submit sends the autosaved answer map verbatim and, on success, marks the
// attempt terminal and clears its durable state. Returns
// ErrAlreadySubmitted for any call after a successful submission; a failed
// submission releases the guard so the student can retry.
func (s *Submitter) Submit(ctx context.Context, trigger SubmitTrigger) error {
	if s.attempt.Submitted() {
		return fmt.Errorf("submit: %w", sentinel.ErrAlreadySubmitted)
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return fmt.Errorf("submit: %w", sentinel.ErrAlreadySubmitted)
	}

	snapshot := s.attempt.Snapshot()
	payload := struct {
		Answers map[string]string `json:"answers"`
	}{Answers: snapshot.Answers}

	path := "/olympiads/" + url.PathEscape(snapshot.OlympiadID) + "/submit"
	if err := s.api.PostJSON(ctx, path, payload); err != nil {
		s.inFlight.Store(false)
		s.logger.Error("submission failed", "trigger", trigger, "error", err)
		return fmt.Errorf("submit answers: %w", err)
	}

	if err := s.attempt.markSubmitted(ctx); err != nil {
		// The server accepted the answers; a cleanup failure must not read
		// as a failed submission.
		s.logger.Warn("attempt state cleanup failed after submit", "error", err)
	}
	s.logger.Info("answers submitted", "trigger", trigger, "olympiad", snapshot.OlympiadID, "answered", len(snapshot.Answers))
	return nil
}
