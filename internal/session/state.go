package session

import (
	"time"

	"proctor/internal/capture"
)

// AttemptState is the single durable record for one (user, exam) attempt.
// Keeping timer start, flags, and answers in one record avoids the
// partial-write inconsistency of storing them under separate keys.
type AttemptState struct {
	UserID          string            `json:"userId"`
	OlympiadID      string            `json:"olympiadId"`
	StartedAt       time.Time         `json:"startedAt"`
	DurationSeconds int               `json:"durationSeconds"`
	ConsentGranted  bool              `json:"consentGranted"`
	Started         bool              `json:"started"`
	Submitted       bool              `json:"submitted"`
	Answers         map[string]string `json:"answers"`
}

// Remaining computes the time left from the persisted start, floored at
// zero. Remaining is always derived from StartedAt + duration, never from a
// countdown variable, so a restart mid-exam resumes instead of resetting.
func (s *AttemptState) Remaining(now time.Time) time.Duration {
	duration := time.Duration(s.DurationSeconds) * time.Second
	elapsed := now.Sub(s.StartedAt)
	if remaining := duration - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

// Phase is the attempt lifecycle state. recording-active and
// recording-degraded are derived from stream liveness, everything else from
// the durable flags.
type Phase string

const (
	PhaseNotStarted        Phase = "not-started"
	PhaseConsentPending    Phase = "consent-pending"
	PhaseRecordingActive   Phase = "recording-active"
	PhaseRecordingDegraded Phase = "recording-degraded"
	PhaseSubmitted         Phase = "submitted"
)

// CurrentPhase derives the lifecycle phase from the durable flags and the
// live recording status. Submitted is terminal.
func (s *AttemptState) CurrentPhase(status capture.RecordingStatus) Phase {
	switch {
	case s.Submitted:
		return PhaseSubmitted
	case !s.Started:
		return PhaseNotStarted
	case !s.ConsentGranted:
		return PhaseConsentPending
	case status.CameraLive && status.ScreenLive:
		return PhaseRecordingActive
	default:
		return PhaseRecordingDegraded
	}
}
