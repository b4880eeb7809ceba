package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"proctor/pkg/platform/sentinel"
)

// Attempt is the in-memory handle for one exam attempt. Every mutation is
// written through to the StateStore immediately, so the durable record always
// equals the in-memory record (autosave is write-through, not write-behind).
type Attempt struct {
	mu    sync.Mutex
	state *AttemptState
	store StateStore
}

// Start loads or creates the attempt for (user, exam). A persisted start
// timestamp is never recreated: a second start for the same exam resumes the
// running countdown and restores saved answers. durationSeconds comes from
// the exam definition and is refreshed on resume.
func Start(ctx context.Context, store StateStore, userID, olympiadID string, durationSeconds int, now time.Time) (*Attempt, error) {
	state, err := store.Load(ctx, userID, olympiadID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		state = &AttemptState{
			UserID:          userID,
			OlympiadID:      olympiadID,
			StartedAt:       now,
			DurationSeconds: durationSeconds,
			Started:         true,
			Answers:         make(map[string]string),
		}
	case err != nil:
		return nil, err
	case state.Submitted:
		return nil, fmt.Errorf("attempt for olympiad %s: %w", olympiadID, sentinel.ErrAlreadySubmitted)
	default:
		state.DurationSeconds = durationSeconds
		state.Started = true
		if state.Answers == nil {
			state.Answers = make(map[string]string)
		}
	}

	attempt := &Attempt{state: state, store: store}
	if err := store.Save(ctx, state); err != nil {
		return nil, err
	}
	return attempt, nil
}

// GrantConsent records that the student accepted the proctoring disclosure.
func (a *Attempt) GrantConsent(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.ConsentGranted = true
	return a.store.Save(ctx, a.state)
}

// SetAnswer records one answer mutation and persists it immediately. After
// submission the attempt is terminal and mutations are refused; once the exam
// window has elapsed, mutations are refused too (only the submit of what was
// already saved remains).
func (a *Attempt) SetAnswer(ctx context.Context, questionID, value string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.state.Submitted {
		return fmt.Errorf("attempt: %w", sentinel.ErrAlreadySubmitted)
	}
	if a.state.Remaining(time.Now()) <= 0 {
		return fmt.Errorf("attempt: %w", sentinel.ErrExpired)
	}
	a.state.Answers[questionID] = value
	return a.store.Save(ctx, a.state)
}

// Answers returns a copy of the current answer map.
func (a *Attempt) Answers() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyAnswers(a.state.Answers)
}

// Remaining computes time left from the persisted start timestamp.
func (a *Attempt) Remaining(now time.Time) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Remaining(now)
}

// Submitted reports whether the attempt is terminal.
func (a *Attempt) Submitted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.Submitted
}

// Snapshot returns a copy of the durable state for logging and dashboards.
func (a *Attempt) Snapshot() AttemptState {
	a.mu.Lock()
	defer a.mu.Unlock()
	clone := *a.state
	clone.Answers = copyAnswers(a.state.Answers)
	return clone
}

// markSubmitted flips the terminal flag and clears the durable record: no
// stale resume data may remain after a completed attempt.
func (a *Attempt) markSubmitted(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state.Submitted = true
	return a.store.Delete(ctx, a.state.UserID, a.state.OlympiadID)
}
