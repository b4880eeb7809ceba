package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"proctor/internal/capture"
	"proctor/internal/exam"
	"proctor/internal/session"
	"proctor/pkg/platform/sentinel"
)

// API is the agent's local HTTP surface for the exam front end. It is the
// enforcement point of the recording gate: answer mutations are refused while
// no proctoring stream is live, and after submission.
type API struct {
	attempt   *session.Attempt
	submitter *session.Submitter
	rec       *capture.Recorder
	olympiad  *exam.Olympiad
	logger    *slog.Logger
}

func NewAPI(attempt *session.Attempt, submitter *session.Submitter, rec *capture.Recorder, olympiad *exam.Olympiad, logger *slog.Logger) *API {
	return &API{
		attempt:   attempt,
		submitter: submitter,
		rec:       rec,
		olympiad:  olympiad,
		logger:    logger,
	}
}

// Register mounts the exam-taking routes on the given router.
func (a *API) Register(r chi.Router) {
	r.Get("/exam", a.handleExam)
	r.Get("/state", a.handleState)
	r.Put("/answers/{questionID}", a.handleAnswer)
	r.Post("/submit", a.handleSubmit)
}

func (a *API) handleExam(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.olympiad)
}

// handleState reports the attempt phase, remaining time, stream liveness, and
// the current answers. The front end polls this to drive the countdown and
// the recording indicator.
func (a *API) handleState(w http.ResponseWriter, r *http.Request) {
	snapshot := a.attempt.Snapshot()
	status := a.rec.Status()

	var streamErrors []string
	for _, kind := range []capture.SourceKind{capture.SourceCamera, capture.SourceScreen} {
		if err := a.rec.SourceErr(kind); err != nil {
			streamErrors = append(streamErrors, err.Error())
		}
	}

	writeJSON(w, http.StatusOK, struct {
		Phase            session.Phase           `json:"phase"`
		RemainingSeconds int                     `json:"remainingSeconds"`
		Recording        bool                    `json:"recording"`
		Status           capture.RecordingStatus `json:"status"`
		StreamErrors     []string                `json:"streamErrors,omitempty"`
		Answers          map[string]string       `json:"answers"`
	}{
		Phase:            snapshot.CurrentPhase(status),
		RemainingSeconds: int(a.attempt.Remaining(time.Now()).Seconds()),
		Recording:        status.Recording(),
		Status:           status,
		StreamErrors:     streamErrors,
		Answers:          snapshot.Answers,
	})
}

// handleAnswer records one answer. Refused while no stream is live: answering
// with proctoring provably inactive is not allowed. Capture or upload
// failures never trip this check, only stream liveness does.
func (a *API) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if !a.rec.Status().Recording() {
		writeError(w, http.StatusConflict, "recording inactive, answers are locked")
		return
	}

	var body struct {
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid answer payload")
		return
	}

	questionID := chi.URLParam(r, "questionID")
	if err := a.attempt.SetAnswer(r.Context(), questionID, body.Value); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrAlreadySubmitted):
			writeError(w, http.StatusConflict, "attempt already submitted")
		case errors.Is(err, sentinel.ErrExpired):
			writeError(w, http.StatusConflict, "exam time expired")
		default:
			a.logger.Error("answer save failed", "question", questionID, "error", err)
			writeError(w, http.StatusInternalServerError, "answer save failed")
		}
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmit runs the manual submit path. A submit failure is the one
// network error the exam taker must see.
func (a *API) handleSubmit(w http.ResponseWriter, r *http.Request) {
	err := a.submitter.Submit(r.Context(), session.TriggerManual)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]bool{"submitted": true})
	case errors.Is(err, sentinel.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, "attempt already submitted")
	default:
		writeError(w, http.StatusBadGateway, "submission failed, please retry")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
