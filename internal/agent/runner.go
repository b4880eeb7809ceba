package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"proctor/internal/capture"
	"proctor/internal/exam"
	"proctor/internal/platform/config"
	"proctor/internal/platform/httpclient"
	"proctor/internal/platform/httpserver"
	"proctor/internal/platform/metrics"
	"proctor/internal/session"
	"proctor/internal/token"
	"proctor/internal/upload"
	"proctor/pkg/platform/sentinel"
)

// errExamFinished signals the supervisor that the attempt was submitted and
// the remaining loops should wind down. It never leaves Run.
var errExamFinished = errors.New("exam finished")

// ConsentFunc presents the proctoring disclosure and reports the student's
// decision. The runner never touches a device before this returns true.
type ConsentFunc func(disclosure []string) bool

// Runner wires the full student-side proctoring flow: consent, stream
// acquisition, the capture/upload loops, the session timer, and teardown with
// exit capture. One Runner serves one attempt.
type Runner struct {
	cfg     config.Agent
	logger  *slog.Logger
	metrics *metrics.Metrics
	api     *httpclient.Client
	exams   *exam.Client
	store   session.StateStore
	gate    *capture.Gate
	consent ConsentFunc

	// MetricsHandler, when set, is mounted at /metrics on the local exam API.
	MetricsHandler http.Handler
}

func New(cfg config.Agent, logger *slog.Logger, m *metrics.Metrics, api *httpclient.Client, store session.StateStore, gate *capture.Gate, consent ConsentFunc) *Runner {
	return &Runner{
		cfg:     cfg,
		logger:  logger,
		metrics: m,
		api:     api,
		exams:   exam.NewClient(api),
		store:   store,
		gate:    gate,
		consent: consent,
	}
}

// Run executes one attempt end to end and returns when the exam is submitted,
// consent is refused, or the context is cancelled. Cancellation mid-exam is
// treated as the student leaving: a final exit capture is sent before the
// streams are released.
func (r *Runner) Run(ctx context.Context) error {
	claims, err := token.Parse(r.cfg.BearerToken)
	if err != nil {
		return err
	}

	olympiad, err := r.exams.Get(ctx, r.cfg.OlympiadID)
	if err != nil {
		return err
	}
	if olympiad.DurationSeconds <= 0 {
		return fmt.Errorf("olympiad %s has no duration", r.cfg.OlympiadID)
	}

	attempt, err := session.Start(ctx, r.store, claims.UserID, r.cfg.OlympiadID, olympiad.DurationSeconds, time.Now())
	if err != nil {
		return err
	}
	r.logger.Info("attempt ready",
		"olympiad", olympiad.Title,
		"remaining", attempt.Remaining(time.Now()).Round(time.Second))

	if !r.consent(capture.Disclosure) {
		r.logger.Info("proctoring consent refused, exam not started")
		return fmt.Errorf("consent refused: %w", sentinel.ErrPermissionDenied)
	}
	if err := attempt.GrantConsent(ctx); err != nil {
		return err
	}

	rec, err := r.gate.Grant(ctx)
	if err != nil {
		return err
	}
	defer rec.Stop()
	for _, kind := range []capture.SourceKind{capture.SourceCamera, capture.SourceScreen} {
		if srcErr := rec.SourceErr(kind); srcErr != nil {
			r.logger.Warn("stream unavailable, continuing degraded", "source", kind, "error", srcErr)
		}
	}

	buf := capture.NewBuffer(r.cfg.BufferCap, r.metrics)
	scheduler := capture.NewScheduler(rec, buf, r.cfg.OlympiadID, config.CaptureInterval, config.CaptureWarmup, r.logger, r.metrics, nil)
	dispatcher := upload.NewDispatcher(r.api, buf, r.cfg.OlympiadID, config.UploadInterval, r.cfg.UploadRetries, r.logger, r.metrics)
	submitter := session.NewSubmitter(r.api, attempt, r.logger)
	timer := session.NewTimer(attempt, submitter, r.logger, r.metrics, nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return dispatcher.Run(gctx) })
	g.Go(func() error {
		if err := timer.Run(gctx); err != nil {
			return err
		}
		return errExamFinished
	})
	if r.cfg.UIAddr != "" {
		r.serveExamAPI(g, gctx, attempt, submitter, rec, olympiad)
	}

	err = g.Wait()

	// Teardown runs on a fresh context: the group context is already dead.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch {
	case errors.Is(err, errExamFinished) || attempt.Submitted():
		dispatcher.Flush(shutdownCtx)
		dispatcher.StopRecording(shutdownCtx)
		rec.Stop()
		r.logger.Info("exam finished, recording stopped")
		return nil
	case errors.Is(err, context.Canceled):
		r.exitCapture(shutdownCtx, rec, buf, dispatcher)
		dispatcher.Flush(shutdownCtx)
		rec.Stop()
		r.logger.Info("agent interrupted mid-exam, state kept for resume")
		return err
	default:
		// A rejected auto-submit lands here: the attempt is not finished, so
		// no stop-recording and no success exit. State stays for a retry.
		dispatcher.Flush(shutdownCtx)
		rec.Stop()
		r.logger.Error("exam ended without successful submission", "error", err)
		return err
	}
}

// serveExamAPI runs the local exam surface for the lifetime of the attempt.
// The front end talks to this, never to the backend directly.
func (r *Runner) serveExamAPI(g *errgroup.Group, gctx context.Context, attempt *session.Attempt, submitter *session.Submitter, rec *capture.Recorder, olympiad *exam.Olympiad) {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	NewAPI(attempt, submitter, rec, olympiad, r.logger).Register(router)
	if r.MetricsHandler != nil {
		router.Handle("/metrics", r.MetricsHandler)
	}

	srv := httpserver.New(r.cfg.UIAddr, router)
	g.Go(func() error {
		r.logger.Info("exam api listening", "addr", r.cfg.UIAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
		return gctx.Err()
	})
}

// exitCapture sends the last known frame of each stream, falling back to a
// fresh snapshot when the buffer was just drained. Best effort only.
func (r *Runner) exitCapture(ctx context.Context, rec *capture.Recorder, buf *capture.Buffer, dispatcher *upload.Dispatcher) {
	images := map[capture.SourceKind][]byte{}
	for _, src := range rec.Sources() {
		if frame, ok := buf.Latest(src.Kind()); ok {
			images[src.Kind()] = frame.Data
			continue
		}
		if !src.Live() {
			continue
		}
		if data, err := src.Snapshot(ctx); err == nil {
			images[src.Kind()] = data
		}
	}
	if len(images) == 0 {
		return
	}
	dispatcher.ExitCapture(ctx, upload.ExitClose, images[capture.SourceCamera], images[capture.SourceScreen])
}
