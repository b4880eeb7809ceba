package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"proctor/pkg/platform/sentinel"
)

// Disclosure is shown to the student before any device is touched. Consent is
// all-or-nothing on the disclosure; acquisition of the individual streams can
// still fail independently afterwards.
var Disclosure = []string{
	"Front camera will be recorded",
	"Screen activity will be captured",
	"Periodic screenshots will be taken",
	"All data is securely stored",
}

// Gate is the consent gate: nothing is captured until Grant is called, and
// Grant is the only way to obtain a Recorder.
type Gate struct {
	logger *slog.Logger
	camera Source
	screen Source
}

func NewGate(logger *slog.Logger, camera, screen Source) *Gate {
	return &Gate{logger: logger, camera: camera, screen: screen}
}

// Grant acquires the camera and screen streams. The two requests fail
// independently: a denied camera does not block the screen and vice versa.
// Grant errors only when neither stream could be acquired; otherwise the
// per-source error is retained on the Recorder for the UI to surface.
func (g *Gate) Grant(ctx context.Context) (*Recorder, error) {
	rec := &Recorder{logger: g.logger}

	if err := g.camera.Start(ctx); err != nil {
		g.logger.Warn("camera access denied", "error", err)
		rec.cameraErr = fmt.Errorf("camera: %w", err)
	} else {
		rec.camera = g.camera
	}

	if err := g.screen.Start(ctx); err != nil {
		g.logger.Warn("screen capture denied", "error", err)
		rec.screenErr = fmt.Errorf("screen: %w", err)
	} else {
		rec.screen = g.screen
	}

	if rec.camera == nil && rec.screen == nil {
		return nil, fmt.Errorf("no proctoring stream acquired: %w", sentinel.ErrPermissionDenied)
	}
	return rec, nil
}

// Recorder owns the acquired media streams. It is the single writer of
// RecordingStatus; the exam loop and scheduler only read from it. Stop tears
// every stream down and is safe to call more than once.
type Recorder struct {
	logger    *slog.Logger
	camera    Source // nil when permission was denied
	screen    Source
	cameraErr error
	screenErr error

	stopOnce sync.Once
}

// Status derives liveness from the underlying streams. A stream that was
// never acquired, or that ended outside our control, reads as not live.
func (r *Recorder) Status() RecordingStatus {
	return RecordingStatus{
		CameraLive: r.camera != nil && r.camera.Live(),
		ScreenLive: r.screen != nil && r.screen.Live(),
	}
}

// SourceErr returns the scoped acquisition error for a stream, or the stream
// ending error if it died after acquisition. Nil means the stream is healthy.
func (r *Recorder) SourceErr(kind SourceKind) error {
	switch kind {
	case SourceCamera:
		if r.cameraErr != nil {
			return r.cameraErr
		}
		if r.camera != nil && !r.camera.Live() {
			return fmt.Errorf("camera: %w", sentinel.ErrStreamEnded)
		}
	case SourceScreen:
		if r.screenErr != nil {
			return r.screenErr
		}
		if r.screen != nil && !r.screen.Live() {
			return fmt.Errorf("screen: %w", sentinel.ErrStreamEnded)
		}
	}
	return nil
}

// Sources returns the streams that were acquired, live or not. The scheduler
// re-checks Live() each cycle so a dead stream is skipped, not removed.
func (r *Recorder) Sources() []Source {
	var out []Source
	if r.camera != nil {
		out = append(out, r.camera)
	}
	if r.screen != nil {
		out = append(out, r.screen)
	}
	return out
}

// Stop tears down every acquired stream. Resource release is a hard
// requirement on unmount/submit, not an optimization.
func (r *Recorder) Stop() {
	r.stopOnce.Do(func() {
		for _, src := range r.Sources() {
			if err := src.Stop(); err != nil {
				r.logger.Warn("stream stop failed", "source", src.Kind(), "error", err)
			}
		}
	})
}
