package upload

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/url"
	"time"

	"proctor/internal/capture"
	"proctor/internal/platform/httpclient"
	"proctor/internal/platform/metrics"
)

// ExitType discriminates the last-chance exit capture.
type ExitType string

const (
	ExitTabSwitch ExitType = "tab_switch"
	ExitClose     ExitType = "close"
	ExitNavigate  ExitType = "navigate"
)

// Dispatcher drains the local frame buffer on its own cadence, independent of
// capture frequency, and ships each frame as a multipart upload. Delivery is
// best-effort and at-most-once: a frame that still fails after the bounded
// retries is dropped, logged, and never surfaced to the exam taker.
type Dispatcher struct {
	api        *httpclient.Client
	buf        *capture.Buffer
	olympiadID string
	interval   time.Duration
	retries    int
	backoff    time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewDispatcher(api *httpclient.Client, buf *capture.Buffer, olympiadID string, interval time.Duration, retries int, logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		api:        api,
		buf:        buf,
		olympiadID: olympiadID,
		interval:   interval,
		retries:    retries,
		backoff:    500 * time.Millisecond,
		logger:     logger,
		metrics:    m,
	}
}

// Run flushes the buffer until ctx is cancelled. A hung upload delays only
// that one send; the next flush proceeds regardless.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.Flush(ctx)
		}
	}
}

// Flush drains and uploads all buffered frames. Upload errors are logged and
// swallowed so exam continuity is never disturbed by the network.
func (d *Dispatcher) Flush(ctx context.Context) {
	for _, frame := range d.buf.Drain() {
		if ctx.Err() != nil {
			return
		}
		d.metrics.UploadsTotal.WithLabelValues(string(frame.Source)).Inc()
		if err := d.uploadFrame(ctx, frame); err != nil {
			d.metrics.UploadFailures.Inc()
			d.logger.Warn("frame upload dropped", "source", frame.Source, "trace_id", frame.TraceID, "error", err)
		}
	}
}

// uploadFrame sends one frame, retrying a bounded number of times. The acting
// user is resolved server-side from the bearer token; it is never a form
// field.
func (d *Dispatcher) uploadFrame(ctx context.Context, frame capture.Frame) error {
	var lastErr error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff):
			}
		}
		start := time.Now()
		lastErr = d.postFrame(ctx, frame)
		d.metrics.UploadDuration.Observe(time.Since(start).Seconds())
		if lastErr == nil {
			return nil
		}
	}
	return lastErr
}

func (d *Dispatcher) postFrame(ctx context.Context, frame capture.Frame) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	filename := fmt.Sprintf("%s-%d.jpg", frame.Source, frame.CapturedAt.UnixMilli())
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return err
	}
	if _, err := part.Write(frame.Data); err != nil {
		return err
	}
	if err := writer.WriteField("captureType", string(frame.Source)); err != nil {
		return err
	}
	if err := writer.WriteField("olympiadId", frame.OlympiadID); err != nil {
		return err
	}
	if err := writer.Close(); err != nil {
		return err
	}

	return d.api.PostMultipart(ctx, "/olympiads/camera-capture", writer.FormDataContentType(), body)
}

// ExitCapture is the single best-effort send fired when the student leaves
// (interrupt, navigation, window close). It is not part of the periodic
// cadence and is never retried.
func (d *Dispatcher) ExitCapture(ctx context.Context, exitType ExitType, cameraImage, screenImage []byte) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	_ = writer.WriteField("olympiadId", d.olympiadID)
	_ = writer.WriteField("exitType", string(exitType))
	if cameraImage != nil {
		part, err := writer.CreateFormFile("cameraImage", "camera-exit.jpg")
		if err == nil {
			part.Write(cameraImage)
		}
	}
	if screenImage != nil {
		part, err := writer.CreateFormFile("screenImage", "screen-exit.jpg")
		if err == nil {
			part.Write(screenImage)
		}
	}
	if err := writer.Close(); err != nil {
		d.logger.Warn("exit capture not sent", "error", err)
		return
	}

	if err := d.api.PostMultipart(ctx, "/olympiads/exit-screenshot", writer.FormDataContentType(), body); err != nil {
		d.logger.Warn("exit capture not sent", "exit_type", exitType, "error", err)
	}
}

// StopRecording notifies the backend to finalize the accumulated frames into
// a video. Fire-and-forget: the client does not wait on transcoding.
func (d *Dispatcher) StopRecording(ctx context.Context) {
	path := "/olympiads/" + url.PathEscape(d.olympiadID) + "/stop-recording"
	if err := d.api.PostJSON(ctx, path, nil); err != nil {
		d.logger.Warn("stop-recording notification failed", "error", err)
	}
}
