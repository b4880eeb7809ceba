package upload

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor/internal/capture"
	"proctor/internal/platform/httpclient"
	"proctor/internal/platform/metrics"
)

type captureRequest struct {
	path        string
	captureType string
	olympiadID  string
	exitType    string
	image       []byte
}

func newTestServer(t *testing.T, fail *atomic.Bool) (*httptest.Server, *[]captureRequest) {
	t.Helper()
	var requests []captureRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail != nil && fail.Load() {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		req := captureRequest{path: r.URL.Path}
		if err := r.ParseMultipartForm(32 << 20); err == nil {
			req.captureType = r.FormValue("captureType")
			req.olympiadID = r.FormValue("olympiadId")
			req.exitType = r.FormValue("exitType")
			if file, _, err := r.FormFile("image"); err == nil {
				buf := make([]byte, 64)
				n, _ := file.Read(buf)
				req.image = buf[:n]
				file.Close()
			}
		}
		requests = append(requests, req)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func newDispatcher(srv *httptest.Server, buf *capture.Buffer, retries int) *Dispatcher {
	api := httpclient.New(srv.URL, "tok", srv.Client())
	d := NewDispatcher(api, buf, "oly-1", time.Second, retries, slog.New(slog.NewTextHandler(io.Discard, nil)), metrics.NewForTest())
	d.backoff = time.Millisecond
	return d
}

func TestFlushUploadsEachFrame(t *testing.T) {
	srv, requests := newTestServer(t, nil)
	buf := capture.NewBuffer(8, metrics.NewForTest())
	buf.Push(capture.Frame{Source: capture.SourceCamera, Data: []byte("cam"), OlympiadID: "oly-1", CapturedAt: time.Now()})
	buf.Push(capture.Frame{Source: capture.SourceScreen, Data: []byte("scr"), OlympiadID: "oly-1", CapturedAt: time.Now()})

	newDispatcher(srv, buf, 0).Flush(context.Background())

	require.Len(t, *requests, 2)
	first := (*requests)[0]
	assert.Equal(t, "/olympiads/camera-capture", first.path)
	assert.Equal(t, "camera", first.captureType)
	assert.Equal(t, "oly-1", first.olympiadID)
	assert.Equal(t, []byte("cam"), first.image)
	assert.Equal(t, "screen", (*requests)[1].captureType)
	assert.Equal(t, 0, buf.Len())
}

func TestFlushSwallowsFailuresAndContinues(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv, requests := newTestServer(t, &fail)
	buf := capture.NewBuffer(8, metrics.NewForTest())
	buf.Push(capture.Frame{Source: capture.SourceCamera, Data: []byte("a"), OlympiadID: "oly-1", CapturedAt: time.Now()})
	buf.Push(capture.Frame{Source: capture.SourceCamera, Data: []byte("b"), OlympiadID: "oly-1", CapturedAt: time.Now()})

	d := newDispatcher(srv, buf, 1)
	d.Flush(context.Background())

	// 2 frames x (1 try + 1 retry) all failed; nothing raised, buffer clear.
	assert.Len(t, *requests, 4)
	assert.Equal(t, 0, buf.Len())

	// Next cycle proceeds normally once the server recovers.
	fail.Store(false)
	buf.Push(capture.Frame{Source: capture.SourceCamera, Data: []byte("c"), OlympiadID: "oly-1", CapturedAt: time.Now()})
	d.Flush(context.Background())
	assert.Len(t, *requests, 5)
}

func TestUploadRetriesAreBounded(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	srv, requests := newTestServer(t, &fail)
	buf := capture.NewBuffer(8, metrics.NewForTest())
	buf.Push(capture.Frame{Source: capture.SourceScreen, Data: []byte("x"), OlympiadID: "oly-1", CapturedAt: time.Now()})

	newDispatcher(srv, buf, 2).Flush(context.Background())

	assert.Len(t, *requests, 3) // initial attempt + 2 retries, then dropped
}

func TestExitCapture(t *testing.T) {
	srv, requests := newTestServer(t, nil)
	buf := capture.NewBuffer(8, metrics.NewForTest())
	d := newDispatcher(srv, buf, 0)

	d.ExitCapture(context.Background(), ExitClose, []byte("cam"), []byte("scr"))

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "/olympiads/exit-screenshot", req.path)
	assert.Equal(t, "close", req.exitType)
	assert.Equal(t, "oly-1", req.olympiadID)
}

func TestStopRecordingFireAndForget(t *testing.T) {
	srv, requests := newTestServer(t, nil)
	buf := capture.NewBuffer(8, metrics.NewForTest())
	d := newDispatcher(srv, buf, 0)

	d.StopRecording(context.Background())

	require.Len(t, *requests, 1)
	assert.Equal(t, "/olympiads/oly-1/stop-recording", (*requests)[0].path)

	// Failure is logged, never returned.
	var fail atomic.Bool
	fail.Store(true)
	srv2, _ := newTestServer(t, &fail)
	newDispatcher(srv2, buf, 0).StopRecording(context.Background())
}
