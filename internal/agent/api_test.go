package agent

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor/internal/capture"
	"proctor/internal/exam"
	"proctor/internal/platform/httpclient"
	"proctor/internal/session"
)

type apiFixture struct {
	router  chi.Router
	attempt *session.Attempt
	camera  *fakeSource
	screen  *fakeSource
	rec     *capture.Recorder
}

func newAPIFixture(t *testing.T, backend *httptest.Server) *apiFixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	camera := newFakeSource(capture.SourceCamera)
	screen := newFakeSource(capture.SourceScreen)
	rec, err := capture.NewGate(logger, camera, screen).Grant(context.Background())
	require.NoError(t, err)

	attempt, err := session.Start(context.Background(), session.NewInMemoryStateStore(), "user-1", "oly-1", 3600, time.Now())
	require.NoError(t, err)

	api := httpclient.New(backend.URL, "token", backend.Client())
	submitter := session.NewSubmitter(api, attempt, logger)

	router := chi.NewRouter()
	NewAPI(attempt, submitter, rec, &exam.Olympiad{ID: "oly-1", Title: "Final"}, logger).Register(router)
	return &apiFixture{router: router, attempt: attempt, camera: camera, screen: screen, rec: rec}
}

func (f *apiFixture) do(method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestAPIAnswerWhileRecording(t *testing.T) {
	calls := &backendCalls{}
	backend := newBackend(t, calls)
	defer backend.Close()
	f := newAPIFixture(t, backend)

	resp := f.do(http.MethodPut, "/answers/q1", `{"value":"B"}`)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	assert.Equal(t, map[string]string{"q1": "B"}, f.attempt.Answers())
}

func TestAPIAnswerLockedWhenNoStreamLive(t *testing.T) {
	calls := &backendCalls{}
	backend := newBackend(t, calls)
	defer backend.Close()
	f := newAPIFixture(t, backend)

	// Both streams gone: the recording gate locks answer input.
	f.camera.live.Store(false)
	f.screen.live.Store(false)

	resp := f.do(http.MethodPut, "/answers/q1", `{"value":"B"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)
	assert.Empty(t, f.attempt.Answers())
}

func TestAPIAnswerAllowedWithOneStreamLive(t *testing.T) {
	calls := &backendCalls{}
	backend := newBackend(t, calls)
	defer backend.Close()
	f := newAPIFixture(t, backend)

	// Screen share revoked, camera still live: gate stays open.
	f.screen.live.Store(false)

	resp := f.do(http.MethodPut, "/answers/q1", `{"value":"B"}`)
	assert.Equal(t, http.StatusNoContent, resp.Code)
}

func TestAPIManualSubmit(t *testing.T) {
	calls := &backendCalls{durationSecs: 3600}
	backend := newBackend(t, calls)
	defer backend.Close()
	f := newAPIFixture(t, backend)

	resp := f.do(http.MethodPost, "/submit", "")
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, int32(1), calls.submits.Load())

	// Second submit is refused, and answers are locked for good.
	resp = f.do(http.MethodPost, "/submit", "")
	assert.Equal(t, http.StatusConflict, resp.Code)
	resp = f.do(http.MethodPut, "/answers/q1", `{"value":"late"}`)
	assert.Equal(t, http.StatusConflict, resp.Code)
}

func TestAPIStateReportsGateAndPhase(t *testing.T) {
	calls := &backendCalls{}
	backend := newBackend(t, calls)
	defer backend.Close()
	f := newAPIFixture(t, backend)
	require.NoError(t, f.attempt.GrantConsent(context.Background()))

	resp := f.do(http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, `"recording":true`)
	assert.Contains(t, body, `"phase":"recording-active"`)

	f.screen.live.Store(false)
	resp = f.do(http.MethodGet, "/state", "")
	body = resp.Body.String()
	assert.Contains(t, body, `"recording":true`)
	assert.Contains(t, body, `"phase":"recording-degraded"`)
	assert.Contains(t, body, "stream ended")
}
