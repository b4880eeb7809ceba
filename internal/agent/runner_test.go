package agent

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proctor/internal/capture"
	"proctor/internal/platform/config"
	"proctor/internal/platform/httpclient"
	"proctor/internal/platform/metrics"
	"proctor/internal/session"
	"proctor/pkg/platform/sentinel"
)

type fakeSource struct {
	kind capture.SourceKind
	live atomic.Bool
}

func newFakeSource(kind capture.SourceKind) *fakeSource {
	return &fakeSource{kind: kind}
}

func (f *fakeSource) Kind() capture.SourceKind { return f.kind }

func (f *fakeSource) Start(context.Context) error {
	f.live.Store(true)
	return nil
}

func (f *fakeSource) Snapshot(context.Context) ([]byte, error) {
	return []byte(string(f.kind) + "-jpeg"), nil
}

func (f *fakeSource) Live() bool { return f.live.Load() }

func (f *fakeSource) Stop() error {
	f.live.Store(false)
	return nil
}

type backendCalls struct {
	submits      atomic.Int32
	stops        atomic.Int32
	exitCaptures atomic.Int32
	frameUploads atomic.Int32
	lastExitType atomic.Value
	lastAnswers  atomic.Value
	durationSecs int
	failSubmit   atomic.Bool
}

func newBackend(t *testing.T, calls *backendCalls) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/olympiads/oly-1":
			json.NewEncoder(w).Encode(map[string]any{
				"_id": "oly-1", "title": "Regional Round", "duration": calls.durationSecs,
			})
		case r.Method == http.MethodPost && r.URL.Path == "/olympiads/camera-capture":
			calls.frameUploads.Add(1)
		case r.Method == http.MethodPost && r.URL.Path == "/olympiads/exit-screenshot":
			require.NoError(t, r.ParseMultipartForm(1<<20))
			calls.lastExitType.Store(r.FormValue("exitType"))
			calls.exitCaptures.Add(1)
		case r.Method == http.MethodPost && r.URL.Path == "/olympiads/oly-1/submit":
			if calls.failSubmit.Load() {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			var payload struct {
				Answers map[string]string `json:"answers"`
			}
			json.NewDecoder(r.Body).Decode(&payload)
			calls.lastAnswers.Store(payload.Answers)
			calls.submits.Add(1)
		case r.Method == http.MethodPost && r.URL.Path == "/olympiads/oly-1/stop-recording":
			calls.stops.Add(1)
		default:
			http.NotFound(w, r)
		}
	}))
}

func signedToken(t *testing.T) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "user-1", "role": "student",
	})
	signed, err := tok.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func newRunner(t *testing.T, srv *httptest.Server, store session.StateStore, consent ConsentFunc) *Runner {
	t.Helper()
	cfg := config.Agent{
		APIBaseURL:    srv.URL,
		BearerToken:   signedToken(t),
		OlympiadID:    "oly-1",
		BufferCap:     8,
		UploadRetries: 1,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := httpclient.New(cfg.APIBaseURL, cfg.BearerToken, srv.Client())
	gate := capture.NewGate(logger, newFakeSource(capture.SourceCamera), newFakeSource(capture.SourceScreen))
	return New(cfg, logger, metrics.NewForTest(), api, store, gate, consent)
}

func TestRunnerConsentRefusedNeverCaptures(t *testing.T) {
	calls := &backendCalls{durationSecs: 3600}
	srv := newBackend(t, calls)
	defer srv.Close()

	store := session.NewInMemoryStateStore()
	runner := newRunner(t, srv, store, func([]string) bool { return false })

	err := runner.Run(context.Background())
	assert.ErrorIs(t, err, sentinel.ErrPermissionDenied)
	assert.Zero(t, calls.frameUploads.Load())
	assert.Zero(t, calls.submits.Load())

	// The attempt record exists so the countdown is already running, but
	// consent was never persisted.
	state, err := store.Load(context.Background(), "user-1", "oly-1")
	require.NoError(t, err)
	assert.True(t, state.Started)
	assert.False(t, state.ConsentGranted)
}

func TestRunnerAutoSubmitsAndStopsRecording(t *testing.T) {
	calls := &backendCalls{durationSecs: 1}
	srv := newBackend(t, calls)
	defer srv.Close()

	store := session.NewInMemoryStateStore()
	runner := newRunner(t, srv, store, func([]string) bool { return true })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, runner.Run(ctx))

	assert.Equal(t, int32(1), calls.submits.Load())
	assert.Equal(t, int32(1), calls.stops.Load())
	assert.Zero(t, calls.exitCaptures.Load())

	// Submission cleared the durable attempt record.
	_, err := store.Load(context.Background(), "user-1", "oly-1")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestRunnerFailedAutoSubmitIsAnError(t *testing.T) {
	calls := &backendCalls{durationSecs: 1}
	calls.failSubmit.Store(true)
	srv := newBackend(t, calls)
	defer srv.Close()

	store := session.NewInMemoryStateStore()
	runner := newRunner(t, srv, store, func([]string) bool { return true })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := runner.Run(ctx)

	// The attempt did not finish: the error propagates and the server is
	// never told to finalize the recording.
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls.stops.Load())

	// Durable state survives so a restart can retry the submission.
	state, err := store.Load(context.Background(), "user-1", "oly-1")
	require.NoError(t, err)
	assert.False(t, state.Submitted)
}

func TestRunnerInterruptSendsExitCaptureAndKeepsState(t *testing.T) {
	calls := &backendCalls{durationSecs: 3600}
	srv := newBackend(t, calls)
	defer srv.Close()

	store := session.NewInMemoryStateStore()
	runner := newRunner(t, srv, store, func([]string) bool { return true })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.Run(ctx) }()

	// Let the loops spin up, then simulate the student closing the agent.
	time.Sleep(300 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("runner did not stop on cancel")
	}

	assert.Equal(t, int32(1), calls.exitCaptures.Load())
	assert.Equal(t, "close", calls.lastExitType.Load())
	assert.Zero(t, calls.submits.Load())

	// The attempt record survives for resume.
	state, err := store.Load(context.Background(), "user-1", "oly-1")
	require.NoError(t, err)
	assert.True(t, state.ConsentGranted)
	assert.False(t, state.Submitted)
}
