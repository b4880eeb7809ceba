package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"proctor/internal/platform/metrics"
)

const (
	eventJoinMonitoring  = "join-monitoring"
	eventLeaveMonitoring = "leave-monitoring"
	eventStudentFrame    = "student-video-frame"

	relayReconnectDelay = 2 * time.Second
)

// envelope is the relay wire frame: a named event plus an opaque payload.
type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Relay maintains the monitoring websocket: it joins the olympiad's
// monitoring room, folds incoming student frames into the roster, and
// reconnects with a fixed delay when the connection drops. Frame delivery is
// best effort; the roster poll covers anything missed while disconnected.
type Relay struct {
	url        string
	token      string
	olympiadID string
	roster     *Roster
	logger     *slog.Logger
	metrics    *metrics.Metrics
	dialer     *websocket.Dialer

	// Guards conn writes and Close: gorilla/websocket allows only one
	// concurrent writer, and the cancel path writes from its own goroutine.
	writeMu sync.Mutex
}

func NewRelay(url, token, olympiadID string, roster *Roster, logger *slog.Logger, m *metrics.Metrics) *Relay {
	return &Relay{
		url:        url,
		token:      token,
		olympiadID: olympiadID,
		roster:     roster,
		logger:     logger,
		metrics:    m,
		dialer:     websocket.DefaultDialer,
	}
}

// Run connects and consumes frames until the context is cancelled. Dial and
// read failures are logged and retried; only cancellation ends the loop.
func (r *Relay) Run(ctx context.Context) error {
	for {
		if err := r.session(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Warn("relay session ended, reconnecting", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(relayReconnectDelay):
		}
	}
}

func (r *Relay) session(ctx context.Context) error {
	header := http.Header{}
	if r.token != "" {
		header.Set("Authorization", "Bearer "+r.token)
	}
	conn, _, err := r.dialer.DialContext(ctx, r.url, header)
	if err != nil {
		return fmt.Errorf("dial relay: %w", err)
	}
	defer r.closeConn(conn)

	// Unblock ReadJSON when the context is cancelled.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			r.send(conn, eventLeaveMonitoring)
			r.closeConn(conn)
		case <-done:
		}
	}()

	if err := r.send(conn, eventJoinMonitoring); err != nil {
		return fmt.Errorf("join monitoring: %w", err)
	}
	r.logger.Info("joined monitoring room", "olympiad", r.olympiadID)

	for {
		var msg envelope
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("read relay: %w", err)
		}
		r.handle(msg)
	}
}

func (r *Relay) send(conn *websocket.Conn, event string) error {
	payload := struct {
		OlympiadID string `json:"olympiadId"`
	}{OlympiadID: r.olympiadID}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return conn.WriteJSON(envelope{Event: event, Data: data})
}

// closeConn closes under the write lock; Close counts as a write in
// gorilla/websocket. Closing twice is harmless.
func (r *Relay) closeConn(conn *websocket.Conn) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	conn.Close()
}

func (r *Relay) handle(msg envelope) {
	if msg.Event != eventStudentFrame {
		r.logger.Debug("ignoring relay event", "event", msg.Event)
		return
	}
	var ev FrameEvent
	if err := json.Unmarshal(msg.Data, &ev); err != nil {
		r.logger.Warn("malformed frame event", "error", err)
		return
	}
	if r.roster.ApplyFrame(ev) {
		r.metrics.RelayEvents.Inc()
	}
}
