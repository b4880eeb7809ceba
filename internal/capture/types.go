package capture

import "time"

// SourceKind discriminates the two proctoring streams. The values double as
// the wire `captureType` field on uploads.
type SourceKind string

const (
	SourceCamera SourceKind = "camera"
	SourceScreen SourceKind = "screen"
)

// Frame is one rasterized still image. Ephemeral: created by the scheduler,
// consumed by the upload dispatcher, dropped once sent (or evicted when the
// buffer overflows).
type Frame struct {
	Source     SourceKind
	Data       []byte // encoded JPEG
	CapturedAt time.Time
	OlympiadID string
	TraceID    string
}

// RecordingStatus is the read-only projection the exam UI gates input on. It
// is derived from stream liveness only, never from capture or upload success.
type RecordingStatus struct {
	CameraLive bool `json:"cameraLive"`
	ScreenLive bool `json:"screenLive"`
}

// Recording reports whether at least one proctoring stream is live. This is
// the single boolean the recording gate exposes to answer-mutating controls.
func (s RecordingStatus) Recording() bool {
	return s.CameraLive || s.ScreenLive
}
