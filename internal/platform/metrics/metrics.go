package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the proctoring suite. A single
// struct is wired through constructors so tests can pass a fresh registry.
type Metrics struct {
	FramesCaptured  *prometheus.CounterVec
	FramesDropped   prometheus.Counter
	CaptureSkipped  prometheus.Counter
	UploadsTotal    *prometheus.CounterVec
	UploadFailures  prometheus.Counter
	UploadDuration  prometheus.Histogram
	RelayEvents     prometheus.Counter
	RosterPolls     prometheus.Counter
	TimerExpirySubs prometheus.Counter
}

// New creates and registers all metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FramesCaptured: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_frames_captured_total",
			Help: "Frames rasterized by the capture scheduler, by source",
		}, []string{"source"}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctor_frames_dropped_total",
			Help: "Frames evicted from the bounded local buffer",
		}),
		CaptureSkipped: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctor_capture_ticks_skipped_total",
			Help: "Scheduler ticks skipped by the single-flight guard",
		}),
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "proctor_uploads_total",
			Help: "Frame uploads attempted, by capture type",
		}, []string{"captureType"}),
		UploadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctor_upload_failures_total",
			Help: "Frame uploads dropped after exhausting retries",
		}),
		UploadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "proctor_upload_duration_seconds",
			Help:    "Latency of frame upload requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		RelayEvents: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctor_relay_frame_events_total",
			Help: "Monitoring frame events received from the relay",
		}),
		RosterPolls: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctor_roster_polls_total",
			Help: "Roster refresh polls issued by the monitor",
		}),
		TimerExpirySubs: factory.NewCounter(prometheus.CounterOpts{
			Name: "proctor_timer_expiry_submits_total",
			Help: "Auto-submits triggered by session timer expiry",
		}),
	}
}

// NewForTest registers on a throwaway registry to keep tests independent.
func NewForTest() *Metrics {
	return New(prometheus.NewRegistry())
}
