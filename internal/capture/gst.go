package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"proctor/pkg/platform/sentinel"
)

// Capture geometry and JPEG quality per stream, matching what the platform's
// web client requests from the browser.
const (
	cameraWidth       = 640
	cameraHeight      = 480
	cameraJPEGQuality = 80

	screenWidth       = 1920
	screenHeight      = 1080
	screenJPEGQuality = 85
)

// GstSource is a GStreamer-backed Source. The pipeline runs continuously and
// keeps only the latest encoded frame in a single slot (appsink max-buffers=1,
// drop=true); Snapshot reads that slot, mirroring "rasterize the current
// video frame".
type GstSource struct {
	kind   SourceKind
	launch func() (*gst.Pipeline, *app.Sink, error)
	logger *slog.Logger

	mu       sync.Mutex
	pipeline *gst.Pipeline
	sink     *app.Sink
	latest   []byte
	latestAt time.Time

	started atomic.Bool
	ended   atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewCameraSource captures the front camera via v4l2 at 640x480, encoded to
// JPEG at quality 80.
func NewCameraSource(device string, logger *slog.Logger) *GstSource {
	s := &GstSource{kind: SourceCamera, logger: logger}
	s.launch = func() (*gst.Pipeline, *app.Sink, error) {
		return buildStillPipeline("v4l2src", map[string]any{"device": device},
			cameraWidth, cameraHeight, cameraJPEGQuality)
	}
	return s
}

// NewScreenSource captures the X display at 1920x1080, encoded to JPEG at
// quality 85. When the display goes away (session ends, share revoked) the
// pipeline posts EOS and the source reads as not live.
func NewScreenSource(display string, logger *slog.Logger) *GstSource {
	s := &GstSource{kind: SourceScreen, logger: logger}
	s.launch = func() (*gst.Pipeline, *app.Sink, error) {
		return buildStillPipeline("ximagesrc", map[string]any{"display-name": display, "use-damage": false},
			screenWidth, screenHeight, screenJPEGQuality)
	}
	return s
}

func (s *GstSource) Kind() SourceKind { return s.kind }

// Start builds the pipeline and moves it to PLAYING. Acquisition failures
// (missing device, display refused) map to ErrPermissionDenied so the caller
// can scope the error to this stream only.
func (s *GstSource) Start(ctx context.Context) error {
	pipeline, sink, err := s.launch()
	if err != nil {
		return fmt.Errorf("%v: %w", err, sentinel.ErrPermissionDenied)
	}

	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: s.onNewSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		pipeline.SetState(gst.StateNull)
		return fmt.Errorf("start %s pipeline: %v: %w", s.kind, err, sentinel.ErrPermissionDenied)
	}

	monitorCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.pipeline = pipeline
	s.sink = sink
	s.mu.Unlock()
	s.cancel = cancel
	s.done = make(chan struct{})
	s.started.Store(true)

	go s.watchBus(monitorCtx, pipeline)
	return nil
}

// onNewSample stores the latest encoded frame. Data is copied because
// GStreamer reuses the buffer.
func (s *GstSource) onNewSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}
	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	if len(data) == 0 {
		buffer.Unmap()
		return gst.FlowOK
	}
	frame := make([]byte, len(data))
	copy(frame, data)
	buffer.Unmap()

	s.mu.Lock()
	s.latest = frame
	s.latestAt = time.Now()
	s.mu.Unlock()
	return gst.FlowOK
}

// watchBus polls the pipeline bus. EOS or a pipeline error marks the stream
// ended; liveness flips and capture for this source stops, without touching
// the other stream.
func (s *GstSource) watchBus(ctx context.Context, pipeline *gst.Pipeline) {
	defer close(s.done)
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
			msg := bus.TimedPop(50 * time.Millisecond)
			if msg == nil {
				continue
			}
			switch msg.Type() {
			case gst.MessageEOS:
				s.logger.Warn("stream ended", "source", s.kind)
				s.ended.Store(true)
				return
			case gst.MessageError:
				gerr := msg.ParseError()
				s.logger.Error("pipeline error", "source", s.kind, "error", gerr.Error())
				s.ended.Store(true)
				return
			}
		}
	}
}

// Snapshot returns the latest encoded frame. Frames older than a few seconds
// are treated as an encoding failure for this cycle (the pipeline stalled)
// rather than a stream death.
func (s *GstSource) Snapshot(_ context.Context) ([]byte, error) {
	if !s.Live() {
		return nil, fmt.Errorf("%s: %w", s.kind, sentinel.ErrStreamEnded)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.latest == nil {
		return nil, fmt.Errorf("%s: no frame decoded yet", s.kind)
	}
	if time.Since(s.latestAt) > 5*time.Second {
		return nil, fmt.Errorf("%s: stale frame (%s old)", s.kind, time.Since(s.latestAt).Round(time.Second))
	}
	out := make([]byte, len(s.latest))
	copy(out, s.latest)
	return out, nil
}

// Live reports stream liveness: started and not ended by EOS/error.
func (s *GstSource) Live() bool {
	return s.started.Load() && !s.ended.Load()
}

// Stop tears the pipeline down. Idempotent.
func (s *GstSource) Stop() error {
	if !s.started.CompareAndSwap(true, false) {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
	s.mu.Lock()
	pipeline := s.pipeline
	s.pipeline = nil
	s.mu.Unlock()
	if pipeline != nil {
		if err := pipeline.SetState(gst.StateNull); err != nil {
			return fmt.Errorf("stop %s pipeline: %w", s.kind, err)
		}
	}
	return nil
}

// buildStillPipeline assembles source → videoconvert → videoscale →
// capsfilter(WxH) → jpegenc → appsink. The appsink keeps only the newest
// buffer so Snapshot always sees the current frame.
func buildStillPipeline(sourceName string, sourceProps map[string]any, width, height, quality int) (*gst.Pipeline, *app.Sink, error) {
	gst.Init(nil)

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return nil, nil, fmt.Errorf("create pipeline: %w", err)
	}

	source, err := gst.NewElement(sourceName)
	if err != nil {
		return nil, nil, fmt.Errorf("create %s: %w", sourceName, err)
	}
	for name, value := range sourceProps {
		source.SetProperty(name, value)
	}

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, nil, fmt.Errorf("create videoconvert: %w", err)
	}

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, nil, fmt.Errorf("create videoscale: %w", err)
	}

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, nil, fmt.Errorf("create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(
		fmt.Sprintf("video/x-raw,width=%d,height=%d", width, height)))

	encoder, err := gst.NewElement("jpegenc")
	if err != nil {
		return nil, nil, fmt.Errorf("create jpegenc: %w", err)
	}
	encoder.SetProperty("quality", quality)

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, nil, fmt.Errorf("create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)
	appsink.SetProperty("max-buffers", 1)
	appsink.SetProperty("drop", true)

	if err := pipeline.AddMany(source, converter, scaler, capsfilter, encoder, appsink.Element); err != nil {
		return nil, nil, fmt.Errorf("assemble pipeline: %w", err)
	}
	if err := gst.ElementLinkMany(source, converter, scaler, capsfilter, encoder, appsink.Element); err != nil {
		return nil, nil, fmt.Errorf("link pipeline elements: %w", err)
	}

	return pipeline, appsink, nil
}
