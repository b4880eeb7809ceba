package capture

import (
	"sync"

	"proctor/internal/platform/metrics"
)

// Buffer accumulates captured frames between upload cycles. It is strictly
// bounded: when full, the oldest frame is evicted so memory never grows with
// a slow or failing uploader.
type Buffer struct {
	mu      sync.Mutex
	frames  []Frame
	cap     int
	dropped uint64
	metrics *metrics.Metrics
}

// NewBuffer creates a buffer holding at most capacity frames.
func NewBuffer(capacity int, m *metrics.Metrics) *Buffer {
	if capacity <= 0 {
		capacity = 32
	}
	return &Buffer{cap: capacity, metrics: m}
}

// Push appends a frame, evicting the oldest when at capacity.
func (b *Buffer) Push(frame Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) >= b.cap {
		copy(b.frames, b.frames[1:])
		b.frames = b.frames[:len(b.frames)-1]
		b.dropped++
		if b.metrics != nil {
			b.metrics.FramesDropped.Inc()
		}
	}
	b.frames = append(b.frames, frame)
}

// Drain removes and returns all buffered frames in capture order.
func (b *Buffer) Drain() []Frame {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.frames) == 0 {
		return nil
	}
	out := b.frames
	b.frames = nil
	return out
}

// Latest returns the most recent frame for the given source without removing
// it. Used by the exit-capture path, which wants a last known image per
// stream. The second return is false when no such frame is buffered.
func (b *Buffer) Latest(kind SourceKind) (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.frames) - 1; i >= 0; i-- {
		if b.frames[i].Source == kind {
			return b.frames[i], true
		}
	}
	return Frame{}, false
}

// Len returns the number of buffered frames.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames)
}

// Dropped returns the lifetime count of evicted frames.
func (b *Buffer) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
