package capture

import "context"

// Source is a single media stream that can be snapshotted to a still image.
//
// Implementations must guarantee:
//   - Start acquires the underlying device/stream or fails with a scoped
//     error; it must not affect any other Source.
//   - Snapshot returns the current frame as an encoded JPEG. A failure is a
//     per-cycle event: callers skip the cycle, the stream stays usable.
//   - Live reflects stream liveness only. It flips to false when the stream
//     ends outside our control (device unplugged, share revoked), not when a
//     snapshot or upload fails.
//   - Stop is idempotent and releases all resources.
type Source interface {
	Kind() SourceKind
	Start(ctx context.Context) error
	Snapshot(ctx context.Context) ([]byte, error)
	Live() bool
	Stop() error
}
