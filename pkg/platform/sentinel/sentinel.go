package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores, capture sources, and
// transport layers return these (optionally wrapped) so callers can translate
// them into attempt-level behavior.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: attempt state does not exist in the store
// - ErrExpired: the exam window for the attempt has elapsed
// - ErrAlreadySubmitted: attempt is terminal, no further mutation accepted
// - ErrStreamEnded: a media stream stopped outside our control
// - ErrPermissionDenied: camera/screen acquisition refused by the host
// - ErrUnavailable: collaborator (backend, relay) temporarily unreachable
var (
	ErrNotFound         = errors.New("not found")
	ErrExpired          = errors.New("expired")
	ErrAlreadySubmitted = errors.New("already submitted")
	ErrStreamEnded      = errors.New("stream ended")
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnavailable      = errors.New("unavailable")
)
