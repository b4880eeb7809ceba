package session

import "context"

// StateStore persists attempt state between process runs. Implementations
// follow the store error contract: ErrNotFound when no record exists, nil on
// success, wrapped errors for infrastructure failures.
//
// The store is single-writer in practice: one agent process per attempt.
// Concurrent writers for the same (user, exam) are unsupported.
type StateStore interface {
	Load(ctx context.Context, userID, olympiadID string) (*AttemptState, error)
	Save(ctx context.Context, state *AttemptState) error
	Delete(ctx context.Context, userID, olympiadID string) error
}
