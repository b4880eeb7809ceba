package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"proctor/pkg/platform/sentinel"
)

// FileStateStore persists attempt state as one JSON file per (user, exam)
// under a local directory. This is the default durable storage for the agent:
// a reload or crash mid-exam finds the record and resumes.
type FileStateStore struct {
	dir string
}

// NewFileStateStore creates the directory if needed.
func NewFileStateStore(dir string) (*FileStateStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &FileStateStore{dir: dir}, nil
}

func (s *FileStateStore) path(userID, olympiadID string) string {
	name := fmt.Sprintf("attempt-%s-%s.json", sanitize(userID), sanitize(olympiadID))
	return filepath.Join(s.dir, name)
}

func (s *FileStateStore) Load(_ context.Context, userID, olympiadID string) (*AttemptState, error) {
	raw, err := os.ReadFile(s.path(userID, olympiadID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("attempt state: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read attempt state: %w", err)
	}
	state := &AttemptState{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, fmt.Errorf("decode attempt state: %w", err)
	}
	return state, nil
}

// Save writes through a temp file plus rename so a crash mid-write never
// leaves a truncated record.
func (s *FileStateStore) Save(_ context.Context, state *AttemptState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode attempt state: %w", err)
	}
	target := s.path(state.UserID, state.OlympiadID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write attempt state: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		return fmt.Errorf("commit attempt state: %w", err)
	}
	return nil
}

func (s *FileStateStore) Delete(_ context.Context, userID, olympiadID string) error {
	err := os.Remove(s.path(userID, olympiadID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete attempt state: %w", err)
	}
	return nil
}

func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, id)
}
