package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/wordflow/pkg/models"
)

// The session table holds a single row; the drilling session survives a
// restart with exact positional state.
const sessionKey = "current"

// SaveSession serializes and persists the active session snapshot.
func (s *Store) SaveSession(snap *models.SessionSnapshot, now time.Time) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO flashcard_session (key, snapshot, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET snapshot = excluded.snapshot, updated_at = excluded.updated_at`,
			sessionKey, string(data), now)
		return err
	})
}

// LoadSession returns the last persisted session snapshot, or nil when no
// session has been saved. No saved session is a valid empty state.
func (s *Store) LoadSession() (*models.SessionSnapshot, error) {
	var data string
	err := s.db.Get(&data, `SELECT snapshot FROM flashcard_session WHERE key = ?`, sessionKey)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}
	var snap models.SessionSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, fmt.Errorf("failed to decode session snapshot: %w", err)
	}
	return &snap, nil
}

// ClearSession removes the persisted session.
func (s *Store) ClearSession() error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(`DELETE FROM flashcard_session WHERE key = ?`, sessionKey)
		return err
	})
}
