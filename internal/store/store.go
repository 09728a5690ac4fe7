// Package store owns all local persistence for the engine: per-word learning
// progress, the active flashcard session snapshot, lookup history, flashcard
// mastery counters, sync cursors and the blacklist.
//
// Everything lives in one SQLite database. Word progress is a single
// state-tagged table, so "a word is in exactly one state" holds by
// construction rather than by convention.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/example/wordflow/pkg/models"
)

// Store wraps the SQLite connection. All methods are safe for use from the
// coordinator goroutine plus the out-of-band sync pass; SQLite serializes
// writers and transient contention is retried.
type Store struct {
	db *sqlx.DB
}

// Open creates the data directory if needed, opens (or creates) the database
// and initializes the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on&_loc=UTC", path)
	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite doesn't support multiple writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initializeSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initializeSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS word_progress (
		word           TEXT PRIMARY KEY,
		state          TEXT NOT NULL CHECK (state IN ('pending', 'reviewing', 'mastered')),
		stage          INTEGER NOT NULL DEFAULT 0,
		added_at       TIMESTAMP NOT NULL,
		last_used_at   TIMESTAMP,
		next_review_at TIMESTAMP,
		mastered_at    TIMESTAMP,
		updated_at     TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_progress_state ON word_progress(state);
	CREATE INDEX IF NOT EXISTS idx_progress_updated ON word_progress(updated_at);

	CREATE TABLE IF NOT EXISTS lookup_history (
		word       TEXT PRIMARY KEY,
		count      INTEGER NOT NULL DEFAULT 0,
		contexts   TEXT NOT NULL DEFAULT '[]',
		lookups    TEXT NOT NULL DEFAULT '[]',
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS flashcard_stats (
		word          TEXT PRIMARY KEY,
		review_count  INTEGER NOT NULL DEFAULT 0,
		mastery_level INTEGER NOT NULL DEFAULT 0,
		updated_at    TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS flashcard_session (
		key        TEXT PRIMARY KEY,
		snapshot   TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_cursors (
		resource               TEXT PRIMARY KEY,
		last_synced_updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS blacklist (
		word     TEXT PRIMARY KEY,
		added_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS device (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// DeviceID returns this device's stable identity, generating and persisting
// one on first call. Sync scopes every remote row to this ID's user.
func (s *Store) DeviceID() (string, error) {
	var id string
	err := s.db.Get(&id, `SELECT value FROM device WHERE key = 'device_id'`)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("failed to read device id: %w", err)
	}

	id = uuid.NewString()
	err = retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO device (key, value) VALUES ('device_id', ?)
			 ON CONFLICT(key) DO NOTHING`, id)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to persist device id: %w", err)
	}
	// Re-read in case another opener won the race.
	if err := s.db.Get(&id, `SELECT value FROM device WHERE key = 'device_id'`); err != nil {
		return "", err
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// Word progress
// ---------------------------------------------------------------------------

// GetProgress returns the record for a word, or nil if the word is unknown.
// Absence is a valid state, not an error.
func (s *Store) GetProgress(word string) (*models.WordProgress, error) {
	var rec models.WordProgress
	err := s.db.Get(&rec,
		`SELECT word, state, stage, added_at, last_used_at, next_review_at, mastered_at, updated_at
		 FROM word_progress WHERE word = ?`, models.NormalizeWord(word))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get progress for %q: %w", word, err)
	}
	return &rec, nil
}

// GetAllProgress returns every word progress record, ordered by word for
// stable iteration.
func (s *Store) GetAllProgress() ([]models.WordProgress, error) {
	var recs []models.WordProgress
	err := s.db.Select(&recs,
		`SELECT word, state, stage, added_at, last_used_at, next_review_at, mastered_at, updated_at
		 FROM word_progress ORDER BY word`)
	if err != nil {
		return nil, fmt.Errorf("failed to get progress records: %w", err)
	}
	return recs, nil
}

// GetProgressByState returns records in one state, ordered by word.
func (s *Store) GetProgressByState(state models.WordState) ([]models.WordProgress, error) {
	var recs []models.WordProgress
	err := s.db.Select(&recs,
		`SELECT word, state, stage, added_at, last_used_at, next_review_at, mastered_at, updated_at
		 FROM word_progress WHERE state = ? ORDER BY word`, state)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s records: %w", state, err)
	}
	return recs, nil
}

// PutProgress inserts or replaces a word's record. The caller is responsible
// for bumping UpdatedAt; every mutation path in the engine does.
func (s *Store) PutProgress(rec *models.WordProgress) error {
	if !rec.State.Valid() {
		return fmt.Errorf("refusing to store %q with invalid state %d", rec.Word, int(rec.State))
	}
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO word_progress (word, state, stage, added_at, last_used_at, next_review_at, mastered_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(word) DO UPDATE SET
			   state = excluded.state,
			   stage = excluded.stage,
			   added_at = excluded.added_at,
			   last_used_at = excluded.last_used_at,
			   next_review_at = excluded.next_review_at,
			   mastered_at = excluded.mastered_at,
			   updated_at = excluded.updated_at`,
			rec.Word, rec.State, rec.Stage, rec.AddedAt,
			rec.LastUsedAt, rec.NextReviewAt, rec.MasteredAt, rec.UpdatedAt)
		return err
	})
}

// DeleteProgress removes a word's record. Deleting an absent word is a no-op.
func (s *Store) DeleteProgress(word string) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(`DELETE FROM word_progress WHERE word = ?`, models.NormalizeWord(word))
		return err
	})
}

// ClearProgress removes every word progress record.
func (s *Store) ClearProgress() error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(`DELETE FROM word_progress`)
		return err
	})
}

// ---------------------------------------------------------------------------
// Sync cursors
// ---------------------------------------------------------------------------

// GetCursor returns the stored pull cursor for a resource, or the zero time
// when nothing has been pulled yet.
func (s *Store) GetCursor(resource models.ResourceType) (time.Time, error) {
	var t time.Time
	err := s.db.Get(&t,
		`SELECT last_synced_updated_at FROM sync_cursors WHERE resource = ?`, string(resource))
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get cursor for %s: %w", resource, err)
	}
	return t, nil
}

// SetCursor persists the pull cursor for a resource.
func (s *Store) SetCursor(resource models.ResourceType, t time.Time) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO sync_cursors (resource, last_synced_updated_at) VALUES (?, ?)
			 ON CONFLICT(resource) DO UPDATE SET last_synced_updated_at = excluded.last_synced_updated_at`,
			string(resource), t)
		return err
	})
}

// ---------------------------------------------------------------------------
// Blacklist
// ---------------------------------------------------------------------------

// AddToBlacklist marks a word as terminally excluded from sync.
func (s *Store) AddToBlacklist(word string, now time.Time) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO blacklist (word, added_at) VALUES (?, ?)
			 ON CONFLICT(word) DO NOTHING`, models.NormalizeWord(word), now)
		return err
	})
}

// IsBlacklisted reports whether a word is on the blacklist.
func (s *Store) IsBlacklisted(word string) (bool, error) {
	var n int
	if err := s.db.Get(&n, `SELECT COUNT(*) FROM blacklist WHERE word = ?`, models.NormalizeWord(word)); err != nil {
		return false, err
	}
	return n > 0, nil
}

// BlacklistedWords returns all blacklisted words, ordered.
func (s *Store) BlacklistedWords() ([]string, error) {
	var words []string
	if err := s.db.Select(&words, `SELECT word FROM blacklist ORDER BY word`); err != nil {
		return nil, err
	}
	return words, nil
}
