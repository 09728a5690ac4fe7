package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/wordflow/pkg/models"
)

// Contexts and lookup timestamps are stored as JSON arrays; only the newest
// few contexts are kept per word.
const maxStoredContexts = 5

// RecordLookup bumps a word's lookup counter and appends the context and
// timestamp. Creates the row on first lookup.
func (s *Store) RecordLookup(word, context string, now time.Time) error {
	word = models.NormalizeWord(word)
	stat, err := s.GetLookupStat(word)
	if err != nil {
		return err
	}
	if stat == nil {
		stat = &models.LookupStat{Word: word}
	}
	stat.Count++
	if context != "" {
		stat.Contexts = append(stat.Contexts, context)
		if len(stat.Contexts) > maxStoredContexts {
			stat.Contexts = stat.Contexts[len(stat.Contexts)-maxStoredContexts:]
		}
	}
	stat.Lookups = append(stat.Lookups, now)
	stat.UpdatedAt = now
	return s.PutLookupStat(stat)
}

// GetLookupStat returns the lookup history for a word, or nil if the word
// has never been looked up.
func (s *Store) GetLookupStat(word string) (*models.LookupStat, error) {
	row := s.db.QueryRow(
		`SELECT word, count, contexts, lookups, updated_at FROM lookup_history WHERE word = ?`,
		models.NormalizeWord(word))
	stat, err := scanLookupStat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return stat, err
}

// GetAllLookupStats returns the full lookup history keyed by word.
func (s *Store) GetAllLookupStats() (map[string]models.LookupStat, error) {
	rows, err := s.db.Query(`SELECT word, count, contexts, lookups, updated_at FROM lookup_history`)
	if err != nil {
		return nil, fmt.Errorf("failed to get lookup history: %w", err)
	}
	defer rows.Close()

	stats := make(map[string]models.LookupStat)
	for rows.Next() {
		stat, err := scanLookupStat(rows)
		if err != nil {
			return nil, err
		}
		stats[stat.Word] = *stat
	}
	return stats, rows.Err()
}

// PutLookupStat inserts or replaces a word's lookup history row.
func (s *Store) PutLookupStat(stat *models.LookupStat) error {
	contexts, err := json.Marshal(stat.Contexts)
	if err != nil {
		return err
	}
	lookups, err := json.Marshal(stat.Lookups)
	if err != nil {
		return err
	}
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO lookup_history (word, count, contexts, lookups, updated_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(word) DO UPDATE SET
			   count = excluded.count,
			   contexts = excluded.contexts,
			   lookups = excluded.lookups,
			   updated_at = excluded.updated_at`,
			stat.Word, stat.Count, string(contexts), string(lookups), stat.UpdatedAt)
		return err
	})
}

// DeleteLookupStat permanently removes a word's lookup history.
func (s *Store) DeleteLookupStat(word string) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(`DELETE FROM lookup_history WHERE word = ?`, models.NormalizeWord(word))
		return err
	})
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLookupStat(row rowScanner) (*models.LookupStat, error) {
	var stat models.LookupStat
	var contexts, lookups string
	if err := row.Scan(&stat.Word, &stat.Count, &contexts, &lookups, &stat.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(contexts), &stat.Contexts); err != nil {
		return nil, fmt.Errorf("failed to decode contexts for %q: %w", stat.Word, err)
	}
	if err := json.Unmarshal([]byte(lookups), &stat.Lookups); err != nil {
		return nil, fmt.Errorf("failed to decode lookups for %q: %w", stat.Word, err)
	}
	return &stat, nil
}

// ---------------------------------------------------------------------------
// Flashcard stats
// ---------------------------------------------------------------------------

// BumpFlashcardStat increments a word's review counter and raises its mastery
// level to at least the given level. Both fields only ever grow.
func (s *Store) BumpFlashcardStat(word string, masteryLevel int, now time.Time) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO flashcard_stats (word, review_count, mastery_level, updated_at)
			 VALUES (?, 1, ?, ?)
			 ON CONFLICT(word) DO UPDATE SET
			   review_count = flashcard_stats.review_count + 1,
			   mastery_level = MAX(flashcard_stats.mastery_level, excluded.mastery_level),
			   updated_at = excluded.updated_at`,
			models.NormalizeWord(word), masteryLevel, now)
		return err
	})
}

// PutFlashcardStat inserts or replaces a word's mastery counters. Used by
// sync pull when the remote copy is ahead.
func (s *Store) PutFlashcardStat(stat *models.FlashcardStat) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(
			`INSERT INTO flashcard_stats (word, review_count, mastery_level, updated_at)
			 VALUES (?, ?, ?, ?)
			 ON CONFLICT(word) DO UPDATE SET
			   review_count = excluded.review_count,
			   mastery_level = excluded.mastery_level,
			   updated_at = excluded.updated_at`,
			stat.Word, stat.ReviewCount, stat.MasteryLevel, stat.UpdatedAt)
		return err
	})
}

// GetFlashcardStat returns a word's mastery counters, or nil if absent.
func (s *Store) GetFlashcardStat(word string) (*models.FlashcardStat, error) {
	var stat models.FlashcardStat
	err := s.db.Get(&stat,
		`SELECT word, review_count, mastery_level, updated_at FROM flashcard_stats WHERE word = ?`,
		models.NormalizeWord(word))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get flashcard stat for %q: %w", word, err)
	}
	return &stat, nil
}

// GetAllFlashcardStats returns every word's mastery counters, ordered by word.
func (s *Store) GetAllFlashcardStats() ([]models.FlashcardStat, error) {
	var stats []models.FlashcardStat
	err := s.db.Select(&stats,
		`SELECT word, review_count, mastery_level, updated_at FROM flashcard_stats ORDER BY word`)
	if err != nil {
		return nil, fmt.Errorf("failed to get flashcard stats: %w", err)
	}
	return stats, nil
}

// DeleteFlashcardStat removes a word's mastery counters.
func (s *Store) DeleteFlashcardStat(word string) error {
	return retryOnContention(func() error {
		_, err := s.db.Exec(`DELETE FROM flashcard_stats WHERE word = ?`, models.NormalizeWord(word))
		return err
	})
}
