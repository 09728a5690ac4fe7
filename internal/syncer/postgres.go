package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/example/wordflow/pkg/models"
)

// resourceTables maps each resource type to its remote table.
var resourceTables = map[models.ResourceType]string{
	models.ResourceWords:      "word_lookups",
	models.ResourceFlashcards: "flashcard_progress",
	models.ResourceReviews:    "immersive_review",
}

// PostgresRemote is a RemoteStore backed by Postgres. Every row is scoped to
// one user identity; blacklisted words are filtered out of selects at the
// query level.
type PostgresRemote struct {
	db     *sqlx.DB
	userID string
}

// NewPostgresRemote connects to the remote database and ensures the schema.
func NewPostgresRemote(dsn, userID string) (*PostgresRemote, error) {
	if userID == "" {
		return nil, fmt.Errorf("remote store requires a user identity")
	}
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to remote database: %w", err)
	}
	r := &PostgresRemote{db: db, userID: userID}
	if err := r.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

// Close closes the remote connection.
func (r *PostgresRemote) Close() error { return r.db.Close() }

func (r *PostgresRemote) ensureSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS word_lookups (
		user_id    TEXT NOT NULL,
		word       TEXT NOT NULL,
		count      INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, word)
	);

	CREATE TABLE IF NOT EXISTS flashcard_progress (
		user_id       TEXT NOT NULL,
		word          TEXT NOT NULL,
		review_count  INTEGER NOT NULL DEFAULT 0,
		mastery_level INTEGER NOT NULL DEFAULT 0,
		updated_at    TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, word)
	);

	CREATE TABLE IF NOT EXISTS immersive_review (
		user_id    TEXT NOT NULL,
		word       TEXT NOT NULL,
		status     TEXT NOT NULL,
		stage      INTEGER NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, word)
	);

	CREATE TABLE IF NOT EXISTS sync_blacklist (
		user_id  TEXT NOT NULL,
		word     TEXT NOT NULL,
		added_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (user_id, word)
	);

	CREATE INDEX IF NOT EXISTS idx_word_lookups_updated ON word_lookups(user_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_flashcard_progress_updated ON flashcard_progress(user_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_immersive_review_updated ON immersive_review(user_id, updated_at);
	`
	if _, err := r.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize remote schema: %w", err)
	}
	return nil
}

// SelectSince implements RemoteStore.
func (r *PostgresRemote) SelectSince(ctx context.Context, resource models.ResourceType, since time.Time) ([]RemoteRecord, error) {
	table, ok := resourceTables[resource]
	if !ok {
		return nil, fmt.Errorf("unknown resource type %q", resource)
	}

	query := fmt.Sprintf(`
		SELECT t.word, %s, t.updated_at
		FROM %s t
		WHERE t.user_id = $1 AND t.updated_at > $2
		  AND NOT EXISTS (
		    SELECT 1 FROM sync_blacklist b
		    WHERE b.user_id = t.user_id AND b.word = t.word
		  )
		ORDER BY t.updated_at ASC`, selectColumns(resource), table)

	rows, err := r.db.QueryContext(ctx, query, r.userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []RemoteRecord
	for rows.Next() {
		rec, err := scanRemote(resource, rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// SelectFields implements RemoteStore. Only the comparison fields travel,
// never the full row.
func (r *PostgresRemote) SelectFields(ctx context.Context, resource models.ResourceType, words []string) (map[string]RemoteRecord, error) {
	table, ok := resourceTables[resource]
	if !ok {
		return nil, fmt.Errorf("unknown resource type %q", resource)
	}
	if len(words) == 0 {
		return map[string]RemoteRecord{}, nil
	}

	query := fmt.Sprintf(`
		SELECT t.word, %s, t.updated_at
		FROM %s t
		WHERE t.user_id = $1 AND t.word = ANY($2)`, selectColumns(resource), table)

	rows, err := r.db.QueryContext(ctx, query, r.userID, pq.Array(words))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]RemoteRecord, len(words))
	for rows.Next() {
		rec, err := scanRemote(resource, rows)
		if err != nil {
			return nil, err
		}
		out[rec.Word] = rec
	}
	return out, rows.Err()
}

// Upsert implements RemoteStore with ON CONFLICT update semantics.
func (r *PostgresRemote) Upsert(ctx context.Context, resource models.ResourceType, recs []RemoteRecord) error {
	var query string
	switch resource {
	case models.ResourceWords:
		query = `
			INSERT INTO word_lookups (user_id, word, count, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (user_id, word) DO UPDATE SET
			  count = EXCLUDED.count, updated_at = EXCLUDED.updated_at`
	case models.ResourceFlashcards:
		query = `
			INSERT INTO flashcard_progress (user_id, word, review_count, mastery_level, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, word) DO UPDATE SET
			  review_count = EXCLUDED.review_count,
			  mastery_level = EXCLUDED.mastery_level,
			  updated_at = EXCLUDED.updated_at`
	case models.ResourceReviews:
		query = `
			INSERT INTO immersive_review (user_id, word, status, stage, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (user_id, word) DO UPDATE SET
			  status = EXCLUDED.status, stage = EXCLUDED.stage, updated_at = EXCLUDED.updated_at`
	default:
		return fmt.Errorf("unknown resource type %q", resource)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, rec := range recs {
		var execErr error
		switch resource {
		case models.ResourceWords:
			_, execErr = tx.ExecContext(ctx, query, r.userID, rec.Word, rec.Count, rec.UpdatedAt)
		case models.ResourceFlashcards:
			_, execErr = tx.ExecContext(ctx, query, r.userID, rec.Word, rec.ReviewCount, rec.MasteryLevel, rec.UpdatedAt)
		case models.ResourceReviews:
			_, execErr = tx.ExecContext(ctx, query, r.userID, rec.Word, rec.Status.String(), rec.Stage, rec.UpdatedAt)
		}
		if execErr != nil {
			return fmt.Errorf("upsert %s/%s: %w", resource, rec.Word, execErr)
		}
	}
	return tx.Commit()
}

// Delete implements RemoteStore.
func (r *PostgresRemote) Delete(ctx context.Context, resource models.ResourceType, word string) error {
	table, ok := resourceTables[resource]
	if !ok {
		return fmt.Errorf("unknown resource type %q", resource)
	}
	_, err := r.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND word = $2`, table),
		r.userID, word)
	return err
}

// Blacklist implements RemoteStore.
func (r *PostgresRemote) Blacklist(ctx context.Context, word string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sync_blacklist (user_id, word, added_at) VALUES ($1, $2, NOW())
		 ON CONFLICT (user_id, word) DO NOTHING`,
		r.userID, word)
	return err
}

func selectColumns(resource models.ResourceType) string {
	switch resource {
	case models.ResourceWords:
		return "t.count"
	case models.ResourceFlashcards:
		return "t.review_count, t.mastery_level"
	default:
		return "t.status, t.stage"
	}
}

type remoteScanner interface {
	Scan(dest ...interface{}) error
}

func scanRemote(resource models.ResourceType, row remoteScanner) (RemoteRecord, error) {
	var rec RemoteRecord
	var err error
	switch resource {
	case models.ResourceWords:
		err = row.Scan(&rec.Word, &rec.Count, &rec.UpdatedAt)
	case models.ResourceFlashcards:
		err = row.Scan(&rec.Word, &rec.ReviewCount, &rec.MasteryLevel, &rec.UpdatedAt)
	default:
		var status string
		if err = row.Scan(&rec.Word, &status, &rec.Stage, &rec.UpdatedAt); err == nil {
			err = rec.Status.UnmarshalText([]byte(status))
		}
	}
	if err != nil {
		return RemoteRecord{}, err
	}
	return rec, nil
}
