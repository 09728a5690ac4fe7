package syncer

import (
	"context"
	"time"

	"github.com/example/wordflow/pkg/models"
)

// RemoteRecord is the wire shape of one synchronized row. It is a superset
// across resource types; each resource reads only its own fields.
type RemoteRecord struct {
	Word string
	// words resource
	Count int
	// flashcard-progress resource
	ReviewCount  int
	MasteryLevel int
	// immersive-review resource
	Status models.WordState
	Stage  int

	UpdatedAt time.Time
}

// RemoteStore is the sync target. Implementations scope every operation to
// one user identity and filter blacklisted words out of selects at the query
// level.
type RemoteStore interface {
	// SelectSince returns rows with updated_at strictly after since, in
	// updated_at order.
	SelectSince(ctx context.Context, resource models.ResourceType, since time.Time) ([]RemoteRecord, error)
	// SelectFields fetches only the comparison fields for the given words.
	// Callers batch the key list; missing words are absent from the map.
	SelectFields(ctx context.Context, resource models.ResourceType, words []string) (map[string]RemoteRecord, error)
	// Upsert writes records with on-conflict-update semantics.
	Upsert(ctx context.Context, resource models.ResourceType, recs []RemoteRecord) error
	// Delete removes one word's row for a resource.
	Delete(ctx context.Context, resource models.ResourceType, word string) error
	// Blacklist terminally excludes a word from all future selects.
	Blacklist(ctx context.Context, word string) error
}
