package models

// ResourceType names one remotely synchronized collection. Each resource has
// its own incremental cursor and its own ratchet comparator.
type ResourceType string

const (
	// ResourceWords carries per-word lookup counters.
	ResourceWords ResourceType = "words"
	// ResourceFlashcards carries flashcard mastery counters.
	ResourceFlashcards ResourceType = "flashcard-progress"
	// ResourceReviews carries the long-term review state and stage.
	ResourceReviews ResourceType = "immersive-review"
)

// Resources lists every synchronized resource type in sync-pass order.
var Resources = []ResourceType{ResourceWords, ResourceFlashcards, ResourceReviews}
