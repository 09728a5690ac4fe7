package models

import "time"

// LookupStat is the raw lookup history for a word: how often the user looked
// it up and in which contexts. This is the "word lookup counter" resource in
// sync terms; count only ever grows.
type LookupStat struct {
	Word      string      `json:"word"`
	Count     int         `json:"count"`
	Contexts  []string    `json:"contexts"`
	Lookups   []time.Time `json:"lookups"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// LatestContext returns the most recent context snippet, or "".
func (s LookupStat) LatestContext() string {
	if len(s.Contexts) == 0 {
		return ""
	}
	return s.Contexts[len(s.Contexts)-1]
}

// FlashcardStat is the per-word flashcard mastery counter: how many session
// completions the word has seen and the highest mastery level reached. Both
// fields are monotonic, which is what makes the sync ratchet safe.
type FlashcardStat struct {
	Word         string    `json:"word" db:"word"`
	ReviewCount  int       `json:"review_count" db:"review_count"`
	MasteryLevel int       `json:"mastery_level" db:"mastery_level"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}
