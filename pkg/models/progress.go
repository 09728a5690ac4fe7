package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
	"time"
)

// WordState is the long-term learning state of a word. A word is in exactly
// one state at a time; the state machine only moves forward except for the
// explicit "undo today" operation.
type WordState int

const (
	// StatePending means the word has been looked up but not yet drilled.
	StatePending WordState = iota + 1
	// StateReviewing means the word is climbing the interval ladder.
	StateReviewing
	// StateMastered means the word finished the interval ladder.
	StateMastered
)

var stateNames = map[WordState]string{
	StatePending:   "pending",
	StateReviewing: "reviewing",
	StateMastered:  "mastered",
}

var stateByName = map[string]WordState{
	"pending":   StatePending,
	"reviewing": StateReviewing,
	"mastered":  StateMastered,
}

// String returns the lowercase state name, or "state(n)" for invalid values.
func (s WordState) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Rank orders states for the sync ratchet: pending < reviewing < mastered.
func (s WordState) Rank() int { return int(s) }

// Valid reports whether s is one of the three defined states.
func (s WordState) Valid() bool {
	_, ok := stateNames[s]
	return ok
}

// MarshalText implements encoding.TextMarshaler.
func (s WordState) MarshalText() ([]byte, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid word state: %d", int(s))
	}
	return []byte(name), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *WordState) UnmarshalText(text []byte) error {
	v, ok := stateByName[string(text)]
	if !ok {
		return fmt.Errorf("invalid word state: %q", text)
	}
	*s = v
	return nil
}

// Value implements driver.Valuer so the state is stored as text.
func (s WordState) Value() (driver.Value, error) {
	name, ok := stateNames[s]
	if !ok {
		return nil, fmt.Errorf("invalid word state: %d", int(s))
	}
	return name, nil
}

// Scan implements sql.Scanner.
func (s *WordState) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		return s.UnmarshalText([]byte(v))
	case []byte:
		return s.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into WordState", src)
	}
}

// WordProgress is the per-word learning record. One record per distinct
// word; the state column makes the one-state-at-a-time invariant structural
// instead of spreading a word across separate collections.
//
// UpdatedAt is bumped on every mutation and serves as the sync cursor field.
type WordProgress struct {
	Word         string     `json:"word" db:"word"`
	State        WordState  `json:"state" db:"state"`
	Stage        int        `json:"stage" db:"stage"` // index into the interval ladder, reviewing only
	AddedAt      time.Time  `json:"added_at" db:"added_at"`
	LastUsedAt   *time.Time `json:"last_used_at" db:"last_used_at"`
	NextReviewAt *time.Time `json:"next_review_at" db:"next_review_at"` // reviewing only
	MasteredAt   *time.Time `json:"mastered_at" db:"mastered_at"`       // mastered only
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// NormalizeWord lowercases and trims a word to its canonical key form.
func NormalizeWord(word string) string {
	return strings.ToLower(strings.TrimSpace(word))
}

// NewPendingWord creates a fresh record in the pending state.
func NewPendingWord(word string, now time.Time) *WordProgress {
	return &WordProgress{
		Word:      NormalizeWord(word),
		State:     StatePending,
		AddedAt:   now,
		UpdatedAt: now,
	}
}
