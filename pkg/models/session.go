package models

import "time"

// CardView is one flashcard in the active drilling session: a word, a cached
// example context, and the in-session correctness counter.
type CardView struct {
	Word         string `json:"word"`
	Context      string `json:"context"`
	CorrectCount int    `json:"correct_count"` // 0..2, reset to 0 on "forgot"
}

// SessionSnapshot round-trips a drilling session exactly: deck order,
// position and counters survive a restart verbatim.
type SessionSnapshot struct {
	Deck                []CardView `json:"deck"`
	CurrentIndex        int        `json:"current_index"`
	WordsCompleted      int        `json:"words_completed"`
	ProgressScore       float64    `json:"progress_score"`
	LastReviewTime      time.Time  `json:"last_review_time"`
	TotalWordsInHistory int        `json:"total_words_in_history"`
}

// Empty reports whether the snapshot holds no deck. An empty snapshot is a
// valid state, not an error: a new deck is generated on the next start.
func (s *SessionSnapshot) Empty() bool {
	return s == nil || len(s.Deck) == 0
}
