// Package ebbinghaus advances long-term per-word mastery along a fixed
// interval ladder, independent of any one drilling session.
//
// State machine per word:
//
//	Pending  --used-->  Reviewing(stage=0, nextReviewAt=now+I[0])
//	Reviewing(stage=s) --used--> Mastered            if s+1 >= len(I)
//	                             Reviewing(stage=s+1, nextReviewAt=now+I[s+1])
//	Reviewing(stage=s) --not used--> unchanged
package ebbinghaus

import (
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/example/wordflow/internal/store"
	"github.com/example/wordflow/pkg/models"
)

// Intervals is the fixed review ladder in days. Not configurable.
var Intervals = []int{1, 2, 4, 7, 15, 30}

// MaxDailyReviewWords caps how many words a single day's session targets.
// The cap truncates arbitrarily (first-N in store order) after the union of
// pending and due words; callers must not assume fairness across backlogs.
const MaxDailyReviewWords = 20

// Scheduler owns the per-word state machine and the day's target word list.
// The target list is memoized per calendar day: once built it only shrinks
// as words are confirmed used, so new lookups never grow it mid-day.
type Scheduler struct {
	store *store.Store
	now   func() time.Time

	mu      sync.Mutex
	listDay time.Time // midnight of the day targets was built for
	targets []string
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a scheduler over the given store.
func New(st *store.Store, opts ...Option) *Scheduler {
	s := &Scheduler{store: st, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// TrackWord queues a word for learning. Unknown words become Pending;
// already-tracked words are left untouched, so tracking is idempotent.
func (s *Scheduler) TrackWord(word string) error {
	word = models.NormalizeWord(word)
	if word == "" {
		return nil
	}
	rec, err := s.store.GetProgress(word)
	if err != nil {
		return err
	}
	if rec != nil {
		return nil
	}
	return s.store.PutProgress(models.NewPendingWord(word, s.now()))
}

// RecordUsage advances a word's long-term state after a drilling answer.
// Only a confirmed use ("remembered") moves the state machine; a forgotten
// card is a session-local event and leaves long-term progress unchanged.
func (s *Scheduler) RecordUsage(word string, used bool) error {
	if !used {
		return nil
	}
	return s.advance(models.NormalizeWord(word))
}

// advance applies one forward transition to a word's record.
func (s *Scheduler) advance(word string) error {
	rec, err := s.store.GetProgress(word)
	if err != nil {
		return err
	}
	if rec == nil {
		// First signal for an untracked word starts it at Pending and
		// immediately advances, same as a tracked word being used.
		rec = models.NewPendingWord(word, s.now())
	}

	now := s.now()
	switch rec.State {
	case models.StatePending:
		next := now.AddDate(0, 0, Intervals[0])
		rec.State = models.StateReviewing
		rec.Stage = 0
		rec.NextReviewAt = &next
	case models.StateReviewing:
		if rec.Stage+1 >= len(Intervals) {
			rec.State = models.StateMastered
			rec.NextReviewAt = nil
			mastered := now
			rec.MasteredAt = &mastered
		} else {
			rec.Stage++
			next := now.AddDate(0, 0, Intervals[rec.Stage])
			rec.NextReviewAt = &next
		}
	case models.StateMastered:
		// Already at the top of the ladder; nothing to advance.
	}
	used := now
	rec.LastUsedAt = &used
	rec.UpdatedAt = now

	if err := s.store.PutProgress(rec); err != nil {
		return err
	}
	s.dropTarget(word)
	return nil
}

// DueToday returns the words due for today's session: pending words added
// before today's midnight (one-day cooling-off before first drill) plus
// reviewing words whose next review falls within today. Capped at
// MaxDailyReviewWords.
func (s *Scheduler) DueToday() ([]string, error) {
	now := s.now()
	dayStart := midnight(now)
	dayEnd := dayStart.Add(24 * time.Hour)

	recs, err := s.store.GetAllProgress()
	if err != nil {
		return nil, err
	}

	var due []string
	for _, rec := range recs {
		switch rec.State {
		case models.StatePending:
			if rec.AddedAt.Before(dayStart) {
				due = append(due, rec.Word)
			}
		case models.StateReviewing:
			if rec.NextReviewAt != nil && !rec.NextReviewAt.After(dayEnd) {
				due = append(due, rec.Word)
			}
		}
	}
	if len(due) > MaxDailyReviewWords {
		due = due[:MaxDailyReviewWords]
	}
	return due, nil
}

// SessionWordList returns the remaining target words for today, building the
// list on first call of each calendar day. The materialized list is an
// immutable target: it shrinks as words are confirmed used and is never
// grown mid-day by new lookups.
func (s *Scheduler) SessionWordList() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionWordListLocked()
}

func (s *Scheduler) sessionWordListLocked() ([]string, error) {
	today := midnight(s.now())
	if !s.listDay.Equal(today) {
		due, err := s.DueToday()
		if err != nil {
			return nil, err
		}
		s.listDay = today
		s.targets = due
	}
	out := make([]string, len(s.targets))
	copy(out, s.targets)
	return out, nil
}

func (s *Scheduler) dropTarget(word string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, w := range s.targets {
		if w == word {
			s.targets = append(s.targets[:i], s.targets[i+1:]...)
			return
		}
	}
}

// RecordUsageFromText scans the day's target words against a text blob using
// case-insensitive whole-word matching. Every match advances that word's
// state and removes it from the remaining targets; non-matches stay targeted
// for a future attempt. Returns the words that matched.
//
// This is pure boundary matching, no semantic understanding: the signal is
// "the text naturally used the word".
func (s *Scheduler) RecordUsageFromText(text string, enabled bool) ([]string, error) {
	if !enabled || text == "" {
		return nil, nil
	}

	s.mu.Lock()
	targets, err := s.sessionWordListLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	var matched []string
	for _, word := range targets {
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		if err != nil {
			log.Printf("skipping unmatchable target word %q: %v", word, err)
			continue
		}
		if !re.MatchString(text) {
			continue
		}
		if err := s.advance(word); err != nil {
			return matched, fmt.Errorf("failed to advance %q: %w", word, err)
		}
		matched = append(matched, word)
	}
	return matched, nil
}

// UndoToday reverts today's accidental or forced progress without losing any
// word. Reviewing words used today step back one stage (dropping to Pending
// below stage zero, dated yesterday so they are due again); words mastered
// today return to Reviewing at the last stage, due today.
func (s *Scheduler) UndoToday() error {
	now := s.now()
	dayStart := midnight(now)

	recs, err := s.store.GetAllProgress()
	if err != nil {
		return err
	}

	for i := range recs {
		rec := &recs[i]
		switch rec.State {
		case models.StateReviewing:
			if rec.LastUsedAt == nil || rec.LastUsedAt.Before(dayStart) {
				continue
			}
			if rec.Stage == 0 {
				rec.State = models.StatePending
				rec.Stage = 0
				rec.AddedAt = dayStart.AddDate(0, 0, -1)
				rec.NextReviewAt = nil
				rec.LastUsedAt = nil
			} else {
				rec.Stage--
				due := dayStart
				rec.NextReviewAt = &due
			}
		case models.StateMastered:
			if rec.MasteredAt == nil || rec.MasteredAt.Before(dayStart) {
				continue
			}
			rec.State = models.StateReviewing
			rec.Stage = len(Intervals) - 1
			rec.MasteredAt = nil
			due := dayStart
			rec.NextReviewAt = &due
		default:
			continue
		}
		rec.UpdatedAt = now
		if err := s.store.PutProgress(rec); err != nil {
			return err
		}
	}

	// The day's target list is stale after an undo; rebuild lazily.
	s.mu.Lock()
	s.listDay = time.Time{}
	s.targets = nil
	s.mu.Unlock()
	return nil
}

// ForceAllDue adds every pending and reviewing word to today's target list
// regardless of due dates. Debug and recovery escape hatch. Returns the
// number of words targeted.
func (s *Scheduler) ForceAllDue() (int, error) {
	recs, err := s.store.GetAllProgress()
	if err != nil {
		return 0, err
	}
	var targets []string
	for _, rec := range recs {
		if rec.State == models.StatePending || rec.State == models.StateReviewing {
			targets = append(targets, rec.Word)
		}
	}

	s.mu.Lock()
	s.listDay = midnight(s.now())
	s.targets = targets
	s.mu.Unlock()
	return len(targets), nil
}

// ToggleWord flips a word's membership in the review system: a tracked word
// is removed from whichever state it currently occupies, an untracked word
// is queued as Pending. Remove-if-present semantics, never an error for an
// absent word, so calling it twice restores the original state.
func (s *Scheduler) ToggleWord(word string) error {
	word = models.NormalizeWord(word)
	rec, err := s.store.GetProgress(word)
	if err != nil {
		return err
	}
	if rec != nil {
		if err := s.store.DeleteProgress(word); err != nil {
			return err
		}
		s.dropTarget(word)
		return nil
	}
	return s.store.PutProgress(models.NewPendingWord(word, s.now()))
}
