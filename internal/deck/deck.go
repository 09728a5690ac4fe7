// Package deck builds and rotates the bounded working set of flashcards for
// one drilling session. All state here is in-memory and session-scoped; the
// coordinator persists snapshots and serializes mutations.
package deck

import (
	"errors"
	"math/rand"
	"sort"
	"time"

	"github.com/example/wordflow/pkg/models"
)

const (
	// Size is the maximum number of cards in a deck.
	Size = 20
	// MasteryThreshold is the in-session correct streak that retires a card.
	MasteryThreshold = 2
	// NewWordRatio is the target share of new (pending) words in a fresh deck.
	NewWordRatio = 0.6
	// ReviewInterval is how often the silent background reinsertion fires.
	ReviewInterval = 5 * time.Minute

	// partialCredit is the score earned per remembered answer, and returned
	// when a partially-learned card is deleted.
	partialCredit = 0.5
)

// ErrNoActiveCard is returned when an answer arrives with an empty deck.
var ErrNoActiveCard = errors.New("deck: no active card")

// UsageRecorder receives exactly one usage signal per answered card.
type UsageRecorder interface {
	RecordUsage(word string, remembered bool) error
}

// WordDeleter permanently removes a word from the raw lookup history.
type WordDeleter interface {
	DeleteWordPermanently(word string) error
}

// AnswerResult reports what an answer did to the deck.
type AnswerResult struct {
	Word       string
	Remembered bool
	// Completed is true when the card hit the mastery threshold and was
	// removed from the deck.
	Completed bool
}

// Engine holds one session's deck and counters. It is not safe for
// concurrent use; callers serialize mutations (see session.Coordinator).
type Engine struct {
	recorder UsageRecorder
	deleter  WordDeleter
	rng      *rand.Rand
	now      func() time.Time

	deck                []models.CardView
	currentIndex        int
	wordsCompleted      int
	progressScore       float64
	lastReviewTime      time.Time
	totalWordsInHistory int
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand overrides the shuffle source, for deterministic tests.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) { e.rng = rng }
}

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New creates an engine with an empty deck.
func New(recorder UsageRecorder, deleter WordDeleter, opts ...Option) *Engine {
	e := &Engine{
		recorder: recorder,
		deleter:  deleter,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Generate builds a fresh deck of up to Size cards from the known progress
// records, balancing new (pending) against due (reviewing) words at roughly
// NewWordRatio when both pools are non-empty. With no balancing signal at
// all it falls back to a uniform sample of any word with a recorded lookup.
// Output order is session-random; candidate pools keep insertion order so a
// seeded source is deterministic.
//
// An empty history is not an error: the deck comes out empty and the session
// reports nothing to review.
func (e *Engine) Generate(all []models.WordProgress, history map[string]models.LookupStat) {
	now := e.now()

	var newPool, duePool []string
	for _, rec := range all {
		switch rec.State {
		case models.StatePending:
			newPool = append(newPool, rec.Word)
		case models.StateReviewing:
			if rec.NextReviewAt != nil && !rec.NextReviewAt.After(now) {
				duePool = append(duePool, rec.Word)
			}
		}
	}

	var words []string
	switch {
	case len(newPool) > 0 && len(duePool) > 0:
		ratio := NewWordRatio
		wantNew := int(float64(Size)*ratio + 0.5)
		wantDue := Size - wantNew
		if len(newPool) < wantNew {
			wantNew = len(newPool)
			wantDue = Size - wantNew
		}
		if len(duePool) < wantDue {
			wantDue = len(duePool)
			if extra := Size - wantNew - wantDue; extra > 0 && len(newPool) > wantNew {
				wantNew = min(len(newPool), wantNew+extra)
			}
		}
		words = append(words, newPool[:wantNew]...)
		words = append(words, duePool[:wantDue]...)
	case len(newPool) > 0:
		words = append(words, newPool[:min(len(newPool), Size)]...)
	case len(duePool) > 0:
		words = append(words, duePool[:min(len(duePool), Size)]...)
	default:
		// No balancing signal: uniform sample over anything ever looked up.
		for word, stat := range history {
			if stat.Count > 0 {
				words = append(words, word)
			}
		}
		// Map order is random; make it deterministic before sampling.
		sort.Strings(words)
		e.rng.Shuffle(len(words), func(i, j int) { words[i], words[j] = words[j], words[i] })
		if len(words) > Size {
			words = words[:Size]
		}
	}

	seen := make(map[string]bool, len(words))
	deck := make([]models.CardView, 0, len(words))
	for _, word := range words {
		if seen[word] {
			continue
		}
		seen[word] = true
		deck = append(deck, models.CardView{Word: word, Context: history[word].LatestContext()})
	}
	e.rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })

	e.deck = deck
	e.currentIndex = 0
	e.wordsCompleted = 0
	e.progressScore = 0
	e.lastReviewTime = now
	e.totalWordsInHistory = len(history)
}

// Answer processes the user's verdict on the current card and rotates the
// deck. Remembered twice in a row retires the card; a forgotten card resets
// its counter and goes to the back. The long-term scheduler hears about the
// answer exactly once.
func (e *Engine) Answer(remembered bool) (AnswerResult, error) {
	if len(e.deck) == 0 {
		return AnswerResult{}, ErrNoActiveCard
	}

	i := e.currentIndex
	card := e.deck[i]
	wasLast := i == len(e.deck)-1
	res := AnswerResult{Word: card.Word, Remembered: remembered}

	if remembered {
		card.CorrectCount++
		e.progressScore += partialCredit
		if card.CorrectCount >= MasteryThreshold {
			e.deck = append(e.deck[:i], e.deck[i+1:]...)
			e.wordsCompleted++
			res.Completed = true
		} else {
			e.deck = append(append(e.deck[:i], e.deck[i+1:]...), card)
		}
	} else {
		card.CorrectCount = 0
		e.deck = append(append(e.deck[:i], e.deck[i+1:]...), card)
	}

	e.reclampIndex(wasLast)

	if err := e.recorder.RecordUsage(card.Word, remembered); err != nil {
		return res, err
	}
	return res, nil
}

// Delete removes a card from the deck and signals permanent deletion of the
// word's lookup history. Partial in-session credit is undone.
func (e *Engine) Delete(word string) error {
	word = models.NormalizeWord(word)
	for i, card := range e.deck {
		if card.Word != word {
			continue
		}
		wasLast := i == len(e.deck)-1
		e.deck = append(e.deck[:i], e.deck[i+1:]...)
		if card.CorrectCount > 0 {
			e.progressScore -= float64(card.CorrectCount) * partialCredit
			if e.progressScore < 0 {
				e.progressScore = 0
			}
		}
		e.reclampIndex(wasLast)
		break
	}
	return e.deleter.DeleteWordPermanently(word)
}

// reclampIndex recomputes the current index after a removal or rotation so
// it never points out of bounds: answering the last element wraps to 0,
// otherwise the index is clamped to the new length.
func (e *Engine) reclampIndex(wasLast bool) {
	if len(e.deck) == 0 {
		e.currentIndex = 0
		return
	}
	if wasLast {
		e.currentIndex = 0
		return
	}
	if e.currentIndex > len(e.deck)-1 {
		e.currentIndex = len(e.deck) - 1
	}
}

// TriggerBackgroundReview silently pulls the last card forward so it becomes
// the very next one. No user-visible effect until the user advances: the
// card currently being viewed never changes while the deck has more than
// one card.
func (e *Engine) TriggerBackgroundReview() {
	e.lastReviewTime = e.now()
	if len(e.deck) <= 1 {
		return
	}
	last := e.deck[len(e.deck)-1]
	e.deck = e.deck[:len(e.deck)-1]
	at := e.currentIndex + 1
	if at > len(e.deck) {
		at = len(e.deck)
	}
	e.deck = append(e.deck[:at], append([]models.CardView{last}, e.deck[at:]...)...)
}

// Current returns the card under the cursor, if any.
func (e *Engine) Current() (models.CardView, bool) {
	if len(e.deck) == 0 {
		return models.CardView{}, false
	}
	return e.deck[e.currentIndex], true
}

// Remaining returns how many cards are still in the deck.
func (e *Engine) Remaining() int { return len(e.deck) }

// Completed returns how many cards this session has retired.
func (e *Engine) Completed() int { return e.wordsCompleted }

// Score returns the soft engagement score for this session.
func (e *Engine) Score() float64 { return e.progressScore }

// Snapshot captures the full session state for persistence.
func (e *Engine) Snapshot() *models.SessionSnapshot {
	deck := make([]models.CardView, len(e.deck))
	copy(deck, e.deck)
	return &models.SessionSnapshot{
		Deck:                deck,
		CurrentIndex:        e.currentIndex,
		WordsCompleted:      e.wordsCompleted,
		ProgressScore:       e.progressScore,
		LastReviewTime:      e.lastReviewTime,
		TotalWordsInHistory: e.totalWordsInHistory,
	}
}

// Restore loads a persisted snapshot verbatim, no merging. The restored
// session resumes at the exact card it was on.
func (e *Engine) Restore(snap *models.SessionSnapshot) {
	e.deck = make([]models.CardView, len(snap.Deck))
	copy(e.deck, snap.Deck)
	e.currentIndex = snap.CurrentIndex
	if e.currentIndex >= len(e.deck) {
		e.currentIndex = 0
	}
	e.wordsCompleted = snap.WordsCompleted
	e.progressScore = snap.ProgressScore
	e.lastReviewTime = snap.LastReviewTime
	e.totalWordsInHistory = snap.TotalWordsInHistory
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
