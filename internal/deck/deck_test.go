package deck

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wordflow/pkg/models"
)

type fakeRecorder struct {
	calls []struct {
		word       string
		remembered bool
	}
}

func (f *fakeRecorder) RecordUsage(word string, remembered bool) error {
	f.calls = append(f.calls, struct {
		word       string
		remembered bool
	}{word, remembered})
	return nil
}

type fakeDeleter struct {
	deleted []string
}

func (f *fakeDeleter) DeleteWordPermanently(word string) error {
	f.deleted = append(f.deleted, word)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeRecorder, *fakeDeleter) {
	t.Helper()
	rec := &fakeRecorder{}
	del := &fakeDeleter{}
	e := New(rec, del,
		WithRand(rand.New(rand.NewSource(1))),
		WithNow(func() time.Time { return time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC) }))
	return e, rec, del
}

func restoreDeck(e *Engine, cards []models.CardView, index int) {
	e.Restore(&models.SessionSnapshot{Deck: cards, CurrentIndex: index})
}

func words(cards []models.CardView) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.Word
	}
	return out
}

func pending(word string, added time.Time) models.WordProgress {
	return models.WordProgress{Word: word, State: models.StatePending, AddedAt: added, UpdatedAt: added}
}

func reviewing(word string, next time.Time) models.WordProgress {
	return models.WordProgress{Word: word, State: models.StateReviewing, NextReviewAt: &next, UpdatedAt: next}
}

func TestGenerateBalancesNewAndDue(t *testing.T) {
	e, _, _ := newTestEngine(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	var all []models.WordProgress
	hist := map[string]models.LookupStat{}
	for i := 0; i < 30; i++ {
		w := "new" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		all = append(all, pending(w, now.AddDate(0, 0, -2)))
		hist[w] = models.LookupStat{Word: w, Count: 1}
	}
	for i := 0; i < 30; i++ {
		w := "due" + string(rune('a'+i%26)) + string(rune('a'+i/26))
		all = append(all, reviewing(w, now.Add(-time.Hour)))
		hist[w] = models.LookupStat{Word: w, Count: 1}
	}

	e.Generate(all, hist)
	require.Equal(t, Size, e.Remaining())

	var newCount, dueCount int
	for _, card := range e.Snapshot().Deck {
		switch card.Word[:3] {
		case "new":
			newCount++
		case "due":
			dueCount++
		}
	}
	assert.Equal(t, 12, newCount, "60%% of the deck should be new words")
	assert.Equal(t, 8, dueCount, "40%% of the deck should be due reviews")
}

func TestGenerateOnlyOnePool(t *testing.T) {
	e, _, _ := newTestEngine(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	all := []models.WordProgress{
		pending("alpha", now.AddDate(0, 0, -1)),
		pending("beta", now.AddDate(0, 0, -1)),
	}
	e.Generate(all, nil)
	assert.ElementsMatch(t, []string{"alpha", "beta"}, words(e.Snapshot().Deck))
}

func TestGenerateNotDueReviewingExcluded(t *testing.T) {
	e, _, _ := newTestEngine(t)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	all := []models.WordProgress{
		reviewing("later", now.Add(48*time.Hour)),
		reviewing("ready", now.Add(-time.Hour)),
	}
	e.Generate(all, nil)
	assert.Equal(t, []string{"ready"}, words(e.Snapshot().Deck))
}

func TestGenerateFallbackFromHistory(t *testing.T) {
	e, _, _ := newTestEngine(t)
	hist := map[string]models.LookupStat{
		"apple":  {Word: "apple", Count: 2, Contexts: []string{"an apple a day"}},
		"banana": {Word: "banana", Count: 1},
		"never":  {Word: "never", Count: 0},
	}
	e.Generate(nil, hist)
	assert.ElementsMatch(t, []string{"apple", "banana"}, words(e.Snapshot().Deck))

	for _, card := range e.Snapshot().Deck {
		if card.Word == "apple" {
			assert.Equal(t, "an apple a day", card.Context)
		}
	}
}

func TestGenerateEmptyHistoryIsNotAnError(t *testing.T) {
	e, _, _ := newTestEngine(t)
	e.Generate(nil, nil)
	assert.Equal(t, 0, e.Remaining())
	assert.Equal(t, 0, e.Completed())
	_, ok := e.Current()
	assert.False(t, ok)
}

func TestAnswerRotation(t *testing.T) {
	// Deck [A,B,C], cursor at A. One correct answer moves A to the back
	// with a counter of 1 and leaves the cursor pointing at B.
	e, rec, _ := newTestEngine(t)
	restoreDeck(e, []models.CardView{{Word: "a"}, {Word: "b"}, {Word: "c"}}, 0)

	res, err := e.Answer(true)
	require.NoError(t, err)
	assert.Equal(t, "a", res.Word)
	assert.False(t, res.Completed)

	snap := e.Snapshot()
	assert.Equal(t, []string{"b", "c", "a"}, words(snap.Deck))
	assert.Equal(t, 1, snap.Deck[2].CorrectCount)
	assert.Equal(t, 0, snap.CurrentIndex)

	cur, ok := e.Current()
	require.True(t, ok)
	assert.Equal(t, "b", cur.Word)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "a", rec.calls[0].word)
	assert.True(t, rec.calls[0].remembered)
}

func TestAnswerSecondCorrectRemovesCard(t *testing.T) {
	// A card with one correct already banked retires on the second correct:
	// removed from the deck, wordsCompleted bumped, cursor wraps from the
	// last slot to 0.
	e, _, _ := newTestEngine(t)
	restoreDeck(e, []models.CardView{{Word: "c"}, {Word: "a"}, {Word: "b", CorrectCount: 1}}, 2)

	res, err := e.Answer(true)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, "b", res.Word)

	snap := e.Snapshot()
	assert.Equal(t, []string{"c", "a"}, words(snap.Deck))
	assert.Equal(t, 1, snap.WordsCompleted)
	assert.Equal(t, 0, snap.CurrentIndex)
}

func TestAnswerForgotResetsCounter(t *testing.T) {
	e, rec, _ := newTestEngine(t)
	restoreDeck(e, []models.CardView{{Word: "a", CorrectCount: 1}, {Word: "b"}}, 0)

	res, err := e.Answer(false)
	require.NoError(t, err)
	assert.False(t, res.Completed)

	snap := e.Snapshot()
	assert.Equal(t, []string{"b", "a"}, words(snap.Deck))
	assert.Equal(t, 0, snap.Deck[1].CorrectCount, "forgot resets the streak")
	assert.Equal(t, 0, snap.WordsCompleted)

	require.Len(t, rec.calls, 1)
	assert.False(t, rec.calls[0].remembered)
}

func TestAnswerEmptyDeck(t *testing.T) {
	e, _, _ := newTestEngine(t)
	_, err := e.Answer(true)
	assert.ErrorIs(t, err, ErrNoActiveCard)
}

func TestMasteryNeedsTwoInARow(t *testing.T) {
	// remembered, forgot, remembered, remembered: the card survives the
	// broken streak and retires only on the second consecutive correct.
	e, _, _ := newTestEngine(t)
	restoreDeck(e, []models.CardView{{Word: "only"}}, 0)

	for i, verdict := range []bool{true, false, true} {
		res, err := e.Answer(verdict)
		require.NoError(t, err)
		assert.False(t, res.Completed, "answer %d must not complete the card", i)
	}
	res, err := e.Answer(true)
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, 0, e.Remaining())
}

func TestDeckInvariantUnderRandomOps(t *testing.T) {
	// Property: any sequence of answers and deletes leaves the deck free of
	// duplicates with a valid cursor.
	e, _, _ := newTestEngine(t)

	cards := make([]models.CardView, 12)
	for i := range cards {
		cards[i] = models.CardView{Word: string(rune('a' + i))}
	}
	restoreDeck(e, cards, 0)

	rng := rand.New(rand.NewSource(42))
	for step := 0; step < 200 && e.Remaining() > 0; step++ {
		switch rng.Intn(4) {
		case 0:
			_, err := e.Answer(false)
			require.NoError(t, err)
		case 3:
			cur, ok := e.Current()
			require.True(t, ok)
			require.NoError(t, e.Delete(cur.Word))
		default:
			_, err := e.Answer(true)
			require.NoError(t, err)
		}

		snap := e.Snapshot()
		seen := map[string]bool{}
		for _, c := range snap.Deck {
			require.False(t, seen[c.Word], "duplicate %q in deck", c.Word)
			seen[c.Word] = true
		}
		if len(snap.Deck) > 0 {
			require.GreaterOrEqual(t, snap.CurrentIndex, 0)
			require.Less(t, snap.CurrentIndex, len(snap.Deck))
		}
	}
}

func TestDeleteUndoesPartialCredit(t *testing.T) {
	e, _, del := newTestEngine(t)
	restoreDeck(e, []models.CardView{{Word: "a"}, {Word: "b"}}, 0)

	_, err := e.Answer(true) // a banks 0.5 and rotates to the back
	require.NoError(t, err)
	assert.InDelta(t, 0.5, e.Score(), 1e-9)

	require.NoError(t, e.Delete("a"))
	assert.InDelta(t, 0, e.Score(), 1e-9)
	assert.Equal(t, []string{"b"}, words(e.Snapshot().Deck))
	assert.Equal(t, []string{"a"}, del.deleted)
}

func TestDeleteUnknownWordStillSignalsDeleter(t *testing.T) {
	e, _, del := newTestEngine(t)
	restoreDeck(e, []models.CardView{{Word: "a"}}, 0)

	require.NoError(t, e.Delete("ghost"))
	assert.Equal(t, 1, e.Remaining())
	assert.Equal(t, []string{"ghost"}, del.deleted)
}

func TestBackgroundReviewMakesLastCardNext(t *testing.T) {
	e, _, _ := newTestEngine(t)
	restoreDeck(e, []models.CardView{{Word: "a"}, {Word: "b"}, {Word: "c"}, {Word: "d"}}, 0)

	e.TriggerBackgroundReview()
	assert.Equal(t, []string{"a", "d", "b", "c"}, words(e.Snapshot().Deck))

	cur, _ := e.Current()
	assert.Equal(t, "a", cur.Word, "the viewed card must not change")
}

func TestBackgroundReviewNeverMovesCursorWord(t *testing.T) {
	for idx := 0; idx < 4; idx++ {
		e, _, _ := newTestEngine(t)
		restoreDeck(e, []models.CardView{{Word: "a"}, {Word: "b"}, {Word: "c"}, {Word: "d"}}, idx)

		before, _ := e.Current()
		e.TriggerBackgroundReview()
		after, ok := e.Current()
		require.True(t, ok)
		assert.Equal(t, before.Word, after.Word, "cursor word changed with index %d", idx)
	}
}

func TestBackgroundReviewSingleCardNoop(t *testing.T) {
	e, _, _ := newTestEngine(t)
	restoreDeck(e, []models.CardView{{Word: "a"}}, 0)

	e.TriggerBackgroundReview()
	assert.Equal(t, []string{"a"}, words(e.Snapshot().Deck))
}

func TestSnapshotRoundTrip(t *testing.T) {
	e, _, _ := newTestEngine(t)
	snap := &models.SessionSnapshot{
		Deck: []models.CardView{
			{Word: "a", Context: "ctx a", CorrectCount: 1},
			{Word: "b"},
			{Word: "c", CorrectCount: 1},
		},
		CurrentIndex:        2,
		WordsCompleted:      4,
		ProgressScore:       3.5,
		LastReviewTime:      time.Date(2024, 3, 10, 11, 55, 0, 0, time.UTC),
		TotalWordsInHistory: 17,
	}
	e.Restore(snap)
	assert.Equal(t, snap, e.Snapshot())
}
