package ebbinghaus

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/wordflow/internal/store"
	"github.com/example/wordflow/pkg/models"
)

// day returns noon UTC of the given day offset from a fixed epoch.
func day(n int) time.Time {
	return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC).AddDate(0, 0, n)
}

func newTestScheduler(t *testing.T, now *time.Time) (*Scheduler, *store.Store) {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	s := New(st, WithNow(func() time.Time { return *now }))
	return s, st
}

func TestTrackWordIsIdempotent(t *testing.T) {
	now := day(0)
	s, st := newTestScheduler(t, &now)

	require.NoError(t, s.TrackWord("Apple"))
	rec, err := st.GetProgress("apple")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatePending, rec.State)

	added := rec.AddedAt
	now = day(1)
	require.NoError(t, s.TrackWord("apple"))
	rec, err = st.GetProgress("apple")
	require.NoError(t, err)
	assert.True(t, rec.AddedAt.Equal(added), "re-tracking must not reset addedAt")
}

func TestLadderProgression(t *testing.T) {
	// Property: under "used" events only, stage is non-decreasing and
	// nextReviewAt strictly increases until the word masters.
	now := day(0)
	s, st := newTestScheduler(t, &now)
	require.NoError(t, s.TrackWord("apple"))

	var lastNext time.Time
	lastStage := -1
	for i, interval := range Intervals {
		require.NoError(t, s.RecordUsage("apple", true))
		rec, err := st.GetProgress("apple")
		require.NoError(t, err)
		require.Equal(t, models.StateReviewing, rec.State, "use %d", i+1)
		assert.Equal(t, i, rec.Stage)
		assert.Greater(t, rec.Stage, lastStage)
		lastStage = rec.Stage

		require.NotNil(t, rec.NextReviewAt)
		assert.True(t, rec.NextReviewAt.Equal(now.AddDate(0, 0, interval)))
		assert.True(t, rec.NextReviewAt.After(lastNext), "nextReviewAt must strictly increase")
		lastNext = *rec.NextReviewAt
	}

	// One more use from the top stage masters the word.
	require.NoError(t, s.RecordUsage("apple", true))
	rec, err := st.GetProgress("apple")
	require.NoError(t, err)
	assert.Equal(t, models.StateMastered, rec.State)
	assert.Nil(t, rec.NextReviewAt)
	require.NotNil(t, rec.MasteredAt)
	assert.True(t, rec.MasteredAt.Equal(now))
}

func TestForgottenAnswerLeavesStateAlone(t *testing.T) {
	now := day(0)
	s, st := newTestScheduler(t, &now)
	require.NoError(t, s.TrackWord("apple"))

	require.NoError(t, s.RecordUsage("apple", false))
	rec, err := st.GetProgress("apple")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, rec.State)
}

func TestDueTodayCoolingOff(t *testing.T) {
	// A word added today is not due until tomorrow; once used it must not
	// reappear before its next review date.
	now := day(0)
	s, _ := newTestScheduler(t, &now)
	require.NoError(t, s.TrackWord("apple"))

	due, err := s.DueToday()
	require.NoError(t, err)
	assert.Empty(t, due, "same-day words get a cooling-off day")

	now = day(1)
	due, err = s.DueToday()
	require.NoError(t, err)
	assert.Equal(t, []string{"apple"}, due)

	// Confirmed used on day 1: next review lands on day 2.
	require.NoError(t, s.RecordUsage("apple", true))
	due, err = s.DueToday()
	require.NoError(t, err)
	assert.Empty(t, due, "must not be due again until day 2")

	now = day(2)
	due, err = s.DueToday()
	require.NoError(t, err)
	assert.Equal(t, []string{"apple"}, due)
}

func TestDueTodayCap(t *testing.T) {
	now := day(0)
	s, _ := newTestScheduler(t, &now)

	for i := 0; i < MaxDailyReviewWords+5; i++ {
		require.NoError(t, s.TrackWord(fmt.Sprintf("word%02d", i)))
	}
	now = day(1)
	due, err := s.DueToday()
	require.NoError(t, err)
	assert.Len(t, due, MaxDailyReviewWords)
}

func TestSessionWordListMemoizedPerDay(t *testing.T) {
	now := day(0)
	s, _ := newTestScheduler(t, &now)
	require.NoError(t, s.TrackWord("apple"))
	require.NoError(t, s.TrackWord("banana"))

	now = day(1)
	list, err := s.SessionWordList()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"apple", "banana"}, list)

	// A new lookup mid-day must not grow the materialized list.
	require.NoError(t, s.TrackWord("cherry"))
	list, err = s.SessionWordList()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"apple", "banana"}, list)

	// A confirmed use shrinks it.
	require.NoError(t, s.RecordUsage("apple", true))
	list, err = s.SessionWordList()
	require.NoError(t, err)
	assert.Equal(t, []string{"banana"}, list)

	// The next day rebuilds from scratch; cherry is past cooling-off now.
	now = day(2)
	list, err = s.SessionWordList()
	require.NoError(t, err)
	assert.Contains(t, list, "banana")
	assert.Contains(t, list, "cherry")
}

func TestRecordUsageFromText(t *testing.T) {
	now := day(0)
	s, st := newTestScheduler(t, &now)
	require.NoError(t, s.TrackWord("apple"))
	require.NoError(t, s.TrackWord("pine"))

	now = day(1)
	matched, err := s.RecordUsageFromText("I ate an Apple under a pineapple tree.", true)
	require.NoError(t, err)
	assert.Equal(t, []string{"apple"}, matched, "whole-word match only: pineapple must not match pine")

	rec, err := st.GetProgress("apple")
	require.NoError(t, err)
	assert.Equal(t, models.StateReviewing, rec.State)

	rec, err = st.GetProgress("pine")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, rec.State, "unmatched words stay targeted")

	list, err := s.SessionWordList()
	require.NoError(t, err)
	assert.Equal(t, []string{"pine"}, list)
}

func TestRecordUsageFromTextDisabled(t *testing.T) {
	now := day(1)
	s, _ := newTestScheduler(t, &now)
	matched, err := s.RecordUsageFromText("anything", false)
	require.NoError(t, err)
	assert.Empty(t, matched)
}

func TestUndoTodayStepsReviewingBack(t *testing.T) {
	now := day(0)
	s, st := newTestScheduler(t, &now)
	require.NoError(t, s.TrackWord("apple"))

	now = day(1)
	require.NoError(t, s.RecordUsage("apple", true)) // stage 0
	require.NoError(t, s.RecordUsage("apple", true)) // stage 1

	require.NoError(t, s.UndoToday())
	rec, err := st.GetProgress("apple")
	require.NoError(t, err)
	assert.Equal(t, models.StateReviewing, rec.State)
	assert.Equal(t, 0, rec.Stage)
	require.NotNil(t, rec.NextReviewAt)
	assert.False(t, rec.NextReviewAt.After(now), "stepped-back word is due again today")
}

func TestUndoTodayDropsStageZeroToPending(t *testing.T) {
	now := day(0)
	s, st := newTestScheduler(t, &now)
	require.NoError(t, s.TrackWord("apple"))

	now = day(1)
	require.NoError(t, s.RecordUsage("apple", true)) // stage 0, used today

	require.NoError(t, s.UndoToday())
	rec, err := st.GetProgress("apple")
	require.NoError(t, err)
	assert.Equal(t, models.StatePending, rec.State)
	assert.True(t, rec.AddedAt.Before(time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC)),
		"addedAt dated yesterday so the word is due again")

	due, err := s.DueToday()
	require.NoError(t, err)
	assert.Equal(t, []string{"apple"}, due)
}

func TestUndoTodayRevertsFreshMastery(t *testing.T) {
	now := day(0)
	s, st := newTestScheduler(t, &now)
	require.NoError(t, s.TrackWord("apple"))
	for range Intervals {
		require.NoError(t, s.RecordUsage("apple", true))
	}
	require.NoError(t, s.RecordUsage("apple", true))
	rec, err := st.GetProgress("apple")
	require.NoError(t, err)
	require.Equal(t, models.StateMastered, rec.State)

	require.NoError(t, s.UndoToday())
	rec, err = st.GetProgress("apple")
	require.NoError(t, err)
	assert.Equal(t, models.StateReviewing, rec.State)
	assert.Equal(t, len(Intervals)-1, rec.Stage)
	assert.Nil(t, rec.MasteredAt)
}

func TestUndoTodayIgnoresOldProgress(t *testing.T) {
	now := day(0)
	s, st := newTestScheduler(t, &now)
	require.NoError(t, s.TrackWord("apple"))
	require.NoError(t, s.RecordUsage("apple", true)) // used day 0

	now = day(3)
	require.NoError(t, s.UndoToday())
	rec, err := st.GetProgress("apple")
	require.NoError(t, err)
	assert.Equal(t, models.StateReviewing, rec.State)
	assert.Equal(t, 0, rec.Stage, "progress from previous days is untouched")
}

func TestForceAllDue(t *testing.T) {
	now := day(0)
	s, _ := newTestScheduler(t, &now)
	require.NoError(t, s.TrackWord("apple"))  // pending, added today
	require.NoError(t, s.TrackWord("banana")) // pending, added today
	require.NoError(t, s.RecordUsage("banana", true))

	// Neither word is naturally due today.
	list, err := s.SessionWordList()
	require.NoError(t, err)
	assert.Empty(t, list)

	n, err := s.ForceAllDue()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err = s.SessionWordList()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"apple", "banana"}, list)
}

func TestToggleWordIsIdempotentRoundTrip(t *testing.T) {
	now := day(0)
	s, st := newTestScheduler(t, &now)
	require.NoError(t, s.TrackWord("apple"))
	require.NoError(t, s.RecordUsage("apple", true)) // reviewing

	// present -> absent
	require.NoError(t, s.ToggleWord("apple"))
	rec, err := st.GetProgress("apple")
	require.NoError(t, err)
	assert.Nil(t, rec)

	// absent -> present (as pending, ready to climb again)
	require.NoError(t, s.ToggleWord("apple"))
	rec, err = st.GetProgress("apple")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, models.StatePending, rec.State)
}

func TestExactlyOneStateAtATime(t *testing.T) {
	// The single state-tagged record makes two-states-at-once structurally
	// impossible; walk a word through the whole ladder and check.
	now := day(0)
	s, st := newTestScheduler(t, &now)
	require.NoError(t, s.TrackWord("apple"))

	for i := 0; i <= len(Intervals); i++ {
		recs, err := st.GetAllProgress()
		require.NoError(t, err)
		require.Len(t, recs, 1)
		assert.True(t, recs[0].State.Valid())
		require.NoError(t, s.RecordUsage("apple", true))
	}
}
