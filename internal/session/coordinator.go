// Package session glues the deck engine and the long-term scheduler to one
// active drilling session. The coordinator owns all session state and
// serializes every deck mutation — user answers and the background
// reinsertion timer alike — through one mutation queue, so the timer's
// pop/insert can never interleave with a user-driven splice.
package session

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/example/wordflow/internal/deck"
	"github.com/example/wordflow/internal/ebbinghaus"
	"github.com/example/wordflow/internal/history"
	"github.com/example/wordflow/internal/store"
	"github.com/example/wordflow/pkg/models"
)

// saveDelay coalesces snapshot writes for bursts of answers. The snapshot is
// always flushed on Close; a crash in between loses at most one answer.
const saveDelay = 250 * time.Millisecond

// ErrClosed is returned for operations on a closed coordinator.
var ErrClosed = errors.New("session: coordinator closed")

type task struct {
	fn   func() error
	done chan error
}

// Coordinator is the integration point other code calls into. One instance
// owns one logical drilling session.
type Coordinator struct {
	store   *store.Store
	history *history.Provider
	sched   *ebbinghaus.Scheduler
	deck    *deck.Engine
	now     func() time.Time

	ops       chan task
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	// guarded by the run loop (single consumer)
	dirty     bool
	saveTimer *time.Timer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// New wires a coordinator over the store, history provider, scheduler and
// deck engine, and starts its mutation loop.
func New(st *store.Store, hist *history.Provider, sched *ebbinghaus.Scheduler, dk *deck.Engine, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   st,
		history: hist,
		sched:   sched,
		deck:    dk,
		now:     time.Now,
		ops:     make(chan task),
		closed:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.wg.Add(1)
	go c.run()
	return c
}

func (c *Coordinator) run() {
	defer c.wg.Done()
	for {
		select {
		case t := <-c.ops:
			t.done <- t.fn()
		case <-c.closed:
			return
		}
	}
}

// do runs fn on the mutation loop and waits for its result.
func (c *Coordinator) do(fn func() error) error {
	t := task{fn: fn, done: make(chan error, 1)}
	select {
	case c.ops <- t:
		return <-t.done
	case <-c.closed:
		return ErrClosed
	}
}

// Start restores the saved session if a non-empty one exists (verbatim, no
// merge), otherwise generates a new deck from current progress and lookup
// history. An unavailable or empty history yields an empty deck — "nothing
// to review", not an error.
func (c *Coordinator) Start() error {
	return c.do(func() error {
		snap, err := c.store.LoadSession()
		if err != nil {
			return err
		}
		if !snap.Empty() {
			c.deck.Restore(snap)
			return nil
		}

		all, err := c.store.GetAllProgress()
		if err != nil {
			return err
		}
		hist, err := c.history.WordHistory()
		if err != nil {
			log.Printf("word history unavailable, starting with empty deck: %v", err)
			hist = nil
		}
		c.deck.Generate(all, hist)
		return c.saveNow()
	})
}

// NewDeck discards the saved session and generates a fresh deck.
func (c *Coordinator) NewDeck() error {
	return c.do(func() error {
		all, err := c.store.GetAllProgress()
		if err != nil {
			return err
		}
		hist, err := c.history.WordHistory()
		if err != nil {
			log.Printf("word history unavailable, starting with empty deck: %v", err)
			hist = nil
		}
		c.deck.Generate(all, hist)
		return c.saveNow()
	})
}

// Answer records the user's verdict on the current card. A completed card
// bumps the word's monotonic flashcard counters for sync.
func (c *Coordinator) Answer(remembered bool) error {
	return c.do(func() error {
		res, err := c.deck.Answer(remembered)
		if err != nil {
			return err
		}
		if res.Completed {
			if err := c.store.BumpFlashcardStat(res.Word, deck.MasteryThreshold, c.now()); err != nil {
				log.Printf("failed to bump flashcard stat for %q: %v", res.Word, err)
			}
		}
		c.scheduleSave()
		return nil
	})
}

// DeleteCard removes a card from the session and permanently deletes the
// word: lookup history, progress record and mastery counters.
func (c *Coordinator) DeleteCard(word string) error {
	return c.do(func() error {
		if err := c.deck.Delete(word); err != nil {
			return err
		}
		if err := c.store.DeleteProgress(word); err != nil {
			return err
		}
		if err := c.store.DeleteFlashcardStat(word); err != nil {
			return err
		}
		c.scheduleSave()
		return nil
	})
}

// BackgroundReview runs the periodic silent reinsertion. Called from the job
// scheduler; the mutation queue keeps it from interleaving with answers.
func (c *Coordinator) BackgroundReview() error {
	return c.do(func() error {
		c.deck.TriggerBackgroundReview()
		c.scheduleSave()
		return nil
	})
}

// RecordLookup stores a dictionary lookup and queues the word for learning.
func (c *Coordinator) RecordLookup(word, context string) error {
	return c.do(func() error {
		if err := c.history.RecordLookup(word, context); err != nil {
			return err
		}
		return c.sched.TrackWord(word)
	})
}

// RecordAssistantText scans an assistant reply for today's target words and
// advances every match. Returns the matched words.
func (c *Coordinator) RecordAssistantText(text string, enabled bool) ([]string, error) {
	var matched []string
	err := c.do(func() error {
		var err error
		matched, err = c.sched.RecordUsageFromText(text, enabled)
		return err
	})
	return matched, err
}

// Current returns the card under the cursor, if any.
func (c *Coordinator) Current() (models.CardView, bool) {
	var card models.CardView
	var ok bool
	_ = c.do(func() error {
		card, ok = c.deck.Current()
		return nil
	})
	return card, ok
}

// Stats returns remaining cards, completed cards and the session score.
func (c *Coordinator) Stats() (remaining, completed int, score float64) {
	_ = c.do(func() error {
		remaining, completed, score = c.deck.Remaining(), c.deck.Completed(), c.deck.Score()
		return nil
	})
	return
}

// scheduleSave marks the session dirty and arms the debounce timer. Runs on
// the mutation loop.
func (c *Coordinator) scheduleSave() {
	c.dirty = true
	if c.saveTimer != nil {
		return
	}
	c.saveTimer = time.AfterFunc(saveDelay, func() {
		// Re-enter through the queue so the write is serialized too.
		_ = c.do(func() error {
			c.saveTimer = nil
			if !c.dirty {
				return nil
			}
			if err := c.saveNow(); err != nil {
				log.Printf("failed to persist session snapshot: %v", err)
			}
			return nil
		})
	})
}

// saveNow persists the snapshot immediately. Runs on the mutation loop.
func (c *Coordinator) saveNow() error {
	c.dirty = false
	return c.store.SaveSession(c.deck.Snapshot(), c.now())
}

// Close flushes any pending snapshot and stops the mutation loop. The last
// persisted snapshot is authoritative on the next start.
func (c *Coordinator) Close() error {
	err := c.do(func() error {
		if c.saveTimer != nil {
			c.saveTimer.Stop()
			c.saveTimer = nil
		}
		if c.dirty {
			return c.saveNow()
		}
		return nil
	})
	c.closeOnce.Do(func() { close(c.closed) })
	c.wg.Wait()
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}
