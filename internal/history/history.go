// Package history owns the raw lookup history: every dictionary lookup the
// user makes, with counts, contexts and timestamps. The deck engine samples
// it for card contexts and the sync pass pushes its counters.
package history

import (
	"time"

	"github.com/example/wordflow/internal/store"
	"github.com/example/wordflow/pkg/models"
)

// Provider is the concrete word-history collaborator backed by the local
// store.
type Provider struct {
	store *store.Store
	now   func() time.Time
}

// Option configures a Provider.
type Option func(*Provider)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// New creates a provider over the given store.
func New(st *store.Store, opts ...Option) *Provider {
	p := &Provider{store: st, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RecordLookup registers one lookup of a word with its surrounding context.
func (p *Provider) RecordLookup(word, context string) error {
	return p.store.RecordLookup(word, context, p.now())
}

// WordHistory returns the full lookup history keyed by normalized word.
func (p *Provider) WordHistory() (map[string]models.LookupStat, error) {
	return p.store.GetAllLookupStats()
}

// DeleteWordPermanently erases a word's lookup history for good.
func (p *Provider) DeleteWordPermanently(word string) error {
	return p.store.DeleteLookupStat(word)
}
