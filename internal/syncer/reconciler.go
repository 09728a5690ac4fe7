// Package syncer keeps the local store and a remote store eventually
// consistent without locks. Pulls are incremental behind a per-resource
// timestamp cursor; pushes only ever move a record forward by a
// domain-specific monotonic comparator (a one-way ratchet), so multi-device
// concurrent writes never need wall-clock conflict resolution and
// re-applying a partially-failed pass is idempotent.
package syncer

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/example/wordflow/internal/ebbinghaus"
	"github.com/example/wordflow/internal/store"
	"github.com/example/wordflow/pkg/models"
)

// BatchSize bounds multi-row remote operations to respect backend
// request-size limits.
const BatchSize = 100

// cursorPad is added past the newest pulled row when advancing the cursor.
// The remote's timestamp precision is finer than the local clock's; without
// the pad the boundary row is re-fetched on every pull.
const cursorPad = time.Millisecond

// Reconciler runs out-of-band sync passes. It reads a stable snapshot of
// local state and never blocks the drilling flow; with no remote configured
// every pass degrades to a logged "sync skipped".
type Reconciler struct {
	local  *store.Store
	remote RemoteStore
	now    func() time.Time
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithNow overrides the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// New creates a reconciler. remote may be nil (local-only operation).
func New(local *store.Store, remote RemoteStore, opts ...Option) *Reconciler {
	r := &Reconciler{local: local, remote: remote, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Enabled reports whether a remote is configured.
func (r *Reconciler) Enabled() bool { return r.remote != nil }

// PullResult reports one incremental pull.
type PullResult struct {
	Fetched   int
	Applied   int
	NewCursor time.Time
}

// PushResult reports one incremental push. Skipped counts records that lost
// the ratchet comparison; they are not errors.
type PushResult struct {
	Synced  int
	Skipped int
}

// Sync runs one full pass: for each resource, pull then push, never
// interleaved. A failing resource is logged and the pass continues.
func (r *Reconciler) Sync(ctx context.Context) error {
	if !r.Enabled() {
		log.Printf("sync skipped: no remote configured")
		return nil
	}
	for _, resource := range models.Resources {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.PullIncremental(ctx, resource); err != nil {
			log.Printf("sync: pull %s failed: %v", resource, err)
			continue
		}
		if _, err := r.PushIncremental(ctx, resource); err != nil {
			log.Printf("sync: push %s failed: %v", resource, err)
		}
	}
	return nil
}

// PullIncremental fetches all remote rows newer than the stored cursor,
// applies the ones that win the ratchet against their local counterparts,
// and advances the cursor to max(updated_at)+pad of the fetched rows.
func (r *Reconciler) PullIncremental(ctx context.Context, resource models.ResourceType) (PullResult, error) {
	cursor, err := r.local.GetCursor(resource)
	if err != nil {
		return PullResult{}, err
	}

	rows, err := r.remote.SelectSince(ctx, resource, cursor)
	if err != nil {
		return PullResult{}, fmt.Errorf("select since %s: %w", cursor.Format(time.RFC3339Nano), err)
	}

	res := PullResult{Fetched: len(rows), NewCursor: cursor}
	for _, row := range rows {
		applied, err := r.applyRemote(resource, row)
		if err != nil {
			return res, err
		}
		if applied {
			res.Applied++
		}
		if next := row.UpdatedAt.Add(cursorPad); next.After(res.NewCursor) {
			res.NewCursor = next
		}
	}

	if res.NewCursor.After(cursor) {
		if err := r.local.SetCursor(resource, res.NewCursor); err != nil {
			return res, err
		}
	}
	return res, nil
}

// applyRemote merges one pulled row into the local store if the remote copy
// is ahead. The same comparator guards both directions of the ratchet.
func (r *Reconciler) applyRemote(resource models.ResourceType, row RemoteRecord) (bool, error) {
	local, err := r.localRecord(resource, row.Word)
	if err != nil {
		return false, err
	}
	if local != nil && !ahead(resource, row, *local) {
		return false, nil
	}

	switch resource {
	case models.ResourceWords:
		stat, err := r.local.GetLookupStat(row.Word)
		if err != nil {
			return false, err
		}
		if stat == nil {
			stat = &models.LookupStat{Word: row.Word}
		}
		stat.Count = row.Count
		stat.UpdatedAt = row.UpdatedAt
		return true, r.local.PutLookupStat(stat)

	case models.ResourceFlashcards:
		return true, r.local.PutFlashcardStat(&models.FlashcardStat{
			Word:         row.Word,
			ReviewCount:  row.ReviewCount,
			MasteryLevel: row.MasteryLevel,
			UpdatedAt:    row.UpdatedAt,
		})

	case models.ResourceReviews:
		rec, err := r.local.GetProgress(row.Word)
		if err != nil {
			return false, err
		}
		if rec == nil {
			rec = models.NewPendingWord(row.Word, row.UpdatedAt)
		}
		rec.State = row.Status
		rec.Stage = row.Stage
		rec.UpdatedAt = row.UpdatedAt
		switch row.Status {
		case models.StateMastered:
			rec.NextReviewAt = nil
			if rec.MasteredAt == nil {
				mastered := row.UpdatedAt
				rec.MasteredAt = &mastered
			}
		case models.StateReviewing:
			// The wire carries only status and stage; rebuild the due
			// date from the ladder or the word never comes due here.
			stage := row.Stage
			if stage < 0 {
				stage = 0
			}
			if stage >= len(ebbinghaus.Intervals) {
				stage = len(ebbinghaus.Intervals) - 1
			}
			next := row.UpdatedAt.AddDate(0, 0, ebbinghaus.Intervals[stage])
			rec.NextReviewAt = &next
			rec.MasteredAt = nil
		default:
			rec.NextReviewAt = nil
			rec.MasteredAt = nil
		}
		return true, r.local.PutProgress(rec)
	}
	return false, fmt.Errorf("unknown resource type %q", resource)
}

// PushIncremental pushes every local record that is strictly ahead of its
// remote counterpart. Comparison fields are fetched in batches of at most
// BatchSize keys; a failed chunk is logged and the loop continues, because
// its source rows still compare as ahead on the next pass.
func (r *Reconciler) PushIncremental(ctx context.Context, resource models.ResourceType) (PushResult, error) {
	locals, err := r.localRecords(resource)
	if err != nil {
		return PushResult{}, err
	}

	var res PushResult
	for start := 0; start < len(locals); start += BatchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := start + BatchSize
		if end > len(locals) {
			end = len(locals)
		}
		chunk := locals[start:end]

		words := make([]string, len(chunk))
		for i, rec := range chunk {
			words[i] = rec.Word
		}
		remotes, err := r.remote.SelectFields(ctx, resource, words)
		if err != nil {
			log.Printf("sync: push %s: fetch chunk %d-%d failed, continuing: %v", resource, start, end, err)
			continue
		}

		var winners []RemoteRecord
		for _, rec := range chunk {
			remote, ok := remotes[rec.Word]
			if ok && !ahead(resource, rec, remote) {
				res.Skipped++
				continue
			}
			winners = append(winners, rec)
		}
		if len(winners) == 0 {
			continue
		}
		if err := r.remote.Upsert(ctx, resource, winners); err != nil {
			log.Printf("sync: push %s: upsert chunk %d-%d failed, continuing: %v", resource, start, end, err)
			continue
		}
		res.Synced += len(winners)
	}
	return res, nil
}

// localRecords snapshots the local rows for one resource in push shape.
func (r *Reconciler) localRecords(resource models.ResourceType) ([]RemoteRecord, error) {
	switch resource {
	case models.ResourceWords:
		stats, err := r.local.GetAllLookupStats()
		if err != nil {
			return nil, err
		}
		out := make([]RemoteRecord, 0, len(stats))
		for _, stat := range stats {
			out = append(out, RemoteRecord{Word: stat.Word, Count: stat.Count, UpdatedAt: stat.UpdatedAt})
		}
		sortByWord(out)
		return out, nil

	case models.ResourceFlashcards:
		stats, err := r.local.GetAllFlashcardStats()
		if err != nil {
			return nil, err
		}
		out := make([]RemoteRecord, 0, len(stats))
		for _, stat := range stats {
			out = append(out, RemoteRecord{
				Word:         stat.Word,
				ReviewCount:  stat.ReviewCount,
				MasteryLevel: stat.MasteryLevel,
				UpdatedAt:    stat.UpdatedAt,
			})
		}
		return out, nil

	case models.ResourceReviews:
		recs, err := r.local.GetAllProgress()
		if err != nil {
			return nil, err
		}
		out := make([]RemoteRecord, 0, len(recs))
		for _, rec := range recs {
			out = append(out, RemoteRecord{
				Word:      rec.Word,
				Status:    rec.State,
				Stage:     rec.Stage,
				UpdatedAt: rec.UpdatedAt,
			})
		}
		return out, nil
	}
	return nil, fmt.Errorf("unknown resource type %q", resource)
}

// localRecord fetches one local row in push shape, or nil when absent.
func (r *Reconciler) localRecord(resource models.ResourceType, word string) (*RemoteRecord, error) {
	switch resource {
	case models.ResourceWords:
		stat, err := r.local.GetLookupStat(word)
		if err != nil || stat == nil {
			return nil, err
		}
		return &RemoteRecord{Word: stat.Word, Count: stat.Count, UpdatedAt: stat.UpdatedAt}, nil
	case models.ResourceFlashcards:
		stat, err := r.local.GetFlashcardStat(word)
		if err != nil || stat == nil {
			return nil, err
		}
		return &RemoteRecord{
			Word:         stat.Word,
			ReviewCount:  stat.ReviewCount,
			MasteryLevel: stat.MasteryLevel,
			UpdatedAt:    stat.UpdatedAt,
		}, nil
	case models.ResourceReviews:
		rec, err := r.local.GetProgress(word)
		if err != nil || rec == nil {
			return nil, err
		}
		return &RemoteRecord{Word: rec.Word, Status: rec.State, Stage: rec.Stage, UpdatedAt: rec.UpdatedAt}, nil
	}
	return nil, fmt.Errorf("unknown resource type %q", resource)
}

// ahead reports whether a is strictly ahead of b by the resource's monotonic
// comparator. This is last-state-wins, not last-write-wins: wall clocks never
// participate, and a record can never be downgraded remotely.
func ahead(resource models.ResourceType, a, b RemoteRecord) bool {
	switch resource {
	case models.ResourceWords:
		return a.Count > b.Count
	case models.ResourceFlashcards:
		return a.ReviewCount > b.ReviewCount || a.MasteryLevel > b.MasteryLevel
	case models.ResourceReviews:
		if a.Status.Rank() != b.Status.Rank() {
			return a.Status.Rank() > b.Status.Rank()
		}
		return a.Stage > b.Stage
	}
	return false
}

// DeleteRemote removes a word's rows from every remote resource. Terminal.
func (r *Reconciler) DeleteRemote(ctx context.Context, word string) error {
	if !r.Enabled() {
		return nil
	}
	word = models.NormalizeWord(word)
	for _, resource := range models.Resources {
		if err := r.remote.Delete(ctx, resource, word); err != nil {
			return fmt.Errorf("delete %s/%s: %w", resource, word, err)
		}
	}
	return nil
}

// BlacklistWord terminally excludes a word from sync, locally and remotely.
// Un-blacklisting is a distinct admin action outside this engine.
func (r *Reconciler) BlacklistWord(ctx context.Context, word string) error {
	word = models.NormalizeWord(word)
	if err := r.local.AddToBlacklist(word, r.now()); err != nil {
		return err
	}
	if !r.Enabled() {
		return nil
	}
	return r.remote.Blacklist(ctx, word)
}

// sortByWord gives map-sourced snapshots a stable push order.
func sortByWord(recs []RemoteRecord) {
	sort.Slice(recs, func(i, j int) bool { return recs[i].Word < recs[j].Word })
}
