// Package jobs runs the engine's periodic work: the silent background deck
// reinsertion, the out-of-band sync pass, and the daily due-words reminder.
package jobs

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/example/wordflow/internal/deck"
	"github.com/example/wordflow/internal/ebbinghaus"
	"github.com/example/wordflow/internal/notify"
	"github.com/example/wordflow/internal/session"
	"github.com/example/wordflow/internal/syncer"
)

// Reminders are only sent inside this window unless overridden by env.
const (
	DefaultNotificationStartHour = 8
	DefaultNotificationEndHour   = 22
)

// DefaultSyncInterval is how often a full sync pass runs.
const DefaultSyncInterval = 15 * time.Minute

// Runner owns the gocron scheduler and the jobs registered on it.
type Runner struct {
	scheduler  *gocron.Scheduler
	coord      *session.Coordinator
	reconciler *syncer.Reconciler
	sched      *ebbinghaus.Scheduler
	notifier   notify.Notifier
}

// New creates a runner. notifier may be nil (reminders disabled).
func New(coord *session.Coordinator, reconciler *syncer.Reconciler, sched *ebbinghaus.Scheduler, notifier notify.Notifier) *Runner {
	return &Runner{
		scheduler:  gocron.NewScheduler(time.UTC),
		coord:      coord,
		reconciler: reconciler,
		sched:      sched,
		notifier:   notifier,
	}
}

// Start registers all periodic jobs and runs the scheduler in the
// background.
func (r *Runner) Start(ctx context.Context) {
	// Silent deck reinsertion. The coordinator's mutation queue keeps this
	// from interleaving with user answers.
	r.scheduler.Every(deck.ReviewInterval).Do(func() {
		if err := r.coord.BackgroundReview(); err != nil {
			log.Printf("background review failed: %v", err)
		}
	})

	if r.reconciler.Enabled() {
		r.scheduler.Every(syncInterval()).Do(func() {
			if err := r.reconciler.Sync(ctx); err != nil {
				log.Printf("sync pass failed: %v", err)
			}
		})
	}

	if r.notifier != nil {
		r.scheduler.Every(1).Hour().Do(r.checkAndSendReminder)
	}

	r.scheduler.StartAsync()
}

// Stop terminates all scheduled jobs.
func (r *Runner) Stop() {
	r.scheduler.Stop()
}

// checkAndSendReminder sends a due-words reminder when inside the
// notification window and something is actually due.
func (r *Runner) checkAndSendReminder() {
	hour := time.Now().Hour()
	start := envHour("NOTIFICATION_START_HOUR", DefaultNotificationStartHour)
	end := envHour("NOTIFICATION_END_HOUR", DefaultNotificationEndHour)
	if hour < start || hour > end {
		return
	}

	due, err := r.sched.DueToday()
	if err != nil {
		log.Printf("failed to get due words for reminder: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}
	if err := r.notifier.SendReminder(len(due)); err != nil {
		log.Printf("failed to send reminder: %v", err)
	}
}

func syncInterval() time.Duration {
	if v := os.Getenv("SYNC_INTERVAL_MINUTES"); v != "" {
		if m, err := strconv.Atoi(v); err == nil && m > 0 {
			return time.Duration(m) * time.Minute
		}
	}
	return DefaultSyncInterval
}

func envHour(name string, fallback int) int {
	if v := os.Getenv(name); v != "" {
		if h, err := strconv.Atoi(v); err == nil && h >= 0 && h <= 23 {
			return h
		}
	}
	return fallback
}
