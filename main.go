package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/example/wordflow/internal/deck"
	"github.com/example/wordflow/internal/ebbinghaus"
	"github.com/example/wordflow/internal/history"
	"github.com/example/wordflow/internal/importer"
	"github.com/example/wordflow/internal/jobs"
	"github.com/example/wordflow/internal/notify"
	"github.com/example/wordflow/internal/session"
	"github.com/example/wordflow/internal/store"
	"github.com/example/wordflow/internal/syncer"
)

func main() {
	// Optional .env file; real env vars take precedence.
	_ = godotenv.Load()

	importPath := flag.String("import", "", "import lookup history from an .xlsx or .csv file and exit")
	flag.Parse()

	dataDir := os.Getenv("DATA_DIR")
	if dataDir == "" {
		dataDir = "data"
	}

	st, err := store.Open(filepath.Join(dataDir, "wordflow.db"))
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	hist := history.New(st)

	if *importPath != "" {
		result, err := importer.Import(importer.DefaultConfig(*importPath), hist)
		if err != nil {
			log.Fatalf("Import failed: %v", err)
		}
		log.Printf("Imported %d of %d rows (%d skipped, %d errors)",
			result.Imported, result.TotalProcessed, result.Skipped, len(result.Errors))
		for _, e := range result.Errors {
			log.Printf("  %s", e)
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := ebbinghaus.New(st)
	dk := deck.New(sched, hist)
	coord := session.New(st, hist, sched, dk)

	reconciler := syncer.New(st, newRemote(st))

	var notifier notify.Notifier
	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		chatID, err := strconv.ParseInt(os.Getenv("TELEGRAM_CHAT_ID"), 10, 64)
		if err != nil {
			log.Printf("TELEGRAM_CHAT_ID missing or invalid, reminders disabled: %v", err)
		} else if tg, err := notify.NewTelegram(token, chatID); err != nil {
			log.Printf("Telegram notifier unavailable, reminders disabled: %v", err)
		} else {
			notifier = tg
		}
	}

	if err := coord.Start(); err != nil {
		log.Fatalf("Failed to start session: %v", err)
	}
	remaining, completed, _ := coord.Stats()
	log.Printf("Session ready: %d cards remaining, %d completed", remaining, completed)

	runner := jobs.New(coord, reconciler, sched, notifier)
	runner.Start(ctx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan
	log.Printf("Received signal: %v, shutting down", sig)

	cancel()
	runner.Stop()
	if err := coord.Close(); err != nil {
		log.Printf("Error flushing session: %v", err)
	}
	log.Println("Stopped")
}

// newRemote builds the sync remote from configuration, or nil for local-only
// operation. Not being configured for sync is a degraded mode, not an error.
func newRemote(st *store.Store) syncer.RemoteStore {
	dsn := os.Getenv("REMOTE_DSN")
	if dsn == "" {
		log.Println("REMOTE_DSN not set, running local-only")
		return nil
	}

	userID := os.Getenv("SYNC_USER_ID")
	if userID == "" {
		id, err := st.DeviceID()
		if err != nil {
			log.Printf("Failed to resolve device identity, running local-only: %v", err)
			return nil
		}
		userID = id
	}

	remote, err := syncer.NewPostgresRemote(dsn, userID)
	if err != nil {
		log.Printf("Remote store unreachable, running local-only: %v", err)
		return nil
	}
	return remote
}
