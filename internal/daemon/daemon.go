// Package daemon drives the background reconciliation loop: one run at
// startup, periodic runs on an interval, and debounced runs whenever the
// local database file changes on disk.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"leaflet-sync/internal/domain"
	"leaflet-sync/internal/service"
)

// Syncer runs one reconciliation pass. Satisfied by service.SyncService.
type Syncer interface {
	Sync(ctx context.Context) (*domain.SyncResult, error)
}

type Config struct {
	// Interval is the period between unconditional runs.
	Interval time.Duration

	// Debounce is how long the watched file must stay quiet after a change
	// before a run is triggered, batching bursts of writes together.
	Debounce time.Duration

	// WatchPath is the local database file to watch. Empty disables
	// watching; the interval alone drives runs.
	WatchPath string
}

func DefaultConfig() Config {
	return Config{
		Interval: 5 * time.Minute,
		Debounce: 2 * time.Second,
	}
}

type Daemon struct {
	syncer Syncer
	config Config
}

func New(syncer Syncer, config Config) *Daemon {
	if config.Interval <= 0 {
		config.Interval = DefaultConfig().Interval
	}
	if config.Debounce <= 0 {
		config.Debounce = DefaultConfig().Debounce
	}
	return &Daemon{syncer: syncer, config: config}
}

// Run blocks until ctx is cancelled, returning nil on a clean shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	var events chan fsnotify.Event
	var watchErrs chan error

	if d.config.WatchPath != "" {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		defer watcher.Close()

		// Watch the directory: the database file itself may be replaced
		// by rename, which would silently drop a file-level watch.
		dir := filepath.Dir(d.config.WatchPath)
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		log.Printf("[daemon] watching %s", d.config.WatchPath)
		events = watcher.Events
		watchErrs = watcher.Errors
	}

	log.Printf("[daemon] started, syncing every %s", d.config.Interval)
	d.runSync(ctx)

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	// The debounce timer starts disarmed; only a relevant file event
	// arms it.
	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Printf("[daemon] shutting down")
			return nil

		case <-ticker.C:
			d.runSync(ctx)

		case <-debounce.C:
			log.Printf("[daemon] local changes settled, syncing")
			d.runSync(ctx)

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if !d.relevant(event) {
				continue
			}
			if !debounce.Stop() {
				select {
				case <-debounce.C:
				default:
				}
			}
			debounce.Reset(d.config.Debounce)

		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			log.Printf("[daemon] watcher error: %v", err)
		}
	}
}

func (d *Daemon) runSync(ctx context.Context) {
	result, err := d.syncer.Sync(ctx)
	if errors.Is(err, service.ErrSyncInProgress) {
		log.Printf("[daemon] a run is already in flight, skipping")
		return
	}
	if err != nil {
		log.Printf("[daemon] sync failed: %v", err)
		return
	}
	if !result.Success {
		log.Printf("[daemon] sync finished with %d errors", len(result.Errors))
	}
}

// relevant reports whether a directory event concerns the watched database.
// SQLite writes through sidecar files named after the database (-wal,
// -journal, -shm), so a prefix match catches them all.
func (d *Daemon) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	base := filepath.Base(d.config.WatchPath)
	return strings.HasPrefix(filepath.Base(event.Name), base)
}
