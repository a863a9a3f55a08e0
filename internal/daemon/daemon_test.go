package daemon

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"leaflet-sync/internal/domain"
	"leaflet-sync/internal/service"
)

type fakeSyncer struct {
	mu    sync.Mutex
	calls int
	err   error
	fired chan struct{}
}

func newFakeSyncer(err error) *fakeSyncer {
	return &fakeSyncer{err: err, fired: make(chan struct{}, 16)}
}

func (f *fakeSyncer) Sync(ctx context.Context) (*domain.SyncResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	select {
	case f.fired <- struct{}{}:
	default:
	}
	if f.err != nil {
		return nil, f.err
	}
	return domain.NewSyncResult(), nil
}

func waitFire(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a sync run")
	}
}

func TestDaemon_InitialAndIntervalRuns(t *testing.T) {
	syncer := newFakeSyncer(nil)
	d := New(syncer, Config{Interval: 25 * time.Millisecond, Debounce: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	// One immediate run, then at least one driven by the ticker.
	waitFire(t, syncer.fired)
	waitFire(t, syncer.fired)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected a clean shutdown, got %v", err)
	}
}

func TestDaemon_SyncsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "leaflet.db")
	if err := os.WriteFile(path, []byte("v1"), 0644); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	syncer := newFakeSyncer(nil)
	d := New(syncer, Config{
		Interval:  time.Hour,
		Debounce:  20 * time.Millisecond,
		WatchPath: path,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFire(t, syncer.fired)

	if err := os.WriteFile(path, []byte("v2"), 0644); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	waitFire(t, syncer.fired)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected a clean shutdown, got %v", err)
	}
}

func TestDaemon_ToleratesBusySyncer(t *testing.T) {
	syncer := newFakeSyncer(service.ErrSyncInProgress)
	d := New(syncer, Config{Interval: 20 * time.Millisecond, Debounce: 10 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	waitFire(t, syncer.fired)
	waitFire(t, syncer.fired)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("expected the daemon to keep running, got %v", err)
	}
}

func TestDaemon_IgnoresUnrelatedFiles(t *testing.T) {
	d := New(newFakeSyncer(nil), Config{WatchPath: "/data/leaflet.db"})

	cases := []struct {
		name string
		want bool
	}{
		{"/data/leaflet.db", true},
		{"/data/leaflet.db-wal", true},
		{"/data/leaflet.db-journal", true},
		{"/data/other.db", false},
		{"/data/notes.txt", false},
	}
	for _, tc := range cases {
		event := fsnotify.Event{Name: tc.name, Op: fsnotify.Write}
		if got := d.relevant(event); got != tc.want {
			t.Errorf("relevant(%s) = %v, want %v", tc.name, got, tc.want)
		}
	}
}
