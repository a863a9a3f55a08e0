package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"leaflet-sync/internal/domain"
	"leaflet-sync/internal/remote"
	remotemem "leaflet-sync/internal/remote/memory"
	localmem "leaflet-sync/internal/repository/memory"
	"leaflet-sync/internal/wire"
	"leaflet-sync/pkg/hash"
)

type progressCall struct {
	current int
	total   int
	message string
}

type progressRecorder struct {
	calls []progressCall
}

func (p *progressRecorder) fn(current, total int, message string) {
	p.calls = append(p.calls, progressCall{current: current, total: total, message: message})
}

func (p *progressRecorder) verify(t *testing.T, wantTotal int) {
	t.Helper()
	if len(p.calls) != wantTotal {
		t.Fatalf("expected %d progress calls, got %d", wantTotal, len(p.calls))
	}
	for i, call := range p.calls {
		if call.total != wantTotal {
			t.Errorf("call %d: expected total %d, got %d", i, wantTotal, call.total)
		}
		if call.current != i+1 {
			t.Errorf("call %d: expected current %d, got %d", i, i+1, call.current)
		}
	}
}

func TestSyncService_ForcePush(t *testing.T) {
	rem := remotemem.New()
	a := newReplica(rem)
	base := time.UnixMilli(1722000000000)
	ctx := context.Background()

	a.putFolder(t, "f1", "Projects", nil, base)
	folderID := "f1"
	a.putPage(t, "p1", "Notes", "hello", &folderID, base)
	a.putPage(t, "p2", "Ideas", "more", nil, base)

	// Leftover remote state that the mirror must displace.
	if err := rem.PutPageContent(ctx, "stray", "old junk"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := rem.PutIndex(ctx, remote.PageIndexName, []byte(`not even json`)); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	rec := &progressRecorder{}
	result, err := a.svc.ForcePush(ctx, rec.fn)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got errors %v", result.Errors)
	}
	if result.FoldersUploaded != 1 || result.PagesUploaded != 2 {
		t.Errorf("expected 1 folder and 2 pages uploaded, got %s", result.Summary())
	}

	// 4 indexes, 2 pages, 1 stray removal.
	rec.verify(t, 7)

	meta := decodePageIndex(t, rem)
	if len(meta) != 2 {
		t.Errorf("expected 2 index entries, got %d", len(meta))
	}
	if _, err := rem.GetPageContent(ctx, "stray"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("expected the stray content removed, got %v", err)
	}
	content, err := rem.GetPageContent(ctx, "p1")
	if err != nil {
		t.Fatalf("expected uploaded content, got %v", err)
	}
	if content != "hello" {
		t.Errorf("expected content hello, got %q", content)
	}

	// Tombstone indexes exist even when empty: the push publishes the
	// complete local view.
	data, err := rem.GetIndex(ctx, remote.PageTombstoneIndexName)
	if err != nil {
		t.Fatalf("expected a tombstone index, got %v", err)
	}
	tombstones, err := wire.NewCodec().DecodePageTombstones(data)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tombstones) != 0 {
		t.Errorf("expected no tombstones, got %d", len(tombstones))
	}

	// The pushed state is one an ordinary run has nothing to add to. The
	// tombstone indexes are rewritten whenever they exist, so only the
	// folder and page indexes are held to zero.
	counter := newCountingRemote(rem)
	svc := NewSyncService(a.local, counter)
	if _, err := svc.Sync(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	counter.mu.Lock()
	folderPuts := counter.indexPuts[remote.FolderIndexName]
	pagePuts := counter.indexPuts[remote.PageIndexName]
	counter.mu.Unlock()
	if folderPuts != 0 || pagePuts != 0 || counter.contentPuts != 0 {
		t.Errorf("expected a follow-up run to move nothing, got %d folder index puts, %d page index puts, %d content puts",
			folderPuts, pagePuts, counter.contentPuts)
	}
	if state := a.svc.State(); state != domain.SyncStateCompleted {
		t.Errorf("expected state completed, got %s", state)
	}
}

func TestSyncService_ForcePull(t *testing.T) {
	rem := remotemem.New()
	a := newReplica(rem)
	base := time.UnixMilli(1722000000000)
	ctx := context.Background()

	a.putFolder(t, "f1", "Projects", nil, base)
	a.putPage(t, "p1", "Notes", "hello", nil, base)
	a.putPage(t, "p2", "Ideas", "more", nil, base)
	a.sync(t)
	if err := NewPageService(a.local).Delete(ctx, "p2"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	a.sync(t)

	// Make p-ghost an index entry without a content file.
	meta := decodePageIndex(t, rem)
	meta = append(meta, &domain.PageMetadata{
		ID: "p-ghost", Name: "Ghost", ContentHash: hash.Content("gone"),
		Size: 4, CreatedAt: base, UpdatedAt: base,
	})
	data, err := wire.NewCodec().EncodePageIndex(meta)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := rem.PutIndex(ctx, remote.PageIndexName, data); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Local junk on the pulling replica that the pull must replace.
	b := newReplica(rem)
	b.putFolder(t, "junk-f", "Junk", nil, base)
	b.putPage(t, "junk-p", "Junk", "junk", nil, base)

	rec := &progressRecorder{}
	result, err := b.svc.ForcePull(ctx, rec.fn)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got errors %v", result.Errors)
	}
	if result.FoldersDownloaded != 1 {
		t.Errorf("expected 1 folder downloaded, got %d", result.FoldersDownloaded)
	}
	if result.PagesDownloaded != 1 {
		t.Errorf("expected 1 page downloaded, got %d", result.PagesDownloaded)
	}

	// 2 index entries plus the final local replace.
	rec.verify(t, 3)

	pages := b.pages(t)
	if len(pages) != 1 || pages[0].ID != "p1" {
		t.Fatalf("expected exactly the remote page, got %d pages", len(pages))
	}
	if pages[0].SyncedHash != helloHash {
		t.Errorf("expected the synced hash recorded, got %q", pages[0].SyncedHash)
	}
	folders, err := b.local.ListFolders(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(folders) != 1 || folders[0].ID != "f1" {
		t.Fatalf("expected exactly the remote folder, got %d folders", len(folders))
	}

	tombstones, err := b.local.ListPageTombstones(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tombstones) != 1 || tombstones[0].EntityID != "p2" {
		t.Errorf("expected the remote tombstone adopted, got %v", tombstones)
	}

	// Pulled state matches the remote, so an ordinary run stays quiet on
	// everything but the dangling ghost entry it scrubs.
	counter := newCountingRemote(rem)
	svc := NewSyncService(b.local, counter)
	if _, err := svc.Sync(ctx); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if counter.contentPuts != 0 {
		t.Errorf("expected no content writes after a pull, got %d", counter.contentPuts)
	}
}

func TestSyncService_ForcePullAbortsWhenRemoteDies(t *testing.T) {
	rem := remotemem.New()
	a := newReplica(rem)
	base := time.UnixMilli(1722000000000)
	ctx := context.Background()

	a.putPage(t, "p1", "Notes", "hello", nil, base)
	a.sync(t)

	local := localmem.New()
	b := &replica{local: local, svc: NewSyncService(local, failingContentReads{rem})}
	b.putPage(t, "keep-me", "Local", "precious", nil, base)

	_, err := b.svc.ForcePull(ctx, nil)
	if err == nil {
		t.Fatal("expected an error when content downloads fail")
	}

	// The local store must be untouched after the aborted pull.
	pages := b.pages(t)
	if len(pages) != 1 || pages[0].ID != "keep-me" {
		t.Fatalf("expected local state preserved, got %d pages", len(pages))
	}
	if state := b.svc.State(); state != domain.SyncStateFailed {
		t.Errorf("expected state failed, got %s", state)
	}
}

// failingContentReads serves indexes but refuses content downloads.
type failingContentReads struct {
	remote.Store
}

func (f failingContentReads) GetPageContent(context.Context, string) (string, error) {
	return "", errors.New("injected read failure")
}

func TestSyncService_Reset(t *testing.T) {
	rem := remotemem.New()
	a := newReplica(rem)
	base := time.UnixMilli(1722000000000)
	ctx := context.Background()

	a.putPage(t, "p1", "Notes", "hello", nil, base)
	a.putPage(t, "p2", "Old", "bye", nil, base)
	a.sync(t)
	if err := NewPageService(a.local).Delete(ctx, "p2"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	a.sync(t)

	result, err := a.svc.Reset(ctx, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !result.Success {
		t.Errorf("expected success, got errors %v", result.Errors)
	}
	if result.PagesUploaded != 1 {
		t.Errorf("expected 1 page uploaded, got %d", result.PagesUploaded)
	}

	tombstones, err := a.local.ListPageTombstones(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tombstones) != 0 {
		t.Errorf("expected local tombstones cleared, got %d", len(tombstones))
	}

	data, err := rem.GetIndex(ctx, remote.PageTombstoneIndexName)
	if err != nil {
		t.Fatalf("expected a tombstone index, got %v", err)
	}
	remoteTombstones, err := wire.NewCodec().DecodePageTombstones(data)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(remoteTombstones) != 0 {
		t.Errorf("expected the remote tombstone history wiped, got %d", len(remoteTombstones))
	}

	if _, err := rem.GetPageContent(ctx, "p2"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("expected the deleted page gone from the remote, got %v", err)
	}
	content, err := rem.GetPageContent(ctx, "p1")
	if err != nil {
		t.Fatalf("expected the live page re-uploaded, got %v", err)
	}
	if content != "hello" {
		t.Errorf("expected content hello, got %q", content)
	}
	if meta := decodePageIndex(t, rem); len(meta) != 1 {
		t.Errorf("expected 1 index entry after the reset, got %d", len(meta))
	}
}
