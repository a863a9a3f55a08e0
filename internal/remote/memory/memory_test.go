package memory

import (
	"context"
	"errors"
	"sort"
	"testing"

	"leaflet-sync/internal/remote"
)

func TestIndexRoundTrip(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetIndex(ctx, remote.FolderIndexName); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("GetIndex() on empty store error = %v, want ErrNotFound", err)
	}

	payload := []byte(`{"version":1}`)
	if err := s.PutIndex(ctx, remote.FolderIndexName, payload); err != nil {
		t.Fatalf("PutIndex() error = %v", err)
	}

	got, err := s.GetIndex(ctx, remote.FolderIndexName)
	if err != nil {
		t.Fatalf("GetIndex() error = %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("GetIndex() = %s, want %s", got, payload)
	}

	// Returned slice must not alias stored bytes.
	got[0] = 'X'
	again, err := s.GetIndex(ctx, remote.FolderIndexName)
	if err != nil {
		t.Fatalf("GetIndex() error = %v", err)
	}
	if string(again) != string(payload) {
		t.Errorf("stored index mutated through returned slice: %s", again)
	}
}

func TestContentOps(t *testing.T) {
	s := New()
	ctx := context.Background()

	if _, err := s.GetPageContent(ctx, "p1"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("GetPageContent() error = %v, want ErrNotFound", err)
	}

	if err := s.PutPageContent(ctx, "p1", "hello"); err != nil {
		t.Fatalf("PutPageContent() error = %v", err)
	}
	if err := s.PutPageContent(ctx, "p2", "world"); err != nil {
		t.Fatalf("PutPageContent() error = %v", err)
	}

	content, err := s.GetPageContent(ctx, "p1")
	if err != nil {
		t.Fatalf("GetPageContent() error = %v", err)
	}
	if content != "hello" {
		t.Errorf("GetPageContent() = %q, want hello", content)
	}

	ids, err := s.ListPageContentIDs(ctx)
	if err != nil {
		t.Fatalf("ListPageContentIDs() error = %v", err)
	}
	sort.Strings(ids)
	if len(ids) != 2 || ids[0] != "p1" || ids[1] != "p2" {
		t.Errorf("ListPageContentIDs() = %v, want [p1 p2]", ids)
	}

	// Deleting an absent object succeeds.
	if err := s.DeletePageContent(ctx, "missing"); err != nil {
		t.Errorf("DeletePageContent(missing) error = %v", err)
	}
	if err := s.DeletePageContent(ctx, "p1"); err != nil {
		t.Fatalf("DeletePageContent() error = %v", err)
	}
	if _, err := s.GetPageContent(ctx, "p1"); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("GetPageContent() after delete error = %v, want ErrNotFound", err)
	}
}

func TestClear(t *testing.T) {
	s := New()
	ctx := context.Background()

	if err := s.PutIndex(ctx, remote.PageIndexName, []byte(`{}`)); err != nil {
		t.Fatalf("PutIndex() error = %v", err)
	}
	if err := s.PutPageContent(ctx, "p1", "hello"); err != nil {
		t.Fatalf("PutPageContent() error = %v", err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if _, err := s.GetIndex(ctx, remote.PageIndexName); !errors.Is(err, remote.ErrNotFound) {
		t.Errorf("GetIndex() after Clear error = %v, want ErrNotFound", err)
	}
	ids, err := s.ListPageContentIDs(ctx)
	if err != nil {
		t.Fatalf("ListPageContentIDs() error = %v", err)
	}
	if len(ids) != 0 {
		t.Errorf("ListPageContentIDs() after Clear = %v, want empty", ids)
	}
}
