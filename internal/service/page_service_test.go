package service

import (
	"context"
	"errors"
	"testing"

	"leaflet-sync/internal/repository"
	localmem "leaflet-sync/internal/repository/memory"
)

func TestPageService_Create(t *testing.T) {
	store := localmem.New()
	svc := NewPageService(store)
	ctx := context.Background()

	if _, err := svc.Create(ctx, "", nil, ""); err == nil {
		t.Error("expected an error for an empty name")
	}

	missing := "nope"
	if _, err := svc.Create(ctx, "Note", &missing, ""); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing folder, got %v", err)
	}

	page, err := svc.Create(ctx, "Note", nil, "first draft")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if page.ID == "" {
		t.Error("expected a generated id")
	}
	if page.Content != "first draft" {
		t.Errorf("expected the content stored, got %q", page.Content)
	}
	if page.SyncedHash != "" {
		t.Errorf("expected no synced hash before the first sync, got %q", page.SyncedHash)
	}
}

func TestPageService_UpdateContentKeepsSyncedHash(t *testing.T) {
	store := localmem.New()
	svc := NewPageService(store)
	ctx := context.Background()

	page, err := svc.Create(ctx, "Note", nil, "v1")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Simulate a completed sync.
	page.SyncedHash = "abc"
	if err := store.PutPage(ctx, page); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	updated, err := svc.UpdateContent(ctx, page.ID, "v2")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if updated.Content != "v2" {
		t.Errorf("expected content v2, got %q", updated.Content)
	}
	if updated.SyncedHash != "abc" {
		t.Errorf("expected the synced hash untouched, got %q", updated.SyncedHash)
	}
	if !updated.UpdatedAt.After(page.CreatedAt) && !updated.UpdatedAt.Equal(page.CreatedAt) {
		t.Error("expected the update stamp to advance")
	}
}

func TestPageService_Move(t *testing.T) {
	store := localmem.New()
	folders := NewFolderService(store)
	svc := NewPageService(store)
	ctx := context.Background()

	folder, err := folders.Create(ctx, "Target", nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	page, err := svc.Create(ctx, "Note", nil, "text")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	missing := "nope"
	if _, err := svc.Move(ctx, page.ID, &missing); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound for a missing folder, got %v", err)
	}

	moved, err := svc.Move(ctx, page.ID, &folder.ID)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if moved.FolderID == nil || *moved.FolderID != folder.ID {
		t.Errorf("expected folder %s, got %v", folder.ID, moved.FolderID)
	}

	back, err := svc.Move(ctx, page.ID, nil)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if back.FolderID != nil {
		t.Errorf("expected the page back at the root, got %v", back.FolderID)
	}
}

func TestPageService_Delete(t *testing.T) {
	store := localmem.New()
	svc := NewPageService(store)
	ctx := context.Background()

	if err := svc.Delete(ctx, "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	page, err := svc.Create(ctx, "Note", nil, "text")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.Delete(ctx, page.ID); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if _, err := store.GetPage(ctx, page.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected the page deleted, got %v", err)
	}
	tombstones, err := store.ListPageTombstones(ctx)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(tombstones) != 1 || tombstones[0].EntityID != page.ID {
		t.Errorf("expected a tombstone for the page, got %v", tombstones)
	}
}
