package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leaflet-sync/internal/domain"
	"leaflet-sync/internal/repository"

	"github.com/google/uuid"
)

type FolderService struct {
	local repository.LocalStore
}

func NewFolderService(local repository.LocalStore) *FolderService {
	return &FolderService{local: local}
}

func (s *FolderService) List(ctx context.Context) ([]*domain.Folder, error) {
	return s.local.ListFolders(ctx)
}

func (s *FolderService) Get(ctx context.Context, id string) (*domain.Folder, error) {
	return s.local.GetFolder(ctx, id)
}

func (s *FolderService) Create(ctx context.Context, name string, parentID *string) (*domain.Folder, error) {
	if name == "" {
		return nil, errors.New("folder name is required")
	}
	if parentID != nil {
		if _, err := s.local.GetFolder(ctx, *parentID); err != nil {
			return nil, fmt.Errorf("parent folder %s: %w", *parentID, err)
		}
	}

	order, err := s.nextOrder(ctx, parentID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	folder := &domain.Folder{
		ID:        uuid.New().String(),
		Name:      name,
		ParentID:  parentID,
		Order:     order,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.local.PutFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("failed to create folder: %w", err)
	}
	return folder, nil
}

func (s *FolderService) Rename(ctx context.Context, id, name string) (*domain.Folder, error) {
	if name == "" {
		return nil, errors.New("folder name is required")
	}

	folder, err := s.local.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}

	folder.Name = name
	folder.UpdatedAt = time.Now()
	if err := s.local.PutFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("failed to rename folder: %w", err)
	}
	return folder, nil
}

// Move reparents a folder. Moving a folder into itself or into one of its
// own descendants is rejected to keep the tree a forest.
func (s *FolderService) Move(ctx context.Context, id string, parentID *string) (*domain.Folder, error) {
	folder, err := s.local.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}

	if parentID != nil {
		if *parentID == id {
			return nil, errors.New("cannot move a folder into itself")
		}
		if _, err := s.local.GetFolder(ctx, *parentID); err != nil {
			return nil, fmt.Errorf("parent folder %s: %w", *parentID, err)
		}

		all, err := s.local.ListFolders(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list folders: %w", err)
		}
		index := domain.BuildChildIndex(all)
		for _, desc := range domain.Descendants(index, id) {
			if desc.ID == *parentID {
				return nil, errors.New("cannot move a folder into its own descendant")
			}
		}
	}

	order, err := s.nextOrder(ctx, parentID)
	if err != nil {
		return nil, err
	}

	folder.ParentID = parentID
	folder.Order = order
	folder.UpdatedAt = time.Now()
	if err := s.local.PutFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("failed to move folder: %w", err)
	}
	return folder, nil
}

func (s *FolderService) Reorder(ctx context.Context, id string, order int) (*domain.Folder, error) {
	folder, err := s.local.GetFolder(ctx, id)
	if err != nil {
		return nil, err
	}

	folder.Order = order
	folder.UpdatedAt = time.Now()
	if err := s.local.PutFolder(ctx, folder); err != nil {
		return nil, fmt.Errorf("failed to reorder folder: %w", err)
	}
	return folder, nil
}

// Delete removes a folder, every folder below it and every page inside any
// of them, emitting one tombstone per removed entity so the deletions
// propagate to other replicas.
func (s *FolderService) Delete(ctx context.Context, id string) error {
	if _, err := s.local.GetFolder(ctx, id); err != nil {
		return err
	}

	all, err := s.local.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list folders: %w", err)
	}
	index := domain.BuildChildIndex(all)

	doomed := map[string]bool{id: true}
	for _, desc := range domain.Descendants(index, id) {
		doomed[desc.ID] = true
	}

	pages, err := s.local.ListPages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list pages: %w", err)
	}

	now := time.Now()
	for _, p := range pages {
		if p.FolderID == nil || !doomed[*p.FolderID] {
			continue
		}
		if err := s.local.DeletePage(ctx, p.ID); err != nil {
			return fmt.Errorf("failed to delete page %s: %w", p.ID, err)
		}
		if err := s.putPageTombstone(ctx, p.ID, now); err != nil {
			return err
		}
	}

	for folderID := range doomed {
		if err := s.local.DeleteFolder(ctx, folderID); err != nil {
			return fmt.Errorf("failed to delete folder %s: %w", folderID, err)
		}
		err := s.local.PutFolderTombstone(ctx, &domain.Tombstone{EntityID: folderID, DeletedAt: now})
		if err != nil && !errors.Is(err, repository.ErrTombstonesUnsupported) {
			return fmt.Errorf("failed to record folder tombstone: %w", err)
		}
	}

	return nil
}

func (s *FolderService) putPageTombstone(ctx context.Context, id string, at time.Time) error {
	err := s.local.PutPageTombstone(ctx, &domain.Tombstone{EntityID: id, DeletedAt: at})
	if err != nil && !errors.Is(err, repository.ErrTombstonesUnsupported) {
		return fmt.Errorf("failed to record page tombstone: %w", err)
	}
	return nil
}

func (s *FolderService) nextOrder(ctx context.Context, parentID *string) (int, error) {
	all, err := s.local.ListFolders(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list folders: %w", err)
	}

	next := 0
	for _, f := range all {
		if !sameFolderRef(f.ParentID, parentID) {
			continue
		}
		if f.Order >= next {
			next = f.Order + 1
		}
	}
	return next, nil
}
