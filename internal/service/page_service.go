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

type PageService struct {
	local repository.LocalStore
}

func NewPageService(local repository.LocalStore) *PageService {
	return &PageService{local: local}
}

func (s *PageService) List(ctx context.Context) ([]*domain.Page, error) {
	return s.local.ListPages(ctx)
}

func (s *PageService) Get(ctx context.Context, id string) (*domain.Page, error) {
	return s.local.GetPage(ctx, id)
}

func (s *PageService) Create(ctx context.Context, name string, folderID *string, content string) (*domain.Page, error) {
	if name == "" {
		return nil, errors.New("page name is required")
	}
	if folderID != nil {
		if _, err := s.local.GetFolder(ctx, *folderID); err != nil {
			return nil, fmt.Errorf("folder %s: %w", *folderID, err)
		}
	}

	now := time.Now()
	page := &domain.Page{
		ID:        uuid.New().String(),
		Name:      name,
		FolderID:  folderID,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.local.PutPage(ctx, page); err != nil {
		return nil, fmt.Errorf("failed to create page: %w", err)
	}
	return page, nil
}

func (s *PageService) Rename(ctx context.Context, id, name string) (*domain.Page, error) {
	if name == "" {
		return nil, errors.New("page name is required")
	}

	page, err := s.local.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}

	page.Name = name
	page.UpdatedAt = time.Now()
	if err := s.local.PutPage(ctx, page); err != nil {
		return nil, fmt.Errorf("failed to rename page: %w", err)
	}
	return page, nil
}

func (s *PageService) Move(ctx context.Context, id string, folderID *string) (*domain.Page, error) {
	page, err := s.local.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}

	if folderID != nil {
		if _, err := s.local.GetFolder(ctx, *folderID); err != nil {
			return nil, fmt.Errorf("folder %s: %w", *folderID, err)
		}
	}

	page.FolderID = folderID
	page.UpdatedAt = time.Now()
	if err := s.local.PutPage(ctx, page); err != nil {
		return nil, fmt.Errorf("failed to move page: %w", err)
	}
	return page, nil
}

// UpdateContent replaces the page text. SyncedHash is left alone so the
// next sync can tell this page diverged from its last synchronized state.
func (s *PageService) UpdateContent(ctx context.Context, id, content string) (*domain.Page, error) {
	page, err := s.local.GetPage(ctx, id)
	if err != nil {
		return nil, err
	}

	page.Content = content
	page.UpdatedAt = time.Now()
	if err := s.local.PutPage(ctx, page); err != nil {
		return nil, fmt.Errorf("failed to update page content: %w", err)
	}
	return page, nil
}

// Delete removes the page and records a tombstone so the deletion reaches
// other replicas.
func (s *PageService) Delete(ctx context.Context, id string) error {
	if _, err := s.local.GetPage(ctx, id); err != nil {
		return err
	}

	if err := s.local.DeletePage(ctx, id); err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}

	err := s.local.PutPageTombstone(ctx, &domain.Tombstone{EntityID: id, DeletedAt: time.Now()})
	if err != nil && !errors.Is(err, repository.ErrTombstonesUnsupported) {
		return fmt.Errorf("failed to record page tombstone: %w", err)
	}
	return nil
}
