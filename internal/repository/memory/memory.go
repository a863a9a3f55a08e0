// Package memory provides an in-memory LocalStore, used by tests and as a
// throwaway backend for experiments.
package memory

import (
	"context"
	"sync"

	"leaflet-sync/internal/domain"
	"leaflet-sync/internal/repository"
)

type Store struct {
	mu               sync.RWMutex
	folders          map[string]*domain.Folder
	pages            map[string]*domain.Page
	folderTombstones map[string]*domain.Tombstone
	pageTombstones   map[string]*domain.Tombstone
	noTombstones     bool
}

func New() *Store {
	return &Store{
		folders:          make(map[string]*domain.Folder),
		pages:            make(map[string]*domain.Page),
		folderTombstones: make(map[string]*domain.Tombstone),
		pageTombstones:   make(map[string]*domain.Tombstone),
	}
}

// NewWithoutTombstones returns a store whose tombstone operations fail with
// ErrTombstonesUnsupported, mimicking a database from before the deletion
// collections existed.
func NewWithoutTombstones() *Store {
	s := New()
	s.noTombstones = true
	return s
}

func (s *Store) ListFolders(ctx context.Context) ([]*domain.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	folders := make([]*domain.Folder, 0, len(s.folders))
	for _, f := range s.folders {
		folders = append(folders, cloneFolder(f))
	}
	return folders, nil
}

func (s *Store) GetFolder(ctx context.Context, id string) (*domain.Folder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	f, ok := s.folders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneFolder(f), nil
}

func (s *Store) PutFolder(ctx context.Context, folder *domain.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.folders[folder.ID] = cloneFolder(folder)
	return nil
}

func (s *Store) DeleteFolder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.folders, id)
	return nil
}

func (s *Store) ListPages(ctx context.Context) ([]*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pages := make([]*domain.Page, 0, len(s.pages))
	for _, p := range s.pages {
		pages = append(pages, clonePage(p))
	}
	return pages, nil
}

func (s *Store) GetPage(ctx context.Context, id string) (*domain.Page, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return clonePage(p), nil
}

func (s *Store) PutPage(ctx context.Context, page *domain.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pages[page.ID] = clonePage(page)
	return nil
}

func (s *Store) DeletePage(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pages, id)
	return nil
}

func (s *Store) ListFolderTombstones(ctx context.Context) ([]*domain.Tombstone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.noTombstones {
		return nil, repository.ErrTombstonesUnsupported
	}
	return cloneTombstones(s.folderTombstones), nil
}

func (s *Store) PutFolderTombstone(ctx context.Context, tombstone *domain.Tombstone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.noTombstones {
		return repository.ErrTombstonesUnsupported
	}
	ts := *tombstone
	s.folderTombstones[ts.EntityID] = &ts
	return nil
}

func (s *Store) ListPageTombstones(ctx context.Context) ([]*domain.Tombstone, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.noTombstones {
		return nil, repository.ErrTombstonesUnsupported
	}
	return cloneTombstones(s.pageTombstones), nil
}

func (s *Store) PutPageTombstone(ctx context.Context, tombstone *domain.Tombstone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.noTombstones {
		return repository.ErrTombstonesUnsupported
	}
	ts := *tombstone
	s.pageTombstones[ts.EntityID] = &ts
	return nil
}

func (s *Store) ReplaceFolders(ctx context.Context, folders []*domain.Folder) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.folders = make(map[string]*domain.Folder, len(folders))
	for _, f := range folders {
		s.folders[f.ID] = cloneFolder(f)
	}
	return nil
}

func (s *Store) ReplacePages(ctx context.Context, pages []*domain.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pages = make(map[string]*domain.Page, len(pages))
	for _, p := range pages {
		s.pages[p.ID] = clonePage(p)
	}
	return nil
}

func (s *Store) ReplaceFolderTombstones(ctx context.Context, tombstones []*domain.Tombstone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.noTombstones {
		return repository.ErrTombstonesUnsupported
	}
	s.folderTombstones = make(map[string]*domain.Tombstone, len(tombstones))
	for _, t := range tombstones {
		ts := *t
		s.folderTombstones[ts.EntityID] = &ts
	}
	return nil
}

func (s *Store) ReplacePageTombstones(ctx context.Context, tombstones []*domain.Tombstone) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.noTombstones {
		return repository.ErrTombstonesUnsupported
	}
	s.pageTombstones = make(map[string]*domain.Tombstone, len(tombstones))
	for _, t := range tombstones {
		ts := *t
		s.pageTombstones[ts.EntityID] = &ts
	}
	return nil
}

func cloneFolder(f *domain.Folder) *domain.Folder {
	c := *f
	if f.ParentID != nil {
		parent := *f.ParentID
		c.ParentID = &parent
	}
	return &c
}

func clonePage(p *domain.Page) *domain.Page {
	c := *p
	if p.FolderID != nil {
		folder := *p.FolderID
		c.FolderID = &folder
	}
	return &c
}

func cloneTombstones(m map[string]*domain.Tombstone) []*domain.Tombstone {
	tombstones := make([]*domain.Tombstone, 0, len(m))
	for _, t := range m {
		ts := *t
		tombstones = append(tombstones, &ts)
	}
	return tombstones
}
