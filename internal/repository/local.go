package repository

import (
	"context"
	"errors"

	"leaflet-sync/internal/domain"
)

var (
	ErrNotFound = errors.New("repository: not found")

	// ErrTombstonesUnsupported is returned by stores whose schema predates
	// the tombstone collections. The sync engine degrades gracefully.
	ErrTombstonesUnsupported = errors.New("repository: tombstone collection unsupported")
)

type LocalStore interface {
	ListFolders(ctx context.Context) ([]*domain.Folder, error)
	GetFolder(ctx context.Context, id string) (*domain.Folder, error)
	PutFolder(ctx context.Context, folder *domain.Folder) error
	DeleteFolder(ctx context.Context, id string) error

	ListPages(ctx context.Context) ([]*domain.Page, error)
	GetPage(ctx context.Context, id string) (*domain.Page, error)
	PutPage(ctx context.Context, page *domain.Page) error
	DeletePage(ctx context.Context, id string) error

	ListFolderTombstones(ctx context.Context) ([]*domain.Tombstone, error)
	PutFolderTombstone(ctx context.Context, tombstone *domain.Tombstone) error
	ListPageTombstones(ctx context.Context) ([]*domain.Tombstone, error)
	PutPageTombstone(ctx context.Context, tombstone *domain.Tombstone) error

	ReplaceFolders(ctx context.Context, folders []*domain.Folder) error
	ReplacePages(ctx context.Context, pages []*domain.Page) error
	ReplaceFolderTombstones(ctx context.Context, tombstones []*domain.Tombstone) error
	ReplacePageTombstones(ctx context.Context, tombstones []*domain.Tombstone) error
}
