// Package remote defines the blob-store interface the sync engine runs
// against. Adapters live in the subpackages.
package remote

import (
	"context"
	"errors"
)

// Well-known object names in the remote store.
const (
	FolderIndexName          = "folders.json"
	FolderTombstoneIndexName = "deletedFolders.json"
	PageIndexName            = "pages.json"
	PageTombstoneIndexName   = "deletedPages.json"
)

// ErrNotFound is returned when a requested object does not exist remotely.
var ErrNotFound = errors.New("object not found")

// Store is a flat blob store holding the four index documents plus one
// content object per page. Implementations must translate their backend's
// missing-object error into ErrNotFound.
type Store interface {
	// GetIndex fetches the raw bytes of a named index document.
	GetIndex(ctx context.Context, name string) ([]byte, error)
	// PutIndex overwrites a named index document.
	PutIndex(ctx context.Context, name string, data []byte) error

	// GetPageContent fetches the UTF-8 content of one page.
	GetPageContent(ctx context.Context, id string) (string, error)
	// PutPageContent overwrites the content of one page.
	PutPageContent(ctx context.Context, id string, content string) error
	// DeletePageContent removes the content of one page. Deleting an
	// absent object succeeds.
	DeletePageContent(ctx context.Context, id string) error

	// ListPageContentIDs returns the ids of every page content object
	// present remotely.
	ListPageContentIDs(ctx context.Context) ([]string, error)

	// Clear removes every object in the namespace, indexes and content
	// alike. Destructive; used only by explicit reset flows.
	Clear(ctx context.Context) error
}
