package wire

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"leaflet-sync/internal/domain"

	"github.com/go-playground/validator/v10"
)

// Version is the index file format version. Readers reject anything else;
// there is no forward-compat best effort.
const Version = 1

type VersionError struct {
	Got int
}

func (e *VersionError) Error() string {
	return fmt.Sprintf("unsupported index version %d, want %d", e.Got, Version)
}

type folderEntry struct {
	ID        string  `json:"id" validate:"required"`
	Name      string  `json:"name"`
	ParentID  *string `json:"parentId"`
	Order     int     `json:"order"`
	CreatedAt int64   `json:"createdAt"`
	UpdatedAt int64   `json:"updatedAt" validate:"required"`
}

type folderIndex struct {
	Version      int           `json:"version"`
	LastModified int64         `json:"lastModified"`
	Folders      []folderEntry `json:"folders" validate:"dive"`
}

type pageEntry struct {
	ID          string  `json:"id" validate:"required"`
	Name        string  `json:"name"`
	FolderID    *string `json:"folderId"`
	ContentHash string  `json:"contentHash" validate:"omitempty,len=64,hexadecimal"`
	Size        int     `json:"size" validate:"gte=0"`
	CreatedAt   int64   `json:"createdAt"`
	UpdatedAt   int64   `json:"updatedAt" validate:"required"`
}

type pageIndex struct {
	Version      int         `json:"version"`
	LastModified int64       `json:"lastModified"`
	Pages        []pageEntry `json:"pages" validate:"dive"`
}

type folderTombstoneEntry struct {
	FolderID  string `json:"folderId" validate:"required"`
	DeletedAt int64  `json:"deletedAt" validate:"required"`
}

type folderTombstoneIndex struct {
	Version int                    `json:"version"`
	Deleted []folderTombstoneEntry `json:"deleted" validate:"dive"`
}

type pageTombstoneEntry struct {
	PageID    string `json:"pageId" validate:"required"`
	DeletedAt int64  `json:"deletedAt" validate:"required"`
}

type pageTombstoneIndex struct {
	Version int                  `json:"version"`
	Deleted []pageTombstoneEntry `json:"deleted" validate:"dive"`
}

type Codec struct {
	validate *validator.Validate
}

func NewCodec() *Codec {
	return &Codec{validate: validator.New()}
}

func (c *Codec) EncodeFolderIndex(folders []*domain.Folder) ([]byte, error) {
	entries := make([]folderEntry, 0, len(folders))
	for _, f := range folders {
		entries = append(entries, folderEntry{
			ID:        f.ID,
			Name:      f.Name,
			ParentID:  f.ParentID,
			Order:     f.Order,
			CreatedAt: f.CreatedAt.UnixMilli(),
			UpdatedAt: f.UpdatedAt.UnixMilli(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	data, err := json.Marshal(folderIndex{
		Version:      Version,
		LastModified: time.Now().UnixMilli(),
		Folders:      entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode folder index: %w", err)
	}
	return data, nil
}

func (c *Codec) DecodeFolderIndex(data []byte) ([]*domain.Folder, error) {
	var idx folderIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse folder index: %w", err)
	}
	if idx.Version != Version {
		return nil, &VersionError{Got: idx.Version}
	}
	if err := c.validate.Struct(&idx); err != nil {
		return nil, fmt.Errorf("invalid folder index: %w", err)
	}

	folders := make([]*domain.Folder, 0, len(idx.Folders))
	for _, e := range idx.Folders {
		folders = append(folders, &domain.Folder{
			ID:        e.ID,
			Name:      e.Name,
			ParentID:  e.ParentID,
			Order:     e.Order,
			CreatedAt: time.UnixMilli(e.CreatedAt),
			UpdatedAt: time.UnixMilli(e.UpdatedAt),
		})
	}
	return folders, nil
}

func (c *Codec) EncodePageIndex(pages []*domain.PageMetadata) ([]byte, error) {
	entries := make([]pageEntry, 0, len(pages))
	for _, p := range pages {
		entries = append(entries, pageEntry{
			ID:          p.ID,
			Name:        p.Name,
			FolderID:    p.FolderID,
			ContentHash: p.ContentHash,
			Size:        p.Size,
			CreatedAt:   p.CreatedAt.UnixMilli(),
			UpdatedAt:   p.UpdatedAt.UnixMilli(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	data, err := json.Marshal(pageIndex{
		Version:      Version,
		LastModified: time.Now().UnixMilli(),
		Pages:        entries,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode page index: %w", err)
	}
	return data, nil
}

func (c *Codec) DecodePageIndex(data []byte) ([]*domain.PageMetadata, error) {
	var idx pageIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse page index: %w", err)
	}
	if idx.Version != Version {
		return nil, &VersionError{Got: idx.Version}
	}
	if err := c.validate.Struct(&idx); err != nil {
		return nil, fmt.Errorf("invalid page index: %w", err)
	}

	pages := make([]*domain.PageMetadata, 0, len(idx.Pages))
	for _, e := range idx.Pages {
		pages = append(pages, &domain.PageMetadata{
			ID:          e.ID,
			Name:        e.Name,
			FolderID:    e.FolderID,
			ContentHash: e.ContentHash,
			Size:        e.Size,
			CreatedAt:   time.UnixMilli(e.CreatedAt),
			UpdatedAt:   time.UnixMilli(e.UpdatedAt),
		})
	}
	return pages, nil
}

func (c *Codec) EncodeFolderTombstones(tombstones []*domain.Tombstone) ([]byte, error) {
	entries := make([]folderTombstoneEntry, 0, len(tombstones))
	for _, ts := range tombstones {
		entries = append(entries, folderTombstoneEntry{
			FolderID:  ts.EntityID,
			DeletedAt: ts.DeletedAt.UnixMilli(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].FolderID < entries[j].FolderID })

	data, err := json.Marshal(folderTombstoneIndex{Version: Version, Deleted: entries})
	if err != nil {
		return nil, fmt.Errorf("failed to encode folder tombstones: %w", err)
	}
	return data, nil
}

func (c *Codec) DecodeFolderTombstones(data []byte) ([]*domain.Tombstone, error) {
	var idx folderTombstoneIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse folder tombstones: %w", err)
	}
	if idx.Version != Version {
		return nil, &VersionError{Got: idx.Version}
	}
	if err := c.validate.Struct(&idx); err != nil {
		return nil, fmt.Errorf("invalid folder tombstones: %w", err)
	}

	tombstones := make([]*domain.Tombstone, 0, len(idx.Deleted))
	for _, e := range idx.Deleted {
		tombstones = append(tombstones, &domain.Tombstone{
			EntityID:  e.FolderID,
			DeletedAt: time.UnixMilli(e.DeletedAt),
		})
	}
	return tombstones, nil
}

func (c *Codec) EncodePageTombstones(tombstones []*domain.Tombstone) ([]byte, error) {
	entries := make([]pageTombstoneEntry, 0, len(tombstones))
	for _, ts := range tombstones {
		entries = append(entries, pageTombstoneEntry{
			PageID:    ts.EntityID,
			DeletedAt: ts.DeletedAt.UnixMilli(),
		})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PageID < entries[j].PageID })

	data, err := json.Marshal(pageTombstoneIndex{Version: Version, Deleted: entries})
	if err != nil {
		return nil, fmt.Errorf("failed to encode page tombstones: %w", err)
	}
	return data, nil
}

func (c *Codec) DecodePageTombstones(data []byte) ([]*domain.Tombstone, error) {
	var idx pageTombstoneIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("failed to parse page tombstones: %w", err)
	}
	if idx.Version != Version {
		return nil, &VersionError{Got: idx.Version}
	}
	if err := c.validate.Struct(&idx); err != nil {
		return nil, fmt.Errorf("invalid page tombstones: %w", err)
	}

	tombstones := make([]*domain.Tombstone, 0, len(idx.Deleted))
	for _, e := range idx.Deleted {
		tombstones = append(tombstones, &domain.Tombstone{
			EntityID:  e.PageID,
			DeletedAt: time.UnixMilli(e.DeletedAt),
		})
	}
	return tombstones, nil
}
