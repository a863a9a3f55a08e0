package domain

import "time"

type Page struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	FolderID *string `json:"folderId"`
	Content  string  `json:"content"`
	// SyncedHash is the content hash this replica last uploaded or
	// downloaded for the page. Empty until the page first syncs. It never
	// leaves the local store.
	SyncedHash string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

type PageMetadata struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	FolderID    *string   `json:"folderId"`
	ContentHash string    `json:"contentHash"`
	Size        int       `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (p *Page) Metadata(contentHash string) *PageMetadata {
	return &PageMetadata{
		ID:          p.ID,
		Name:        p.Name,
		FolderID:    p.FolderID,
		ContentHash: contentHash,
		Size:        len(p.Content),
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
