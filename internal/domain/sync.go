package domain

import "fmt"

type SyncState string

const (
	SyncStateIdle      SyncState = "idle"
	SyncStateSyncing   SyncState = "syncing"
	SyncStateCompleted SyncState = "completed"
	SyncStateFailed    SyncState = "failed"
)

type SyncResult struct {
	Success           bool     `json:"success"`
	FoldersUploaded   int      `json:"foldersUploaded"`
	FoldersDownloaded int      `json:"foldersDownloaded"`
	FoldersDeleted    int      `json:"foldersDeleted"`
	PagesUploaded     int      `json:"pagesUploaded"`
	PagesDownloaded   int      `json:"pagesDownloaded"`
	PagesDeleted      int      `json:"pagesDeleted"`
	Conflicts         int      `json:"conflicts"`
	Errors            []string `json:"errors"`
}

func NewSyncResult() *SyncResult {
	return &SyncResult{Success: true, Errors: []string{}}
}

func (r *SyncResult) AddError(format string, args ...interface{}) {
	r.Success = false
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *SyncResult) Summary() string {
	return fmt.Sprintf("folders %d up / %d down / %d deleted, pages %d up / %d down / %d deleted, %d conflicts, %d errors",
		r.FoldersUploaded, r.FoldersDownloaded, r.FoldersDeleted,
		r.PagesUploaded, r.PagesDownloaded, r.PagesDeleted,
		r.Conflicts, len(r.Errors))
}
