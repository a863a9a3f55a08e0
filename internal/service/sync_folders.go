package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"leaflet-sync/internal/domain"
	"leaflet-sync/internal/remote"
	"leaflet-sync/internal/repository"
)

// syncFolders reconciles the folder trees. Folders are cheap, so remote-side
// changes are applied locally right away, and any change in either direction
// triggers a whole-snapshot rewrite of the remote index: folders.json always
// reflects this client's complete current view.
func (s *SyncService) syncFolders(ctx context.Context, run *syncRun) error {
	local, err := s.local.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list local folders: %w", err)
	}

	data, present, err := s.getIndex(ctx, remote.FolderIndexName)
	if err != nil {
		return err
	}

	if !present {
		// First sync against this namespace: seed it with the local tree.
		live := liveFolders(local, run.tombstonedFolders)
		run.result.FoldersUploaded += len(live)
		return s.uploadFolderIndex(ctx, live)
	}

	remoteFolders, err := s.codec.DecodeFolderIndex(data)
	if err != nil {
		return err
	}

	localByID := folderMap(local)
	remoteByID := folderMap(remoteFolders)

	changed := false

	for id, rf := range remoteByID {
		lf, ok := localByID[id]
		switch {
		case !ok:
			if run.tombstonedFolders[id] {
				// Deleted on some replica. Marking the run changed makes
				// the rewrite below drop the entry instead of reviving it.
				changed = true
				continue
			}
			if err := s.local.PutFolder(ctx, rf); err != nil {
				return fmt.Errorf("failed to apply remote folder %s: %w", id, err)
			}
			run.result.FoldersDownloaded++
			changed = true
		case domain.Newer(rf.UpdatedAt, lf.UpdatedAt):
			if err := s.local.PutFolder(ctx, rf); err != nil {
				return fmt.Errorf("failed to apply remote folder %s: %w", id, err)
			}
			run.result.FoldersDownloaded++
			changed = true
		case domain.Newer(lf.UpdatedAt, rf.UpdatedAt):
			run.result.FoldersUploaded++
			changed = true
		}
	}

	for id := range localByID {
		if _, ok := remoteByID[id]; ok {
			continue
		}
		if run.tombstonedFolders[id] {
			// About to be removed by the tombstone stage; the remote
			// index already has no entry for it.
			continue
		}
		run.result.FoldersUploaded++
		changed = true
	}

	if !changed {
		return nil
	}

	merged, err := s.local.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to re-read local folders: %w", err)
	}
	return s.uploadFolderIndex(ctx, liveFolders(merged, run.tombstonedFolders))
}

// syncFolderTombstones applies remote folder deletions locally and pushes
// the merged tombstone set back. Local deletions are silent: the tombstone
// that caused them already exists remotely.
func (s *SyncService) syncFolderTombstones(ctx context.Context, run *syncRun) error {
	for _, ts := range run.remoteFolderTombstones {
		if _, err := s.local.GetFolder(ctx, ts.EntityID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return fmt.Errorf("failed to check folder %s: %w", ts.EntityID, err)
		}
		if err := s.local.DeleteFolder(ctx, ts.EntityID); err != nil {
			return fmt.Errorf("failed to delete folder %s: %w", ts.EntityID, err)
		}
		run.result.FoldersDeleted++
	}

	if run.folderTombstonesUnsupported {
		log.Printf("[sync] local store has no folder tombstone collection, skipping tombstone upload")
		return nil
	}

	merged := domain.MergeTombstones(run.localFolderTombstones, run.remoteFolderTombstones)
	if len(merged) == 0 && !run.folderTombstoneIndexPresent {
		return nil
	}

	data, err := s.codec.EncodeFolderTombstones(merged)
	if err != nil {
		return err
	}
	return s.putIndex(ctx, remote.FolderTombstoneIndexName, data)
}

func (s *SyncService) uploadFolderIndex(ctx context.Context, folders []*domain.Folder) error {
	data, err := s.codec.EncodeFolderIndex(folders)
	if err != nil {
		return err
	}
	return s.putIndex(ctx, remote.FolderIndexName, data)
}

func folderMap(folders []*domain.Folder) map[string]*domain.Folder {
	m := make(map[string]*domain.Folder, len(folders))
	for _, f := range folders {
		m[f.ID] = f
	}
	return m
}

func liveFolders(folders []*domain.Folder, tombstoned map[string]bool) []*domain.Folder {
	live := make([]*domain.Folder, 0, len(folders))
	for _, f := range folders {
		if tombstoned[f.ID] {
			continue
		}
		live = append(live, f)
	}
	return live
}
