package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"leaflet-sync/internal/domain"
	"leaflet-sync/internal/remote"
	"leaflet-sync/pkg/hash"

	"github.com/google/uuid"
)

// syncPageContent moves page text both ways and is where true conflicts are
// detected. It works against fresh state: the tombstone stage may have
// deleted local rows and the metadata stage may have rewritten the remote
// index. Individual page failures are recorded and the stage carries on.
func (s *SyncService) syncPageContent(ctx context.Context, run *syncRun) error {
	pages, err := s.local.ListPages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list local pages: %w", err)
	}

	data, present, err := s.getIndex(ctx, remote.PageIndexName)
	if err != nil {
		return err
	}
	var remoteMeta []*domain.PageMetadata
	if present {
		remoteMeta, err = s.codec.DecodePageIndex(data)
		if err != nil {
			return err
		}
	}

	contentIDs, err := s.remote.ListPageContentIDs(ctx)
	if err != nil {
		return fmt.Errorf("remote store unavailable: %w", err)
	}
	contentPresent := make(map[string]bool, len(contentIDs))
	for _, id := range contentIDs {
		contentPresent[id] = true
	}

	localByID := pageMap(pages)
	remoteByID := pageMetaMap(remoteMeta)

	s.uploadPass(ctx, run, pages, remoteByID, contentPresent)

	if err := s.downloadPass(ctx, run, localByID, contentPresent); err != nil {
		return err
	}

	if err := s.orphanPass(ctx, run, contentIDs, localByID, remoteByID); err != nil {
		return err
	}

	// Final index write: after the passes above the local store is the
	// converged view, so publish it whenever it drifted from what the
	// remote index currently says. This is also what scrubs entries whose
	// page and content are both gone.
	final, err := s.local.ListPages(ctx)
	if err != nil {
		return fmt.Errorf("failed to re-read local pages: %w", err)
	}
	finalMeta := livePageMetadata(s.derivePageMetadata(final), run.tombstonedPages)
	s.resolveIndexTies(ctx, run, finalMeta, remoteByID)
	if metadataEqual(finalMeta, remoteMeta) {
		return nil
	}
	return s.uploadPageIndex(ctx, finalMeta)
}

// resolveIndexTies handles entries where the timestamps agree but the hashes
// do not. Recency cannot break such a tie, and publishing the local view
// would make the two replicas rewrite the index back and forth on every run.
// The content file is the ground truth for what the index should describe:
// if it still holds this replica's text the remote entry is stale and gets
// corrected, otherwise the remote entry stands.
func (s *SyncService) resolveIndexTies(ctx context.Context, run *syncRun,
	finalMeta []*domain.PageMetadata, remoteByID map[string]*domain.PageMetadata) {

	for i, m := range finalMeta {
		rm, ok := remoteByID[m.ID]
		if !ok || run.uploadedContent[m.ID] {
			continue
		}
		if m.UpdatedAt.UnixMilli() != rm.UpdatedAt.UnixMilli() || m.ContentHash == rm.ContentHash {
			continue
		}
		content, err := s.remote.GetPageContent(ctx, m.ID)
		if err != nil {
			continue
		}
		if hash.Content(content) != m.ContentHash {
			finalMeta[i] = rm
		}
	}
}

// uploadPass pushes every local page whose content the remote is missing or
// does not match. A page is uploaded when the metadata stage planned it,
// when the remote has no index entry or no content file for it, or when its
// content no longer matches what this replica last synchronized.
func (s *SyncService) uploadPass(ctx context.Context, run *syncRun, pages []*domain.Page,
	remoteByID map[string]*domain.PageMetadata, contentPresent map[string]bool) {

	for _, p := range pages {
		if run.downloadPlan[p.ID] != nil {
			// Remote is ahead for this page; the download pass decides.
			continue
		}
		if run.tombstonedPages[p.ID] {
			continue
		}

		digest := s.hasher.Sum(p.ID, p.UpdatedAt.UnixMilli(), p.Content)
		_, hasEntry := remoteByID[p.ID]
		needsUpload := run.uploadPlan[p.ID] ||
			!hasEntry ||
			!contentPresent[p.ID] ||
			digest != p.SyncedHash
		if !needsUpload {
			continue
		}

		if err := s.remote.PutPageContent(ctx, p.ID, p.Content); err != nil {
			run.result.AddError("failed to upload content for page %s: %v", p.ID, err)
			continue
		}
		p.SyncedHash = digest
		if err := s.local.PutPage(ctx, p); err != nil {
			run.result.AddError("failed to record synced state for page %s: %v", p.ID, err)
			continue
		}
		run.result.PagesUploaded++
		run.uploadedContent[p.ID] = true
		contentPresent[p.ID] = true
	}
}

// downloadPass resolves every download the metadata stage planned: new pages
// are fetched and created, diverged pages are either cleanly overwritten or
// split into a conflict copy plus the remote version.
func (s *SyncService) downloadPass(ctx context.Context, run *syncRun,
	localByID map[string]*domain.Page, contentPresent map[string]bool) error {

	ids := make([]string, 0, len(run.downloadPlan))
	for id := range run.downloadPlan {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rm := run.downloadPlan[id]
		lp := localByID[id]

		if lp == nil {
			content, err := s.remote.GetPageContent(ctx, id)
			if errors.Is(err, remote.ErrNotFound) {
				log.Printf("[sync] page %s is indexed but its content file is missing, leaving it for the uploading replica to repair", id)
				continue
			}
			if err != nil {
				run.result.AddError("failed to download content for page %s: %v", id, err)
				continue
			}
			page := pageFromMetadata(rm, content)
			page.SyncedHash = hash.Content(content)
			if err := s.local.PutPage(ctx, page); err != nil {
				return fmt.Errorf("failed to create page %s: %w", id, err)
			}
			contentPresent[id] = true
			run.result.PagesDownloaded++
			continue
		}

		localDigest := s.hasher.Sum(lp.ID, lp.UpdatedAt.UnixMilli(), lp.Content)
		if localDigest == rm.ContentHash {
			// Same text on both sides; only name/folder/timestamps moved.
			if err := s.adoptPageMetadata(ctx, lp, rm, localDigest); err != nil {
				return err
			}
			continue
		}
		if domain.Newer(lp.UpdatedAt, rm.UpdatedAt) {
			// Local recency wins; the upload pass already handled it.
			continue
		}

		content, err := s.remote.GetPageContent(ctx, id)
		if errors.Is(err, remote.ErrNotFound) {
			log.Printf("[sync] page %s is indexed but its content file is missing, leaving it for the uploading replica to repair", id)
			continue
		}
		if err != nil {
			run.result.AddError("failed to download content for page %s: %v", id, err)
			continue
		}

		if content == lp.Content {
			// The recorded hash was stale; the bytes agree, so no
			// conflict. Adopt metadata and move on.
			if err := s.adoptPageMetadata(ctx, lp, rm, hash.Content(content)); err != nil {
				return err
			}
			continue
		}

		if lp.SyncedHash == localDigest {
			// This replica has not touched the page since its last sync;
			// only the remote moved. Plain overwrite, no conflict.
			if err := s.applyRemotePage(ctx, lp, rm, content); err != nil {
				return err
			}
			run.result.PagesDownloaded++
			continue
		}

		// Both replicas changed the page since they last agreed. Preserve
		// the local text as a new page, then let the original follow the
		// remote version.
		if err := s.createConflictCopy(ctx, run, lp); err != nil {
			return err
		}
		if err := s.applyRemotePage(ctx, lp, rm, content); err != nil {
			return err
		}
		run.result.Conflicts++
		run.result.PagesDownloaded++
	}
	return nil
}

// orphanPass walks the remote content listing. Content for tombstoned pages
// is deleted; content with neither an index entry nor a local page is
// adopted as a recovered page so no text is ever stranded.
func (s *SyncService) orphanPass(ctx context.Context, run *syncRun, contentIDs []string,
	localByID map[string]*domain.Page, remoteByID map[string]*domain.PageMetadata) error {

	sorted := make([]string, len(contentIDs))
	copy(sorted, contentIDs)
	sort.Strings(sorted)

	for _, id := range sorted {
		if run.tombstonedPages[id] {
			if err := s.remote.DeletePageContent(ctx, id); err != nil {
				run.result.AddError("failed to delete remote content for page %s: %v", id, err)
			}
			continue
		}
		if _, ok := remoteByID[id]; ok {
			continue
		}
		if localByID[id] != nil {
			// The upload pass has already re-indexed it.
			continue
		}

		content, err := s.remote.GetPageContent(ctx, id)
		if errors.Is(err, remote.ErrNotFound) {
			continue
		}
		if err != nil {
			run.result.AddError("failed to recover content for page %s: %v", id, err)
			continue
		}

		log.Printf("[sync] recovering page %s from an unindexed content file", id)
		now := time.Now()
		page := &domain.Page{
			ID:         id,
			Name:       id,
			Content:    content,
			SyncedHash: hash.Content(content),
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if err := s.local.PutPage(ctx, page); err != nil {
			return fmt.Errorf("failed to recover page %s: %w", id, err)
		}
		run.result.PagesDownloaded++
	}
	return nil
}

// createConflictCopy preserves the local version of a diverged page under a
// fresh id and pushes it to the remote so every replica ends up seeing both
// versions.
func (s *SyncService) createConflictCopy(ctx context.Context, run *syncRun, original *domain.Page) error {
	now := time.Now()
	dup := &domain.Page{
		ID:        uuid.New().String(),
		Name:      fmt.Sprintf("%s (conflict %s)", original.Name, now.Format("2006-01-02 15:04:05")),
		FolderID:  original.FolderID,
		Content:   original.Content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.local.PutPage(ctx, dup); err != nil {
		return fmt.Errorf("failed to create conflict copy of page %s: %w", original.ID, err)
	}
	log.Printf("[sync] conflict on page %s, local version preserved as %s", original.ID, dup.ID)

	if err := s.remote.PutPageContent(ctx, dup.ID, dup.Content); err != nil {
		run.result.AddError("failed to upload conflict copy %s: %v", dup.ID, err)
		return nil
	}
	dup.SyncedHash = hash.Content(dup.Content)
	if err := s.local.PutPage(ctx, dup); err != nil {
		return fmt.Errorf("failed to record synced state for page %s: %w", dup.ID, err)
	}
	run.result.PagesUploaded++
	run.uploadedContent[dup.ID] = true
	return nil
}

func (s *SyncService) adoptPageMetadata(ctx context.Context, page *domain.Page, meta *domain.PageMetadata, digest string) error {
	if page.Name == meta.Name && sameFolderRef(page.FolderID, meta.FolderID) &&
		page.UpdatedAt.UnixMilli() == meta.UpdatedAt.UnixMilli() && page.SyncedHash == digest {
		return nil
	}
	page.Name = meta.Name
	page.FolderID = meta.FolderID
	page.CreatedAt = meta.CreatedAt
	page.UpdatedAt = meta.UpdatedAt
	page.SyncedHash = digest
	if err := s.local.PutPage(ctx, page); err != nil {
		return fmt.Errorf("failed to update page %s: %w", page.ID, err)
	}
	return nil
}

func (s *SyncService) applyRemotePage(ctx context.Context, page *domain.Page, meta *domain.PageMetadata, content string) error {
	page.Name = meta.Name
	page.FolderID = meta.FolderID
	page.Content = content
	page.CreatedAt = meta.CreatedAt
	page.UpdatedAt = meta.UpdatedAt
	page.SyncedHash = hash.Content(content)
	if err := s.local.PutPage(ctx, page); err != nil {
		return fmt.Errorf("failed to apply remote page %s: %w", page.ID, err)
	}
	return nil
}

func pageFromMetadata(meta *domain.PageMetadata, content string) *domain.Page {
	return &domain.Page{
		ID:        meta.ID,
		Name:      meta.Name,
		FolderID:  meta.FolderID,
		Content:   content,
		CreatedAt: meta.CreatedAt,
		UpdatedAt: meta.UpdatedAt,
	}
}

func pageMap(pages []*domain.Page) map[string]*domain.Page {
	m := make(map[string]*domain.Page, len(pages))
	for _, p := range pages {
		m[p.ID] = p
	}
	return m
}

func metadataEqual(a, b []*domain.PageMetadata) bool {
	if len(a) != len(b) {
		return false
	}
	byID := pageMetaMap(a)
	for _, m := range b {
		o, ok := byID[m.ID]
		if !ok || !metaEntryEqual(o, m) {
			return false
		}
	}
	return true
}

func metaEntryEqual(a, b *domain.PageMetadata) bool {
	return a.Name == b.Name &&
		sameFolderRef(a.FolderID, b.FolderID) &&
		a.ContentHash == b.ContentHash &&
		a.Size == b.Size &&
		a.CreatedAt.UnixMilli() == b.CreatedAt.UnixMilli() &&
		a.UpdatedAt.UnixMilli() == b.UpdatedAt.UnixMilli()
}
