package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"leaflet-sync/internal/domain"
	"leaflet-sync/internal/remote"
	"leaflet-sync/internal/repository"
	"leaflet-sync/pkg/hash"
)

// syncPageMetadata diffs local pages against the remote page index and
// records the outcome in the run's upload/download plans. Unlike folders,
// nothing is materialized locally here: the content stage moves the actual
// text. The index is rewritten from the local snapshot when the diff found
// local-side changes; a pure-download diff leaves the index to the content
// stage's final write, which runs after the downloads have landed.
func (s *SyncService) syncPageMetadata(ctx context.Context, run *syncRun) error {
	pages, err := s.local.ListPages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list local pages: %w", err)
	}
	localMeta := s.derivePageMetadata(pages)

	data, present, err := s.getIndex(ctx, remote.PageIndexName)
	if err != nil {
		return err
	}

	if !present {
		live := livePageMetadata(localMeta, run.tombstonedPages)
		for _, m := range live {
			run.uploadPlan[m.ID] = true
		}
		return s.uploadPageIndex(ctx, live)
	}

	remoteMeta, err := s.codec.DecodePageIndex(data)
	if err != nil {
		return err
	}

	localByID := pageMetaMap(localMeta)
	remoteByID := pageMetaMap(remoteMeta)

	uploadPlanned := false
	suppressed := false

	for id, rm := range remoteByID {
		lm, ok := localByID[id]
		switch {
		case !ok:
			if run.tombstonedPages[id] {
				// Deleted on some replica; rewrite the index without it
				// rather than planning a download that would revive it.
				suppressed = true
				continue
			}
			run.downloadPlan[id] = rm
		case domain.Newer(lm.UpdatedAt, rm.UpdatedAt):
			run.uploadPlan[id] = true
			uploadPlanned = true
		case domain.Newer(rm.UpdatedAt, lm.UpdatedAt):
			run.downloadPlan[id] = rm
		}
	}

	for id := range localByID {
		if _, ok := remoteByID[id]; ok {
			continue
		}
		if run.tombstonedPages[id] {
			// The tombstone stage removes the local row shortly.
			continue
		}
		run.uploadPlan[id] = true
		uploadPlanned = true
	}

	if uploadPlanned || suppressed {
		return s.uploadPageIndex(ctx, livePageMetadata(localMeta, run.tombstonedPages))
	}
	return nil
}

// syncPageTombstones applies remote page deletions locally, removes the
// dead pages' remote content files, and pushes the merged tombstone set.
func (s *SyncService) syncPageTombstones(ctx context.Context, run *syncRun) error {
	for _, ts := range run.remotePageTombstones {
		if _, err := s.local.GetPage(ctx, ts.EntityID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			return fmt.Errorf("failed to check page %s: %w", ts.EntityID, err)
		}
		if err := s.local.DeletePage(ctx, ts.EntityID); err != nil {
			return fmt.Errorf("failed to delete page %s: %w", ts.EntityID, err)
		}
		run.result.PagesDeleted++

		// The row is gone; any planned content move for it is obsolete.
		delete(run.uploadPlan, ts.EntityID)
		delete(run.downloadPlan, ts.EntityID)

		if err := s.remote.DeletePageContent(ctx, ts.EntityID); err != nil {
			run.result.AddError("failed to delete remote content for page %s: %v", ts.EntityID, err)
		}
	}

	// Deletions made here while offline have a tombstone locally but the
	// page's content blob may still sit in the remote namespace.
	remoteSet := tombstoneIDSet(run.remotePageTombstones)
	for _, ts := range run.localPageTombstones {
		if remoteSet[ts.EntityID] {
			continue
		}
		if err := s.remote.DeletePageContent(ctx, ts.EntityID); err != nil {
			run.result.AddError("failed to delete remote content for page %s: %v", ts.EntityID, err)
		}
	}

	if run.pageTombstonesUnsupported {
		log.Printf("[sync] local store has no page tombstone collection, skipping tombstone upload")
		return nil
	}

	merged := domain.MergeTombstones(run.localPageTombstones, run.remotePageTombstones)
	if len(merged) == 0 && !run.pageTombstoneIndexPresent {
		return nil
	}

	data, err := s.codec.EncodePageTombstones(merged)
	if err != nil {
		return err
	}
	return s.putIndex(ctx, remote.PageTombstoneIndexName, data)
}

// derivePageMetadata builds the metadata snapshot for a set of pages. The
// batch hasher fans the digesting out and its cache makes untouched pages
// free on repeat runs.
func (s *SyncService) derivePageMetadata(pages []*domain.Page) []*domain.PageMetadata {
	items := make([]hash.Item, len(pages))
	for i, p := range pages {
		items[i] = hash.Item{ID: p.ID, UpdatedAt: p.UpdatedAt.UnixMilli(), Content: p.Content}
	}
	digests := s.hasher.SumAll(items)

	meta := make([]*domain.PageMetadata, len(pages))
	for i, p := range pages {
		meta[i] = p.Metadata(digests[p.ID])
	}
	return meta
}

func (s *SyncService) uploadPageIndex(ctx context.Context, meta []*domain.PageMetadata) error {
	data, err := s.codec.EncodePageIndex(meta)
	if err != nil {
		return err
	}
	return s.putIndex(ctx, remote.PageIndexName, data)
}

func pageMetaMap(meta []*domain.PageMetadata) map[string]*domain.PageMetadata {
	m := make(map[string]*domain.PageMetadata, len(meta))
	for _, pm := range meta {
		m[pm.ID] = pm
	}
	return m
}

func livePageMetadata(meta []*domain.PageMetadata, tombstoned map[string]bool) []*domain.PageMetadata {
	live := make([]*domain.PageMetadata, 0, len(meta))
	for _, pm := range meta {
		if tombstoned[pm.ID] {
			continue
		}
		live = append(live, pm)
	}
	return live
}
