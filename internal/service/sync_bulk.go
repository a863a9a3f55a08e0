package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"leaflet-sync/internal/domain"
	"leaflet-sync/internal/remote"
	"leaflet-sync/internal/repository"
	"leaflet-sync/pkg/hash"
)

// ProgressFunc receives bulk-operation progress: current completed steps out
// of total, and a description of the step just finished.
type ProgressFunc func(current, total int, message string)

func nopProgress(int, int, string) {}

// ForcePush overwrites the remote namespace with the full local state,
// skipping all diffing: every index is rewritten, every page's content is
// uploaded, and remote content files without a local page are removed.
func (s *SyncService) ForcePush(ctx context.Context, progress ProgressFunc) (*domain.SyncResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	result := domain.NewSyncResult()
	defer func() { s.finish(result.Success) }()

	if err := s.push(ctx, result, progress); err != nil {
		result.AddError("%v", err)
		log.Printf("[sync] force push aborted: %v", err)
		return result, err
	}
	log.Printf("[sync] force push finished: %s", result.Summary())
	return result, nil
}

// ForcePull overwrites the full local state with the remote one: local
// collections are replaced wholesale and every page's content is downloaded.
// Nothing local is touched until all remote reads have succeeded.
func (s *SyncService) ForcePull(ctx context.Context, progress ProgressFunc) (*domain.SyncResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	result := domain.NewSyncResult()
	defer func() { s.finish(result.Success) }()

	if err := s.pull(ctx, result, progress); err != nil {
		result.AddError("%v", err)
		log.Printf("[sync] force pull aborted: %v", err)
		return result, err
	}
	log.Printf("[sync] force pull finished: %s", result.Summary())
	return result, nil
}

// Reset wipes the remote namespace and the local tombstone collections,
// then seeds the remote from local state. This is the only flow that ever
// discards tombstones.
func (s *SyncService) Reset(ctx context.Context, progress ProgressFunc) (*domain.SyncResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}
	result := domain.NewSyncResult()
	defer func() { s.finish(result.Success) }()

	log.Printf("[sync] resetting remote namespace")
	if err := s.remote.Clear(ctx); err != nil {
		err = fmt.Errorf("remote store unavailable: %w", err)
		result.AddError("%v", err)
		return result, err
	}

	err := s.local.ReplaceFolderTombstones(ctx, nil)
	if err != nil && !errors.Is(err, repository.ErrTombstonesUnsupported) {
		result.AddError("failed to clear folder tombstones: %v", err)
		return result, fmt.Errorf("failed to clear folder tombstones: %w", err)
	}
	err = s.local.ReplacePageTombstones(ctx, nil)
	if err != nil && !errors.Is(err, repository.ErrTombstonesUnsupported) {
		result.AddError("failed to clear page tombstones: %v", err)
		return result, fmt.Errorf("failed to clear page tombstones: %w", err)
	}

	if err := s.push(ctx, result, progress); err != nil {
		result.AddError("%v", err)
		return result, err
	}
	log.Printf("[sync] reset finished: %s", result.Summary())
	return result, nil
}

func (s *SyncService) push(ctx context.Context, result *domain.SyncResult, progress ProgressFunc) error {
	if progress == nil {
		progress = nopProgress
	}

	folders, err := s.local.ListFolders(ctx)
	if err != nil {
		return fmt.Errorf("failed to list local folders: %w", err)
	}
	pages, err := s.local.ListPages(ctx)
	if err != nil {
		return fmt.Errorf("failed to list local pages: %w", err)
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].ID < pages[j].ID })

	folderTombstones, folderTombstonesOK, err := s.listLocalTombstones(ctx, s.local.ListFolderTombstones)
	if err != nil {
		return err
	}
	pageTombstones, pageTombstonesOK, err := s.listLocalTombstones(ctx, s.local.ListPageTombstones)
	if err != nil {
		return err
	}

	remoteIDs, err := s.remote.ListPageContentIDs(ctx)
	if err != nil {
		return fmt.Errorf("remote store unavailable: %w", err)
	}
	localIDs := make(map[string]bool, len(pages))
	for _, p := range pages {
		localIDs[p.ID] = true
	}
	var strays []string
	for _, id := range remoteIDs {
		if !localIDs[id] {
			strays = append(strays, id)
		}
	}
	sort.Strings(strays)

	total := 4 + len(pages) + len(strays)
	current := 0
	step := func(message string) {
		current++
		progress(current, total, message)
	}

	data, err := s.codec.EncodeFolderIndex(folders)
	if err != nil {
		return err
	}
	if err := s.putIndex(ctx, remote.FolderIndexName, data); err != nil {
		return err
	}
	result.FoldersUploaded += len(folders)
	step("uploaded folder index")

	if folderTombstonesOK {
		data, err = s.codec.EncodeFolderTombstones(folderTombstones)
		if err != nil {
			return err
		}
		if err := s.putIndex(ctx, remote.FolderTombstoneIndexName, data); err != nil {
			return err
		}
		step("uploaded folder tombstones")
	} else {
		step("folder tombstones unsupported locally, skipped")
	}

	if pageTombstonesOK {
		data, err = s.codec.EncodePageTombstones(pageTombstones)
		if err != nil {
			return err
		}
		if err := s.putIndex(ctx, remote.PageTombstoneIndexName, data); err != nil {
			return err
		}
		step("uploaded page tombstones")
	} else {
		step("page tombstones unsupported locally, skipped")
	}

	for _, p := range pages {
		if err := s.remote.PutPageContent(ctx, p.ID, p.Content); err != nil {
			result.AddError("failed to upload content for page %s: %v", p.ID, err)
			step(fmt.Sprintf("failed to upload page %q", p.Name))
			continue
		}
		p.SyncedHash = s.hasher.Sum(p.ID, p.UpdatedAt.UnixMilli(), p.Content)
		if err := s.local.PutPage(ctx, p); err != nil {
			result.AddError("failed to record synced state for page %s: %v", p.ID, err)
			step(fmt.Sprintf("failed to record page %q", p.Name))
			continue
		}
		result.PagesUploaded++
		step(fmt.Sprintf("uploaded page %q", p.Name))
	}

	if err := s.uploadPageIndex(ctx, s.derivePageMetadata(pages)); err != nil {
		return err
	}
	step("uploaded page index")

	for _, id := range strays {
		if err := s.remote.DeletePageContent(ctx, id); err != nil {
			result.AddError("failed to delete stray content %s: %v", id, err)
		}
		step(fmt.Sprintf("removed stray content %s", id))
	}

	return nil
}

func (s *SyncService) pull(ctx context.Context, result *domain.SyncResult, progress ProgressFunc) error {
	if progress == nil {
		progress = nopProgress
	}

	var (
		folders          []*domain.Folder
		pageMeta         []*domain.PageMetadata
		folderTombstones []*domain.Tombstone
		pageTombstones   []*domain.Tombstone
	)

	data, present, err := s.getIndex(ctx, remote.FolderIndexName)
	if err != nil {
		return err
	}
	if present {
		if folders, err = s.codec.DecodeFolderIndex(data); err != nil {
			return err
		}
	}
	data, present, err = s.getIndex(ctx, remote.PageIndexName)
	if err != nil {
		return err
	}
	if present {
		if pageMeta, err = s.codec.DecodePageIndex(data); err != nil {
			return err
		}
	}
	data, present, err = s.getIndex(ctx, remote.FolderTombstoneIndexName)
	if err != nil {
		return err
	}
	if present {
		if folderTombstones, err = s.codec.DecodeFolderTombstones(data); err != nil {
			return err
		}
	}
	data, present, err = s.getIndex(ctx, remote.PageTombstoneIndexName)
	if err != nil {
		return err
	}
	if present {
		if pageTombstones, err = s.codec.DecodePageTombstones(data); err != nil {
			return err
		}
	}

	sort.Slice(pageMeta, func(i, j int) bool { return pageMeta[i].ID < pageMeta[j].ID })

	total := len(pageMeta) + 1
	current := 0
	step := func(message string) {
		current++
		progress(current, total, message)
	}

	// Download everything before touching the local store, so a transport
	// failure cannot leave it half replaced.
	pages := make([]*domain.Page, 0, len(pageMeta))
	for _, meta := range pageMeta {
		content, err := s.remote.GetPageContent(ctx, meta.ID)
		if errors.Is(err, remote.ErrNotFound) {
			log.Printf("[sync] page %s is indexed but its content file is missing, dropping it from the pull", meta.ID)
			step(fmt.Sprintf("skipped page %q, content missing", meta.Name))
			continue
		}
		if err != nil {
			return fmt.Errorf("remote store unavailable: %w", err)
		}
		page := pageFromMetadata(meta, content)
		page.SyncedHash = hash.Content(content)
		pages = append(pages, page)
		step(fmt.Sprintf("downloaded page %q", meta.Name))
	}

	if err := s.local.ReplaceFolders(ctx, folders); err != nil {
		return fmt.Errorf("failed to replace local folders: %w", err)
	}
	if err := s.local.ReplacePages(ctx, pages); err != nil {
		return fmt.Errorf("failed to replace local pages: %w", err)
	}
	err = s.local.ReplaceFolderTombstones(ctx, folderTombstones)
	if err != nil && !errors.Is(err, repository.ErrTombstonesUnsupported) {
		return fmt.Errorf("failed to replace folder tombstones: %w", err)
	}
	err = s.local.ReplacePageTombstones(ctx, pageTombstones)
	if err != nil && !errors.Is(err, repository.ErrTombstonesUnsupported) {
		return fmt.Errorf("failed to replace page tombstones: %w", err)
	}

	result.FoldersDownloaded += len(folders)
	result.PagesDownloaded += len(pages)
	step("replaced local state")
	return nil
}

func (s *SyncService) listLocalTombstones(ctx context.Context,
	list func(context.Context) ([]*domain.Tombstone, error)) ([]*domain.Tombstone, bool, error) {

	tombstones, err := list(ctx)
	if errors.Is(err, repository.ErrTombstonesUnsupported) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to list local tombstones: %w", err)
	}
	return tombstones, true, nil
}
