package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"leaflet-sync/internal/domain"
	"leaflet-sync/internal/remote"
	"leaflet-sync/internal/repository"
	"leaflet-sync/internal/wire"
	"leaflet-sync/pkg/hash"
)

// SyncService reconciles the local store with the shared remote store. A
// run executes five ordered stages: folders, folder tombstones, page
// metadata, page tombstones, page content. Only one run may be active per
// instance.
type SyncService struct {
	local  repository.LocalStore
	remote remote.Store
	codec  *wire.Codec
	hasher *hash.Hasher

	mu      sync.Mutex
	syncing bool
	state   domain.SyncState
}

func NewSyncService(local repository.LocalStore, remoteStore remote.Store) *SyncService {
	return &SyncService{
		local:  local,
		remote: remoteStore,
		codec:  wire.NewCodec(),
		hasher: hash.NewHasher(),
		state:  domain.SyncStateIdle,
	}
}

func (s *SyncService) State() domain.SyncState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *SyncService) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.syncing {
		return ErrSyncInProgress
	}
	s.syncing = true
	s.state = domain.SyncStateSyncing
	return nil
}

func (s *SyncService) finish(success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.syncing = false
	if success {
		s.state = domain.SyncStateCompleted
	} else {
		s.state = domain.SyncStateFailed
	}
}

// syncRun carries the state one run accumulates across stages: the tombstone
// sets fetched up front, and the page plan the metadata stage hands to the
// content stage.
type syncRun struct {
	result *domain.SyncResult

	localFolderTombstones  []*domain.Tombstone
	localPageTombstones    []*domain.Tombstone
	remoteFolderTombstones []*domain.Tombstone
	remotePageTombstones   []*domain.Tombstone

	// Union of local and remote tombstone ids. Any id in here is dead:
	// never downloaded, never kept in a written index.
	tombstonedFolders map[string]bool
	tombstonedPages   map[string]bool

	folderTombstoneIndexPresent bool
	pageTombstoneIndexPresent   bool
	folderTombstonesUnsupported bool
	pageTombstonesUnsupported   bool

	// uploadPlan and downloadPlan are produced by the page metadata stage
	// and consumed by the content stage.
	uploadPlan   map[string]bool
	downloadPlan map[string]*domain.PageMetadata

	// uploadedContent records which content files this run actually wrote,
	// so the final index write knows the blob now matches the local text.
	uploadedContent map[string]bool
}

func newSyncRun(result *domain.SyncResult) *syncRun {
	return &syncRun{
		result:            result,
		tombstonedFolders: make(map[string]bool),
		tombstonedPages:   make(map[string]bool),
		uploadPlan:        make(map[string]bool),
		downloadPlan:      make(map[string]*domain.PageMetadata),
		uploadedContent:   make(map[string]bool),
	}
}

// Sync runs one full reconciliation pass. A fatal error (remote store
// unreachable, unrecognized index format, local store failure) aborts the
// run; per-page content failures are recorded in the result and the run
// continues. The returned result is non-nil whenever a run actually started.
func (s *SyncService) Sync(ctx context.Context) (*domain.SyncResult, error) {
	if err := s.begin(); err != nil {
		return nil, err
	}

	result := domain.NewSyncResult()
	defer func() { s.finish(result.Success) }()

	run := newSyncRun(result)

	stages := []struct {
		name string
		fn   func(context.Context, *syncRun) error
	}{
		{"tombstone fetch", s.fetchTombstones},
		{"folders", s.syncFolders},
		{"folder tombstones", s.syncFolderTombstones},
		{"page metadata", s.syncPageMetadata},
		{"page tombstones", s.syncPageTombstones},
		{"page content", s.syncPageContent},
	}

	for _, stage := range stages {
		if err := stage.fn(ctx, run); err != nil {
			result.AddError("%s stage: %v", stage.name, err)
			log.Printf("[sync] aborted in %s stage: %v", stage.name, err)
			return result, fmt.Errorf("%s stage: %w", stage.name, err)
		}
	}

	log.Printf("[sync] run finished: %s", result.Summary())
	return result, nil
}

// fetchTombstones reads all four tombstone collections once. The folder and
// page stages share them: reconciliation must know about every deletion
// before it decides what to download, or a replica would re-download
// entities it just deleted.
func (s *SyncService) fetchTombstones(ctx context.Context, run *syncRun) error {
	data, present, err := s.getIndex(ctx, remote.FolderTombstoneIndexName)
	if err != nil {
		return err
	}
	if present {
		run.remoteFolderTombstones, err = s.codec.DecodeFolderTombstones(data)
		if err != nil {
			return err
		}
		run.folderTombstoneIndexPresent = true
	}

	data, present, err = s.getIndex(ctx, remote.PageTombstoneIndexName)
	if err != nil {
		return err
	}
	if present {
		run.remotePageTombstones, err = s.codec.DecodePageTombstones(data)
		if err != nil {
			return err
		}
		run.pageTombstoneIndexPresent = true
	}

	run.localFolderTombstones, err = s.local.ListFolderTombstones(ctx)
	if errors.Is(err, repository.ErrTombstonesUnsupported) {
		run.folderTombstonesUnsupported = true
		run.localFolderTombstones = nil
	} else if err != nil {
		return fmt.Errorf("failed to read local folder tombstones: %w", err)
	}

	run.localPageTombstones, err = s.local.ListPageTombstones(ctx)
	if errors.Is(err, repository.ErrTombstonesUnsupported) {
		run.pageTombstonesUnsupported = true
		run.localPageTombstones = nil
	} else if err != nil {
		return fmt.Errorf("failed to read local page tombstones: %w", err)
	}

	addTombstoneIDs(run.tombstonedFolders, run.localFolderTombstones, run.remoteFolderTombstones)
	addTombstoneIDs(run.tombstonedPages, run.localPageTombstones, run.remotePageTombstones)
	return nil
}

// getIndex fetches one remote index. Absence is a normal outcome; any other
// failure means the remote store cannot be reached and the run must abort.
func (s *SyncService) getIndex(ctx context.Context, name string) ([]byte, bool, error) {
	data, err := s.remote.GetIndex(ctx, name)
	if errors.Is(err, remote.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("remote store unavailable: %w", err)
	}
	return data, true, nil
}

func (s *SyncService) putIndex(ctx context.Context, name string, data []byte) error {
	if err := s.remote.PutIndex(ctx, name, data); err != nil {
		return fmt.Errorf("remote store unavailable: %w", err)
	}
	return nil
}

func addTombstoneIDs(set map[string]bool, lists ...[]*domain.Tombstone) {
	for _, list := range lists {
		for _, ts := range list {
			set[ts.EntityID] = true
		}
	}
}

func tombstoneIDSet(tombstones []*domain.Tombstone) map[string]bool {
	set := make(map[string]bool, len(tombstones))
	for _, ts := range tombstones {
		set[ts.EntityID] = true
	}
	return set
}

func sameFolderRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
