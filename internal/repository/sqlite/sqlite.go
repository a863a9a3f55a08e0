package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"leaflet-sync/internal/domain"
	"leaflet-sync/internal/repository"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the local database at path and ensures the
// schema exists. Callers must Close when done.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.db = nil
	return nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS folders (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		parent_id TEXT,
		position INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_folders_parent ON folders(parent_id);

	CREATE TABLE IF NOT EXISTS pages (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		folder_id TEXT,
		content TEXT NOT NULL DEFAULT '',
		synced_hash TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_pages_folder ON pages(folder_id);

	CREATE TABLE IF NOT EXISTS deleted_folders (
		folder_id TEXT PRIMARY KEY,
		deleted_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS deleted_pages (
		page_id TEXT PRIMARY KEY,
		deleted_at INTEGER NOT NULL
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) ListFolders(ctx context.Context) ([]*domain.Folder, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, parent_id, position, created_at, updated_at FROM folders")
	if err != nil {
		return nil, fmt.Errorf("failed to list folders: %w", err)
	}
	defer rows.Close()
	return scanFolders(rows)
}

func (s *Store) GetFolder(ctx context.Context, id string) (*domain.Folder, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, parent_id, position, created_at, updated_at FROM folders WHERE id = ?", id)

	f, err := scanFolder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}
	return f, nil
}

func (s *Store) PutFolder(ctx context.Context, folder *domain.Folder) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO folders (id, name, parent_id, position, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			parent_id = excluded.parent_id,
			position = excluded.position,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		folder.ID, folder.Name, nullString(folder.ParentID), folder.Order,
		folder.CreatedAt.UnixMilli(), folder.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put folder: %w", err)
	}
	return nil
}

func (s *Store) DeleteFolder(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM folders WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete folder: %w", err)
	}
	return nil
}

func (s *Store) ListPages(ctx context.Context) ([]*domain.Page, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, folder_id, content, synced_hash, created_at, updated_at FROM pages")
	if err != nil {
		return nil, fmt.Errorf("failed to list pages: %w", err)
	}
	defer rows.Close()

	var pages []*domain.Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

func (s *Store) GetPage(ctx context.Context, id string) (*domain.Page, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, folder_id, content, synced_hash, created_at, updated_at FROM pages WHERE id = ?", id)

	p, err := scanPage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get page: %w", err)
	}
	return p, nil
}

func (s *Store) PutPage(ctx context.Context, page *domain.Page) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pages (id, name, folder_id, content, synced_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			folder_id = excluded.folder_id,
			content = excluded.content,
			synced_hash = excluded.synced_hash,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`,
		page.ID, page.Name, nullString(page.FolderID), page.Content, page.SyncedHash,
		page.CreatedAt.UnixMilli(), page.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to put page: %w", err)
	}
	return nil
}

func (s *Store) DeletePage(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM pages WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to delete page: %w", err)
	}
	return nil
}

func (s *Store) ListFolderTombstones(ctx context.Context) ([]*domain.Tombstone, error) {
	return s.listTombstones(ctx, "SELECT folder_id, deleted_at FROM deleted_folders")
}

func (s *Store) PutFolderTombstone(ctx context.Context, tombstone *domain.Tombstone) error {
	return s.putTombstone(ctx, `
		INSERT INTO deleted_folders (folder_id, deleted_at) VALUES (?, ?)
		ON CONFLICT(folder_id) DO UPDATE SET deleted_at = excluded.deleted_at`, tombstone)
}

func (s *Store) ListPageTombstones(ctx context.Context) ([]*domain.Tombstone, error) {
	return s.listTombstones(ctx, "SELECT page_id, deleted_at FROM deleted_pages")
}

func (s *Store) PutPageTombstone(ctx context.Context, tombstone *domain.Tombstone) error {
	return s.putTombstone(ctx, `
		INSERT INTO deleted_pages (page_id, deleted_at) VALUES (?, ?)
		ON CONFLICT(page_id) DO UPDATE SET deleted_at = excluded.deleted_at`, tombstone)
}

func (s *Store) listTombstones(ctx context.Context, query string) ([]*domain.Tombstone, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		if isMissingTable(err) {
			return nil, repository.ErrTombstonesUnsupported
		}
		return nil, fmt.Errorf("failed to list tombstones: %w", err)
	}
	defer rows.Close()

	var tombstones []*domain.Tombstone
	for rows.Next() {
		var ts domain.Tombstone
		var deletedAt int64
		if err := rows.Scan(&ts.EntityID, &deletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tombstone: %w", err)
		}
		ts.DeletedAt = time.UnixMilli(deletedAt)
		tombstones = append(tombstones, &ts)
	}
	return tombstones, rows.Err()
}

func (s *Store) putTombstone(ctx context.Context, query string, tombstone *domain.Tombstone) error {
	_, err := s.db.ExecContext(ctx, query, tombstone.EntityID, tombstone.DeletedAt.UnixMilli())
	if err != nil {
		if isMissingTable(err) {
			return repository.ErrTombstonesUnsupported
		}
		return fmt.Errorf("failed to put tombstone: %w", err)
	}
	return nil
}

func (s *Store) ReplaceFolders(ctx context.Context, folders []*domain.Folder) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM folders"); err != nil {
			return err
		}
		for _, f := range folders {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO folders (id, name, parent_id, position, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				f.ID, f.Name, nullString(f.ParentID), f.Order,
				f.CreatedAt.UnixMilli(), f.UpdatedAt.UnixMilli()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ReplacePages(ctx context.Context, pages []*domain.Page) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM pages"); err != nil {
			return err
		}
		for _, p := range pages {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO pages (id, name, folder_id, content, synced_hash, created_at, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)`,
				p.ID, p.Name, nullString(p.FolderID), p.Content, p.SyncedHash,
				p.CreatedAt.UnixMilli(), p.UpdatedAt.UnixMilli()); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Store) ReplaceFolderTombstones(ctx context.Context, tombstones []*domain.Tombstone) error {
	return s.replaceTombstones(ctx, "deleted_folders", "folder_id", tombstones)
}

func (s *Store) ReplacePageTombstones(ctx context.Context, tombstones []*domain.Tombstone) error {
	return s.replaceTombstones(ctx, "deleted_pages", "page_id", tombstones)
}

func (s *Store) replaceTombstones(ctx context.Context, table, idColumn string, tombstones []*domain.Tombstone) error {
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
		insert := fmt.Sprintf("INSERT INTO %s (%s, deleted_at) VALUES (?, ?)", table, idColumn)
		for _, ts := range tombstones {
			if _, err := tx.ExecContext(ctx, insert, ts.EntityID, ts.DeletedAt.UnixMilli()); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil && isMissingTable(err) {
		return repository.ErrTombstonesUnsupported
	}
	return err
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("transaction failed: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanFolder(row rowScanner) (*domain.Folder, error) {
	var f domain.Folder
	var parent sql.NullString
	var created, updated int64
	if err := row.Scan(&f.ID, &f.Name, &parent, &f.Order, &created, &updated); err != nil {
		return nil, err
	}
	if parent.Valid {
		f.ParentID = &parent.String
	}
	f.CreatedAt = time.UnixMilli(created)
	f.UpdatedAt = time.UnixMilli(updated)
	return &f, nil
}

func scanFolders(rows *sql.Rows) ([]*domain.Folder, error) {
	var folders []*domain.Folder
	for rows.Next() {
		f, err := scanFolder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}
	return folders, rows.Err()
}

func scanPage(row rowScanner) (*domain.Page, error) {
	var p domain.Page
	var folder sql.NullString
	var created, updated int64
	if err := row.Scan(&p.ID, &p.Name, &folder, &p.Content, &p.SyncedHash, &created, &updated); err != nil {
		return nil, err
	}
	if folder.Valid {
		p.FolderID = &folder.String
	}
	p.CreatedAt = time.UnixMilli(created)
	p.UpdatedAt = time.UnixMilli(updated)
	return &p, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func isMissingTable(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no such table")
}
