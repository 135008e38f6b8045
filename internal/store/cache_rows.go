package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const cacheColumns = `object_id, local_path, size, file_hash, present_locally,
	pinned, last_accessed, open_count`

const (
	sqlGetCacheEntry = `SELECT ` + cacheColumns + ` FROM cache_entries WHERE object_id = ?`

	sqlUpsertCacheEntry = `INSERT INTO cache_entries (` + cacheColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET
			local_path      = excluded.local_path,
			size            = excluded.size,
			file_hash       = excluded.file_hash,
			present_locally = excluded.present_locally,
			pinned          = excluded.pinned,
			last_accessed   = excluded.last_accessed,
			open_count      = excluded.open_count`

	sqlDeleteCacheEntry = `DELETE FROM cache_entries WHERE object_id = ?`

	// sqlListEvictionCandidates orders unpinned, unopened entries (full or sparse) by
	// staleness so the cache evictor can walk them oldest-first until
	// enough space is reclaimed (spec.md section 4.2).
	sqlListEvictionCandidates = `SELECT ` + cacheColumns + `
		FROM cache_entries
		WHERE pinned = 0 AND open_count = 0
		ORDER BY last_accessed ASC`

	sqlListPinned = `SELECT ` + cacheColumns + ` FROM cache_entries WHERE pinned = 1`
)

func (s *Store) cacheStmtDefs() []stmtDef {
	return []stmtDef{
		{&s.cacheStmts.get, sqlGetCacheEntry, "getCacheEntry"},
		{&s.cacheStmts.upsert, sqlUpsertCacheEntry, "upsertCacheEntry"},
		{&s.cacheStmts.delete, sqlDeleteCacheEntry, "deleteCacheEntry"},
		{&s.cacheStmts.listEvictionCandidates, sqlListEvictionCandidates, "listEvictionCandidates"},
		{&s.cacheStmts.listPinned, sqlListPinned, "listPinnedCacheEntries"},
	}
}

func scanCacheEntry(row interface{ Scan(...any) error }) (*CacheEntry, error) {
	c := &CacheEntry{}

	err := row.Scan(
		&c.ObjectID, &c.LocalPath, &c.Size, &c.FileHash, &c.PresentLocally,
		&c.Pinned, &c.LastAccessed, &c.OpenCount,
	)
	if err != nil {
		return nil, err
	}

	return c, nil
}

func scanCacheEntryRows(rows *sql.Rows) ([]*CacheEntry, error) {
	var out []*CacheEntry

	for rows.Next() {
		c, err := scanCacheEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cache entry row: %w", err)
		}

		out = append(out, c)
	}

	return out, rows.Err()
}

// GetCacheEntry returns the cache row for objectID, or (nil, nil) if the
// file has never been cached locally.
func (s *Store) GetCacheEntry(ctx context.Context, objectID string) (*CacheEntry, error) {
	c, err := scanCacheEntry(s.cacheStmts.get.QueryRowContext(ctx, objectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get cache entry %s: %w", objectID, err)
	}

	return c, nil
}

// UpsertCacheEntry inserts or fully replaces a cache row.
func (s *Store) UpsertCacheEntry(ctx context.Context, c *CacheEntry) error {
	_, err := s.cacheStmts.upsert.ExecContext(ctx,
		c.ObjectID, c.LocalPath, c.Size, c.FileHash, c.PresentLocally,
		c.Pinned, c.LastAccessed, c.OpenCount,
	)
	if err != nil {
		return fmt.Errorf("store: upsert cache entry %s: %w", c.ObjectID, err)
	}

	return nil
}

// DeleteCacheEntry removes a cache row, e.g. after eviction or upload of a
// symlink placeholder has swapped the real content elsewhere.
func (s *Store) DeleteCacheEntry(ctx context.Context, objectID string) error {
	if _, err := s.cacheStmts.delete.ExecContext(ctx, objectID); err != nil {
		return fmt.Errorf("store: delete cache entry %s: %w", objectID, err)
	}

	return nil
}

// ListEvictionCandidates returns unpinned, unopened cache entries ordered
// oldest-accessed first.
func (s *Store) ListEvictionCandidates(ctx context.Context) ([]*CacheEntry, error) {
	rows, err := s.cacheStmts.listEvictionCandidates.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list eviction candidates: %w", err)
	}
	defer rows.Close()

	return scanCacheEntryRows(rows)
}

// ListPinned returns all pinned cache entries, which the evictor counts
// toward the cache total without ever evicting them.
func (s *Store) ListPinned(ctx context.Context) ([]*CacheEntry, error) {
	rows, err := s.cacheStmts.listPinned.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list pinned cache entries: %w", err)
	}
	defer rows.Close()

	return scanCacheEntryRows(rows)
}

// CacheUsageBytes returns the sum of cache_entries.size across every
// locally present object, for the control server's /status endpoint and
// the metrics registry's cache-bytes-used gauge.
func (s *Store) CacheUsageBytes(ctx context.Context) (int64, error) {
	var total int64

	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM cache_entries`).Scan(&total); err != nil {
		return 0, fmt.Errorf("store: cache usage bytes: %w", err)
	}

	return total, nil
}

// TouchCacheEntry updates last_accessed and, if opening, increments
// open_count; if closing, decrements it (floored at 0).
func (s *Store) TouchCacheEntry(ctx context.Context, objectID string, opening bool) error {
	c, err := s.GetCacheEntry(ctx, objectID)
	if err != nil {
		return err
	}

	if c == nil {
		return fmt.Errorf("store: touch cache entry: %s not cached", objectID)
	}

	c.LastAccessed = NowNano()

	if opening {
		c.OpenCount++
	} else if c.OpenCount > 0 {
		c.OpenCount--
	}

	return s.UpsertCacheEntry(ctx, c)
}

// SetPinned updates the pinned flag for objectID's cache entry.
func (s *Store) SetPinned(ctx context.Context, objectID string, pinned bool) error {
	c, err := s.GetCacheEntry(ctx, objectID)
	if err != nil {
		return err
	}

	if c == nil {
		return fmt.Errorf("store: set pinned: %s not cached", objectID)
	}

	c.Pinned = pinned

	return s.UpsertCacheEntry(ctx, c)
}
