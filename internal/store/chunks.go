package store

import (
	"context"
	"database/sql"
	"fmt"
)

const (
	sqlMarkChunkPresent = `INSERT INTO chunks (object_id, chunk_index, last_accessed)
		VALUES (?, ?, ?)
		ON CONFLICT(object_id, chunk_index) DO UPDATE SET last_accessed = excluded.last_accessed`

	sqlListPresentChunks = `SELECT chunk_index FROM chunks WHERE object_id = ? ORDER BY chunk_index`

	sqlDeleteAllChunks = `DELETE FROM chunks WHERE object_id = ?`

	sqlDeleteOneChunk = `DELETE FROM chunks WHERE object_id = ? AND chunk_index = ?`
)

func (s *Store) chunkStmtDefs() []stmtDef {
	return []stmtDef{
		{&s.chunkStmts.markPresent, sqlMarkChunkPresent, "markChunkPresent"},
		{&s.chunkStmts.listPresent, sqlListPresentChunks, "listPresentChunks"},
		{&s.chunkStmts.deleteAll, sqlDeleteAllChunks, "deleteAllChunks"},
		{&s.chunkStmts.deleteOne, sqlDeleteOneChunk, "deleteOneChunk"},
	}
}

// MarkChunkPresent records that chunkIndex of objectID's sparse cache file
// has been fully downloaded.
func (s *Store) MarkChunkPresent(ctx context.Context, objectID string, chunkIndex int64) error {
	_, err := s.chunkStmts.markPresent.ExecContext(ctx, objectID, chunkIndex, NowNano())
	if err != nil {
		return fmt.Errorf("store: mark chunk present %s[%d]: %w", objectID, chunkIndex, err)
	}

	return nil
}

// ListPresentChunks returns the sorted set of chunk indexes known present
// for objectID.
func (s *Store) ListPresentChunks(ctx context.Context, objectID string) ([]int64, error) {
	rows, err := s.chunkStmts.listPresent.QueryContext(ctx, objectID)
	if err != nil {
		return nil, fmt.Errorf("store: list present chunks %s: %w", objectID, err)
	}
	defer rows.Close()

	var out []int64

	for rows.Next() {
		var idx int64
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scan chunk index: %w", err)
		}

		out = append(out, idx)
	}

	return out, rows.Err()
}

// HasChunk reports whether chunkIndex is already present for objectID.
func (s *Store) HasChunk(ctx context.Context, objectID string, chunkIndex int64) (bool, error) {
	var exists int

	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM chunks WHERE object_id = ? AND chunk_index = ?`, objectID, chunkIndex,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("store: has chunk %s[%d]: %w", objectID, chunkIndex, err)
	}

	return true, nil
}

// ClearChunks removes all chunk presence rows for objectID, called when the
// sparse cache file is discarded (eviction, or promotion to a fully
// downloaded file where per-chunk bookkeeping is no longer needed).
func (s *Store) ClearChunks(ctx context.Context, objectID string) error {
	if _, err := s.chunkStmts.deleteAll.ExecContext(ctx, objectID); err != nil {
		return fmt.Errorf("store: clear chunks %s: %w", objectID, err)
	}

	return nil
}
