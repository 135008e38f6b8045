package store

import (
	"context"
	"fmt"
	"log/slog"
)

// RecoverOrphanedActions transitions every action left in "processing" back
// to "pending" at startup. A crash mid-execution leaves rows stuck in
// processing forever otherwise, since only a live worker clears that state
// on completion (grounded on the teacher's crash-recovery posture for
// in-flight upload sessions, generalized from sessions to actions).
func (s *Store) RecoverOrphanedActions(ctx context.Context, logger *slog.Logger) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`UPDATE actions SET status = 'pending' WHERE status = 'processing'`)
	if err != nil {
		return 0, fmt.Errorf("store: recover orphaned actions: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: read rows affected: %w", err)
	}

	if affected > 0 {
		logger.Info("recovered orphaned actions", slog.Int64("count", affected))
	}

	return affected, nil
}

// CleanupTombstones permanently removes objects (and their shadows, cache
// entries, and chunk rows via ON DELETE CASCADE) marked deleted for longer
// than retentionDays (spec.md section 4: tombstone retention sweep).
func (s *Store) CleanupTombstones(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := NowNano() - int64(retentionDays)*24*int64(3600)*int64(1_000_000_000)

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM objects WHERE deleted = 1 AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("store: cleanup tombstones: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("store: read rows affected: %w", err)
	}

	return affected, nil
}

// OrphanedCacheFiles returns the local_path of every cache_entries row whose
// object_id no longer resolves to an object row (possible if a crash
// interrupted a delete between the two tables, even with foreign keys on,
// if the process died between separate non-transactional writes performed
// before this package existed in its current form). The cache manager uses
// this at startup to reclaim disk space from files the database can no
// longer account for.
func (s *Store) OrphanedCacheFiles(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ce.local_path FROM cache_entries ce
		LEFT JOIN objects o ON o.id = ce.object_id
		WHERE o.id IS NULL`)
	if err != nil {
		return nil, fmt.Errorf("store: orphaned cache files: %w", err)
	}
	defer rows.Close()

	var paths []string

	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan orphaned cache path: %w", err)
		}

		paths = append(paths, p)
	}

	return paths, rows.Err()
}
