package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

const shadowColumns = `object_id, cloud_id, parent_id, name, etag, file_hash, modified_at`

const (
	sqlGetShadow = `SELECT ` + shadowColumns + ` FROM shadows WHERE object_id = ?`

	sqlUpsertShadow = `INSERT INTO shadows (` + shadowColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(object_id) DO UPDATE SET
			cloud_id    = excluded.cloud_id,
			parent_id   = excluded.parent_id,
			name        = excluded.name,
			etag        = excluded.etag,
			file_hash   = excluded.file_hash,
			modified_at = excluded.modified_at`

	sqlDeleteShadow = `DELETE FROM shadows WHERE object_id = ?`
)

func (s *Store) shadowStmtDefs() []stmtDef {
	return []stmtDef{
		{&s.shadowStmts.get, sqlGetShadow, "getShadow"},
		{&s.shadowStmts.upsert, sqlUpsertShadow, "upsertShadow"},
		{&s.shadowStmts.delete, sqlDeleteShadow, "deleteShadow"},
	}
}

func scanShadow(row interface{ Scan(...any) error }) (*Shadow, error) {
	sh := &Shadow{}

	err := row.Scan(&sh.ObjectID, &sh.CloudID, &sh.ParentID, &sh.Name, &sh.ETag, &sh.FileHash, &sh.ModifiedAt)
	if err != nil {
		return nil, err
	}

	return sh, nil
}

// GetShadow returns the remote baseline snapshot for objectID, or (nil,
// nil) if the object has never been observed from the remote side — the
// baseline three-way reconciliation (spec.md section 4.4) treats a missing
// shadow as "this is a brand new local object".
func (s *Store) GetShadow(ctx context.Context, objectID string) (*Shadow, error) {
	sh, err := scanShadow(s.shadowStmts.get.QueryRowContext(ctx, objectID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get shadow %s: %w", objectID, err)
	}

	return sh, nil
}

// UpsertShadow records the latest remote-observed baseline for objectID.
// Called after every successful pull or push so the next sync cycle's
// three-way comparison has an up-to-date reference point.
func (s *Store) UpsertShadow(ctx context.Context, sh *Shadow) error {
	_, err := s.shadowStmts.upsert.ExecContext(ctx,
		sh.ObjectID, sh.CloudID, sh.ParentID, sh.Name, sh.ETag, sh.FileHash, sh.ModifiedAt)
	if err != nil {
		return fmt.Errorf("store: upsert shadow %s: %w", sh.ObjectID, err)
	}

	return nil
}

// DeleteShadow removes the baseline row for objectID, called by the
// executor's delete handlers once a delete has been applied on either side.
func (s *Store) DeleteShadow(ctx context.Context, objectID string) error {
	if _, err := s.shadowStmts.delete.ExecContext(ctx, objectID); err != nil {
		return fmt.Errorf("store: delete shadow %s: %w", objectID, err)
	}

	return nil
}

// ConflictEvent is one entry in an object's persisted conflict_history
// (SPEC_FULL.md section 3, resolving spec.md section 9's Open Question in
// favor of persistence: conflict history survives process restarts and is
// queryable through `orchard conflicts` and the control API).
type ConflictEvent struct {
	DetectedAt       int64  `json:"detected_at"`
	ResolvedAt       int64  `json:"resolved_at"`
	Policy           string `json:"policy"`
	Resolution       string `json:"resolution"`
	LocalHash        string `json:"local_hash,omitempty"`
	RemoteHash       string `json:"remote_hash,omitempty"`
	DisplacedCloudID string `json:"displaced_cloud_id,omitempty"`
}

// AppendConflictHistory parses an object's existing conflict_history JSON
// array, appends ev, and persists the result. Malformed or empty existing
// history is treated as an empty array rather than an error, so a manually
// edited or pre-migration row never blocks new conflict recording.
func (s *Store) AppendConflictHistory(ctx context.Context, objectID string, ev ConflictEvent) error {
	o, err := s.GetObject(ctx, objectID)
	if err != nil {
		return err
	}

	if o == nil {
		return fmt.Errorf("store: append conflict history: object %s not found", objectID)
	}

	var history []ConflictEvent

	if o.ConflictHistory != "" {
		_ = json.Unmarshal([]byte(o.ConflictHistory), &history)
	}

	history = append(history, ev)

	encoded, err := json.Marshal(history)
	if err != nil {
		return fmt.Errorf("store: marshal conflict history %s: %w", objectID, err)
	}

	o.ConflictHistory = string(encoded)
	o.UpdatedAt = NowNano()

	return s.UpsertObject(ctx, o)
}

// ListConflicts returns every object currently in the conflict sync state,
// for `orchard conflicts` and GET /conflicts.
func (s *Store) ListConflicts(ctx context.Context) ([]*Object, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+objectColumns+` FROM objects WHERE sync_state = ? AND deleted = 0`, StateConflict)
	if err != nil {
		return nil, fmt.Errorf("store: list conflicts: %w", err)
	}
	defer rows.Close()

	return scanObjectRows(rows)
}
