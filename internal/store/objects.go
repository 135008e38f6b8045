package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

const objectColumns = `id, cloud_id, type, parent_id, name, extension, size,
	local_modified_at, cloud_modified_at, etag, revision, origin, sync_state,
	dirty, deleted, missing_from_cloud, last_synced, conflict_history,
	created_at, updated_at`

const (
	sqlGetObject = `SELECT ` + objectColumns + ` FROM objects WHERE id = ?`

	sqlGetChildByName = `SELECT ` + objectColumns + `
		FROM objects WHERE parent_id IS ? AND name = ? AND deleted = 0`

	sqlGetByCloudID = `SELECT ` + objectColumns + `
		FROM objects WHERE parent_id IS ? AND cloud_id = ? AND deleted = 0`

	sqlUpsertObject = `INSERT INTO objects (` + objectColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			cloud_id           = excluded.cloud_id,
			type               = excluded.type,
			parent_id          = excluded.parent_id,
			name               = excluded.name,
			extension          = excluded.extension,
			size               = excluded.size,
			local_modified_at  = excluded.local_modified_at,
			cloud_modified_at  = excluded.cloud_modified_at,
			etag               = excluded.etag,
			revision           = excluded.revision,
			origin             = excluded.origin,
			sync_state         = excluded.sync_state,
			dirty              = excluded.dirty,
			deleted            = excluded.deleted,
			missing_from_cloud = excluded.missing_from_cloud,
			last_synced        = excluded.last_synced,
			conflict_history   = excluded.conflict_history,
			updated_at         = excluded.updated_at`

	sqlListChildren = `SELECT ` + objectColumns + `
		FROM objects WHERE parent_id IS ? AND deleted = 0 ORDER BY name`

	sqlMarkDirty = `UPDATE objects SET dirty = 1, sync_state = ?, updated_at = ? WHERE id = ?`

	sqlMarkObjectDeleted = `UPDATE objects SET deleted = 1, sync_state = ?, updated_at = ? WHERE id = ?`

	sqlDeleteObject = `DELETE FROM objects WHERE id = ?`
)

func (s *Store) objectStmtDefs() []stmtDef {
	return []stmtDef{
		{&s.objectStmts.get, sqlGetObject, "getObject"},
		{&s.objectStmts.getChildByName, sqlGetChildByName, "getChildByName"},
		{&s.objectStmts.getByCloudID, sqlGetByCloudID, "getObjectByCloudID"},
		{&s.objectStmts.upsert, sqlUpsertObject, "upsertObject"},
		{&s.objectStmts.listChildren, sqlListChildren, "listChildren"},
		{&s.objectStmts.markDirty, sqlMarkDirty, "markDirty"},
		{&s.objectStmts.markDeleted, sqlMarkObjectDeleted, "markObjectDeleted"},
		{&s.objectStmts.delete, sqlDeleteObject, "deleteObject"},
	}
}

func scanObject(row interface{ Scan(...any) error }) (*Object, error) {
	o := &Object{}

	var cloudID, parentID sql.NullString

	err := row.Scan(
		&o.ID, &cloudID, &o.Type, &parentID, &o.Name, &o.Extension, &o.Size,
		&o.LocalModifiedAt, &o.CloudModifiedAt, &o.ETag, &o.Revision, &o.Origin,
		&o.SyncState, &o.Dirty, &o.Deleted, &o.MissingFromCloud, &o.LastSynced,
		&o.ConflictHistory, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	o.CloudID = cloudID.String
	o.ParentID = parentID.String

	return o, nil
}

func scanObjectRows(rows *sql.Rows) ([]*Object, error) {
	var out []*Object

	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan object row: %w", err)
		}

		out = append(out, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate object rows: %w", err)
	}

	return out, nil
}

func upsertObjectArgs(o *Object) []any {
	return []any{
		o.ID, nullableString(o.CloudID), o.Type, nullableString(o.ParentID), normalizeName(o.Name),
		o.Extension, o.Size, o.LocalModifiedAt, o.CloudModifiedAt, o.ETag, o.Revision,
		o.Origin, o.SyncState, o.Dirty, o.Deleted, o.MissingFromCloud, o.LastSynced,
		o.ConflictHistory, o.CreatedAt, o.UpdatedAt,
	}
}

// normalizeName folds name to Unicode NFC before it is persisted or used as
// a lookup key. APFS/HFS+ hand FUSE names in NFD (each accented character
// decomposed into base + combining mark); left alone, two names that look
// identical to a user end up as distinct rows under parent_id/name's unique
// index the first time one arrives pre-composed (e.g. from a cloud listing)
// and the other decomposed (from a local create).
func normalizeName(name string) string {
	return norm.NFC.String(name)
}

func nullableString(v string) any {
	if v == "" {
		return nil
	}

	return v
}

// GetObject fetches an object by ID. Returns (nil, nil) if it doesn't
// exist — callers use the nil object to distinguish "not found" from a
// real lookup error, matching the Store's not-found convention throughout.
func (s *Store) GetObject(ctx context.Context, id string) (*Object, error) {
	o, err := scanObject(s.objectStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get object %s: %w", id, err)
	}

	return o, nil
}

// GetChildByName looks up a single child of parentID ("" for root) with the
// given name, among non-deleted objects. The parent_id/name pair is unique
// per the schema, so at most one row matches.
func (s *Store) GetChildByName(ctx context.Context, parentID, name string) (*Object, error) {
	o, err := scanObject(s.objectStmts.getChildByName.QueryRowContext(ctx, nullableString(parentID), normalizeName(name)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get child %q of %s: %w", name, parentID, err)
	}

	return o, nil
}

// GetByCloudID looks up a single non-deleted child of parentID ("" for
// root) by its cloud-assigned ID, used by list_children to correlate a
// remote listing entry with an already-known local object when the name may
// have since diverged (rename observed before the shadow was refreshed).
func (s *Store) GetByCloudID(ctx context.Context, parentID, cloudID string) (*Object, error) {
	o, err := scanObject(s.objectStmts.getByCloudID.QueryRowContext(ctx, nullableString(parentID), cloudID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("store: get object by cloud id %q under %s: %w", cloudID, parentID, err)
	}

	return o, nil
}

// ResolvePath walks path components from the root, resolving each to an
// Object via GetChildByName. Returns (nil, nil) if any component is
// missing.
func (s *Store) ResolvePath(ctx context.Context, components []string) (*Object, error) {
	parentID := ""

	var current *Object

	for _, name := range components {
		child, err := s.GetChildByName(ctx, parentID, name)
		if err != nil {
			return nil, err
		}

		if child == nil {
			return nil, nil
		}

		current = child
		parentID = child.ID
	}

	return current, nil
}

// ListChildren returns all non-deleted direct children of parentID ("" for
// root), ordered by name. Orchard projects only one level of listing per directory (spec.md
// section 9's resolved Open Question) so this is never called recursively
// by the FUSE layer.
func (s *Store) ListChildren(ctx context.Context, parentID string) ([]*Object, error) {
	rows, err := s.objectStmts.listChildren.QueryContext(ctx, nullableString(parentID))
	if err != nil {
		return nil, fmt.Errorf("store: list children of %s: %w", parentID, err)
	}
	defer rows.Close()

	return scanObjectRows(rows)
}

// UpsertObject inserts or fully replaces an object row.
func (s *Store) UpsertObject(ctx context.Context, o *Object) error {
	if _, err := s.objectStmts.upsert.ExecContext(ctx, upsertObjectArgs(o)...); err != nil {
		return fmt.Errorf("store: upsert object %s: %w", o.ID, err)
	}

	return nil
}

// UpsertObjectTx is UpsertObject run against an explicit transaction, for
// callers composing multi-table writes (conflict recording, delta apply).
func UpsertObjectTx(ctx context.Context, tx *sql.Tx, o *Object) error {
	if _, err := tx.ExecContext(ctx, sqlUpsertObject, upsertObjectArgs(o)...); err != nil {
		return fmt.Errorf("store: upsert object %s (tx): %w", o.ID, err)
	}

	return nil
}

// MarkDirty transitions an object into the dirty sync state after a local
// write, rejecting the write if the transition is not a documented one.
func (s *Store) MarkDirty(ctx context.Context, id string, from SyncState) error {
	if !CanTransition(from, StateDirty) {
		return fmt.Errorf("store: invalid transition %s -> %s for object %s", from, StateDirty, id)
	}

	if _, err := s.objectStmts.markDirty.ExecContext(ctx, StateDirty, NowNano(), id); err != nil {
		return fmt.Errorf("store: mark dirty %s: %w", id, err)
	}

	return nil
}

// MarkDeleted tombstones an object (spec.md section 3: deleted objects are
// retained for tombstone_retention_days before being purged).
func (s *Store) MarkDeleted(ctx context.Context, id string, state SyncState) error {
	if _, err := s.objectStmts.markDeleted.ExecContext(ctx, state, NowNano(), id); err != nil {
		return fmt.Errorf("store: mark deleted %s: %w", id, err)
	}

	return nil
}

// DeleteObject physically removes an object row. Used by the delete handler
// once a local delete has been applied on the remote side.
func (s *Store) DeleteObject(ctx context.Context, id string) error {
	if _, err := s.objectStmts.delete.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("store: delete object %s: %w", id, err)
	}

	return nil
}

// CreateLocalObject mints a new Object row for a locally-originated file or
// folder (spec.md section 4: local create path), leaving cloud_id empty
// until the corresponding upload action completes.
func (s *Store) CreateLocalObject(ctx context.Context, o *Object) error {
	now := NowNano()
	o.Origin = OriginLocal
	o.CreatedAt = now
	o.UpdatedAt = now

	if o.SyncState == "" {
		o.SyncState = StatePendingPush
	}

	return s.UpsertObject(ctx, o)
}

// ApplyRemoteDelta upserts an object observed from the remote adapter. A new
// row is recorded as cloud-origin and, when o carries no sync state, as
// pending_pull; an existing row is replaced by o, keeping its created_at.
// It does not look for local edits in flight: callers run the conflict
// check before calling it.
func (s *Store) ApplyRemoteDelta(ctx context.Context, o *Object) error {
	existing, err := s.GetObject(ctx, o.ID)
	if err != nil {
		return err
	}

	now := NowNano()
	o.UpdatedAt = now

	if existing == nil {
		o.Origin = OriginCloud
		o.CreatedAt = now

		if o.SyncState == "" {
			o.SyncState = StatePendingPull
		}

		return s.UpsertObject(ctx, o)
	}

	o.CreatedAt = existing.CreatedAt

	return s.UpsertObject(ctx, o)
}

// ApplyUploadSuccess records the cloud identity and versioning token
// assigned to a locally-created object once its upload completes,
// transitioning it to synced.
func (s *Store) ApplyUploadSuccess(ctx context.Context, id, cloudID, etag, revision string) error {
	o, err := s.GetObject(ctx, id)
	if err != nil {
		return err
	}

	if o == nil {
		return fmt.Errorf("store: apply upload success: object %s not found", id)
	}

	o.CloudID = cloudID
	o.ETag = etag
	o.Revision = revision
	o.SyncState = StateSynced
	o.Dirty = false
	o.LastSynced = NowNano()
	o.UpdatedAt = o.LastSynced

	return s.UpsertObject(ctx, o)
}
