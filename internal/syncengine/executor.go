package syncengine

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/orchardfs/orchard/internal/cachefs"
	"github.com/orchardfs/orchard/internal/remote"
	"github.com/orchardfs/orchard/internal/store"
)

// Executor holds the handler methods for every action_type the Sync Engine
// dispatches (spec.md section 4.4), grounded on the teacher's executor.go /
// executor_transfer.go / executor_delete.go / executor_conflict.go split by
// concern, adapted from OneDrive's single-drive Graph semantics to the
// Remote Adapter capability set.
type Executor struct {
	store     *store.Store
	cache     *cachefs.Cache
	adapter   remote.Adapter
	conflict  *ConflictResolver
	bigDelete *BigDeleteGuard
	chunkSize int64
	logger    *slog.Logger
}

// NewExecutor creates an Executor wired to the given Store, Cache, Remote
// Adapter, conflict policy, and big-delete guard.
func NewExecutor(
	s *store.Store, cache *cachefs.Cache, adapter remote.Adapter,
	conflict *ConflictResolver, bigDelete *BigDeleteGuard, chunkSize int64, logger *slog.Logger,
) *Executor {
	return &Executor{
		store: s, cache: cache, adapter: adapter, conflict: conflict,
		bigDelete: bigDelete, chunkSize: chunkSize, logger: logger,
	}
}

// Dispatch routes a claimed action to its handler. Every handler is
// idempotent: re-running a completed action must not double-apply effects
// (spec.md section 4.4), which each handler achieves by checking current
// Store/Cache state before mutating anything.
func (e *Executor) Dispatch(ctx context.Context, a *store.Action) error {
	switch a.Type {
	case store.ActionListChildren:
		return e.handleListChildren(ctx, a)
	case store.ActionDownload:
		return e.handleDownload(ctx, a)
	case store.ActionDownloadChunk:
		return e.handleDownloadChunk(ctx, a)
	case store.ActionUpload:
		return e.handleUpload(ctx, a)
	case store.ActionUpdateContent:
		return e.handleUpdateContent(ctx, a)
	case store.ActionRename:
		return e.handleRename(ctx, a)
	case store.ActionMove:
		return e.handleMove(ctx, a)
	case store.ActionDelete:
		return e.handleDelete(ctx, a)
	case store.ActionEnsureLatest:
		return e.handleEnsureLatest(ctx, a)
	default:
		return fmt.Errorf("%w: unknown action type %q", ErrLogicInvariant, a.Type)
	}
}

// chunkMetadata is the JSON payload carried in Action.Metadata for a
// download_chunk action.
type chunkMetadata struct {
	Index int64 `json:"chunk_index"`
}

// handleListChildren pulls remote child metadata for folder and reconciles
// each entry, per spec.md section 4.4's list_children contract.
func (e *Executor) handleListChildren(ctx context.Context, a *store.Action) error {
	folderID, folderCloudID := a.TargetID, ""

	if a.TargetID != "" {
		folder, err := e.store.GetObject(ctx, a.TargetID)
		if err != nil {
			return err
		}

		if folder == nil {
			return fmt.Errorf("%w: list_children target %s not found", ErrLogicInvariant, a.TargetID)
		}

		folderCloudID = folder.CloudID
	}

	entries, err := e.adapter.List(ctx, folderCloudID)
	if err != nil {
		return fmt.Errorf("syncengine: list_children %s: %w", a.TargetID, err)
	}

	existingChildren, err := e.store.ListChildren(ctx, folderID)
	if err != nil {
		return err
	}

	seenCloudIDs := make(map[string]bool, len(entries))

	for _, entry := range entries {
		if err := e.applyListedEntry(ctx, folderID, entry); err != nil {
			return err
		}

		seenCloudIDs[entry.CloudID] = true
	}

	return e.tombstoneMissing(ctx, folderID, existingChildren, seenCloudIDs)
}

// applyListedEntry reconciles a single remote listing entry against any
// already-known local object under folderID.
func (e *Executor) applyListedEntry(ctx context.Context, folderID string, entry remote.Entry) error {
	existing, err := e.store.GetByCloudID(ctx, folderID, entry.CloudID)
	if err != nil {
		return err
	}

	typ := store.TypeFile
	if entry.Kind == remote.KindFolder {
		typ = store.TypeFolder
	}

	if existing == nil {
		o := &store.Object{
			ID:              newObjectID(),
			CloudID:         entry.CloudID,
			Type:            typ,
			ParentID:        folderID,
			Name:            entry.Name,
			Size:            entry.Size,
			CloudModifiedAt: store.ToUnixNano(entry.ModifiedAt),
			ETag:            entry.ETag,
			Origin:          store.OriginCloud,
			SyncState:       store.StatePendingPull,
		}

		return e.store.ApplyRemoteDelta(ctx, o)
	}

	sh, err := e.store.GetShadow(ctx, existing.ID)
	if err != nil {
		return err
	}

	localChanged := LocalChanged(existing, sh, "")
	remoteChanged := RemoteChanged(remote.Metadata{ETag: entry.ETag, ModifiedAt: entry.ModifiedAt, Size: entry.Size}, sh)

	switch Reconcile(localChanged, remoteChanged) {
	case DecisionNoop:
		return nil
	case DecisionPullRemote:
		existing.Name = entry.Name
		existing.Size = entry.Size
		existing.ETag = entry.ETag
		existing.CloudModifiedAt = store.ToUnixNano(entry.ModifiedAt)
		existing.SyncState = store.StatePendingPull

		return e.store.UpsertObject(ctx, existing)
	case DecisionPushLocal:
		// Local intent already recorded; nothing to change until the push
		// action itself runs.
		return nil
	default: // DecisionConflict
		_, err := e.conflict.ResolveContent(ctx, existing, sh,
			remote.Metadata{ETag: entry.ETag, ModifiedAt: entry.ModifiedAt, Size: entry.Size})

		return err
	}
}

// tombstoneMissing marks local children whose cloud_id no longer appears in
// the listing as missing_from_cloud and schedules their deletion, guarded by
// the big-delete safety invariant.
func (e *Executor) tombstoneMissing(
	ctx context.Context, folderID string, existingChildren []*store.Object, seenCloudIDs map[string]bool,
) error {
	var missing []*store.Object

	for _, child := range existingChildren {
		if child.Origin != store.OriginCloud || child.CloudID == "" {
			continue
		}

		if !seenCloudIDs[child.CloudID] {
			missing = append(missing, child)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	if err := e.bigDelete.Check(folderID, len(existingChildren), len(missing)); err != nil {
		e.logger.Error("list_children: big-delete guard suppressed tombstoning",
			slog.String("folder_id", folderID), slog.String("error", err.Error()))

		return nil
	}

	for _, child := range missing {
		child.MissingFromCloud = true
		child.SyncState = store.StateDeletedCloud

		if err := e.store.UpsertObject(ctx, child); err != nil {
			return err
		}

		// A remote delete cancels any push still queued against this
		// object (spec.md section 4.3), the same coalescing rule the FUSE
		// layer applies on a local unlink/rmdir.
		if err := e.store.Cancel(ctx, child.ID); err != nil {
			return err
		}

		if _, err := e.store.Enqueue(ctx, &store.Action{
			Type: store.ActionDelete, TargetID: child.ID, Direction: store.DirectionPull,
			Priority: store.PriorityBackground,
		}); err != nil {
			return err
		}
	}

	return nil
}

// handleDownload performs a full download for small files: writes a .part
// file, renames into place, sets present_locally, refreshes etag/file_hash
// (spec.md section 4.4).
func (e *Executor) handleDownload(ctx context.Context, a *store.Action) error {
	o, err := e.store.GetObject(ctx, a.TargetID)
	if err != nil {
		return err
	}

	if o == nil {
		return fmt.Errorf("%w: download target %s not found", ErrLogicInvariant, a.TargetID)
	}

	if entry, err := e.store.GetCacheEntry(ctx, o.ID); err != nil {
		return err
	} else if entry != nil && entry.PresentLocally == store.PresentFull && entry.FileHash != "" {
		// Already downloaded; re-running this completed action is a no-op.
		return nil
	}

	meta, err := e.adapter.Metadata(ctx, o.CloudID)
	if err != nil {
		return fmt.Errorf("syncengine: download %s metadata: %w", o.ID, err)
	}

	rc, err := e.adapter.DownloadRange(ctx, o.CloudID, 0, meta.Size, "")
	if err != nil {
		return fmt.Errorf("syncengine: download %s: %w", o.ID, err)
	}
	defer rc.Close()

	part, err := e.cache.ReserveFullDownload(o.ID)
	if err != nil {
		return err
	}

	hasher := sha256.New()

	if _, err := io.Copy(part, io.TeeReader(rc, hasher)); err != nil {
		part.Close()
		_ = e.cache.DiscardPartialDownload(o.ID)

		return fmt.Errorf("syncengine: download %s write: %w", o.ID, err)
	}

	if err := part.Close(); err != nil {
		return fmt.Errorf("syncengine: download %s close: %w", o.ID, err)
	}

	fileHash := hex.EncodeToString(hasher.Sum(nil))

	if err := e.cache.CommitFullDownload(ctx, o.ID, meta.Size, fileHash); err != nil {
		return err
	}

	o.Size = meta.Size
	o.ETag = meta.ETag
	o.Revision = meta.Revision
	o.SyncState = store.StateSynced
	o.Dirty = false
	o.LastSynced = store.NowNano()

	if err := e.store.UpsertObject(ctx, o); err != nil {
		return err
	}

	return e.store.UpsertShadow(ctx, &store.Shadow{
		ObjectID: o.ID, CloudID: o.CloudID, ParentID: o.ParentID,
		Name: o.Name, ETag: meta.ETag, FileHash: fileHash, ModifiedAt: store.ToUnixNano(meta.ModifiedAt),
	})
}

// handleDownloadChunk fetches one 8 MiB-aligned range of a sparse file's
// content (spec.md section 4.4). If the remote etag has moved since the
// object's recorded etag, it aborts, invalidates all chunks, and enqueues
// ensure_latest rather than mixing bytes from two versions.
func (e *Executor) handleDownloadChunk(ctx context.Context, a *store.Action) error {
	o, err := e.store.GetObject(ctx, a.TargetID)
	if err != nil {
		return err
	}

	if o == nil {
		return fmt.Errorf("%w: download_chunk target %s not found", ErrLogicInvariant, a.TargetID)
	}

	var cm chunkMetadata
	if err := json.Unmarshal([]byte(a.Metadata), &cm); err != nil {
		return fmt.Errorf("%w: download_chunk %s: bad metadata: %v", ErrLogicInvariant, a.TargetID, err)
	}

	if has, err := e.cache.HasRange(ctx, o.ID, cm.Index*e.chunkSize, e.chunkSize); err != nil {
		return err
	} else if len(has) == 0 {
		// Chunk already present; re-running this completed action is a no-op.
		return nil
	}

	meta, err := e.adapter.Metadata(ctx, o.CloudID)
	if err != nil {
		return fmt.Errorf("syncengine: download_chunk %s metadata: %w", o.ID, err)
	}

	if meta.ETag != o.ETag {
		e.logger.Warn("download_chunk: remote etag moved mid-fetch, invalidating chunks",
			slog.String("object_id", o.ID))

		if err := e.store.ClearChunks(ctx, o.ID); err != nil {
			return err
		}

		_, err := e.store.Enqueue(ctx, &store.Action{
			Type: store.ActionEnsureLatest, TargetID: o.ID, Direction: store.DirectionPull,
			Priority: store.PriorityFUSESync,
		})

		return err
	}

	start := cm.Index * e.chunkSize

	end := start + e.chunkSize
	if end > o.Size {
		end = o.Size
	}

	rc, err := e.adapter.DownloadRange(ctx, o.CloudID, start, end, "")
	if err != nil {
		return fmt.Errorf("syncengine: download_chunk %s[%d]: %w", o.ID, cm.Index, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return fmt.Errorf("syncengine: download_chunk %s[%d] read: %w", o.ID, cm.Index, err)
	}

	return e.cache.WriteChunk(ctx, o.ID, cm.Index, data)
}

// handleUpload uploads a locally-created object's content for the first
// time (spec.md section 4.4). If a remote sibling with the same name
// exists, Local Wins is applied; if it turns out to be the same cloud
// object, falls back to a conditional update.
func (e *Executor) handleUpload(ctx context.Context, a *store.Action) error {
	o, err := e.store.GetObject(ctx, a.TargetID)
	if err != nil {
		return err
	}

	if o == nil {
		return fmt.Errorf("%w: upload target %s not found", ErrLogicInvariant, a.TargetID)
	}

	if o.SyncState == store.StateSynced && o.CloudID != "" {
		// Already uploaded; re-running this completed action is a no-op.
		return nil
	}

	parent, err := e.store.GetObject(ctx, o.ParentID)
	if err != nil {
		return err
	}

	parentCloudID := ""
	if parent != nil {
		parentCloudID = parent.CloudID
	}

	sibling, err := e.adapter.List(ctx, parentCloudID)
	if err != nil {
		return fmt.Errorf("syncengine: upload %s list siblings: %w", o.ID, err)
	}

	for _, s := range sibling {
		if s.Name != o.Name {
			continue
		}

		if s.CloudID == o.CloudID {
			return e.handleUpdateContent(ctx, a)
		}

		// A different remote object occupies this name: Local Wins.
		if err := e.adapter.Delete(ctx, s.CloudID, s.ETag); err != nil && !errors.Is(err, remote.ErrNotFound) {
			return fmt.Errorf("syncengine: upload %s evict collider %s: %w", o.ID, s.CloudID, err)
		}

		break
	}

	if o.Type == store.TypeFolder {
		result, err := e.adapter.CreateFolder(ctx, parentCloudID, o.Name)
		if err != nil {
			return fmt.Errorf("syncengine: create folder %s: %w", o.ID, err)
		}

		if err := e.store.ApplyUploadSuccess(ctx, o.ID, result.CloudID, result.ETag, result.Revision); err != nil {
			return err
		}

		return e.store.UpsertShadow(ctx, &store.Shadow{
			ObjectID: o.ID, CloudID: result.CloudID, ParentID: o.ParentID,
			Name: o.Name, ETag: result.ETag, ModifiedAt: store.NowNano(),
		})
	}

	link, cleanup, err := e.cache.PrepareUpload(o.ID, o.Name)
	if err != nil {
		return err
	}
	defer cleanup()

	f, err := newOSFile(link)
	if err != nil {
		return fmt.Errorf("syncengine: upload %s open staged file: %w", o.ID, err)
	}
	defer f.Close()

	result, err := e.adapter.Upload(ctx, parentCloudID, o.Name, f, o.Size, "")
	if err != nil {
		return fmt.Errorf("syncengine: upload %s: %w", o.ID, err)
	}

	if err := e.store.ApplyUploadSuccess(ctx, o.ID, result.CloudID, result.ETag, result.Revision); err != nil {
		return err
	}

	entry, err := e.store.GetCacheEntry(ctx, o.ID)
	if err != nil {
		return err
	}

	return e.store.UpsertShadow(ctx, &store.Shadow{
		ObjectID: o.ID, CloudID: result.CloudID, ParentID: o.ParentID,
		Name: o.Name, ETag: result.ETag, FileHash: cacheEntryHash(entry), ModifiedAt: store.NowNano(),
	})
}

// handleUpdateContent re-uploads an existing cloud object's content,
// conditional on the remote etag matching the shadow's (spec.md section
// 4.4). A precondition failure enters the conflict protocol.
func (e *Executor) handleUpdateContent(ctx context.Context, a *store.Action) error {
	o, err := e.store.GetObject(ctx, a.TargetID)
	if err != nil {
		return err
	}

	if o == nil {
		return fmt.Errorf("%w: update_content target %s not found", ErrLogicInvariant, a.TargetID)
	}

	if !o.Dirty && o.SyncState == store.StateSynced {
		return nil
	}

	sh, err := e.store.GetShadow(ctx, o.ID)
	if err != nil {
		return err
	}

	parent, err := e.store.GetObject(ctx, o.ParentID)
	if err != nil {
		return err
	}

	parentCloudID := ""
	if parent != nil {
		parentCloudID = parent.CloudID
	}

	link, cleanup, err := e.cache.PrepareUpload(o.ID, o.Name)
	if err != nil {
		return err
	}
	defer cleanup()

	f, err := newOSFile(link)
	if err != nil {
		return fmt.Errorf("syncengine: update_content %s open staged file: %w", o.ID, err)
	}
	defer f.Close()

	ifMatch := o.ETag
	if sh != nil {
		ifMatch = sh.ETag
	}

	result, err := e.adapter.Upload(ctx, parentCloudID, o.Name, f, o.Size, ifMatch)

	switch {
	case errors.Is(err, remote.ErrPreconditionFailed):
		observed, metaErr := e.adapter.Metadata(ctx, o.CloudID)
		if metaErr != nil {
			return fmt.Errorf("syncengine: update_content %s precondition fetch: %w", o.ID, metaErr)
		}

		_, resolveErr := e.conflict.ResolveContent(ctx, o, sh, observed)

		return resolveErr
	case err != nil:
		return fmt.Errorf("syncengine: update_content %s: %w", o.ID, err)
	}

	if err := e.store.ApplyUploadSuccess(ctx, o.ID, result.CloudID, result.ETag, result.Revision); err != nil {
		return err
	}

	entry, err := e.store.GetCacheEntry(ctx, o.ID)
	if err != nil {
		return err
	}

	return e.store.UpsertShadow(ctx, &store.Shadow{
		ObjectID: o.ID, CloudID: result.CloudID, ParentID: o.ParentID,
		Name: o.Name, ETag: result.ETag, FileHash: cacheEntryHash(entry), ModifiedAt: store.NowNano(),
	})
}

// handleRename applies a local rename to the remote object, conditional on
// its current etag/revision. On a name collision, Local Wins: the remote
// collider is removed and the rename retried once.
func (e *Executor) handleRename(ctx context.Context, a *store.Action) error {
	o, sh, err := e.loadForMove(ctx, a)
	if err != nil || o == nil {
		return err
	}

	if sh != nil && sh.Name == o.Name {
		return nil
	}

	result, err := e.adapter.Rename(ctx, o.CloudID, o.Name, ifMatchOf(o, sh))
	if err != nil {
		if errors.Is(err, remote.ErrPreconditionFailed) {
			return e.resolveMoveCollision(ctx, o, store.ActionRename)
		}

		return fmt.Errorf("syncengine: rename %s: %w", o.ID, err)
	}

	return e.commitMoveResult(ctx, o, sh, result)
}

// handleMove applies a local reparent to the remote object, conditional on
// its current etag/revision.
func (e *Executor) handleMove(ctx context.Context, a *store.Action) error {
	o, sh, err := e.loadForMove(ctx, a)
	if err != nil || o == nil {
		return err
	}

	if sh != nil && sh.ParentID == o.ParentID {
		return nil
	}

	parent, err := e.store.GetObject(ctx, o.ParentID)
	if err != nil {
		return err
	}

	newParentCloudID := ""
	if parent != nil {
		newParentCloudID = parent.CloudID
	}

	result, err := e.adapter.Move(ctx, o.CloudID, newParentCloudID, ifMatchOf(o, sh))
	if err != nil {
		if errors.Is(err, remote.ErrPreconditionFailed) {
			return e.resolveMoveCollision(ctx, o, store.ActionMove)
		}

		return fmt.Errorf("syncengine: move %s: %w", o.ID, err)
	}

	return e.commitMoveResult(ctx, o, sh, result)
}

func (e *Executor) loadForMove(ctx context.Context, a *store.Action) (*store.Object, *store.Shadow, error) {
	o, err := e.store.GetObject(ctx, a.TargetID)
	if err != nil {
		return nil, nil, err
	}

	if o == nil {
		return nil, nil, fmt.Errorf("%w: target %s not found", ErrLogicInvariant, a.TargetID)
	}

	sh, err := e.store.GetShadow(ctx, o.ID)

	return o, sh, err
}

// resolveMoveCollision applies Local Wins when a rename/move destination
// name is already occupied remotely: remove the remote collider, then
// re-enqueue the rename/move (retry) for another attempt.
func (e *Executor) resolveMoveCollision(ctx context.Context, o *store.Object, retry store.ActionType) error {
	parent, err := e.store.GetObject(ctx, o.ParentID)
	if err != nil {
		return err
	}

	parentCloudID := ""
	if parent != nil {
		parentCloudID = parent.CloudID
	}

	siblings, err := e.adapter.List(ctx, parentCloudID)
	if err != nil {
		return fmt.Errorf("syncengine: resolve move collision %s: %w", o.ID, err)
	}

	for _, s := range siblings {
		if s.Name == o.Name && s.CloudID != o.CloudID {
			if err := e.adapter.Delete(ctx, s.CloudID, s.ETag); err != nil && !errors.Is(err, remote.ErrNotFound) {
				return fmt.Errorf("syncengine: evict move collider %s: %w", s.CloudID, err)
			}

			break
		}
	}

	_, err = e.store.Enqueue(ctx, &store.Action{
		Type: retry, TargetID: o.ID, Direction: store.DirectionPush, Priority: store.PriorityInteractive,
	})

	return err
}

func (e *Executor) commitMoveResult(ctx context.Context, o *store.Object, sh *store.Shadow, result remote.MutationResult) error {
	o.ETag = result.ETag
	o.Revision = result.Revision
	o.SyncState = store.StateSynced
	o.Dirty = false
	o.LastSynced = store.NowNano()

	if err := e.store.UpsertObject(ctx, o); err != nil {
		return err
	}

	fileHash := ""
	if sh != nil {
		fileHash = sh.FileHash
	}

	return e.store.UpsertShadow(ctx, &store.Shadow{
		ObjectID: o.ID, CloudID: o.CloudID, ParentID: o.ParentID,
		Name: o.Name, ETag: result.ETag, FileHash: fileHash, ModifiedAt: store.NowNano(),
	})
}

// handleDelete applies a local or remote-observed delete (spec.md section
// 4.4). A local delete deletes the remote object conditionally, treating
// "already gone" as success; a remote-observed delete removes the local
// projection's content and keeps a tombstone row.
func (e *Executor) handleDelete(ctx context.Context, a *store.Action) error {
	o, err := e.store.GetObject(ctx, a.TargetID)
	if err != nil {
		return err
	}

	if o == nil {
		// Already purged; re-running this completed action is a no-op.
		return nil
	}

	switch o.SyncState {
	case store.StateDeletedLocal:
		return e.deleteRemoteSide(ctx, o)
	case store.StateDeletedCloud:
		return e.deleteLocalSide(ctx, o)
	default:
		return fmt.Errorf("%w: delete target %s in unexpected state %s", ErrLogicInvariant, o.ID, o.SyncState)
	}
}

func (e *Executor) deleteRemoteSide(ctx context.Context, o *store.Object) error {
	if o.CloudID != "" {
		sh, err := e.store.GetShadow(ctx, o.ID)
		if err != nil {
			return err
		}

		ifMatch := o.ETag
		if sh != nil {
			ifMatch = sh.ETag
		}

		if err := e.adapter.Delete(ctx, o.CloudID, ifMatch); err != nil && !errors.Is(err, remote.ErrNotFound) {
			return fmt.Errorf("syncengine: delete %s remote: %w", o.ID, err)
		}
	}

	if err := e.store.DeleteShadow(ctx, o.ID); err != nil {
		return err
	}

	if err := e.cache.Remove(ctx, o.ID); err != nil {
		return err
	}

	return e.store.DeleteObject(ctx, o.ID)
}

func (e *Executor) deleteLocalSide(ctx context.Context, o *store.Object) error {
	if err := e.cache.Remove(ctx, o.ID); err != nil {
		return err
	}

	if err := e.store.DeleteShadow(ctx, o.ID); err != nil {
		return err
	}

	// Keep the tombstone row itself for idempotency (spec.md section 4.4);
	// tombstone retention sweep purges it later.
	return e.store.MarkDeleted(ctx, o.ID, store.StateDeletedCloud)
}

// handleEnsureLatest fetches remote metadata only and reconciles against
// the shadow and object, scheduling a further push or pull as appropriate
// (spec.md section 4.4).
func (e *Executor) handleEnsureLatest(ctx context.Context, a *store.Action) error {
	o, err := e.store.GetObject(ctx, a.TargetID)
	if err != nil {
		return err
	}

	if o == nil {
		return nil
	}

	if o.CloudID == "" {
		return nil
	}

	meta, err := e.adapter.Metadata(ctx, o.CloudID)
	if err != nil {
		if errors.Is(err, remote.ErrNotFound) {
			o.MissingFromCloud = true
			o.SyncState = store.StateDeletedCloud

			return e.store.UpsertObject(ctx, o)
		}

		return fmt.Errorf("syncengine: ensure_latest %s: %w", o.ID, err)
	}

	sh, err := e.store.GetShadow(ctx, o.ID)
	if err != nil {
		return err
	}

	localChanged := LocalChanged(o, sh, "")
	remoteChanged := RemoteChanged(meta, sh)

	var actionType store.ActionType

	switch Reconcile(localChanged, remoteChanged) {
	case DecisionNoop:
		return nil
	case DecisionPushLocal:
		actionType = store.ActionUpdateContent
	case DecisionPullRemote:
		actionType = store.ActionDownload
	default:
		_, err := e.conflict.ResolveContent(ctx, o, sh, meta)
		return err
	}

	_, err = e.store.Enqueue(ctx, &store.Action{
		Type: actionType, TargetID: o.ID, Direction: directionFor(actionType), Priority: store.PriorityBackground,
	})

	return err
}

func directionFor(t store.ActionType) store.Direction {
	if t == store.ActionDownload || t == store.ActionDownloadChunk {
		return store.DirectionPull
	}

	return store.DirectionPush
}

func ifMatchOf(o *store.Object, sh *store.Shadow) string {
	if sh != nil {
		return sh.ETag
	}

	return o.ETag
}

func cacheEntryHash(entry *store.CacheEntry) string {
	if entry == nil {
		return ""
	}

	return entry.FileHash
}
