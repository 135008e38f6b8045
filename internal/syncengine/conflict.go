package syncengine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/orchardfs/orchard/internal/config"
	"github.com/orchardfs/orchard/internal/metrics"
	"github.com/orchardfs/orchard/internal/remote"
	"github.com/orchardfs/orchard/internal/store"
)

// ConflictResolver applies the conflict protocol (spec.md section 4.5),
// grounded on the teacher's ConflictHandler (conflict.go) — stateless,
// performs the resolving mutation and returns what the executor still needs
// to dispatch — but re-targeted from the teacher's single keep-both policy
// to the spec's three configurable content-conflict policies.
type ConflictResolver struct {
	store   *store.Store
	adapter remote.Adapter
	policy  config.ConflictPolicy
	logger  *slog.Logger
}

// NewConflictResolver creates a ConflictResolver using policy for content
// conflicts (local_wins is the spec's default).
func NewConflictResolver(s *store.Store, adapter remote.Adapter, policy config.ConflictPolicy, logger *slog.Logger) *ConflictResolver {
	if policy == "" {
		policy = config.ConflictLocalWins
	}

	return &ConflictResolver{store: s, adapter: adapter, policy: policy, logger: logger}
}

// Next is what the executor must do after a ConflictResolver method returns
// successfully.
type Next string

// Outcomes a conflict resolution can hand back to the executor.
const (
	NextNone     Next = ""
	NextUpload   Next = "upload"
	NextDownload Next = "download"
)

// ResolveContent handles an edit-edit content conflict (both local and
// remote changed since the shadow baseline) for o, against the freshly
// observed remote metadata, per the configured policy.
func (r *ConflictResolver) ResolveContent(
	ctx context.Context, o *store.Object, sh *store.Shadow, observed remote.Metadata,
) (Next, error) {
	r.logger.Warn("content conflict detected",
		slog.String("object_id", o.ID), slog.String("policy", string(r.policy)))

	switch r.policy {
	case config.ConflictRemoteWins:
		return r.resolveRemoteWins(ctx, o, sh, observed, "remote_wins")
	case config.ConflictManual:
		return NextNone, r.markManual(ctx, o, sh, observed)
	default:
		return r.resolveLocalWins(ctx, o, sh, observed, "local_wins")
	}
}

// resolveLocalWins implements spec.md section 4.5's default content-conflict
// policy: delete the remote object conditional on its current ETag, then
// have the local version uploaded as new. The displaced cloud_id is
// recorded in conflict_history for audit.
func (r *ConflictResolver) resolveLocalWins(
	ctx context.Context, o *store.Object, sh *store.Shadow, observed remote.Metadata, label string,
) (Next, error) {
	displaced := o.CloudID

	if o.CloudID != "" {
		if err := r.adapter.Delete(ctx, o.CloudID, observed.ETag); err != nil && !errors.Is(err, remote.ErrNotFound) {
			return NextNone, fmt.Errorf("syncengine: conflict %s delete remote %s: %w", label, o.CloudID, err)
		}
	}

	ev := store.ConflictEvent{
		DetectedAt:       store.NowNano(),
		ResolvedAt:       store.NowNano(),
		Policy:           label,
		Resolution:       "local_wins",
		LocalHash:        cacheFileHash(sh),
		RemoteHash:       observed.ETag,
		DisplacedCloudID: displaced,
	}

	if err := r.store.AppendConflictHistory(ctx, o.ID, ev); err != nil {
		return NextNone, err
	}

	o.CloudID = ""
	o.ETag = ""
	o.Revision = ""
	o.Dirty = true
	o.SyncState = store.StatePendingPush

	if err := r.store.UpsertObject(ctx, o); err != nil {
		return NextNone, err
	}

	metrics.ConflictsTotal.WithLabelValues("content", label).Inc()

	return NextUpload, nil
}

// resolveRemoteWins discards the local edit and pulls the remote version,
// for the remote_wins content-conflict policy.
func (r *ConflictResolver) resolveRemoteWins(
	ctx context.Context, o *store.Object, sh *store.Shadow, observed remote.Metadata, label string,
) (Next, error) {
	ev := store.ConflictEvent{
		DetectedAt: store.NowNano(),
		ResolvedAt: store.NowNano(),
		Policy:     label,
		Resolution: "remote_wins",
		LocalHash:  cacheFileHash(sh),
		RemoteHash: observed.ETag,
	}

	if err := r.store.AppendConflictHistory(ctx, o.ID, ev); err != nil {
		return NextNone, err
	}

	o.Dirty = false
	o.SyncState = store.StatePendingPull

	if err := r.store.UpsertObject(ctx, o); err != nil {
		return NextNone, err
	}

	metrics.ConflictsTotal.WithLabelValues("content", label).Inc()

	return NextDownload, nil
}

// markManual records the conflict and leaves the object in sync_state =
// conflict for the manual policy, surfaced via the Control Panel's query
// API (spec.md section 4.5: "Any conflict the engine declines to
// auto-resolve sets sync_state=conflict").
func (r *ConflictResolver) markManual(ctx context.Context, o *store.Object, sh *store.Shadow, observed remote.Metadata) error {
	ev := store.ConflictEvent{
		DetectedAt: store.NowNano(),
		Policy:     "manual",
		Resolution: "pending",
		LocalHash:  cacheFileHash(sh),
		RemoteHash: observed.ETag,
	}

	if err := r.store.AppendConflictHistory(ctx, o.ID, ev); err != nil {
		return err
	}

	o.SyncState = store.StateConflict

	if err := r.store.UpsertObject(ctx, o); err != nil {
		return err
	}

	metrics.ConflictsTotal.WithLabelValues("content", "manual_pending").Inc()

	return nil
}

// ResolveDeleteVsEdit handles a local edit racing a remote delete: the
// local object is re-pushed as a new cloud object (spec.md section 4.5:
// "effectively undelete"). Unlike a content conflict this is not subject to
// the configurable policy — the spec's default is fixed.
func (r *ConflictResolver) ResolveDeleteVsEdit(ctx context.Context, o *store.Object) (Next, error) {
	ev := store.ConflictEvent{
		DetectedAt:       store.NowNano(),
		ResolvedAt:       store.NowNano(),
		Policy:           "delete_vs_edit",
		Resolution:       "undelete_local",
		DisplacedCloudID: o.CloudID,
	}

	if err := r.store.AppendConflictHistory(ctx, o.ID, ev); err != nil {
		return NextNone, err
	}

	o.CloudID = ""
	o.ETag = ""
	o.Revision = ""
	o.Dirty = true
	o.SyncState = store.StatePendingPush

	if err := r.store.UpsertObject(ctx, o); err != nil {
		return NextNone, err
	}

	metrics.ConflictsTotal.WithLabelValues("delete_vs_edit", "undelete_local").Inc()

	return NextUpload, nil
}

// ResolveEditVsDelete handles a local delete racing a remote edit: the
// default restores the remote version locally and cancels the local delete
// (spec.md section 4.5).
func (r *ConflictResolver) ResolveEditVsDelete(ctx context.Context, o *store.Object) (Next, error) {
	ev := store.ConflictEvent{
		DetectedAt: store.NowNano(),
		ResolvedAt: store.NowNano(),
		Policy:     "edit_vs_delete",
		Resolution: "restore_remote",
	}

	if err := r.store.AppendConflictHistory(ctx, o.ID, ev); err != nil {
		return NextNone, err
	}

	o.Deleted = false
	o.SyncState = store.StatePendingPull

	if err := r.store.UpsertObject(ctx, o); err != nil {
		return NextNone, err
	}

	metrics.ConflictsTotal.WithLabelValues("edit_vs_delete", "restore_remote").Inc()

	return NextDownload, nil
}

// ErrNotInConflict is returned by ResolveManual when the target object is
// not currently sync_state=conflict.
var ErrNotInConflict = errors.New("syncengine: object is not in conflict")

// ResolveManual applies an operator's explicit choice from the control API's
// POST /resolve/{id}?choice={local|remote} (spec.md section 6), bypassing
// the configured automatic policy for this one object.
func (r *ConflictResolver) ResolveManual(ctx context.Context, o *store.Object, choice string) (Next, error) {
	if o.SyncState != store.StateConflict {
		return NextNone, ErrNotInConflict
	}

	sh, err := r.store.GetShadow(ctx, o.ID)
	if err != nil {
		return NextNone, err
	}

	var observed remote.Metadata
	if o.CloudID != "" {
		observed, err = r.adapter.Metadata(ctx, o.CloudID)
		if err != nil && !errors.Is(err, remote.ErrNotFound) {
			return NextNone, fmt.Errorf("syncengine: resolve manual fetch metadata %s: %w", o.ID, err)
		}
	}

	switch choice {
	case "remote":
		return r.resolveRemoteWins(ctx, o, sh, observed, "manual_remote")
	case "local":
		return r.resolveLocalWins(ctx, o, sh, observed, "manual_local")
	default:
		return NextNone, fmt.Errorf("syncengine: resolve manual: invalid choice %q", choice)
	}
}

func cacheFileHash(sh *store.Shadow) string {
	if sh == nil {
		return ""
	}

	return sh.FileHash
}
