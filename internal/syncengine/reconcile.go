package syncengine

import (
	"github.com/orchardfs/orchard/internal/remote"
	"github.com/orchardfs/orchard/internal/store"
)

// Decision is the outcome of the three-way comparison among an object's
// local intent, its shadow baseline, and the newly observed remote state
// (spec.md section 4.5).
type Decision string

// Decisions, spec.md section 4.5's comparison table.
const (
	DecisionNoop       Decision = "noop"
	DecisionPushLocal  Decision = "push"
	DecisionPullRemote Decision = "pull"
	DecisionConflict   Decision = "conflict"
)

// Reconcile implements the three-way comparison table as a pure function of
// two booleans, so it is unit-testable without any I/O, grounded on the
// teacher's reconciler.go three-way classification (local/remote/baseline)
// generalized from OneDrive delta semantics to Orchard's shadow model.
func Reconcile(localChanged, remoteChanged bool) Decision {
	switch {
	case !localChanged && !remoteChanged:
		return DecisionNoop
	case localChanged && !remoteChanged:
		return DecisionPushLocal
	case !localChanged && remoteChanged:
		return DecisionPullRemote
	default:
		return DecisionConflict
	}
}

// LocalChanged reports whether o's local-side state differs from its
// shadow baseline (spec.md section 4.5: "Changed = content_hash or relevant
// metadata differs from shadow"). A nil shadow means the object has never
// been observed remotely, so any locally-originated object counts as
// changed.
func LocalChanged(o *store.Object, sh *store.Shadow, cacheFileHash string) bool {
	if o.Dirty {
		return true
	}

	if sh == nil {
		return o.Origin == store.OriginLocal
	}

	if cacheFileHash != "" && sh.FileHash != "" && cacheFileHash != sh.FileHash {
		return true
	}

	return o.Name != sh.Name || o.ParentID != sh.ParentID
}

// RemoteChanged reports whether a freshly observed remote Metadata differs
// from the shadow baseline. A nil shadow means the object has never been
// observed remotely before, so the first observation always counts as a
// change.
func RemoteChanged(observed remote.Metadata, sh *store.Shadow) bool {
	if sh == nil {
		return true
	}

	return observed.ETag != sh.ETag
}
