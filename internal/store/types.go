// Package store implements OrchardDB: the persistent, transactional store of
// object metadata, shadow snapshots, cache presence, chunk presence, and
// pending actions (spec.md section 4.1). It is the single writer of
// persistent sync state; every other component uses the concrete,
// SQLite-backed Store type directly (there is no separate interface).
package store

import "time"

// ObjectType is the kind of a projected filesystem entry.
type ObjectType string

// Object types, spec.md section 3.
const (
	TypeFile   ObjectType = "file"
	TypeFolder ObjectType = "folder"
)

// Origin records which side created an object.
type Origin string

// Origin values, spec.md section 3.
const (
	OriginLocal Origin = "local"
	OriginCloud Origin = "cloud"
)

// SyncState is the tagged state-machine value for an object's sync status
// (Design Notes section 9: "Model sync_state as an explicit enum with
// documented transitions; reject invalid transitions at the State Store
// boundary rather than scattering checks").
type SyncState string

// Sync states, spec.md section 3.
const (
	StateSynced       SyncState = "synced"
	StateDirty        SyncState = "dirty"
	StatePendingPush  SyncState = "pending_push"
	StatePendingPull  SyncState = "pending_pull"
	StateConflict     SyncState = "conflict"
	StateError        SyncState = "error"
	StateDeletedLocal SyncState = "deleted_local"
	StateDeletedCloud SyncState = "deleted_cloud"
)

// validTransitions documents the allowed sync_state transitions, as checked
// by CanTransition. Store.MarkDirty rejects a move to dirty that isn't
// listed here; other Store writes do not consult this table.
var validTransitions = map[SyncState][]SyncState{
	StateSynced:       {StateDirty, StatePendingPush, StatePendingPull, StateConflict, StateDeletedLocal, StateDeletedCloud, StateError},
	StateDirty:        {StateSynced, StateConflict, StateDeletedLocal, StateError, StatePendingPush},
	StatePendingPush:  {StateSynced, StateConflict, StateError, StateDeletedLocal},
	StatePendingPull:  {StateSynced, StateConflict, StateError, StateDeletedCloud},
	StateConflict:     {StateSynced, StatePendingPush, StatePendingPull, StateError},
	StateError:        {StatePendingPush, StatePendingPull, StateSynced},
	StateDeletedLocal: {StateSynced, StateError},
	StateDeletedCloud: {StateSynced, StateError},
	"":                {StatePendingPush, StatePendingPull, StateSynced}, // initial row creation
}

// CanTransition reports whether moving from `from` to `to` is a documented
// sync_state transition.
func CanTransition(from, to SyncState) bool {
	if from == to {
		return true
	}

	for _, allowed := range validTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// Object is a file or folder in the projected tree (spec.md section 3).
type Object struct {
	ID        string // locally minted opaque ID, stable across renames
	CloudID   string // nullable until first sync; empty string = null
	Type      ObjectType
	ParentID  string // empty string = root (no parent)
	Name      string
	Extension string

	Size            int64
	LocalModifiedAt int64 // Unix nanoseconds
	CloudModifiedAt int64 // Unix nanoseconds
	ETag            string
	Revision        string
	Origin          Origin

	SyncState        SyncState
	Dirty            bool
	Deleted          bool
	MissingFromCloud bool
	LastSynced       int64 // Unix nanoseconds; 0 = never

	// ConflictHistory is a JSON array of resolution events, persisted per
	// Design Notes section 9's resolved Open Question (SPEC_FULL.md section 3).
	ConflictHistory string

	CreatedAt int64
	UpdatedAt int64
}

// Shadow is a snapshot of remote-observed metadata, the baseline for
// three-way conflict detection (spec.md section 3).
type Shadow struct {
	ObjectID   string
	CloudID    string
	ParentID   string
	Name       string
	ETag       string
	FileHash   string
	ModifiedAt int64 // Unix nanoseconds
}

// CachePresence is the CacheEntry.PresentLocally enum (spec.md section 3).
type CachePresence int

// Cache presence values.
const (
	PresentAbsent CachePresence = 0
	PresentFull   CachePresence = 1
	PresentSparse CachePresence = 2
)

// CacheEntry tracks local content-cache state for a file object (spec.md
// section 3). Only file objects have a CacheEntry row.
type CacheEntry struct {
	ObjectID       string
	LocalPath      string
	Size           int64
	FileHash       string
	PresentLocally CachePresence
	Pinned         bool
	LastAccessed   int64 // Unix nanoseconds
	OpenCount      int
}

// Chunk records presence of one fixed-size block of a sparse file (spec.md
// section 3).
type Chunk struct {
	ObjectID     string
	ChunkIndex   int64
	LastAccessed int64 // Unix nanoseconds
}

// ActionType is the kind of queued intent (spec.md section 3).
type ActionType string

// Action types.
const (
	ActionUpload        ActionType = "upload"
	ActionDownload      ActionType = "download"
	ActionDownloadChunk ActionType = "download_chunk"
	ActionUpdateContent ActionType = "update_content"
	ActionRename        ActionType = "rename"
	ActionMove          ActionType = "move"
	ActionDelete        ActionType = "delete"
	ActionListChildren  ActionType = "list_children"
	ActionEnsureLatest  ActionType = "ensure_latest"
)

// Direction records whether an action pushes local state to the remote or
// pulls remote state to local.
type Direction string

// Direction values.
const (
	DirectionPush Direction = "push"
	DirectionPull Direction = "pull"
)

// ActionStatus is the lifecycle state of a queued action.
type ActionStatus string

// Action status values.
const (
	ActionPending    ActionStatus = "pending"
	ActionProcessing ActionStatus = "processing"
	ActionFailed     ActionStatus = "failed"
	ActionCompleted  ActionStatus = "completed"
)

// Priority constants (spec.md section 4.3: "higher wins").
const (
	PriorityFUSESync    = 10
	PriorityInteractive = 5
	PriorityBackground  = 1
)

// Action is a queued intent against an object (spec.md section 3).
type Action struct {
	ID          int64
	Type        ActionType
	TargetID    string
	Destination string // optional: new parent/name for rename/move
	Metadata    string // free-form, JSON-encoded
	Direction   Direction
	Priority    int
	Status      ActionStatus
	RetryCount  int
	LastError   string
	NotBefore   int64 // Unix nanoseconds; backoff gate for retried actions
	CreatedAt   int64 // Unix nanoseconds
}

// NowNano returns the current time as Unix nanoseconds. All internal code
// uses int64 Unix nanoseconds exclusively; conversion to time.Time happens
// only at system/API boundaries.
func NowNano() int64 {
	return time.Now().UnixNano()
}

// ToUnixNano converts a time.Time to Unix nanoseconds, returning 0 for the
// zero time.
func ToUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}
