// Package remote defines the narrow capability interface the sync engine
// drives against whatever backs the cloud side of a sync (spec.md section
// 6: "Remote Adapter contract — what the engine consumes; any
// implementation that honors this can drive the engine"). A real
// Apple-iCloud-backed implementation is out of scope; this package ships
// only the interface and an in-memory MockAdapter for tests.
package remote

import (
	"context"
	"errors"
	"io"
	"time"
)

// Sentinel errors returned by Adapter methods. The sync engine classifies
// errors by errors.Is against these (spec.md section 7's error taxonomy),
// never by inspecting implementation-specific error types.
var (
	ErrNotFound           = errors.New("remote: not found")
	ErrPreconditionFailed = errors.New("remote: precondition failed")
	ErrNotModified        = errors.New("remote: not modified")
	ErrPermission         = errors.New("remote: permission denied")
	ErrTransient          = errors.New("remote: transient failure")
)

// Kind distinguishes files from folders in remote listings, mirroring
// store.ObjectType without importing the store package (the adapter
// boundary must not depend on internal persistence types).
type Kind string

// Remote entry kinds.
const (
	KindFile   Kind = "file"
	KindFolder Kind = "folder"
)

// Entry is one child returned by List.
type Entry struct {
	CloudID    string
	Name       string
	Kind       Kind
	Size       int64
	ETag       string
	ModifiedAt time.Time
}

// Metadata is the current remote state of a single object.
type Metadata struct {
	ETag       string
	Revision   string
	ModifiedAt time.Time
	Size       int64
}

// MutationResult is returned by every call that mutates remote state,
// carrying the new opaque versioning token (spec.md section 6: "Returns a
// versioning token (ETag/revision) on every mutation").
type MutationResult struct {
	CloudID  string
	ETag     string
	Revision string
}

// Adapter is the capability set the sync engine requires of the remote
// side of a sync. ETag and revision are treated as opaque strings
// throughout (SPEC_FULL.md's resolution of spec.md section 9's Open
// Question): the engine never parses them, only compares and echoes them
// back as an if-match precondition.
type Adapter interface {
	// List returns the immediate children of folderCloudID ("" for the
	// root folder).
	List(ctx context.Context, folderCloudID string) ([]Entry, error)

	// Metadata fetches the current remote attributes of cloudID.
	Metadata(ctx context.Context, cloudID string) (Metadata, error)

	// DownloadRange fetches bytes [start, end) of cloudID's content.
	// Returns ErrNotModified if ifNoneMatch equals the current ETag.
	DownloadRange(ctx context.Context, cloudID string, start, end int64, ifNoneMatch string) (io.ReadCloser, error)

	// Upload creates or replaces content under parentCloudID with the given
	// name. ifMatch, when non-empty, makes the upload conditional on the
	// existing object's ETag (empty cloudID on the remote side means
	// "create"; a non-matching ifMatch on an existing object returns
	// ErrPreconditionFailed).
	Upload(ctx context.Context, parentCloudID, name string, content io.Reader, size int64, ifMatch string) (MutationResult, error)

	// Rename changes cloudID's name in place.
	Rename(ctx context.Context, cloudID, newName, ifMatch string) (MutationResult, error)

	// Move reparents cloudID under newParentCloudID.
	Move(ctx context.Context, cloudID, newParentCloudID, ifMatch string) (MutationResult, error)

	// Delete removes cloudID.
	Delete(ctx context.Context, cloudID, ifMatch string) error

	// CreateFolder creates a folder named name under parentCloudID.
	CreateFolder(ctx context.Context, parentCloudID, name string) (MutationResult, error)
}
