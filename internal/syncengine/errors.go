package syncengine

import (
	"errors"
	"io/fs"
	"os"

	"github.com/orchardfs/orchard/internal/remote"
)

// ErrorClass is the closed taxonomy every handler failure is sorted into
// before the worker decides whether to retry, enter the conflict protocol,
// or surface the action as permanently failed (spec.md section 7).
type ErrorClass string

// Error classes, spec.md section 7.
const (
	ClassTransient          ErrorClass = "transient"
	ClassPreconditionFailed ErrorClass = "precondition_failed"
	ClassNotFound           ErrorClass = "not_found"
	ClassPermission         ErrorClass = "permission"
	ClassLocalIO            ErrorClass = "local_io"
	ClassLogicInvariant     ErrorClass = "logic_invariant"
)

// ErrLogicInvariant is returned by handlers when they detect a state that
// should be impossible given the Store's invariants (e.g. a download action
// for an object with no cache entry). It always classifies as
// ClassLogicInvariant regardless of wrapping.
var ErrLogicInvariant = errors.New("syncengine: logic invariant violated")

// ErrNoSpace is returned when a local write fails with a disk-full
// condition, classified as ClassLocalIO but additionally triggering an
// immediate eviction pass before the next retry (spec.md section 7).
var ErrNoSpace = errors.New("syncengine: local disk full")

// Classify maps a handler error, typically one returned by a remote.Adapter
// method or a local filesystem call, to its error class (spec.md section 7's
// taxonomy), grounded on the teacher's internal/graph/errors.go HTTP status
// classification, generalized from Graph-specific sentinels to the Remote
// Adapter's own sentinel errors plus local os/fs errors.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassTransient
	}

	switch {
	case errors.Is(err, ErrLogicInvariant):
		return ClassLogicInvariant
	case errors.Is(err, remote.ErrPreconditionFailed):
		return ClassPreconditionFailed
	case errors.Is(err, remote.ErrNotFound):
		return ClassNotFound
	case errors.Is(err, remote.ErrPermission):
		return ClassPermission
	case errors.Is(err, remote.ErrTransient):
		return ClassTransient
	case errors.Is(err, ErrNoSpace), errors.Is(err, fs.ErrPermission), isLocalIOErr(err):
		return ClassLocalIO
	default:
		return ClassTransient
	}
}

// isLocalIOErr reports whether err originated from a local filesystem
// operation (os.PathError and friends), as opposed to a Remote Adapter call.
func isLocalIOErr(err error) bool {
	var pathErr *os.PathError

	return errors.As(err, &pathErr)
}
