package syncengine

import (
	"os"

	"github.com/google/uuid"
)

// newObjectID mints a locally-opaque, rename-stable object ID for objects
// first observed from a remote listing, matching the FUSE surface's own ID
// minting for locally-created objects (spec.md section 3: "locally minted
// opaque ID, stable across renames").
func newObjectID() string {
	return uuid.NewString()
}

// newOSFile opens path for reading, used to hand a staged upload's content
// to the Remote Adapter.
func newOSFile(path string) (*os.File, error) {
	return os.Open(path)
}
