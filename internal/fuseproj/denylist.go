package fuseproj

import (
	"fmt"
	"os"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"
)

// procDenylist matches a FUSE caller's executable path against the
// configured thumbnailer_denylist (spec.md section 4.6: "Thumbnailer
// suppression ... is a first-class invariant, not a heuristic
// optimization"). Patterns use gitignore-style globs so a denylist entry
// like "*thumbnailer*" matches any path component, not just an exact name.
type procDenylist struct {
	matcher *ignore.GitIgnore
}

func newProcDenylist(patterns []string) *procDenylist {
	if len(patterns) == 0 {
		return &procDenylist{}
	}

	return &procDenylist{matcher: ignore.CompileIgnoreLines(patterns...)}
}

// blocks reports whether the calling process (identified by FUSE's caller
// PID) matches the denylist. Failure to resolve the caller's executable
// is not treated as a match: an unknown caller is allowed through rather
// than silently starving a legitimate reader.
func (d *procDenylist) blocks(callerPID uint32) bool {
	if d == nil || d.matcher == nil || callerPID == 0 {
		return false
	}

	exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", callerPID))
	if err != nil {
		return false
	}

	return d.matcher.MatchesPath(filepath.Base(exe)) || d.matcher.MatchesPath(exe)
}
