package main

import "errors"

// Sentinel errors controlling the daemon's exit code (spec.md section 6).
// RunE handlers wrap failures with these via fmt.Errorf's %w so
// exitCodeFor can classify them without string matching.
var (
	errConfig = errors.New("config error")
	errMount  = errors.New("mount error")
	errAuth   = errors.New("auth error")
)

// exitCodeFor maps an error to the daemon's documented exit code: 0
// normal, 2 config error, 3 mount error, 4 auth error. Any other error
// exits 1, matching Cobra's own default for command failures.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errAuth):
		return 4
	case errors.Is(err, errMount):
		return 3
	case errors.Is(err, errConfig):
		return 2
	default:
		return 1
	}
}
