package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		exitOnError(err)
	}
}

// exitOnError prints a user-friendly error message and exits with the
// sentinel code matching its class (spec.md section 6: "Exit codes for the
// daemon: 0 normal, 2 config error, 3 mount error, 4 auth error").
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(exitCodeFor(err))
}
