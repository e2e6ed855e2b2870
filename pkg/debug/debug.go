// Package debug provides global debug logging flags
package debug

import "fmt"

// Enabled controls whether debug logging is active
var Enabled bool

// Fusion controls whether per-frame fusion traces are logged (phase, cue,
// sensors and confidence on every frame). Use --debug-fusion to enable these
// very verbose logs
var Fusion bool

// Level returns the log level implied by the flags.
func Level(fallback string) string {
	if Enabled || Fusion {
		return "debug"
	}
	return fallback
}

// Log prints a message only if debug mode is enabled
func Log(format string, args ...any) {
	if Enabled {
		fmt.Printf(format, args...)
	}
}
