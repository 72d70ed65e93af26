// Package simlog is a thin wrapper over the standard log package,
// matching the plain log.Printf/log.Fatalf call sites the teacher uses
// throughout cmd/snmpsim and internal/traps rather than a structured
// logging library — no package in the retrieval pack brings one in, so
// this carries the teacher's own logging style forward rather than
// introducing a new dependency nothing else in the corpus uses.
package simlog

import "log"

// Printf logs a formatted line, matching log.Printf.
func Printf(format string, args ...interface{}) {
	log.Printf(format, args...)
}

// Fatalf logs a formatted line and exits, matching log.Fatalf. Reserved
// for startup failures (spec.md §7: "fatal errors remain limited to UDP
// socket bind failure at startup").
func Fatalf(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

// Warnf prefixes a formatted line with "Warning: ", the convention the
// teacher's main.go already uses for non-fatal startup problems (file
// descriptor limits, optional subsystem failures) instead of a distinct
// log level.
func Warnf(format string, args ...interface{}) {
	log.Printf("Warning: "+format, args...)
}
