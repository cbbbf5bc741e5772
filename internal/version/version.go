// Package version holds build metadata for the paperdex binary.
package version

// Overridden at build time via -ldflags "-X ...".
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)
