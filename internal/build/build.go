// Package build contains build-time metadata injected through ldflags.
package build

// These values are overridden at build time via
// -ldflags "-X github.com/patrongate/patrongate/internal/build.Version=...".
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// ProjectName is the binary and service name used in logs and headers.
	ProjectName = "patrongate"
)
