// Package version carries build metadata injected with -ldflags -X.
package version

import "fmt"

var (
	// Version is the semantic version of the binary. Overridden at build time.
	Version = "dev"
	// Commit is the git commit hash. Overridden at build time.
	Commit = "unknown"
	// BuildDate is the build timestamp. Overridden at build time.
	BuildDate = "unknown"
)

// UserAgent identifies outbound HTTP calls made by this build.
func UserAgent() string {
	return fmt.Sprintf("tradesettle/%s", Version)
}
