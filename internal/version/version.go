// Package version holds build metadata injected at link time via
// -ldflags "-X ...".
package version

var (
	// Version is the semantic version of the build.
	Version = "dev"
	// GitCommit is the git commit hash of the build.
	GitCommit = "unknown"
	// BuildDate is the build timestamp.
	BuildDate = "unknown"
)
