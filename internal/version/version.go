// Package version provides centralized version information for the analysis
// engine so every surface (CLI, HTTP status, logs) reports the same build.
package version

// These variables can be overridden at build time using ldflags:
// go build -ldflags "-X github.com/Gourav1632/into-the-repo/internal/version.Version=1.2.0"
var (
	// Version is the semantic version of the engine
	Version = "1.0.0"

	// Commit is the git commit hash (set at build time)
	Commit = "unknown"

	// BuildDate is the build timestamp (set at build time)
	BuildDate = "unknown"
)

// Info returns a short version string for banners and status payloads.
func Info() string {
	if Commit != "unknown" && len(Commit) > 7 {
		return Version + " (" + Commit[:7] + ")"
	}
	return Version
}
