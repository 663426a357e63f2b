// -----------------------------------------------------------------------------
// Version Information
// -----------------------------------------------------------------------------
//
// Build metadata set at link time:
//
//	go build -ldflags="\
//	  -X github.com/afreidah/personal-site-backend/internal/version.Version=v1.4.0 \
//	  -X github.com/afreidah/personal-site-backend/internal/version.Commit=abc123d \
//	  -X github.com/afreidah/personal-site-backend/internal/version.BuildTime=2026-03-01T12:00:00Z" \
//	  ./cmd/site-backend
//
// -----------------------------------------------------------------------------

package version

// Version is the semantic version of the application.
var Version = "dev"

// Commit is the Git commit hash.
var Commit = "unknown"

// BuildTime is the timestamp when the binary was built.
var BuildTime = "unknown"

// String returns a formatted version string.
// Example: "v1.4.0 (commit: abc123d, built: 2026-03-01T12:00:00Z)"
func String() string {
	return Version + " (commit: " + Commit + ", built: " + BuildTime + ")"
}

// Tags returns the build metadata as static log tags.
func Tags(service string) map[string]string {
	return map[string]string{
		"service":    service,
		"version":    Version,
		"commit":     Commit,
		"build_date": BuildTime,
	}
}

// UserAgent is sent on every outbound request.
func UserAgent() string {
	return "personal-site-backend/" + Version
}
