// Package version holds build-time identifiers, overridden at link time
// via -ldflags "-X github.com/docvellum/vellum/version.Version=...".
package version

// Version is the engine's release version, set by the build.
var Version = "dev"

// Date is the build timestamp, set by the build.
var Date = "unknown"
