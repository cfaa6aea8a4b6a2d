// Package version holds the build version of the collab binaries.
package version

// Version is set at build time with
// -ldflags "-X github.com/hashicorp-forge/collab/internal/version.Version=...".
var Version = "0.1.0-dev"
