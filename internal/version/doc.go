// Package version exposes build metadata of the tracker binaries.
//
// Version, Commit and BuildTime are injected with -ldflags. Builds made with
// `go install` fall back to the VCS stamp recorded by the toolchain.
package version
