// Package version exposes build metadata of the presence monitor binaries.
//
// Version, Commit and BuildTime are injected with -ldflags, e.g.
// -X github.com/oshokin/presence-alarm/internal/version.Commit=abc123.
package version
