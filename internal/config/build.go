package config

import (
	"log/slog"
	"runtime/debug"
)

// Set with -ldflags "-X farewatch/internal/config.version=1.4.0 -X ..." in
// release builds.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo reports the linker-injected metadata. Builds without ldflags
// fall back to the VCS stamp the Go toolchain embeds, when present.
func NewBuildInfo() BuildInfo {
	b := BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
	if commit != "none" {
		return b
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return b
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Commit = s.Value
			if len(b.Commit) > 12 {
				b.Commit = b.Commit[:12]
			}
		case "vcs.time":
			if b.BuildTime == "unknown" {
				b.BuildTime = s.Value
			}
		}
	}
	return b
}

// LogValue renders the build as a single slog group.
func (b BuildInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("version", b.Version),
		slog.String("commit", b.Commit),
		slog.String("built", b.BuildTime),
	)
}
