// Package version reports the engine's build identity. Variables can be
// overridden at build time:
//
//	go build -ldflags "-X github.com/promptforge/promptforge/version.version=1.0.0"
package version

import (
	"fmt"
	"runtime/debug"
	"strings"
)

const (
	devVersion     = "dev"
	shortCommitLen = 7
)

// Build-time variables, settable with -ldflags.
var (
	version   = devVersion
	gitCommit = ""
	buildDate = ""
)

// Version returns the engine version, falling back to module build info when
// no ldflags version was stamped.
func Version() string {
	if version != devVersion {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return devVersion
}

func commitFromBuildInfo() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" && setting.Value != "" {
			return setting.Value[:min(shortCommitLen, len(setting.Value))]
		}
	}
	return ""
}

func dirtyFromBuildInfo() bool {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return false
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.modified" && setting.Value == "true" {
			return true
		}
	}
	return false
}

// Info returns a human-readable multi-line version description.
func Info() string {
	var b strings.Builder
	fmt.Fprintf(&b, "promptforge engine version %s", Version())

	commit := gitCommit
	if commit == "" {
		commit = commitFromBuildInfo()
	}
	if commit != "" {
		fmt.Fprintf(&b, "\ncommit: %s", commit)
	}
	if buildDate != "" {
		fmt.Fprintf(&b, "\nbuilt: %s", buildDate)
	}
	return b.String()
}

// LogAttrs returns the build identity as structured log attributes.
func LogAttrs() []any {
	attrs := []any{"version", Version()}

	commit := gitCommit
	if commit == "" {
		commit = commitFromBuildInfo()
	}
	if commit != "" {
		attrs = append(attrs, "commit", commit)
	}
	if gitCommit == "" && dirtyFromBuildInfo() {
		attrs = append(attrs, "dirty", true)
	}
	if buildDate != "" {
		attrs = append(attrs, "built", buildDate)
	}
	return attrs
}
