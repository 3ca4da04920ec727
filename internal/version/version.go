// Package version resolves the running build's version string.
package version

import (
	"runtime/debug"
	"strings"
)

// Name is the product name used in the User-Agent header.
const Name = "fieldops"

// IsDevelopmentVersion returns true for non-release versions.
func IsDevelopmentVersion(v string) bool {
	if v == "" || v == "unknown" || v == "dev" || v == "devel" {
		return true
	}
	return strings.HasPrefix(v, "devel+")
}

// Resolve returns v when it was injected at build time, otherwise the
// module version or a devel+<rev> string derived from build info.
func Resolve(v string) string {
	if !IsDevelopmentVersion(v) {
		return v
	}
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return v
	}
	return fromBuildInfo(v, info)
}

func fromBuildInfo(v string, info *debug.BuildInfo) string {
	// go install module@vX.Y.Z
	if info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}

	var rev, modified string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}
	if rev == "" {
		return v
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	parts := []string{"devel", rev}
	if modified == "true" {
		parts = append(parts, "dirty")
	}
	return strings.Join(parts, "+")
}

// UserAgent returns the User-Agent sent to the ERP backend.
func UserAgent(v string) string {
	if v == "" {
		v = "dev"
	}
	return Name + "/" + v
}
