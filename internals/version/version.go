// Package version reports the daemon build version.
package version

import (
	"runtime/debug"
	"strings"
)

// SemVer is set at build time for releases.
//
// Example:
//
//	-ldflags "-X github.com/hatchery-io/hatchery/internals/version.SemVer=1.2.3"
var SemVer = "0.0.0-dev"

// Version returns SemVer plus best-effort vcs metadata, e.g. 0.0.0-dev+a1b2c3d4e5f6
// or 1.2.3+a1b2c3d4e5f6.dirty.
func Version() string {
	v := strings.TrimSpace(SemVer)
	if v == "" {
		v = "0.0.0-dev"
	}
	rev, dirty := vcsInfo()
	if rev == "" {
		return v
	}
	meta := rev
	if dirty {
		meta += ".dirty"
	}
	if strings.Contains(v, "+") {
		return v + "." + meta
	}
	return v + "+" + meta
}

func vcsInfo() (rev string, dirty bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok || info == nil {
		return "", false
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = strings.TrimSpace(s.Value)
		case "vcs.modified":
			v := strings.TrimSpace(strings.ToLower(s.Value))
			dirty = v == "true" || v == "1" || v == "yes"
		}
	}
	if len(rev) > 12 {
		rev = rev[:12]
	}
	return rev, dirty
}
