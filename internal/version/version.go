// Package version reports the weave release and the commit it was built from.
package version

import (
	_ "embed"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var release string

// Get returns the release number from the VERSION file.
func Get() string {
	return strings.TrimSpace(release)
}

// Full returns the release followed by the short VCS revision when the
// binary carries build info, e.g. "0.3.0 (a1b2c3d, modified)".
func Full() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return Get()
	}
	var rev string
	modified := false
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if rev == "" {
		return Get()
	}
	if len(rev) > 7 {
		rev = rev[:7]
	}
	if modified {
		rev += ", modified"
	}
	return Get() + " (" + rev + ")"
}
