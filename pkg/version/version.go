// Package version holds build metadata injected with -ldflags.
package version

import (
	"fmt"
	"runtime/debug"
)

// Build metadata. Overridden at link time:
//
//	-ldflags "-X github.com/jormeli/slangload/pkg/version.Version=v0.3.0"
var (
	Version = "dev"
	Commit  = "<unknown>"
	Date    = ""
)

// Info returns the version, falling back to the module version recorded by
// the Go toolchain when the binary was built without ldflags.
func Info() string {
	ver := Version

	if ver == "dev" {
		if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
			ver = bi.Main.Version
		}
	}

	if Date == "" {
		return fmt.Sprintf("%s (%s)", ver, Commit)
	}

	return fmt.Sprintf("%s (%s, %s)", ver, Commit, Date)
}
