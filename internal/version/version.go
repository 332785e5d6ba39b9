// Package version reports which egress build is running.
//
// Release builds stamp the values with
//
//	-ldflags "-X github.com/reglet-dev/egress/internal/version.Version=v1.2.3
//	          -X github.com/reglet-dev/egress/internal/version.Commit=abc1234
//	          -X github.com/reglet-dev/egress/internal/version.BuildDate=2026-01-02"
//
// Builds made with `go install` carry no flags; Get then falls back to the
// module version and VCS settings recorded by the toolchain.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

const unset = "unknown"

// Stamped at link time.
var (
	Version   = "dev"
	Commit    = unset
	BuildDate = unset
)

// Info describes a build.
type Info struct {
	Version   string
	Commit    string
	BuildDate string
	GoVersion string
	Platform  string
}

// Get returns the build information of the running binary.
func Get() Info {
	info := Info{
		Version:   Version,
		Commit:    Commit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = info.withBuildInfo(bi)
	}
	return info
}

// withBuildInfo fills fields the linker left unset.
func (i Info) withBuildInfo(bi *debug.BuildInfo) Info {
	if i.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.Commit == unset {
				i.Commit = s.Value
				if len(i.Commit) > 12 {
					i.Commit = i.Commit[:12]
				}
			}
		case "vcs.time":
			if i.BuildDate == unset {
				i.BuildDate = s.Value
			}
		}
	}
	return i
}

func (i Info) String() string {
	return i.Version
}

// Full renders every field on one line.
func (i Info) Full() string {
	return fmt.Sprintf("%s (commit %s, built %s, %s %s)", i.Version, i.Commit, i.BuildDate, i.GoVersion, i.Platform)
}
