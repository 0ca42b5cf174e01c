// Package version reports what the semstore binary was built from.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strconv"
)

// Set with -ldflags "-X github.com/teranos/semstore/version.Version=..."
// by release builds. Local builds fall back to the VCS stamp Go embeds.
var (
	Version   = "dev"
	Revision  = ""
	BuildTime = ""
)

// Info describes the running binary
type Info struct {
	Version   string `json:"version"`
	Revision  string `json:"revision,omitempty"`
	Modified  bool   `json:"modified,omitempty"`
	BuildTime string `json:"build_time,omitempty"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// Get returns the build information of the running binary
func Get() Info {
	info := Info{
		Version:   Version,
		Revision:  Revision,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		info = info.withBuildInfo(bi)
	}
	return info
}

// withBuildInfo fills what ldflags left empty from the embedded VCS settings
func (i Info) withBuildInfo(bi *debug.BuildInfo) Info {
	if i.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		i.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if i.Revision == "" {
				i.Revision = s.Value
			}
		case "vcs.time":
			if i.BuildTime == "" {
				i.BuildTime = s.Value
			}
		case "vcs.modified":
			i.Modified, _ = strconv.ParseBool(s.Value)
		}
	}
	return i
}

// Short is the abbreviated revision, marked when the tree was dirty
func (i Info) Short() string {
	rev := i.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	if rev == "" {
		rev = "unknown"
	}
	if i.Modified {
		rev += "-dirty"
	}
	return rev
}

func (i Info) String() string {
	if i.BuildTime == "" {
		return fmt.Sprintf("semstore %s (%s)", i.Version, i.Short())
	}
	return fmt.Sprintf("semstore %s (%s, %s)", i.Version, i.Short(), i.BuildTime)
}
