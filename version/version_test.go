package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestString(t *testing.T) {
	info := Info{Version: "v0.3.0", Revision: "0123456789abcdef", BuildTime: "2026-10-15T09:00:00Z"}
	assert.Equal(t, "0123456789ab", info.Short())
	assert.Equal(t, "semstore v0.3.0 (0123456789ab, 2026-10-15T09:00:00Z)", info.String())

	info = Info{Version: "dev", Revision: "abc", Modified: true}
	assert.Equal(t, "semstore dev (abc-dirty)", info.String())
	assert.Equal(t, "unknown", Info{}.Short())
}

func TestWithBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/teranos/semstore", Version: "v0.4.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "fedcba9876543210"},
			{Key: "vcs.time", Value: "2026-10-01T12:00:00Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}

	info := Info{Version: "dev"}.withBuildInfo(bi)
	assert.Equal(t, "v0.4.1", info.Version)
	assert.Equal(t, "fedcba9876543210", info.Revision)
	assert.Equal(t, "2026-10-01T12:00:00Z", info.BuildTime)
	assert.True(t, info.Modified)

	stamped := Info{Version: "v1.0.0", Revision: "1111111"}.withBuildInfo(bi)
	assert.Equal(t, "v1.0.0", stamped.Version, "ldflags win over the module version")
	assert.Equal(t, "1111111", stamped.Revision)

	bi.Main.Version = "(devel)"
	assert.Equal(t, "dev", Info{Version: "dev"}.withBuildInfo(bi).Version)
}

func TestGet(t *testing.T) {
	info := Get()
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
	assert.NotEmpty(t, info.Version)
}
