package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInfo_WithBuildInfo(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.4.1"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-03-01T10:00:00Z"},
		},
	}

	tests := []struct {
		name string
		in   Info
		want Info
	}{
		{
			name: "unstamped build takes module info",
			in:   Info{Version: "dev", Commit: unset, BuildDate: unset},
			want: Info{Version: "v0.4.1", Commit: "0123456789ab", BuildDate: "2026-03-01T10:00:00Z"},
		},
		{
			name: "linker flags win",
			in:   Info{Version: "v1.0.0", Commit: "abc1234", BuildDate: "2026-01-02"},
			want: Info{Version: "v1.0.0", Commit: "abc1234", BuildDate: "2026-01-02"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.withBuildInfo(bi))
		})
	}
}

func TestInfo_WithBuildInfo_DevelModule(t *testing.T) {
	in := Info{Version: "dev", Commit: unset, BuildDate: unset}
	got := in.withBuildInfo(&debug.BuildInfo{Main: debug.Module{Version: "(devel)"}})
	assert.Equal(t, in, got)
}

func TestInfo_Full(t *testing.T) {
	i := Info{Version: "v1.0.0", Commit: "abc1234", BuildDate: "2026-01-02", GoVersion: "go1.25.5", Platform: "linux/amd64"}
	assert.Equal(t, "v1.0.0 (commit abc1234, built 2026-01-02, go1.25.5 linux/amd64)", i.Full())
	assert.Equal(t, "v1.0.0", i.String())
}
