package buildinfo

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v0.3.0"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "abc1234"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
		},
	}
	defaults := Info{Version: "dev", Commit: "none", Date: "unknown"}

	tests := []struct {
		name string
		info Info
		bi   *debug.BuildInfo
		want Info
	}{
		{"no build info", defaults, nil, defaults},
		{"filled from module", defaults, bi, Info{Version: "v0.3.0", Commit: "abc1234", Date: "2026-01-02T03:04:05Z"}},
		{"ldflags win", Info{Version: "v1.0.0", Commit: "fff", Date: "today"}, bi, Info{Version: "v1.0.0", Commit: "fff", Date: "today"}},
		{"devel module keeps dev", defaults, &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}, defaults},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolve(tt.info, tt.bi))
		})
	}
}

func TestString(t *testing.T) {
	s := String()
	assert.Contains(t, s, "version: ")
	assert.Contains(t, s, "commit: ")
}
