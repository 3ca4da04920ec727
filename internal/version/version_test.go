package version

import (
	"runtime/debug"
	"testing"
)

func TestIsDevelopmentVersion(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"", true},
		{"unknown", true},
		{"dev", true},
		{"devel", true},
		{"devel+abc123", true},
		{"devel+abc+dirty", true},

		{"v0.1.0", false},
		{"1.0.0-beta", false},
		{"v2.5.3", false},

		// partial matches are releases
		{"develop", false},
		{"my-devel", false},
		{"DEV", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsDevelopmentVersion(tt.input); got != tt.expected {
				t.Errorf("IsDevelopmentVersion(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestResolveKeepsInjectedVersion(t *testing.T) {
	if got := Resolve("v1.4.0"); got != "v1.4.0" {
		t.Errorf("Resolve = %q", got)
	}
}

func TestFromBuildInfo(t *testing.T) {
	tests := []struct {
		name string
		info debug.BuildInfo
		want string
	}{
		{
			name: "module version",
			info: debug.BuildInfo{Main: debug.Module{Version: "v0.3.1"}},
			want: "v0.3.1",
		},
		{
			name: "clean checkout",
			info: debug.BuildInfo{
				Main:     debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "0123456789abcdef"}},
			},
			want: "devel+0123456789ab",
		},
		{
			name: "dirty checkout",
			info: debug.BuildInfo{
				Main: debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "abc123"},
					{Key: "vcs.modified", Value: "true"},
				},
			},
			want: "devel+abc123+dirty",
		},
		{
			name: "no vcs info",
			info: debug.BuildInfo{Main: debug.Module{Version: "(devel)"}},
			want: "dev",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := fromBuildInfo("dev", &tt.info); got != tt.want {
				t.Errorf("fromBuildInfo = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserAgent(t *testing.T) {
	if got := UserAgent("v1.0.0"); got != "fieldops/v1.0.0" {
		t.Errorf("UserAgent = %q", got)
	}
	if got := UserAgent(""); got != "fieldops/dev" {
		t.Errorf("UserAgent(empty) = %q", got)
	}
}
