// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"strings"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origInfo    *Info
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origInfo = info

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	info = origInfo

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
		want        Info
	}{
		{
			name:        "Missing BuildName",
			buildTime:   "2026-10-16",
			buildCommit: "abcdef123",
			buildVer:    "v1.0.0",
			wantErrMsg:  "BuildName is required",
		},
		{
			name:        "Missing BuildTime",
			buildName:   "bivo",
			buildCommit: "abcdef123",
			buildVer:    "v1.0.0",
			wantErrMsg:  "BuildTime is required",
		},
		{
			name:       "Missing BuildCommit",
			buildName:  "bivo",
			buildTime:  "2026-10-16",
			buildVer:   "v1.0.0",
			wantErrMsg: "BuildCommit is required",
		},
		{
			name:        "Missing BuildVersion",
			buildName:   "bivo",
			buildTime:   "2026-10-16",
			buildCommit: "abcdef123",
			wantErrMsg:  "BuildVersion is required",
		},
		{
			name: "Development Build",
			want: Info{Name: "bivo", Description: description, Time: "unknown", Commit: "unknown", Version: "dev"},
		},
		{
			name:        "Release Build",
			buildName:   "bivo",
			buildTime:   "2026-10-16",
			buildCommit: "abcdef123",
			buildVer:    "v1.0.0",
			want:        Info{Name: "bivo", Description: description, Time: "2026-10-16", Commit: "abcdef123", Version: "v1.0.0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()
			if tt.wantErrMsg != "" {
				if err == nil || err.Error() != tt.wantErrMsg {
					t.Errorf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				return
			}
			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			if got := GetBuildInfo(); got != tt.want {
				t.Errorf("GetBuildInfo() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInfoString(t *testing.T) {
	i := Info{Version: "v1.0.0", Commit: "abc", Time: "today"}
	if s := i.String(); !strings.Contains(s, "v1.0.0") || !strings.Contains(s, "abc") {
		t.Errorf("String() = %q", s)
	}
}
