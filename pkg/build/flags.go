// SPDX-License-Identifier: MIT
//
// Package build carries the binary's identity: name, version, commit and
// build time, injected at link time, for example
//
//	go build -ldflags "-X bivo/pkg/build.buildName=bivo -X bivo/pkg/build.buildVersion=0.3.0 ..."
//
// A binary built without any of the flags is a development build and
// reports the defaults below.
package build

import (
	"errors"
	"fmt"
)

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the info for --version output.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}

const description = "BiVo acoustic sensor: captures audio segments and forwards likely bird calls to a host"

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var info = defaultInfo()

func defaultInfo() *Info {
	return &Info{
		Name:        "bivo",
		Description: description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the ldflags values into the build info. It accepts
// either all four flags or none; a partial set means a broken release
// build.
func Initialize() error {
	set := 0
	for _, v := range []string{buildName, buildTime, buildCommit, buildVersion} {
		if v != "" {
			set++
		}
	}
	if set == 0 {
		info = defaultInfo()
		return nil
	}

	switch {
	case buildName == "":
		return errors.New("BuildName is required")
	case buildTime == "":
		return errors.New("BuildTime is required")
	case buildCommit == "":
		return errors.New("BuildCommit is required")
	case buildVersion == "":
		return errors.New("BuildVersion is required")
	}

	info = &Info{
		Name:        buildName,
		Description: description,
		Time:        buildTime,
		Commit:      buildCommit,
		Version:     buildVersion,
	}
	return nil
}

// GetBuildInfo returns the current build information.
func GetBuildInfo() Info {
	return *info
}
