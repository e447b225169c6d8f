// Package version reports the build identity of the seriescache binary.
package version

import (
	"fmt"
	"runtime/debug"
)

// Set via -ldflags "-X github.com/Sumatoshi-tech/seriescache/pkg/version.Version=...".
var (
	Version = "dev"
	Commit  = "<unknown>"
	Date    = ""
)

const revisionSetting = "vcs.revision"

// Info is the resolved build identity.
type Info struct {
	Version string `json:"version" yaml:"version"`
	Commit  string `json:"commit"  yaml:"commit"`
	Date    string `json:"date"    yaml:"date"`
}

// Get returns the build identity, filling an unset commit from the embedded
// VCS build settings.
func Get() Info {
	info := Info{Version: Version, Commit: Commit, Date: Date}

	if info.Commit != "<unknown>" {
		return info
	}

	build, ok := debug.ReadBuildInfo()
	if !ok {
		return info
	}

	for _, setting := range build.Settings {
		if setting.Key == revisionSetting {
			info.Commit = setting.Value
		}
	}

	return info
}

func (i Info) String() string {
	if i.Date == "" {
		return fmt.Sprintf("seriescache %s (%s)", i.Version, i.Commit)
	}

	return fmt.Sprintf("seriescache %s (%s, %s)", i.Version, i.Commit, i.Date)
}
