// Package buildinfo reports which backdrop build is running.
//
// Release builds stamp the variables below:
//
//	go build -ldflags "-X github.com/matzehuels/backdrop/pkg/buildinfo.Version=v0.4.0 \
//	    -X github.com/matzehuels/backdrop/pkg/buildinfo.Commit=$(git rev-parse HEAD) \
//	    -X github.com/matzehuels/backdrop/pkg/buildinfo.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)" ./cmd/backdrop
//
// Anything left unstamped is taken from the VCS data the Go toolchain embeds,
// so "go install" builds still report their module version and commit.
package buildinfo

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)

const unknown = "unknown"

// Info describes the running binary.
type Info struct {
	Version   string
	Commit    string
	Date      string
	GoVersion string
	// Modified is set when the working tree had uncommitted changes.
	Modified bool
}

var readBuildInfo = debug.ReadBuildInfo

// Get merges the ldflags stamp with the embedded build information.
func Get() Info {
	return merge(Version, Commit, Date, readBuildInfo)
}

func merge(version, commit, date string, read func() (*debug.BuildInfo, bool)) Info {
	info := Info{Version: version, Commit: commit, Date: date, GoVersion: runtime.Version()}
	if bi, ok := read(); ok && bi != nil {
		if bi.GoVersion != "" {
			info.GoVersion = bi.GoVersion
		}
		if info.Version == "" || info.Version == "dev" {
			if v := bi.Main.Version; v != "" && v != "(devel)" {
				info.Version = v
			}
		}
		for _, s := range bi.Settings {
			switch s.Key {
			case "vcs.revision":
				if info.Commit == "" {
					info.Commit = s.Value
				}
			case "vcs.time":
				if info.Date == "" {
					info.Date = s.Value
				}
			case "vcs.modified":
				info.Modified = s.Value == "true"
			}
		}
	}
	if info.Version == "" {
		info.Version = "dev"
	}
	if info.Commit == "" {
		info.Commit = unknown
	}
	if info.Date == "" {
		info.Date = unknown
	}
	return info
}

// ShortCommit is the commit cut to 12 characters, marked when dirty.
func (i Info) ShortCommit() string {
	c := i.Commit
	if len(c) > 12 && c != unknown {
		c = c[:12]
	}
	if i.Modified {
		c += "-dirty"
	}
	return c
}

// UserAgent identifies backdrop to Figma and background hosts.
func (i Info) UserAgent() string {
	return "backdrop/" + i.Version
}

func (i Info) String() string {
	return fmt.Sprintf("backdrop %s\ncommit: %s\nbuilt: %s\ngo: %s", i.Version, i.ShortCommit(), i.Date, i.GoVersion)
}

// String is the output of "backdrop version".
func String() string {
	return Get().String()
}

// Template is the cobra template behind "backdrop --version".
func Template() string {
	return String() + "\n"
}
