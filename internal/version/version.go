package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
)

var (
	// Version is the semantic version of the build. It can be overridden via ldflags.
	Version = "dev"
	// Commit is the short git SHA embedded at build time.
	Commit = ""
	// BuildTime is the UTC build timestamp embedded at build time.
	BuildTime = ""
)

// shortCommit is the length of an abbreviated git SHA.
const shortCommit = 7

// Info is the resolved build metadata.
type Info struct {
	Version   string
	Commit    string
	BuildTime string
	Modified  bool
	GoVersion string
}

//nolint:gochecknoglobals // Build info never changes during a run.
var resolve = sync.OnceValue(func() Info {
	return fromBuildInfo(Info{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}, debug.ReadBuildInfo)
})

// fromBuildInfo fills fields left empty by ldflags from the VCS settings.
func fromBuildInfo(info Info, read func() (*debug.BuildInfo, bool)) Info {
	bi, ok := read()
	if !ok {
		return withPlaceholders(info)
	}

	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "" {
				info.Commit = s.Value
			}
		case "vcs.time":
			if info.BuildTime == "" {
				info.BuildTime = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}

	if info.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		info.Version = bi.Main.Version
	}

	return withPlaceholders(info)
}

func withPlaceholders(info Info) Info {
	if len(info.Commit) > shortCommit {
		info.Commit = info.Commit[:shortCommit]
	}

	if info.Commit == "" {
		info.Commit = "none"
	}

	if info.BuildTime == "" {
		info.BuildTime = "unknown"
	}

	return info
}

// Resolve returns the build metadata.
func Resolve() Info {
	return resolve()
}

// Short returns only the semantic version string.
func Short() string {
	return Resolve().Version
}

// Full returns a human-readable version string with commit and build time.
func Full() string {
	return Resolve().String()
}

func (i Info) String() string {
	commit := i.Commit
	if i.Modified {
		commit += "-dirty"
	}

	return fmt.Sprintf("version: %s, commit: %s, built at: %s, %s", i.Version, commit, i.BuildTime, i.GoVersion)
}
