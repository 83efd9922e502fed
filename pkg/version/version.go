package version

import (
	"fmt"
	"runtime"
)

// Injected at build time via ldflags, e.g.
// -X cadence/pkg/version.Version=v0.3.1 -X cadence/pkg/version.GitCommit=$(git rev-parse HEAD)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
	}
}

// GetShortCommit returns the short git commit hash (first 7 characters)
func GetShortCommit() string {
	if len(GitCommit) >= 7 {
		return GitCommit[:7]
	}
	return GitCommit
}

// String renders the one-line form printed by `cadence version`.
func (i Info) String() string {
	commit := i.GitCommit
	if len(commit) > 7 {
		commit = commit[:7]
	}
	return fmt.Sprintf("cadence %s (commit %s, built %s, %s)", i.Version, commit, i.BuildDate, i.GoVersion)
}
