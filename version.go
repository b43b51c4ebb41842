package classify

import "fmt"

// Version of the classify library
const Version = "0.4.0"

// Build information (set by ldflags during build)
var (
	GitCommit string
	BuildDate string
)

// VersionInfo returns formatted version information
func VersionInfo() string {
	if GitCommit == "" {
		return fmt.Sprintf("classify v%s", Version)
	}
	return fmt.Sprintf("classify v%s (commit: %s, built: %s)", Version, shortCommit(GitCommit), BuildDate)
}

// FullVersionInfo returns the version and build information.
func FullVersionInfo() VersionDetails {
	return VersionDetails{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
	}
}

// VersionDetails contains detailed version information
type VersionDetails struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit,omitempty" yaml:"git_commit,omitempty"`
	BuildDate string `json:"build_date,omitempty" yaml:"build_date,omitempty"`
}

func (v VersionDetails) String() string {
	if v.GitCommit == "" {
		return fmt.Sprintf("v%s", v.Version)
	}
	return fmt.Sprintf("v%s-%s (%s)", v.Version, shortCommit(v.GitCommit), v.BuildDate)
}

func shortCommit(c string) string {
	if len(c) > 7 {
		return c[:7]
	}
	return c
}
