// Package buildinfo provides build-time properties injected via ldflags:
//
//	go build -ldflags "-X github.com/nomis52/cloudops/buildinfo.version=v1.2.0 \
//		-X github.com/nomis52/cloudops/buildinfo.gitCommit=$(git rev-parse --short HEAD)"
package buildinfo

import "fmt"

// Properties holds build-time properties injected via ldflags.
type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

// String formats the properties for the version command.
func (p Properties) String() string {
	return fmt.Sprintf("cloudops %s (commit %s, built %s)", p.Version, p.GitCommit, p.BuildTime)
}

// LogAttrs returns the properties as slog key/value pairs.
func (p Properties) LogAttrs() []any {
	return []any{"version", p.Version, "build_time", p.BuildTime, "git_commit", p.GitCommit}
}

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// Get returns the current build properties.
func Get() Properties {
	return Properties{
		Version:   version,
		BuildTime: buildTime,
		GitCommit: gitCommit,
	}
}
