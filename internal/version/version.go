// Package version reports the build identity of cmxbatch.
package version

import (
	_ "embed"
	"fmt"
	"runtime/debug"
	"strings"
)

//go:embed VERSION
var versionFile string

// Set at build time:
//
//	go build -ldflags "-X github.com/leefowlercu/cmxbatch/internal/version.gitCommit=$(git rev-parse --short HEAD) \
//	  -X github.com/leefowlercu/cmxbatch/internal/version.buildDate=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	gitCommit string
	buildDate string
)

const unknown = "unknown"

// Info identifies a build.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	GitCommit string `json:"git_commit" yaml:"git_commit"`
	BuildDate string `json:"build_date" yaml:"build_date"`
}

// String formats Info for the version command.
func (i Info) String() string {
	return fmt.Sprintf("Version:    %s\nGit Commit: %s\nBuild Date: %s",
		i.Version, i.GitCommit, i.BuildDate)
}

// UserAgent is sent with every document-store request.
func (i Info) UserAgent() string {
	if i.GitCommit == "" || i.GitCommit == unknown {
		return "cmxbatch/" + i.Version
	}
	return fmt.Sprintf("cmxbatch/%s (%s)", i.Version, i.GitCommit)
}

// Get returns the identity of the running binary.
func Get() Info {
	return Info{
		Version:   strings.TrimSpace(versionFile),
		GitCommit: commit(),
		BuildDate: orUnknown(buildDate),
	}
}

// commit prefers the linker value, then the VCS stamp of go build.
func commit() string {
	if gitCommit != "" {
		return gitCommit
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return unknown
	}
	return vcsCommit(info.Settings)
}

func vcsCommit(settings []debug.BuildSetting) string {
	var revision string
	var dirty bool
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	if revision == "" {
		return unknown
	}
	if len(revision) > 7 {
		revision = revision[:7]
	}
	if dirty {
		revision += "-dirty"
	}
	return revision
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
