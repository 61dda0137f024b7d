package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Version can be set at build time:
// go build -ldflags "-X github.com/vsariola/kappale/version.Version=$(git describe --dirty)" ./cmd/kappale
var Version string

// Hash is the short VCS revision the binary was built from, with a -dirty
// suffix for modified trees, or empty if unknown.
var Hash = func() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	return hashOf(info.Settings)
}()

var VersionOrHash = func() string {
	if Version != "" {
		return Version
	}
	if Hash != "" {
		return Hash
	}
	return "devel"
}()

func hashOf(settings []debug.BuildSetting) string {
	var revision string
	modified := false
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision == "" {
		return ""
	}
	revision = revision[:min(len(revision), 7)]
	if modified {
		return revision + "-dirty"
	}
	return revision
}

// Info describes the build in one line.
func Info() string {
	return fmt.Sprintf("kappale %s (%s, %s/%s)", VersionOrHash, runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
