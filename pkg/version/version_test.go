package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/matryer/is"
)

func TestGetVersionInfo(t *testing.T) {
	is := is.New(t)

	info := GetVersionInfo()
	is.True(strings.Contains(info, "voxa version"))
	is.True(strings.Contains(info, "dev"))
	is.True(strings.Contains(info, "unknown")) // commit and build time defaults
	is.True(strings.Contains(info, runtime.Version()))
}

func TestGetVersionInfoStamped(t *testing.T) {
	is := is.New(t)

	origVersion, origCommit, origBuild := Version, GitCommit, BuildTime
	defer func() {
		Version, GitCommit, BuildTime = origVersion, origCommit, origBuild
	}()

	Version = "v1.2.0"
	GitCommit = "abc123"
	BuildTime = "2026-01-01T00:00:00Z"

	info := GetVersionInfo()
	is.True(strings.Contains(info, "v1.2.0"))
	is.True(strings.Contains(info, "abc123"))
	is.True(strings.Contains(info, "2026-01-01T00:00:00Z"))
}
