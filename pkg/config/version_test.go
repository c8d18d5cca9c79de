package config

import (
	"runtime"
	"strings"
	"testing"
)

func TestGetBuildInfo(t *testing.T) {
	oldVersion, oldCommit := Version, Commit
	t.Cleanup(func() { Version, Commit = oldVersion, oldCommit })

	Version = "v1.0.0"
	Commit = "deadbeef"

	info := GetBuildInfo()
	if info.Version != "v1.0.0" || info.Commit != "deadbeef" {
		t.Errorf("unexpected build info %+v", info)
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("expected go version %s, got %s", runtime.Version(), info.GoVersion)
	}
}

func TestVersionString(t *testing.T) {
	oldVersion := Version
	t.Cleanup(func() { Version = oldVersion })
	Version = "v2.3.4"

	if got := VersionString(); !strings.HasPrefix(got, "staleguard v2.3.4 ") {
		t.Errorf("unexpected version string %q", got)
	}
}
