package version

import (
	"strings"
	"testing"
)

func TestString(t *testing.T) {
	origVersion, origCommit, origBuildTime := Version, Commit, BuildTime
	defer func() {
		Version, Commit, BuildTime = origVersion, origCommit, origBuildTime
	}()

	Version = "1.2.3"
	Commit = "abc1234"
	BuildTime = "2024-01-15T10:00:00Z"

	want := "chatctl 1.2.3 (abc1234) built 2024-01-15T10:00:00Z"
	if got := String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if got := UserAgent(); got != "marketplace-realtime/1.2.3" {
		t.Errorf("UserAgent() = %q", got)
	}
}

func TestDefaultValues(t *testing.T) {
	// ldflags may overwrite these in release builds
	if Version == "" || Commit == "" || BuildTime == "" {
		t.Errorf("empty build variable: %q %q %q", Version, Commit, BuildTime)
	}
	if !strings.Contains(String(), "built") {
		t.Errorf("String() = %q, should contain 'built'", String())
	}
}
