package version

import (
	"fmt"
	"regexp"
	"strings"
)

var version = "dev"

// String returns the build version for the current binary.
func String() string {
	return version
}

// ForTesting swaps the version and returns a restore func.
func ForTesting(v string) func() {
	original := version
	version = v
	return func() { version = original }
}

// gitDescribeSuffix matches the "-N-gHASH" tail added by git describe.
var gitDescribeSuffix = regexp.MustCompile(`-\d+-g[0-9a-f]+$`)

// normalizeVersion strips the "v" prefix and any git-describe suffix so that
// versions like "v0.3.0-5-gabcdef" and "0.3.0" compare as equal.
func normalizeVersion(v string) string {
	v = strings.TrimPrefix(v, "v")
	return gitDescribeSuffix.ReplaceAllString(v, "")
}

// FormatVersion adds a "v" prefix to release versions.
func FormatVersion(v string) string {
	if v == "" || v == "dev" {
		return v
	}
	if strings.HasPrefix(v, "v") {
		return v
	}
	return "v" + v
}

// CheckVersionMismatch returns a warning when the CLI and the daemon it talks
// to were built from different versions. Development builds never warn.
func CheckVersionMismatch(daemonVersion string) string {
	client := version
	if client == "" || daemonVersion == "" || client == "dev" || daemonVersion == "dev" {
		return ""
	}
	if normalizeVersion(client) == normalizeVersion(daemonVersion) {
		return ""
	}
	return fmt.Sprintf("warning: comfort %s is talking to comfortd %s; restart the daemon after upgrading",
		FormatVersion(client), FormatVersion(daemonVersion))
}
