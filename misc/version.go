// Package misc keeps build time information.
package misc

// Values below are set at link time with -ldflags "-X esplit/misc.version=..."
var (
	appName = "esplit"
	version = "dev"
	gitHash = "unknown"
)

func GetAppName() string {
	return appName
}

func GetVersion() string {
	return version
}

func GetGitHash() string {
	return gitHash
}
