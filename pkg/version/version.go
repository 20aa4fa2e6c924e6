// Package version reports the collarlink build. Release builds stamp it with
//
//	-ldflags "-X github.com/carverauto/collarlink/pkg/version.version=v1.2.0 -X github.com/carverauto/collarlink/pkg/version.buildID=$(git rev-parse --short HEAD)"
package version

import "fmt"

//nolint:gochecknoglobals // set via ldflags
var (
	version = "dev"
	buildID = "dev"
)

func GetVersion() string {
	return version
}

func GetBuildID() string {
	return buildID
}

// GetFullVersion returns the version with its build ID, e.g. "v1.2.0 (build: 3f2c1aa)".
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s)", version, buildID)
}

// UserAgent identifies a collarlink component in session handshakes.
func UserAgent(component string) string {
	return "collarlink-" + component + "/" + version
}
