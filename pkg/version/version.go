// Package version carries the build identification of upllctl.
package version

// Version, GitCommit, and BuildDate are set at build time via ldflags:
//
//	go build -ldflags "-X github.com/newtron-network/upll/pkg/version.Version=v1.0.0 \
//	  -X github.com/newtron-network/upll/pkg/version.GitCommit=abc1234 \
//	  -X github.com/newtron-network/upll/pkg/version.BuildDate=2026-01-01T00:00:00Z" ./cmd/upllctl
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info returns a formatted version string for display.
func Info() string {
	return "upllctl " + Version + " (" + GitCommit + ") built " + BuildDate
}
