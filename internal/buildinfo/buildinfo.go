// Package buildinfo reports which agent build is running.
package buildinfo

import "time"

// Set via -ldflags "-X github.com/xelth-com/claimsync/internal/buildinfo.Version=..."
var (
	Version    = "dev"
	CommitHash string
	BuildTime  string
)

var startedAt = time.Now().UTC()

// Info is included in the health response so support can match device logs
// to a build
type Info struct {
	Version    string    `json:"version"`
	CommitHash string    `json:"commit,omitempty"`
	BuildTime  string    `json:"buildTime,omitempty"`
	StartedAt  time.Time `json:"startedAt"`
	Uptime     string    `json:"uptime"`
}

// Current returns the running build
func Current() Info {
	return Info{
		Version:    Version,
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		StartedAt:  startedAt,
		Uptime:     time.Since(startedAt).Round(time.Second).String(),
	}
}
