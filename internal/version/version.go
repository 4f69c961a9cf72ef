// Package version exposes build metadata for the chatgate binary along with a
// per-process instance ID used to tell replicas apart in logs and traces.
package version

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
)

var (
	// Version is the release tag or short commit hash.
	// Set via: -ldflags "-X chatgate/internal/version.Version=..."
	Version = "dev"

	// BuildDate is the RFC3339 UTC timestamp of the build.
	// Set via: -ldflags "-X chatgate/internal/version.BuildDate=..."
	BuildDate = "unknown"

	// GitCommit is the full commit SHA the binary was built from.
	// Set via: -ldflags "-X chatgate/internal/version.GitCommit=..."
	GitCommit = "unknown"
)

// Info holds build metadata and process information.
type Info struct {
	Version    string    `json:"version"`
	GitCommit  string    `json:"git_commit"`
	BuildDate  string    `json:"build_date"`
	GoVersion  string    `json:"go_version"`
	InstanceID string    `json:"instance_id"`
	Hostname   string    `json:"hostname"`
	StartedAt  time.Time `json:"started_at"`
}

var (
	once sync.Once
	info Info
)

// GetInfo returns the process build info. The instance ID, hostname and start
// time are captured on the first call.
func GetInfo() Info {
	once.Do(func() {
		info = Info{
			Version:    Version,
			GitCommit:  GitCommit,
			BuildDate:  BuildDate,
			GoVersion:  runtime.Version(),
			InstanceID: uuid.NewString(),
			Hostname:   getHostname(),
			StartedAt:  time.Now().UTC(),
		}
	})
	return info
}

// Uptime reports how long the process has been running since GetInfo was first called.
func (i Info) Uptime() time.Duration {
	if i.StartedAt.IsZero() {
		return 0
	}
	return time.Since(i.StartedAt)
}

func getHostname() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "unknown"
	}
	return hostname
}

// String formats version info for -version output.
func (i Info) String() string {
	return fmt.Sprintf("chatgate %s (commit: %s, built: %s)", i.Version, i.GitCommit, i.BuildDate)
}
