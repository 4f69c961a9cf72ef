package version

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GitCommit)
	assert.NotEmpty(t, info.BuildDate)
	assert.NotEmpty(t, info.GoVersion)
	assert.NotEmpty(t, info.Hostname)
	assert.False(t, info.StartedAt.IsZero())

	_, err := uuid.Parse(info.InstanceID)
	require.NoError(t, err, "instance ID should be a UUID")

	again := GetInfo()
	assert.Equal(t, info.InstanceID, again.InstanceID, "instance ID should be cached")
	assert.Equal(t, info.StartedAt, again.StartedAt)
}

func TestInfoString(t *testing.T) {
	tests := []struct {
		name     string
		info     Info
		expected string
	}{
		{
			name:     "release build",
			info:     Info{Version: "v0.3.1", GitCommit: "abc1234", BuildDate: "2026-03-01T10:00:00Z"},
			expected: "chatgate v0.3.1 (commit: abc1234, built: 2026-03-01T10:00:00Z)",
		},
		{
			name:     "local build",
			info:     Info{Version: "dev", GitCommit: "unknown", BuildDate: "unknown"},
			expected: "chatgate dev (commit: unknown, built: unknown)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.info.String())
		})
	}
}

func TestInfoUptime(t *testing.T) {
	assert.Zero(t, Info{}.Uptime())

	info := Info{StartedAt: time.Now().Add(-time.Minute)}
	assert.GreaterOrEqual(t, info.Uptime(), time.Minute)
}

func TestGetHostname(t *testing.T) {
	assert.NotEmpty(t, getHostname())
}
