package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewErrorResponse(t *testing.T) {
	resp := NewErrorResponse("Rate limit exceeded", ErrorCodeRateLimitExceeded)

	assert.Equal(t, "error", resp.Error)
	assert.Equal(t, "Rate limit exceeded", resp.Message)
	assert.Equal(t, ErrorCodeRateLimitExceeded, resp.Code)
	assert.WithinDuration(t, time.Now(), resp.Timestamp, time.Second)
}

func TestHealthCheckResponse_Components(t *testing.T) {
	resp := NewHealthCheckResponse(StatusHealthy)
	resp.AddComponent("rate_limiter", StatusHealthy, "Rate limiter is operational")
	resp.AddMetric("rate_limiter_keys", 3)

	require.Contains(t, resp.Components, "rate_limiter")
	assert.Equal(t, StatusHealthy, resp.Components["rate_limiter"].Status)
	assert.Equal(t, 3, resp.Metrics["rate_limiter_keys"])
}

func TestChatResponse_JSONOmitsEmptyFields(t *testing.T) {
	data, err := json.Marshal(ChatResponse{Reply: "hi", Model: "gemini-1.5-flash"})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "hi", raw["reply"])
	assert.NotContains(t, raw, "usage")
	assert.NotContains(t, raw, "rate_limit")
	assert.NotContains(t, raw, "finish_reason")
}
