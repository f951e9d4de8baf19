package notify

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"fetchd/internal/config"
	"fetchd/internal/jobs"
)

func TestFromConfig_Disabled(t *testing.T) {
	p, err := FromConfig(config.Default())
	require.NoError(t, err)
	require.Nil(t, p)
}

func TestNewRedisPublisher_BadURL(t *testing.T) {
	_, err := NewRedisPublisher("not a url", "")
	require.Error(t, err)
}

func TestNewRedisPublisher_DefaultChannel(t *testing.T) {
	p, err := NewRedisPublisher("redis://localhost:6379/0", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	require.Equal(t, config.DefaultRedisChannel, p.Channel())
}

func TestEncodeEvent(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	view := jobs.View{ID: "abc", URL: "https://example.com/v", State: jobs.StateDownloading, Progress: 0.5}

	b, err := encodeEvent(view, at)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	require.Equal(t, "job.downloading", decoded["type"])

	job, ok := decoded["job"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "abc", job["id"])
	require.Equal(t, "downloading", job["state"])
	require.InDelta(t, 0.5, job["progress"], 1e-9)
}
