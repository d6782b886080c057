package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, "datastore.json", cfg.StoragePath)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 5*time.Second, cfg.JoinTimeout)
	assert.Equal(t, 5*time.Second, cfg.StateTimeout)
	assert.Equal(t, 30*time.Second, cfg.StreamTimeout)
	assert.Equal(t, 5*time.Second, cfg.ReconnectWindow)
	assert.Equal(t, 2, cfg.StreamAttempts)
	assert.Equal(t, 200, cfg.MaxQueueLength)
	assert.InDelta(t, 0.5, cfg.EnqueueRate, 1e-9)
	assert.Equal(t, 5, cfg.EnqueueBurst)
	assert.Equal(t, 100, cfg.DefaultVolume)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("STREAM_TIMEOUT", "10s")
	t.Setenv("MAX_QUEUE_LENGTH", "50")
	t.Setenv("PROXY_URL", "socks5://127.0.0.1:1080")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.StreamTimeout)
	assert.Equal(t, 50, cfg.MaxQueueLength)
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.ProxyURL)
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := Config{
		DiscordToken:    "token",
		JoinTimeout:     time.Second,
		StateTimeout:    time.Second,
		StreamTimeout:   time.Second,
		ReconnectWindow: time.Second,
		StreamAttempts:  1,
		MaxQueueLength:  1,
		EnqueueRate:     1,
		EnqueueBurst:    1,
		DefaultVolume:   50,
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"zero stream timeout", func(c *Config) { c.StreamTimeout = 0 }},
		{"no attempts", func(c *Config) { c.StreamAttempts = 0 }},
		{"empty queue", func(c *Config) { c.MaxQueueLength = 0 }},
		{"no rate", func(c *Config) { c.EnqueueRate = 0 }},
		{"volume too high", func(c *Config) { c.DefaultVolume = 101 }},
		{"bad proxy", func(c *Config) { c.ProxyURL = "not a url" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			assert.Error(t, c.Validate())
		})
	}
}
