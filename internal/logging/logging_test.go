package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupLevelFallback(t *testing.T) {
	var buf bytes.Buffer
	closer := Setup(Options{Level: "loud", Console: &buf})
	defer closer.Close()

	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
	log.Debug().Msg("hidden")
	log.Info().Str("component", "test").Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestSetupWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voice.log")
	var buf bytes.Buffer
	closer := Setup(Options{Level: "debug", File: path, Console: &buf})

	log.Debug().Str("guild", "g1").Msg("to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"guild":"g1"`)
	assert.Contains(t, string(data), "to file")

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}
