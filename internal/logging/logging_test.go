package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelAndComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "warn", Console: &buf})
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())

	router := Component(log, "router")
	router.Info().Msg("hidden")
	assert.Empty(t, buf.String())

	router.Warn().Msg("shown")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "router")
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	log := New(Options{Level: "chatty", Console: &bytes.Buffer{}})
	assert.Equal(t, zerolog.InfoLevel, log.GetLevel())
}

func TestFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	log := New(Options{Level: "debug", File: path, Console: &bytes.Buffer{}})
	log.Info().Str("plugin", "core").Msg("loaded")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"plugin":"core"`)
}
