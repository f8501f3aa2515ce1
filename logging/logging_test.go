package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, parseLevel(" warn "))
	assert.Equal(t, zerolog.InfoLevel, parseLevel("chatty"))
	assert.Equal(t, zerolog.InfoLevel, parseLevel(""))
}

func TestSetupWithWriter_JSON(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var buf bytes.Buffer
	SetupWithWriter("info", "json", &buf)

	log.Debug().Msg("hidden")
	log.Info().Str("session_id", "s-1").Msg("recorded")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"session_id":"s-1"`)
	assert.Contains(t, out, `"message":"recorded"`)
}
