package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("debug"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warn"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("verbose"))
}

func TestNewWithWriter_JSONOutsideDevelopment(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(Config{Env: "production", Level: "info"}, &buf)

	l.Debug().Msg("hidden")
	l.Info().Str("sku", "LAMP").Msg("visible")

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "visible", line["message"])
	assert.Equal(t, "LAMP", line["sku"])
}
