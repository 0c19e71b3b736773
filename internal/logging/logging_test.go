package logging

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestComponentTagsAndChains(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	// Level methods must be callable directly on the returned logger.
	Component("billing").Error().Str("key", "k1").Msg("commit failed")

	out := buf.String()
	assert.Contains(t, out, `"component":"billing"`)
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, "commit failed")
}

func TestSetupFallsBackToInfoOnBadLevel(t *testing.T) {
	Setup("nonsense", false)
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())

	Setup("debug", false)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}
