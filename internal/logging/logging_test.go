package logging

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestSetup(t *testing.T) {
	defer zerolog.SetGlobalLevel(zerolog.InfoLevel)

	Setup("DEBUG")
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	Setup("warn")
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())

	Setup("loud")
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel())
}
