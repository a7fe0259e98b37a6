package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvAsDuration(t *testing.T) {
	t.Setenv("FIRECHAT_TEST_DURATION", "90s")
	assert.Equal(t, 90*time.Second, getEnvAsDuration("FIRECHAT_TEST_DURATION", time.Second))

	t.Setenv("FIRECHAT_TEST_DURATION", "15")
	assert.Equal(t, 15*time.Second, getEnvAsDuration("FIRECHAT_TEST_DURATION", time.Second))

	t.Setenv("FIRECHAT_TEST_DURATION", "soon")
	assert.Equal(t, time.Second, getEnvAsDuration("FIRECHAT_TEST_DURATION", time.Second))

	assert.Equal(t, time.Minute, getEnvAsDuration("FIRECHAT_TEST_UNSET", time.Minute))
}

func TestGetEnvAsBool(t *testing.T) {
	t.Setenv("FIRECHAT_TEST_BOOL", "true")
	assert.True(t, getEnvAsBool("FIRECHAT_TEST_BOOL", false))

	t.Setenv("FIRECHAT_TEST_BOOL", "nope")
	assert.False(t, getEnvAsBool("FIRECHAT_TEST_BOOL", false))
}

func TestLoadConfig_SQLite(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("BACKEND", "SQLite")
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LAST_SEEN_THROTTLE", "30s")

	LoadConfig()

	assert.Equal(t, BackendSQLite, AppConfig.Backend)
	assert.Equal(t, "9090", AppConfig.HTTPPort)
	assert.Equal(t, 30*time.Second, AppConfig.LastSeenThrottle)
	assert.Equal(t, 24*time.Hour, AppConfig.TokenTTL)
}
