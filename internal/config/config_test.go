package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadAppliesDefaults(t *testing.T) {
	cfg, err := Read(strings.NewReader(`jwt_secret = "test-secret-at-least-16ch"`))
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultDBPath, cfg.DBPath)
	assert.Equal(t, DefaultUploadRoot, cfg.UploadRoot)
	assert.Equal(t, DefaultTokenTTL, time.Duration(cfg.TokenTTL))
}

func TestReadParsesDurations(t *testing.T) {
	cfg, err := Read(strings.NewReader(`
jwt_secret = "test-secret-at-least-16ch"
token_ttl = "2h30m"
port = 9000
`))
	require.NoError(t, err)

	assert.Equal(t, 2*time.Hour+30*time.Minute, time.Duration(cfg.TokenTTL))
	assert.Equal(t, 9000, cfg.Port)
}

func TestValidateRejectsShortSecret(t *testing.T) {
	cfg := Default()
	cfg.JWTSecret = "short"
	assert.Error(t, cfg.Validate())
}

func TestValidateBoundsTokenTTL(t *testing.T) {
	cfg := Default()
	cfg.JWTSecret = "test-secret-at-least-16ch"

	cfg.TokenTTL = Duration(30 * time.Minute)
	assert.Error(t, cfg.Validate(), "sub-hour TTL should be rejected")

	cfg.TokenTTL = Duration(48 * time.Hour)
	assert.Error(t, cfg.Validate(), "multi-day TTL should be rejected")

	cfg.TokenTTL = Duration(24 * time.Hour)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsUnknownLogLevel(t *testing.T) {
	cfg := Default()
	cfg.JWTSecret = "test-secret-at-least-16ch"
	cfg.LogLevel = "verbose"
	assert.Error(t, cfg.Validate())
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("CODECLASS_PORT", "9999")
	t.Setenv("CODECLASS_JWT_SECRET", "env-secret-at-least-16ch")
	t.Setenv("CODECLASS_TOKEN_TTL", "3h")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Port)
	assert.Equal(t, "env-secret-at-least-16ch", cfg.JWTSecret)
	assert.Equal(t, 3*time.Hour, time.Duration(cfg.TokenTTL))
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load("does/not/exist.toml")
	assert.Error(t, err)
}
