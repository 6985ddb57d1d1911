package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DB_TYPE", "memory")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, DBTypeMemory, cfg.Database.Type)
	assert.Equal(t, 2000, cfg.Inbox.MaxContentLength)
	assert.Equal(t, HideResurrectIncoming, cfg.Inbox.HideResurrection)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	t.Setenv("DB_TYPE", "memory")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("PORT", "9090")
	t.Setenv("INBOX_HIDE_RESURRECTION", "any")
	t.Setenv("INBOX_MAX_CONTENT_LENGTH", "500")
	t.Setenv("REQUEST_TIMEOUT", "2s")
	t.Setenv("ALLOWED_ORIGINS", "https://clubs.example, https://athletes.example")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, HideResurrectAny, cfg.Inbox.HideResurrection)
	assert.Equal(t, 500, cfg.Inbox.MaxContentLength)
	assert.Equal(t, 2*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, []string{"https://clubs.example", "https://athletes.example"}, cfg.AllowedOrigins)
}

func TestLoadConfigFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "secret")
	path := filepath.Join(t.TempDir(), "inbox.yaml")
	content := []byte("database:\n  type: memory\ninbox:\n  hide_resurrection: never\n  max_content_length: 140\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, DBTypeMemory, cfg.Database.Type)
	assert.Equal(t, HideResurrectNever, cfg.Inbox.HideResurrection)
	assert.Equal(t, 140, cfg.Inbox.MaxContentLength)
}

func TestLoadConfigBuildsPostgresURI(t *testing.T) {
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_USER", "inbox")
	t.Setenv("DB_PASSWORD", "pw")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_NAME", "recruit")
	t.Setenv("DB_SSL_MODE", "disable")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, "postgresql://inbox:pw@db.internal:5432/recruit?sslmode=disable", cfg.Database.URI)
}

func TestLoadConfigRejectsInvalidSettings(t *testing.T) {
	t.Run("missing postgres credentials", func(t *testing.T) {
		t.Setenv("DB_TYPE", "postgres")
		t.Setenv("JWT_SECRET", "secret")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})

	t.Run("unknown hide policy", func(t *testing.T) {
		t.Setenv("DB_TYPE", "memory")
		t.Setenv("JWT_SECRET", "secret")
		t.Setenv("INBOX_HIDE_RESURRECTION", "sometimes")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})

	t.Run("missing jwt secret", func(t *testing.T) {
		t.Setenv("DB_TYPE", "memory")
		_, err := LoadConfig("")
		assert.Error(t, err)
	})
}

func TestDebugFallsBackToDevelopmentSecret(t *testing.T) {
	t.Setenv("DB_TYPE", "memory")
	t.Setenv("DEBUG", "true")

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.True(t, cfg.Debug)
	assert.Equal(t, devJWTSecret, cfg.Auth.JWTSecret)
}

func TestGetSSLModeFromURI(t *testing.T) {
	assert.Equal(t, "disable", getSSLModeFromURI("postgres://u:p@h/db?sslmode=disable"))
	assert.Equal(t, "verify-full", getSSLModeFromURI("postgres://u:p@h/db?connect_timeout=5&sslmode=verify-full"))
	assert.Equal(t, "require", getSSLModeFromURI("postgres://u:p@h/db"))
}
