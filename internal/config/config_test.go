package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsWithEnvSecret(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_JWT_SECRET", "0123456789abcdef0123")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTTL)
	assert.Equal(t, 720*time.Hour, cfg.Auth.RefreshTTL)
	assert.Equal(t, []string{"RM"}, cfg.Progression.StarterProvinces)
	assert.Equal(t, 5, cfg.Progression.MaxLives)
	assert.Equal(t, 30*time.Minute, cfg.Progression.LifeRegenInterval)
	assert.Equal(t, "Europe/Rome", cfg.Timezone)
	assert.Equal(t, "0123456789abcdef0123", cfg.Auth.JWTSecret)
}

func TestLoad_MissingSecretFailsValidation(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_JWT_SECRET", "")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoad_FileAndEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	yaml := `
server:
  addr: ":9000"
database:
  host: db.internal
  pool_size: 7
progression:
  max_lives: 3
auth:
  jwt_secret: file-secret-0123456789
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o600))
	t.Setenv("DATABASE_HOST", "db.override")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "db.override", cfg.Database.Host)
	assert.Equal(t, 7, cfg.Database.PoolSize)
	assert.Equal(t, 3, cfg.Progression.MaxLives)
	assert.Equal(t, "file-secret-0123456789", cfg.Auth.JWTSecret)
}

func TestValidate_RejectsUnknownTimezone(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("AUTH_JWT_SECRET", "0123456789abcdef0123")
	t.Setenv("TIMEZONE", "Mars/Olympus")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timezone")
}

func TestDSN(t *testing.T) {
	d := DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", Name: "n"}
	assert.Equal(t, "postgres://u:p@h:5433/n?sslmode=disable", d.DSN())

	d.SSLMode = "require"
	assert.Equal(t, "postgres://u:p@h:5433/n?sslmode=require", d.DSN())
}

func TestIsAdmin(t *testing.T) {
	cfg := &Config{Admin: AdminConfig{IDs: []int64{10, 20}}}
	assert.True(t, cfg.IsAdmin(20))
	assert.False(t, cfg.IsAdmin(30))
}
