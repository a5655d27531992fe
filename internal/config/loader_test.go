package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("LoadDefaults", func(t *testing.T) {
		cfg, err := Load(ctx)
		require.NoError(t, err)
		require.NotNil(t, cfg)

		assert.Equal(t, 4, cfg.Workers)
		assert.Equal(t, 60, cfg.CommandTimeoutSeconds)
		assert.Equal(t, 5, cfg.MaxRecursionDepth)
		assert.Equal(t, os.TempDir(), cfg.TempDir)
		assert.Equal(t, []string{"eng"}, cfg.OCRLanguages)
		assert.Equal(t, 100, cfg.OCRMinText)
		assert.Equal(t, 8, cfg.OCRMaxImages)
		assert.False(t, cfg.OCRDisabled)
		assert.False(t, cfg.AudioDisabled)
		assert.False(t, cfg.DedupeEnabled)
		assert.Equal(t, "md5", cfg.DedupeHash)
		assert.Equal(t, 64*1024, cfg.CSVBufferBytes)
		assert.Equal(t, SessionBackendSQLite, cfg.SessionBackend)
		assert.Equal(t, "info", cfg.LogLevel)

		assert.Equal(t, 500, cfg.Index.BatchSize)
		assert.Equal(t, "localhost", cfg.Server.Host)
		assert.Equal(t, 8080, cfg.Server.Port)
		assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
		assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
		assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)
		assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	})

	t.Run("RuntimeOverrides", func(t *testing.T) {
		overrides := map[string]any{
			"default-thread-count": 16,
			"server": map[string]any{
				"port": 9000,
				"host": "0.0.0.0",
			},
			"log-level": "debug",
		}

		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		assert.Equal(t, 16, cfg.Workers)
		assert.Equal(t, "0.0.0.0", cfg.Server.Host)
		assert.Equal(t, 9000, cfg.Server.Port)
		assert.Equal(t, "debug", cfg.LogLevel)

		// Non-overridden values remain default.
		assert.Equal(t, "md5", cfg.DedupeHash)
		assert.Equal(t, 500, cfg.Index.BatchSize)
	})

	t.Run("EnvOverrides", func(t *testing.T) {
		t.Setenv("GOTRAWL_DEFAULT_THREAD_COUNT", "12")
		t.Setenv("GOTRAWL_LOG_LEVEL", "warn")
		t.Setenv("GOTRAWL_OCR_LANGUAGES", "eng,rus")
		t.Setenv("GOTRAWL_SERVER_PORT", "3000")

		cfg, err := Load(ctx)
		require.NoError(t, err)

		assert.Equal(t, 12, cfg.Workers)
		assert.Equal(t, "warn", cfg.LogLevel)
		assert.Equal(t, []string{"eng", "rus"}, cfg.OCRLanguages)
		assert.Equal(t, 3000, cfg.Server.Port)
	})

	t.Run("ConfigPrecedence", func(t *testing.T) {
		t.Setenv("GOTRAWL_SERVER_PORT", "4000")

		overrides := map[string]any{
			"server": map[string]any{"port": 5000},
		}
		cfg, err := Load(ctx, overrides)
		require.NoError(t, err)

		// Runtime override wins over env.
		assert.Equal(t, 5000, cfg.Server.Port)
	})

	t.Run("ConfigFile", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "gotrawl.yaml")
		body := "default-thread-count: 2\nexclude-dirs:\n  - node_modules\n  - .git\nserver:\n  port: 7070\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		SetConfigFile(path)
		defer SetConfigFile("")

		cfg, err := Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, cfg.Workers)
		assert.Equal(t, []string{"node_modules", ".git"}, cfg.ExcludeDirs)
		assert.Equal(t, 7070, cfg.Server.Port)
	})

	t.Run("InvalidValuesRejected", func(t *testing.T) {
		_, err := Load(ctx, map[string]any{"dedupe-hash": "crc32"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dedupe-hash")

		_, err = Load(ctx, map[string]any{"session-backend": "redis"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "session-backend")

		_, err = Load(ctx, map[string]any{"default-thread-count": 0})
		require.Error(t, err)
	})
}

func TestGetConfig(t *testing.T) {
	ctx := context.Background()

	cfg, err := Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, cfg)

	retrieved := GetConfig()
	require.NotNil(t, retrieved)
	assert.Equal(t, cfg.Workers, retrieved.Workers)
	assert.Equal(t, cfg.Server.Port, retrieved.Server.Port)
}

func TestConfigReload(t *testing.T) {
	ctx := context.Background()

	cfg1, err := Load(ctx)
	require.NoError(t, err)
	initialPort := cfg1.Server.Port

	cfg2, err := Load(ctx, map[string]any{
		"server": map[string]any{"port": initialPort + 1000},
	})
	require.NoError(t, err)
	assert.Equal(t, initialPort+1000, cfg2.Server.Port)

	current := GetConfig()
	assert.Equal(t, cfg2.Server.Port, current.Server.Port)
}

func TestDurationParsing(t *testing.T) {
	ctx := context.Background()

	t.Setenv("GOTRAWL_SERVER_READ_TIMEOUT", "45s")
	t.Setenv("GOTRAWL_SERVER_SHUTDOWN_TIMEOUT", "5m")

	cfg, err := Load(ctx)
	require.NoError(t, err)

	assert.Equal(t, 45*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Server.ShutdownTimeout)
}

func TestLoadSecrets(t *testing.T) {
	dir := t.TempDir()

	t.Run("StrictPermissionsAccepted", func(t *testing.T) {
		path := filepath.Join(dir, "secrets.yaml")
		body := "http-basic-user: audit\nhttp-basic-password: hunter2\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

		s, err := LoadSecrets(path)
		require.NoError(t, err)
		assert.Equal(t, "audit", s.HTTPBasicUser)
		assert.Equal(t, "hunter2", s.HTTPBasicPassword)
	})

	t.Run("LoosePermissionsRejected", func(t *testing.T) {
		path := filepath.Join(dir, "loose.yaml")
		require.NoError(t, os.WriteFile(path, []byte("http-basic-user: x\n"), 0o644))

		_, err := LoadSecrets(path)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrSecretsPermissions)
	})

	t.Run("MissingFile", func(t *testing.T) {
		_, err := LoadSecrets(filepath.Join(dir, "absent.yaml"))
		require.Error(t, err)
	})
}
