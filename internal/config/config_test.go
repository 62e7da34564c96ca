package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"ADDR", "APP_ENV", "LOG_LEVEL", "DATABASE_URL",
	"ROOM_INBOX_SIZE", "SUBSCRIBER_BUFFER", "ARCHIVE_BUFFER",
	"WS_WRITE_TIMEOUT_MS", "WS_PING_SECONDS",
	"DB_MAX_OPEN_CONNS", "DB_MAX_IDLE_CONNS", "DB_CONN_MAX_LIFETIME_SECONDS",
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	cfg := Load()
	assert.Equal(t, Default(), cfg)
	assert.False(t, cfg.Production())
	assert.Equal(t, 3*time.Second, cfg.WSWriteTimeout())
}

func TestLoadOverrides(t *testing.T) {
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
	t.Setenv("ADDR", ":9999")
	t.Setenv("APP_ENV", "production")
	t.Setenv("ROOM_INBOX_SIZE", "128")
	t.Setenv("SUBSCRIBER_BUFFER", "-4")
	t.Setenv("WS_WRITE_TIMEOUT_MS", "abc")
	t.Setenv("WS_PING_SECONDS", "15")

	cfg := Load()
	assert.Equal(t, ":9999", cfg.Addr)
	assert.True(t, cfg.Production())
	assert.Equal(t, 128, cfg.RoomInboxSize)
	assert.Equal(t, Default().SubscriberBuffer, cfg.SubscriberBuffer)
	assert.Equal(t, Default().WSWriteTimeoutMillis, cfg.WSWriteTimeoutMillis)
	assert.Equal(t, 15*time.Second, cfg.WSPingInterval())
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MATCH_CONTROL_TEST_KEY=from-file\n"), 0o600))
	t.Setenv("MATCH_CONTROL_TEST_KEY", "")
	os.Unsetenv("MATCH_CONTROL_TEST_KEY")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "from-file", os.Getenv("MATCH_CONTROL_TEST_KEY"))
}
