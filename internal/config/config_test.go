package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	c, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, c.StoreDriver)
	assert.Equal(t, "8080", c.Port)
	assert.Equal(t, int64(5<<20), c.MaxMediaBytes)
	assert.Equal(t, 30*time.Second, c.UpstreamTimeout)
	assert.Equal(t, time.UTC, c.QuotaTimezone)
	assert.Equal(t, slog.LevelInfo, c.LogLevel)
	assert.Equal(t, []string{"http://localhost:3000"}, c.CORSOrigins)
	assert.Empty(t, c.AdminAccountIDs)
	assert.Equal(t, "0.0.0.0:8080", c.Addr())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/relay.db")
	t.Setenv("ADMIN_ACCOUNT_IDS", " 100, 200 ,,")
	t.Setenv("MAX_MEDIA_BYTES", "1024")
	t.Setenv("UPSTREAM_TIMEOUT", "5s")
	t.Setenv("QUOTA_TIMEZONE", "Europe/Berlin")
	t.Setenv("LOG_LEVEL", "debug")

	c, err := Load(New())
	require.NoError(t, err)

	assert.Equal(t, DriverSQLite, c.StoreDriver)
	assert.Equal(t, "/tmp/relay.db", c.SQLitePath)
	assert.Equal(t, []string{"100", "200"}, c.AdminAccountIDs)
	assert.Equal(t, int64(1024), c.MaxMediaBytes)
	assert.Equal(t, 5*time.Second, c.UpstreamTimeout)
	assert.Equal(t, "Europe/Berlin", c.QuotaTimezone.String())
	assert.Equal(t, slog.LevelDebug, c.LogLevel)
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name string
		key  string
		val  string
	}{
		{"unknown driver", "STORE_DRIVER", "mysql"},
		{"zero media size", "MAX_MEDIA_BYTES", "0"},
		{"negative rps", "UPSTREAM_RPS", "-1"},
		{"bad timezone", "QUOTA_TIMEZONE", "Mars/Olympus"},
		{"bad log level", "LOG_LEVEL", "loud"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(tc.key, tc.val)
			_, err := Load(New())
			assert.Error(t, err)
		})
	}
}

func TestRequire(t *testing.T) {
	c, err := Load(New())
	require.NoError(t, err)

	assert.Error(t, c.RequireServe())
	assert.Error(t, c.RequireAdmin())

	c.GeminiAPIKey = "key"
	c.AdminJWTSecret = "secret"
	c.AdminAccountIDs = []string{"1"}
	assert.NoError(t, c.RequireServe())
	assert.NoError(t, c.RequireAdmin())
}
