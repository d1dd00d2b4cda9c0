package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, StorageGorm, cfg.Storage)
	assert.Equal(t, "America/Los_Angeles", cfg.Schedule.TimeZone)
	assert.Equal(t, 3, cfg.Schedule.HorizonMonths)

	loc, err := cfg.Schedule.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/Los_Angeles", loc.String())
}

func TestLoadFileThenEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scope.toml")
	err := os.WriteFile(path, []byte(`
storage = "gorm"

[database]
driver = "sqlite"
sqlite_path = "/tmp/file.db"

[schedule]
time_zone = "America/New_York"
horizon_months = 6
`), 0o600)
	require.NoError(t, err)

	t.Setenv("SCOPE_HORIZON_MONTHS", "2")
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/file.db", cfg.Database.SQLitePath)
	assert.Equal(t, "America/New_York", cfg.Schedule.TimeZone)
	assert.Equal(t, 2, cfg.Schedule.HorizonMonths)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns, "unparsable values keep the previous setting")
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("SCOPE_TIME_ZONE", "Mars/Olympus_Mons")
	_, err := Load("")
	assert.Error(t, err)
}

func TestLoadRejectsUnknownStorage(t *testing.T) {
	t.Setenv("SCOPE_STORAGE", "redis")
	_, err := Load("")
	assert.Error(t, err)
}
