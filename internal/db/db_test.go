package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uwscope/scope-web-sub000/internal/config"
	"github.com/uwscope/scope-web-sub000/internal/model"
)

func TestNewGormDBWithSQLite(t *testing.T) {
	cfg := &config.DBConfig{
		Driver:       "sqlite",
		SQLitePath:   filepath.Join(t.TempDir(), "scope.db"),
		MaxOpenConns: 1,
	}

	db, err := NewGormDB(cfg)
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, model.AutoMigrate(db))
	assert.True(t, db.Migrator().HasTable(&model.DocumentRow{}))
	assert.True(t, db.Migrator().HasIndex(&model.DocumentRow{}, "ux_documents_revision"))
}
