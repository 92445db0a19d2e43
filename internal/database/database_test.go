package database_test

import (
	"context"
	"testing"

	"storefront/internal/database"
	"storefront/internal/logger"
	"storefront/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
)

func TestOpenMemory(t *testing.T) {
	db, err := database.OpenMemory("database_test")
	require.NoError(t, err)

	for _, m := range models.All() {
		assert.True(t, db.Migrator().HasTable(m), "missing table for %T", m)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := database.Open("oracle", "dsn", nil)
	assert.ErrorContains(t, err, "unsupported database driver")
}

func TestOpen_LogsThroughZap(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	db, err := database.Open("sqlite", database.MemoryDSN("database_log_test"), zap.New(core))
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	// A missing row is not an error worth logging
	var user models.User
	err = db.First(&user, "email = ?", "nobody@example.com").Error
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Zero(t, logs.FilterMessage("query failed").Len())

	// Failures go to the request logger when the context carries one
	ctx := logger.WithContext(context.Background(), zap.New(core).With(zap.String("request_id", "req-1")))
	err = db.WithContext(ctx).Exec("SELECT * FROM no_such_table").Error
	require.Error(t, err)

	failed := logs.FilterMessage("query failed").All()
	require.Len(t, failed, 1)
	assert.Equal(t, zap.ErrorLevel, failed[0].Level)
	assert.Equal(t, "req-1", failed[0].ContextMap()["request_id"])
	assert.Contains(t, failed[0].ContextMap()["sql"], "no_such_table")
}
