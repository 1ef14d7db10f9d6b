package database

import (
	"context"
	"testing"

	"kitchenhub/internal/shared/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm/schema"
)

func TestEmptyDBIsHealthyAndCloses(t *testing.T) {
	db := &DB{}
	assert.NoError(t, db.HealthCheck(context.Background()))
	assert.NoError(t, db.Close())
}

func TestOpenRedisReportsUnreachableAddr(t *testing.T) {
	cfg := &config.Config{Redis: config.RedisConfig{Addr: "127.0.0.1:1"}}
	rdb, err := OpenRedis(cfg)
	require.Error(t, err)
	assert.Nil(t, rdb)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}

func TestModelsNameTheirTables(t *testing.T) {
	seen := map[string]bool{}
	for _, m := range Models() {
		tabler, ok := m.(schema.Tabler)
		require.True(t, ok, "%T has no TableName", m)
		name := tabler.TableName()
		assert.False(t, seen[name], "table %s listed twice", name)
		seen[name] = true
	}
	assert.True(t, seen["storage_bookings"])
	assert.True(t, seen["overstay_penalties"])
}
