package infra

import (
	"context"
	"io/fs"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	body, err := fs.ReadFile(migrations, "migrations/"+entries[0].Name())
	require.NoError(t, err)
	sql := string(body)
	assert.True(t, strings.HasPrefix(sql, "-- +goose Up"))
	assert.Contains(t, sql, "-- +goose Down")
	assert.Contains(t, sql, "CREATE TABLE IF NOT EXISTS identities")
}

func TestConstructorsRequireURL(t *testing.T) {
	_, err := NewPostgresPool(context.Background(), "", PostgresSettings{})
	assert.Error(t, err)
	_, err = NewRedisClient(context.Background(), "", RedisSettings{})
	assert.Error(t, err)
}

func TestPostgresPoolConfigAppliesSettings(t *testing.T) {
	cfg, err := postgresPoolConfig("postgres://app:pw@localhost:5432/ridesync?sslmode=disable", PostgresSettings{
		MaxConns:        20,
		MinConns:        4,
		MaxConnLifetime: 30 * time.Minute,
		ApplicationName: "ridesync",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 20, cfg.MaxConns)
	assert.EqualValues(t, 4, cfg.MinConns)
	assert.Equal(t, 30*time.Minute, cfg.MaxConnLifetime)
	assert.Equal(t, poolMaxConnIdleTime, cfg.MaxConnIdleTime)
	assert.Equal(t, "ridesync", cfg.ConnConfig.RuntimeParams["application_name"])
}

func TestPostgresPoolConfigKeepsDefaults(t *testing.T) {
	defaults, err := postgresPoolConfig("postgres://localhost/ridesync?pool_max_conns=7", PostgresSettings{})
	require.NoError(t, err)
	assert.EqualValues(t, 7, defaults.MaxConns)

	_, err = postgresPoolConfig("postgres://localhost/ridesync", PostgresSettings{MaxConns: 2, MinConns: 3})
	assert.Error(t, err)
}

func TestRedisOptionsAppliesSettings(t *testing.T) {
	opt, err := redisOptions("redis://localhost:6379/2", RedisSettings{PoolSize: 32, ClientName: "ridesync"})
	require.NoError(t, err)
	assert.Equal(t, 32, opt.PoolSize)
	assert.Equal(t, "ridesync", opt.ClientName)
	assert.Equal(t, 2, opt.DB)
	assert.Equal(t, redisDialTimeout, opt.DialTimeout)

	_, err = redisOptions("not-a-url", RedisSettings{})
	assert.Error(t, err)
}
