package db

import (
	"context"
	"database/sql"
	"io"
	"os"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	src, err := iofs.New(migrationsFS, "migrations")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)

	next, err := src.Next(first)
	require.NoError(t, err)
	assert.Equal(t, uint(2), next)

	_, err = src.Next(next)
	assert.Error(t, err)

	for _, v := range []uint{first, next} {
		up, _, err := src.ReadUp(v)
		require.NoError(t, err)
		body, err := io.ReadAll(up)
		require.NoError(t, err)
		up.Close()
		assert.Contains(t, string(body), "CREATE TABLE")

		down, _, err := src.ReadDown(v)
		require.NoError(t, err)
		down.Close()
	}
}

// Runs against a real database only when TEST_DATABASE_URL is set.
func TestRunMigrations_Up(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	require.NoError(t, RunMigrations(url))
	// a second run is a no-op
	require.NoError(t, RunMigrations(url))

	conn, err := sql.Open("postgres", url)
	require.NoError(t, err)
	defer conn.Close()

	for _, table := range []string{"identities", "otp_verifications"} {
		var exists bool
		err := conn.QueryRow(`SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, table)
	}

	pool, err := ConnectDB(context.Background(), PostgresConfig{URL: url, MaxConns: 2})
	require.NoError(t, err)
	pool.Close()
}

func TestConnectDB_BadURL(t *testing.T) {
	_, err := ConnectDB(context.Background(), PostgresConfig{URL: "::not a url::"})
	assert.Error(t, err)
}

func TestNewRedis_SingleNode(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(RedisConfig{Addresses: []string{mr.Addr()}, PoolSize: 2})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClient_Errors(t *testing.T) {
	_, err := NewRedisClient(RedisConfig{})
	assert.Error(t, err)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	addr := mr.Addr()
	mr.Close()

	_, err = NewRedisClient(RedisConfig{Addresses: []string{addr}})
	assert.Error(t, err)
}
