package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharedcode/profiles"
	"github.com/sharedcode/profiles/redis"
)

type save struct {
	Coins int `json:"coins"`
	Level int `json:"level"`
}

func TestParse(t *testing.T) {
	dt, err := ParseDatabaseType("Clustered")
	require.NoError(t, err)
	assert.Equal(t, Clustered, dt)
	dt, err = ParseDatabaseType("")
	require.NoError(t, err)
	assert.Equal(t, Standalone, dt)
	_, err = ParseDatabaseType("sharded")
	assert.Error(t, err)

	for _, s := range []string{"memory", "fs", "redis", "cassandra", "s3"} {
		b, err := ParseBlobBackend(s)
		require.NoError(t, err)
		assert.Equal(t, s, b.String())
	}
	_, err = ParseBlobBackend("tape")
	assert.Error(t, err)
}

func TestBackendSelection(t *testing.T) {
	assert.Equal(t, Memory, (&Database{}).backend())
	assert.Equal(t, FileSystem, (&Database{options: DatabaseOptions{StoragePath: "/data"}}).backend())
	assert.Equal(t, RedisBackend, (&Database{options: DatabaseOptions{Type: Clustered}}).backend())
	assert.Equal(t, S3, (&Database{options: DatabaseOptions{Type: Clustered, Blob: S3}}).backend())
}

func TestStandaloneFileSystemDatabase(t *testing.T) {
	ctx := context.Background()
	path := t.TempDir()

	db, err := NewDatabase(ctx, DatabaseOptions{StoragePath: path})
	require.NoError(t, err)
	m, err := OpenManager(db, profiles.ManagerOptions[save]{StoreName: "PlayerData", Template: save{Level: 1}})
	require.NoError(t, err)

	p, err := m.Load(ctx, "p1")
	require.NoError(t, err)
	p.Mutate(func(d *save) { d.Coins = 7 })
	require.NoError(t, m.Close(ctx))
	require.NoError(t, db.Close())

	// A new database over the same folder sees the saved profile.
	db2, err := NewDatabase(ctx, DatabaseOptions{StoragePath: path})
	require.NoError(t, err)
	defer db2.Close()
	m2, err := OpenManager(db2, profiles.ManagerOptions[save]{StoreName: "PlayerData", Template: save{Level: 1}})
	require.NoError(t, err)
	v, err := m2.View(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, v)
	assert.Equal(t, save{Coins: 7, Level: 1}, v.Data)
	assert.Equal(t, int64(1), v.Metadata.LoadCount)
}

func TestStandaloneMemoryDatabase(t *testing.T) {
	ctx := context.Background()
	db, err := NewDatabase(ctx, DatabaseOptions{LockTTL: time.Minute})
	require.NoError(t, err)
	defer db.Close()

	a, err := OpenManager(db, profiles.ManagerOptions[save]{StoreName: "PlayerData", Template: save{}})
	require.NoError(t, err)
	defer a.Close(ctx)
	_, err = a.Load(ctx, "p1")
	require.NoError(t, err)

	// A second instance contends for the session held by the first.
	b, err := OpenManager(db, profiles.ManagerOptions[save]{StoreName: "PlayerData", Template: save{}})
	require.NoError(t, err)
	lctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	_, err = b.Load(lctx, "p1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFileSystemBackendNeedsPath(t *testing.T) {
	_, err := NewDatabase(context.Background(), DatabaseOptions{Blob: FileSystem})
	assert.Error(t, err)
}

func TestClusteredDatabaseWithoutRedis(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := NewDatabase(ctx, DatabaseOptions{Type: Clustered, Redis: redis.Options{Address: "127.0.0.1:1"}})
	assert.Error(t, err)
	assert.False(t, redis.IsConnectionInstantiated())
}
