package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/storage"
)

func sqliteConfig() storage.Config {
	cfg := storage.DefaultConfig()
	cfg.Driver = "sqlite3"
	cfg.URL = "file::memory:?cache=shared"
	cfg.Timeout = time.Second
	return cfg
}

func TestNewConnectionManager_SQLite(t *testing.T) {
	cm, err := NewConnectionManager(sqliteConfig(), nil)
	require.NoError(t, err)
	defer cm.Close()

	assert.NotNil(t, cm.Primary())
	assert.Equal(t, cm.Primary(), cm.Replica(), "falls back to primary without replicas")
	assert.NoError(t, cm.HealthCheck(context.Background()))
}

func TestNewConnectionManager_UnreachablePrimary(t *testing.T) {
	cfg := storage.DefaultConfig()
	cfg.URL = "postgres://nonexistent:9999/testdb?connect_timeout=1&sslmode=disable"
	cfg.Timeout = 2 * time.Second

	cm, err := NewConnectionManager(cfg, nil)
	assert.Error(t, err)
	assert.Nil(t, cm)
	assert.Contains(t, err.Error(), "failed to ping primary")
}

func TestConnectionManager_Replica(t *testing.T) {
	primary := &sql.DB{}
	r1, r2 := &sql.DB{}, &sql.DB{}
	cm := &ConnectionManager{primary: primary, replicas: []*sql.DB{r1, r2}}

	seen := map[*sql.DB]int{}
	for i := 0; i < 10; i++ {
		seen[cm.Replica()]++
	}
	assert.Equal(t, 5, seen[r1])
	assert.Equal(t, 5, seen[r2])
	assert.Zero(t, seen[primary])
}

func TestConnectionManager_AddAndPruneReplicas(t *testing.T) {
	cm, err := NewConnectionManager(sqliteConfig(), nil)
	require.NoError(t, err)
	defer cm.Close()

	require.NoError(t, cm.AddReplica("file::memory:"))
	assert.Len(t, cm.replicas, 1)

	cm.replicas[0].Close()
	assert.Equal(t, 1, cm.RemoveUnhealthyReplicas(context.Background()))
	assert.Empty(t, cm.replicas)
}

func TestConnectionManager_HealthCheckRoutine(t *testing.T) {
	cm, err := NewConnectionManager(sqliteConfig(), nil)
	require.NoError(t, err)
	defer cm.Close()

	require.NoError(t, cm.AddReplica("file::memory:"))
	replica := cm.Replica()
	assert.NotSame(t, cm.Primary(), replica)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cm.StartHealthCheckRoutine(ctx, 10*time.Millisecond)

	replica.Close()
	assert.Eventually(t, func() bool {
		return cm.Replica() == cm.Primary()
	}, time.Second, 10*time.Millisecond, "reads fall back to the primary once the replica is pruned")
}
