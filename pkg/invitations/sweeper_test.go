package invitations

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/warden/pkg/audit"
)

func newRedisClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestSweeper_RunOnce(t *testing.T) {
	f := newFixture(t)
	f.send("a@x.com")
	f.send("b@x.com")
	f.clock.Advance(DefaultTTL)

	s, err := NewSweeper(f.workflow, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultSweepSchedule, s.Schedule())

	n, err := s.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, f.entries(audit.ActionInvitationExpire), 2)
}

func TestSweeper_RedisLock(t *testing.T) {
	f := newFixture(t)
	f.send("a@x.com")
	f.clock.Advance(DefaultTTL)

	mr, client := newRedisClient(t)
	const key = "warden:lock:invitation-sweep"
	s, err := NewSweeper(f.workflow, "@every 1h", WithLocker(RedisLocker(client, key, time.Minute)))
	require.NoError(t, err)

	require.NoError(t, mr.Set(key, "other-process"))
	n, err := s.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "held lock skips the run")
	assert.Empty(t, f.entries(audit.ActionInvitationExpire))

	mr.Del(key)
	n, err = s.RunOnce(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, mr.Exists(key), "lock released after the run")
}

func TestSweeper_LockError(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("redis unreachable")
	s, err := NewSweeper(f.workflow, "", WithLocker(func(ctx context.Context) (bool, func(context.Context) error, error) {
		return false, nil, boom
	}))
	require.NoError(t, err)

	_, err = s.RunOnce(f.ctx)
	assert.ErrorIs(t, err, boom)
}

func TestSweeper_InvalidSchedule(t *testing.T) {
	f := newFixture(t)
	_, err := NewSweeper(f.workflow, "every now and then")
	assert.Error(t, err)
}

func TestSweeper_StartStop(t *testing.T) {
	f := newFixture(t)
	s, err := NewSweeper(f.workflow, "@every 1h", WithSweepTimeout(time.Second))
	require.NoError(t, err)

	s.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Stop(ctx))
}
