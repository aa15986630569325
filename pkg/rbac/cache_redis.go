package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/go-redis/redis/v8"

	"github.com/platinummonkey/warden/pkg/clock"
)

// RedisCacheBackend shares resolutions between processes. Each user entry
// lives under <prefix>:perm:user:<id> with a native TTL; a set per role
// indexes its users for DeleteByRole.
type RedisCacheBackend struct {
	client *redis.Client
	prefix string
	clock  clock.Clock
}

// NewRedisCacheBackend creates a backend on client; prefix namespaces keys
func NewRedisCacheBackend(client *redis.Client, prefix string, clk clock.Clock) *RedisCacheBackend {
	if prefix == "" {
		prefix = "warden"
	}
	return &RedisCacheBackend{client: client, prefix: prefix, clock: clock.OrReal(clk)}
}

func (b *RedisCacheBackend) userKey(userID string) string {
	return b.prefix + ":perm:user:" + userID
}

func (b *RedisCacheBackend) roleKey(roleID string) string {
	return b.prefix + ":perm:role:" + roleID
}

func (b *RedisCacheBackend) generationKey() string {
	return b.prefix + ":permgen"
}

func (b *RedisCacheBackend) Get(ctx context.Context, userID string) (*Resolution, bool, error) {
	data, err := b.client.Get(ctx, b.userKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached permissions: %w", err)
	}

	var res Resolution
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached permissions: %w", err)
	}
	if !b.clock.Now().Before(res.ExpiresAt) {
		return nil, false, nil
	}
	return &res, true, nil
}

func (b *RedisCacheBackend) Generation(ctx context.Context) (uint64, error) {
	gen, err := b.client.Get(ctx, b.generationKey()).Uint64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

var setIfGenerationScript = redis.NewScript(`
local gen = redis.call("GET", KEYS[1])
if not gen then gen = "0" end
if gen ~= ARGV[1] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[2], "PX", ARGV[3])
redis.call("SADD", KEYS[3], ARGV[4])
local ttl = redis.call("PTTL", KEYS[3])
if ttl < tonumber(ARGV[3]) then
	redis.call("PEXPIRE", KEYS[3], ARGV[3])
end
return 1
`)

func (b *RedisCacheBackend) SetIfGeneration(ctx context.Context, res *Resolution, generation uint64) (bool, error) {
	ttl := res.ExpiresAt.Sub(b.clock.Now()).Milliseconds()
	if ttl <= 0 {
		return false, nil
	}

	data, err := json.Marshal(res)
	if err != nil {
		return false, fmt.Errorf("failed to encode permissions: %w", err)
	}

	stored, err := setIfGenerationScript.Run(ctx, b.client,
		[]string{b.generationKey(), b.userKey(res.UserID), b.roleKey(res.RoleID())},
		strconv.FormatUint(generation, 10), string(data), ttl, res.UserID,
	).Int()
	if err != nil {
		return false, fmt.Errorf("failed to cache permissions: %w", err)
	}
	return stored == 1, nil
}

func (b *RedisCacheBackend) Delete(ctx context.Context, userID string) error {
	_, err := b.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, b.generationKey())
		pipe.Del(ctx, b.userKey(userID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to invalidate user %s: %w", userID, err)
	}
	return nil
}

var deleteByRoleScript = redis.NewScript(`
redis.call("INCR", KEYS[2])
local members = redis.call("SMEMBERS", KEYS[1])
for _, id in ipairs(members) do
	redis.call("DEL", ARGV[1] .. id)
end
redis.call("DEL", KEYS[1])
return #members
`)

func (b *RedisCacheBackend) DeleteByRole(ctx context.Context, roleID string) error {
	err := deleteByRoleScript.Run(ctx, b.client,
		[]string{b.roleKey(roleID), b.generationKey()},
		b.userKey(""),
	).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("failed to invalidate role %s: %w", roleID, err)
	}
	return nil
}

func (b *RedisCacheBackend) Clear(ctx context.Context) error {
	if err := b.client.Incr(ctx, b.generationKey()).Err(); err != nil {
		return fmt.Errorf("failed to advance cache generation: %w", err)
	}

	iter := b.client.Scan(ctx, 0, b.prefix+":perm:*", 500).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 500 {
			if err := b.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to clear permission cache: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan permission cache: %w", err)
	}
	if len(keys) > 0 {
		if err := b.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to clear permission cache: %w", err)
		}
	}
	return nil
}
