package storage

import (
	"context"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisCache keeps recent messages in a capped list and presence in a set,
// both under the key layout shared with the other chat nodes.
type RedisCache struct {
	rdb  redis.UniversalClient
	opts Options
}

func NewRedisCache(rdb redis.UniversalClient, opts Options) *RedisCache {
	opts.norm()
	return &RedisCache{rdb: rdb, opts: opts}
}

func (c *RedisCache) PushRecent(ctx context.Context, roomID int64, payload []byte) error {
	key := RecentKey(roomID)
	pipe := c.rdb.TxPipeline()
	pipe.LPush(ctx, key, payload)
	pipe.LTrim(ctx, key, 0, int64(c.opts.RecentSize-1))
	pipe.Expire(ctx, key, c.opts.RecentTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) Recent(ctx context.Context, roomID int64) ([][]byte, error) {
	vals, err := c.rdb.LRange(ctx, RecentKey(roomID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		out = append(out, []byte(v))
	}
	return out, nil
}

func (c *RedisCache) JoinPresence(ctx context.Context, roomID int64, subject string) error {
	key := OnlineKey(roomID)
	pipe := c.rdb.TxPipeline()
	pipe.SAdd(ctx, key, subject)
	pipe.Expire(ctx, key, c.opts.PresenceTTL)
	pipe.Set(ctx, SessionKey(subject), strconv.FormatInt(roomID, 10), c.opts.PresenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (c *RedisCache) LeavePresence(ctx context.Context, roomID int64, subject string) (bool, error) {
	pipe := c.rdb.TxPipeline()
	removed := pipe.SRem(ctx, OnlineKey(roomID), subject)
	pipe.Del(ctx, SessionKey(subject))
	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}
	return removed.Val() > 0, nil
}

func (c *RedisCache) PresenceMembers(ctx context.Context, roomID int64) ([]string, error) {
	members, err := c.rdb.SMembers(ctx, OnlineKey(roomID)).Result()
	if err != nil {
		return nil, err
	}
	sort.Strings(members)
	return members, nil
}

// Close is a no-op; the client belongs to the redis manager.
func (c *RedisCache) Close() error { return nil }
