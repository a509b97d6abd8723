package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// keysIndex tracks every window key so Purge can find them without SCAN.
const keysIndex = "ratelimit:keys"

// entryTTL bounds how long an idle window survives in Redis.
const entryTTL = 25 * time.Hour

// tryRecordScript: KEYS[1]=window, KEYS[2]=index.
// ARGV: at(ms), member, pruneBefore(ms), ttl(ms), then since(ms)/max pairs.
var tryRecordScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', '(' .. ARGV[3])
for i = 5, #ARGV, 2 do
  local max = tonumber(ARGV[i+1])
  if max > 0 then
    local n = redis.call('ZCOUNT', KEYS[1], ARGV[i], '+inf')
    if n >= max then
      return 0
    end
  end
end
redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
redis.call('SADD', KEYS[2], KEYS[1])
return 1
`)

// RedisStore keeps windows as sorted sets scored by unix milliseconds,
// so several processes can share one budget.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (s *RedisStore) Timestamps(ctx context.Context, key string, since time.Time) ([]time.Time, error) {
	if err := s.rdb.ZRemRangeByScore(ctx, key, "-inf", fmt.Sprintf("(%d", since.UnixMilli())).Err(); err != nil {
		return nil, err
	}
	zs, err := s.rdb.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(zs))
	for _, z := range zs {
		out = append(out, time.UnixMilli(int64(z.Score)))
	}
	return out, nil
}

func (s *RedisStore) Record(ctx context.Context, key string, at time.Time) error {
	pipe := s.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMilli()), Member: member(at)})
	pipe.PExpire(ctx, key, entryTTL)
	pipe.SAdd(ctx, keysIndex, key)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) TryRecord(ctx context.Context, key string, at, pruneBefore time.Time, bounds []Bound) (bool, error) {
	args := []any{at.UnixMilli(), member(at), pruneBefore.UnixMilli(), entryTTL.Milliseconds()}
	for _, b := range bounds {
		args = append(args, b.Since.UnixMilli(), b.Max)
	}
	n, err := tryRecordScript.Run(ctx, s.rdb, []string{key, keysIndex}, args...).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) Purge(ctx context.Context, before time.Time) (int, error) {
	keys, err := s.rdb.SMembers(ctx, keysIndex).Result()
	if err != nil {
		return 0, err
	}
	max := fmt.Sprintf("(%d", before.UnixMilli())
	removed := 0
	for _, key := range keys {
		n, err := s.rdb.ZRemRangeByScore(ctx, key, "-inf", max).Result()
		if err != nil {
			return removed, err
		}
		removed += int(n)
		left, err := s.rdb.ZCard(ctx, key).Result()
		if err != nil {
			return removed, err
		}
		if left == 0 {
			if err := s.rdb.SRem(ctx, keysIndex, key).Err(); err != nil {
				return removed, err
			}
		}
	}
	return removed, nil
}

// member is unique per entry; two requests in the same millisecond both count.
func member(at time.Time) string {
	return strconv.FormatInt(at.UnixMilli(), 10) + ":" + uuid.NewString()
}
