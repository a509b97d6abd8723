package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"mentionwatch/internal/errs"
	"mentionwatch/internal/model"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps conversations as JSON blobs with a per-tenant sorted set
// scored by publication time.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

var _ ConversationStore = (*RedisStore)(nil)

// DefaultConversationTTL bounds how long Redis keeps a conversation blob.
const DefaultConversationTTL = 30 * 24 * time.Hour

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultConversationTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, now: time.Now}
}

func tenantZKey(tenant string) string {
	return fmt.Sprintf("mentions:tenant:%s:conversations", tenant)
}

func conversationKey(tenant, id string) string {
	return fmt.Sprintf("mentions:conversation:%s:%s", tenant, id)
}

// UpsertConversation stores c, keeping CreatedAt and Tags of an earlier copy.
func (s *RedisStore) UpsertConversation(ctx context.Context, c model.Conversation) error {
	c, err := prepareConversation(c)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	prev, err := s.get(ctx, c.TenantID, c.ID)
	switch {
	case err == nil:
		c.CreatedAt = prev.CreatedAt
		c.Tags = prev.Tags
	case errs.KindOf(err) != errs.KindNotFound:
		return err
	}
	return s.put(ctx, c)
}

func (s *RedisStore) put(ctx context.Context, c model.Conversation) error {
	b, err := json.Marshal(c)
	if err != nil {
		return persistence("storage: encode conversation", err)
	}
	score := float64(c.Time().UnixMilli())
	_, err = s.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, conversationKey(c.TenantID, c.ID), b, s.ttl)
		p.ZAdd(ctx, tenantZKey(c.TenantID), redis.Z{Score: score, Member: c.ID})
		return nil
	})
	if err != nil {
		return persistence("storage: upsert conversation", err)
	}
	return nil
}

func (s *RedisStore) get(ctx context.Context, tenant, id string) (model.Conversation, error) {
	b, err := s.rdb.Get(ctx, conversationKey(tenant, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.Conversation{}, notFound("conversation", id)
	}
	if err != nil {
		return model.Conversation{}, persistence("storage: get conversation", err)
	}
	var c model.Conversation
	if err := json.Unmarshal(b, &c); err != nil {
		return model.Conversation{}, persistence("storage: decode conversation", err)
	}
	return c, nil
}

// ListConversations reads the tenant's time index newest first. Expired blobs
// are dropped from the index as they are encountered.
func (s *RedisStore) ListConversations(ctx context.Context, q Query) ([]model.Conversation, error) {
	if q.Tenant == "" {
		return nil, errs.New(errs.KindValidation, "", "tenant is required")
	}
	rng := &redis.ZRangeBy{Min: "-inf", Max: "+inf"}
	if q.Since != nil {
		rng.Min = strconv.FormatInt(q.Since.UnixMilli(), 10)
	}
	if q.Until != nil {
		rng.Max = strconv.FormatInt(q.Until.UnixMilli(), 10)
	}
	zkey := tenantZKey(q.Tenant)
	ids, err := s.rdb.ZRevRangeByScore(ctx, zkey, rng).Result()
	if err != nil {
		return nil, persistence("storage: list conversations", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = conversationKey(q.Tenant, id)
	}
	blobs, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, persistence("storage: list conversations", err)
	}

	var out []model.Conversation
	var stale []any
	for i, v := range blobs {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var c model.Conversation
		if err := json.Unmarshal([]byte(str), &c); err != nil {
			return nil, persistence("storage: decode conversation", err)
		}
		if !matches(c, q) {
			continue
		}
		out = append(out, c)
		if q.Limit > 0 && len(out) == q.Limit {
			break
		}
	}
	if len(stale) > 0 {
		_ = s.rdb.ZRem(ctx, zkey, stale...).Err()
	}
	return out, nil
}

func matches(c model.Conversation, q Query) bool {
	if q.Platform != "" && c.Platform != strings.ToLower(q.Platform) {
		return false
	}
	if q.Sentiment != "" && c.Sentiment != q.Sentiment {
		return false
	}
	if q.KeywordID != "" && c.KeywordID != q.KeywordID {
		return false
	}
	if q.Keyword != "" && !slices.Contains(c.Keywords, strings.ToLower(q.Keyword)) {
		return false
	}
	return true
}

func (s *RedisStore) UpdateSentiment(ctx context.Context, tenant, id string, sentiment model.Sentiment) error {
	if !sentiment.Valid() {
		return errs.Newf(errs.KindValidation, "", "invalid sentiment %q", sentiment)
	}
	return s.update(ctx, tenant, id, func(c *model.Conversation) { c.Sentiment = sentiment })
}

func (s *RedisStore) UpdateTags(ctx context.Context, tenant, id string, tags []string) error {
	return s.update(ctx, tenant, id, func(c *model.Conversation) { c.Tags = tags })
}

func (s *RedisStore) update(ctx context.Context, tenant, id string, fn func(*model.Conversation)) error {
	c, err := s.get(ctx, tenant, id)
	if err != nil {
		return err
	}
	fn(&c)
	c.UpdatedAt = s.now().UTC()
	return s.put(ctx, c)
}
