package tier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hearthside/memoryd/src/memory/model"
)

// RedisHotCache keeps the immediate conversation context in Redis as one
// list per conversation, newest turn first.
type RedisHotCache struct {
	client *redis.Client
	ttl    time.Duration
	cap    int
}

// RedisOptions configures the hot-cache tier.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration // list and user-context expiry, default 1 hour
	Cap      int           // max turns retained per conversation, default 100
	Timeout  time.Duration // per-call dial/read/write timeout
}

// NewRedisHotCache creates a Redis-backed HotCache.
func NewRedisHotCache(opts RedisOptions) *RedisHotCache {
	if opts.Addr == "" {
		opts.Addr = "localhost:6379"
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.Cap <= 0 {
		opts.Cap = 100
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  opts.Timeout,
		ReadTimeout:  opts.Timeout,
		WriteTimeout: opts.Timeout,
	})
	return &RedisHotCache{client: rdb, ttl: opts.TTL, cap: opts.Cap}
}

func conversationKey(conversationID string) string {
	return fmt.Sprintf("conversation:%s:messages", conversationID)
}

func userContextKey(userID string) string {
	return fmt.Sprintf("user:%s:context", userID)
}

// RecentTurns returns up to limit turns, most-recent-first.
func (hc *RedisHotCache) RecentTurns(ctx context.Context, conversationID string, limit int) ([]model.Turn, error) {
	if hc == nil || hc.client == nil {
		return nil, errors.New("nil hot cache")
	}
	if limit <= 0 {
		return []model.Turn{}, nil
	}
	raw, err := hc.client.LRange(ctx, conversationKey(conversationID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange: %w", err)
	}
	turns := make([]model.Turn, 0, len(raw))
	for _, entry := range raw {
		var turn model.Turn
		if err := json.Unmarshal([]byte(entry), &turn); err != nil {
			return nil, fmt.Errorf("decode cached turn: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, nil
}

// AppendTurn pushes, trims to the cap, then refreshes the TTL. The pipeline
// preserves that order, so the list never exceeds the cap and an idle
// conversation expires instead of growing.
func (hc *RedisHotCache) AppendTurn(ctx context.Context, conversationID string, turn model.Turn) error {
	if hc == nil || hc.client == nil {
		return errors.New("nil hot cache")
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("encode turn: %w", err)
	}
	key := conversationKey(conversationID)
	_, err = hc.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, data)
		pipe.LTrim(ctx, key, 0, int64(hc.cap-1))
		pipe.Expire(ctx, key, hc.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("append turn: %w", err)
	}
	return nil
}

// CacheUserContext stores the user's assembled profile data with the tier TTL.
func (hc *RedisHotCache) CacheUserContext(ctx context.Context, userID string, data map[string]any) error {
	if hc == nil || hc.client == nil {
		return errors.New("nil hot cache")
	}
	blob, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode user context: %w", err)
	}
	return hc.client.Set(ctx, userContextKey(userID), blob, hc.ttl).Err()
}

// CachedUserContext returns nil with no error on a cache miss.
func (hc *RedisHotCache) CachedUserContext(ctx context.Context, userID string) (map[string]any, error) {
	if hc == nil || hc.client == nil {
		return nil, errors.New("nil hot cache")
	}
	blob, err := hc.client.Get(ctx, userContextKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user context: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal([]byte(blob), &data); err != nil {
		return nil, fmt.Errorf("decode user context: %w", err)
	}
	return data, nil
}

// Ping verifies connectivity; used by readiness checks.
func (hc *RedisHotCache) Ping(ctx context.Context) error {
	if hc == nil || hc.client == nil {
		return errors.New("nil hot cache")
	}
	return hc.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (hc *RedisHotCache) Close() error {
	if hc == nil || hc.client == nil {
		return nil
	}
	return hc.client.Close()
}
