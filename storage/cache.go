package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"onboarding-api/domain"
)

// Backend is the durable store behind a Cache.
type Backend interface {
	LoadIntake(ctx context.Context, userID string) (domain.Answers, error)
	SaveIntake(ctx context.Context, userID string, answers domain.Answers) error
	LoadAppState(ctx context.Context, userID string) (domain.AppState, error)
	SaveAppState(ctx context.Context, userID string, st domain.AppState) error
	EnqueueEvents(ctx context.Context, userID string, events []domain.Event) error
}

// Cache wraps a Backend with Redis-backed caching for hydration reads.
type Cache struct {
	base  Backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) LoadIntake(ctx context.Context, userID string) (domain.Answers, error) {
	var answers domain.Answers
	if c.load(ctx, intakeCacheKey(userID), &answers) {
		return answers, nil
	}
	answers, err := c.base.LoadIntake(ctx, userID)
	if err != nil {
		return domain.Answers{}, err
	}
	c.store(ctx, intakeCacheKey(userID), answers)
	return answers, nil
}

// SaveIntake writes through to the backend and refreshes the cached copy.
func (c *Cache) SaveIntake(ctx context.Context, userID string, answers domain.Answers) error {
	if err := c.base.SaveIntake(ctx, userID, answers); err != nil {
		c.evict(ctx, intakeCacheKey(userID))
		return err
	}
	c.store(ctx, intakeCacheKey(userID), answers)
	return nil
}

func (c *Cache) LoadAppState(ctx context.Context, userID string) (domain.AppState, error) {
	var st domain.AppState
	if c.load(ctx, appStateCacheKey(userID), &st) {
		return st, nil
	}
	st, err := c.base.LoadAppState(ctx, userID)
	if err != nil {
		return domain.AppState{}, err
	}
	c.store(ctx, appStateCacheKey(userID), st)
	return st, nil
}

func (c *Cache) SaveAppState(ctx context.Context, userID string, st domain.AppState) error {
	if err := c.base.SaveAppState(ctx, userID, st); err != nil {
		c.evict(ctx, appStateCacheKey(userID))
		return err
	}
	c.store(ctx, appStateCacheKey(userID), st)
	return nil
}

func (c *Cache) EnqueueEvents(ctx context.Context, userID string, events []domain.Event) error {
	return c.base.EnqueueEvents(ctx, userID, events)
}

func (c *Cache) load(ctx context.Context, key string, v any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the backing storage without failing.
			c.evict(ctx, key)
		}
		return false
	}
	if err := sonic.Unmarshal(data, v); err != nil {
		c.evict(ctx, key)
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, key string) {
	if c.redis == nil {
		return
	}
	_ = c.redis.Del(ctx, key).Err()
}

func intakeCacheKey(userID string) string {
	return "intake:" + userID
}

func appStateCacheKey(userID string) string {
	return "appstate:" + userID
}
