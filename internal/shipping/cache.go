package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"marketplace-be/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrCacheMiss = errors.New("cache miss")

type ConfigCache interface {
	Get(ctx context.Context, vendorID int64, country Country) (*VendorConfig, error)
	Set(ctx context.Context, cfg *VendorConfig) error
	Delete(ctx context.Context, vendorID int64, country Country) error
}

type RedisCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{
		client:  client,
		baseTTL: 10 * time.Minute,
	}
}

func (r *RedisCache) Get(ctx context.Context, vendorID int64, country Country) (*VendorConfig, error) {
	data, err := r.client.Get(ctx, cacheKey(vendorID, country)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	var cfg VendorConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal shipping config failed: %w", err)
	}
	return &cfg, nil
}

func (r *RedisCache) Set(ctx context.Context, cfg *VendorConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal shipping config failed: %w", err)
	}

	jitter := time.Duration(rand.Intn(60)) * time.Second
	if err := r.client.Set(ctx, cacheKey(cfg.VendorID, cfg.Country), data, r.baseTTL+jitter).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, vendorID int64, country Country) error {
	if err := r.client.Del(ctx, cacheKey(vendorID, country)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func cacheKey(vendorID int64, country Country) string {
	return fmt.Sprintf("shipping:cfg:%d:%s", vendorID, country)
}

// CachedRepository reads through the cache and falls back to the database
// whenever the cache misbehaves.
type CachedRepository struct {
	repo  Repository
	cache ConfigCache
}

func NewCachedRepository(repo Repository, cache ConfigCache) *CachedRepository {
	return &CachedRepository{repo: repo, cache: cache}
}

func (c *CachedRepository) GetActiveConfig(ctx context.Context, vendorID int64, country Country) (*VendorConfig, error) {
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "cache"),
		zap.Int64("vendor_id", vendorID),
		zap.String("country", string(country)),
	)

	cfg, err := c.cache.Get(ctx, vendorID, country)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		log.Warn("shipping config cache read failed", zap.Error(err))
	}

	cfg, err = c.repo.GetActiveConfig(ctx, vendorID, country)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, cfg); err != nil {
		log.Warn("shipping config cache write failed", zap.Error(err))
	}
	return cfg, nil
}

func (c *CachedRepository) UpsertConfig(ctx context.Context, cfg *VendorConfig) error {
	if err := c.repo.UpsertConfig(ctx, cfg); err != nil {
		return err
	}
	if err := c.cache.Delete(ctx, cfg.VendorID, cfg.Country); err != nil {
		logger.FromCtx(ctx).Warn("shipping config cache invalidation failed",
			zap.Int64("vendor_id", cfg.VendorID),
			zap.Error(err),
		)
	}
	return nil
}
