package main

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	productListKey    = "products:all"
	sharedReadTimeout = 10 * time.Second
)

// listCache holds a serialized copy of the full product list.
type listCache interface {
	Get(ctx context.Context) ([]Product, bool, error)
	Set(ctx context.Context, products []Product) error
	Invalidate(ctx context.Context) error
}

// redisListCache stores the product list as one JSON value in Redis.
type redisListCache struct {
	client *redis.Client
	ttl    time.Duration
}

// newRedisClient connects to Redis and verifies the connection.
func newRedisClient(cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "connect to redis")
	}
	zap.S().Infof("connected to redis at %s, ping response: %s", cfg.Addr, pong)
	return client, nil
}

func newRedisListCache(client *redis.Client, ttl time.Duration) *redisListCache {
	return &redisListCache{client: client, ttl: ttl}
}

func (c *redisListCache) Get(ctx context.Context) ([]Product, bool, error) {
	raw, err := c.client.Get(ctx, productListKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "redis get")
	}
	var products []Product
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(raw, &products); err != nil {
		return nil, false, errors.Wrap(err, "decode cached products")
	}
	return products, true, nil
}

func (c *redisListCache) Set(ctx context.Context, products []Product) error {
	raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(products)
	if err != nil {
		return errors.Wrap(err, "encode products")
	}
	return errors.Wrap(c.client.Set(ctx, productListKey, raw, c.ttl).Err(), "redis set")
}

func (c *redisListCache) Invalidate(ctx context.Context) error {
	return errors.Wrap(c.client.Del(ctx, productListKey).Err(), "redis del")
}

// cachedStore serves List from a cache and invalidates it on every
// successful mutation. A list read that overlapped a mutation does not
// repopulate the cache.
type cachedStore struct {
	Store
	cache listCache
	group singleflight.Group
	gen   atomic.Uint64
	// mu orders cache writes against invalidations
	mu sync.Mutex
}

func newCachedStore(inner Store, cache listCache) *cachedStore {
	return &cachedStore{Store: inner, cache: cache}
}

func (s *cachedStore) List(ctx context.Context) ([]Product, error) {
	products, hit, err := s.cache.Get(ctx)
	if err != nil {
		zap.L().Warn("product cache read failed, falling back to store", zap.Error(err))
	}
	if hit {
		return products, nil
	}

	// flights are keyed by generation so a caller arriving after a mutation
	// never joins a read that started before it
	gen := s.gen.Load()
	v, err, _ := s.group.Do(productListKey+":"+strconv.FormatUint(gen, 10), func() (interface{}, error) {
		// the read is shared, so one caller going away must not fail the rest
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sharedReadTimeout)
		defer cancel()
		products, err := s.Store.List(ctx)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen.Load() == gen {
			if err := s.cache.Set(ctx, products); err != nil {
				zap.L().Warn("product cache write failed", zap.Error(err))
			}
		}
		return products, nil
	})
	if err != nil {
		return nil, err
	}
	// singleflight shares the slice between callers
	shared := v.([]Product)
	out := make([]Product, len(shared))
	for i := range shared {
		out[i] = copyProduct(shared[i])
	}
	return out, nil
}

func (s *cachedStore) Create(ctx context.Context, p Product) (Product, error) {
	created, err := s.Store.Create(ctx, p)
	if err == nil {
		s.invalidate(ctx)
	}
	return created, err
}

func (s *cachedStore) Update(ctx context.Context, id string, patch ProductPatch) (Product, error) {
	updated, err := s.Store.Update(ctx, id, patch)
	if err == nil {
		s.invalidate(ctx)
	}
	return updated, err
}

func (s *cachedStore) Delete(ctx context.Context, id string) error {
	err := s.Store.Delete(ctx, id)
	if err == nil {
		s.invalidate(ctx)
	}
	return err
}

func (s *cachedStore) invalidate(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen.Add(1)
	if err := s.cache.Invalidate(ctx); err != nil {
		zap.L().Warn("product cache invalidation failed", zap.Error(err))
	}
}
