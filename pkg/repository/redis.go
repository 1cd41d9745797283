package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/example/craftshop/pkg/config"
	"github.com/example/craftshop/pkg/models"
	"github.com/go-redis/redis/v8"
)

// ErrCacheMiss is returned by the cache getters when the key is absent.
var ErrCacheMiss = errors.New("cache miss")

const userCacheTTL = 30 * time.Minute

type RedisRepository struct {
	client *redis.Client
	config *config.RedisConfig
}

func NewRedisRepository(cfg *config.RedisConfig) *RedisRepository {
	return NewRedisRepositoryWithClient(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}), cfg)
}

func NewRedisRepositoryWithClient(client *redis.Client, cfg *config.RedisConfig) *RedisRepository {
	return &RedisRepository{
		client: client,
		config: cfg,
	}
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Del(ctx context.Context, keys ...string) error {
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisRepository) SetJSON(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, key, data, expiration).Err()
}

func (r *RedisRepository) GetJSON(ctx context.Context, key string, dest interface{}) error {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrCacheMiss
	}
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func orderKey(id string) string {
	return fmt.Sprintf("order:%s", id)
}

func userKey(id string) string {
	return fmt.Sprintf("user:%s", id)
}

func (r *RedisRepository) CacheOrder(ctx context.Context, order *models.Order) error {
	return r.SetJSON(ctx, orderKey(order.ID.Hex()), order, r.config.OrderTTL)
}

func (r *RedisRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	if err := r.GetJSON(ctx, orderKey(id), &order); err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *RedisRepository) InvalidateOrder(ctx context.Context, id string) error {
	return r.Del(ctx, orderKey(id))
}

// UserCache is the identity subset kept in Redis.
type UserCache struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	IsAdmin bool   `json:"isAdmin"`
}

func (r *RedisRepository) CacheUser(ctx context.Context, user *UserCache) error {
	return r.SetJSON(ctx, userKey(user.ID), user, userCacheTTL)
}

func (r *RedisRepository) GetUserCache(ctx context.Context, userID string) (*UserCache, error) {
	var user UserCache
	if err := r.GetJSON(ctx, userKey(userID), &user); err != nil {
		return nil, err
	}
	return &user, nil
}
