package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/example/craftshop/pkg/config"
	"github.com/example/craftshop/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Needs a running Redis, e.g. REDIS_TEST_ADDR=localhost:6379.
func TestRedisCaches(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	repo := NewRedisRepository(&config.RedisConfig{Addr: addr, DB: 15, OrderTTL: time.Minute})
	defer repo.Close()
	ctx := context.Background()
	require.NoError(t, repo.Ping(ctx))

	order := &models.Order{ID: primitive.NewObjectID(), OrderNumber: "CG1-1", User: "u1", Total: 42.5}
	_, err := repo.GetOrder(ctx, order.ID.Hex())
	require.ErrorIs(t, err, ErrCacheMiss)

	require.NoError(t, repo.CacheOrder(ctx, order))
	got, err := repo.GetOrder(ctx, order.ID.Hex())
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, got.OrderNumber)
	assert.Equal(t, order.Total, got.Total)

	require.NoError(t, repo.InvalidateOrder(ctx, order.ID.Hex()))
	_, err = repo.GetOrder(ctx, order.ID.Hex())
	require.ErrorIs(t, err, ErrCacheMiss)

	user := &UserCache{ID: "u1", Name: "Asha", IsAdmin: true}
	require.NoError(t, repo.CacheUser(ctx, user))
	cached, err := repo.GetUserCache(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, user, cached)
	require.NoError(t, repo.Del(ctx, userKey("u1")))
}
