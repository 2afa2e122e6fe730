package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cidledger/internal/consent/cache"
	"cidledger/pkg/domain"
	"cidledger/pkg/platform/circuit"
	"cidledger/pkg/testutil"
)

func TestBreakerTurnsFailingReadsIntoMisses(t *testing.T) {
	// Nothing listens on port 1; every command fails fast.
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	breaker := circuit.New("derived-cache", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour))
	c := cache.NewRedisCache(client, time.Minute, cache.WithBreaker(breaker))
	ctx := context.Background()
	cid := testutil.NextCID()
	head := domain.NewEventID()

	_, _, err := c.Get(ctx, cid, head)
	require.Error(t, err)
	require.Error(t, c.Set(ctx, cid, head, nil))
	require.False(t, breaker.Allow(), "two consecutive failures open the circuit")

	got, hit, err := c.Get(ctx, cid, head)
	assert.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, got)
	assert.NoError(t, c.Set(ctx, cid, head, nil))
	assert.NoError(t, c.Invalidate(ctx, cid))
}
