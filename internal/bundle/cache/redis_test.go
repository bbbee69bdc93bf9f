package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"plugstore/internal/bundle"
	"plugstore/internal/pricing"
)

type countingSource struct {
	calls   int
	bundles []*bundle.Bundle
}

func (s *countingSource) GetByID(ctx context.Context, id int64) (*bundle.Bundle, error) {
	for _, b := range s.bundles {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, bundle.ErrNotFound
}

func (s *countingSource) ListActive(ctx context.Context, now time.Time) ([]*bundle.Bundle, error) {
	s.calls++
	return s.bundles, nil
}

func newCache(t *testing.T, src Source) (*ActiveBundleCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewActiveBundleCache(client, src, time.Minute), mr
}

func TestActiveBundleCacheHitsRedisAfterFirstLoad(t *testing.T) {
	src := &countingSource{bundles: []*bundle.Bundle{{
		ID: 1, Name: "summer", DiscountType: pricing.DiscountPercentage,
		DiscountValue: decimal.NewFromInt(20), ApplyTo: bundle.ApplyToProducts,
		ProductIDs: []int64{7}, IsActive: true,
	}}}
	c, mr := newCache(t, src)
	ctx := context.Background()
	now := time.Now()

	first, err := c.ListActive(ctx, now)
	require.NoError(t, err)
	second, err := c.ListActive(ctx, now)
	require.NoError(t, err)

	assert.Equal(t, 1, src.calls)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Name, second[0].Name)
	assert.True(t, second[0].DiscountValue.Equal(decimal.NewFromInt(20)))
	assert.True(t, mr.Exists(activeBundlesKey))
}

func TestActiveBundleCacheDropsExpiredEntries(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	src := &countingSource{bundles: []*bundle.Bundle{{ID: 1, IsActive: true, ExpiresAt: &expires}}}
	c, _ := newCache(t, src)
	ctx := context.Background()

	_, err := c.ListActive(ctx, time.Now())
	require.NoError(t, err)

	later, err := c.ListActive(ctx, expires.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, later)
	assert.Equal(t, 1, src.calls)
}

func TestActiveBundleCacheInvalidate(t *testing.T) {
	src := &countingSource{}
	c, mr := newCache(t, src)
	ctx := context.Background()

	_, err := c.ListActive(ctx, time.Now())
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))
	assert.False(t, mr.Exists(activeBundlesKey))

	_, err = c.ListActive(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, src.calls)
}

func TestActiveBundleCacheFallsBackWhenRedisDown(t *testing.T) {
	src := &countingSource{bundles: []*bundle.Bundle{{ID: 3, IsActive: true}}}
	c, mr := newCache(t, src)
	mr.Close()

	got, err := c.ListActive(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, src.calls)
}
