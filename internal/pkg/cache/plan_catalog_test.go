package cache

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuelReschke/subscription-engine/app/models"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLister struct {
	plans []models.SubscriptionPlan
	err   error
	calls atomic.Int32
}

func (s *stubLister) ListPlans(ctx context.Context) ([]models.SubscriptionPlan, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.plans, s.err
}

func testPlans() []models.SubscriptionPlan {
	return []models.SubscriptionPlan{
		{ID: "p1", Name: "Basic", Price: decimal.RequireFromString("9.99"), PlatformAvailability: models.NewStringList("web", "mobile")},
		{ID: "p2", Name: "Pro", Price: decimal.RequireFromString("19.99"), PlatformAvailability: models.NewStringList("web")},
		{ID: "p3", Name: "Enterprise", Price: decimal.RequireFromString("49.99"), PlatformAvailability: models.NewStringList()},
	}
}

func TestPlanCatalogWithoutCache(t *testing.T) {
	src := &stubLister{plans: testPlans()}
	catalog := NewPlanCatalog(src, nil, 0, zerolog.Nop())

	all, err := catalog.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	web, err := catalog.List(context.Background(), "web")
	require.NoError(t, err)
	require.Len(t, web, 2)
	assert.Equal(t, "Basic", web[0].Name)
	assert.Equal(t, "Pro", web[1].Name)

	mobile, err := catalog.List(context.Background(), "MOBILE")
	require.NoError(t, err)
	require.Len(t, mobile, 1)
	assert.Equal(t, "p1", mobile[0].ID)

	assert.Equal(t, int32(3), src.calls.Load())
	assert.NoError(t, catalog.Invalidate(context.Background()))
}

func TestPlanCatalogPropagatesSourceError(t *testing.T) {
	src := &stubLister{err: errors.New("db down")}
	catalog := NewPlanCatalog(src, nil, time.Minute, zerolog.Nop())

	_, err := catalog.List(context.Background(), "web")
	require.EqualError(t, err, "db down")
}

func TestPlanCatalogFallsBackWhenCacheUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		MaxRetries:  -1,
		DialTimeout: 100 * time.Millisecond,
	})
	t.Cleanup(func() { _ = client.Close() })

	src := &stubLister{plans: testPlans()}
	catalog := NewPlanCatalog(src, client, time.Minute, zerolog.Nop())

	plans, err := catalog.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, plans, 3)
	assert.Equal(t, int32(1), src.calls.Load())
}

func TestPlanCatalogLoadSurvivesCanceledCaller(t *testing.T) {
	src := &stubLister{plans: testPlans()}
	catalog := NewPlanCatalog(src, nil, 0, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	plans, err := catalog.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, plans, 3)
}
