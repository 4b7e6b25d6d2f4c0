package repository

import (
	"context"
	"fmt"
	"testing"

	"github.com/ManuelReschke/subscription-engine/app/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.SubscriptionPlan{}))
	return db
}

func TestPlanRepositoryListOrdersByPrice(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	for _, p := range []struct{ name, price string }{{"Enterprise", "49.99"}, {"Basic", "9.99"}, {"Pro", "19.99"}} {
		created, err := repos.Plan.UpsertByName(ctx, &models.SubscriptionPlan{
			Name:     p.name,
			Price:    decimal.RequireFromString(p.price),
			Currency: "USD",
			Interval: models.BillingIntervalMonth,
		})
		require.NoError(t, err)
		assert.True(t, created)
	}

	plans, err := repos.Plan.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, []string{"Basic", "Pro", "Enterprise"}, []string{plans[0].Name, plans[1].Name, plans[2].Name})

	got, err := repos.Plan.GetByID(ctx, plans[1].ID)
	require.NoError(t, err)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("19.99")))
}

func TestPlanRepositoryUpsertByNameUpdates(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	first := &models.SubscriptionPlan{Name: "Pro", Price: decimal.RequireFromString("19.99"), Currency: "USD", Interval: "month"}
	_, err := repos.Plan.UpsertByName(ctx, first)
	require.NoError(t, err)

	second := &models.SubscriptionPlan{Name: "Pro", Price: decimal.RequireFromString("24.99"), Currency: "USD", Interval: "year"}
	created, err := repos.Plan.UpsertByName(ctx, second)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	count, err := repos.Plan.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	got, err := repos.Plan.GetByID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, "year", got.Interval)
	assert.True(t, got.Price.Equal(decimal.RequireFromString("24.99")))
}

func TestUserRepositoryCreateValidates(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	err := repos.User.Create(ctx, &models.User{Email: "not-an-email"})
	require.Error(t, err)

	user := &models.User{Email: " U1@Example.com ", Platform: models.PLATFORM_WEB}
	require.NoError(t, repos.User.Create(ctx, user))
	assert.NotEmpty(t, user.ID)

	got, err := repos.User.GetByEmail(ctx, "u1@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.False(t, got.HasStripeCustomer())

	_, err = repos.User.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSeedPlansIsRepeatable(t *testing.T) {
	repos := NewRepositories(newTestDB(t))
	ctx := context.Background()

	created, err := SeedPlans(ctx, repos.Plan)
	require.NoError(t, err)
	assert.Equal(t, 3, created)

	created, err = SeedPlans(ctx, repos.Plan)
	require.NoError(t, err)
	assert.Zero(t, created)

	plans, err := repos.Plan.ListPlans(ctx)
	require.NoError(t, err)
	require.Len(t, plans, 3)
	assert.Equal(t, int64(999), plans[0].UnitAmount())
	assert.False(t, plans[2].AvailableOn(models.PLATFORM_MOBILE))
}

func TestFactoryReturnsSingletons(t *testing.T) {
	f := NewFactory(newTestDB(t))

	assert.Same(t, f.GetRepositories(), f.GetRepositories())
	assert.NotNil(t, f.GetUserRepository())
	assert.NotNil(t, f.GetPlanRepository())

	n, err := f.GetPlanRepository().Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
