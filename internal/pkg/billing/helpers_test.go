package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/subscription-engine/app/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v83/webhook"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const testWebhookSecret = "whsec_test_secret"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.SubscriptionPlan{},
		&models.UserSubscription{},
		&models.BillingWebhookEvent{},
	))
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, Name: "Test", Platform: models.PLATFORM_WEB}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createTestPlan(t *testing.T, db *gorm.DB, name, price string) *models.SubscriptionPlan {
	t.Helper()
	plan := &models.SubscriptionPlan{
		Name:                 name,
		Price:                decimal.RequireFromString(price),
		Currency:             "USD",
		Interval:             models.BillingIntervalMonth,
		PlatformAvailability: models.NewStringList(models.PLATFORM_WEB, models.PLATFORM_MOBILE),
		Features:             models.NewStringList("feature"),
	}
	require.NoError(t, db.Create(plan).Error)
	return plan
}

func newTestService(t *testing.T, db *gorm.DB, gw Gateway) *Service {
	t.Helper()
	return NewServiceFromDB(db, gw, Config{
		WebhookSecret:  testWebhookSecret,
		GatewayTimeout: time.Second,
	})
}

// signedDelivery builds a Stripe event envelope around object and signs it the
// way the gateway does.
func signedDelivery(t *testing.T, eventID, eventType string, created int64, object map[string]interface{}) ([]byte, string) {
	t.Helper()
	envelope := map[string]interface{}{
		"id":          eventID,
		"object":      "event",
		"type":        eventType,
		"created":     created,
		"api_version": "2025-08-27.basil",
		"livemode":    false,
		"data":        map[string]interface{}{"object": object},
	}
	payload, err := json.Marshal(envelope)
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
	})
	return signed.Payload, signed.Header
}

func deliver(t *testing.T, svc *Service, eventID, eventType string, created int64, object map[string]interface{}) (*WebhookResult, error) {
	t.Helper()
	payload, header := signedDelivery(t, eventID, eventType, created, object)
	return svc.HandleWebhook(context.Background(), payload, header)
}

func checkoutObject(userID, planID, subscriptionID, customerID string, start, end int64) map[string]interface{} {
	obj := map[string]interface{}{
		"id":       "cs_test_" + subscriptionID,
		"object":   "checkout.session",
		"mode":     "subscription",
		"customer": customerID,
		"metadata": map[string]interface{}{
			"user_id": userID,
			"plan_id": planID,
		},
	}
	if start > 0 {
		obj["subscription"] = map[string]interface{}{
			"id":                   subscriptionID,
			"object":               "subscription",
			"customer":             customerID,
			"status":               "active",
			"current_period_start": start,
			"current_period_end":   end,
		}
	} else {
		obj["subscription"] = subscriptionID
	}
	return obj
}

func subscriptionObject(subscriptionID, status string, start, end int64, cancelAtPeriodEnd bool) map[string]interface{} {
	return map[string]interface{}{
		"id":                   subscriptionID,
		"object":               "subscription",
		"status":               status,
		"cancel_at_period_end": cancelAtPeriodEnd,
		"items": map[string]interface{}{
			"object": "list",
			"data": []map[string]interface{}{
				{
					"id":                   "si_" + subscriptionID,
					"object":               "subscription_item",
					"current_period_start": start,
					"current_period_end":   end,
				},
			},
		},
	}
}

type fakeGateway struct {
	mu        sync.Mutex
	checkouts []CheckoutRequest
	portals   []string
	err       error
	block     bool
}

func (f *fakeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*GatewaySession, error) {
	f.mu.Lock()
	f.checkouts = append(f.checkouts, req)
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return &GatewaySession{ID: "cs_test_1", URL: "https://checkout.stripe.test/cs_test_1"}, nil
}

func (f *fakeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*GatewaySession, error) {
	f.mu.Lock()
	f.portals = append(f.portals, customerID)
	f.mu.Unlock()
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	return &GatewaySession{ID: "bps_test_1", URL: "https://billing.stripe.test/p/session/bps_test_1"}, nil
}

func (f *fakeGateway) wait(ctx context.Context) error {
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return f.err
}

func loadSubscriptions(t *testing.T, db *gorm.DB, userID string) []models.UserSubscription {
	t.Helper()
	var subs []models.UserSubscription
	require.NoError(t, db.Where("user_id = ?", userID).Find(&subs).Error)
	return subs
}

func reloadUser(t *testing.T, db *gorm.DB, userID string) *models.User {
	t.Helper()
	var user models.User
	require.NoError(t, db.Where("id = ?", userID).First(&user).Error)
	return &user
}
