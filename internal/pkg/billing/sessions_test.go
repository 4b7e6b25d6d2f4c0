package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateCheckoutSession(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	svc := newTestService(t, db, gw)
	user := createTestUser(t, db, "u1@example.com")
	plan := createTestPlan(t, db, "Basic", "9.99")

	session, err := svc.CreateCheckoutSession(context.Background(), CheckoutInput{
		UserID:     user.ID,
		PlanID:     plan.ID,
		SuccessURL: "https://app.example.com/success",
		CancelURL:  "https://app.example.com/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.NotEmpty(t, session.URL)

	require.Len(t, gw.checkouts, 1)
	req := gw.checkouts[0]
	assert.Equal(t, user.ID, req.UserID)
	assert.Equal(t, plan.ID, req.PlanID)
	assert.Equal(t, "Basic", req.PlanName)
	assert.Equal(t, int64(999), req.UnitAmount)
	assert.Equal(t, "usd", req.Currency)
	assert.Equal(t, "month", req.Interval)
	assert.Equal(t, "u1@example.com", req.CustomerEmail)
	assert.Empty(t, req.CustomerID)
	assert.Equal(t, "https://app.example.com/success", req.SuccessURL)
	assert.Equal(t, "https://app.example.com/cancel", req.CancelURL)
}

func TestCreateCheckoutSessionReusesCustomer(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	svc := newTestService(t, db, gw)
	user := createTestUser(t, db, "u1@example.com")
	plan := createTestPlan(t, db, "Pro", "19.99")

	assigned, err := svc.repo.SetCustomerIDIfEmpty(context.Background(), user.ID, "cus_known")
	require.NoError(t, err)
	require.True(t, assigned)

	_, err = svc.CreateCheckoutSession(context.Background(), CheckoutInput{UserID: user.ID, PlanID: plan.ID})
	require.NoError(t, err)
	require.Len(t, gw.checkouts, 1)
	assert.Equal(t, "cus_known", gw.checkouts[0].CustomerID)
	assert.Equal(t, int64(1999), gw.checkouts[0].UnitAmount)
}

func TestCreateCheckoutSessionUnknownPlan(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	svc := newTestService(t, db, gw)
	user := createTestUser(t, db, "u1@example.com")

	_, err := svc.CreateCheckoutSession(context.Background(), CheckoutInput{UserID: user.ID, PlanID: "missing"})
	require.ErrorIs(t, err, ErrPlanNotFound)
	assert.Empty(t, gw.checkouts)
}

func TestCreateCheckoutSessionGatewayFailure(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{err: errors.New("connection refused")}
	svc := newTestService(t, db, gw)
	user := createTestUser(t, db, "u1@example.com")
	plan := createTestPlan(t, db, "Pro", "19.99")

	_, err := svc.CreateCheckoutSession(context.Background(), CheckoutInput{UserID: user.ID, PlanID: plan.ID})
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Len(t, gw.checkouts, 1)
}

func TestCreateCheckoutSessionTimeout(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{block: true}
	svc := NewServiceFromDB(db, gw, Config{GatewayTimeout: 20 * time.Millisecond})
	user := createTestUser(t, db, "u1@example.com")
	plan := createTestPlan(t, db, "Pro", "19.99")

	start := time.Now()
	_, err := svc.CreateCheckoutSession(context.Background(), CheckoutInput{UserID: user.ID, PlanID: plan.ID})
	require.ErrorIs(t, err, ErrGatewayUnavailable)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Len(t, gw.checkouts, 1)
}

func TestCreatePortalSessionRequiresCustomer(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	svc := newTestService(t, db, gw)
	user := createTestUser(t, db, "u1@example.com")

	_, err := svc.CreatePortalSession(context.Background(), user.ID, "https://app.example.com/account")
	require.ErrorIs(t, err, ErrNoCustomer)
	assert.Empty(t, gw.portals)

	_, err = svc.CreatePortalSession(context.Background(), "missing", "https://app.example.com/account")
	require.ErrorIs(t, err, ErrUserNotFound)
}

func TestCreatePortalSessionAfterCheckout(t *testing.T) {
	db := newTestDB(t)
	gw := &fakeGateway{}
	svc := newTestService(t, db, gw)
	user := createTestUser(t, db, "u1@example.com")
	plan := createTestPlan(t, db, "Pro", "19.99")

	_, err := deliver(t, svc, "evt_1", "checkout.session.completed", eventCreated,
		checkoutObject(user.ID, plan.ID, "sub_1", "cus_1", periodStart, periodEnd))
	require.NoError(t, err)

	session, err := svc.CreatePortalSession(context.Background(), user.ID, "https://app.example.com/account")
	require.NoError(t, err)
	assert.Contains(t, session.URL, "bps_test_1")
	assert.Equal(t, []string{"cus_1"}, gw.portals)
}

func TestSessionsWithoutGateway(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(t, db, nil)

	_, err := svc.CreateCheckoutSession(context.Background(), CheckoutInput{UserID: "u", PlanID: "p"})
	require.ErrorIs(t, err, ErrNotConfigured)
	_, err = svc.CreatePortalSession(context.Background(), "u", "https://app.example.com")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestNewStripeGatewayRequiresKey(t *testing.T) {
	_, err := NewStripeGateway("  ", time.Second)
	require.ErrorIs(t, err, ErrNotConfigured)

	gw, err := NewStripeGateway("sk_test_123", 0)
	require.NoError(t, err)
	assert.NotNil(t, gw)
}
