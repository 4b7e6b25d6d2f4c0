package billing

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v83"
)

const (
	// MetadataUserID and MetadataPlanID join an asynchronous checkout
	// completion back to the request that opened the session.
	MetadataUserID = "user_id"
	MetadataPlanID = "plan_id"

	DefaultGatewayTimeout = 15 * time.Second
)

// CheckoutRequest describes a hosted checkout for one recurring plan.
type CheckoutRequest struct {
	UserID        string
	PlanID        string
	PlanName      string
	Currency      string
	UnitAmount    int64
	Interval      string
	CustomerID    string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
}

// GatewaySession is a hosted session opened at the payment gateway.
type GatewaySession struct {
	ID  string
	URL string
}

// Gateway opens hosted sessions at the payment gateway.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*GatewaySession, error)
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (*GatewaySession, error)
}

// StripeGateway implements Gateway using the Stripe API.
type StripeGateway struct {
	client *stripe.Client
}

// NewStripeGateway creates a Stripe-backed gateway. The SDK's own retry loop is
// disabled; callers decide whether a failed session creation is retried.
func NewStripeGateway(secretKey string, timeout time.Duration) (*StripeGateway, error) {
	key := strings.TrimSpace(secretKey)
	if key == "" {
		return nil, ErrNotConfigured
	}
	if timeout <= 0 {
		timeout = DefaultGatewayTimeout
	}

	backends := stripe.NewBackendsWithConfig(&stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		MaxNetworkRetries: stripe.Int64(0),
	})
	return &StripeGateway{client: stripe.NewClient(key, stripe.WithBackends(backends))}, nil
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*GatewaySession, error) {
	metadata := map[string]string{
		MetadataUserID: req.UserID,
		MetadataPlanID: req.PlanID,
	}

	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionCreateLineItemPriceDataParams{
					Currency: stripe.String(req.Currency),
					ProductData: &stripe.CheckoutSessionCreateLineItemPriceDataProductDataParams{
						Name:        stripe.String(req.PlanName),
						Description: stripe.String(fmt.Sprintf("Subscription to %s", req.PlanName)),
					},
					UnitAmount: stripe.Int64(req.UnitAmount),
					Recurring: &stripe.CheckoutSessionCreateLineItemPriceDataRecurringParams{
						Interval: stripe.String(req.Interval),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.UserID),
		Metadata:          metadata,
		SubscriptionData: &stripe.CheckoutSessionCreateSubscriptionDataParams{
			Metadata: metadata,
		},
	}

	// Reuse the known customer so the gateway does not mint a second one.
	if req.CustomerID != "" {
		params.Customer = stripe.String(req.CustomerID)
	} else if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}

	session, err := g.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: create checkout session: %v", ErrGatewayUnavailable, err)
	}
	return &GatewaySession{ID: session.ID, URL: session.URL}, nil
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (*GatewaySession, error) {
	params := &stripe.BillingPortalSessionCreateParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}

	session, err := g.client.V1BillingPortalSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: create portal session: %v", ErrGatewayUnavailable, err)
	}
	return &GatewaySession{ID: session.ID, URL: session.URL}, nil
}
