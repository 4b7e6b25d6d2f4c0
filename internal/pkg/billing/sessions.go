package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	endpointCheckoutSession = "checkout_session"
	endpointPortalSession   = "portal_session"
)

// CheckoutInput is a request to open a hosted checkout for a plan.
type CheckoutInput struct {
	UserID     string
	PlanID     string
	SuccessURL string
	CancelURL  string
}

// CreateCheckoutSession opens a hosted checkout for the plan and stamps the
// user and plan ids into the session metadata.
func (s *Service) CreateCheckoutSession(ctx context.Context, in CheckoutInput) (*GatewaySession, error) {
	if s.gateway == nil {
		return nil, ErrNotConfigured
	}
	plan, err := s.repo.FindPlanByID(ctx, strings.TrimSpace(in.PlanID))
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetUserByID(ctx, strings.TrimSpace(in.UserID))
	if err != nil {
		return nil, err
	}

	currency := s.cfg.Currency
	if plan.Currency != "" {
		currency = normalizeCurrency(plan.Currency)
	}
	req := CheckoutRequest{
		UserID:        user.ID,
		PlanID:        plan.ID,
		PlanName:      plan.Name,
		Currency:      currency,
		UnitAmount:    plan.UnitAmount(),
		Interval:      normalizeInterval(plan.Interval),
		CustomerID:    user.CustomerID(),
		CustomerEmail: user.Email,
		SuccessURL:    in.SuccessURL,
		CancelURL:     in.CancelURL,
	}

	session, err := s.callGateway(ctx, endpointCheckoutSession, func(ctx context.Context) (*GatewaySession, error) {
		return s.gateway.CreateCheckoutSession(ctx, req)
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Str("plan_id", plan.ID).Msg("checkout session failed")
		return nil, err
	}
	s.log.Info().Str("user_id", user.ID).Str("plan_id", plan.ID).Str("session_id", session.ID).Msg("checkout session created")
	return session, nil
}

// CreatePortalSession opens the self-service portal for a user that already
// has a gateway customer.
func (s *Service) CreatePortalSession(ctx context.Context, userID, returnURL string) (*GatewaySession, error) {
	if s.gateway == nil {
		return nil, ErrNotConfigured
	}
	user, err := s.repo.GetUserByID(ctx, strings.TrimSpace(userID))
	if err != nil {
		return nil, err
	}
	if !user.HasStripeCustomer() {
		return nil, ErrNoCustomer
	}
	customerID := user.CustomerID()

	session, err := s.callGateway(ctx, endpointPortalSession, func(ctx context.Context) (*GatewaySession, error) {
		return s.gateway.CreatePortalSession(ctx, customerID, returnURL)
	})
	if err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Msg("portal session failed")
		return nil, err
	}
	return session, nil
}

// callGateway runs one outbound call under the configured deadline. There is
// no retry here.
func (s *Service) callGateway(ctx context.Context, endpoint string, call func(context.Context) (*GatewaySession, error)) (*GatewaySession, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.GatewayTimeout)
	defer cancel()

	start := time.Now()
	session, err := call(ctx)
	s.metrics.RecordAPICallDuration(endpoint, time.Since(start))
	if err == nil && (session == nil || session.URL == "") {
		err = errors.New("gateway returned no session url")
	}
	if err != nil {
		s.metrics.RecordAPICall(endpoint, "error")
		if errors.Is(err, ErrGatewayUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	s.metrics.RecordAPICall(endpoint, "success")
	return session, nil
}
