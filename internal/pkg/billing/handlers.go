package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ManuelReschke/subscription-engine/app/models"
	"github.com/stripe/stripe-go/v83"
)

func (s *Service) handleCheckoutCompleted(ctx context.Context, event *stripe.Event) (Outcome, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return OutcomeError, fmt.Errorf("%w: checkout session: %v", ErrInvalidPayload, err)
	}
	logger := s.log.With().Str("event_id", event.ID).Str("checkout_session", session.ID).Logger()

	userID, planID := checkoutMetadata(&session)
	if userID == "" || planID == "" {
		logger.Warn().Err(ErrMissingMetadata).Msg("checkout completion cannot be joined")
		return OutcomeNoop, nil
	}
	logger = logger.With().Str("user_id", userID).Str("plan_id", planID).Logger()

	// Unknown user or plan cannot be fixed by redelivery.
	user, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			logger.Warn().Err(err).Msg("checkout completion for unknown user")
			return OutcomeNoop, nil
		}
		return OutcomeError, err
	}
	if _, err := s.repo.FindPlanByID(ctx, planID); err != nil {
		if errors.Is(err, ErrPlanNotFound) {
			logger.Warn().Err(err).Msg("checkout completion for unknown plan")
			return OutcomeNoop, nil
		}
		return OutcomeError, err
	}

	if err := s.repo.SetUserSubscriptionActive(ctx, user.ID, true); err != nil {
		return OutcomeError, err
	}

	if customerID := checkoutCustomerID(&session); customerID != "" && !user.HasStripeCustomer() {
		assigned, err := s.repo.SetCustomerIDIfEmpty(ctx, user.ID, customerID)
		if err != nil {
			return OutcomeError, err
		}
		if assigned {
			logger.Info().Str("customer_id", customerID).Msg("customer assigned to user")
		}
	}

	start, end, hasPeriod := periodFromRaw(nestedSubscriptionRaw(event.Data.Raw))
	if !hasPeriod {
		start = s.eventTime(event)
		end = start
	}

	platformSource := session.ID
	cancelAtPeriodEnd := false
	if session.Subscription != nil {
		if session.Subscription.ID != "" {
			platformSource = session.Subscription.ID
		}
		cancelAtPeriodEnd = session.Subscription.CancelAtPeriodEnd
	}

	previous, err := s.repo.FindSubscriptionByUserPlan(ctx, user.ID, planID)
	if err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
		return OutcomeError, err
	}

	sub := &models.UserSubscription{
		UserID:             user.ID,
		PlanID:             planID,
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
		CancelAtPeriodEnd:  cancelAtPeriodEnd,
		PlatformSource:     platformSource,
	}
	// A row with no period yet has to be created with the fallback bounds; an
	// existing row keeps the bounds it already has.
	if err := s.repo.UpsertUserSubscription(ctx, sub, hasPeriod || previous == nil); err != nil {
		return OutcomeError, err
	}

	if previous != nil {
		if previous.PlatformSource != platformSource {
			logger.Info().
				Str("previous_platform_source", previous.PlatformSource).
				Str("previous_status", previous.Status).
				Msg("subscription record reused for new gateway subscription")
		}
		if previous.Status != sub.Status {
			s.metrics.RecordSubscriptionTransition(previous.Status, sub.Status)
		}
	} else {
		s.metrics.RecordSubscriptionTransition("none", sub.Status)
	}

	logger.Info().Str("subscription_id", sub.ID).Str("platform_source", platformSource).Msg("checkout reconciled")
	return OutcomeHandled, nil
}

func (s *Service) handleSubscriptionCreated(ctx context.Context, event *stripe.Event) (Outcome, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return OutcomeError, fmt.Errorf("%w: subscription: %v", ErrInvalidPayload, err)
	}
	s.log.Info().
		Str("event_id", event.ID).
		Str("platform_source", sub.ID).
		Str("status", string(sub.Status)).
		Msg("subscription created at gateway")
	return OutcomeNoop, nil
}

func (s *Service) handleSubscriptionUpdated(ctx context.Context, event *stripe.Event) (Outcome, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return OutcomeError, fmt.Errorf("%w: subscription: %v", ErrInvalidPayload, err)
	}
	if sub.ID == "" {
		return OutcomeError, fmt.Errorf("%w: subscription id missing", ErrInvalidPayload)
	}
	logger := s.log.With().Str("event_id", event.ID).Str("platform_source", sub.ID).Logger()

	existing, err := s.repo.FindSubscriptionByPlatformSource(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			logger.Info().Msg("update for unknown subscription dropped")
			return OutcomeNoop, nil
		}
		return OutcomeError, err
	}

	status := normalizeStatus(string(sub.Status))
	cancelAtPeriodEnd := sub.CancelAtPeriodEnd
	state := SubscriptionState{
		Status:            status,
		CancelAtPeriodEnd: &cancelAtPeriodEnd,
	}
	if start, end, ok := periodFromRaw(event.Data.Raw); ok {
		state.CurrentPeriodStart = &start
		state.CurrentPeriodEnd = &end
	}

	if err := s.repo.UpdateSubscriptionState(ctx, existing.ID, state); err != nil {
		return OutcomeError, err
	}
	if err := s.repo.SetUserSubscriptionActive(ctx, existing.UserID, status == models.SubscriptionStatusActive); err != nil {
		return OutcomeError, err
	}
	if existing.Status != status {
		s.metrics.RecordSubscriptionTransition(existing.Status, status)
	}

	logger.Info().
		Str("user_id", existing.UserID).
		Str("gateway_status", string(sub.Status)).
		Str("status", status).
		Bool("cancel_at_period_end", cancelAtPeriodEnd).
		Msg("subscription updated")
	return OutcomeHandled, nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) (Outcome, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return OutcomeError, fmt.Errorf("%w: subscription: %v", ErrInvalidPayload, err)
	}
	if sub.ID == "" {
		return OutcomeError, fmt.Errorf("%w: subscription id missing", ErrInvalidPayload)
	}
	logger := s.log.With().Str("event_id", event.ID).Str("platform_source", sub.ID).Logger()

	existing, err := s.repo.FindSubscriptionByPlatformSource(ctx, sub.ID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			logger.Info().Msg("delete for unknown subscription dropped")
			return OutcomeNoop, nil
		}
		return OutcomeError, err
	}

	if err := s.repo.UpdateSubscriptionState(ctx, existing.ID, SubscriptionState{Status: models.SubscriptionStatusCanceled}); err != nil {
		return OutcomeError, err
	}
	if err := s.repo.SetUserSubscriptionActive(ctx, existing.UserID, false); err != nil {
		return OutcomeError, err
	}
	if existing.Status != models.SubscriptionStatusCanceled {
		s.metrics.RecordSubscriptionTransition(existing.Status, models.SubscriptionStatusCanceled)
	}

	logger.Info().Str("user_id", existing.UserID).Msg("subscription canceled")
	return OutcomeHandled, nil
}

func (s *Service) handlePaymentSucceeded(ctx context.Context, event *stripe.Event) (Outcome, error) {
	return s.logInvoice(event, "payment succeeded")
}

func (s *Service) handlePaymentFailed(ctx context.Context, event *stripe.Event) (Outcome, error) {
	return s.logInvoice(event, "payment failed")
}

func (s *Service) logInvoice(event *stripe.Event, msg string) (Outcome, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return OutcomeError, fmt.Errorf("%w: invoice: %v", ErrInvalidPayload, err)
	}
	entry := s.log.Info().
		Str("event_id", event.ID).
		Str("invoice_id", invoice.ID).
		Int64("amount_due", invoice.AmountDue).
		Int64("amount_paid", invoice.AmountPaid).
		Str("currency", string(invoice.Currency))
	if invoice.Customer != nil {
		entry = entry.Str("customer_id", invoice.Customer.ID)
	}
	entry.Msg(msg)
	return OutcomeNoop, nil
}

// checkoutMetadata reads the join keys stamped at session creation. Both the
// snake_case keys written by this service and the camelCase keys of older
// sessions are accepted.
func checkoutMetadata(session *stripe.CheckoutSession) (string, string) {
	userID := metadataValue(session.Metadata, MetadataUserID, "userId")
	planID := metadataValue(session.Metadata, MetadataPlanID, "planId")
	if (userID == "" || planID == "") && session.Subscription != nil {
		if userID == "" {
			userID = metadataValue(session.Subscription.Metadata, MetadataUserID, "userId")
		}
		if planID == "" {
			planID = metadataValue(session.Subscription.Metadata, MetadataPlanID, "planId")
		}
	}
	return userID, planID
}

func metadataValue(md map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(md[k]); v != "" {
			return v
		}
	}
	return ""
}

func checkoutCustomerID(session *stripe.CheckoutSession) string {
	if session.Customer != nil && session.Customer.ID != "" {
		return session.Customer.ID
	}
	if session.Subscription != nil && session.Subscription.Customer != nil {
		return session.Subscription.Customer.ID
	}
	return ""
}

// nestedSubscriptionRaw returns the subscription object embedded in a checkout
// session, or nil when the session only carries the subscription id.
func nestedSubscriptionRaw(raw json.RawMessage) json.RawMessage {
	var envelope struct {
		Subscription json.RawMessage `json:"subscription"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil
	}
	if !bytes.HasPrefix(bytes.TrimSpace(envelope.Subscription), []byte("{")) {
		return nil
	}
	return envelope.Subscription
}

type periodBounds struct {
	CurrentPeriodStart int64 `json:"current_period_start"`
	CurrentPeriodEnd   int64 `json:"current_period_end"`
}

// periodFromRaw extracts the billing period of a subscription object. Older API
// versions carry it on the subscription, newer ones on each item.
func periodFromRaw(raw json.RawMessage) (time.Time, time.Time, bool) {
	if len(raw) == 0 {
		return time.Time{}, time.Time{}, false
	}
	var sub struct {
		periodBounds
		Items *struct {
			Data []periodBounds `json:"data"`
		} `json:"items"`
	}
	if err := json.Unmarshal(raw, &sub); err != nil {
		return time.Time{}, time.Time{}, false
	}
	if sub.CurrentPeriodStart > 0 && sub.CurrentPeriodEnd > 0 {
		return time.Unix(sub.CurrentPeriodStart, 0).UTC(), time.Unix(sub.CurrentPeriodEnd, 0).UTC(), true
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.CurrentPeriodStart > 0 && item.CurrentPeriodEnd > 0 {
				return time.Unix(item.CurrentPeriodStart, 0).UTC(), time.Unix(item.CurrentPeriodEnd, 0).UTC(), true
			}
		}
	}
	return time.Time{}, time.Time{}, false
}
