package billing

import (
	"context"
	"slices"

	"github.com/stripe/stripe-go/v83"
)

const (
	EventCheckoutSessionCompleted stripe.EventType = "checkout.session.completed"
	EventSubscriptionCreated      stripe.EventType = "customer.subscription.created"
	EventSubscriptionUpdated      stripe.EventType = "customer.subscription.updated"
	EventSubscriptionDeleted      stripe.EventType = "customer.subscription.deleted"
	EventInvoicePaymentSucceeded  stripe.EventType = "invoice.payment_succeeded"
	EventInvoicePaymentFailed     stripe.EventType = "invoice.payment_failed"
)

type eventHandler func(s *Service, ctx context.Context, event *stripe.Event) (Outcome, error)

// eventHandlers is fixed at compile time. Types missing here are acknowledged
// and ignored.
var eventHandlers = map[stripe.EventType]eventHandler{
	EventCheckoutSessionCompleted: (*Service).handleCheckoutCompleted,
	EventSubscriptionCreated:      (*Service).handleSubscriptionCreated,
	EventSubscriptionUpdated:      (*Service).handleSubscriptionUpdated,
	EventSubscriptionDeleted:      (*Service).handleSubscriptionDeleted,
	EventInvoicePaymentSucceeded:  (*Service).handlePaymentSucceeded,
	EventInvoicePaymentFailed:     (*Service).handlePaymentFailed,
}

// HandledEventTypes lists the event types with a registered handler.
func HandledEventTypes() []string {
	out := make([]string, 0, len(eventHandlers))
	for t := range eventHandlers {
		out = append(out, string(t))
	}
	slices.Sort(out)
	return out
}

func (s *Service) dispatch(ctx context.Context, event *stripe.Event) (Outcome, error) {
	handler, ok := eventHandlers[event.Type]
	if !ok {
		s.log.Debug().Str("event_id", event.ID).Str("event_type", string(event.Type)).Msg("no handler for event type")
		return OutcomeIgnored, nil
	}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return OutcomeError, ErrInvalidPayload
	}
	return handler(s, ctx, event)
}
