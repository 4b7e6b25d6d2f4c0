package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/ManuelReschke/subscription-engine/app/models"
	"github.com/rs/zerolog"
	"github.com/stripe/stripe-go/v83"
	"gorm.io/gorm"
)

// Outcome describes what ingestion did with a verified event.
type Outcome string

const (
	OutcomeHandled   Outcome = "handled"
	OutcomeNoop      Outcome = "noop"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeError     Outcome = "error"
)

// Config holds the runtime settings of the billing service.
type Config struct {
	WebhookSecret    string
	WebhookTolerance time.Duration
	Currency         string
	GatewayTimeout   time.Duration

	Logger  *zerolog.Logger
	Metrics Metrics
	Now     func() time.Time
}

// WebhookResult is returned for every verified event, including ignored and
// duplicate deliveries.
type WebhookResult struct {
	EventID   string
	EventType string
	Outcome   Outcome
}

// Service reconciles gateway events into local subscription state and opens
// checkout and portal sessions.
type Service struct {
	repo    Repository
	gateway Gateway
	cfg     Config
	log     zerolog.Logger
	metrics Metrics
	now     func() time.Time
}

// NewService creates a billing service from an injected repository and gateway.
// gateway may be nil when only webhook ingestion is needed.
func NewService(repo Repository, gateway Gateway, cfg Config) *Service {
	if cfg.WebhookTolerance <= 0 {
		cfg.WebhookTolerance = DefaultWebhookTolerance
	}
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = DefaultGatewayTimeout
	}
	cfg.Currency = normalizeCurrency(cfg.Currency)

	s := &Service{
		repo:    repo,
		gateway: gateway,
		cfg:     cfg,
		log:     zerolog.Nop(),
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
	if cfg.Logger != nil {
		s.log = cfg.Logger.With().Str("component", "billing").Logger()
	}
	if s.metrics == nil {
		s.metrics = &NoopMetrics{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, gateway Gateway, cfg Config) *Service {
	return NewService(NewRepository(db), gateway, cfg)
}

// HandleWebhook verifies, journals and dispatches one gateway delivery.
// payload must be the raw request body. A returned error means the delivery
// should be answered with a non-2xx status so the gateway retries it.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signatureHeader string) (*WebhookResult, error) {
	event, err := VerifyWebhookSignature(payload, signatureHeader, s.cfg.WebhookSecret, s.cfg.WebhookTolerance)
	if err != nil {
		reason := "invalid_payload"
		if errors.Is(err, ErrInvalidSignature) {
			reason = "invalid_signature"
		}
		s.metrics.RecordWebhookRejected(reason)
		s.log.Warn().Err(err).Str("reason", reason).Msg("webhook rejected")
		return nil, err
	}

	result := &WebhookResult{EventID: event.ID, EventType: string(event.Type)}
	logger := s.log.With().Str("event_id", event.ID).Str("event_type", string(event.Type)).Logger()

	journal, err := s.recordWebhookEvent(ctx, &event, payload)
	if err != nil {
		s.metrics.RecordWebhookEvent(result.EventType, string(OutcomeError))
		logger.Error().Err(err).Msg("webhook journal write failed")
		return nil, err
	}
	if journal.ProcessedCleanly() {
		result.Outcome = OutcomeDuplicate
		s.metrics.RecordWebhookEvent(result.EventType, string(result.Outcome))
		logger.Info().Str("outcome", string(result.Outcome)).Msg("webhook already processed")
		return result, nil
	}

	start := time.Now()
	outcome, dispatchErr := s.dispatch(ctx, &event)
	s.metrics.RecordWebhookProcessingDuration(result.EventType, time.Since(start))

	errMsg := ""
	if dispatchErr != nil {
		outcome = OutcomeError
		errMsg = dispatchErr.Error()
	}
	result.Outcome = outcome
	s.metrics.RecordWebhookEvent(result.EventType, string(outcome))

	if err := s.repo.MarkWebhookProcessed(ctx, journal.ID, errMsg); err != nil {
		logger.Error().Err(err).Msg("webhook journal update failed")
		if dispatchErr == nil {
			return nil, err
		}
	}

	if dispatchErr != nil {
		logger.Error().Err(dispatchErr).Str("outcome", string(outcome)).Msg("webhook handler failed")
		return nil, dispatchErr
	}
	logger.Info().Str("outcome", string(outcome)).Msg("webhook processed")
	return result, nil
}

// recordWebhookEvent persists a verified delivery idempotently and returns the
// stored journal row.
func (s *Service) recordWebhookEvent(ctx context.Context, event *stripe.Event, payload []byte) (*models.BillingWebhookEvent, error) {
	eventID := strings.TrimSpace(event.ID)
	if eventID == "" {
		sum := sha256.Sum256(payload)
		eventID = "hash:" + hex.EncodeToString(sum[:])
	}

	row := &models.BillingWebhookEvent{
		Provider:        models.BillingProviderStripe,
		ProviderEventID: eventID,
		EventType:       string(event.Type),
		PayloadJSON:     string(payload),
		SignatureValid:  true,
	}
	_, stored, err := s.repo.CreateWebhookEventIfNotExists(ctx, row)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// GetActiveSubscription returns the user's active subscription with its plan.
func (s *Service) GetActiveSubscription(ctx context.Context, userID string) (*models.UserSubscription, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserNotFound
	}
	return s.repo.GetActiveSubscriptionByUser(ctx, userID)
}

// eventTime is the gateway-side creation time of the event, so that a
// redelivered event produces the same fallback values as the first one.
func (s *Service) eventTime(event *stripe.Event) time.Time {
	if event.Created > 0 {
		return time.Unix(event.Created, 0).UTC()
	}
	return s.now().UTC()
}
