package controllers

import (
	"errors"
	"time"

	"github.com/ManuelReschke/subscription-engine/app/models"
	"github.com/ManuelReschke/subscription-engine/app/repository"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/billing"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/cache"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/constants"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/entitlements"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/usercontext"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

type checkoutSessionRequest struct {
	PlanID     string `json:"planId" validate:"required,uuid"`
	SuccessURL string `json:"successUrl" validate:"required,url"`
	CancelURL  string `json:"cancelUrl" validate:"required,url"`
}

type portalSessionRequest struct {
	ReturnURL string `json:"returnUrl" validate:"required,url"`
}

type planResponse struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Price      string   `json:"price"`
	UnitAmount int64    `json:"unit_amount"`
	Currency   string   `json:"currency"`
	Interval   string   `json:"interval"`
	Platforms  []string `json:"platform_availability"`
	Features   []string `json:"features"`
}

type subscriptionResponse struct {
	ID                 string        `json:"id"`
	Status             string        `json:"status"`
	CurrentPeriodStart string        `json:"current_period_start"`
	CurrentPeriodEnd   string        `json:"current_period_end"`
	CancelAtPeriodEnd  bool          `json:"cancel_at_period_end"`
	Plan               *planResponse `json:"plan,omitempty"`
}

// BillingController serves the webhook, plan catalog and session endpoints.
type BillingController struct {
	svc      *billing.Service
	catalog  *cache.PlanCatalog
	users    repository.UserRepository
	validate *validator.Validate
	log      zerolog.Logger
}

func NewBillingController(svc *billing.Service, catalog *cache.PlanCatalog, users repository.UserRepository, log zerolog.Logger) *BillingController {
	return &BillingController{
		svc:      svc,
		catalog:  catalog,
		users:    users,
		validate: validator.New(),
		log:      log.With().Str("component", "billing_controller").Logger(),
	}
}

// HandleWebhook ingests one gateway delivery. The body is read raw; it must
// never pass through a JSON body parser before verification.
func (bc *BillingController) HandleWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get(constants.SignatureHeaderName)

	result, err := bc.svc.HandleWebhook(c.UserContext(), rawBody, signature)
	if err != nil {
		return bc.writeError(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"received": true,
		"event_id": result.EventID,
		"outcome":  result.Outcome,
	})
}

// HandleListPlans returns the catalog, optionally filtered by ?platform=.
func (bc *BillingController) HandleListPlans(c *fiber.Ctx) error {
	platform := c.Query("platform")
	if platform != "" {
		if err := bc.validate.Var(platform, "oneof=mobile web"); err != nil {
			return badRequest(c, "platform must be mobile or web")
		}
	}

	plans, err := bc.catalog.List(c.UserContext(), platform)
	if err != nil {
		return bc.writeError(c, err)
	}

	out := make([]planResponse, 0, len(plans))
	for i := range plans {
		out = append(out, toPlanResponse(&plans[i]))
	}
	return c.JSON(fiber.Map{"success": true, "plans": out})
}

func (bc *BillingController) HandleCreateCheckoutSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	var req checkoutSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := bc.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	session, err := bc.svc.CreateCheckoutSession(c.UserContext(), billing.CheckoutInput{
		UserID:     userCtx.UserID,
		PlanID:     req.PlanID,
		SuccessURL: req.SuccessURL,
		CancelURL:  req.CancelURL,
	})
	if err != nil {
		return bc.writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success":   true,
		"sessionId": session.ID,
		"url":       session.URL,
	})
}

func (bc *BillingController) HandleCreatePortalSession(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	var req portalSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}
	if err := bc.validate.Struct(&req); err != nil {
		return badRequest(c, err.Error())
	}

	session, err := bc.svc.CreatePortalSession(c.UserContext(), userCtx.UserID, req.ReturnURL)
	if err != nil {
		return bc.writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "url": session.URL})
}

// HandleGetSubscription returns the caller's active subscription, or null.
func (bc *BillingController) HandleGetSubscription(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return unauthorized(c)
	}

	user, err := bc.users.GetByID(c.UserContext(), userCtx.UserID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return bc.writeError(c, billing.ErrUserNotFound)
		}
		return bc.writeError(c, err)
	}

	resp := fiber.Map{
		"success":                true,
		"is_subscription_active": user.SubscriptionActive,
		"subscription":           nil,
	}
	sub, err := bc.svc.GetActiveSubscription(c.UserContext(), user.ID)
	switch {
	case err == nil:
		resp["subscription"] = toSubscriptionResponse(sub)
	case errors.Is(err, billing.ErrSubscriptionNotFound):
	default:
		return bc.writeError(c, err)
	}
	grant := entitlements.ForSubscription(sub)
	resp["tier"] = grant.Tier
	resp["features"] = grant.Features
	return c.JSON(resp)
}

// writeError maps billing errors onto HTTP statuses.
func (bc *BillingController) writeError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := "internal_server_error"

	switch {
	case errors.Is(err, billing.ErrInvalidSignature):
		status, code = fiber.StatusBadRequest, "invalid_signature"
	case errors.Is(err, billing.ErrInvalidPayload):
		status, code = fiber.StatusBadRequest, "invalid_payload"
	case errors.Is(err, billing.ErrPlanNotFound):
		status, code = fiber.StatusNotFound, "plan_not_found"
	case errors.Is(err, billing.ErrUserNotFound):
		status, code = fiber.StatusNotFound, "user_not_found"
	case errors.Is(err, billing.ErrNoCustomer):
		status, code = fiber.StatusPreconditionFailed, "no_customer"
	case errors.Is(err, billing.ErrGatewayUnavailable):
		status, code = fiber.StatusBadGateway, "gateway_unavailable"
	case errors.Is(err, billing.ErrNotConfigured):
		status, code = fiber.StatusServiceUnavailable, "billing_not_configured"
	}

	if status >= fiber.StatusInternalServerError {
		bc.log.Error().Err(err).Str("path", c.Path()).Int("status", status).Msg("request failed")
	}
	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   code,
		"message": publicMessage(status, err),
	})
}

func publicMessage(status int, err error) string {
	if status == fiber.StatusInternalServerError {
		return "Internal server error"
	}
	return err.Error()
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"success": false, "error": "bad_request", "message": msg})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"success": false, "error": "unauthorized", "message": "Missing or invalid authentication"})
}

func toPlanResponse(p *models.SubscriptionPlan) planResponse {
	platforms := p.Platforms()
	if platforms == nil {
		platforms = []string{}
	}
	features := p.FeatureList()
	if features == nil {
		features = []string{}
	}
	return planResponse{
		ID:         p.ID,
		Name:       p.Name,
		Price:      p.Price.StringFixed(2),
		UnitAmount: p.UnitAmount(),
		Currency:   p.Currency,
		Interval:   p.Interval,
		Platforms:  platforms,
		Features:   features,
	}
}

func toSubscriptionResponse(s *models.UserSubscription) subscriptionResponse {
	out := subscriptionResponse{
		ID:                 s.ID,
		Status:             s.Status,
		CurrentPeriodStart: formatTime(s.CurrentPeriodStart),
		CurrentPeriodEnd:   formatTime(s.CurrentPeriodEnd),
		CancelAtPeriodEnd:  s.CancelAtPeriodEnd,
	}
	if s.Plan != nil {
		p := toPlanResponse(s.Plan)
		out.Plan = &p
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
