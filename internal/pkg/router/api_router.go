package router

import (
	"github.com/ManuelReschke/subscription-engine/app/controllers"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/constants"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/middleware"
	"github.com/gofiber/fiber/v2"
)

type ApiRouter struct {
	billing   *controllers.BillingController
	jwtSecret string
	limiter   fiber.Handler
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	handlers := []fiber.Handler{}
	if h.limiter != nil {
		handlers = append(handlers, h.limiter)
	}
	api := app.Group(constants.APIPrefix, handlers...)
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	// The webhook authenticates by signature, not by bearer token.
	app.Post(constants.WebhookRoute, h.billing.HandleWebhook)
	app.Get(constants.PlansRoute, h.billing.HandleListPlans)

	requireAuth := middleware.RequireJWT(h.jwtSecret)
	app.Post(constants.CheckoutRoute, requireAuth, h.billing.HandleCreateCheckoutSession)
	app.Post(constants.PortalRoute, requireAuth, h.billing.HandleCreatePortalSession)
	app.Get(constants.SubscriptionRoute, requireAuth, h.billing.HandleGetSubscription)
}

func NewApiRouter(bc *controllers.BillingController, deps Dependencies) *ApiRouter {
	return &ApiRouter{billing: bc, jwtSecret: deps.JWTSecret, limiter: deps.Limiter}
}
