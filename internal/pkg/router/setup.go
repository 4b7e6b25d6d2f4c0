package router

import (
	"github.com/ManuelReschke/subscription-engine/app/controllers"
	"github.com/ManuelReschke/subscription-engine/app/repository"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/billing"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/cache"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies is everything the routers need to build their handlers.
type Dependencies struct {
	Service   *billing.Service
	Catalog   *cache.PlanCatalog
	Users     repository.UserRepository
	JWTSecret string
	Logger    zerolog.Logger
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// MetricsUsers guards /metrics with basic auth when non-empty.
	MetricsUsers map[string]string
	Limiter      fiber.Handler
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	bc := controllers.NewBillingController(deps.Service, deps.Catalog, deps.Users, deps.Logger)
	setup(app, NewSystemRouter(deps), NewApiRouter(bc, deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
