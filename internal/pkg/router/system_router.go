package router

import (
	"github.com/ManuelReschke/subscription-engine/internal/pkg/constants"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SystemRouter serves health and metrics.
type SystemRouter struct {
	gatherer     prometheus.Gatherer
	metricsUsers map[string]string
}

func (h SystemRouter) InstallRouter(app *fiber.App) {
	app.Get(constants.HealthRoute, func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	if h.gatherer == nil {
		return
	}
	metrics := adaptor.HTTPHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	if len(h.metricsUsers) > 0 {
		app.Get(constants.MetricsRoute, basicauth.New(basicauth.Config{Users: h.metricsUsers}), metrics)
		return
	}
	app.Get(constants.MetricsRoute, metrics)
}

func NewSystemRouter(deps Dependencies) *SystemRouter {
	return &SystemRouter{gatherer: deps.Gatherer, metricsUsers: deps.MetricsUsers}
}
