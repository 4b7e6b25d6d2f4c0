package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ManuelReschke/subscription-engine/app/controllers"
	"github.com/ManuelReschke/subscription-engine/app/repository"
	apiv1 "github.com/ManuelReschke/subscription-engine/internal/api/v1"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/billing"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/billing/prommetrics"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/cache"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/constants"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/database"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/env"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/logger"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/ratelimit"
	"github.com/ManuelReschke/subscription-engine/internal/pkg/router"
)

func main() {
	foundEnv := env.SetupEnvFile()
	log := logger.New(env.GetEnv("LOG_LEVEL", "info"), env.IsDev())
	if !foundEnv {
		log.Info().Msg("no .env file found, using process environment")
	}

	app := NewApplication(log)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info().Msg("shutting down")
		if err := app.Shutdown(); err != nil {
			log.Error().Err(err).Msg("shutdown failed")
		}
	}()

	addr := fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000"))
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func NewApplication(log zerolog.Logger) *fiber.App {
	database.SetupDatabase(log)
	redisClient := cache.SetupCache(log)
	return newApplication(log, database.GetDB(), redisClient)
}

// newApplication wires the app on already opened connections. redisClient may
// be nil, the plan cache and the limiter then stay in process.
func newApplication(log zerolog.Logger, db *gorm.DB, redisClient *redis.Client) *fiber.App {

	if _, err := apiv1.Load(context.Background()); err != nil {
		log.Warn().Err(err).Msg("openapi document is invalid")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	gateway, err := billing.NewStripeGateway(env.GetEnv("STRIPE_SECRET_KEY", ""), env.GetSeconds("STRIPE_API_TIMEOUT", billing.DefaultGatewayTimeout))
	var gw billing.Gateway
	if err != nil {
		log.Warn().Err(err).Msg("stripe gateway disabled, session endpoints will answer 503")
	} else {
		gw = gateway
	}

	webhookSecret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")
	if webhookSecret == "" {
		log.Warn().Msg("STRIPE_WEBHOOK_SECRET is empty, every webhook delivery will be rejected")
	}

	svc := billing.NewServiceFromDB(db, gw, billing.Config{
		WebhookSecret:    webhookSecret,
		WebhookTolerance: env.GetSeconds("STRIPE_WEBHOOK_TOLERANCE", billing.DefaultWebhookTolerance),
		Currency:         env.GetEnv("STRIPE_CURRENCY", "usd"),
		GatewayTimeout:   env.GetSeconds("STRIPE_API_TIMEOUT", billing.DefaultGatewayTimeout),
		Logger:           &log,
		Metrics:          prommetrics.NewMetrics(registry, "subscription_engine"),
	})
	log.Info().Strs("event_types", billing.HandledEventTypes()).Msg("webhook dispatcher ready")

	repos := repository.NewFactory(db).GetRepositories()
	catalog := cache.NewPlanCatalog(repos.Plan, redisClient, env.GetSeconds("PLAN_CACHE_TTL", cache.DefaultPlanCatalogTTL), log)

	limitCfg := ratelimit.ConfigFromEnv()
	limitCfg.Skip = []string{constants.WebhookRoute}
	limitCfg.KeyFunc = controllers.GetClientIP
	limitCfg.Storage = ratelimit.NewRedisStorage(redisClient)

	metricsUsers := map[string]string{}
	if user := env.GetEnv("METRICS_USER", ""); user != "" {
		metricsUsers[user] = env.GetEnv("METRICS_PASSWORD", "")
	}

	// init fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 << 20,
		AppName:      "subscription-engine",
		ErrorHandler: jsonErrorHandler,
	})

	// recovery and logging
	app.Use(recover.New(), fiberlogger.New())

	// SWAGGER / OPENAPI
	app.Use(swagger.New(swagger.Config{
		BasePath:    constants.DocsBasePath,
		FilePath:    "openapi.yml",
		FileContent: apiv1.Document,
		Path:        "v1",
		Title:       "Subscription Engine API",
	}))

	// ROUTER
	router.InstallRouter(app, router.Dependencies{
		Service:      svc,
		Catalog:      catalog,
		Users:        repos.User,
		JWTSecret:    env.GetEnv("JWT_SECRET", ""),
		Logger:       log,
		Gatherer:     registry,
		MetricsUsers: metricsUsers,
		Limiter:      ratelimit.New(limitCfg),
	})

	return app
}

func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal server error"
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		msg = e.Message
	}
	return c.Status(code).JSON(fiber.Map{"success": false, "error": msg})
}
