package constants

// Route constants shared by the router, the rate limiter and the docs
const (
	APIPrefix           = "/api"
	StripePrefix        = "/api/stripe"
	WebhookRoute        = "/api/stripe/webhook"
	PlansRoute          = "/api/stripe/plans"
	CheckoutRoute       = "/api/stripe/create-checkout-session"
	PortalRoute         = "/api/stripe/create-portal-session"
	SubscriptionRoute   = "/api/stripe/subscription"
	MetricsRoute        = "/metrics"
	HealthRoute         = "/healthz"
	DocsBasePath        = "/docs/api/"
	SignatureHeaderName = "Stripe-Signature"
)
