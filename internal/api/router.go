package api

import (
	"log/slog"
	"net/http"

	"donation-service/internal/auth"
	"donation-service/internal/config"
	"donation-service/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

const WebhookPath = "/api/webhooks/cashfree"

type Dependencies struct {
	Store      DonationStore
	Gateway    PaymentGateway
	Reconciler DonationReconciler
	Tokens     *auth.Tokens
	Pinger     Pinger
	Webhook    http.Handler
	Logger     *slog.Logger
}

// NewRouter creates the Chi router with all routes mounted.
func NewRouter(deps Dependencies, cfg config.Config) http.Handler {
	h := newHandlers(deps, cfg.Gateway)

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/liveness", h.Liveness)
	r.Get("/readiness", h.Readiness)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Handle(WebhookPath, deps.Webhook)

	r.Route("/api/donations", func(r chi.Router) {
		r.Post("/", h.CreateDonation)
		r.Post("/{id}/verify", h.VerifyPayment)
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(deps.Tokens.RequireAdmin)
		r.Get("/donations", h.ListDonations)
		r.Get("/donations/export", h.ExportDonations)
	})

	return newCORS(cfg.Server).Handler(r)
}

func newCORS(cfg config.Server) *cors.Cors {
	return cors.New(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type",
			"Authorization",
			"X-Webhook-Signature",
			"X-Webhook-Timestamp",
			"X-Webhook-Version",
		},
		MaxAge: 600,
	})
}
