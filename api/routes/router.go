package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/reluxmarket/relux-backend/api/controllers"
	"github.com/reluxmarket/relux-backend/api/middleware"
	"github.com/reluxmarket/relux-backend/internal/orders"
	"github.com/reluxmarket/relux-backend/internal/payments"
	"github.com/reluxmarket/relux-backend/internal/payouts"
	"github.com/reluxmarket/relux-backend/internal/refunds"
	"github.com/reluxmarket/relux-backend/pkg/config"
	"github.com/reluxmarket/relux-backend/pkg/db"
	"github.com/reluxmarket/relux-backend/pkg/logger"
	"github.com/reluxmarket/relux-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	registry *prometheus.Registry,
	paymentsService payments.Service,
	ordersService orders.Service,
	refundsService refunds.Service,
	payoutsService payouts.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/v1/payments", func(r chi.Router) {
			r.Post("/intent", controllers.PaymentsCreateIntent(paymentsService, logg))
		})

		r.Route("/v1/orders", func(r chi.Router) {
			r.Post("/", controllers.OrdersConfirm(ordersService, logg))
			r.Get("/", controllers.OrdersList(ordersService, logg))
			r.Route("/{orderID}", func(r chi.Router) {
				r.Get("/", controllers.OrdersDetail(ordersService, logg))
				r.Post("/ship", controllers.OrdersShip(ordersService, logg))
				r.Post("/deliver", controllers.OrdersDeliver(ordersService, logg))
				r.Post("/complete", controllers.OrdersComplete(ordersService, logg))
				r.Post("/cancel", controllers.OrdersCancel(ordersService, logg))
				r.Post("/refund", controllers.RefundsRequest(refundsService, logg))
				r.Patch("/refund", controllers.RefundsRespond(refundsService, logg))
			})
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireAdmin(logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/v1/payouts", func(r chi.Router) {
			r.Get("/", controllers.AdminPayoutsList(payoutsService, logg))
			r.Get("/stats", controllers.AdminPayoutsStats(payoutsService, logg))
			r.Get("/export", controllers.AdminPayoutsExport(payoutsService, logg))
			r.Post("/", controllers.AdminPayoutsProcess(payoutsService, logg))
			r.Post("/batch", controllers.AdminPayoutsBatch(payoutsService, logg))
			r.Post("/{payoutID}/stage", controllers.AdminPayoutsStage(payoutsService, logg))
		})
	})

	return r
}
