package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nmtruong/fulfillment-backend/api/controllers"
	ordercontrollers "github.com/nmtruong/fulfillment-backend/api/controllers/orders"
	webhookcontrollers "github.com/nmtruong/fulfillment-backend/api/controllers/webhooks"
	"github.com/nmtruong/fulfillment-backend/api/middleware"
	"github.com/nmtruong/fulfillment-backend/internal/orders"
	"github.com/nmtruong/fulfillment-backend/internal/payments"
	"github.com/nmtruong/fulfillment-backend/pkg/config"
	"github.com/nmtruong/fulfillment-backend/pkg/db"
	"github.com/nmtruong/fulfillment-backend/pkg/logger"
	"github.com/nmtruong/fulfillment-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	ordersSvc orders.Service,
	reconciler payments.Reconciler,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/momo/ipn", webhookcontrollers.MoMoIPN(reconciler, logg))
	})

	r.Route("/api/v1/orders", func(r chi.Router) {
		r.Post("/", ordercontrollers.Create(ordersSvc, logg))
		r.Get("/", ordercontrollers.List(ordersSvc, logg))

		r.Route("/{orderId}", func(r chi.Router) {
			r.Get("/", ordercontrollers.Detail(ordersSvc, logg))
			r.Get("/events", ordercontrollers.Events(ordersSvc, logg))

			r.Post("/confirm", ordercontrollers.Confirm(ordersSvc, logg))
			r.Post("/pickup", ordercontrollers.Pickup(ordersSvc, logg))
			r.Post("/deliver", ordercontrollers.Deliver(ordersSvc, logg))
			r.Post("/customer-confirm", ordercontrollers.CustomerConfirm(ordersSvc, logg))
			r.Post("/complete-cod-payment", ordercontrollers.CompleteCODPayment(ordersSvc, logg))
			r.Post("/return", ordercontrollers.Return(ordersSvc, logg))
			r.Post("/cancel", ordercontrollers.Cancel(ordersSvc, logg))
		})
	})

	return r
}
