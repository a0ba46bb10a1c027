package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/meiduo/mall-backend/api/controllers"
	cartcontrollers "github.com/meiduo/mall-backend/api/controllers/cart"
	ordercontrollers "github.com/meiduo/mall-backend/api/controllers/orders"
	"github.com/meiduo/mall-backend/api/middleware"
	"github.com/meiduo/mall-backend/internal/cart"
	"github.com/meiduo/mall-backend/internal/checkout"
	"github.com/meiduo/mall-backend/internal/orders"
	"github.com/meiduo/mall-backend/pkg/config"
	"github.com/meiduo/mall-backend/pkg/db"
	"github.com/meiduo/mall-backend/pkg/logger"
	"github.com/meiduo/mall-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisP redis.Pinger,
	gatherer prometheus.Gatherer,
	cartService cart.Service,
	checkoutService checkout.Service,
	ordersService orders.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisP))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/cart", func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Get("/", cartcontrollers.List(cartService, cfg.Cart, logg))
			r.Post("/", cartcontrollers.Add(cartService, cfg.Cart, logg))
			r.Put("/", cartcontrollers.Set(cartService, cfg.Cart, logg))
			r.Delete("/", cartcontrollers.Remove(cartService, cfg.Cart, logg))
			r.Put("/selection", cartcontrollers.SelectAll(cartService, cfg.Cart, logg))
			r.With(middleware.Auth(cfg.JWT, logg)).Post("/merge", cartcontrollers.Merge(cartService, cfg.Cart, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))
			r.Route("/orders", func(r chi.Router) {
				r.Get("/settlement", ordercontrollers.Settlement(checkoutService, logg))
				r.Post("/", ordercontrollers.Place(checkoutService, logg))
				r.Get("/{orderID}", ordercontrollers.Get(ordersService, logg))
			})
		})

		r.With(middleware.PaymentSignature(cfg.Payment, logg)).
			Put("/payments/{orderID}/status", ordercontrollers.ConfirmPayment(ordersService, logg))
	})

	return r
}
