package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linemk/market-checkout/internal/app/handlers"
	"github.com/linemk/market-checkout/internal/domain/models"
	"github.com/linemk/market-checkout/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/market-checkout/internal/lib/logger/handlers/urllog"
	"github.com/linemk/market-checkout/internal/service"
	"github.com/linemk/market-checkout/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services — всё, что нужно HTTP-слою
type Services struct {
	Orders      service.OrderService
	Payments    service.PaymentService
	Fulfillment service.FulfillmentService
	Profiles    storage.ProfileStorage
}

func NewRouter(log *slog.Logger, jwtSecret string, svc Services, gatherer prometheus.Gatherer) http.Handler {
	router := chi.NewRouter()
	// настройка middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(urllog.New(log))
	router.Use(middleware.Recoverer)

	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	// уведомления шлюза приходят без токена
	router.Post("/api/payments/notify", handlers.NotifyHandler(log, svc.Payments))

	router.Group(func(r chi.Router) {
		r.Use(jwtmiddleware.New(jwtSecret, svc.Profiles, log))

		// покупатель
		r.Group(func(r chi.Router) {
			r.Use(jwtmiddleware.RequireRole(models.RoleUser))
			r.Post("/api/orders", handlers.PlaceOrderHandler(log, svc.Orders))
			r.Get("/api/orders", handlers.ListOrdersHandler(log, svc.Orders))
			r.Get("/api/orders/{id}", handlers.GetOrderHandler(log, svc.Orders))
			r.Post("/api/orders/{id}/payment", handlers.InitiatePaymentHandler(log, svc.Payments))
		})

		// продавец или администратор
		r.Group(func(r chi.Router) {
			r.Use(jwtmiddleware.RequireRole(models.RoleVendor, models.RoleAdmin))
			r.Post("/api/orders/{id}/complete", handlers.CompleteOrderHandler(log, svc.Fulfillment))
			r.Post("/api/orders/{id}/delivery", handlers.RequestDeliveryHandler(log, svc.Fulfillment))
		})
	})

	return router
}
