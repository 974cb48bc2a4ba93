package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/market-checkout/internal/domain/models"
	"github.com/linemk/market-checkout/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/market-checkout/internal/service"
)

// PlaceOrderRequest — корзина: товар и количество
type PlaceOrderRequest struct {
	Items []OrderLine `json:"items" validate:"required,min=1,dive"`
}

type OrderLine struct {
	ProductID int64 `json:"productId" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0,max=2147483647"`
}

// PlaceOrderHandler обрабатывает POST /api/orders
func PlaceOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.PlaceOrderHandler"
		logger := log.With(slog.String("op", op))

		profile, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			logger.Error("profile not found in context")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		var req PlaceOrderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Errors: "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil {
			logger.Error("invalid request: validation error", slog.Any("error", err))
			writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Errors: "validation error"})
			return
		}

		lines := make([]models.OrderLineInput, 0, len(req.Items))
		for _, item := range req.Items {
			lines = append(lines, models.OrderLineInput{ProductID: item.ProductID, Quantity: item.Quantity})
		}

		order, err := orders.PlaceOrder(r.Context(), profile.ID, lines)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, order)
	}
}

// ListOrdersHandler обрабатывает GET /api/orders
func ListOrdersHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.ListOrdersHandler"
		logger := log.With(slog.String("op", op))

		profile, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		list, err := orders.ListOrders(r.Context(), profile.ID)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, list)
	}
}

// GetOrderHandler обрабатывает GET /api/orders/{id}
func GetOrderHandler(log *slog.Logger, orders service.OrderService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.GetOrderHandler"
		logger := log.With(slog.String("op", op))

		profile, ok := jwtmiddleware.FromContext(r.Context())
		if !ok {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		id := chi.URLParam(r, "id")
		if !validOrderID(id) {
			writeJSON(w, logger, http.StatusNotFound, ErrorResponse{Errors: "order not found"})
			return
		}

		order, err := orders.GetOrder(r.Context(), profile.ID, id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}
