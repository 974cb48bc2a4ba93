package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/market-checkout/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/market-checkout/internal/service"
)

type DeliveryRequest struct {
	Price int64 `json:"price" validate:"gte=0"`
}

// CompleteOrderHandler обрабатывает POST /api/orders/{id}/complete (продавец или админ)
func CompleteOrderHandler(log *slog.Logger, fulfillment service.FulfillmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.CompleteOrderHandler"
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

		order, err := fulfillment.CompleteOrder(r.Context(), profile, id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, order)
	}
}

// RequestDeliveryHandler обрабатывает POST /api/orders/{id}/delivery
func RequestDeliveryHandler(log *slog.Logger, fulfillment service.FulfillmentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.RequestDeliveryHandler"
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

		// пустое тело — доставка без доплаты
		var req DeliveryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			logger.Error("invalid request: decoding error", slog.Any("error", err))
			writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Errors: "invalid request"})
			return
		}
		if err := validate.Struct(req); err != nil {
			writeJSON(w, logger, http.StatusBadRequest, ErrorResponse{Errors: "validation error"})
			return
		}

		delivery, err := fulfillment.RequestDelivery(r.Context(), profile, id, req.Price)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusCreated, delivery)
	}
}
