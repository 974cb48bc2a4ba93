package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linemk/market-checkout/internal/domain/models"
	"github.com/linemk/market-checkout/internal/jwt-new/jwtmiddleware"
	"github.com/linemk/market-checkout/internal/service"
)

type InitiatePaymentResponse struct {
	RedirectURL string `json:"redirectUrl"`
}

// InitiatePaymentHandler обрабатывает POST /api/orders/{id}/payment
func InitiatePaymentHandler(log *slog.Logger, payments service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.InitiatePaymentHandler"
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

		redirectURL, err := payments.InitiatePayment(r.Context(), profile.ID, id)
		if err != nil {
			writeError(w, logger, err)
			return
		}
		writeJSON(w, logger, http.StatusOK, InitiatePaymentResponse{RedirectURL: redirectURL})
	}
}

// NotifyHandler принимает серверное уведомление шлюза POST /api/payments/notify.
// Не 200 — сигнал шлюзу повторить доставку.
func NotifyHandler(log *slog.Logger, payments service.PaymentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.NotifyHandler"
		logger := log.With(slog.String("op", op))

		if err := r.ParseForm(); err != nil {
			logger.Error("invalid notification: form parse error", slog.Any("error", err))
			http.Error(w, "invalid request", http.StatusBadRequest)
			return
		}

		n := models.PaymentNotification{
			SiteCode:             r.PostForm.Get("SiteCode"),
			TransactionID:        r.PostForm.Get("TransactionId"),
			TransactionReference: r.PostForm.Get("TransactionReference"),
			Amount:               r.PostForm.Get("Amount"),
			Status:               models.PaymentStatus(r.PostForm.Get("Status")),
			Optional1:            r.PostForm.Get("Optional1"),
			Optional2:            r.PostForm.Get("Optional2"),
			Optional3:            r.PostForm.Get("Optional3"),
			Optional4:            r.PostForm.Get("Optional4"),
			Optional5:            r.PostForm.Get("Optional5"),
			CurrencyCode:         r.PostForm.Get("CurrencyCode"),
			IsTest:               r.PostForm.Get("IsTest"),
			StatusMessage:        r.PostForm.Get("StatusMessage"),
			Hash:                 r.PostForm.Get("Hash"),
		}
		if err := validate.Struct(n); err != nil {
			logger.Error("invalid notification: validation error", slog.Any("error", err))
			http.Error(w, "invalid notification", http.StatusBadRequest)
			return
		}

		if err := payments.Reconcile(r.Context(), n); err != nil {
			switch {
			case errors.Is(err, service.ErrValidation):
				logger.Warn("notification rejected", slog.Any("error", err))
				http.Error(w, "invalid notification", http.StatusBadRequest)
			case errors.Is(err, service.ErrNotFound):
				logger.Warn("order for notification not found", slog.Any("error", err))
				http.Error(w, "order not found", http.StatusNotFound)
			default:
				logger.Error("failed to reconcile payment", slog.Any("error", err))
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
			return
		}

		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Success"))
	}
}
