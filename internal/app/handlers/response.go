package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/linemk/market-checkout/internal/service"
)

var validate = validator.New()

// ErrorResponse — тело ответа при ошибке
type ErrorResponse struct {
	Errors     string              `json:"errors"`
	Shortfalls []service.Shortfall `json:"shortfalls,omitempty"`
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", slog.Any("error", err))
	}
}

// writeError сопоставляет ошибку сервиса со статусом; внутренние детали наружу не отдаются
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var stockErr *service.InsufficientStockError
	if errors.As(err, &stockErr) {
		writeJSON(w, logger, http.StatusConflict, ErrorResponse{
			Errors:     stockErr.Error(),
			Shortfalls: stockErr.Shortfalls,
		})
		return
	}

	status, msg := http.StatusInternalServerError, "internal server error"
	switch {
	case errors.Is(err, service.ErrValidation):
		status, msg = http.StatusBadRequest, userMessage(err, "validation error")
	case errors.Is(err, service.ErrNotFound):
		status, msg = http.StatusNotFound, userMessage(err, "not found")
	case errors.Is(err, service.ErrForbidden):
		status, msg = http.StatusForbidden, userMessage(err, "forbidden")
	case errors.Is(err, service.ErrInvalidTransition):
		status, msg = http.StatusConflict, userMessage(err, "invalid order status")
	case errors.Is(err, service.ErrDeliveryExists):
		status, msg = http.StatusConflict, service.ErrDeliveryExists.Error()
	case errors.Is(err, service.ErrTransactionConflict):
		status, msg = http.StatusServiceUnavailable, "please try again"
	case errors.Is(err, service.ErrGateway):
		status, msg = http.StatusBadGateway, service.ErrGateway.Error()
	}

	if status == http.StatusInternalServerError {
		logger.Error("request failed", slog.Any("error", err))
	} else {
		logger.Warn("request rejected", slog.Int("status", status), slog.Any("error", err))
	}
	writeJSON(w, logger, status, ErrorResponse{Errors: msg})
}

func userMessage(err error, fallback string) string {
	var svcErr *service.Error
	if errors.As(err, &svcErr) {
		return svcErr.Message
	}
	return fallback
}

func validOrderID(id string) bool {
	return validate.Var(id, "required,uuid") == nil
}
