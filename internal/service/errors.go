package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/linemk/market-checkout/internal/storage"
)

// Ошибки бизнес-логики. Транспортный слой сопоставляет их со статусами через errors.Is.
var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = storage.ErrInsufficientStock
	ErrForbidden         = errors.New("forbidden")
	ErrInvalidTransition = errors.New("invalid order status transition")
	ErrGateway           = errors.New("payment could not be initiated")
	ErrReconciliation    = errors.New("payment reconciliation failed")
	ErrDeliveryExists    = storage.ErrDeliveryExists

	// реэкспорт, чтобы хендлерам не тянуть storage
	ErrTransactionConflict = storage.ErrTransactionConflict
)

// Shortfall — нехватка по одному товару
type Shortfall struct {
	ProductID int64  `json:"productId"`
	Name      string `json:"name"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// InsufficientStockError перечисляет все нехватки заказа сразу
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", s.Name, s.Requested, s.Available))
	}
	return "insufficient stock: " + strings.Join(parts, "; ")
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

// Error — ошибка бизнес-логики с сообщением, которое можно показать пользователю
type Error struct {
	Kind    error
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func newError(kind error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
