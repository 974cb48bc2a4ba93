package models

import "time"

const (
	EventOrderPlaced    = "order.placed"
	EventOrderPaid      = "order.paid"
	EventOrderCancelled = "order.cancelled"
	EventOrderCompleted = "order.completed"
)

// OrderEvent событие жизненного цикла заказа, публикуется после коммита
type OrderEvent struct {
	Type       string      `json:"type"`
	OrderID    string      `json:"orderId"`
	UserID     int64       `json:"userId,omitempty"`
	Total      int64       `json:"total,omitempty"`
	Status     OrderStatus `json:"status"`
	OccurredAt time.Time   `json:"occurredAt"`
}
