package models

import "time"

// OrderStatus статус заказа
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// допустимые переходы; всё, чего нет в таблице, запрещено
var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusPaid: true, OrderStatusCancelled: true},
	OrderStatusPaid:      {OrderStatusCompleted: true},
	OrderStatusCompleted: {},
	OrderStatusCancelled: {},
}

// CanTransition проверяет, разрешён ли переход from -> to
func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

// Order представляет заказ покупателя.
// Total фиксируется в момент создания и больше не пересчитывается.
type Order struct {
	ID        string       `json:"id"`
	UserID    int64        `json:"userId"`
	Total     int64        `json:"total"`
	Status    OrderStatus  `json:"status"`
	Items     []*OrderItem `json:"items,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`
}

// OrderItem позиция заказа. Price — цена за единицу на момент оформления
type OrderItem struct {
	ID          int64  `json:"id"`
	OrderID     string `json:"orderId"`
	ProductID   int64  `json:"productId"`
	ProductName string `json:"productName,omitempty"` // заполняется через JOIN с products
	Quantity    int    `json:"quantity"`
	Price       int64  `json:"price"`
}

// OrderLineInput строка запроса на оформление заказа
type OrderLineInput struct {
	ProductID int64
	Quantity  int
}
