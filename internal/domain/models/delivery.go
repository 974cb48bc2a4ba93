package models

import "time"

type DeliveryStatus string

const DeliveryStatusRequested DeliveryStatus = "REQUESTED"

// DeliveryRequest заявка в логистику; не больше одной на заказ
type DeliveryRequest struct {
	ID        int64          `json:"id"`
	OrderID   string         `json:"orderId"`
	Price     int64          `json:"price"`
	Status    DeliveryStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
}
