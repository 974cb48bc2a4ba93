package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/linemk/market-checkout/internal/domain/models"
)

var ErrDeliveryExists = errors.New("delivery request already exists")

const pqUniqueViolation = "23505"

// DeliveryStorage — заявки в логистику, одна на заказ.
type DeliveryStorage interface {
	CreateDeliveryRequestTx(ctx context.Context, tx *sql.Tx, req *models.DeliveryRequest) error
}

type deliveryRepository struct {
	db *sql.DB
}

func NewDeliveryRepository(db *sql.DB) DeliveryStorage {
	return &deliveryRepository{db: db}
}

// CreateDeliveryRequestTx опирается на UNIQUE(order_id): вторая заявка — ErrDeliveryExists
func (r *deliveryRepository) CreateDeliveryRequestTx(ctx context.Context, tx *sql.Tx, req *models.DeliveryRequest) error {
	query := `INSERT INTO delivery_requests (order_id, price, status, created_at)
	          VALUES ($1, $2, $3, NOW()) RETURNING id, created_at`
	err := tx.QueryRowContext(ctx, query, req.OrderID, req.Price, req.Status).Scan(&req.ID, &req.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return ErrDeliveryExists
		}
		return fmt.Errorf("failed to create delivery request: %w", err)
	}
	return nil
}
