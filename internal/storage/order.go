package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/linemk/market-checkout/internal/domain/models"
)

var ErrOrderNotFound = errors.New("order not found")

// OrderStorage описывает методы для работы с заказами и их позициями.
type OrderStorage interface {
	// CreateOrderTx вставляет заказ; CreatedAt/UpdatedAt заполняются из БД.
	CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) error
	// CreateOrderItemTx вставляет позицию заказа и заполняет её ID.
	CreateOrderItemTx(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error
	// GetOrderByID возвращает заказ вместе с позициями.
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	// GetOrdersByUserID возвращает заказы пользователя, новые первыми, без позиций.
	GetOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error)
	// LockOrderTx блокирует заказ в любом статусе.
	LockOrderTx(ctx context.Context, tx *sql.Tx, id string) (*models.Order, error)
	// LockPendingOrderTx блокирует заказ, только если он ещё PENDING, иначе ErrOrderNotFound.
	LockPendingOrderTx(ctx context.Context, tx *sql.Tx, id string) (*models.Order, error)
	GetOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID string) ([]*models.OrderItem, error)
	// UpdateStatusTx меняет статус только из from; false — заказ уже не в from (или его нет).
	UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to models.OrderStatus) (bool, error)
	// GetStalePendingOrderIDs — PENDING заказы, созданные раньше before.
	GetStalePendingOrderIDs(ctx context.Context, before time.Time, limit int) ([]string, error)
	// VendorOwnsAllItemsTx проверяет, что все товары заказа принадлежат продавцу.
	VendorOwnsAllItemsTx(ctx context.Context, tx *sql.Tx, orderID string, vendorID int64) (bool, error)
}

// orderRepository — конкретная реализация OrderStorage.
type orderRepository struct {
	db *sql.DB
}

// NewOrderRepository создаёт новый репозиторий заказов.
func NewOrderRepository(db *sql.DB) OrderStorage {
	return &orderRepository{db: db}
}

func (r *orderRepository) CreateOrderTx(ctx context.Context, tx *sql.Tx, order *models.Order) error {
	query := `INSERT INTO orders (id, user_id, total, status, created_at, updated_at)
	          VALUES ($1, $2, $3, $4, NOW(), NOW()) RETURNING created_at, updated_at`
	err := tx.QueryRowContext(ctx, query, order.ID, order.UserID, order.Total, order.Status).
		Scan(&order.CreatedAt, &order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

func (r *orderRepository) CreateOrderItemTx(ctx context.Context, tx *sql.Tx, item *models.OrderItem) error {
	query := `INSERT INTO order_items (order_id, product_id, quantity, price)
	          VALUES ($1, $2, $3, $4) RETURNING id`
	err := tx.QueryRowContext(ctx, query, item.OrderID, item.ProductID, item.Quantity, item.Price).Scan(&item.ID)
	if err != nil {
		return fmt.Errorf("failed to create order item: %w", err)
	}
	return nil
}

const selectOrder = "SELECT id, user_id, total, status, created_at, updated_at FROM orders"

func scanOrder(row interface{ Scan(dest ...any) error }) (*models.Order, error) {
	order := &models.Order{}
	if err := row.Scan(&order.ID, &order.UserID, &order.Total, &order.Status, &order.CreatedAt, &order.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	order, err := scanOrder(r.db.QueryRowContext(ctx, selectOrder+" WHERE id = $1", id))
	if err != nil {
		return nil, err
	}

	// Позиции с JOIN, чтобы получить имя товара
	rows, err := r.db.QueryContext(ctx, `
		SELECT i.id, i.order_id, i.product_id, p.name, i.quantity, i.price
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1
		ORDER BY i.id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		item := &models.OrderItem{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return order, nil
}

func (r *orderRepository) GetOrdersByUserID(ctx context.Context, userID int64) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, selectOrder+" WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []*models.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (r *orderRepository) LockOrderTx(ctx context.Context, tx *sql.Tx, id string) (*models.Order, error) {
	return scanOrder(tx.QueryRowContext(ctx, selectOrder+" WHERE id = $1 FOR UPDATE", id))
}

func (r *orderRepository) LockPendingOrderTx(ctx context.Context, tx *sql.Tx, id string) (*models.Order, error) {
	return scanOrder(tx.QueryRowContext(ctx, selectOrder+" WHERE id = $1 AND status = $2 FOR UPDATE",
		id, models.OrderStatusPending))
}

func (r *orderRepository) GetOrderItemsTx(ctx context.Context, tx *sql.Tx, orderID string) ([]*models.OrderItem, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, order_id, product_id, quantity, price FROM order_items WHERE order_id = $1 ORDER BY product_id", orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	var items []*models.OrderItem
	for rows.Next() {
		item := &models.OrderItem{}
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.Quantity, &item.Price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *orderRepository) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id string, from, to models.OrderStatus) (bool, error) {
	res, err := tx.ExecContext(ctx,
		"UPDATE orders SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2", id, from, to)
	if err != nil {
		return false, fmt.Errorf("failed to update order status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *orderRepository) GetStalePendingOrderIDs(ctx context.Context, before time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id FROM orders WHERE status = $1 AND created_at < $2 ORDER BY created_at LIMIT $3",
		models.OrderStatusPending, before, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query stale orders: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *orderRepository) VendorOwnsAllItemsTx(ctx context.Context, tx *sql.Tx, orderID string, vendorID int64) (bool, error) {
	var total, owned int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(*) FILTER (WHERE p.vendor_id = $2)
		FROM order_items i
		JOIN products p ON p.id = i.product_id
		WHERE i.order_id = $1`, orderID, vendorID).Scan(&total, &owned)
	if err != nil {
		return false, err
	}
	return total > 0 && total == owned, nil
}
