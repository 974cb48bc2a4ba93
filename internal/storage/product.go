package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/linemk/market-checkout/internal/domain/models"
)

var (
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// ProductStorage — доступ к каталогу со стороны оформления заказа.
// Остаток меняется только парами decrement (заказ) / increment (возврат) внутри транзакции.
type ProductStorage interface {
	// GetOrderableProductsTx возвращает неудалённые товары одобренных категорий и продавцов
	// и блокирует их строки до конца транзакции.
	GetOrderableProductsTx(ctx context.Context, tx *sql.Tx, ids []int64) ([]*models.Product, error)
	DecrementStockTx(ctx context.Context, tx *sql.Tx, id int64, quantity int) error
	IncrementStockTx(ctx context.Context, tx *sql.Tx, id int64, quantity int) error
}

type productRepository struct {
	db *sql.DB
}

func NewProductRepository(db *sql.DB) ProductStorage {
	return &productRepository{db: db}
}

// строки блокируются в порядке id, чтобы два заказа на одни и те же товары не ловили deadlock
const orderableProductsQuery = `
		SELECT p.id, p.name, p.price, p.sale_price, p.stock, p.vendor_id, p.category_id
		FROM products p
		JOIN categories c ON c.id = p.category_id
		JOIN vendors v ON v.id = p.vendor_id
		WHERE p.id = ANY($1) AND p.deleted = FALSE AND c.status = 'approved' AND v.status = 'approved'
		ORDER BY p.id
		FOR UPDATE OF p`

func (r *productRepository) GetOrderableProductsTx(ctx context.Context, tx *sql.Tx, ids []int64) ([]*models.Product, error) {
	rows, err := tx.QueryContext(ctx, orderableProductsQuery, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	var products []*models.Product
	for rows.Next() {
		p := &models.Product{}
		var salePrice sql.NullInt64
		if err := rows.Scan(&p.ID, &p.Name, &p.Price, &salePrice, &p.Stock, &p.VendorID, &p.CategoryID); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		if salePrice.Valid {
			v := salePrice.Int64
			p.SalePrice = &v
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (r *productRepository) DecrementStockTx(ctx context.Context, tx *sql.Tx, id int64, quantity int) error {
	res, err := tx.ExecContext(ctx,
		"UPDATE products SET stock = stock - $2 WHERE id = $1 AND stock >= $2", id, quantity)
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrInsufficientStock
	}
	return nil
}

func (r *productRepository) IncrementStockTx(ctx context.Context, tx *sql.Tx, id int64, quantity int) error {
	res, err := tx.ExecContext(ctx, "UPDATE products SET stock = stock + $2 WHERE id = $1", id, quantity)
	if err != nil {
		return fmt.Errorf("failed to increment stock: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrProductNotFound
	}
	return nil
}
