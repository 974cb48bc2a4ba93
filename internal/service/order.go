package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/linemk/market-checkout/internal/domain/models"
	"github.com/linemk/market-checkout/internal/events"
	"github.com/linemk/market-checkout/internal/metrics"
	"github.com/linemk/market-checkout/internal/storage"
)

// сколько просроченных заказов отменяется за один проход
const staleOrdersBatch = 100

// products.stock и order_items.quantity — INT в базе
const maxLineQuantity = math.MaxInt32

// OrderService — оформление заказа с резервированием остатков и компенсирующий возврат.
type OrderService interface {
	PlaceOrder(ctx context.Context, ownerID int64, lines []models.OrderLineInput) (*models.Order, error)
	RestockOrder(ctx context.Context, orderID string) (bool, error)
	GetOrder(ctx context.Context, ownerID int64, orderID string) (*models.Order, error)
	ListOrders(ctx context.Context, ownerID int64) ([]*models.Order, error)
	ExpireStalePendingOrders(ctx context.Context, olderThan time.Time) (int, error)
}

type orderService struct {
	log         *slog.Logger
	tx          storage.TxRunner
	productRepo storage.ProductStorage
	orderRepo   storage.OrderStorage
	events      events.Publisher
	metrics     *metrics.Metrics
	newID       func() string
}

func NewOrderService(
	log *slog.Logger,
	tx storage.TxRunner,
	productRepo storage.ProductStorage,
	orderRepo storage.OrderStorage,
	publisher events.Publisher,
	m *metrics.Metrics,
) OrderService {
	return &orderService{
		log:         log,
		tx:          tx,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		events:      publisher,
		metrics:     m,
		newID:       uuid.NewString,
	}
}

// PlaceOrder проверяет остатки и одной транзакцией создаёт заказ, его позиции и списывает остатки.
// Либо применяется всё, либо ничего.
func (s *orderService) PlaceOrder(ctx context.Context, ownerID int64, lines []models.OrderLineInput) (*models.Order, error) {
	const op = "service.OrderService.PlaceOrder"
	logger := s.log.With(slog.String("op", op), slog.Int64("userID", ownerID))
	logger.Info("placing order", slog.Int("lines", len(lines)))
	started := time.Now()

	requested, err := collapseLines(lines)
	if err != nil {
		logger.Warn("invalid order lines", slog.Any("error", err))
		s.metrics.OrderPlaced(metrics.ResultRejected, time.Since(started).Seconds())
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ids := make([]int64, 0, len(requested))
	for id := range requested {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var order *models.Order
	err = s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		order = nil

		// Товары блокируются до конца транзакции
		products, err := s.productRepo.GetOrderableProductsTx(ctx, tx, ids)
		if err != nil {
			return fmt.Errorf("failed to get products: %w", err)
		}
		if len(products) < len(ids) {
			return newError(ErrNotFound, "some products not found")
		}

		// Собираем все нехватки, а не только первую
		var shortfalls []Shortfall
		var total int64
		for _, p := range products {
			qty := requested[p.ID]
			if qty > p.Stock {
				shortfalls = append(shortfalls, Shortfall{
					ProductID: p.ID, Name: p.Name, Requested: qty, Available: p.Stock,
				})
			}
			total += p.EffectivePrice() * int64(qty)
		}
		if len(shortfalls) > 0 {
			return &InsufficientStockError{Shortfalls: shortfalls}
		}

		o := &models.Order{
			ID:     s.newID(),
			UserID: ownerID,
			Total:  total,
			Status: models.OrderStatusPending,
		}
		if err := s.orderRepo.CreateOrderTx(ctx, tx, o); err != nil {
			return err
		}

		for _, p := range products {
			item := &models.OrderItem{
				OrderID:     o.ID,
				ProductID:   p.ID,
				ProductName: p.Name,
				Quantity:    requested[p.ID],
				Price:       p.EffectivePrice(),
			}
			if err := s.orderRepo.CreateOrderItemTx(ctx, tx, item); err != nil {
				return err
			}
			if err := s.productRepo.DecrementStockTx(ctx, tx, p.ID, item.Quantity); err != nil {
				return fmt.Errorf("failed to decrement stock of product %d: %w", p.ID, err)
			}
			o.Items = append(o.Items, item)
		}

		order = o
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientStock):
			logger.Warn("insufficient stock", slog.Any("error", err))
			s.metrics.OrderPlaced(metrics.ResultOutOfStock, time.Since(started).Seconds())
		case errors.Is(err, ErrNotFound):
			logger.Warn("products not found", slog.Any("error", err))
			s.metrics.OrderPlaced(metrics.ResultRejected, time.Since(started).Seconds())
		case errors.Is(err, ErrTransactionConflict):
			logger.Error("order transaction kept conflicting", slog.Any("error", err))
			s.metrics.OrderPlaced(metrics.ResultConflict, time.Since(started).Seconds())
		default:
			logger.Error("failed to place order", slog.Any("error", err))
			s.metrics.OrderPlaced(metrics.ResultFailed, time.Since(started).Seconds())
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.OrderPlaced(metrics.ResultPlaced, time.Since(started).Seconds())
	s.publish(ctx, logger, models.OrderEvent{
		Type:    models.EventOrderPlaced,
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.Total,
		Status:  order.Status,
	})

	logger.Info("order placed", slog.String("orderID", order.ID), slog.Int64("total", order.Total))
	return order, nil
}

// collapseLines суммирует количество по повторяющимся товарам
func collapseLines(lines []models.OrderLineInput) (map[int64]int, error) {
	if len(lines) == 0 {
		return nil, newError(ErrValidation, "order must contain at least one line")
	}
	requested := make(map[int64]int, len(lines))
	for _, l := range lines {
		if l.ProductID <= 0 {
			return nil, newError(ErrValidation, "invalid product id %d", l.ProductID)
		}
		if l.Quantity <= 0 {
			return nil, newError(ErrValidation, "quantity for product %d must be positive", l.ProductID)
		}
		if l.Quantity > maxLineQuantity-requested[l.ProductID] {
			return nil, newError(ErrValidation, "quantity for product %d is too large", l.ProductID)
		}
		requested[l.ProductID] += l.Quantity
	}
	return requested, nil
}

// RestockOrder возвращает остатки по всем позициям и отменяет заказ одной транзакцией.
// Если заказ уже не PENDING (или его нет), ничего не делает и возвращает false.
func (s *orderService) RestockOrder(ctx context.Context, orderID string) (bool, error) {
	const op = "service.OrderService.RestockOrder"
	logger := s.log.With(slog.String("op", op), slog.String("orderID", orderID))

	var order *models.Order
	var units int
	err := s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		order, units = nil, 0

		o, err := s.orderRepo.LockPendingOrderTx(ctx, tx, orderID)
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to lock order: %w", err)
		}

		items, err := s.orderRepo.GetOrderItemsTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := s.productRepo.IncrementStockTx(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return fmt.Errorf("failed to restock product %d: %w", item.ProductID, err)
			}
			units += item.Quantity
		}

		updated, err := s.orderRepo.UpdateStatusTx(ctx, tx, orderID, models.OrderStatusPending, models.OrderStatusCancelled)
		if err != nil {
			return err
		}
		if !updated {
			// строка заблокирована выше, сюда попадать не должны
			return fmt.Errorf("order %s left PENDING concurrently", orderID)
		}

		o.Status = models.OrderStatusCancelled
		o.Items = items
		order = o
		return nil
	})
	if err != nil {
		logger.Error("failed to restock order", slog.Any("error", err))
		return false, fmt.Errorf("%s: %w", op, err)
	}
	if order == nil {
		logger.Info("order is not pending, nothing to restock")
		return false, nil
	}

	s.metrics.UnitsRestocked(units)
	s.publish(ctx, logger, models.OrderEvent{
		Type:    models.EventOrderCancelled,
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.Total,
		Status:  order.Status,
	})

	logger.Info("order cancelled and restocked", slog.Int("units", units))
	return true, nil
}

// GetOrder возвращает заказ владельца; чужой заказ неотличим от несуществующего
func (s *orderService) GetOrder(ctx context.Context, ownerID int64, orderID string) (*models.Order, error) {
	const op = "service.OrderService.GetOrder"

	order, err := s.orderRepo.GetOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			return nil, fmt.Errorf("%s: %w", op, newError(ErrNotFound, "order not found"))
		}
		s.log.Error("failed to get order", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get order: %w", op, err)
	}
	if order.UserID != ownerID {
		return nil, fmt.Errorf("%s: %w", op, newError(ErrNotFound, "order not found"))
	}
	return order, nil
}

func (s *orderService) ListOrders(ctx context.Context, ownerID int64) ([]*models.Order, error) {
	const op = "service.OrderService.ListOrders"

	orders, err := s.orderRepo.GetOrdersByUserID(ctx, ownerID)
	if err != nil {
		s.log.Error("failed to get orders", slog.String("op", op), slog.Any("error", err))
		return nil, fmt.Errorf("%s: failed to get orders: %w", op, err)
	}
	return orders, nil
}

// ExpireStalePendingOrders отменяет с возвратом остатков заказы, оплата которых так и не пришла.
// Ошибка по одному заказу не останавливает остальные.
func (s *orderService) ExpireStalePendingOrders(ctx context.Context, olderThan time.Time) (int, error) {
	const op = "service.OrderService.ExpireStalePendingOrders"
	logger := s.log.With(slog.String("op", op))

	ids, err := s.orderRepo.GetStalePendingOrderIDs(ctx, olderThan, staleOrdersBatch)
	if err != nil {
		logger.Error("failed to get stale orders", slog.Any("error", err))
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	var expired int
	var errs []error
	for _, id := range ids {
		restocked, err := s.RestockOrder(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if restocked {
			expired++
		}
	}

	if expired > 0 {
		logger.Info("stale pending orders expired", slog.Int("count", expired))
	}
	return expired, errors.Join(errs...)
}

// publish вызывается после коммита; сбой брокера не откатывает заказ
func (s *orderService) publish(ctx context.Context, logger *slog.Logger, event models.OrderEvent) {
	if err := s.events.Publish(ctx, event); err != nil {
		logger.Error("failed to publish event", slog.String("type", event.Type), slog.Any("error", err))
	}
}
