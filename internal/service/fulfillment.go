package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/market-checkout/internal/domain/models"
	"github.com/linemk/market-checkout/internal/events"
	"github.com/linemk/market-checkout/internal/storage"
)

// FulfillmentService — действия продавца и администратора после оплаты
type FulfillmentService interface {
	CompleteOrder(ctx context.Context, caller *models.Profile, orderID string) (*models.Order, error)
	RequestDelivery(ctx context.Context, caller *models.Profile, orderID string, price int64) (*models.DeliveryRequest, error)
}

type fulfillmentService struct {
	log          *slog.Logger
	tx           storage.TxRunner
	orderRepo    storage.OrderStorage
	deliveryRepo storage.DeliveryStorage
	events       events.Publisher
}

func NewFulfillmentService(
	log *slog.Logger,
	tx storage.TxRunner,
	orderRepo storage.OrderStorage,
	deliveryRepo storage.DeliveryStorage,
	publisher events.Publisher,
) FulfillmentService {
	return &fulfillmentService{
		log:          log,
		tx:           tx,
		orderRepo:    orderRepo,
		deliveryRepo: deliveryRepo,
		events:       publisher,
	}
}

// CompleteOrder переводит PAID -> COMPLETED
func (s *fulfillmentService) CompleteOrder(ctx context.Context, caller *models.Profile, orderID string) (*models.Order, error) {
	const op = "service.FulfillmentService.CompleteOrder"
	logger := s.log.With(slog.String("op", op), slog.String("orderID", orderID))

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := s.lockForCaller(ctx, tx, caller, orderID)
		if err != nil {
			return err
		}
		if !models.CanTransition(o.Status, models.OrderStatusCompleted) {
			return newError(ErrInvalidTransition, "order is %s, only PAID orders can be completed", o.Status)
		}
		if _, err := s.orderRepo.UpdateStatusTx(ctx, tx, orderID, o.Status, models.OrderStatusCompleted); err != nil {
			return err
		}
		o.Status = models.OrderStatusCompleted
		order = o
		return nil
	})
	if err != nil {
		logger.Warn("failed to complete order", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if err := s.events.Publish(ctx, models.OrderEvent{
		Type:    models.EventOrderCompleted,
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.Total,
		Status:  order.Status,
	}); err != nil {
		logger.Error("failed to publish event", slog.String("type", models.EventOrderCompleted), slog.Any("error", err))
	}

	logger.Info("order completed", slog.Int64("by", caller.ID), slog.String("role", string(caller.Role)))
	return order, nil
}

// RequestDelivery создаёт заявку в логистику для завершённого заказа
func (s *fulfillmentService) RequestDelivery(ctx context.Context, caller *models.Profile, orderID string, price int64) (*models.DeliveryRequest, error) {
	const op = "service.FulfillmentService.RequestDelivery"
	logger := s.log.With(slog.String("op", op), slog.String("orderID", orderID))

	if price < 0 {
		return nil, fmt.Errorf("%s: %w", op, newError(ErrValidation, "delivery price must not be negative"))
	}

	req := &models.DeliveryRequest{
		OrderID: orderID,
		Price:   price,
		Status:  models.DeliveryStatusRequested,
	}
	err := s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		o, err := s.lockForCaller(ctx, tx, caller, orderID)
		if err != nil {
			return err
		}
		if o.Status != models.OrderStatusCompleted {
			return newError(ErrInvalidTransition, "order is %s, delivery needs a COMPLETED order", o.Status)
		}
		return s.deliveryRepo.CreateDeliveryRequestTx(ctx, tx, req)
	})
	if err != nil {
		logger.Warn("failed to request delivery", slog.Any("error", err))
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	logger.Info("delivery requested", slog.Int64("deliveryID", req.ID))
	return req, nil
}

// lockForCaller блокирует заказ и проверяет права: администратор или продавец всех товаров заказа
func (s *fulfillmentService) lockForCaller(ctx context.Context, tx *sql.Tx, caller *models.Profile, orderID string) (*models.Order, error) {
	if caller == nil {
		return nil, newError(ErrForbidden, "caller is not allowed to manage orders")
	}
	switch caller.Role {
	case models.RoleAdmin, models.RoleVendor:
	default:
		return nil, newError(ErrForbidden, "role %s is not allowed to manage orders", caller.Role)
	}

	o, err := s.orderRepo.LockOrderTx(ctx, tx, orderID)
	if errors.Is(err, storage.ErrOrderNotFound) {
		return nil, newError(ErrNotFound, "order not found")
	}
	if err != nil {
		return nil, err
	}

	if caller.Role == models.RoleVendor {
		owns, err := s.orderRepo.VendorOwnsAllItemsTx(ctx, tx, orderID, caller.ID)
		if err != nil {
			return nil, err
		}
		if !owns {
			return nil, newError(ErrForbidden, "order contains products of other vendors")
		}
	}
	return o, nil
}
