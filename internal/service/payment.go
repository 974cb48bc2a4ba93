package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/linemk/market-checkout/internal/dedup"
	"github.com/linemk/market-checkout/internal/domain/models"
	"github.com/linemk/market-checkout/internal/events"
	"github.com/linemk/market-checkout/internal/metrics"
	"github.com/linemk/market-checkout/internal/storage"
)

// исходы обработки уведомления для метрик
const (
	outcomePaid      = "paid"
	outcomeCancelled = "cancelled"
	outcomeNoop      = "noop"
	outcomeDuplicate = "duplicate"
	outcomeRejected  = "rejected"
	outcomeFailed    = "failed"
)

// PaymentGateway — то, что сервису нужно от клиента шлюза
type PaymentGateway interface {
	BuildPaymentRequest(orderID string, total int64) *models.PaymentRequest
	PostPaymentRequest(ctx context.Context, req *models.PaymentRequest) (string, error)
	VerifyNotification(n *models.PaymentNotification) bool
}

type PaymentService interface {
	// InitiatePayment возвращает URL страницы оплаты для PENDING заказа владельца.
	InitiatePayment(ctx context.Context, ownerID int64, orderID string) (string, error)
	// Reconcile применяет уведомление шлюза к заказу. Повторная доставка безопасна.
	Reconcile(ctx context.Context, n models.PaymentNotification) error
}

type paymentService struct {
	log        *slog.Logger
	tx         storage.TxRunner
	orderRepo  storage.OrderStorage
	orders     OrderService
	gateway    PaymentGateway
	processed  dedup.Store
	events     events.Publisher
	metrics    *metrics.Metrics
	verifyHash bool
}

func NewPaymentService(
	log *slog.Logger,
	tx storage.TxRunner,
	orderRepo storage.OrderStorage,
	orders OrderService,
	gateway PaymentGateway,
	processed dedup.Store,
	publisher events.Publisher,
	m *metrics.Metrics,
	verifyHash bool,
) PaymentService {
	return &paymentService{
		log:        log,
		tx:         tx,
		orderRepo:  orderRepo,
		orders:     orders,
		gateway:    gateway,
		processed:  processed,
		events:     publisher,
		metrics:    m,
		verifyHash: verifyHash,
	}
}

func (s *paymentService) InitiatePayment(ctx context.Context, ownerID int64, orderID string) (string, error) {
	const op = "service.PaymentService.InitiatePayment"
	logger := s.log.With(slog.String("op", op), slog.String("orderID", orderID))

	order, err := s.orders.GetOrder(ctx, ownerID, orderID)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	if order.Status != models.OrderStatusPending {
		logger.Warn("payment requested for non-pending order", slog.String("status", string(order.Status)))
		return "", fmt.Errorf("%s: %w", op, newError(ErrInvalidTransition, "order is %s, payment is not possible", order.Status))
	}

	req := s.gateway.BuildPaymentRequest(order.ID, order.Total)
	redirectURL, err := s.gateway.PostPaymentRequest(ctx, req)
	if err != nil {
		// заказ остаётся PENDING, оплату можно запросить снова
		logger.Error("failed to initiate payment", slog.Any("error", err))
		s.metrics.PaymentRequested(false)
		return "", fmt.Errorf("%s: %w: %v", op, ErrGateway, err)
	}

	s.metrics.PaymentRequested(true)
	logger.Info("payment initiated")
	return redirectURL, nil
}

func (s *paymentService) Reconcile(ctx context.Context, n models.PaymentNotification) error {
	const op = "service.PaymentService.Reconcile"
	logger := s.log.With(
		slog.String("op", op),
		slog.String("orderID", n.TransactionReference),
		slog.String("status", string(n.Status)),
	)
	status := string(n.Status)

	if n.TransactionReference == "" || n.Status == "" {
		s.metrics.NotificationHandled(status, outcomeRejected)
		return fmt.Errorf("%s: %w", op, newError(ErrValidation, "TransactionReference and Status are required"))
	}
	if s.verifyHash && !s.gateway.VerifyNotification(&n) {
		logger.Warn("notification hash mismatch")
		s.metrics.NotificationHandled(status, outcomeRejected)
		return fmt.Errorf("%s: %w", op, newError(ErrValidation, "invalid notification hash"))
	}

	key := n.TransactionReference + ":" + status
	if seen, err := s.processed.Seen(ctx, key); err != nil {
		logger.Warn("dedup lookup failed", slog.Any("error", err))
	} else if seen {
		logger.Info("notification already processed")
		s.metrics.NotificationHandled(status, outcomeDuplicate)
		return nil
	}

	var outcome string
	var err error
	switch {
	case n.Status == models.PaymentStatusComplete:
		outcome, err = s.markPaid(ctx, logger, n.TransactionReference)
	case n.Status.IsFailure():
		var restocked bool
		restocked, err = s.orders.RestockOrder(ctx, n.TransactionReference)
		outcome = outcomeNoop
		if restocked {
			outcome = outcomeCancelled
		}
		if err != nil {
			err = fmt.Errorf("%w: %w", ErrReconciliation, err)
		}
	default:
		logger.Info("unmapped payment status, ignoring")
		outcome = outcomeNoop
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.metrics.NotificationHandled(status, outcomeRejected)
		} else {
			s.metrics.NotificationHandled(status, outcomeFailed)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := s.processed.Mark(ctx, key); err != nil {
		logger.Warn("failed to mark notification processed", slog.Any("error", err))
	}
	s.metrics.NotificationHandled(status, outcome)
	logger.Info("notification handled", slog.String("outcome", outcome))
	return nil
}

// markPaid переводит заказ PENDING -> PAID; для заказа в другом статусе ничего не делает
func (s *paymentService) markPaid(ctx context.Context, logger *slog.Logger, orderID string) (string, error) {
	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *sql.Tx) error {
		order = nil

		o, err := s.orderRepo.LockOrderTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status == models.OrderStatusCancelled {
			// деньги списаны, а заказ уже отменён и остатки возвращены: нужен ручной возврат
			logger.Warn("payment completed for cancelled order, refund required",
				slog.String("current", string(o.Status)),
				slog.Int64("total", o.Total),
			)
			return nil
		}
		if !models.CanTransition(o.Status, models.OrderStatusPaid) {
			logger.Info("order is not pending, nothing to do", slog.String("current", string(o.Status)))
			return nil
		}

		updated, err := s.orderRepo.UpdateStatusTx(ctx, tx, orderID, o.Status, models.OrderStatusPaid)
		if err != nil {
			return err
		}
		if updated {
			o.Status = models.OrderStatusPaid
			order = o
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, storage.ErrOrderNotFound) {
			logger.Warn("order for notification not found")
			return "", newError(ErrNotFound, "order %s not found", orderID)
		}
		logger.Error("failed to mark order paid", slog.Any("error", err))
		return "", fmt.Errorf("%w: %w", ErrReconciliation, err)
	}
	if order == nil {
		return outcomeNoop, nil
	}

	if err := s.events.Publish(ctx, models.OrderEvent{
		Type:    models.EventOrderPaid,
		OrderID: order.ID,
		UserID:  order.UserID,
		Total:   order.Total,
		Status:  order.Status,
	}); err != nil {
		logger.Error("failed to publish event", slog.String("type", models.EventOrderPaid), slog.Any("error", err))
	}
	return outcomePaid, nil
}
