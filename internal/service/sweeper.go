package service

import (
	"context"
	"log/slog"
	"time"
)

// RunPendingOrderSweeper периодически отменяет заказы, которые висят в PENDING дольше ttl.
// Блокируется до отмены ctx.
func RunPendingOrderSweeper(ctx context.Context, log *slog.Logger, orders OrderService, ttl, interval time.Duration) {
	const op = "service.RunPendingOrderSweeper"
	logger := log.With(slog.String("op", op))

	if ttl <= 0 {
		logger.Info("pending order expiry disabled")
		return
	}
	if interval <= 0 {
		interval = time.Minute
	}
	logger.Info("pending order sweeper started", slog.Duration("ttl", ttl), slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("pending order sweeper stopped")
			return
		case <-ticker.C:
			if _, err := orders.ExpireStalePendingOrders(ctx, time.Now().Add(-ttl)); err != nil {
				logger.Error("failed to expire stale orders", slog.Any("error", err))
			}
		}
	}
}
