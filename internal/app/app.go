package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "github.com/lib/pq"
	"github.com/linemk/market-checkout/internal/config"
	"github.com/linemk/market-checkout/internal/dedup"
	"github.com/linemk/market-checkout/internal/events"
	"github.com/linemk/market-checkout/internal/gateway"
	"github.com/linemk/market-checkout/internal/metrics"
	"github.com/linemk/market-checkout/internal/service"
	"github.com/linemk/market-checkout/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	DB        *sql.DB
	Redis     redis.UniversalClient // nil, если redis.address не задан
	Publisher events.Publisher
	Registry  *prometheus.Registry
	Metrics   *metrics.Metrics
}

// NewApp создаёт новый экземпляр App: БД обязательна, Redis и Kafka — по конфигу
func NewApp(log *slog.Logger, cfg *config.Config) (*App, error) {
	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	app := &App{
		Config:    cfg,
		Logger:    log,
		DB:        db,
		Publisher: events.NopPublisher{},
		Registry:  prometheus.NewRegistry(),
	}

	if cfg.Redis.Address != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			app.Close()
			rdb.Close()
			return nil, fmt.Errorf("failed to ping redis: %w", err)
		}
		app.Redis = rdb
		log.Info("redis dedup enabled", slog.String("address", cfg.Redis.Address))
	}

	if len(cfg.Kafka.Brokers) > 0 {
		app.Publisher = events.NewKafkaPublisher(log, cfg.Kafka.Brokers, cfg.Kafka.Topic)
		log.Info("order events enabled",
			slog.String("brokers", strings.Join(cfg.Kafka.Brokers, ",")),
			slog.String("topic", cfg.Kafka.Topic),
		)
	}

	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(db, cfg.Database.Name),
	)
	app.Metrics = metrics.New(app.Registry)

	return app, nil
}

// Services собирает репозитории и сервисы поверх подключений приложения
func (a *App) Services() Services {
	cfg := a.Config

	tx := storage.NewTransactor(a.Logger, a.DB, cfg.Orders.TxAttempts, cfg.Orders.TxBackoff)
	productRepo := storage.NewProductRepository(a.DB)
	orderRepo := storage.NewOrderRepository(a.DB)
	deliveryRepo := storage.NewDeliveryRepository(a.DB)
	profileRepo := storage.NewProfileRepository(a.DB)

	var processed dedup.Store = dedup.NopStore{}
	if a.Redis != nil {
		processed = dedup.NewRedisStore(a.Redis, "payment-notify", cfg.Redis.DedupTTL)
	}

	gw := gateway.NewClient(a.Logger, gateway.Config{
		BaseURL:      cfg.Gateway.BaseURL,
		SiteCode:     cfg.Gateway.SiteCode,
		CountryCode:  cfg.Gateway.CountryCode,
		CurrencyCode: cfg.Gateway.CurrencyCode,
		APIKey:       cfg.Gateway.APIKey,
		PrivateKey:   cfg.Gateway.PrivateKey,
		IsTest:       cfg.Gateway.IsTest,
		Timeout:      cfg.Gateway.Timeout,
		AppBaseURL:   cfg.App.BaseURL,
		CancelPath:   cfg.Gateway.CancelPath,
		ErrorPath:    cfg.Gateway.ErrorPath,
		SuccessPath:  cfg.Gateway.SuccessPath,
		NotifyPath:   cfg.Gateway.NotifyPath,
	})

	orders := service.NewOrderService(a.Logger, tx, productRepo, orderRepo, a.Publisher, a.Metrics)
	return Services{
		Orders: orders,
		Payments: service.NewPaymentService(a.Logger, tx, orderRepo, orders, gw, processed,
			a.Publisher, a.Metrics, cfg.Gateway.VerifyNotifyHash),
		Fulfillment: service.NewFulfillmentService(a.Logger, tx, orderRepo, deliveryRepo, a.Publisher),
		Profiles:    profileRepo,
	}
}

// Close закрывает все подключения
func (a *App) Close() error {
	var errs []error
	if a.Publisher != nil {
		errs = append(errs, a.Publisher.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}
