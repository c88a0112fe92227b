package main

import (
	"context"
	"database/sql"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Yab112/art-store-backend-sub000/internal/clients"
	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/events"
	"github.com/Yab112/art-store-backend-sub000/internal/handlers"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/repository"
	"github.com/Yab112/art-store-backend-sub000/internal/server"
	"github.com/Yab112/art-store-backend-sub000/internal/service"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()
	logging.SetLevel(cfg.LogLevel)

	logger := logging.NewLoggerV2("settlement-service")
	logger.Info("Starting settlement-service", logging.Fields{"port": cfg.Server.Port})

	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("Failed to connect to database", logging.Fields{"error": err.Error()})
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := repository.Migrate(ctx, db)
		cancel()
		if err != nil {
			logger.Fatal("Failed to apply schema", logging.Fields{"error": err.Error()})
		}
	}

	orderRepo := repository.NewPostgresOrderRepository(db, logger.With("orders"))
	ledgerRepo := repository.NewPostgresLedgerRepository(db, logger.With("ledger"))
	withdrawalRepo := repository.NewPostgresWithdrawalRepository(db, logger.With("withdrawals"))
	settingsRepo := repository.NewPostgresSettingsRepository(db, logger.With("settings"))

	var (
		orderCache    repository.OrderCache    = repository.NopCache{}
		settingsCache repository.SettingsCache = repository.NopCache{}
	)
	if cfg.Features.EnableOrderCaching {
		cache := repository.NewRedisCache(cfg.Redis)
		defer cache.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := cache.Ping(ctx); err != nil {
			// Log but don't fail; reads fall through to Postgres
			logger.Warn("Redis unreachable, cache reads will miss", logging.Fields{"error": err.Error()})
		}
		cancel()
		orderCache, settingsCache = cache, cache
	}

	providers := clients.NewRegistry(
		clients.NewChapaClient(cfg.Chapa, logger.With("chapa")),
		clients.NewPayPalClient(cfg.PayPal, logger.With("paypal")),
	)

	var notifier service.NotificationPort = service.NopNotifier{}
	if cfg.Features.EnableNotifications {
		publisher := events.NewKafkaPublisher(cfg.Kafka, logger.With("events"))
		defer publisher.Close()
		notifier = publisher
	}

	settingsService := service.NewSettingsService(settingsRepo, settingsCache, cfg.Settings)
	orderService := service.NewOrderService(
		orderRepo,
		ledgerRepo,
		ledgerRepo,
		orderRepo,
		orderCache,
		settingsService,
		providers,
		notifier,
		cfg,
	)
	paymentService := service.NewPaymentService(orderRepo, orderService, providers)
	ledgerService := service.NewLedgerService(ledgerRepo, ledgerRepo, withdrawalRepo)
	withdrawalService := service.NewWithdrawalService(
		withdrawalRepo,
		ledgerRepo,
		ledgerRepo,
		ledgerService,
		settingsService,
		notifier,
		cfg.Withdrawal,
	)
	sweeper := service.NewSweeper(orderRepo, orderCache, settingsService, orderService, notifier, cfg.Sweeper)

	h := handlers.NewHandlers(orderService, paymentService, ledgerService, withdrawalService, settingsService, db, cfg)
	srv := server.New(h, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Server starting", logging.Fields{
			"port":                     cfg.Server.Port,
			"enable_order_caching":     cfg.Features.EnableOrderCaching,
			"enable_notifications":     cfg.Features.EnableNotifications,
			"enable_callback_consumer": cfg.Features.EnableCallbackConsumer,
		})
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sweeper.Start(gctx)
	})

	if cfg.Features.EnableCallbackConsumer {
		consumer := events.NewPaymentCallbackConsumer(cfg.Kafka, paymentService, logger.With("callbacks"))
		g.Go(func() error {
			return consumer.Start(gctx)
		})
		g.Go(func() error {
			<-gctx.Done()
			consumer.Stop()
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sweeper.Stop()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server forced to shutdown", logging.Fields{"error": err.Error()})
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", logging.Fields{"error": err.Error()})
	}

	logger.Info("Server exited")
}

func initDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.Database.ConnectionString())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.MaxLifetime)

	if err := db.Ping(); err != nil {
		return nil, err
	}

	logging.Info("Database connected", logging.Fields{
		"host": cfg.Database.Host,
		"name": cfg.Database.Name,
	})

	return db, nil
}
