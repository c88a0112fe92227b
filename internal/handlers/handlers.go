package handlers

import (
	"context"

	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/service"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handlers holds all HTTP handlers for the settlement service.
type Handlers struct {
	orderService      *service.OrderService
	paymentService    *service.PaymentService
	ledgerService     *service.LedgerService
	withdrawalService *service.WithdrawalService
	settingsService   *service.SettingsService
	db                Pinger
	config            *config.Config
	logger            *logging.LoggerV2
}

// NewHandlers creates a new handlers instance. db may be nil, in which case
// readiness only reports the process itself.
func NewHandlers(
	orderService *service.OrderService,
	paymentService *service.PaymentService,
	ledgerService *service.LedgerService,
	withdrawalService *service.WithdrawalService,
	settingsService *service.SettingsService,
	db Pinger,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		orderService:      orderService,
		paymentService:    paymentService,
		ledgerService:     ledgerService,
		withdrawalService: withdrawalService,
		settingsService:   settingsService,
		db:                db,
		config:            cfg,
		logger:            logging.NewLoggerV2("handlers"),
	}
}
