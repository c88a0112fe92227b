package service

import (
	"context"
	"sync"
	"time"

	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/metrics"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
	"github.com/Yab112/art-store-backend-sub000/internal/repository"
)

// Cancel reasons written by the sweeper.
const (
	CancelReasonExpired       = "expired"
	CancelReasonAutoCancelled = "auto_cancelled"
)

// SweepResult reports what one sweep changed.
type SweepResult struct {
	Expired       []string
	AutoCancelled []string
	Reconciled    int
}

// Sweeper periodically cancels stale PENDING orders and retries unfinished settlements.
type Sweeper struct {
	orders       repository.OrderRepository
	cache        repository.OrderCache
	settings     *SettingsService
	orderService *OrderService
	notifier     NotificationPort
	config       config.SweeperConfig
	logger       *logging.LoggerV2
	now          func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

func NewSweeper(
	orders repository.OrderRepository,
	cache repository.OrderCache,
	settings *SettingsService,
	orderService *OrderService,
	notifier NotificationPort,
	cfg config.SweeperConfig,
) *Sweeper {
	if cache == nil {
		cache = repository.NopCache{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &Sweeper{
		orders:       orders,
		cache:        cache,
		settings:     settings,
		orderService: orderService,
		notifier:     notifier,
		config:       cfg,
		logger:       logging.NewLoggerV2("order-sweeper"),
		now:          func() time.Time { return time.Now().UTC() },
		stopCh:       make(chan struct{}),
	}
}

// Start runs a sweep every interval until ctx is done or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	interval := s.config.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.Info("Starting order sweeper", logging.Fields{"interval": interval.String()})

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.stopCh:
			s.logger.Info("Order sweeper stopped")
			return nil
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.Error("Sweep failed", logging.Fields{"error": err.Error()})
			}
		}
	}
}

func (s *Sweeper) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// RunOnce applies both expiry policies and the settlement reconciliation pass.
// Each policy is skipped when its window is zero.
func (s *Sweeper) RunOnce(ctx context.Context) (*SweepResult, error) {
	windows, err := s.settings.GetOrderExpiryWindows(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()
	result := &SweepResult{}

	if windows.ExpireAfter > 0 {
		result.Expired, err = s.cancel(ctx, now.Add(-windows.ExpireAfter), CancelReasonExpired)
		if err != nil {
			return result, err
		}
	}
	if windows.AutoCancelAfter > 0 {
		result.AutoCancelled, err = s.cancel(ctx, now.Add(-windows.AutoCancelAfter), CancelReasonAutoCancelled)
		if err != nil {
			return result, err
		}
	}

	if s.config.ReconcileAfter > 0 && s.orderService != nil {
		result.Reconciled = s.reconcile(ctx, now.Add(-s.config.ReconcileAfter))
	}
	return result, nil
}

func (s *Sweeper) cancel(ctx context.Context, cutoff time.Time, reason string) ([]string, error) {
	ids, err := s.orders.CancelPendingOrders(ctx, cutoff, reason)
	if err != nil {
		s.logger.Error("Failed to cancel pending orders", logging.Fields{
			"reason": reason,
			"error":  err.Error(),
		})
		return nil, err
	}
	if len(ids) == 0 {
		return ids, nil
	}

	metrics.SweeperCancellations.WithLabelValues(reason).Add(float64(len(ids)))
	if err := s.cache.DeleteOrders(ctx, ids...); err != nil {
		s.logger.Warn("Failed to invalidate cancelled orders", logging.Fields{"error": err.Error()})
	}

	notify(s.logger, s.notifier, newEvent(models.EventOrdersExpired, reason, "", map[string]interface{}{
		"reason":    reason,
		"order_ids": ids,
	}))

	s.logger.Info("Cancelled stale orders", logging.Fields{
		"reason": reason,
		"count":  len(ids),
		"cutoff": cutoff.Format(time.RFC3339),
	})
	return ids, nil
}

func (s *Sweeper) reconcile(ctx context.Context, paidBefore time.Time) int {
	ids, err := s.orders.ListUnsettledPaidOrders(ctx, paidBefore, s.config.ReconcileBatch)
	if err != nil {
		s.logger.Error("Failed to list unsettled orders", logging.Fields{"error": err.Error()})
		return 0
	}

	reconciled := 0
	for _, id := range ids {
		if err := s.orderService.ReconcileSettlement(ctx, id); err != nil {
			s.logger.Error("Reconciliation failed", logging.Fields{
				"order_id": id,
				"error":    err.Error(),
			})
			continue
		}
		reconciled++
	}
	return reconciled
}
