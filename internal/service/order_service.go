package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Yab112/art-store-backend-sub000/internal/clients"
	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/metrics"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
	"github.com/Yab112/art-store-backend-sub000/internal/repository"
)

// ProviderRegistry resolves payment providers by name.
type ProviderRegistry interface {
	Get(name string) (clients.PaymentProvider, error)
	Default() string
}

// Settlement steps reported in partial-settlement faults.
const (
	StepSellerCredit    = "seller_credit"
	StepPlatformEarning = "platform_earning"
)

// OrderService is the Order Engine: order creation, completion and settlement.
type OrderService struct {
	orders    repository.OrderRepository
	items     repository.ItemRepository
	ledger    repository.LedgerRepository
	carts     repository.CartRepository
	cache     repository.OrderCache
	settings  *SettingsService
	providers ProviderRegistry
	notifier  NotificationPort
	config    *config.Config
	logger    *logging.LoggerV2
	now       func() time.Time
}

// NewOrderService creates a new order service.
func NewOrderService(
	orders repository.OrderRepository,
	items repository.ItemRepository,
	ledger repository.LedgerRepository,
	carts repository.CartRepository,
	cache repository.OrderCache,
	settings *SettingsService,
	providers ProviderRegistry,
	notifier NotificationPort,
	cfg *config.Config,
) *OrderService {
	if cache == nil {
		cache = repository.NopCache{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &OrderService{
		orders:    orders,
		items:     items,
		ledger:    ledger,
		carts:     carts,
		cache:     cache,
		settings:  settings,
		providers: providers,
		notifier:  notifier,
		config:    cfg,
		logger:    logging.NewLoggerV2("order-service"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// CreateOrder validates the request and persists a PENDING order with its items and an
// INITIATED transaction as one unit.
func (s *OrderService) CreateOrder(ctx context.Context, caller models.Identity, req *models.CreateOrderRequest) (*models.OrderSummary, error) {
	if err := ValidateCreateOrderRequest(req); err != nil {
		return nil, err
	}

	s.logger.Info("Creating order", logging.Fields{
		"user_id":    caller.UserID,
		"item_count": len(req.Items),
	})

	providerName := req.PaymentMethod
	if providerName == "" {
		providerName = s.providers.Default()
	}
	provider, err := s.providers.Get(providerName)
	if err != nil {
		return nil, errors.NewValidationError("payment_method", err.Error())
	}

	ids := make([]string, 0, len(req.Items))
	for _, line := range req.Items {
		ids = append(ids, line.ItemID)
	}
	found, err := s.items.GetItems(ctx, ids)
	if err != nil {
		s.logger.Error("Failed to load items", logging.Fields{"error": err.Error()})
		return nil, err
	}
	byID := make(map[string]*models.Item, len(found))
	for _, item := range found {
		byID[item.ID] = item
	}

	var own, unavailable []string
	for _, id := range ids {
		item, ok := byID[id]
		if !ok {
			return nil, errors.NewNotFoundError("item", id)
		}
		if item.SellerID == caller.UserID {
			own = append(own, id)
		} else if !item.Purchasable() {
			unavailable = append(unavailable, id)
		}
	}
	if len(own) > 0 {
		return nil, errors.NewBusinessRuleError(errors.CodeSelfPurchase, "you cannot purchase your own items").
			WithDetail("item_ids", strings.Join(own, ","))
	}
	if len(unavailable) > 0 {
		return nil, errors.NewBusinessRuleError(errors.CodeItemUnavailable, "some items are no longer available").
			WithDetail("item_ids", strings.Join(unavailable, ","))
	}

	currency, err := s.orderCurrency(providerName, ids, byID)
	if err != nil {
		return nil, err
	}

	rate, err := s.settings.GetCommissionRate(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	orderID := uuid.NewString()
	lines := make([]models.OrderItem, 0, len(ids))
	for _, id := range ids {
		item := byID[id]
		lines = append(lines, models.OrderItem{
			OrderID:  orderID,
			ItemID:   item.ID,
			SellerID: item.SellerID,
			Title:    item.Title,
			Quantity: 1,
			Price:    item.Price,
		})
	}
	total := OrderTotal(lines)

	order := &models.Order{
		ID:            orderID,
		BuyerID:       caller.UserID,
		BuyerEmail:    caller.Email,
		Items:         lines,
		TotalAmount:   total,
		Currency:      currency,
		Status:        models.OrderStatusPending,
		Provider:      providerName,
		Reference:     BuildReference(orderID, provider.MaxReferenceLength(), now),
		CreatedAt:     now,
		UpdatedAt:     now,
		ShippingInfo:  req.ShippingInfo,
		PaymentMethod: providerName,
	}
	txn := &models.Transaction{
		ID:        uuid.NewString(),
		OrderID:   orderID,
		Amount:    total,
		Currency:  currency,
		Status:    models.TransactionStatusInitiated,
		Provider:  providerName,
		Reference: order.Reference,
		Metadata: map[string]interface{}{
			models.MetaCommissionRate: rate.String(),
			models.MetaShippingInfo:   *req.ShippingInfo,
			models.MetaPaymentMethod:  providerName,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.CreateOrder(ctx, order, txn); err != nil {
		s.logger.Error("Failed to create order", logging.Fields{
			"user_id": caller.UserID,
			"error":   err.Error(),
		})
		return nil, err
	}
	metrics.OrdersCreated.Inc()

	if s.config.Features.EnableOrderCaching {
		if err := s.cache.SetOrder(ctx, order); err != nil {
			// Log but don't fail
			s.logger.Error("Failed to cache order", logging.Fields{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}

	notify(s.logger, s.notifier, newEvent(models.EventOrderCreated, order.ID, order.BuyerID, map[string]interface{}{
		"reference":    order.Reference,
		"total_amount": order.TotalAmount.String(),
		"currency":     order.Currency,
		"item_ids":     order.ItemIDs(),
	}))

	s.logger.Info("Order created successfully", logging.Fields{
		"order_id":  order.ID,
		"reference": order.Reference,
		"total":     total.String(),
	})

	return &models.OrderSummary{
		OrderID:       order.ID,
		TransactionID: txn.ID,
		Reference:     order.Reference,
		Provider:      providerName,
		TotalAmount:   total,
		Currency:      currency,
		Status:        order.Status,
		Items:         lines,
	}, nil
}

// orderCurrency requires every item to share one currency. Items without a currency
// take the provider's configured one.
func (s *OrderService) orderCurrency(provider string, ids []string, items map[string]*models.Item) (string, error) {
	fallback := s.config.Chapa.Currency
	if provider == clients.ProviderPayPal {
		fallback = s.config.PayPal.Currency
	}

	currency := ""
	for _, id := range ids {
		c := strings.ToUpper(items[id].Currency)
		if c == "" {
			c = fallback
		}
		if currency == "" {
			currency = c
			continue
		}
		if c != currency {
			return "", errors.NewValidationError("items", "all items must be priced in one currency")
		}
	}
	return currency, nil
}

// CompleteOrder marks a verified order PAID and settles it. Calling it for an order that
// is already PAID returns the order unchanged with no further side effects.
func (s *OrderService) CompleteOrder(ctx context.Context, orderID, providerReference, provider string, verification *models.VerificationResult) (*models.Order, error) {
	meta := map[string]interface{}{
		models.MetaProviderReference: providerReference,
		"completed_by_provider":      provider,
		"completed_at":               s.now().Format(time.RFC3339),
	}
	if verification != nil {
		meta[models.MetaVerification] = verification.Metadata()
	}

	order, transitioned, err := s.orders.MarkOrderPaid(ctx, orderID, meta)
	if errors.Is(err, repository.ErrOrderNotPayable) {
		status := ""
		if order != nil {
			status = string(order.Status)
		}
		s.logger.Error("Verified payment for an order that is not payable", logging.Fields{
			"order_id":           orderID,
			"status":             status,
			"provider":           provider,
			"provider_reference": providerReference,
			"severity":           "high",
		})
		metrics.Settlements.WithLabelValues("rejected").Inc()
		return nil, errors.NewBusinessRuleError(errors.CodeOrderNotPayable, "order can no longer be paid").
			WithDetail("order_id", orderID).
			WithDetail("status", status)
	}
	if err != nil {
		s.logger.Error("Failed to mark order paid", logging.Fields{
			"order_id": orderID,
			"error":    err.Error(),
		})
		return nil, err
	}

	if !transitioned {
		metrics.Settlements.WithLabelValues("duplicate").Inc()
		s.logger.Info("Order already paid", logging.Fields{"order_id": orderID})
		return order, nil
	}

	if err := s.cache.DeleteOrders(ctx, order.ID); err != nil {
		s.logger.Warn("Failed to invalidate cached order", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
	}

	credits, commission, err := s.settle(ctx, order)
	if err != nil {
		return order, err
	}
	metrics.Settlements.WithLabelValues("settled").Inc()

	notify(s.logger, s.notifier, newEvent(models.EventOrderSettled, order.ID, order.BuyerID, map[string]interface{}{
		"total_amount": order.TotalAmount.String(),
		"commission":   commission.String(),
		"currency":     order.Currency,
		"seller_ids":   sellerIDs(credits),
	}))

	s.logger.Info("Order settled", logging.Fields{
		"order_id":   order.ID,
		"sellers":    len(credits),
		"commission": commission.String(),
	})
	return order, nil
}

// ReconcileSettlement re-runs the ledger steps of a PAID order. Both steps are keyed so that
// repeating them has no effect once they succeeded.
func (s *OrderService) ReconcileSettlement(ctx context.Context, orderID string) error {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != models.OrderStatusPaid {
		return errors.NewBusinessRuleError(errors.CodeOrderNotPayable, "only paid orders can be reconciled").
			WithDetail("status", string(order.Status))
	}

	if _, _, err := s.settle(ctx, order); err != nil {
		metrics.Reconciliations.WithLabelValues("failed").Inc()
		return err
	}
	metrics.Reconciliations.WithLabelValues("settled").Inc()
	s.logger.Info("Settlement reconciled", logging.Fields{"order_id": orderID})
	return nil
}

// settle credits every seller and records the platform earning. Each step runs
// independently of the others; the first failure is returned as a partial-settlement error.
func (s *OrderService) settle(ctx context.Context, order *models.Order) ([]models.SellerCredit, decimal.Decimal, error) {
	rate := s.orderCommissionRate(ctx, order.ID)
	credits, commission := SplitCommission(order.Items, rate)
	now := s.now()

	var firstErr error
	fail := func(step string, err error) {
		s.logger.Error("Settlement step failed after payment capture", logging.Fields{
			"order_id": order.ID,
			"step":     step,
			"severity": "high",
			"error":    err.Error(),
		})
		metrics.SettlementFaults.WithLabelValues(step).Inc()
		if firstErr == nil {
			firstErr = errors.NewPartialSettlementError(order.ID, step, err)
		}
	}

	for _, credit := range credits {
		if !credit.Amount.IsPositive() {
			continue
		}
		created, err := s.ledger.CreditSeller(ctx, &models.SellerPayment{
			ID:        uuid.NewString(),
			OrderID:   order.ID,
			SellerID:  credit.SellerID,
			Amount:    credit.Amount,
			Currency:  order.Currency,
			Kind:      models.SellerPaymentKind,
			CreatedAt: now,
		})
		if err != nil {
			fail(StepSellerCredit, fmt.Errorf("seller %s: %w", credit.SellerID, err))
			continue
		}
		if created {
			s.logger.Debug("Seller credited", logging.Fields{
				"order_id":  order.ID,
				"seller_id": credit.SellerID,
				"amount":    credit.Amount.String(),
			})
		}
	}

	if _, err := s.ledger.CreatePlatformEarning(ctx, &models.PlatformEarning{
		ID:             uuid.NewString(),
		OrderID:        order.ID,
		Amount:         commission,
		CommissionRate: rate,
		Currency:       order.Currency,
		OrderSnapshot:  orderSnapshot(order, credits),
		CreatedAt:      now,
	}); err != nil {
		fail(StepPlatformEarning, err)
	}

	if order.BuyerID != "" && s.carts != nil {
		if _, err := s.carts.RemoveCartItems(ctx, order.BuyerID, order.ItemIDs()); err != nil {
			s.logger.Warn("Failed to clear purchased items from cart", logging.Fields{
				"order_id": order.ID,
				"error":    err.Error(),
			})
		}
	}

	if firstErr != nil {
		notify(s.logger, s.notifier, newEvent(models.EventOrderSettlementFault, order.ID, "", map[string]interface{}{
			"error": firstErr.Error(),
		}))
		return credits, commission, firstErr
	}
	return credits, commission, nil
}

// orderCommissionRate reads the rate captured at order time, falling back to the current rate.
func (s *OrderService) orderCommissionRate(ctx context.Context, orderID string) decimal.Decimal {
	if txn, err := s.orders.GetTransaction(ctx, orderID); err == nil {
		switch v := txn.Metadata[models.MetaCommissionRate].(type) {
		case string:
			if rate, err := decimal.NewFromString(v); err == nil {
				return rate
			}
		case float64:
			return decimal.NewFromFloat(v)
		}
	}

	rate, err := s.settings.GetCommissionRate(ctx)
	if err != nil {
		s.logger.Warn("Falling back to default commission rate", logging.Fields{
			"order_id": orderID,
			"error":    err.Error(),
		})
		return s.config.Settings.CommissionRate
	}
	return rate
}

func orderSnapshot(order *models.Order, credits []models.SellerCredit) map[string]interface{} {
	items := make([]interface{}, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, map[string]interface{}{
			"item_id":   item.ItemID,
			"seller_id": item.SellerID,
			"title":     item.Title,
			"price":     item.Price.String(),
			"quantity":  item.Quantity,
		})
	}
	sellers := make([]interface{}, 0, len(credits))
	for _, c := range credits {
		sellers = append(sellers, map[string]interface{}{
			"seller_id":  c.SellerID,
			"amount":     c.Amount.String(),
			"commission": c.Commission.String(),
		})
	}

	snapshot := map[string]interface{}{
		"order_id":     order.ID,
		"buyer_id":     order.BuyerID,
		"reference":    order.Reference,
		"total_amount": order.TotalAmount.String(),
		"currency":     order.Currency,
		"items":        items,
		"sellers":      sellers,
	}
	if order.PaidAt != nil {
		snapshot["paid_at"] = order.PaidAt.Format(time.RFC3339)
	}
	return snapshot
}

func sellerIDs(credits []models.SellerCredit) []string {
	ids := make([]string, 0, len(credits))
	for _, c := range credits {
		ids = append(ids, c.SellerID)
	}
	sort.Strings(ids)
	return ids
}

// GetOrder returns an order visible to the caller: its buyer or an administrator.
func (s *OrderService) GetOrder(ctx context.Context, caller models.Identity, id string) (*models.Order, error) {
	s.logger.Debug("Getting order", logging.Fields{"order_id": id})

	var order *models.Order
	if s.config.Features.EnableOrderCaching {
		if cached, err := s.cache.GetOrder(ctx, id); err == nil && cached != nil {
			s.logger.Debug("Order found in cache", logging.Fields{"order_id": id})
			order = cached
		}
	}

	if order == nil {
		var err error
		order, err = s.orders.GetOrder(ctx, id)
		if err != nil {
			return nil, err
		}
		if s.config.Features.EnableOrderCaching {
			if err := s.cache.SetOrder(ctx, order); err != nil {
				s.logger.Warn("Failed to cache order", logging.Fields{
					"order_id": id,
					"error":    err.Error(),
				})
			}
		}
	}

	if !caller.IsAdmin() && order.BuyerID != caller.UserID {
		return nil, errors.NewBusinessRuleError(errors.CodeForbidden, "order belongs to another buyer")
	}
	return order, nil
}

// ListBuyerOrders lists the caller's orders, newest first.
func (s *OrderService) ListBuyerOrders(ctx context.Context, caller models.Identity, status *models.OrderStatus, limit, offset int) ([]*models.Order, int, error) {
	limit, offset = normalizePage(limit, offset)
	return s.orders.ListOrders(ctx, &models.OrderListFilter{
		BuyerID: caller.UserID,
		Status:  status,
		Limit:   limit,
		Offset:  offset,
	})
}
