package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/metrics"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
	"github.com/Yab112/art-store-backend-sub000/internal/repository"
)

// PaymentService opens provider checkouts and turns provider callbacks into order completions.
type PaymentService struct {
	orders       repository.OrderRepository
	orderService *OrderService
	providers    ProviderRegistry
	logger       *logging.LoggerV2
}

// NewPaymentService creates a new payment service.
func NewPaymentService(orders repository.OrderRepository, orderService *OrderService, providers ProviderRegistry) *PaymentService {
	return &PaymentService{
		orders:       orders,
		orderService: orderService,
		providers:    providers,
		logger:       logging.NewLoggerV2("payment-service"),
	}
}

// InitializePayment opens a checkout session for a PENDING order with the provider chosen
// at order time. Only the buyer may initialize.
func (s *PaymentService) InitializePayment(ctx context.Context, caller models.Identity, orderID string) (*models.InitializeResult, error) {
	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != caller.UserID {
		return nil, errors.NewBusinessRuleError(errors.CodeForbidden, "order belongs to another buyer")
	}
	if order.Status != models.OrderStatusPending {
		return nil, errors.NewBusinessRuleError(errors.CodeOrderNotPayable, "order is not awaiting payment").
			WithDetail("status", string(order.Status))
	}

	provider, err := s.providers.Get(order.Provider)
	if err != nil {
		return nil, errors.NewValidationError("provider", err.Error())
	}

	req := &models.InitializeRequest{
		Amount:      order.TotalAmount,
		Currency:    order.Currency,
		BuyerEmail:  order.BuyerEmail,
		Reference:   order.Reference,
		Description: fmt.Sprintf("Order %s", order.ID),
	}
	if req.BuyerEmail == "" {
		req.BuyerEmail = caller.Email
	}
	if order.ShippingInfo != nil {
		req.BuyerName = order.ShippingInfo.FullName
	}

	s.logger.Info("Initializing payment", logging.Fields{
		"order_id":  order.ID,
		"provider":  provider.Name(),
		"reference": order.Reference,
	})

	result, err := provider.Initialize(ctx, req)
	if err != nil {
		s.logger.Error("Payment initialization failed", logging.Fields{
			"order_id": order.ID,
			"provider": provider.Name(),
			"error":    err.Error(),
		})
		return nil, errors.NewProviderError(provider.Name(), err)
	}

	if err := s.orders.MergeTransactionMetadata(ctx, order.ID, map[string]interface{}{
		models.MetaProviderReference: result.ProviderReference,
		models.MetaCheckoutURL:       result.CheckoutURL,
	}); err != nil {
		s.logger.Error("Failed to record provider reference", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		return nil, err
	}

	return result, nil
}

// HandlePaymentCallback verifies the payment behind a provider callback and completes the
// order on success. A pending verification returns the order unchanged; a failed one
// returns a provider error and leaves the order PENDING.
func (s *PaymentService) HandlePaymentCallback(ctx context.Context, cb *models.PaymentCallback) (*models.Order, error) {
	if cb == nil || strings.TrimSpace(cb.Reference) == "" {
		return nil, errors.NewValidationError("reference", "payment reference is required")
	}

	order, err := s.orders.GetOrderByReference(ctx, cb.Reference)
	if err != nil {
		return nil, err
	}
	if cb.Provider != "" && cb.Provider != order.Provider {
		return nil, errors.NewValidationError("provider", "callback provider does not match the order").
			WithDetail("expected", order.Provider)
	}
	if order.Status == models.OrderStatusPaid {
		s.logger.Info("Callback for paid order ignored", logging.Fields{"order_id": order.ID})
		return order, nil
	}

	provider, err := s.providers.Get(order.Provider)
	if err != nil {
		return nil, errors.NewValidationError("provider", err.Error())
	}

	providerRef := order.Reference
	if txn, err := s.orders.GetTransaction(ctx, order.ID); err == nil {
		if v, ok := txn.Metadata[models.MetaProviderReference].(string); ok && v != "" {
			providerRef = v
		}
	}

	result, err := provider.Verify(ctx, providerRef)
	if err != nil {
		s.logger.Error("Payment verification failed", logging.Fields{
			"order_id": order.ID,
			"provider": provider.Name(),
			"error":    err.Error(),
		})
		metrics.Verifications.WithLabelValues(provider.Name(), "error").Inc()
		return nil, errors.NewProviderError(provider.Name(), err)
	}
	metrics.Verifications.WithLabelValues(provider.Name(), string(result.Status)).Inc()

	s.logger.Info("Payment verified", logging.Fields{
		"order_id":        order.ID,
		"provider":        provider.Name(),
		"status":          result.Status,
		"provider_status": result.ProviderStatus,
	})

	switch result.Status {
	case models.VerificationPending:
		s.recordVerification(ctx, order.ID, result)
		return order, nil

	case models.VerificationSuccess:
		if !referenceBelongsTo(result.NormalizedReference, order) {
			return nil, errors.NewProviderError(provider.Name(),
				fmt.Errorf("verified reference %q does not match order reference", result.NormalizedReference))
		}
		if result.Amount.LessThan(order.TotalAmount) || !strings.EqualFold(result.Currency, order.Currency) {
			s.recordVerification(ctx, order.ID, result)
			s.logger.Error("Verified payment does not cover order", logging.Fields{
				"order_id":          order.ID,
				"order_total":       order.TotalAmount.String(),
				"order_currency":    order.Currency,
				"verified_amount":   result.Amount.String(),
				"verified_currency": result.Currency,
				"severity":          "high",
			})
			return nil, errors.NewBusinessRuleError(errors.CodePaymentAmountInvalid, "verified payment does not cover the order total").
				WithDetail("expected", order.TotalAmount.String()+" "+order.Currency).
				WithDetail("received", result.Amount.String()+" "+result.Currency)
		}

		ref := result.ProviderReference
		if ref == "" {
			ref = providerRef
		}
		return s.orderService.CompleteOrder(ctx, order.ID, ref, provider.Name(), result)

	default:
		s.recordVerification(ctx, order.ID, result)
		return nil, errors.NewProviderError(provider.Name(),
			fmt.Errorf("payment reported %s", result.ProviderStatus))
	}
}

// referenceBelongsTo reports whether a provider-echoed reference identifies order.
// References built from a truncated order id match too.
func referenceBelongsTo(ref string, order *models.Order) bool {
	return ref == "" || ref == order.Reference || ReferenceMatchesOrder(ref, order.ID)
}

func (s *PaymentService) recordVerification(ctx context.Context, orderID string, result *models.VerificationResult) {
	if err := s.orders.MergeTransactionMetadata(ctx, orderID, map[string]interface{}{
		models.MetaVerification: result.Metadata(),
	}); err != nil {
		s.logger.Warn("Failed to record verification", logging.Fields{
			"order_id": orderID,
			"error":    err.Error(),
		})
	}
}
