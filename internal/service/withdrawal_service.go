package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/metrics"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
	"github.com/Yab112/art-store-backend-sub000/internal/repository"
)

// withdrawalTransitions lists the allowed next states. COMPLETED and REFUNDED are terminal.
var withdrawalTransitions = map[models.WithdrawalStatus][]models.WithdrawalStatus{
	models.WithdrawalStatusInitiated:  {models.WithdrawalStatusProcessing, models.WithdrawalStatusCompleted, models.WithdrawalStatusFailed},
	models.WithdrawalStatusProcessing: {models.WithdrawalStatusCompleted, models.WithdrawalStatusFailed},
	models.WithdrawalStatusFailed:     {models.WithdrawalStatusInitiated, models.WithdrawalStatusProcessing},
}

func isValidWithdrawalTransition(from, to models.WithdrawalStatus) bool {
	for _, next := range withdrawalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// WithdrawalService is the Withdrawal Validator and its status state machine.
type WithdrawalService struct {
	withdrawals repository.WithdrawalRepository
	items       repository.ItemRepository
	accounts    repository.AccountRepository
	ledger      *LedgerService
	settings    *SettingsService
	notifier    NotificationPort
	config      config.WithdrawalConfig
	logger      *logging.LoggerV2
}

func NewWithdrawalService(
	withdrawals repository.WithdrawalRepository,
	items repository.ItemRepository,
	accounts repository.AccountRepository,
	ledger *LedgerService,
	settings *SettingsService,
	notifier NotificationPort,
	cfg config.WithdrawalConfig,
) *WithdrawalService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &WithdrawalService{
		withdrawals: withdrawals,
		items:       items,
		accounts:    accounts,
		ledger:      ledger,
		settings:    settings,
		notifier:    notifier,
		config:      cfg,
		logger:      logging.NewLoggerV2("withdrawal-service"),
	}
}

// RequestWithdrawal runs the validation pipeline in order and stops at the first failure.
// A passing request is stored as INITIATED for administrative review.
func (s *WithdrawalService) RequestWithdrawal(ctx context.Context, caller models.Identity, req *models.WithdrawalRequest) (*models.Withdrawal, error) {
	if err := ValidateWithdrawalRequest(req); err != nil {
		return nil, s.reject(caller.UserID, err)
	}
	sellerID := caller.UserID

	// 1. destination ownership
	owns, err := s.items.SellerOwnsPayoutAccount(ctx, sellerID, req.Destination.Account)
	if err != nil {
		return nil, err
	}
	if !owns {
		return nil, s.reject(sellerID, errors.NewBusinessRuleError(errors.CodeDestinationNotOwned,
			"payout destination is not linked to any of your items"))
	}

	// 2. identity
	balance, err := s.ledger.GetBalance(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if !balance.Account.EmailVerified {
		return nil, s.reject(sellerID, errors.NewBusinessRuleError(errors.CodeEmailNotVerified,
			"verify your email before requesting a withdrawal"))
	}
	if balance.Account.Banned {
		return nil, s.reject(sellerID, errors.NewBusinessRuleError(errors.CodeAccountBanned,
			"account is suspended"))
	}

	// 3. disputes
	disputes, err := s.accounts.CountActiveDisputes(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if disputes > 0 {
		return nil, s.reject(sellerID, errors.NewBusinessRuleError(errors.CodeActiveDispute,
			"withdrawals are blocked while a dispute is open"))
	}

	// 4. balance
	if balance.Available.LessThan(req.Amount) {
		return nil, s.reject(sellerID, errors.NewBusinessRuleError(errors.CodeInsufficientBalance,
			"requested amount exceeds available balance").
			WithDetail("available", balance.Available.String()).
			WithDetail("requested", req.Amount.String()))
	}

	// 5. bounds
	bounds, err := s.settings.GetWithdrawalBounds(ctx)
	if err != nil {
		return nil, err
	}
	if req.Amount.LessThan(bounds.Min) || (bounds.Max.IsPositive() && req.Amount.GreaterThan(bounds.Max)) {
		return nil, s.reject(sellerID, errors.NewBusinessRuleError(errors.CodeAmountOutOfBounds,
			"amount is outside the allowed withdrawal range").
			WithDetail("min", bounds.Min.String()).
			WithDetail("max", bounds.Max.String()))
	}

	// 6. one in flight
	inFlight, err := s.withdrawals.CountWithdrawals(ctx, sellerID, models.InFlightWithdrawalStatuses)
	if err != nil {
		return nil, err
	}
	if inFlight > 0 {
		return nil, s.reject(sellerID, errors.NewBusinessRuleError(errors.CodeWithdrawalInFlight,
			"another withdrawal is already being processed"))
	}

	// 7. destination format
	if err := ValidatePayoutDestination(s.config.Channel, req.Destination); err != nil {
		return nil, s.reject(sellerID, err)
	}

	now := time.Now().UTC()
	dest := req.Destination
	dest.Channel = s.config.Channel
	w := &models.Withdrawal{
		ID:          uuid.NewString(),
		SellerID:    sellerID,
		Destination: dest,
		Amount:      req.Amount,
		Currency:    s.config.Currency,
		Status:      models.WithdrawalStatusInitiated,
		Metadata:    map[string]interface{}{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.withdrawals.CreateWithdrawal(ctx, w); err != nil {
		return nil, err
	}
	metrics.WithdrawalRequests.WithLabelValues("accepted", "").Inc()

	notify(s.logger, s.notifier, newEvent(models.EventWithdrawalRequested, w.ID, sellerID, map[string]interface{}{
		"amount":   w.Amount.String(),
		"currency": w.Currency,
	}))

	s.logger.Info("Withdrawal requested", logging.Fields{
		"withdrawal_id": w.ID,
		"seller_id":     sellerID,
		"amount":        w.Amount.String(),
	})
	return w, nil
}

func (s *WithdrawalService) reject(sellerID string, err error) error {
	code := errors.CodeOf(err)
	if code == "" {
		code = string(errors.KindOf(err))
	}
	metrics.WithdrawalRequests.WithLabelValues("rejected", code).Inc()
	s.logger.Info("Withdrawal rejected", logging.Fields{
		"seller_id": sellerID,
		"reason":    code,
	})
	return err
}

// UpdateWithdrawalStatus applies an administrative transition. Moving to COMPLETED
// re-checks the seller's available balance in the same atomic step.
func (s *WithdrawalService) UpdateWithdrawalStatus(ctx context.Context, caller models.Identity, id string, req *models.UpdateWithdrawalStatusRequest) (*models.Withdrawal, error) {
	if !caller.IsAdmin() {
		return nil, errors.NewBusinessRuleError(errors.CodeForbidden, "only administrators can review withdrawals")
	}
	if req == nil || !req.Status.Valid() {
		return nil, errors.NewValidationError("status", "unknown withdrawal status")
	}

	current, err := s.withdrawals.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isValidWithdrawalTransition(current.Status, req.Status) {
		return nil, invalidTransition(current.Status, req.Status)
	}

	meta := map[string]interface{}{
		models.MetaReviewedBy: caller.UserID,
		models.MetaReviewedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if req.Status == models.WithdrawalStatusFailed && req.RejectionReason != "" {
		meta[models.MetaRejectionReason] = req.RejectionReason
	}
	if req.ProviderPayoutStatus != "" {
		meta[models.MetaProviderPayoutStatus] = req.ProviderPayoutStatus
	}
	if req.Note != "" {
		meta[models.MetaNote] = req.Note
	}

	updated, err := s.withdrawals.TransitionWithdrawal(ctx, id,
		[]models.WithdrawalStatus{current.Status}, req.Status, meta,
		req.Status == models.WithdrawalStatusCompleted)
	switch {
	case errors.Is(err, repository.ErrStaleStatus):
		return nil, invalidTransition(current.Status, req.Status).
			WithDetail("reason", "status changed concurrently")
	case errors.Is(err, repository.ErrWithdrawalInFlight):
		return nil, errors.NewBusinessRuleError(errors.CodeWithdrawalInFlight,
			"seller already has another withdrawal being processed")
	case errors.Is(err, repository.ErrInsufficientBalance):
		return nil, errors.NewBusinessRuleError(errors.CodeInsufficientBalance,
			"available balance no longer covers this withdrawal")
	case err != nil:
		s.logger.Error("Failed to update withdrawal status", logging.Fields{
			"withdrawal_id": id,
			"error":         err.Error(),
		})
		return nil, err
	}

	metrics.WithdrawalTransitions.WithLabelValues(string(current.Status), string(updated.Status)).Inc()
	notify(s.logger, s.notifier, newEvent(models.EventWithdrawalStatusChanged, updated.ID, updated.SellerID, map[string]interface{}{
		"previous_status": string(current.Status),
		"status":          string(updated.Status),
		"amount":          updated.Amount.String(),
	}))

	s.logger.Info("Withdrawal status changed", logging.Fields{
		"withdrawal_id": id,
		"from":          current.Status,
		"to":            updated.Status,
		"reviewed_by":   caller.UserID,
	})
	return updated, nil
}

func invalidTransition(from, to models.WithdrawalStatus) *errors.Error {
	return errors.NewBusinessRuleError(errors.CodeInvalidTransition, "withdrawal status transition not allowed").
		WithDetail("from", string(from)).
		WithDetail("to", string(to))
}

// GetWithdrawal returns one withdrawal. Sellers may only read their own.
func (s *WithdrawalService) GetWithdrawal(ctx context.Context, caller models.Identity, id string) (*models.Withdrawal, error) {
	w, err := s.withdrawals.GetWithdrawal(ctx, id)
	if err != nil {
		return nil, err
	}
	if !caller.IsAdmin() && w.SellerID != caller.UserID {
		return nil, errors.NewBusinessRuleError(errors.CodeForbidden, "withdrawal belongs to another seller")
	}
	return w, nil
}

// ListWithdrawals is seller-scoped for sellers; administrators may filter by any seller.
func (s *WithdrawalService) ListWithdrawals(ctx context.Context, caller models.Identity, filter models.WithdrawalListFilter) ([]*models.Withdrawal, int, error) {
	if filter.Status != nil && !filter.Status.Valid() {
		return nil, 0, errors.NewValidationError("status", "unknown withdrawal status")
	}
	if !caller.IsAdmin() {
		filter.SellerID = caller.UserID
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	return s.withdrawals.ListWithdrawals(ctx, &filter)
}

// GetWithdrawalStats aggregates per status. Administrators passing no seller get platform totals.
func (s *WithdrawalService) GetWithdrawalStats(ctx context.Context, caller models.Identity, sellerID string) (*models.WithdrawalStats, error) {
	if !caller.IsAdmin() {
		sellerID = caller.UserID
	}
	return s.withdrawals.WithdrawalStats(ctx, sellerID)
}
