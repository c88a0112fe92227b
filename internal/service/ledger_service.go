package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
	"github.com/Yab112/art-store-backend-sub000/internal/repository"
)

// LedgerService is the read side of the Earnings Ledger.
type LedgerService struct {
	accounts    repository.AccountRepository
	ledger      repository.LedgerRepository
	withdrawals repository.WithdrawalRepository
	logger      *logging.LoggerV2
}

func NewLedgerService(accounts repository.AccountRepository, ledger repository.LedgerRepository, withdrawals repository.WithdrawalRepository) *LedgerService {
	return &LedgerService{
		accounts:    accounts,
		ledger:      ledger,
		withdrawals: withdrawals,
		logger:      logging.NewLoggerV2("ledger-service"),
	}
}

// Balance is a seller's ledger position at one point in time.
type Balance struct {
	Account   *models.SellerAccount
	Withdrawn decimal.Decimal
	Available decimal.Decimal
}

// GetBalance reads lifetime earnings from the seller's counter and subtracts completed withdrawals.
func (s *LedgerService) GetBalance(ctx context.Context, sellerID string) (*Balance, error) {
	acct, err := s.accounts.GetSellerAccount(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	withdrawn, err := s.withdrawals.SumWithdrawals(ctx, sellerID, models.WithdrawalStatusCompleted)
	if err != nil {
		return nil, err
	}
	return &Balance{
		Account:   acct,
		Withdrawn: withdrawn,
		Available: models.AvailableBalance(acct.LifetimeEarnings, withdrawn),
	}, nil
}

// GetEarningsSummary returns a seller's balance and per-sale detail. Sellers see their own;
// administrators see anyone's.
func (s *LedgerService) GetEarningsSummary(ctx context.Context, caller models.Identity, sellerID string) (*models.EarningsSummary, error) {
	if sellerID == "" {
		sellerID = caller.UserID
	}
	if !caller.IsAdmin() && caller.UserID != sellerID {
		return nil, errors.NewBusinessRuleError(errors.CodeForbidden, "earnings belong to another seller")
	}

	balance, err := s.GetBalance(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	sales, err := s.ledger.ListSellerSales(ctx, sellerID)
	if err != nil {
		s.logger.Error("Failed to list seller sales", logging.Fields{
			"seller_id": sellerID,
			"error":     err.Error(),
		})
		return nil, err
	}

	details := make([]models.SaleDetail, 0, len(sales))
	for _, sale := range sales {
		details = append(details, saleDetail(sale))
	}

	return &models.EarningsSummary{
		SellerID:         sellerID,
		LifetimeEarnings: balance.Account.LifetimeEarnings,
		TotalWithdrawn:   balance.Withdrawn,
		AvailableBalance: balance.Available,
		SalesCount:       len(details),
		Sales:            details,
	}, nil
}

// saleDetail apportions the order's recorded commission by price share, or applies the
// order's stored rate when the platform earning has not been written yet.
func saleDetail(sale models.SaleRecord) models.SaleDetail {
	lineTotal := sale.Price.Mul(decimal.NewFromInt(int64(sale.Quantity)))

	var commission decimal.Decimal
	if sale.PlatformEarning != nil {
		commission = ApportionCommission(*sale.PlatformEarning, lineTotal, sale.OrderTotal)
	} else {
		commission = ItemCommission(lineTotal, sale.CommissionRate)
	}

	return models.SaleDetail{
		OrderID:      sale.OrderID,
		ItemID:       sale.ItemID,
		Title:        sale.Title,
		SalePrice:    lineTotal,
		Commission:   commission,
		SellerAmount: lineTotal.Sub(commission),
		Currency:     sale.Currency,
		SoldAt:       sale.PaidAt,
	}
}
