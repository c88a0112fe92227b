package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

var (
	// ErrOrderNotPayable is returned by MarkOrderPaid for orders that are neither PENDING nor PAID.
	ErrOrderNotPayable = errors.New("order is not payable")

	// ErrStaleStatus is returned when a conditional status update finds the record in another state.
	ErrStaleStatus = errors.New("record status changed concurrently")

	// ErrInsufficientBalance is returned when a completion would overdraw the seller ledger.
	ErrInsufficientBalance = errors.New("insufficient seller balance")

	// ErrWithdrawalInFlight is returned when a transition would leave a seller with two open withdrawals.
	ErrWithdrawalInFlight = errors.New("another withdrawal is in flight")
)

// reportAlreadySold flags a payment that marked fewer items SOLD than the order has lines.
// Another paid order claimed those items first, so their sellers are credited twice.
func reportAlreadySold(logger *logging.LoggerV2, order *models.Order, sold int) {
	if sold >= len(order.Items) {
		return
	}
	logger.Error("Order paid for items already sold", logging.Fields{
		"order_id": order.ID,
		"lines":    len(order.Items),
		"sold":     sold,
		"severity": "high",
	})
}

// OrderRepository persists orders, their items and the buyer transaction.
type OrderRepository interface {
	// CreateOrder writes the order, its items and the transaction as one unit.
	CreateOrder(ctx context.Context, order *models.Order, txn *models.Transaction) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByReference(ctx context.Context, reference string) (*models.Order, error)
	GetTransaction(ctx context.Context, orderID string) (*models.Transaction, error)
	ListOrders(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error)

	// MarkOrderPaid moves a PENDING order to PAID, completes its transaction (merging
	// verification into metadata) and marks its items SOLD where not already SOLD, as one unit.
	// The bool is true only for the call that performed the transition. An order already PAID
	// is returned with false and no error.
	MarkOrderPaid(ctx context.Context, orderID string, verification map[string]interface{}) (*models.Order, bool, error)

	MergeTransactionMetadata(ctx context.Context, orderID string, metadata map[string]interface{}) error

	// CancelPendingOrders cancels every PENDING order created before cutoff and returns their ids.
	CancelPendingOrders(ctx context.Context, cutoff time.Time, reason string) ([]string, error)

	// ListUnsettledPaidOrders lists PAID orders, paid before cutoff, that have no platform earning.
	ListUnsettledPaidOrders(ctx context.Context, paidBefore time.Time, limit int) ([]string, error)
}

type ItemRepository interface {
	GetItems(ctx context.Context, ids []string) ([]*models.Item, error)
	SellerOwnsPayoutAccount(ctx context.Context, sellerID, account string) (bool, error)
}

type AccountRepository interface {
	GetSellerAccount(ctx context.Context, sellerID string) (*models.SellerAccount, error)
	CountActiveDisputes(ctx context.Context, sellerID string) (int, error)
}

// LedgerRepository holds seller credits and platform commission records.
type LedgerRepository interface {
	// CreditSeller appends the audit row and increments the seller's lifetime earnings
	// atomically. Returns false without effect when the (order, seller) pair is already credited.
	CreditSeller(ctx context.Context, payment *models.SellerPayment) (bool, error)

	// CreatePlatformEarning inserts the record unless one already exists for the order.
	CreatePlatformEarning(ctx context.Context, earning *models.PlatformEarning) (bool, error)
	GetPlatformEarning(ctx context.Context, orderID string) (*models.PlatformEarning, error)
	ListSellerSales(ctx context.Context, sellerID string) ([]models.SaleRecord, error)
}

type WithdrawalRepository interface {
	CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error
	GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error)
	ListWithdrawals(ctx context.Context, filter *models.WithdrawalListFilter) ([]*models.Withdrawal, int, error)
	SumWithdrawals(ctx context.Context, sellerID string, status models.WithdrawalStatus) (decimal.Decimal, error)
	CountWithdrawals(ctx context.Context, sellerID string, statuses []models.WithdrawalStatus) (int, error)

	// TransitionWithdrawal sets status to `to` only if the current status is one of `from`.
	// With requireBalance the seller's available balance is re-checked under a seller lock.
	// Moving into an in-flight status fails with ErrWithdrawalInFlight if the seller has another open withdrawal.
	TransitionWithdrawal(ctx context.Context, id string, from []models.WithdrawalStatus, to models.WithdrawalStatus, metadata map[string]interface{}, requireBalance bool) (*models.Withdrawal, error)

	// WithdrawalStats aggregates per status; an empty sellerID covers the platform.
	WithdrawalStats(ctx context.Context, sellerID string) (*models.WithdrawalStats, error)
}

type SettingsRepository interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	SaveSettings(ctx context.Context, settings *models.Settings) error
}

type CartRepository interface {
	RemoveCartItems(ctx context.Context, buyerID string, itemIDs []string) (int64, error)
}

// OrderCache defines caching operations for orders.
type OrderCache interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	SetOrder(ctx context.Context, order *models.Order) error
	DeleteOrders(ctx context.Context, ids ...string) error
}

// SettingsCache caches the platform settings row.
type SettingsCache interface {
	GetSettings(ctx context.Context) (*models.Settings, error)
	SetSettings(ctx context.Context, settings *models.Settings) error
	InvalidateSettings(ctx context.Context) error
}

// NopCache satisfies both caches without storing anything.
type NopCache struct{}

func (NopCache) GetOrder(context.Context, string) (*models.Order, error) { return nil, nil }
func (NopCache) SetOrder(context.Context, *models.Order) error { return nil }
func (NopCache) DeleteOrders(context.Context, ...string) error { return nil }
func (NopCache) GetSettings(context.Context) (*models.Settings, error) { return nil, nil }
func (NopCache) SetSettings(context.Context, *models.Settings) error { return nil }
func (NopCache) InvalidateSettings(context.Context) error { return nil }
