package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SellerAccount is the slice of the user profile the ledger and withdrawal pipeline need.
// LifetimeEarnings only ever grows; withdrawals are subtracted at read time.
type SellerAccount struct {
	ID               string          `json:"id"`
	Email            string          `json:"email"`
	Name             string          `json:"name,omitempty"`
	EmailVerified    bool            `json:"email_verified"`
	Banned           bool            `json:"banned"`
	LifetimeEarnings decimal.Decimal `json:"lifetime_earnings"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// PlatformEarning records the commission kept from one settled order. Unique on OrderID.
type PlatformEarning struct {
	ID             string                 `json:"id"`
	OrderID        string                 `json:"order_id"`
	Amount         decimal.Decimal        `json:"amount"`
	CommissionRate decimal.Decimal        `json:"commission_rate"`
	Currency       string                 `json:"currency"`
	OrderSnapshot  map[string]interface{} `json:"order_snapshot"`
	CreatedAt      time.Time              `json:"created_at"`
}

// SellerPayment is the audit row written alongside every ledger credit.
// At most one exists per (OrderID, SellerID).
type SellerPayment struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"order_id"`
	SellerID  string          `json:"seller_id"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	Kind      string          `json:"kind"`
	CreatedAt time.Time       `json:"created_at"`
}

const SellerPaymentKind = "SELLER_PAYMENT"

// SellerCredit is the per-seller share of one order.
type SellerCredit struct {
	SellerID   string          `json:"seller_id"`
	Amount     decimal.Decimal `json:"amount"`
	Commission decimal.Decimal `json:"commission"`
	ItemCount  int             `json:"item_count"`
}

// SaleRecord is one sold item joined to the paid order it was sold in.
type SaleRecord struct {
	OrderID         string
	ItemID          string
	Title           string
	Price           decimal.Decimal
	Quantity        int
	Currency        string
	OrderTotal      decimal.Decimal
	PaidAt          time.Time
	CommissionRate  decimal.Decimal
	PlatformEarning *decimal.Decimal
}

type SaleDetail struct {
	OrderID      string          `json:"order_id"`
	ItemID       string          `json:"item_id"`
	Title        string          `json:"title"`
	SalePrice    decimal.Decimal `json:"sale_price"`
	Commission   decimal.Decimal `json:"commission"`
	SellerAmount decimal.Decimal `json:"seller_amount"`
	Currency     string          `json:"currency"`
	SoldAt       time.Time       `json:"sold_at"`
}

type EarningsSummary struct {
	SellerID         string          `json:"seller_id"`
	LifetimeEarnings decimal.Decimal `json:"lifetime_earnings"`
	TotalWithdrawn   decimal.Decimal `json:"total_withdrawn"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
	SalesCount       int             `json:"sales_count"`
	Sales            []SaleDetail    `json:"sales"`
}

type DisputeStatus string

const (
	DisputeStatusOpen       DisputeStatus = "OPEN"
	DisputeStatusInProgress DisputeStatus = "IN_PROGRESS"
	DisputeStatusResolved   DisputeStatus = "RESOLVED"
	DisputeStatusClosed     DisputeStatus = "CLOSED"
)

// AvailableBalance is lifetime earnings minus completed withdrawals, floored at zero.
func AvailableBalance(lifetime, withdrawn decimal.Decimal) decimal.Decimal {
	available := lifetime.Sub(withdrawn)
	if available.IsNegative() {
		return decimal.Zero
	}
	return available
}

// ActiveDisputeStatuses block withdrawals.
var ActiveDisputeStatuses = []DisputeStatus{DisputeStatusOpen, DisputeStatusInProgress}
