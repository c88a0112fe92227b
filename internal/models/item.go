package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "PENDING"
	ItemStatusApproved  ItemStatus = "APPROVED"
	ItemStatusRejected  ItemStatus = "REJECTED"
	ItemStatusSold      ItemStatus = "SOLD"
	ItemStatusWithdrawn ItemStatus = "WITHDRAWN"
)

// Item is a unique, non-fungible listing owned by a seller.
type Item struct {
	ID            string          `json:"id"`
	SellerID      string          `json:"seller_id"`
	Title         string          `json:"title"`
	Price         decimal.Decimal `json:"price"`
	Currency      string          `json:"currency"`
	Status        ItemStatus      `json:"status"`
	PayoutAccount string          `json:"payout_account,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Purchasable reports whether the item can currently be ordered.
func (i *Item) Purchasable() bool {
	return i.Status == ItemStatusApproved
}
