package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusPaid      OrderStatus = "PAID"
	OrderStatusCancelled OrderStatus = "CANCELLED"
	OrderStatusRefunded  OrderStatus = "REFUNDED"
)

// Order is a buyer's purchase of one or more items.
// TotalAmount is fixed at creation from the item price snapshots.
type Order struct {
	ID            string          `json:"id"`
	BuyerID       string          `json:"buyer_id,omitempty"`
	BuyerEmail    string          `json:"buyer_email,omitempty"`
	Items         []OrderItem     `json:"items"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	Status        OrderStatus     `json:"status"`
	Provider      string          `json:"provider"`
	Reference     string          `json:"reference"`
	CancelReason  string          `json:"cancel_reason,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	ShippingInfo  *ShippingInfo   `json:"shipping_info,omitempty"`
	PaymentMethod string          `json:"payment_method,omitempty"`
}

// ItemIDs returns the ids of every item in the order.
func (o *Order) ItemIDs() []string {
	ids := make([]string, 0, len(o.Items))
	for _, item := range o.Items {
		ids = append(ids, item.ItemID)
	}
	return ids
}

// OrderItem is an immutable line of an order. Price is the listed price when the order was placed.
type OrderItem struct {
	OrderID  string          `json:"order_id"`
	ItemID   string          `json:"item_id"`
	SellerID string          `json:"seller_id"`
	Title    string          `json:"title,omitempty"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// Total returns price × quantity.
func (i OrderItem) Total() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type ShippingInfo struct {
	FullName   string `json:"full_name"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country"`
}

// OrderLine is one requested (item, quantity) pair.
type OrderLine struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
}

type CreateOrderRequest struct {
	Items         []OrderLine   `json:"items"`
	ShippingInfo  *ShippingInfo `json:"shipping_info"`
	PaymentMethod string        `json:"payment_method"`
}

// OrderSummary is returned from order creation.
type OrderSummary struct {
	OrderID       string          `json:"order_id"`
	TransactionID string          `json:"transaction_id"`
	Reference     string          `json:"reference"`
	Provider      string          `json:"provider"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	Status        OrderStatus     `json:"status"`
	Items         []OrderItem     `json:"items"`
}

type OrderListFilter struct {
	BuyerID string
	Status  *OrderStatus
	Limit   int
	Offset  int
}
