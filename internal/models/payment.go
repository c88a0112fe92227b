package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	TransactionStatusInitiated  TransactionStatus = "INITIATED"
	TransactionStatusProcessing TransactionStatus = "PROCESSING"
	TransactionStatusCompleted  TransactionStatus = "COMPLETED"
	TransactionStatusFailed     TransactionStatus = "FAILED"
)

// Metadata keys on a buyer Transaction.
const (
	MetaProviderReference = "provider_reference"
	MetaCommissionRate    = "commission_rate"
	MetaShippingInfo      = "shipping_info"
	MetaPaymentMethod     = "payment_method"
	MetaVerification      = "verification"
	MetaCheckoutURL       = "checkout_url"
)

// Transaction is the buyer payment attached one-to-one to an order.
type Transaction struct {
	ID        string                 `json:"id"`
	OrderID   string                 `json:"order_id"`
	Amount    decimal.Decimal        `json:"amount"`
	Currency  string                 `json:"currency"`
	Status    TransactionStatus      `json:"status"`
	Provider  string                 `json:"provider"`
	Reference string                 `json:"reference"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// VerificationStatus is the canonical provider verification outcome.
type VerificationStatus string

const (
	VerificationSuccess VerificationStatus = "success"
	VerificationPending VerificationStatus = "pending"
	VerificationFailed  VerificationStatus = "failed"
)

// InitializeRequest is what a provider needs to open a checkout session.
type InitializeRequest struct {
	Amount      decimal.Decimal
	Currency    string
	BuyerEmail  string
	BuyerName   string
	Reference   string
	Description string
}

type InitializeResult struct {
	CheckoutURL       string `json:"checkout_url"`
	ProviderReference string `json:"provider_reference"`
}

// VerificationResult is the normalized shape every provider adapter reports.
type VerificationResult struct {
	Status              VerificationStatus `json:"status"`
	Amount              decimal.Decimal    `json:"amount"`
	Currency            string             `json:"currency"`
	BuyerContact        string             `json:"buyer_contact,omitempty"`
	NormalizedReference string             `json:"normalized_reference"`
	ProviderReference   string             `json:"provider_reference,omitempty"`
	ProviderStatus      string             `json:"provider_status,omitempty"`
	Raw                 map[string]any     `json:"raw,omitempty"`
}

// Metadata flattens the result for merging into a Transaction's metadata.
func (v *VerificationResult) Metadata() map[string]interface{} {
	return map[string]interface{}{
		"status":               string(v.Status),
		"amount":               v.Amount.String(),
		"currency":             v.Currency,
		"buyer_contact":        v.BuyerContact,
		"normalized_reference": v.NormalizedReference,
		"provider_reference":   v.ProviderReference,
		"provider_status":      v.ProviderStatus,
	}
}

// PaymentCallback is an inbound provider notification, from a webhook, a return URL or the callbacks topic.
type PaymentCallback struct {
	Provider  string `json:"provider"`
	Reference string `json:"reference"`
}
