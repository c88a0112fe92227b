package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalStatusInitiated  WithdrawalStatus = "INITIATED"
	WithdrawalStatusProcessing WithdrawalStatus = "PROCESSING"
	WithdrawalStatusCompleted  WithdrawalStatus = "COMPLETED"
	WithdrawalStatusFailed     WithdrawalStatus = "FAILED"
	WithdrawalStatusRefunded   WithdrawalStatus = "REFUNDED"
)

// InFlightWithdrawalStatuses are the states a seller may hold at most one withdrawal in.
var InFlightWithdrawalStatuses = []WithdrawalStatus{WithdrawalStatusInitiated, WithdrawalStatusProcessing}

func (s WithdrawalStatus) Valid() bool {
	switch s {
	case WithdrawalStatusInitiated, WithdrawalStatusProcessing, WithdrawalStatusCompleted,
		WithdrawalStatusFailed, WithdrawalStatusRefunded:
		return true
	}
	return false
}

// InFlight reports whether s counts against the one-open-withdrawal limit.
func (s WithdrawalStatus) InFlight() bool {
	return s == WithdrawalStatusInitiated || s == WithdrawalStatusProcessing
}

// Metadata keys on a Withdrawal.
const (
	MetaRejectionReason      = "rejection_reason"
	MetaProviderPayoutStatus = "provider_payout_status"
	MetaReviewedBy           = "reviewed_by"
	MetaReviewedAt           = "reviewed_at"
	MetaNote                 = "note"
)

type Withdrawal struct {
	ID          string                 `json:"id"`
	SellerID    string                 `json:"seller_id"`
	Destination PayoutDestination      `json:"destination"`
	Amount      decimal.Decimal        `json:"amount"`
	Currency    string                 `json:"currency"`
	Status      WithdrawalStatus       `json:"status"`
	Metadata    map[string]interface{} `json:"metadata"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// PayoutDestination is the seller-controlled account a withdrawal is sent to.
type PayoutDestination struct {
	Channel     string `json:"channel"`
	Account     string `json:"account"`
	AccountName string `json:"account_name,omitempty"`
	BankCode    string `json:"bank_code,omitempty"`
}

type WithdrawalRequest struct {
	Amount      decimal.Decimal   `json:"amount"`
	Destination PayoutDestination `json:"destination"`
}

type UpdateWithdrawalStatusRequest struct {
	Status               WithdrawalStatus `json:"status"`
	RejectionReason      string           `json:"rejection_reason,omitempty"`
	ProviderPayoutStatus string           `json:"provider_payout_status,omitempty"`
	Note                 string           `json:"note,omitempty"`
}

type WithdrawalListFilter struct {
	SellerID string
	Status   *WithdrawalStatus
	Limit    int
	Offset   int
}

type WithdrawalStatusStats struct {
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type WithdrawalStats struct {
	SellerID       string                                     `json:"seller_id,omitempty"`
	ByStatus       map[WithdrawalStatus]WithdrawalStatusStats `json:"by_status"`
	TotalCount     int                                        `json:"total_count"`
	TotalWithdrawn decimal.Decimal                            `json:"total_withdrawn"`
	PendingAmount  decimal.Decimal                            `json:"pending_amount"`
}
