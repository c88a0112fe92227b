package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settings is the mutable platform configuration.
type Settings struct {
	CommissionRate       decimal.Decimal `json:"commission_rate"`
	MinWithdrawal        decimal.Decimal `json:"min_withdrawal"`
	MaxWithdrawal        decimal.Decimal `json:"max_withdrawal"`
	OrderExpireAfter     time.Duration   `json:"order_expire_after"`
	OrderAutoCancelAfter time.Duration   `json:"order_auto_cancel_after"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

type WithdrawalBounds struct {
	Min decimal.Decimal `json:"min"`
	// Max of zero means unbounded.
	Max decimal.Decimal `json:"max"`
}

type ExpiryWindows struct {
	ExpireAfter     time.Duration `json:"expire_after"`
	AutoCancelAfter time.Duration `json:"auto_cancel_after"`
}

// UpdateSettingsRequest is a partial update; nil fields keep their current value.
// Windows are in seconds, zero disables the policy.
type UpdateSettingsRequest struct {
	CommissionRate              *decimal.Decimal `json:"commission_rate,omitempty"`
	MinWithdrawal               *decimal.Decimal `json:"min_withdrawal,omitempty"`
	MaxWithdrawal               *decimal.Decimal `json:"max_withdrawal,omitempty"`
	OrderExpireAfterSeconds     *int64           `json:"order_expire_after_seconds,omitempty"`
	OrderAutoCancelAfterSeconds *int64           `json:"order_auto_cancel_after_seconds,omitempty"`
}
