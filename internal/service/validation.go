package service

import (
	"net/mail"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// Payout channels accepted by ValidatePayoutDestination.
const (
	PayoutChannelBank   = "bank"
	PayoutChannelPayPal = "paypal"
)

// ValidateCreateOrderRequest validates an order creation request.
func ValidateCreateOrderRequest(req *models.CreateOrderRequest) error {
	if req == nil {
		return errors.NewValidationError("body", "request body is required")
	}

	if len(req.Items) == 0 {
		return errors.NewValidationError("items", "at least one item is required")
	}

	seen := make(map[string]struct{}, len(req.Items))
	for _, line := range req.Items {
		if strings.TrimSpace(line.ItemID) == "" {
			return errors.NewValidationError("items", "item ID is required for item")
		}
		if line.Quantity != 1 {
			return errors.NewValidationError("items", "quantity must be 1 for unique items").
				WithDetail("item_id", line.ItemID)
		}
		if _, dup := seen[line.ItemID]; dup {
			return errors.NewValidationError("items", "duplicate item in order").
				WithDetail("item_id", line.ItemID)
		}
		seen[line.ItemID] = struct{}{}
	}

	return validateShippingInfo(req.ShippingInfo)
}

func validateShippingInfo(info *models.ShippingInfo) error {
	if info == nil {
		return errors.NewValidationError("shipping_info", "shipping info is required")
	}
	if strings.TrimSpace(info.FullName) == "" {
		return errors.NewValidationError("shipping_info", "full name is required")
	}
	if strings.TrimSpace(info.Line1) == "" {
		return errors.NewValidationError("shipping_info", "address line 1 is required")
	}
	if strings.TrimSpace(info.City) == "" {
		return errors.NewValidationError("shipping_info", "city is required")
	}
	if strings.TrimSpace(info.Country) == "" {
		return errors.NewValidationError("shipping_info", "country is required")
	}
	return nil
}

// ValidateWithdrawalRequest checks the request shape before any business rule runs.
func ValidateWithdrawalRequest(req *models.WithdrawalRequest) error {
	if req == nil {
		return errors.NewValidationError("body", "request body is required")
	}
	if !req.Amount.IsPositive() {
		return errors.NewValidationError("amount", "amount must be positive")
	}
	if req.Amount.Exponent() < -2 {
		return errors.NewValidationError("amount", "amount cannot have more than two decimal places")
	}
	if strings.TrimSpace(req.Destination.Account) == "" {
		return errors.NewValidationError("destination", "payout account is required")
	}
	return nil
}

// ValidatePayoutDestination checks the account format for the payout channel in use.
func ValidatePayoutDestination(channel string, dest models.PayoutDestination) error {
	if dest.Channel != "" && dest.Channel != channel {
		return errors.NewValidationError("destination", "unsupported payout channel").
			WithDetail("channel", dest.Channel)
	}

	switch channel {
	case PayoutChannelBank:
		account := strings.ReplaceAll(dest.Account, " ", "")
		if len(account) < 8 || len(account) > 20 || !isDigits(account) {
			return errors.NewValidationError("destination", "bank account must be 8 to 20 digits")
		}
		if strings.TrimSpace(dest.AccountName) == "" {
			return errors.NewValidationError("destination", "account holder name is required")
		}
	case PayoutChannelPayPal:
		addr, err := mail.ParseAddress(dest.Account)
		if err != nil || addr.Address != dest.Account || !strings.Contains(addr.Address, ".") {
			return errors.NewValidationError("destination", "paypal payout account must be an email address")
		}
	default:
		return errors.NewValidationError("destination", "unsupported payout channel").
			WithDetail("channel", channel)
	}
	return nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// ValidateSettings checks a complete settings value before it is stored.
func ValidateSettings(s *models.Settings) error {
	if s.CommissionRate.IsNegative() || s.CommissionRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return errors.NewValidationError("commission_rate", "commission rate must be in [0, 1)")
	}
	if s.MinWithdrawal.IsNegative() {
		return errors.NewValidationError("min_withdrawal", "minimum withdrawal cannot be negative")
	}
	if s.MaxWithdrawal.IsNegative() {
		return errors.NewValidationError("max_withdrawal", "maximum withdrawal cannot be negative")
	}
	if !s.MaxWithdrawal.IsZero() && s.MaxWithdrawal.LessThan(s.MinWithdrawal) {
		return errors.NewValidationError("max_withdrawal", "maximum withdrawal must be zero or at least the minimum")
	}
	if s.OrderExpireAfter < 0 {
		return errors.NewValidationError("order_expire_after", "window cannot be negative")
	}
	if s.OrderAutoCancelAfter < 0 {
		return errors.NewValidationError("order_auto_cancel_after", "window cannot be negative")
	}
	return nil
}

// normalizePage applies the default page size and caps it.
func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
