package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

func TestValidatePayoutDestination(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		dest    models.PayoutDestination
		wantErr bool
	}{
		{"Bank account", PayoutChannelBank, models.PayoutDestination{Account: "1000 2000 3000", AccountName: "Abebe"}, false},
		{"Bank too short", PayoutChannelBank, models.PayoutDestination{Account: "12345", AccountName: "Abebe"}, true},
		{"Bank letters", PayoutChannelBank, models.PayoutDestination{Account: "10002000AB", AccountName: "Abebe"}, true},
		{"Bank missing holder", PayoutChannelBank, models.PayoutDestination{Account: "1000200030"}, true},
		{"PayPal email", PayoutChannelPayPal, models.PayoutDestination{Account: "seller@example.com"}, false},
		{"PayPal display name", PayoutChannelPayPal, models.PayoutDestination{Account: "Seller <seller@example.com>"}, true},
		{"PayPal no domain dot", PayoutChannelPayPal, models.PayoutDestination{Account: "seller@localhost"}, true},
		{"Channel mismatch", PayoutChannelBank, models.PayoutDestination{Channel: PayoutChannelPayPal, Account: "1000200030", AccountName: "Abebe"}, true},
		{"Unknown channel", "crypto", models.PayoutDestination{Account: "0xabc"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePayoutDestination(tt.channel, tt.dest)
			if tt.wantErr {
				requireKind(t, err, errors.KindValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidateWithdrawalRequest(t *testing.T) {
	dest := models.PayoutDestination{Account: "1000200030"}

	assert.NoError(t, ValidateWithdrawalRequest(&models.WithdrawalRequest{Amount: dec("12.50"), Destination: dest}))
	requireKind(t, ValidateWithdrawalRequest(nil), errors.KindValidation)
	requireKind(t, ValidateWithdrawalRequest(&models.WithdrawalRequest{Amount: dec("0"), Destination: dest}), errors.KindValidation)
	requireKind(t, ValidateWithdrawalRequest(&models.WithdrawalRequest{Amount: dec("-5"), Destination: dest}), errors.KindValidation)
	requireKind(t, ValidateWithdrawalRequest(&models.WithdrawalRequest{Amount: dec("1.005"), Destination: dest}), errors.KindValidation)
	requireKind(t, ValidateWithdrawalRequest(&models.WithdrawalRequest{Amount: dec("10")}), errors.KindValidation)
}

func TestValidateSettings(t *testing.T) {
	valid := func() *models.Settings {
		return &models.Settings{CommissionRate: dec("0.10"), MinWithdrawal: dec("10"), MaxWithdrawal: dec("1000")}
	}

	require.NoError(t, ValidateSettings(valid()))

	tests := []struct {
		name   string
		mutate func(*models.Settings)
		field  string
	}{
		{"Negative rate", func(s *models.Settings) { s.CommissionRate = dec("-0.01") }, "commission_rate"},
		{"Rate of one", func(s *models.Settings) { s.CommissionRate = dec("1") }, "commission_rate"},
		{"Negative minimum", func(s *models.Settings) { s.MinWithdrawal = dec("-1") }, "min_withdrawal"},
		{"Maximum below minimum", func(s *models.Settings) { s.MaxWithdrawal = dec("5") }, "max_withdrawal"},
		{"Negative window", func(s *models.Settings) { s.OrderExpireAfter = -1 }, "order_expire_after"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := valid()
			tt.mutate(s)
			err := ValidateSettings(s)
			requireKind(t, err, errors.KindValidation)

			var appErr *errors.Error
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, tt.field, appErr.Field)
		})
	}

	unbounded := valid()
	unbounded.MaxWithdrawal = dec("0")
	assert.NoError(t, ValidateSettings(unbounded))
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		limit, offset         int
		wantLimit, wantOffset int
	}{
		{0, 0, defaultListLimit, 0},
		{-3, -1, defaultListLimit, 0},
		{50, 10, 50, 10},
		{500, 0, maxListLimit, 0},
	}
	for _, tt := range tests {
		limit, offset := normalizePage(tt.limit, tt.offset)
		assert.Equal(t, tt.wantLimit, limit)
		assert.Equal(t, tt.wantOffset, offset)
	}
}
