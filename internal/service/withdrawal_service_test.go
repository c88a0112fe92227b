package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

func withdrawalRequest(amount string) *models.WithdrawalRequest {
	return &models.WithdrawalRequest{
		Amount: dec(amount),
		Destination: models.PayoutDestination{
			Account:     payoutAccount,
			AccountName: "Seller A",
			BankCode:    "CBE",
		},
	}
}

// fundSeller gives seller A a ledger balance of 150.
func fundSeller(env *testEnv) {
	env.store.AddSeller(&models.SellerAccount{
		ID: sellerA.UserID, Email: sellerA.Email, EmailVerified: true, LifetimeEarnings: dec("150"),
	})
}

func countWithdrawals(t *testing.T, env *testEnv) int {
	t.Helper()
	_, total, err := env.store.ListWithdrawals(context.Background(), &models.WithdrawalListFilter{})
	require.NoError(t, err)
	return total
}

func TestRequestWithdrawal_Accepted(t *testing.T) {
	env := newTestEnv(t)
	fundSeller(env)

	w, err := env.withdrawals.RequestWithdrawal(context.Background(), sellerA, withdrawalRequest("50"))
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusInitiated, w.Status)
	assert.Equal(t, sellerA.UserID, w.SellerID)
	assert.Equal(t, PayoutChannelBank, w.Destination.Channel)
	assert.Equal(t, "ETB", w.Currency)

	assert.Eventually(t, func() bool {
		return env.notifier.has(models.EventWithdrawalRequested, w.ID)
	}, time.Second, 10*time.Millisecond)
}

func TestRequestWithdrawal_InsufficientBalance(t *testing.T) {
	env := newTestEnv(t)
	fundSeller(env)

	_, err := env.withdrawals.RequestWithdrawal(context.Background(), sellerA, withdrawalRequest("200"))
	requireCode(t, err, errors.CodeInsufficientBalance)
	assert.Equal(t, 0, countWithdrawals(t, env))
}

func TestRequestWithdrawal_SecondInFlightRejected(t *testing.T) {
	env := newTestEnv(t)
	fundSeller(env)
	ctx := context.Background()

	_, err := env.withdrawals.RequestWithdrawal(ctx, sellerA, withdrawalRequest("50"))
	require.NoError(t, err)

	_, err = env.withdrawals.RequestWithdrawal(ctx, sellerA, withdrawalRequest("30"))
	requireCode(t, err, errors.CodeWithdrawalInFlight)
	assert.Equal(t, 1, countWithdrawals(t, env))
}

func TestRequestWithdrawal_PipelineOrder(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(env *testEnv)
		req      *models.WithdrawalRequest
		wantKind errors.Kind
		wantCode string
	}{
		{
			name:     "Non-positive amount",
			req:      withdrawalRequest("0"),
			wantKind: errors.KindValidation,
		},
		{
			name: "Destination not owned",
			req: &models.WithdrawalRequest{Amount: dec("50"), Destination: models.PayoutDestination{
				Account: "9999999999", AccountName: "Someone",
			}},
			wantKind: errors.KindBusinessRule,
			wantCode: errors.CodeDestinationNotOwned,
		},
		{
			name: "Unverified email checked before balance",
			setup: func(env *testEnv) {
				env.store.AddSeller(&models.SellerAccount{ID: sellerA.UserID, EmailVerified: false})
			},
			req:      withdrawalRequest("500"),
			wantKind: errors.KindBusinessRule,
			wantCode: errors.CodeEmailNotVerified,
		},
		{
			name: "Banned account",
			setup: func(env *testEnv) {
				env.store.AddSeller(&models.SellerAccount{ID: sellerA.UserID, EmailVerified: true, Banned: true, LifetimeEarnings: dec("150")})
			},
			req:      withdrawalRequest("50"),
			wantKind: errors.KindBusinessRule,
			wantCode: errors.CodeAccountBanned,
		},
		{
			name: "Active dispute",
			setup: func(env *testEnv) {
				fundSeller(env)
				env.store.AddDispute(sellerA.UserID, models.DisputeStatusClosed)
				env.store.AddDispute(sellerA.UserID, models.DisputeStatusInProgress)
			},
			req:      withdrawalRequest("50"),
			wantKind: errors.KindBusinessRule,
			wantCode: errors.CodeActiveDispute,
		},
		{
			name:     "Insufficient balance checked before bounds",
			setup:    fundSeller,
			req:      withdrawalRequest("5000"),
			wantKind: errors.KindBusinessRule,
			wantCode: errors.CodeInsufficientBalance,
		},
		{
			name:     "Below minimum",
			setup:    fundSeller,
			req:      withdrawalRequest("5"),
			wantKind: errors.KindBusinessRule,
			wantCode: errors.CodeAmountOutOfBounds,
		},
		{
			name: "Above maximum",
			setup: func(env *testEnv) {
				fundSeller(env)
				maxAmount := dec("40")
				_, err := env.settings.UpdateSettings(context.Background(), admin, &models.UpdateSettingsRequest{MaxWithdrawal: &maxAmount})
				if err != nil {
					panic(err)
				}
			},
			req:      withdrawalRequest("50"),
			wantKind: errors.KindBusinessRule,
			wantCode: errors.CodeAmountOutOfBounds,
		},
		{
			name: "Malformed destination checked last",
			setup: func(env *testEnv) {
				fundSeller(env)
				env.store.AddItem(&models.Item{ID: "item-x", SellerID: sellerA.UserID, Status: models.ItemStatusApproved, PayoutAccount: "12ab"})
			},
			req: &models.WithdrawalRequest{Amount: dec("50"), Destination: models.PayoutDestination{
				Account: "12ab", AccountName: "Seller A",
			}},
			wantKind: errors.KindValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			if tt.setup != nil {
				tt.setup(env)
			}

			_, err := env.withdrawals.RequestWithdrawal(context.Background(), sellerA, tt.req)
			requireKind(t, err, tt.wantKind)
			if tt.wantCode != "" {
				requireCode(t, err, tt.wantCode)
			}
			assert.Equal(t, 0, countWithdrawals(t, env))
		})
	}
}

func TestUpdateWithdrawalStatus_TransitionTable(t *testing.T) {
	statuses := []models.WithdrawalStatus{
		models.WithdrawalStatusInitiated,
		models.WithdrawalStatusProcessing,
		models.WithdrawalStatusCompleted,
		models.WithdrawalStatusFailed,
		models.WithdrawalStatusRefunded,
	}
	allowed := map[string]bool{
		"INITIATED->PROCESSING": true,
		"INITIATED->COMPLETED":  true,
		"INITIATED->FAILED":     true,
		"PROCESSING->COMPLETED": true,
		"PROCESSING->FAILED":    true,
		"FAILED->INITIATED":     true,
		"FAILED->PROCESSING":    true,
	}

	for _, from := range statuses {
		for _, to := range statuses {
			key := fmt.Sprintf("%s->%s", from, to)
			t.Run(key, func(t *testing.T) {
				env := newTestEnv(t)
				fundSeller(env)
				ctx := context.Background()
				require.NoError(t, env.store.CreateWithdrawal(ctx, &models.Withdrawal{
					ID: "w-1", SellerID: sellerA.UserID, Amount: dec("50"), Status: from,
					Metadata: map[string]interface{}{}, CreatedAt: time.Now(),
				}))

				updated, err := env.withdrawals.UpdateWithdrawalStatus(ctx, admin, "w-1", &models.UpdateWithdrawalStatusRequest{Status: to})
				stored, getErr := env.store.GetWithdrawal(ctx, "w-1")
				require.NoError(t, getErr)

				if allowed[key] {
					require.NoError(t, err)
					assert.Equal(t, to, updated.Status)
					assert.Equal(t, to, stored.Status)
					assert.Equal(t, admin.UserID, stored.Metadata[models.MetaReviewedBy])
				} else {
					requireCode(t, err, errors.CodeInvalidTransition)
					assert.Equal(t, from, stored.Status)
				}
			})
		}
	}
}

func TestUpdateWithdrawalStatus_RetryBlockedByOpenWithdrawal(t *testing.T) {
	for _, to := range models.InFlightWithdrawalStatuses {
		t.Run(string(to), func(t *testing.T) {
			env := newTestEnv(t)
			fundSeller(env)
			ctx := context.Background()

			first, err := env.withdrawals.RequestWithdrawal(ctx, sellerA, withdrawalRequest("50"))
			require.NoError(t, err)
			_, err = env.withdrawals.UpdateWithdrawalStatus(ctx, admin, first.ID, &models.UpdateWithdrawalStatusRequest{
				Status: models.WithdrawalStatusFailed, RejectionReason: "bank rejected",
			})
			require.NoError(t, err)

			second, err := env.withdrawals.RequestWithdrawal(ctx, sellerA, withdrawalRequest("30"))
			require.NoError(t, err)

			_, err = env.withdrawals.UpdateWithdrawalStatus(ctx, admin, first.ID, &models.UpdateWithdrawalStatusRequest{Status: to})
			requireCode(t, err, errors.CodeWithdrawalInFlight)

			stored, err := env.store.GetWithdrawal(ctx, first.ID)
			require.NoError(t, err)
			assert.Equal(t, models.WithdrawalStatusFailed, stored.Status)

			open, err := env.store.CountWithdrawals(ctx, sellerA.UserID, models.InFlightWithdrawalStatuses)
			require.NoError(t, err)
			assert.Equal(t, 1, open)

			// once the other withdrawal settles the retry goes through
			_, err = env.withdrawals.UpdateWithdrawalStatus(ctx, admin, second.ID, &models.UpdateWithdrawalStatusRequest{Status: models.WithdrawalStatusCompleted})
			require.NoError(t, err)
			retried, err := env.withdrawals.UpdateWithdrawalStatus(ctx, admin, first.ID, &models.UpdateWithdrawalStatusRequest{Status: to})
			require.NoError(t, err)
			assert.Equal(t, to, retried.Status)
		})
	}
}

func TestUpdateWithdrawalStatus_CompletionRechecksBalance(t *testing.T) {
	env := newTestEnv(t)
	fundSeller(env)
	ctx := context.Background()

	require.NoError(t, env.store.CreateWithdrawal(ctx, &models.Withdrawal{
		ID: "w-paid", SellerID: sellerA.UserID, Amount: dec("80"), Status: models.WithdrawalStatusCompleted, CreatedAt: time.Now(),
	}))
	require.NoError(t, env.store.CreateWithdrawal(ctx, &models.Withdrawal{
		ID: "w-open", SellerID: sellerA.UserID, Amount: dec("100"), Status: models.WithdrawalStatusInitiated, CreatedAt: time.Now(),
	}))

	_, err := env.withdrawals.UpdateWithdrawalStatus(ctx, admin, "w-open", &models.UpdateWithdrawalStatusRequest{Status: models.WithdrawalStatusCompleted})
	requireCode(t, err, errors.CodeInsufficientBalance)

	stored, err := env.store.GetWithdrawal(ctx, "w-open")
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusInitiated, stored.Status)

	summary, err := env.ledger.GetEarningsSummary(ctx, sellerA, sellerA.UserID)
	require.NoError(t, err)
	assert.True(t, dec("70").Equal(summary.AvailableBalance))
}

func TestUpdateWithdrawalStatus_FailureRecordsReason(t *testing.T) {
	env := newTestEnv(t)
	fundSeller(env)
	ctx := context.Background()

	w, err := env.withdrawals.RequestWithdrawal(ctx, sellerA, withdrawalRequest("50"))
	require.NoError(t, err)

	_, err = env.withdrawals.UpdateWithdrawalStatus(ctx, sellerA, w.ID, &models.UpdateWithdrawalStatusRequest{Status: models.WithdrawalStatusFailed})
	requireCode(t, err, errors.CodeForbidden)

	updated, err := env.withdrawals.UpdateWithdrawalStatus(ctx, admin, w.ID, &models.UpdateWithdrawalStatusRequest{
		Status:               models.WithdrawalStatusFailed,
		RejectionReason:      "account name mismatch",
		ProviderPayoutStatus: "rejected",
	})
	require.NoError(t, err)
	assert.Equal(t, "account name mismatch", updated.Metadata[models.MetaRejectionReason])
	assert.Equal(t, "rejected", updated.Metadata[models.MetaProviderPayoutStatus])

	assert.Eventually(t, func() bool {
		return env.notifier.has(models.EventWithdrawalStatusChanged, w.ID)
	}, time.Second, 10*time.Millisecond)

	_, err = env.withdrawals.RequestWithdrawal(ctx, sellerA, withdrawalRequest("30"))
	assert.NoError(t, err, "a failed withdrawal is no longer in flight")
}

func TestWithdrawalQueries_SellerScoped(t *testing.T) {
	env := newTestEnv(t)
	fundSeller(env)
	ctx := context.Background()

	w, err := env.withdrawals.RequestWithdrawal(ctx, sellerA, withdrawalRequest("50"))
	require.NoError(t, err)
	require.NoError(t, env.store.CreateWithdrawal(ctx, &models.Withdrawal{
		ID: "w-b", SellerID: sellerB.UserID, Amount: dec("20"), Status: models.WithdrawalStatusCompleted, CreatedAt: time.Now(),
	}))

	list, total, err := env.withdrawals.ListWithdrawals(ctx, sellerA, models.WithdrawalListFilter{SellerID: sellerB.UserID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, w.ID, list[0].ID)

	_, total, err = env.withdrawals.ListWithdrawals(ctx, admin, models.WithdrawalListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	_, err = env.withdrawals.GetWithdrawal(ctx, sellerB, w.ID)
	requireCode(t, err, errors.CodeForbidden)

	stats, err := env.withdrawals.GetWithdrawalStats(ctx, sellerA, "")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalCount)
	assert.True(t, dec("50").Equal(stats.PendingAmount))

	platform, err := env.withdrawals.GetWithdrawalStats(ctx, admin, "")
	require.NoError(t, err)
	assert.Equal(t, 2, platform.TotalCount)
	assert.True(t, dec("20").Equal(platform.TotalWithdrawn))
}

func TestIsValidWithdrawalTransition_RefundedUnreachable(t *testing.T) {
	for from := range withdrawalTransitions {
		assert.False(t, isValidWithdrawalTransition(from, models.WithdrawalStatusRefunded), "from %s", from)
	}
	assert.False(t, isValidWithdrawalTransition(models.WithdrawalStatusCompleted, models.WithdrawalStatusFailed))
}
