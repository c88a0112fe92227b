package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

func TestCreateOrder_TotalIsPriceSnapshot(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	summary := env.createOrder(t, itemA, itemB)
	assert.True(t, dec("150").Equal(summary.TotalAmount))
	assert.Equal(t, models.OrderStatusPending, summary.Status)
	assert.Equal(t, "ETB", summary.Currency)
	assert.True(t, ReferenceMatchesOrder(summary.Reference, summary.OrderID))
	assert.LessOrEqual(t, len(summary.Reference), 50)

	env.store.SetItemPrice(itemA, dec("999"))

	order, err := env.orders.GetOrder(ctx, buyer, summary.OrderID)
	require.NoError(t, err)
	assert.True(t, dec("150").Equal(order.TotalAmount))
	assert.True(t, OrderTotal(order.Items).Equal(order.TotalAmount))
	for _, item := range order.Items {
		if item.ItemID == itemA {
			assert.True(t, dec("100").Equal(item.Price))
		}
	}

	txn, err := env.store.GetTransaction(ctx, summary.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusInitiated, txn.Status)
	assert.Equal(t, "0.1", txn.Metadata[models.MetaCommissionRate])

	assert.Eventually(t, func() bool {
		return env.notifier.has(models.EventOrderCreated, summary.OrderID)
	}, time.Second, 10*time.Millisecond)
}

func TestCreateOrder_RejectedBeforeAnyWrite(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		req  *models.CreateOrderRequest
		kind errors.Kind
		code string
	}{
		{"No items", &models.CreateOrderRequest{ShippingInfo: shipping()}, errors.KindValidation, ""},
		{"Quantity above one", &models.CreateOrderRequest{
			Items: []models.OrderLine{{ItemID: itemA, Quantity: 2}}, ShippingInfo: shipping(),
		}, errors.KindValidation, ""},
		{"Duplicate items", orderRequest(itemA, itemA), errors.KindValidation, ""},
		{"Missing shipping", &models.CreateOrderRequest{
			Items: []models.OrderLine{{ItemID: itemA, Quantity: 1}},
		}, errors.KindValidation, ""},
		{"Unknown provider", &models.CreateOrderRequest{
			Items: []models.OrderLine{{ItemID: itemA, Quantity: 1}}, ShippingInfo: shipping(), PaymentMethod: "stripe",
		}, errors.KindValidation, ""},
		{"Unknown item", orderRequest("item-missing"), errors.KindNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.orders.CreateOrder(context.Background(), buyer, tt.req)
			requireKind(t, err, tt.kind)
		})
	}

	_, total, err := env.store.ListOrders(context.Background(), &models.OrderListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestCreateOrder_SelfPurchase(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.orders.CreateOrder(context.Background(), sellerA, orderRequest(itemA, itemB))
	requireCode(t, err, errors.CodeSelfPurchase)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, itemA, e.Details["item_ids"])

	_, total, err := env.store.ListOrders(context.Background(), &models.OrderListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestCreateOrder_ItemUnavailable(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddItem(&models.Item{ID: "item-sold", SellerID: sellerB.UserID, Price: dec("10"), Status: models.ItemStatusSold})

	_, err := env.orders.CreateOrder(context.Background(), buyer, orderRequest("item-sold"))
	requireCode(t, err, errors.CodeItemUnavailable)
}

func TestCreateOrder_MixedCurrencies(t *testing.T) {
	env := newTestEnv(t)
	env.store.AddItem(&models.Item{ID: "item-usd", SellerID: sellerB.UserID, Price: dec("10"), Currency: "USD", Status: models.ItemStatusApproved})

	_, err := env.orders.CreateOrder(context.Background(), buyer, orderRequest(itemA, "item-usd"))
	requireKind(t, err, errors.KindValidation)
}

func TestCompleteOrder_SplitsCommissionPerSeller(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.AddCartItem(buyer.UserID, itemA)
	env.store.AddCartItem(buyer.UserID, itemB)
	env.store.AddCartItem(buyer.UserID, "item-other")

	summary := env.createOrder(t, itemA, itemB)
	order, err := env.orders.CompleteOrder(ctx, summary.OrderID, "CHAPA-1", "chapa", nil)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPaid, order.Status)
	assert.True(t, dec("90").Equal(env.lifetime(t, sellerA.UserID)))
	assert.True(t, dec("45").Equal(env.lifetime(t, sellerB.UserID)))

	earning, err := env.store.GetPlatformEarning(ctx, summary.OrderID)
	require.NoError(t, err)
	assert.True(t, dec("15").Equal(earning.Amount))
	assert.True(t, dec("0.1").Equal(earning.CommissionRate))
	assert.Equal(t, 1, env.store.PlatformEarningCount())

	txn, err := env.store.GetTransaction(ctx, summary.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.TransactionStatusCompleted, txn.Status)
	assert.Equal(t, "CHAPA-1", txn.Metadata[models.MetaProviderReference])

	items, err := env.store.GetItems(ctx, []string{itemA, itemB})
	require.NoError(t, err)
	for _, item := range items {
		assert.Equal(t, models.ItemStatusSold, item.Status)
	}
	assert.Equal(t, []string{"item-other"}, env.store.CartItems(buyer.UserID))

	assert.Eventually(t, func() bool {
		return env.notifier.has(models.EventOrderSettled, summary.OrderID)
	}, time.Second, 10*time.Millisecond)
}

func TestCompleteOrder_DuplicateCallbackIsNoop(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	summary := env.createOrder(t, itemA, itemB)
	first, err := env.orders.CompleteOrder(ctx, summary.OrderID, "CHAPA-1", "chapa", nil)
	require.NoError(t, err)

	second, err := env.orders.CompleteOrder(ctx, summary.OrderID, "CHAPA-1", "chapa", nil)
	require.NoError(t, err)

	assert.Equal(t, models.OrderStatusPaid, second.Status)
	assert.Equal(t, first.PaidAt, second.PaidAt)
	assert.Equal(t, 1, env.store.PlatformEarningCount())
	assert.Equal(t, 2, env.store.SellerPaymentCount(summary.OrderID))
	assert.True(t, dec("90").Equal(env.lifetime(t, sellerA.UserID)))
	assert.Equal(t, 1, env.store.SoldTransitions(itemA))
}

func TestCompleteOrder_ConcurrentCallsSettleOnce(t *testing.T) {
	env := newTestEnv(t)
	summary := env.createOrder(t, itemA, itemB)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.orders.CompleteOrder(context.Background(), summary.OrderID, "CHAPA-1", "chapa", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.store.PlatformEarningCount())
	assert.Equal(t, 2, env.store.SellerPaymentCount(summary.OrderID))
	assert.True(t, dec("90").Equal(env.lifetime(t, sellerA.UserID)))
	assert.True(t, dec("45").Equal(env.lifetime(t, sellerB.UserID)))
}

func TestCompleteOrder_RacingOrdersSellItemOnce(t *testing.T) {
	env := newTestEnv(t)
	first := env.createOrder(t, itemA)
	second := env.createOrder(t, itemA)

	var wg sync.WaitGroup
	for _, id := range []string{first.OrderID, second.OrderID} {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			_, _ = env.orders.CompleteOrder(context.Background(), orderID, "ref", "chapa", nil)
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 1, env.store.SoldTransitions(itemA))
}

func TestCompleteOrder_CancelledOrderNotPayable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	summary := env.createOrder(t, itemA)
	_, err := env.store.CancelPendingOrders(ctx, time.Now().Add(time.Minute), CancelReasonExpired)
	require.NoError(t, err)

	_, err = env.orders.CompleteOrder(ctx, summary.OrderID, "CHAPA-1", "chapa", nil)
	requireCode(t, err, errors.CodeOrderNotPayable)

	assert.Equal(t, 0, env.store.PlatformEarningCount())
	assert.True(t, env.lifetime(t, sellerA.UserID).IsZero())
}

func TestCompleteOrder_PartialSettlementThenReconcile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.store.AddItem(&models.Item{ID: "item-c", SellerID: "seller-c", Price: dec("20"), Currency: "ETB", Status: models.ItemStatusApproved})

	summary := env.createOrder(t, itemA, "item-c")
	order, err := env.orders.CompleteOrder(ctx, summary.OrderID, "CHAPA-1", "chapa", nil)
	requireKind(t, err, errors.KindPartialSettlement)
	require.NotNil(t, order)
	assert.Equal(t, models.OrderStatusPaid, order.Status)

	var e *errors.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, StepSellerCredit, e.Details["step"])

	stored, err := env.store.GetOrder(ctx, summary.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, stored.Status)
	assert.True(t, dec("90").Equal(env.lifetime(t, sellerA.UserID)))
	assert.Equal(t, 1, env.store.PlatformEarningCount())

	assert.Eventually(t, func() bool {
		return env.notifier.has(models.EventOrderSettlementFault, summary.OrderID)
	}, time.Second, 10*time.Millisecond)

	env.store.AddSeller(&models.SellerAccount{ID: "seller-c", EmailVerified: true})
	require.NoError(t, env.orders.ReconcileSettlement(ctx, summary.OrderID))

	assert.True(t, dec("18").Equal(env.lifetime(t, "seller-c")))
	assert.True(t, dec("90").Equal(env.lifetime(t, sellerA.UserID)))
	assert.Equal(t, 1, env.store.PlatformEarningCount())
}

func TestReconcileSettlement_RequiresPaidOrder(t *testing.T) {
	env := newTestEnv(t)
	summary := env.createOrder(t, itemA)

	err := env.orders.ReconcileSettlement(context.Background(), summary.OrderID)
	requireCode(t, err, errors.CodeOrderNotPayable)
}

func TestGetOrder_Visibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	summary := env.createOrder(t, itemA)

	_, err := env.orders.GetOrder(ctx, sellerB, summary.OrderID)
	requireCode(t, err, errors.CodeForbidden)

	order, err := env.orders.GetOrder(ctx, admin, summary.OrderID)
	require.NoError(t, err)
	assert.Equal(t, buyer.UserID, order.BuyerID)

	_, err = env.orders.GetOrder(ctx, buyer, "missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestListBuyerOrders(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.createOrder(t, itemA)
	env.createOrder(t, itemB)
	_, err := env.orders.CompleteOrder(ctx, first.OrderID, "ref", "chapa", nil)
	require.NoError(t, err)

	all, total, err := env.orders.ListBuyerOrders(ctx, buyer, nil, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, all, 2)

	paid := models.OrderStatusPaid
	list, total, err := env.orders.ListBuyerOrders(ctx, buyer, &paid, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, first.OrderID, list[0].ID)

	none, _, err := env.orders.ListBuyerOrders(ctx, sellerA, nil, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCreateOrder_ReferenceFitsProviderLimit(t *testing.T) {
	env := newTestEnv(t)
	env.provider.maxRef = 20

	summary := env.createOrder(t, itemA)
	assert.LessOrEqual(t, len(summary.Reference), 20)
	assert.True(t, strings.HasPrefix(summary.OrderID, summary.Reference[:strings.LastIndex(summary.Reference, "-")]))
}
