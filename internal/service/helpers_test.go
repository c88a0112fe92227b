package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/Yab112/art-store-backend-sub000/internal/clients"
	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
	"github.com/Yab112/art-store-backend-sub000/internal/repository"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeProvider struct {
	mu          sync.Mutex
	name        string
	maxRef      int
	result      models.VerificationResult
	verifyErr   error
	initErr     error
	verifyCalls int
	lastVerify  string
}

func (p *fakeProvider) Name() string            { return p.name }
func (p *fakeProvider) MaxReferenceLength() int { return p.maxRef }

func (p *fakeProvider) Initialize(_ context.Context, req *models.InitializeRequest) (*models.InitializeResult, error) {
	if p.initErr != nil {
		return nil, p.initErr
	}
	return &models.InitializeResult{
		CheckoutURL:       "https://checkout.test/" + req.Reference,
		ProviderReference: "PROV-" + req.Reference,
	}, nil
}

func (p *fakeProvider) Verify(_ context.Context, providerReference string) (*models.VerificationResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.verifyCalls++
	p.lastVerify = providerReference
	if p.verifyErr != nil {
		return nil, p.verifyErr
	}
	r := p.result
	return &r, nil
}

func (p *fakeProvider) setResult(r models.VerificationResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result = r
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.verifyCalls
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []*models.DomainEvent
}

func (n *recordingNotifier) Publish(_ context.Context, e *models.DomainEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) has(eventType models.EventType, aggregateID string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, e := range n.events {
		if e.Type == eventType && e.AggregateID == aggregateID {
			return true
		}
	}
	return false
}

type testEnv struct {
	store       *repository.MemoryStore
	cfg         *config.Config
	provider    *fakeProvider
	notifier    *recordingNotifier
	settings    *SettingsService
	orders      *OrderService
	payments    *PaymentService
	ledger      *LedgerService
	withdrawals *WithdrawalService
	sweeper     *Sweeper
}

var (
	buyer   = models.Identity{UserID: "buyer-1", Email: "buyer@example.com", Role: models.RoleUser}
	sellerA = models.Identity{UserID: "seller-a", Email: "a@example.com", Role: models.RoleUser}
	sellerB = models.Identity{UserID: "seller-b", Email: "b@example.com", Role: models.RoleUser}
	admin   = models.Identity{UserID: "admin-1", Email: "admin@example.com", Role: models.RoleAdmin}
)

const (
	itemA         = "item-a"
	itemB         = "item-b"
	payoutAccount = "1000200030"
)

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		Chapa:  config.ChapaConfig{Currency: "ETB"},
		PayPal: config.PayPalConfig{Currency: "USD"},
		Settings: config.SettingsDefaults{
			CommissionRate:   dec("0.10"),
			MinWithdrawal:    dec("10"),
			MaxWithdrawal:    decimal.Zero,
			OrderExpireAfter: 24 * time.Hour,
		},
		Withdrawal: config.WithdrawalConfig{Channel: PayoutChannelBank, Currency: "ETB"},
		Sweeper:    config.SweeperConfig{Interval: time.Minute, ReconcileBatch: 10},
	}

	store := repository.NewMemoryStore()
	provider := &fakeProvider{name: clients.ProviderChapa, maxRef: 50}
	notifier := &recordingNotifier{}
	registry := clients.NewRegistry(provider)

	settings := NewSettingsService(store, repository.NopCache{}, cfg.Settings)
	orders := NewOrderService(store, store, store, store, repository.NopCache{}, settings, registry, notifier, cfg)
	ledger := NewLedgerService(store, store, store)

	env := &testEnv{
		store:       store,
		cfg:         cfg,
		provider:    provider,
		notifier:    notifier,
		settings:    settings,
		orders:      orders,
		payments:    NewPaymentService(store, orders, registry),
		ledger:      ledger,
		withdrawals: NewWithdrawalService(store, store, store, ledger, settings, notifier, cfg.Withdrawal),
		sweeper:     NewSweeper(store, repository.NopCache{}, settings, orders, notifier, cfg.Sweeper),
	}

	store.AddSeller(&models.SellerAccount{ID: sellerA.UserID, Email: sellerA.Email, EmailVerified: true})
	store.AddSeller(&models.SellerAccount{ID: sellerB.UserID, Email: sellerB.Email, EmailVerified: true})
	store.AddItem(&models.Item{
		ID: itemA, SellerID: sellerA.UserID, Title: "Harbour at dusk", Price: dec("100"),
		Currency: "ETB", Status: models.ItemStatusApproved, PayoutAccount: payoutAccount,
	})
	store.AddItem(&models.Item{
		ID: itemB, SellerID: sellerB.UserID, Title: "Study in blue", Price: dec("50"),
		Currency: "ETB", Status: models.ItemStatusApproved,
	})
	return env
}

func shipping() *models.ShippingInfo {
	return &models.ShippingInfo{FullName: "Abebe Kebede", Line1: "Bole Road 12", City: "Addis Ababa", Country: "ET"}
}

func orderRequest(itemIDs ...string) *models.CreateOrderRequest {
	lines := make([]models.OrderLine, 0, len(itemIDs))
	for _, id := range itemIDs {
		lines = append(lines, models.OrderLine{ItemID: id, Quantity: 1})
	}
	return &models.CreateOrderRequest{Items: lines, ShippingInfo: shipping()}
}

func (e *testEnv) createOrder(t *testing.T, itemIDs ...string) *models.OrderSummary {
	t.Helper()
	summary, err := e.orders.CreateOrder(context.Background(), buyer, orderRequest(itemIDs...))
	require.NoError(t, err)
	return summary
}

func (e *testEnv) lifetime(t *testing.T, sellerID string) decimal.Decimal {
	t.Helper()
	acct, err := e.store.GetSellerAccount(context.Background(), sellerID)
	require.NoError(t, err)
	return acct.LifetimeEarnings
}

func requireKind(t *testing.T, err error, kind errors.Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, errors.KindOf(err), "error: %v", err)
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, code, errors.CodeOf(err), "error: %v", err)
}
