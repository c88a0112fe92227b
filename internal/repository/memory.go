package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

// MemoryStore implements every repository interface in process memory.
// A single mutex makes each method atomic, which gives the same guarantees as the
// conditional statements in the Postgres implementation. Used by tests and local runs.
type MemoryStore struct {
	mu sync.RWMutex

	orders       map[string]*models.Order
	transactions map[string]*models.Transaction
	items        map[string]*models.Item
	accounts     map[string]*models.SellerAccount
	disputes     map[string][]models.DisputeStatus
	payments     map[string]*models.SellerPayment
	earnings     map[string]*models.PlatformEarning
	withdrawals  map[string]*models.Withdrawal
	carts        map[string]map[string]struct{}
	settings     *models.Settings

	soldTransitions map[string]int
	logger          *logging.LoggerV2
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:          make(map[string]*models.Order),
		transactions:    make(map[string]*models.Transaction),
		items:           make(map[string]*models.Item),
		accounts:        make(map[string]*models.SellerAccount),
		disputes:        make(map[string][]models.DisputeStatus),
		payments:        make(map[string]*models.SellerPayment),
		earnings:        make(map[string]*models.PlatformEarning),
		withdrawals:     make(map[string]*models.Withdrawal),
		carts:           make(map[string]map[string]struct{}),
		soldTransitions: make(map[string]int),
		logger:          logging.NewLoggerV2("memory-store"),
	}
}

// AddItem seeds or replaces a catalog item.
func (s *MemoryStore) AddItem(item *models.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *item
	s.items[item.ID] = &cp
}

// SetItemPrice changes the listed price of an existing item.
func (s *MemoryStore) SetItemPrice(itemID string, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item, ok := s.items[itemID]; ok {
		item.Price = price
	}
}

func (s *MemoryStore) AddSeller(acct *models.SellerAccount) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *acct
	s.accounts[acct.ID] = &cp
}

func (s *MemoryStore) AddDispute(sellerID string, status models.DisputeStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disputes[sellerID] = append(s.disputes[sellerID], status)
}

func (s *MemoryStore) AddCartItem(userID, itemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.carts[userID] == nil {
		s.carts[userID] = make(map[string]struct{})
	}
	s.carts[userID][itemID] = struct{}{}
}

func (s *MemoryStore) CartItems(userID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.carts[userID]))
	for id := range s.carts[userID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SoldTransitions reports how many times an item was moved to SOLD.
func (s *MemoryStore) SoldTransitions(itemID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.soldTransitions[itemID]
}

func (s *MemoryStore) PlatformEarningCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.earnings)
}

func (s *MemoryStore) SellerPaymentCount(orderID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, p := range s.payments {
		if p.OrderID == orderID {
			n++
		}
	}
	return n
}

// SetOrderCreatedAt backdates an order for expiry tests.
func (s *MemoryStore) SetOrderCreatedAt(orderID string, t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok {
		o.CreatedAt = t
	}
}

func copyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func copyOrder(o *models.Order) *models.Order {
	cp := *o
	cp.Items = append([]models.OrderItem(nil), o.Items...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		cp.PaidAt = &t
	}
	if o.ShippingInfo != nil {
		info := *o.ShippingInfo
		cp.ShippingInfo = &info
	}
	return &cp
}

func copyWithdrawal(w *models.Withdrawal) *models.Withdrawal {
	cp := *w
	cp.Metadata = copyMap(w.Metadata)
	return &cp
}

func paymentKey(orderID, sellerID string) string { return orderID + "/" + sellerID }

// OrderRepository

func (s *MemoryStore) CreateOrder(_ context.Context, order *models.Order, txn *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[order.ID]; ok {
		return errors.NewValidationError("id", "order already exists")
	}
	for _, o := range s.orders {
		if o.Reference == order.Reference {
			return errors.NewValidationError("reference", "order reference already in use")
		}
	}

	s.orders[order.ID] = copyOrder(order)
	t := *txn
	t.Metadata = copyMap(txn.Metadata)
	s.transactions[order.ID] = &t
	return nil
}

func (s *MemoryStore) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, errors.NewNotFoundError("order", id)
	}
	return copyOrder(o), nil
}

func (s *MemoryStore) GetOrderByReference(_ context.Context, reference string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, o := range s.orders {
		if o.Reference == reference {
			return copyOrder(o), nil
		}
	}
	return nil, errors.NewNotFoundError("order", reference)
}

func (s *MemoryStore) GetTransaction(_ context.Context, orderID string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[orderID]
	if !ok {
		return nil, errors.NewNotFoundError("transaction", orderID)
	}
	cp := *t
	cp.Metadata = copyMap(t.Metadata)
	return &cp, nil
}

func (s *MemoryStore) ListOrders(_ context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Order, 0)
	for _, o := range s.orders {
		if filter.BuyerID != "" && o.BuyerID != filter.BuyerID {
			continue
		}
		if filter.Status != nil && o.Status != *filter.Status {
			continue
		}
		matched = append(matched, copyOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, filter.Limit, filter.Offset), len(matched), nil
}

func paginate[T any](list []T, limit, offset int) []T {
	if offset >= len(list) {
		return []T{}
	}
	list = list[offset:]
	if limit > 0 && limit < len(list) {
		list = list[:limit]
	}
	return list
}

func (s *MemoryStore) MarkOrderPaid(_ context.Context, orderID string, verification map[string]interface{}) (*models.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, false, errors.NewNotFoundError("order", orderID)
	}
	switch o.Status {
	case models.OrderStatusPaid:
		return copyOrder(o), false, nil
	case models.OrderStatusPending:
	default:
		return copyOrder(o), false, ErrOrderNotPayable
	}

	now := time.Now().UTC()
	o.Status = models.OrderStatusPaid
	o.PaidAt = &now
	o.UpdatedAt = now

	if t, ok := s.transactions[orderID]; ok {
		t.Status = models.TransactionStatusCompleted
		for k, v := range verification {
			t.Metadata[k] = v
		}
		t.UpdatedAt = now
	}

	sold := 0
	for _, line := range o.Items {
		item, ok := s.items[line.ItemID]
		if !ok || item.Status == models.ItemStatusSold {
			continue
		}
		item.Status = models.ItemStatusSold
		item.UpdatedAt = now
		s.soldTransitions[item.ID]++
		sold++
	}
	reportAlreadySold(s.logger, o, sold)

	return copyOrder(o), true, nil
}

func (s *MemoryStore) MergeTransactionMetadata(_ context.Context, orderID string, metadata map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.transactions[orderID]
	if !ok {
		return errors.NewNotFoundError("transaction", orderID)
	}
	for k, v := range metadata {
		t.Metadata[k] = v
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CancelPendingOrders(_ context.Context, cutoff time.Time, reason string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0)
	now := time.Now().UTC()
	for id, o := range s.orders {
		if o.Status != models.OrderStatusPending || !o.CreatedAt.Before(cutoff) {
			continue
		}
		o.Status = models.OrderStatusCancelled
		o.CancelReason = reason
		o.UpdatedAt = now
		if t, ok := s.transactions[id]; ok &&
			(t.Status == models.TransactionStatusInitiated || t.Status == models.TransactionStatusProcessing) {
			t.Status = models.TransactionStatusFailed
			t.UpdatedAt = now
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) ListUnsettledPaidOrders(_ context.Context, paidBefore time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	candidates := make([]*models.Order, 0)
	for id, o := range s.orders {
		if o.Status != models.OrderStatusPaid || o.PaidAt == nil || !o.PaidAt.Before(paidBefore) {
			continue
		}
		if _, settled := s.earnings[id]; settled {
			continue
		}
		candidates = append(candidates, o)
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].PaidAt.Before(*candidates[j].PaidAt)
	})

	ids := make([]string, 0, len(candidates))
	for _, o := range paginate(candidates, limit, 0) {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

// CartRepository

func (s *MemoryStore) RemoveCartItems(_ context.Context, buyerID string, itemIDs []string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cart := s.carts[buyerID]
	var removed int64
	for _, id := range itemIDs {
		if _, ok := cart[id]; ok {
			delete(cart, id)
			removed++
		}
	}
	return removed, nil
}

// ItemRepository

func (s *MemoryStore) GetItems(_ context.Context, ids []string) ([]*models.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]*models.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := s.items[id]; ok {
			cp := *item
			items = append(items, &cp)
		}
	}
	return items, nil
}

func (s *MemoryStore) SellerOwnsPayoutAccount(_ context.Context, sellerID, account string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.SellerID == sellerID && item.PayoutAccount == account {
			return true, nil
		}
	}
	return false, nil
}

// AccountRepository

func (s *MemoryStore) GetSellerAccount(_ context.Context, sellerID string) (*models.SellerAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[sellerID]
	if !ok {
		return nil, errors.NewNotFoundError("seller", sellerID)
	}
	cp := *acct
	return &cp, nil
}

func (s *MemoryStore) CountActiveDisputes(_ context.Context, sellerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, status := range s.disputes[sellerID] {
		for _, active := range models.ActiveDisputeStatuses {
			if status == active {
				n++
			}
		}
	}
	return n, nil
}

// LedgerRepository

func (s *MemoryStore) CreditSeller(_ context.Context, payment *models.SellerPayment) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := paymentKey(payment.OrderID, payment.SellerID)
	if _, ok := s.payments[key]; ok {
		return false, nil
	}
	acct, ok := s.accounts[payment.SellerID]
	if !ok {
		return false, errors.NewNotFoundError("seller", payment.SellerID)
	}

	cp := *payment
	s.payments[key] = &cp
	acct.LifetimeEarnings = acct.LifetimeEarnings.Add(payment.Amount)
	acct.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (s *MemoryStore) CreatePlatformEarning(_ context.Context, earning *models.PlatformEarning) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.earnings[earning.OrderID]; ok {
		return false, nil
	}
	cp := *earning
	cp.OrderSnapshot = copyMap(earning.OrderSnapshot)
	s.earnings[earning.OrderID] = &cp
	return true, nil
}

func (s *MemoryStore) GetPlatformEarning(_ context.Context, orderID string) (*models.PlatformEarning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.earnings[orderID]
	if !ok {
		return nil, errors.NewNotFoundError("platform earning", orderID)
	}
	cp := *e
	cp.OrderSnapshot = copyMap(e.OrderSnapshot)
	return &cp, nil
}

func (s *MemoryStore) ListSellerSales(_ context.Context, sellerID string) ([]models.SaleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sales := make([]models.SaleRecord, 0)
	for id, o := range s.orders {
		if o.Status != models.OrderStatusPaid {
			continue
		}
		var rate decimal.Decimal
		if t, ok := s.transactions[id]; ok {
			if v, ok := t.Metadata[models.MetaCommissionRate].(string); ok {
				rate, _ = decimal.NewFromString(v)
			}
		}
		var earning *decimal.Decimal
		if e, ok := s.earnings[id]; ok {
			amount := e.Amount
			earning = &amount
		}
		for _, line := range o.Items {
			if line.SellerID != sellerID {
				continue
			}
			rec := models.SaleRecord{
				OrderID:         o.ID,
				ItemID:          line.ItemID,
				Title:           line.Title,
				Price:           line.Price,
				Quantity:        line.Quantity,
				Currency:        o.Currency,
				OrderTotal:      o.TotalAmount,
				CommissionRate:  rate,
				PlatformEarning: earning,
			}
			if o.PaidAt != nil {
				rec.PaidAt = *o.PaidAt
			}
			sales = append(sales, rec)
		}
	}
	sort.Slice(sales, func(i, j int) bool {
		if !sales[i].PaidAt.Equal(sales[j].PaidAt) {
			return sales[i].PaidAt.After(sales[j].PaidAt)
		}
		return sales[i].ItemID < sales[j].ItemID
	})
	return sales, nil
}

// WithdrawalRepository

func (s *MemoryStore) CreateWithdrawal(_ context.Context, w *models.Withdrawal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.withdrawals[w.ID]; ok {
		return errors.NewValidationError("id", "withdrawal already exists")
	}
	s.withdrawals[w.ID] = copyWithdrawal(w)
	return nil
}

func (s *MemoryStore) GetWithdrawal(_ context.Context, id string) (*models.Withdrawal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return nil, errors.NewNotFoundError("withdrawal", id)
	}
	return copyWithdrawal(w), nil
}

func (s *MemoryStore) ListWithdrawals(_ context.Context, filter *models.WithdrawalListFilter) ([]*models.Withdrawal, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*models.Withdrawal, 0)
	for _, w := range s.withdrawals {
		if filter.SellerID != "" && w.SellerID != filter.SellerID {
			continue
		}
		if filter.Status != nil && w.Status != *filter.Status {
			continue
		}
		matched = append(matched, copyWithdrawal(w))
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return paginate(matched, filter.Limit, filter.Offset), len(matched), nil
}

func (s *MemoryStore) sumWithdrawalsLocked(sellerID string, status models.WithdrawalStatus, excludeID string) decimal.Decimal {
	sum := decimal.Zero
	for _, w := range s.withdrawals {
		if w.SellerID == sellerID && w.Status == status && w.ID != excludeID {
			sum = sum.Add(w.Amount)
		}
	}
	return sum
}

func (s *MemoryStore) SumWithdrawals(_ context.Context, sellerID string, status models.WithdrawalStatus) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sumWithdrawalsLocked(sellerID, status, ""), nil
}

func (s *MemoryStore) CountWithdrawals(_ context.Context, sellerID string, statuses []models.WithdrawalStatus) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, w := range s.withdrawals {
		if w.SellerID != sellerID {
			continue
		}
		for _, st := range statuses {
			if w.Status == st {
				n++
				break
			}
		}
	}
	return n, nil
}

func (s *MemoryStore) TransitionWithdrawal(_ context.Context, id string, from []models.WithdrawalStatus, to models.WithdrawalStatus, metadata map[string]interface{}, requireBalance bool) (*models.Withdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.withdrawals[id]
	if !ok {
		return nil, errors.NewNotFoundError("withdrawal", id)
	}

	allowed := false
	for _, st := range from {
		if w.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, ErrStaleStatus
	}

	if to.InFlight() {
		for _, other := range s.withdrawals {
			if other.ID != id && other.SellerID == w.SellerID && other.Status.InFlight() {
				return nil, ErrWithdrawalInFlight
			}
		}
	}

	if requireBalance {
		acct, ok := s.accounts[w.SellerID]
		if !ok {
			return nil, errors.NewNotFoundError("seller", w.SellerID)
		}
		withdrawn := s.sumWithdrawalsLocked(w.SellerID, models.WithdrawalStatusCompleted, id)
		if models.AvailableBalance(acct.LifetimeEarnings, withdrawn).LessThan(w.Amount) {
			return nil, ErrInsufficientBalance
		}
	}

	w.Status = to
	if w.Metadata == nil {
		w.Metadata = make(map[string]interface{})
	}
	for k, v := range metadata {
		w.Metadata[k] = v
	}
	w.UpdatedAt = time.Now().UTC()
	return copyWithdrawal(w), nil
}

func (s *MemoryStore) WithdrawalStats(_ context.Context, sellerID string) (*models.WithdrawalStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := newWithdrawalStats(sellerID)
	for _, w := range s.withdrawals {
		if sellerID != "" && w.SellerID != sellerID {
			continue
		}
		stats.add(w.Status, models.WithdrawalStatusStats{Count: 1, Amount: w.Amount})
	}
	return stats.WithdrawalStats, nil
}

// SettingsRepository

func (s *MemoryStore) GetSettings(_ context.Context) (*models.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return nil, errors.NewNotFoundError("settings", "1")
	}
	cp := *s.settings
	return &cp, nil
}

func (s *MemoryStore) SaveSettings(_ context.Context, settings *models.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *settings
	s.settings = &cp
	return nil
}
