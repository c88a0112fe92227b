package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

// PostgresLedgerRepository implements ItemRepository, AccountRepository and LedgerRepository.
type PostgresLedgerRepository struct {
	db     *sql.DB
	logger *logging.LoggerV2
}

func NewPostgresLedgerRepository(db *sql.DB, logger *logging.LoggerV2) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{db: db, logger: logger}
}

func (r *PostgresLedgerRepository) GetItems(ctx context.Context, ids []string) ([]*models.Item, error) {
	if len(ids) == 0 {
		return []*models.Item{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, seller_id, title, price, currency, status, payout_account, created_at, updated_at
		FROM items
		WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]*models.Item, 0, len(ids))
	for rows.Next() {
		var item models.Item
		if err := rows.Scan(
			&item.ID, &item.SellerID, &item.Title, &item.Price, &item.Currency,
			&item.Status, &item.PayoutAccount, &item.CreatedAt, &item.UpdatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	return items, rows.Err()
}

func (r *PostgresLedgerRepository) SellerOwnsPayoutAccount(ctx context.Context, sellerID, account string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM items WHERE seller_id = $1 AND payout_account = $2)
	`, sellerID, account).Scan(&exists)
	return exists, err
}

func (r *PostgresLedgerRepository) GetSellerAccount(ctx context.Context, sellerID string) (*models.SellerAccount, error) {
	var acct models.SellerAccount
	err := r.db.QueryRowContext(ctx, `
		SELECT id, email, name, email_verified, banned, lifetime_earnings, updated_at
		FROM users
		WHERE id = $1
	`, sellerID).Scan(
		&acct.ID, &acct.Email, &acct.Name, &acct.EmailVerified, &acct.Banned,
		&acct.LifetimeEarnings, &acct.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("seller", sellerID)
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *PostgresLedgerRepository) CountActiveDisputes(ctx context.Context, sellerID string) (int, error) {
	statuses := make([]string, 0, len(models.ActiveDisputeStatuses))
	for _, s := range models.ActiveDisputeStatuses {
		statuses = append(statuses, string(s))
	}

	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM disputes WHERE seller_id = $1 AND status = ANY($2)
	`, sellerID, pq.Array(statuses)).Scan(&count)
	return count, err
}

// CreditSeller inserts the audit row and, only if it was new, adds the amount to the
// seller's lifetime earnings with an atomic increment.
func (r *PostgresLedgerRepository) CreditSeller(ctx context.Context, payment *models.SellerPayment) (bool, error) {
	credited := false

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO seller_payments (id, order_id, seller_id, amount, currency, kind, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (order_id, seller_id) DO NOTHING
		`, payment.ID, payment.OrderID, payment.SellerID, payment.Amount, payment.Currency,
			payment.Kind, payment.CreatedAt)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}

		res, err = tx.ExecContext(ctx, `
			UPDATE users
			SET lifetime_earnings = lifetime_earnings + $2, updated_at = NOW()
			WHERE id = $1
		`, payment.SellerID, payment.Amount)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return errors.NewNotFoundError("seller", payment.SellerID)
		}
		credited = true
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to credit seller", logging.Fields{
			"order_id":  payment.OrderID,
			"seller_id": payment.SellerID,
			"error":     err.Error(),
		})
		return false, err
	}
	return credited, nil
}

func (r *PostgresLedgerRepository) CreatePlatformEarning(ctx context.Context, earning *models.PlatformEarning) (bool, error) {
	snapshot, err := marshalJSON(earning.OrderSnapshot)
	if err != nil {
		return false, err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO platform_earnings (id, order_id, amount, commission_rate, currency, order_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (order_id) DO NOTHING
	`, earning.ID, earning.OrderID, earning.Amount, earning.CommissionRate, earning.Currency,
		snapshot, earning.CreatedAt)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *PostgresLedgerRepository) GetPlatformEarning(ctx context.Context, orderID string) (*models.PlatformEarning, error) {
	var earning models.PlatformEarning
	var snapshot []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, amount, commission_rate, currency, order_snapshot, created_at
		FROM platform_earnings
		WHERE order_id = $1
	`, orderID).Scan(
		&earning.ID, &earning.OrderID, &earning.Amount, &earning.CommissionRate,
		&earning.Currency, &snapshot, &earning.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("platform earning", orderID)
	}
	if err != nil {
		return nil, err
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &earning.OrderSnapshot); err != nil {
			return nil, err
		}
	}
	return &earning, nil
}

// ListSellerSales joins the seller's sold order lines to their paid orders. The commission
// rate comes from the transaction metadata captured at order time.
func (r *PostgresLedgerRepository) ListSellerSales(ctx context.Context, sellerID string) ([]models.SaleRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT oi.order_id, oi.item_id, oi.title, oi.price, oi.quantity, o.currency,
		       o.total_amount, o.paid_at, t.metadata ->> 'commission_rate', pe.amount
		FROM order_items oi
		JOIN orders o ON o.id = oi.order_id
		LEFT JOIN transactions t ON t.order_id = o.id
		LEFT JOIN platform_earnings pe ON pe.order_id = o.id
		WHERE oi.seller_id = $1 AND o.status = $2
		ORDER BY o.paid_at DESC, oi.item_id
	`, sellerID, models.OrderStatusPaid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]models.SaleRecord, 0)
	for rows.Next() {
		var rec models.SaleRecord
		var paidAt sql.NullTime
		var rate sql.NullString
		var earning decimal.NullDecimal

		if err := rows.Scan(
			&rec.OrderID, &rec.ItemID, &rec.Title, &rec.Price, &rec.Quantity, &rec.Currency,
			&rec.OrderTotal, &paidAt, &rate, &earning,
		); err != nil {
			return nil, err
		}
		if paidAt.Valid {
			rec.PaidAt = paidAt.Time
		}
		if rate.Valid {
			if d, err := decimal.NewFromString(rate.String); err == nil {
				rec.CommissionRate = d
			}
		}
		if earning.Valid {
			amount := earning.Decimal
			rec.PlatformEarning = &amount
		}
		sales = append(sales, rec)
	}
	return sales, rows.Err()
}
