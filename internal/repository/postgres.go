package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

// PostgresOrderRepository implements OrderRepository and CartRepository using PostgreSQL.
type PostgresOrderRepository struct {
	db     *sql.DB
	logger *logging.LoggerV2
}

// NewPostgresOrderRepository creates a new PostgreSQL order repository.
func NewPostgresOrderRepository(db *sql.DB, logger *logging.LoggerV2) *PostgresOrderRepository {
	return &PostgresOrderRepository{
		db:     db,
		logger: logger,
	}
}

// withTx runs fn inside a transaction, committing only when fn returns nil.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func marshalJSON(v interface{}) ([]byte, error) {
	if v == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(v)
}

// CreateOrder writes the order, its items and the initiated transaction in one transaction.
func (r *PostgresOrderRepository) CreateOrder(ctx context.Context, order *models.Order, txn *models.Transaction) error {
	r.logger.Debug("Creating order", logging.Fields{
		"order_id": order.ID,
		"buyer_id": order.BuyerID,
		"items":    len(order.Items),
	})

	var shippingJSON []byte
	if order.ShippingInfo != nil {
		b, err := json.Marshal(order.ShippingInfo)
		if err != nil {
			return err
		}
		shippingJSON = b
	}
	metadataJSON, err := marshalJSON(txn.Metadata)
	if err != nil {
		return err
	}

	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO orders (
				id, buyer_id, buyer_email, total_amount, currency, status, provider,
				reference, shipping_info, payment_method, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
		`,
			order.ID, order.BuyerID, order.BuyerEmail, order.TotalAmount, order.Currency,
			order.Status, order.Provider, order.Reference, shippingJSON, order.PaymentMethod,
			order.CreatedAt,
		)
		if err != nil {
			return err
		}

		for _, item := range order.Items {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO order_items (order_id, item_id, seller_id, title, quantity, price)
				VALUES ($1, $2, $3, $4, $5, $6)
			`, order.ID, item.ItemID, item.SellerID, item.Title, item.Quantity, item.Price)
			if err != nil {
				return err
			}
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO transactions (
				id, order_id, amount, currency, status, provider, reference, metadata, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)
		`,
			txn.ID, txn.OrderID, txn.Amount, txn.Currency, txn.Status, txn.Provider,
			txn.Reference, metadataJSON, txn.CreatedAt,
		)
		return err
	})
	if err != nil {
		r.logger.Error("Failed to create order", logging.Fields{
			"order_id": order.ID,
			"error":    err.Error(),
		})
		if isUniqueViolation(err) {
			return errors.NewValidationError("reference", "order reference already in use")
		}
		return err
	}

	r.logger.Info("Order created", logging.Fields{
		"order_id": order.ID,
		"total":    order.TotalAmount.String(),
	})
	return nil
}

const orderColumns = `
	id, buyer_id, buyer_email, total_amount, currency, status, provider, reference,
	shipping_info, payment_method, cancel_reason, created_at, updated_at, paid_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var order models.Order
	var shippingJSON []byte
	var paidAt sql.NullTime

	err := row.Scan(
		&order.ID,
		&order.BuyerID,
		&order.BuyerEmail,
		&order.TotalAmount,
		&order.Currency,
		&order.Status,
		&order.Provider,
		&order.Reference,
		&shippingJSON,
		&order.PaymentMethod,
		&order.CancelReason,
		&order.CreatedAt,
		&order.UpdatedAt,
		&paidAt,
	)
	if err != nil {
		return nil, err
	}

	if len(shippingJSON) > 0 {
		var info models.ShippingInfo
		if err := json.Unmarshal(shippingJSON, &info); err != nil {
			return nil, err
		}
		order.ShippingInfo = &info
	}
	if paidAt.Valid {
		order.PaidAt = &paidAt.Time
	}
	return &order, nil
}

func (r *PostgresOrderRepository) loadItems(ctx context.Context, order *models.Order) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT order_id, item_id, seller_id, title, quantity, price
		FROM order_items
		WHERE order_id = $1
		ORDER BY item_id
	`, order.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	order.Items = make([]models.OrderItem, 0)
	for rows.Next() {
		var item models.OrderItem
		if err := rows.Scan(&item.OrderID, &item.ItemID, &item.SellerID, &item.Title, &item.Quantity, &item.Price); err != nil {
			return err
		}
		order.Items = append(order.Items, item)
	}
	return rows.Err()
}

func (r *PostgresOrderRepository) getOrderWhere(ctx context.Context, column, value string) (*models.Order, error) {
	query := "SELECT " + orderColumns + " FROM orders WHERE " + column + " = $1"

	order, err := scanOrder(r.db.QueryRowContext(ctx, query, value))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("order", value)
	}
	if err != nil {
		r.logger.Error("Failed to fetch order", logging.Fields{
			column:  value,
			"error": err.Error(),
		})
		return nil, err
	}

	if err := r.loadItems(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder retrieves an order and its items by id.
func (r *PostgresOrderRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	return r.getOrderWhere(ctx, "id", id)
}

// GetOrderByReference resolves an order from its provider-facing reference.
func (r *PostgresOrderRepository) GetOrderByReference(ctx context.Context, reference string) (*models.Order, error) {
	return r.getOrderWhere(ctx, "reference", reference)
}

func (r *PostgresOrderRepository) GetTransaction(ctx context.Context, orderID string) (*models.Transaction, error) {
	var txn models.Transaction
	var metadataJSON []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT id, order_id, amount, currency, status, provider, reference, metadata, created_at, updated_at
		FROM transactions
		WHERE order_id = $1
	`, orderID).Scan(
		&txn.ID, &txn.OrderID, &txn.Amount, &txn.Currency, &txn.Status, &txn.Provider,
		&txn.Reference, &metadataJSON, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("transaction", orderID)
	}
	if err != nil {
		return nil, err
	}

	txn.Metadata = make(map[string]interface{})
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &txn.Metadata); err != nil {
			return nil, err
		}
	}
	return &txn, nil
}

// ListOrders retrieves orders based on filter criteria, newest first.
func (r *PostgresOrderRepository) ListOrders(ctx context.Context, filter *models.OrderListFilter) ([]*models.Order, int, error) {
	r.logger.Debug("Listing orders", logging.Fields{
		"buyer_id": filter.BuyerID,
		"limit":    filter.Limit,
		"offset":   filter.Offset,
	})

	conditions := []string{"1 = 1"}
	args := make([]interface{}, 0)

	if filter.BuyerID != "" {
		args = append(args, filter.BuyerID)
		conditions = append(conditions, fmt.Sprintf("buyer_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM orders"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := "SELECT " + orderColumns + " FROM orders" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	orders := make([]*models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for _, order := range orders {
		if err := r.loadItems(ctx, order); err != nil {
			return nil, 0, err
		}
	}

	return orders, total, nil
}

// MarkOrderPaid performs settlement steps 1-3 in one transaction. The PENDING guard on the
// order update and the SOLD guard on the item update are the only concurrency control.
func (r *PostgresOrderRepository) MarkOrderPaid(ctx context.Context, orderID string, verification map[string]interface{}) (*models.Order, bool, error) {
	metadataJSON, err := marshalJSON(verification)
	if err != nil {
		return nil, false, err
	}

	transitioned := false
	var sold int64
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		now := time.Now().UTC()

		var id string
		err := tx.QueryRowContext(ctx, `
			UPDATE orders
			SET status = $2, paid_at = $3, updated_at = $3
			WHERE id = $1 AND status = $4
			RETURNING id
		`, orderID, models.OrderStatusPaid, now, models.OrderStatusPending).Scan(&id)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		transitioned = true

		if _, err := tx.ExecContext(ctx, `
			UPDATE transactions
			SET status = $2, metadata = metadata || $3::jsonb, updated_at = $4
			WHERE order_id = $1
		`, orderID, models.TransactionStatusCompleted, metadataJSON, now); err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE items
			SET status = $2, updated_at = $3
			WHERE id IN (SELECT item_id FROM order_items WHERE order_id = $1)
			  AND status <> $2
		`, orderID, models.ItemStatusSold, now)
		if err != nil {
			return err
		}
		sold, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to mark order paid", logging.Fields{
			"order_id": orderID,
			"error":    err.Error(),
		})
		return nil, false, err
	}

	order, err := r.GetOrder(ctx, orderID)
	if err != nil {
		return nil, false, err
	}
	if !transitioned && order.Status != models.OrderStatusPaid {
		return order, false, ErrOrderNotPayable
	}
	if transitioned {
		reportAlreadySold(r.logger, order, int(sold))
	}
	return order, transitioned, nil
}

func (r *PostgresOrderRepository) MergeTransactionMetadata(ctx context.Context, orderID string, metadata map[string]interface{}) error {
	metadataJSON, err := marshalJSON(metadata)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET metadata = metadata || $2::jsonb, updated_at = NOW()
		WHERE order_id = $1
	`, orderID, metadataJSON)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NewNotFoundError("transaction", orderID)
	}
	return nil
}

// CancelPendingOrders is a bulk conditional update; re-running it with the same cutoff is a no-op.
func (r *PostgresOrderRepository) CancelPendingOrders(ctx context.Context, cutoff time.Time, reason string) ([]string, error) {
	ids := make([]string, 0)

	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `
			UPDATE orders
			SET status = $1, cancel_reason = $2, updated_at = NOW()
			WHERE status = $3 AND created_at < $4
			RETURNING id
		`, models.OrderStatusCancelled, reason, models.OrderStatusPending, cutoff)
		if err != nil {
			return err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE transactions
			SET status = $2, updated_at = NOW()
			WHERE order_id = ANY($1) AND status IN ($3, $4)
		`, pq.Array(ids), models.TransactionStatusFailed,
			models.TransactionStatusInitiated, models.TransactionStatusProcessing)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(ids) > 0 {
		r.logger.Info("Pending orders cancelled", logging.Fields{
			"count":  len(ids),
			"reason": reason,
		})
	}
	return ids, nil
}

func (r *PostgresOrderRepository) ListUnsettledPaidOrders(ctx context.Context, paidBefore time.Time, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT o.id
		FROM orders o
		LEFT JOIN platform_earnings pe ON pe.order_id = o.id
		WHERE o.status = $1 AND pe.id IS NULL AND o.paid_at < $2
		ORDER BY o.paid_at
		LIMIT $3
	`, models.OrderStatusPaid, paidBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RemoveCartItems deletes purchased items from the buyer's cart.
func (r *PostgresOrderRepository) RemoveCartItems(ctx context.Context, buyerID string, itemIDs []string) (int64, error) {
	if buyerID == "" || len(itemIDs) == 0 {
		return 0, nil
	}

	res, err := r.db.ExecContext(ctx, `
		DELETE FROM cart_items WHERE user_id = $1 AND item_id = ANY($2)
	`, buyerID, pq.Array(itemIDs))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
