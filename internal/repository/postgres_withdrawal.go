package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

// PostgresWithdrawalRepository implements WithdrawalRepository using PostgreSQL.
type PostgresWithdrawalRepository struct {
	db     *sql.DB
	logger *logging.LoggerV2
}

func NewPostgresWithdrawalRepository(db *sql.DB, logger *logging.LoggerV2) *PostgresWithdrawalRepository {
	return &PostgresWithdrawalRepository{db: db, logger: logger}
}

const withdrawalColumns = `
	id, seller_id, channel, account, account_name, bank_code, amount, currency,
	status, metadata, created_at, updated_at
`

func scanWithdrawal(row rowScanner) (*models.Withdrawal, error) {
	var w models.Withdrawal
	var metadataJSON []byte

	err := row.Scan(
		&w.ID,
		&w.SellerID,
		&w.Destination.Channel,
		&w.Destination.Account,
		&w.Destination.AccountName,
		&w.Destination.BankCode,
		&w.Amount,
		&w.Currency,
		&w.Status,
		&metadataJSON,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	w.Metadata = make(map[string]interface{})
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &w.Metadata); err != nil {
			return nil, err
		}
	}
	return &w, nil
}

func statusStrings(statuses []models.WithdrawalStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func (r *PostgresWithdrawalRepository) CreateWithdrawal(ctx context.Context, w *models.Withdrawal) error {
	metadataJSON, err := marshalJSON(w.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO withdrawals (
			id, seller_id, channel, account, account_name, bank_code, amount, currency,
			status, metadata, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`,
		w.ID, w.SellerID, w.Destination.Channel, w.Destination.Account, w.Destination.AccountName,
		w.Destination.BankCode, w.Amount, w.Currency, w.Status, metadataJSON, w.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create withdrawal", logging.Fields{
			"seller_id": w.SellerID,
			"error":     err.Error(),
		})
		return err
	}
	return nil
}

func (r *PostgresWithdrawalRepository) GetWithdrawal(ctx context.Context, id string) (*models.Withdrawal, error) {
	w, err := scanWithdrawal(r.db.QueryRowContext(ctx,
		"SELECT "+withdrawalColumns+" FROM withdrawals WHERE id = $1", id))
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("withdrawal", id)
	}
	return w, err
}

func (r *PostgresWithdrawalRepository) ListWithdrawals(ctx context.Context, filter *models.WithdrawalListFilter) ([]*models.Withdrawal, int, error) {
	conditions := []string{"1 = 1"}
	args := make([]interface{}, 0)

	if filter.SellerID != "" {
		args = append(args, filter.SellerID)
		conditions = append(conditions, fmt.Sprintf("seller_id = $%d", len(args)))
	}
	if filter.Status != nil {
		args = append(args, *filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM withdrawals"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, filter.Limit, filter.Offset)
	query := "SELECT " + withdrawalColumns + " FROM withdrawals" + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := make([]*models.Withdrawal, 0)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, w)
	}
	return list, total, rows.Err()
}

func (r *PostgresWithdrawalRepository) SumWithdrawals(ctx context.Context, sellerID string, status models.WithdrawalStatus) (decimal.Decimal, error) {
	var sum decimal.Decimal
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM withdrawals WHERE seller_id = $1 AND status = $2
	`, sellerID, status).Scan(&sum)
	return sum, err
}

func (r *PostgresWithdrawalRepository) CountWithdrawals(ctx context.Context, sellerID string, statuses []models.WithdrawalStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM withdrawals WHERE seller_id = $1 AND status = ANY($2)
	`, sellerID, pq.Array(statusStrings(statuses))).Scan(&count)
	return count, err
}

// TransitionWithdrawal locks the withdrawal row, checks the current status against from and
// applies the update. With requireBalance, or when moving into an in-flight status, the seller
// row is locked too, so concurrent completions and retries for one seller are serialized.
func (r *PostgresWithdrawalRepository) TransitionWithdrawal(ctx context.Context, id string, from []models.WithdrawalStatus, to models.WithdrawalStatus, metadata map[string]interface{}, requireBalance bool) (*models.Withdrawal, error) {
	metadataJSON, err := marshalJSON(metadata)
	if err != nil {
		return nil, err
	}

	var updated *models.Withdrawal
	err = withTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := scanWithdrawal(tx.QueryRowContext(ctx,
			"SELECT "+withdrawalColumns+" FROM withdrawals WHERE id = $1 FOR UPDATE", id))
		if err == sql.ErrNoRows {
			return errors.NewNotFoundError("withdrawal", id)
		}
		if err != nil {
			return err
		}

		allowed := false
		for _, s := range from {
			if current.Status == s {
				allowed = true
				break
			}
		}
		if !allowed {
			return ErrStaleStatus
		}

		if !requireBalance && !to.InFlight() {
			updated, err = applyTransition(ctx, tx, id, to, metadataJSON)
			return err
		}

		var lifetime decimal.Decimal
		if err := tx.QueryRowContext(ctx, `
			SELECT lifetime_earnings FROM users WHERE id = $1 FOR UPDATE
		`, current.SellerID).Scan(&lifetime); err != nil {
			if err == sql.ErrNoRows {
				return errors.NewNotFoundError("seller", current.SellerID)
			}
			return err
		}

		if to.InFlight() {
			var open int
			if err := tx.QueryRowContext(ctx, `
				SELECT COUNT(*) FROM withdrawals
				WHERE seller_id = $1 AND status = ANY($2) AND id <> $3
			`, current.SellerID, pq.Array(statusStrings(models.InFlightWithdrawalStatuses)), id).Scan(&open); err != nil {
				return err
			}
			if open > 0 {
				return ErrWithdrawalInFlight
			}
		}

		if requireBalance {
			var withdrawn decimal.Decimal
			if err := tx.QueryRowContext(ctx, `
				SELECT COALESCE(SUM(amount), 0) FROM withdrawals
				WHERE seller_id = $1 AND status = $2 AND id <> $3
			`, current.SellerID, models.WithdrawalStatusCompleted, id).Scan(&withdrawn); err != nil {
				return err
			}

			if models.AvailableBalance(lifetime, withdrawn).LessThan(current.Amount) {
				return ErrInsufficientBalance
			}
		}

		updated, err = applyTransition(ctx, tx, id, to, metadataJSON)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Withdrawal status updated", logging.Fields{
		"withdrawal_id": id,
		"status":        to,
	})
	return updated, nil
}

func applyTransition(ctx context.Context, tx *sql.Tx, id string, to models.WithdrawalStatus, metadataJSON []byte) (*models.Withdrawal, error) {
	return scanWithdrawal(tx.QueryRowContext(ctx, `
		UPDATE withdrawals
		SET status = $2, metadata = metadata || $3::jsonb, updated_at = $4
		WHERE id = $1
		RETURNING `+withdrawalColumns,
		id, to, metadataJSON, time.Now().UTC()))
}

func (r *PostgresWithdrawalRepository) WithdrawalStats(ctx context.Context, sellerID string) (*models.WithdrawalStats, error) {
	query := `SELECT status, COUNT(*), COALESCE(SUM(amount), 0) FROM withdrawals`
	args := make([]interface{}, 0)
	if sellerID != "" {
		query += " WHERE seller_id = $1"
		args = append(args, sellerID)
	}
	query += " GROUP BY status"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := newWithdrawalStats(sellerID)
	for rows.Next() {
		var status models.WithdrawalStatus
		var entry models.WithdrawalStatusStats
		if err := rows.Scan(&status, &entry.Count, &entry.Amount); err != nil {
			return nil, err
		}
		stats.add(status, entry)
	}
	return stats.WithdrawalStats, rows.Err()
}

type statsBuilder struct {
	*models.WithdrawalStats
}

func newWithdrawalStats(sellerID string) statsBuilder {
	return statsBuilder{&models.WithdrawalStats{
		SellerID:       sellerID,
		ByStatus:       make(map[models.WithdrawalStatus]models.WithdrawalStatusStats),
		TotalWithdrawn: decimal.Zero,
		PendingAmount:  decimal.Zero,
	}}
}

func (b statsBuilder) add(status models.WithdrawalStatus, entry models.WithdrawalStatusStats) {
	prev := b.ByStatus[status]
	prev.Count += entry.Count
	prev.Amount = prev.Amount.Add(entry.Amount)
	b.ByStatus[status] = prev

	b.TotalCount += entry.Count
	switch status {
	case models.WithdrawalStatusCompleted:
		b.TotalWithdrawn = b.TotalWithdrawn.Add(entry.Amount)
	case models.WithdrawalStatusInitiated, models.WithdrawalStatusProcessing:
		b.PendingAmount = b.PendingAmount.Add(entry.Amount)
	}
}
