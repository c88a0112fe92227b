package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
)

// PostgresSettingsRepository stores the single platform_settings row.
type PostgresSettingsRepository struct {
	db     *sql.DB
	logger *logging.LoggerV2
}

func NewPostgresSettingsRepository(db *sql.DB, logger *logging.LoggerV2) *PostgresSettingsRepository {
	return &PostgresSettingsRepository{db: db, logger: logger}
}

// GetSettings returns ErrNotFound when no row has been saved yet.
func (r *PostgresSettingsRepository) GetSettings(ctx context.Context) (*models.Settings, error) {
	var s models.Settings
	var expireSeconds, autoCancelSeconds int64

	err := r.db.QueryRowContext(ctx, `
		SELECT commission_rate, min_withdrawal, max_withdrawal,
		       order_expire_seconds, order_autocancel_seconds, updated_at
		FROM platform_settings
		WHERE id = 1
	`).Scan(&s.CommissionRate, &s.MinWithdrawal, &s.MaxWithdrawal, &expireSeconds, &autoCancelSeconds, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("settings", "1")
	}
	if err != nil {
		return nil, err
	}

	s.OrderExpireAfter = time.Duration(expireSeconds) * time.Second
	s.OrderAutoCancelAfter = time.Duration(autoCancelSeconds) * time.Second
	return &s, nil
}

func (r *PostgresSettingsRepository) SaveSettings(ctx context.Context, s *models.Settings) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO platform_settings (
			id, commission_rate, min_withdrawal, max_withdrawal,
			order_expire_seconds, order_autocancel_seconds, updated_at
		) VALUES (1, $1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			commission_rate = EXCLUDED.commission_rate,
			min_withdrawal = EXCLUDED.min_withdrawal,
			max_withdrawal = EXCLUDED.max_withdrawal,
			order_expire_seconds = EXCLUDED.order_expire_seconds,
			order_autocancel_seconds = EXCLUDED.order_autocancel_seconds,
			updated_at = EXCLUDED.updated_at
	`,
		s.CommissionRate, s.MinWithdrawal, s.MaxWithdrawal,
		int64(s.OrderExpireAfter/time.Second), int64(s.OrderAutoCancelAfter/time.Second), s.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to save settings", logging.Fields{"error": err.Error()})
		return err
	}

	r.logger.Info("Settings saved", logging.Fields{
		"commission_rate": s.CommissionRate.String(),
	})
	return nil
}
