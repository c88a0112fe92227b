package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Yab112/art-store-backend-sub000/internal/config"
	"github.com/Yab112/art-store-backend-sub000/internal/errors"
	"github.com/Yab112/art-store-backend-sub000/internal/logging"
	"github.com/Yab112/art-store-backend-sub000/internal/models"
	"github.com/Yab112/art-store-backend-sub000/internal/repository"
)

// SettingsService is the Settings Store: a read-through view over the settings row
// that falls back to configured defaults until an administrator saves one.
type SettingsService struct {
	repo     repository.SettingsRepository
	cache    repository.SettingsCache
	defaults config.SettingsDefaults
	logger   *logging.LoggerV2
}

func NewSettingsService(repo repository.SettingsRepository, cache repository.SettingsCache, defaults config.SettingsDefaults) *SettingsService {
	if cache == nil {
		cache = repository.NopCache{}
	}
	return &SettingsService{
		repo:     repo,
		cache:    cache,
		defaults: defaults,
		logger:   logging.NewLoggerV2("settings-service"),
	}
}

func (s *SettingsService) defaultSettings() *models.Settings {
	return &models.Settings{
		CommissionRate:       s.defaults.CommissionRate,
		MinWithdrawal:        s.defaults.MinWithdrawal,
		MaxWithdrawal:        s.defaults.MaxWithdrawal,
		OrderExpireAfter:     s.defaults.OrderExpireAfter,
		OrderAutoCancelAfter: s.defaults.OrderAutoCancelAfter,
	}
}

// GetSettings returns the current platform settings.
func (s *SettingsService) GetSettings(ctx context.Context) (*models.Settings, error) {
	if cached, err := s.cache.GetSettings(ctx); err != nil {
		s.logger.Warn("Settings cache read failed", logging.Fields{"error": err.Error()})
	} else if cached != nil {
		return cached, nil
	}

	settings, err := s.repo.GetSettings(ctx)
	if errors.Is(err, errors.ErrNotFound) {
		return s.defaultSettings(), nil
	}
	if err != nil {
		s.logger.Error("Failed to load settings", logging.Fields{"error": err.Error()})
		return nil, err
	}

	if err := s.cache.SetSettings(ctx, settings); err != nil {
		s.logger.Warn("Failed to cache settings", logging.Fields{"error": err.Error()})
	}
	return settings, nil
}

func (s *SettingsService) GetCommissionRate(ctx context.Context) (decimal.Decimal, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	return settings.CommissionRate, nil
}

func (s *SettingsService) GetWithdrawalBounds(ctx context.Context) (models.WithdrawalBounds, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return models.WithdrawalBounds{}, err
	}
	return models.WithdrawalBounds{Min: settings.MinWithdrawal, Max: settings.MaxWithdrawal}, nil
}

func (s *SettingsService) GetOrderExpiryWindows(ctx context.Context) (models.ExpiryWindows, error) {
	settings, err := s.GetSettings(ctx)
	if err != nil {
		return models.ExpiryWindows{}, err
	}
	return models.ExpiryWindows{
		ExpireAfter:     settings.OrderExpireAfter,
		AutoCancelAfter: settings.OrderAutoCancelAfter,
	}, nil
}

// UpdateSettings applies a partial update. Admin only.
func (s *SettingsService) UpdateSettings(ctx context.Context, caller models.Identity, req *models.UpdateSettingsRequest) (*models.Settings, error) {
	if !caller.IsAdmin() {
		return nil, errors.NewBusinessRuleError(errors.CodeForbidden, "only administrators can change settings")
	}
	if req == nil {
		return nil, errors.NewValidationError("body", "request body is required")
	}

	current, err := s.GetSettings(ctx)
	if err != nil {
		return nil, err
	}
	next := *current

	if req.CommissionRate != nil {
		next.CommissionRate = *req.CommissionRate
	}
	if req.MinWithdrawal != nil {
		next.MinWithdrawal = *req.MinWithdrawal
	}
	if req.MaxWithdrawal != nil {
		next.MaxWithdrawal = *req.MaxWithdrawal
	}
	if req.OrderExpireAfterSeconds != nil {
		next.OrderExpireAfter = time.Duration(*req.OrderExpireAfterSeconds) * time.Second
	}
	if req.OrderAutoCancelAfterSeconds != nil {
		next.OrderAutoCancelAfter = time.Duration(*req.OrderAutoCancelAfterSeconds) * time.Second
	}

	if err := ValidateSettings(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()

	if err := s.repo.SaveSettings(ctx, &next); err != nil {
		s.logger.Error("Failed to save settings", logging.Fields{"error": err.Error()})
		return nil, err
	}

	if err := s.cache.InvalidateSettings(ctx); err != nil {
		s.logger.Warn("Failed to invalidate settings cache", logging.Fields{"error": err.Error()})
	}

	s.logger.Info("Settings updated", logging.Fields{
		"updated_by":      caller.UserID,
		"commission_rate": next.CommissionRate.String(),
		"min_withdrawal":  next.MinWithdrawal.String(),
		"max_withdrawal":  next.MaxWithdrawal.String(),
	})
	return &next, nil
}
