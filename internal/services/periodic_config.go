package services

import (
	"context"
	"errors"

	"github.com/usagekit/harvest-scheduler/internal/models"
	"gorm.io/gorm"
)

// ErrConfigNotFound is returned when a tenant has no periodic config.
var ErrConfigNotFound = errors.New("periodic config not found")

// PeriodicConfigService implements the config-store contract: one config per
// tenant, get/upsert/delete. Administrative callers own every field except
// LastTriggeredAt, which the job executor writes.
type PeriodicConfigService struct {
	db *gorm.DB
}

func NewPeriodicConfigService(db *gorm.DB) *PeriodicConfigService {
	return &PeriodicConfigService{db: db}
}

func (s *PeriodicConfigService) Get(ctx context.Context, tenantID string) (*models.PeriodicConfig, error) {
	var cfg models.PeriodicConfig
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// Upsert writes the tenant's config, preserving the row identity when one
// already exists.
func (s *PeriodicConfigService) Upsert(ctx context.Context, tenantID string, cfg *models.PeriodicConfig) error {
	cfg.TenantID = tenantID

	var existing models.PeriodicConfig
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&existing).Error
	if err == nil {
		cfg.ID = existing.ID
		cfg.CreatedAt = existing.CreatedAt
		return s.db.WithContext(ctx).Save(cfg).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return s.db.WithContext(ctx).Create(cfg).Error
}

// Delete removes the tenant's config; found is false when none existed.
func (s *PeriodicConfigService) Delete(ctx context.Context, tenantID string) (bool, error) {
	res := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Delete(&models.PeriodicConfig{})
	return res.RowsAffected > 0, res.Error
}

// ListAll returns every tenant's config, used to rebuild schedules at
// startup.
func (s *PeriodicConfigService) ListAll(ctx context.Context) ([]models.PeriodicConfig, error) {
	var configs []models.PeriodicConfig
	if err := s.db.WithContext(ctx).Find(&configs).Error; err != nil {
		return nil, err
	}
	return configs, nil
}
