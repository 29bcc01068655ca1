package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
)

// CampaignRepository keeps campaigns, creatives and the decision log through gorm.
type CampaignRepository struct{ db *gorm.DB }

func NewCampaignRepository(db *gorm.DB) *CampaignRepository { return &CampaignRepository{db: db} }

// EnsureCampaignSchema migrates the campaign tables.
func EnsureCampaignSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&model.Campaign{}, &model.Creative{}, &model.OptimizationDecision{}); err != nil {
		return fmt.Errorf("migrate campaign tables: %w", err)
	}
	return nil
}

func (r *CampaignRepository) Create(ctx context.Context, c *model.Campaign) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *CampaignRepository) Get(ctx context.Context, id string) (*model.Campaign, error) {
	var c model.Campaign
	err := r.db.WithContext(ctx).Preload("Creatives").First(&c, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CampaignRepository) ListActive(ctx context.Context) ([]*model.Campaign, error) {
	var out []*model.Campaign
	err := r.db.WithContext(ctx).Where("status = ?", model.CampaignActive).Order("id").Find(&out).Error
	return out, err
}

func (r *CampaignRepository) ListByTenant(ctx context.Context, tenantID string) ([]*model.Campaign, error) {
	var out []*model.Campaign
	err := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Order("created_at DESC").Find(&out).Error
	return out, err
}

func (r *CampaignRepository) UpdateBudget(ctx context.Context, id string, dailyBudget float64) error {
	return r.updateColumns(ctx, id, map[string]any{"daily_budget": dailyBudget})
}

func (r *CampaignRepository) UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error {
	return r.updateColumns(ctx, id, map[string]any{"status": status})
}

func (r *CampaignRepository) MarkLaunched(ctx context.Context, id string, externalID string) error {
	return r.updateColumns(ctx, id, map[string]any{
		"external_id": externalID,
		"status":      model.CampaignActive,
		"launched_at": time.Now().UTC(),
	})
}

func (r *CampaignRepository) updateColumns(ctx context.Context, id string, cols map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.Campaign{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return model.ErrNotFound
	}
	return nil
}

func (r *CampaignRepository) ReconcilePerformance(ctx context.Context, id string, window *model.PerformanceWindow) error {
	if window == nil {
		return nil
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Campaign{}).Where("id = ?", id).Updates(map[string]any{
			"spent":   window.Spend,
			"revenue": window.Revenue,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.ErrNotFound
		}
		now := time.Now().UTC()
		for _, cp := range window.Creatives {
			err := tx.Model(&model.Creative{}).
				Where("campaign_id = ? AND name = ?", id, cp.Name).
				Updates(map[string]any{
					"spend":       cp.Spend,
					"impressions": cp.Impressions,
					"clicks":      cp.Clicks,
					"conversions": cp.Conversions,
					"revenue":     cp.Revenue,
					"updated_at":  now,
				}).Error
			if err != nil {
				return fmt.Errorf("update creative %q: %w", cp.Name, err)
			}
		}
		return nil
	})
}

func (r *CampaignRepository) AppendDecision(ctx context.Context, d *model.OptimizationDecision) error {
	return r.db.WithContext(ctx).Create(d).Error
}

func (r *CampaignRepository) ListDecisions(ctx context.Context, campaignID string, limit int) ([]model.OptimizationDecision, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []model.OptimizationDecision
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

var _ repository.ICampaign = (*CampaignRepository)(nil)
