package usecase

import (
	"context"
	"fmt"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/logger"
)

type IInsightsUsecase interface {
	GetInsights(ctx context.Context, tenantID string, platform model.Platform, days int) (*model.AccountMetrics, error)
}

type insightsUsecase struct {
	registry  repository.IPlatformRegistry
	creds     ICredentialUsecase
	snapshots repository.IMetricsSnapshot
	now       func() time.Time
}

func NewInsightsUsecase(registry repository.IPlatformRegistry, creds ICredentialUsecase, snapshots repository.IMetricsSnapshot) IInsightsUsecase {
	return &insightsUsecase{registry: registry, creds: creds, snapshots: snapshots, now: time.Now}
}

func (u *insightsUsecase) GetInsights(ctx context.Context, tenantID string, platform model.Platform, days int) (*model.AccountMetrics, error) {
	if days <= 0 {
		days = 7
	}
	if days > 90 {
		return nil, fmt.Errorf("window of %d days exceeds 90: %w", days, model.ErrValidation)
	}
	client, err := u.registry.Client(platform)
	if err != nil {
		return nil, err
	}
	window := model.LastDays(u.now(), days)
	var metrics *model.AccountMetrics
	err = u.creds.Do(ctx, tenantID, platform, func(ctx context.Context, auth model.ClientAuth) error {
		m, err := client.GetInsights(ctx, auth, window)
		if err != nil {
			return err
		}
		metrics = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s insights: %w", platform, err)
	}
	metrics.TenantID = tenantID
	metrics.Platform = platform
	metrics.Window = window
	metrics.FetchedAt = u.now().UTC()

	if u.snapshots != nil {
		if err := u.snapshots.SaveAccountMetrics(ctx, metrics); err != nil {
			logger.GetLogger().WithFields(map[string]interface{}{
				"tenant":   tenantID,
				"platform": platform,
				"error":    err,
			}).Warn("Insights archive failed")
		}
	}
	return metrics, nil
}
