package repository

import (
	"context"

	"growth-automation/domain/model"
)

type ICampaign interface {
	Create(ctx context.Context, c *model.Campaign) error
	Get(ctx context.Context, id string) (*model.Campaign, error)
	ListActive(ctx context.Context) ([]*model.Campaign, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*model.Campaign, error)
	UpdateBudget(ctx context.Context, id string, dailyBudget float64) error
	UpdateStatus(ctx context.Context, id string, status model.CampaignStatus) error
	MarkLaunched(ctx context.Context, id string, externalID string) error
	// ReconcilePerformance writes campaign totals and per creative metrics in one transaction.
	ReconcilePerformance(ctx context.Context, id string, window *model.PerformanceWindow) error
	AppendDecision(ctx context.Context, d *model.OptimizationDecision) error
	ListDecisions(ctx context.Context, campaignID string, limit int) ([]model.OptimizationDecision, error)
}

// IMetricsSnapshot archives raw performance and insight windows.
type IMetricsSnapshot interface {
	SavePerformance(ctx context.Context, p *model.PerformanceWindow) error
	SaveAccountMetrics(ctx context.Context, m *model.AccountMetrics) error
}
