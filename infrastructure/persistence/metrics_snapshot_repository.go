package persistence

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
)

const (
	performanceCollection    = "performance_windows"
	accountMetricsCollection = "account_metrics"
)

// MetricsSnapshotRepository appends raw provider reports to MongoDB.
type MetricsSnapshotRepository struct {
	db *mongo.Database
}

func NewMetricsSnapshotRepository(client *mongo.Client, database string) *MetricsSnapshotRepository {
	return &MetricsSnapshotRepository{db: client.Database(database)}
}

func (r *MetricsSnapshotRepository) SavePerformance(ctx context.Context, p *model.PerformanceWindow) error {
	if _, err := r.db.Collection(performanceCollection).InsertOne(ctx, p); err != nil {
		return fmt.Errorf("archive performance for %s: %w", p.CampaignID, err)
	}
	return nil
}

func (r *MetricsSnapshotRepository) SaveAccountMetrics(ctx context.Context, m *model.AccountMetrics) error {
	if _, err := r.db.Collection(accountMetricsCollection).InsertOne(ctx, m); err != nil {
		return fmt.Errorf("archive %s metrics: %w", m.Platform, err)
	}
	return nil
}

var _ repository.IMetricsSnapshot = (*MetricsSnapshotRepository)(nil)
