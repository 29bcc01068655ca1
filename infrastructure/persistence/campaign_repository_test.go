package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"growth-automation/domain/model"
)

func TestCampaignRepository_UpdateBudget(t *testing.T) {
	db, mock := newMockGorm(t)
	repo := NewCampaignRepository(db)

	mock.ExpectExec("UPDATE `campaigns` SET `daily_budget`=\\?").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.UpdateBudget(context.Background(), "cmp-1", 60))

	mock.ExpectExec("UPDATE `campaigns` SET `daily_budget`=\\?").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.UpdateBudget(context.Background(), "missing", 60), model.ErrNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_GetPreloadsCreatives(t *testing.T) {
	db, mock := newMockGorm(t)
	repo := NewCampaignRepository(db)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT \\* FROM `campaigns` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "tenant_id", "platform", "name", "daily_budget", "spent", "revenue", "status", "created_at", "updated_at"}).
			AddRow("cmp-1", "tenant-1", "facebook", "Spring", 50.0, 120.0, 420.0, "active", now, now))
	mock.ExpectQuery("SELECT \\* FROM `creatives` WHERE `creatives`.`campaign_id` = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id", "campaign_id", "name", "spend"}).
			AddRow("cr-1", "cmp-1", "hero", 80.0).
			AddRow("cr-2", "cmp-1", "carousel", 40.0))

	c, err := repo.Get(context.Background(), "cmp-1")
	require.NoError(t, err)
	require.Equal(t, model.CampaignActive, c.Status)
	require.InDelta(t, 3.5, c.ROAS(), 1e-9)
	require.Len(t, c.Creatives, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_GetNotFound(t *testing.T) {
	db, mock := newMockGorm(t)
	repo := NewCampaignRepository(db)

	mock.ExpectQuery("SELECT \\* FROM `campaigns` WHERE id = \\?").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.Get(context.Background(), "nope")
	require.ErrorIs(t, err, model.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_ReconcilePerformanceIsTransactional(t *testing.T) {
	db, mock := newMockGorm(t)
	repo := NewCampaignRepository(db)

	window := &model.PerformanceWindow{
		CampaignID: "cmp-1",
		Spend:      100,
		Revenue:    350,
		Creatives: []model.CreativePerformance{
			{Name: "hero", Spend: 60, Revenue: 250, Clicks: 30},
			{Name: "carousel", Spend: 40, Revenue: 100, Clicks: 12},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `campaigns` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `creatives` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `creatives` SET").WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err := repo.ReconcilePerformance(context.Background(), "cmp-1", window)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCampaignRepository_AppendAndListDecisions(t *testing.T) {
	db, mock := newMockGorm(t)
	repo := NewCampaignRepository(db)
	now := time.Now().UTC()

	mock.ExpectExec("INSERT INTO `optimization_decisions`").WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.AppendDecision(context.Background(), &model.OptimizationDecision{
		ID: "dec-1", CampaignID: "cmp-1", Action: model.ActionIncrease, PreviousBudget: 50, NewBudget: 60, ROAS: 3.5, CreatedAt: now,
	}))

	mock.ExpectQuery("SELECT \\* FROM `optimization_decisions` WHERE campaign_id = \\? ORDER BY created_at DESC LIMIT").
		WillReturnRows(sqlmock.NewRows([]string{"id", "campaign_id", "action", "previous_budget", "new_budget", "roas", "created_at"}).
			AddRow("dec-1", "cmp-1", "increase", 50.0, 60.0, 3.5, now))

	decisions, err := repo.ListDecisions(context.Background(), "cmp-1", 10)
	require.NoError(t, err)
	require.Len(t, decisions, 1)
	require.Equal(t, model.ActionIncrease, decisions[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}
