package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"growth-automation/domain/model"
)

func TestGetInsights_StampsAndArchives(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	snapshots := new(MockMetricsSnapshot)
	u := NewInsightsUsecase(sf.registry, sf.creds, snapshots).(*insightsUsecase)
	u.now = func() time.Time { return testNow }

	window := model.LastDays(testNow, 7)
	sf.twitter.On("GetInsights", mock.Anything, mock.MatchedBy(func(a model.ClientAuth) bool {
		return a.TenantID == "t1" && a.AccessToken() == "token"
	}), window).Return(&model.AccountMetrics{Followers: 120, Impressions: 4000}, nil).Once()
	snapshots.On("SaveAccountMetrics", mock.Anything, mock.Anything).Return(errors.New("archive down")).Once()

	m, err := u.GetInsights(context.Background(), "t1", model.PlatformTwitter, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(120), m.Followers)
	assert.Equal(t, "t1", m.TenantID)
	assert.Equal(t, model.PlatformTwitter, m.Platform)
	assert.Equal(t, window, m.Window)
	sf.twitter.AssertExpectations(t)
	snapshots.AssertExpectations(t)
}

func TestGetInsights_Validation(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	u := NewInsightsUsecase(sf.registry, sf.creds, nil)

	_, err := u.GetInsights(context.Background(), "t1", model.PlatformTwitter, 91)
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = u.GetInsights(context.Background(), "t1", model.PlatformMastodon, 7)
	assert.ErrorIs(t, err, model.ErrUnsupportedPlatform)

	_, err = u.GetInsights(context.Background(), "t2", model.PlatformTwitter, 7)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
