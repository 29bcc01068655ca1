package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"growth-automation/domain/dto"
	"growth-automation/domain/model"
)

type MockCredentialUsecase struct {
	mock.Mock
}

func (m *MockCredentialUsecase) BeginAuthorization(ctx context.Context, tenantID string, platform model.Platform) (string, error) {
	args := m.Called(ctx, tenantID, platform)
	return args.String(0), args.Error(1)
}

func (m *MockCredentialUsecase) CompleteAuthorization(ctx context.Context, platform model.Platform, code, state string) (*model.ConnectionSummary, error) {
	args := m.Called(ctx, platform, code, state)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ConnectionSummary), args.Error(1)
}

func (m *MockCredentialUsecase) Refresh(ctx context.Context, tenantID string, platform model.Platform) (*model.Credential, error) {
	args := m.Called(ctx, tenantID, platform)
	return nil, args.Error(1)
}

func (m *MockCredentialUsecase) GetValidCredential(ctx context.Context, tenantID string, platform model.Platform) (*model.Credential, error) {
	args := m.Called(ctx, tenantID, platform)
	return nil, args.Error(1)
}

func (m *MockCredentialUsecase) Revoke(ctx context.Context, tenantID string, platform model.Platform) error {
	return m.Called(ctx, tenantID, platform).Error(0)
}

func (m *MockCredentialUsecase) Do(ctx context.Context, tenantID string, platform model.Platform, fn func(ctx context.Context, auth model.ClientAuth) error) error {
	return m.Called(ctx, tenantID, platform).Error(0)
}

func (m *MockCredentialUsecase) ListConnections(ctx context.Context, tenantID string) ([]model.ConnectionSummary, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ConnectionSummary), args.Error(1)
}

type MockSchedulerUsecase struct {
	mock.Mock
}

func (m *MockSchedulerUsecase) Schedule(ctx context.Context, tenantID string, items []model.PlannedItem, policy model.TimingPolicy) ([]*model.ScheduledItem, error) {
	args := m.Called(ctx, tenantID, items, policy)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ScheduledItem), args.Error(1)
}

func (m *MockSchedulerUsecase) Tick(ctx context.Context) (*model.TickReport, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.TickReport), args.Error(1)
}

func (m *MockSchedulerUsecase) BulkReschedule(ctx context.Context, tenantID string, ids []string, offset time.Duration) []model.BulkResult {
	return m.Called(ctx, tenantID, ids, offset).Get(0).([]model.BulkResult)
}

func (m *MockSchedulerUsecase) BulkDelete(ctx context.Context, tenantID string, ids []string) []model.BulkResult {
	return m.Called(ctx, tenantID, ids).Get(0).([]model.BulkResult)
}

func (m *MockSchedulerUsecase) BulkPublish(ctx context.Context, tenantID string, ids []string) []model.BulkResult {
	return m.Called(ctx, tenantID, ids).Get(0).([]model.BulkResult)
}

func (m *MockSchedulerUsecase) BulkRetry(ctx context.Context, tenantID string, ids []string) []model.BulkResult {
	return m.Called(ctx, tenantID, ids).Get(0).([]model.BulkResult)
}

func (m *MockSchedulerUsecase) item(args mock.Arguments) (*model.ScheduledItem, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ScheduledItem), args.Error(1)
}

func (m *MockSchedulerUsecase) PublishNow(ctx context.Context, tenantID, itemID string) (*model.ScheduledItem, error) {
	return m.item(m.Called(ctx, tenantID, itemID))
}

func (m *MockSchedulerUsecase) GetItem(ctx context.Context, tenantID, itemID string) (*model.ScheduledItem, error) {
	return m.item(m.Called(ctx, tenantID, itemID))
}

func (m *MockSchedulerUsecase) ListItems(ctx context.Context, tenantID string, status model.ItemStatus, limit int) ([]*model.ScheduledItem, error) {
	args := m.Called(ctx, tenantID, status, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.ScheduledItem), args.Error(1)
}

func (m *MockSchedulerUsecase) GetItemAnalytics(ctx context.Context, tenantID, itemID string) (*model.ItemMetrics, error) {
	args := m.Called(ctx, tenantID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ItemMetrics), args.Error(1)
}

type MockCampaignUsecase struct {
	mock.Mock
}

func (m *MockCampaignUsecase) RunCycle(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockCampaignUsecase) Launch(ctx context.Context, tenantID string, req dto.LaunchCampaignRequest) (*model.Campaign, error) {
	args := m.Called(ctx, tenantID, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockCampaignUsecase) GetCampaign(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error) {
	args := m.Called(ctx, tenantID, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Campaign), args.Error(1)
}

func (m *MockCampaignUsecase) ListCampaigns(ctx context.Context, tenantID string) ([]*model.Campaign, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Campaign), args.Error(1)
}

func (m *MockCampaignUsecase) GetPerformance(ctx context.Context, tenantID, campaignID string) (*model.PerformanceWindow, error) {
	args := m.Called(ctx, tenantID, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PerformanceWindow), args.Error(1)
}

func (m *MockCampaignUsecase) OptimizeCampaign(ctx context.Context, tenantID, campaignID string) (*model.OptimizationDecision, error) {
	args := m.Called(ctx, tenantID, campaignID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.OptimizationDecision), args.Error(1)
}

func (m *MockCampaignUsecase) Rebalance(ctx context.Context, tenantID string, total float64) (map[string]float64, error) {
	args := m.Called(ctx, tenantID, total)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]float64), args.Error(1)
}

func (m *MockCampaignUsecase) ListDecisions(ctx context.Context, tenantID, campaignID string, limit int) ([]model.OptimizationDecision, error) {
	args := m.Called(ctx, tenantID, campaignID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.OptimizationDecision), args.Error(1)
}

// withTenant stands in for the auth middleware.
func withTenant(tenantID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("tenant_id", tenantID)
		c.Next()
	}
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func do(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) dto.Res {
	t.Helper()
	var res dto.Res
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	return res
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{model.ErrValidation, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", model.ErrInvalidState), http.StatusBadRequest},
		{model.ErrNotFound, http.StatusNotFound},
		{model.ErrInvalidTransition, http.StatusConflict},
		{model.ErrReauthorizationRequired, http.StatusPreconditionFailed},
		{&model.ProviderError{Kind: model.ErrRateLimited}, http.StatusTooManyRequests},
		{&model.ProviderError{Kind: model.ErrProviderUnavailable}, http.StatusBadGateway},
		{model.ErrConfiguration, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusOf(tc.err), tc.err.Error())
	}
}

func TestConnectionHandler_Authorize(t *testing.T) {
	creds := new(MockCredentialUsecase)
	creds.On("BeginAuthorization", mock.Anything, "t1", model.PlatformLinkedIn).Return("https://linkedin.test/auth?state=s", nil)
	creds.On("BeginAuthorization", mock.Anything, "t1", model.PlatformTikTok).Return("", model.ErrConfiguration)
	h := NewConnectionHandler(creds, "")

	r := newEngine()
	r.POST("/api/connections/:platform/authorize", withTenant("t1"), h.Authorize)

	w := do(r, http.MethodPost, "/api/connections/linkedin/authorize", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authorizationUrl":"https://linkedin.test/auth?state=s"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/connections/tiktok/authorize", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(r, http.MethodPost, "/api/connections/myspace/authorize", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestConnectionHandler_Callback(t *testing.T) {
	creds := new(MockCredentialUsecase)
	creds.On("CompleteAuthorization", mock.Anything, model.PlatformFacebook, "good", "s1").
		Return(&model.ConnectionSummary{Platform: model.PlatformFacebook, AccountName: "Acme Page"}, nil)
	creds.On("CompleteAuthorization", mock.Anything, model.PlatformFacebook, "good", "reused").
		Return(nil, fmt.Errorf("state consumed: %w", model.ErrInvalidState))
	h := NewConnectionHandler(creds, "https://app.example/connected?source=oauth")

	r := newEngine()
	r.GET("/oauth/callback/:platform", h.Callback)

	w := do(r, http.MethodGet, "/oauth/callback/facebook?code=good&state=s1", nil)
	require.Equal(t, http.StatusFound, w.Code)
	loc := w.Header().Get("Location")
	assert.Contains(t, loc, "https://app.example/connected?")
	assert.Contains(t, loc, "status=connected")
	assert.Contains(t, loc, "platform=facebook")
	assert.Contains(t, loc, "source=oauth")

	w = do(r, http.MethodGet, "/oauth/callback/facebook?code=good&state=reused", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/oauth/callback/facebook?error=access_denied", nil)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "status=denied")
	creds.AssertNumberOfCalls(t, "CompleteAuthorization", 2)
}

func TestConnectionHandler_DisconnectAndList(t *testing.T) {
	creds := new(MockCredentialUsecase)
	creds.On("Revoke", mock.Anything, "t1", model.PlatformTwitter).Return(nil)
	creds.On("Revoke", mock.Anything, "t1", model.PlatformYouTube).Return(model.ErrNotFound)
	creds.On("ListConnections", mock.Anything, "t1").Return(nil, nil)
	h := NewConnectionHandler(creds, "")

	r := newEngine()
	api := r.Group("/api", withTenant("t1"))
	api.DELETE("/connections/:platform", h.Disconnect)
	api.GET("/connections", h.List)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodDelete, "/api/connections/x", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/api/connections/youtube", nil).Code)

	w := do(r, http.MethodGet, "/api/connections", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"responseCode":"200","responseMessage":"Success","data":[]}`, w.Body.String())
}

func TestScheduleHandler_Schedule(t *testing.T) {
	sched := new(MockSchedulerUsecase)
	start := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	sched.On("Schedule", mock.Anything, "t1", mock.Anything, mock.MatchedBy(func(p model.TimingPolicy) bool {
		return p.Start.Equal(start) && p.Timezone == "Asia/Jakarta" && p.MinSpacing[model.PlatformTwitter] == 20*time.Minute
	})).Return([]*model.ScheduledItem{{ID: "i1", Status: model.ItemScheduled}}, nil).Once()
	h := NewScheduleHandler(sched)

	r := newEngine()
	r.POST("/api/schedule", withTenant("t1"), h.Schedule)

	w := do(r, http.MethodPost, "/api/schedule", dto.ScheduleRequest{
		Items:             []model.PlannedItem{{Platform: model.PlatformTwitter, Payload: model.ItemPayload{Caption: "hi"}}},
		Start:             &start,
		Timezone:          "Asia/Jakarta",
		MinSpacingMinutes: map[string]int{"twitter": 20},
	})
	require.Equal(t, http.StatusCreated, w.Code)
	sched.AssertExpectations(t)

	w = do(r, http.MethodPost, "/api/schedule", map[string]interface{}{"items": []interface{}{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/schedule", dto.ScheduleRequest{
		Items:             []model.PlannedItem{{Platform: model.PlatformTwitter}},
		MinSpacingMinutes: map[string]int{"friendster": 5},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleHandler_Import(t *testing.T) {
	sched := new(MockSchedulerUsecase)
	sched.On("Schedule", mock.Anything, "t1", mock.MatchedBy(func(items []model.PlannedItem) bool {
		return len(items) == 2 && items[1].Platform == model.PlatformLinkedIn
	}), mock.MatchedBy(func(p model.TimingPolicy) bool {
		return p.Draft && len(p.PreferredTimes) == 2
	})).Return([]*model.ScheduledItem{{ID: "a"}, {ID: "b"}}, nil).Once()
	h := NewScheduleHandler(sched)

	r := newEngine()
	r.POST("/api/schedule/import", withTenant("t1"), h.Import)

	upload := func(content string) *httptest.ResponseRecorder {
		var body bytes.Buffer
		form := multipart.NewWriter(&body)
		part, err := form.CreateFormFile("file", "calendar.csv")
		require.NoError(t, err)
		_, _ = part.Write([]byte(content))
		require.NoError(t, form.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/schedule/import?draft=true&preferredTimes=09:00,17:00", &body)
		req.Header.Set("Content-Type", form.FormDataContentType())
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := upload("platform,caption\ntwitter,one\nlinkedin,two\n")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = upload("platform,caption\nmyspace,one\n")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	sched.AssertExpectations(t)
}

func TestScheduleHandler_ItemsAndBulk(t *testing.T) {
	sched := new(MockSchedulerUsecase)
	sched.On("PublishNow", mock.Anything, "t1", "i1").Return(&model.ScheduledItem{ID: "i1", Status: model.ItemPublished}, nil)
	sched.On("PublishNow", mock.Anything, "t1", "gone").Return(nil, model.ErrNotFound)
	sched.On("GetItem", mock.Anything, "t1", "i1").Return(&model.ScheduledItem{ID: "i1"}, nil)
	sched.On("GetItemAnalytics", mock.Anything, "t1", "i1").Return(&model.ItemMetrics{ExternalID: "x1", Likes: 3}, nil)
	sched.On("ListItems", mock.Anything, "t1", model.ItemFailed, 100).Return(nil, nil)
	sched.On("BulkReschedule", mock.Anything, "t1", []string{"a", "b"}, 90*time.Minute).
		Return([]model.BulkResult{{ID: "a", Status: model.ItemScheduled}, {ID: "b", Error: "not found"}})
	sched.On("BulkDelete", mock.Anything, "t1", []string{"a"}).Return([]model.BulkResult{{ID: "a", Status: "deleted"}})
	sched.On("BulkRetry", mock.Anything, "t1", []string{"a"}).Return([]model.BulkResult{{ID: "a", Status: model.ItemScheduled}})
	sched.On("BulkPublish", mock.Anything, "t1", []string{"a"}).Return([]model.BulkResult{{ID: "a", Status: model.ItemPublished}})
	h := NewScheduleHandler(sched)

	r := newEngine()
	api := r.Group("/api", withTenant("t1"))
	api.POST("/publish/:itemId", h.PublishNow)
	api.GET("/items", h.ListItems)
	api.PATCH("/items/bulk/reschedule", h.BulkReschedule)
	api.DELETE("/items/bulk", h.BulkDelete)
	api.POST("/items/bulk/publish", h.BulkPublish)
	api.POST("/items/bulk/retry", h.BulkRetry)
	api.GET("/items/:itemId", h.GetItem)
	api.GET("/items/:itemId/analytics", h.GetItemAnalytics)

	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/publish/i1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/publish/gone", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/items/i1", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/items?status=failed", nil).Code)

	w := do(r, http.MethodGet, "/api/items/i1/analytics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"likes":3`)

	w = do(r, http.MethodPatch, "/api/items/bulk/reschedule", dto.BulkRescheduleRequest{IDs: []string{"a", "b"}, OffsetMinutes: 90})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `{"id":"b","error":"not found"}`)

	assert.Equal(t, http.StatusOK, do(r, http.MethodDelete, "/api/items/bulk", dto.BulkIDsRequest{IDs: []string{"a"}}).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/items/bulk/retry", dto.BulkIDsRequest{IDs: []string{"a"}}).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/items/bulk/publish", dto.BulkIDsRequest{IDs: []string{"a"}}).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodDelete, "/api/items/bulk", dto.BulkIDsRequest{}).Code)
	sched.AssertExpectations(t)
}

func TestCampaignHandler(t *testing.T) {
	campaigns := new(MockCampaignUsecase)
	campaigns.On("Launch", mock.Anything, "t1", mock.MatchedBy(func(req dto.LaunchCampaignRequest) bool {
		return req.Platform == "facebook" && req.DailyBudget == 25
	})).Return(&model.Campaign{ID: "c1", Status: model.CampaignActive}, nil)
	campaigns.On("GetPerformance", mock.Anything, "t1", "c1").Return(&model.PerformanceWindow{Spend: 10, Revenue: 30}, nil)
	campaigns.On("OptimizeCampaign", mock.Anything, "t1", "c1").Return(nil, fmt.Errorf("campaign is paused: %w", model.ErrInvalidTransition))
	campaigns.On("ListDecisions", mock.Anything, "t1", "c1", 5).Return([]model.OptimizationDecision{{ID: "d1"}}, nil)
	campaigns.On("Rebalance", mock.Anything, "t1", 300.0).Return(map[string]float64{"c1": 300}, errors.New("campaign c2: update budget: boom"))
	h := NewCampaignHandler(campaigns)

	r := newEngine()
	api := r.Group("/api", withTenant("t1"))
	api.POST("/campaigns", h.Launch)
	api.POST("/campaigns/rebalance", h.Rebalance)
	api.GET("/campaigns/:id/performance", h.Performance)
	api.POST("/campaigns/:id/optimize", h.Optimize)
	api.GET("/campaigns/:id/decisions", h.Decisions)

	w := do(r, http.MethodPost, "/api/campaigns", dto.LaunchCampaignRequest{Platform: "facebook", AdAccountID: "act_1", Name: "Sale", DailyBudget: 25})
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/campaigns", dto.LaunchCampaignRequest{Platform: "facebook"}).Code)

	w = do(r, http.MethodGet, "/api/campaigns/c1/performance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"roas":3`)

	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/api/campaigns/c1/optimize", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/campaigns/c1/decisions?limit=5", nil).Code)

	w = do(r, http.MethodPost, "/api/campaigns/rebalance", dto.RebalanceRequest{TotalDailyBudget: 300})
	require.Equal(t, http.StatusOK, w.Code)
	res := decode(t, w)
	data := res.Data.(map[string]interface{})
	assert.Equal(t, 300.0, data["allocations"].(map[string]interface{})["c1"])
	assert.Contains(t, data["error"], "boom")
}

func TestHealthHandler(t *testing.T) {
	r := newEngine()
	r.GET("/healthz", NewHealthHandler(map[string]HealthCheck{
		"redis": func(context.Context) error { return nil },
	}).Healthz)
	r.GET("/degraded", NewHealthHandler(map[string]HealthCheck{
		"redis": func(context.Context) error { return nil },
		"sql":   func(context.Context) error { return errors.New("connection refused") },
	}).Healthz)

	w := do(r, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","dependencies":{"redis":"ok"}}`, w.Body.String())

	w = do(r, http.MethodGet, "/degraded", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")
}
