package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/persistence"
)

var testNow = time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)

type schedulerFixture struct {
	*fixture
	items     *persistence.MemoryScheduledItemRepository
	campaigns *persistence.MemoryCampaignRepository
	twitter   *MockPlatformClient
	scheduler *schedulerUsecase
}

func newSchedulerFixture(t *testing.T, cfg SchedulerConfig) *schedulerFixture {
	t.Helper()
	f := newFixture(t)
	sf := &schedulerFixture{
		fixture:   f,
		items:     persistence.NewMemoryScheduledItemRepository(),
		campaigns: persistence.NewMemoryCampaignRepository(),
		twitter: &MockPlatformClient{
			platform: model.PlatformTwitter,
			rules:    repository.ContentRules{MaxCaption: 280, MaxHashtags: 2},
		},
	}
	f.registry.clients[model.PlatformTwitter] = sf.twitter
	f.connect(t, model.PlatformTwitter, &model.Credential{AccessToken: "token"})

	retry := RetryPolicy{MaxRetries: 3, BaseBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}
	publisher := NewPublisher(f.registry, f.creds, sf.campaigns, retry)
	sf.scheduler = NewSchedulerUsecase(sf.items, f.registry, f.creds, publisher, f.events, f.notifier, cfg).(*schedulerUsecase)
	sf.scheduler.now = func() time.Time { return testNow }
	return sf
}

// seed stores a due twitter item directly.
func (sf *schedulerFixture) seed(t *testing.T, id string, status model.ItemStatus) *model.ScheduledItem {
	t.Helper()
	item := &model.ScheduledItem{
		ID:          id,
		TenantID:    "t1",
		Platform:    model.PlatformTwitter,
		Kind:        model.ItemKindPost,
		Payload:     model.ItemPayload{Caption: "hello " + id},
		ScheduledAt: testNow.Add(-time.Minute),
		Status:      status,
	}
	require.NoError(t, sf.items.Create(context.Background(), []*model.ScheduledItem{item}))
	return item
}

func planned(n int, platform model.Platform) []model.PlannedItem {
	out := make([]model.PlannedItem, n)
	for i := range out {
		out[i] = model.PlannedItem{Platform: platform, Payload: model.ItemPayload{Caption: "post"}}
	}
	return out
}

func TestSchedule_HonoursMinimumSpacing(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})

	items, err := sf.scheduler.Schedule(context.Background(), "t1", planned(3, model.PlatformTwitter), model.TimingPolicy{})
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, testNow, items[0].ScheduledAt)
	assert.Equal(t, testNow.Add(15*time.Minute), items[1].ScheduledAt)
	assert.Equal(t, testNow.Add(30*time.Minute), items[2].ScheduledAt)
	for _, it := range items {
		assert.Equal(t, model.ItemScheduled, it.Status)
		assert.Equal(t, model.ItemKindPost, it.Kind)
	}
}

func TestSchedule_PreferredTimesInTimezone(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	sf.registry.clients[model.PlatformLinkedIn] = &MockPlatformClient{
		platform: model.PlatformLinkedIn,
		rules:    repository.ContentRules{MaxCaption: 3000, MaxHashtags: 5},
	}

	policy := model.TimingPolicy{Timezone: "Asia/Jakarta", PreferredTimes: []string{"09:00", "19:00"}}
	items, err := sf.scheduler.Schedule(context.Background(), "t1", planned(3, model.PlatformLinkedIn), policy)
	require.NoError(t, err)

	// 10:30 UTC is 17:30 in Jakarta
	jakarta, _ := time.LoadLocation("Asia/Jakarta")
	assert.Equal(t, time.Date(2026, 3, 2, 19, 0, 0, 0, jakarta).UTC(), items[0].ScheduledAt)
	assert.Equal(t, time.Date(2026, 3, 3, 9, 0, 0, 0, jakarta).UTC(), items[1].ScheduledAt)
	assert.Equal(t, time.Date(2026, 3, 3, 19, 0, 0, 0, jakarta).UTC(), items[2].ScheduledAt)
}

func TestSchedule_ContinuesAfterExistingItems(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	ctx := context.Background()
	existing := &model.ScheduledItem{ID: "old", TenantID: "t1", Platform: model.PlatformTwitter, ScheduledAt: testNow.Add(10 * time.Minute), Status: model.ItemScheduled}
	require.NoError(t, sf.items.Create(ctx, []*model.ScheduledItem{existing}))

	items, err := sf.scheduler.Schedule(ctx, "t1", planned(1, model.PlatformTwitter), model.TimingPolicy{
		MinSpacing: map[model.Platform]time.Duration{model.PlatformTwitter: 20 * time.Minute},
		Draft:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(30*time.Minute), items[0].ScheduledAt)
	assert.Equal(t, model.ItemDraft, items[0].Status)
}

func TestSchedule_RejectsInvalidInput(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	ctx := context.Background()

	long := []model.PlannedItem{{Platform: model.PlatformTwitter, Payload: model.ItemPayload{Caption: "x", Link: "https://example.com/" + strings.Repeat("a", 300)}}}
	_, err := sf.scheduler.Schedule(ctx, "t1", long, model.TimingPolicy{})
	assert.ErrorIs(t, err, model.ErrContentTooLong)

	_, err = sf.scheduler.Schedule(ctx, "t1", planned(1, model.PlatformTikTok), model.TimingPolicy{})
	assert.ErrorIs(t, err, model.ErrUnsupportedPlatform)

	_, err = sf.scheduler.Schedule(ctx, "t1", planned(1, model.PlatformTwitter), model.TimingPolicy{PreferredTimes: []string{"25:00"}})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = sf.scheduler.Schedule(ctx, "t1", planned(1, model.PlatformTwitter), model.TimingPolicy{Timezone: "Mars/Olympus"})
	assert.ErrorIs(t, err, model.ErrValidation)

	list, err := sf.items.ListByTenant(ctx, "t1", "", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestTick_PublishesDueItems(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	sf.seed(t, "i1", model.ItemScheduled)
	sf.twitter.On("CreatePost", mock.Anything, mock.Anything, mock.MatchedBy(func(p model.PostRequest) bool {
		return p.Caption == "hello i1"
	})).Return(&model.PublishResult{ExternalID: "tw-1", URL: "https://x.com/i/web/status/tw-1"}, nil).Once()

	ctx := context.Background()
	report, err := sf.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Due)
	assert.Equal(t, 1, report.Published)

	got, err := sf.items.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, model.ItemPublished, got.Status)
	require.NotNil(t, got.ExternalID)
	assert.Equal(t, "tw-1", *got.ExternalID)
	assert.Contains(t, sf.events.types(), model.EventItemPublished)

	// a second tick finds nothing to do
	report, err = sf.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Due)
	sf.twitter.AssertNumberOfCalls(t, "CreatePost", 1)
}

func TestTick_ConcurrentTicksPublishOnce(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	for _, id := range []string{"a", "b", "c"} {
		sf.seed(t, id, model.ItemScheduled)
	}
	sf.twitter.On("CreatePost", mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { time.Sleep(10 * time.Millisecond) }).
		Return(&model.PublishResult{ExternalID: "x"}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = sf.scheduler.Tick(context.Background())
		}()
	}
	wg.Wait()
	sf.twitter.AssertNumberOfCalls(t, "CreatePost", 3)
}

func TestTick_RetriesTransientFailures(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	sf.seed(t, "i1", model.ItemScheduled)
	unavailable := &model.ProviderError{Platform: model.PlatformTwitter, Op: "create tweet", StatusCode: 503, Kind: model.ErrProviderUnavailable}
	sf.twitter.On("CreatePost", mock.Anything, mock.Anything, mock.Anything).Return(nil, unavailable).Twice()
	sf.twitter.On("CreatePost", mock.Anything, mock.Anything, mock.Anything).Return(&model.PublishResult{ExternalID: "tw"}, nil).Once()

	report, err := sf.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
	sf.twitter.AssertNumberOfCalls(t, "CreatePost", 3)
}

func TestTick_TransientFailuresExhaustRetries(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	sf.seed(t, "i1", model.ItemScheduled)
	limited := &model.ProviderError{Platform: model.PlatformTwitter, Op: "create tweet", StatusCode: 429, Kind: model.ErrRateLimited, RetryAfter: time.Millisecond}
	sf.twitter.On("CreatePost", mock.Anything, mock.Anything, mock.Anything).Return(nil, limited)

	report, err := sf.scheduler.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	sf.twitter.AssertNumberOfCalls(t, "CreatePost", 4)
}

func TestTick_PermanentFailureIsNotRetried(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	sf.seed(t, "i1", model.ItemScheduled)
	rejected := &model.ProviderError{Platform: model.PlatformTwitter, Op: "create tweet", StatusCode: 403, Kind: model.ErrContentRejected, Message: "duplicate content"}
	sf.twitter.On("CreatePost", mock.Anything, mock.Anything, mock.Anything).Return(nil, rejected)

	ctx := context.Background()
	report, err := sf.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	sf.twitter.AssertNumberOfCalls(t, "CreatePost", 1)

	got, err := sf.items.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, model.ItemFailed, got.Status)
	require.NotNil(t, got.LastError)
	assert.Contains(t, *got.LastError, "duplicate content")
	assert.Contains(t, sf.events.types(), model.EventItemFailed)
	assert.Contains(t, sf.notifier.joined(), "i1")
}

func TestTick_PanicIsContainedPerItem(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{Workers: 1})
	sf.seed(t, "bad", model.ItemScheduled)
	sf.seed(t, "good", model.ItemScheduled)
	sf.twitter.On("CreatePost", mock.Anything, mock.Anything, mock.MatchedBy(func(p model.PostRequest) bool {
		return p.Caption == "hello bad"
	})).Run(func(mock.Arguments) { panic("adapter bug") })
	sf.twitter.On("CreatePost", mock.Anything, mock.Anything, mock.MatchedBy(func(p model.PostRequest) bool {
		return p.Caption == "hello good"
	})).Return(&model.PublishResult{ExternalID: "ok"}, nil)

	ctx := context.Background()
	report, err := sf.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
	assert.Equal(t, 1, report.Failed)

	bad, err := sf.items.Get(ctx, "bad")
	require.NoError(t, err)
	assert.Equal(t, model.ItemFailed, bad.Status)
	assert.Contains(t, *bad.LastError, "adapter bug")
}

func TestTick_ReclaimsExpiredLease(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	ctx := context.Background()
	expired := testNow.Add(-time.Minute)
	item := &model.ScheduledItem{
		ID: "stuck", TenantID: "t1", Platform: model.PlatformTwitter, Kind: model.ItemKindPost,
		Payload: model.ItemPayload{Caption: "stuck"}, ScheduledAt: testNow.Add(-time.Hour),
		Status: model.ItemPublishing, LeaseExpiresAt: &expired, Attempts: 1,
	}
	require.NoError(t, sf.items.Create(ctx, []*model.ScheduledItem{item}))
	sf.twitter.On("CreatePost", mock.Anything, mock.Anything, mock.Anything).Return(&model.PublishResult{ExternalID: "late"}, nil)

	report, err := sf.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Reclaimed)
	assert.Equal(t, 1, report.Published)
}

func TestTick_ReauthorizationSurfaces(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	sf.registry.oauth[model.PlatformTwitter] = new(MockOAuthProvider)
	sf.connect(t, model.PlatformTwitter, &model.Credential{AccessToken: "gone", ExpiresAt: testNow.Add(-time.Hour)})
	sf.seed(t, "i1", model.ItemScheduled)

	ctx := context.Background()
	_, err := sf.scheduler.Tick(ctx)
	require.NoError(t, err)
	got, err := sf.items.Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, model.ItemFailed, got.Status)
	assert.True(t, strings.HasPrefix(*got.LastError, "reauthorization required"))
	sf.twitter.AssertNotCalled(t, "CreatePost", mock.Anything, mock.Anything, mock.Anything)
}

func TestTick_UploadsMediaBeforePosting(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	ctx := context.Background()
	item := &model.ScheduledItem{
		ID: "m1", TenantID: "t1", Platform: model.PlatformTwitter, Kind: model.ItemKindPost,
		Payload:     model.ItemPayload{Caption: "pic", MediaURLs: []string{"https://cdn.test/a.png"}},
		ScheduledAt: testNow, Status: model.ItemScheduled,
	}
	require.NoError(t, sf.items.Create(ctx, []*model.ScheduledItem{item}))
	sf.twitter.On("UploadMedia", mock.Anything, mock.Anything, "https://cdn.test/a.png").Return("media-9", nil).Once()
	sf.twitter.On("CreatePost", mock.Anything, mock.Anything, mock.MatchedBy(func(p model.PostRequest) bool {
		return len(p.MediaIDs) == 1 && p.MediaIDs[0] == "media-9"
	})).Return(&model.PublishResult{ExternalID: "tw"}, nil).Once()

	report, err := sf.scheduler.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Published)
	sf.twitter.AssertExpectations(t)
}

func TestBulkDelete_PerIDOutcomes(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	ctx := context.Background()
	sf.seed(t, "scheduled", model.ItemScheduled)
	sf.seed(t, "draft", model.ItemDraft)
	sf.seed(t, "published", model.ItemPublished)
	other := &model.ScheduledItem{ID: "foreign", TenantID: "t2", Platform: model.PlatformTwitter, Status: model.ItemScheduled}
	require.NoError(t, sf.items.Create(ctx, []*model.ScheduledItem{other}))

	results := sf.scheduler.BulkDelete(ctx, "t1", []string{"scheduled", "draft", "published", "foreign", "missing"})
	require.Len(t, results, 5)
	assert.Empty(t, results[0].Error)
	assert.Empty(t, results[1].Error)
	assert.Contains(t, results[2].Error, model.ErrInvalidTransition.Error())
	assert.Equal(t, model.ItemPublished, results[2].Status)
	assert.Contains(t, results[3].Error, model.ErrNotFound.Error())
	assert.Contains(t, results[4].Error, model.ErrNotFound.Error())

	_, err := sf.items.Get(ctx, "foreign")
	assert.NoError(t, err)
}

func TestBulkReschedule(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	ctx := context.Background()
	sf.seed(t, "a", model.ItemScheduled)
	sf.seed(t, "p", model.ItemPublishing)

	results := sf.scheduler.BulkReschedule(ctx, "t1", []string{"a", "p"}, 2*time.Hour)
	assert.Empty(t, results[0].Error)
	assert.Equal(t, model.ItemScheduled, results[0].Status)
	assert.NotEmpty(t, results[1].Error)

	got, err := sf.items.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, testNow.Add(-time.Minute).Add(2*time.Hour), got.ScheduledAt)

	// moving into the past clamps to now
	sf.scheduler.BulkReschedule(ctx, "t1", []string{"a"}, -48*time.Hour)
	got, err = sf.items.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, testNow, got.ScheduledAt)
}

func TestBulkRetry_OnlyFailedItems(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	ctx := context.Background()
	sf.seed(t, "f", model.ItemScheduled)
	sf.seed(t, "s", model.ItemScheduled)
	_, err := sf.items.Claim(ctx, "f", testNow.Add(time.Minute))
	require.NoError(t, err)
	require.NoError(t, sf.items.MarkFailed(ctx, "f", "boom"))

	results := sf.scheduler.BulkRetry(ctx, "t1", []string{"f", "s"})
	assert.Empty(t, results[0].Error)
	assert.Equal(t, model.ItemScheduled, results[0].Status)
	assert.Contains(t, results[1].Error, model.ErrInvalidTransition.Error())
}

func TestPublishNow_AndBulkPublish(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	ctx := context.Background()
	items, err := sf.scheduler.Schedule(ctx, "t1", planned(2, model.PlatformTwitter), model.TimingPolicy{Start: testNow.Add(24 * time.Hour), Draft: true})
	require.NoError(t, err)
	sf.twitter.On("CreatePost", mock.Anything, mock.Anything, mock.Anything).Return(&model.PublishResult{ExternalID: "now"}, nil)

	got, err := sf.scheduler.PublishNow(ctx, "t1", items[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ItemPublished, got.Status)

	_, err = sf.scheduler.PublishNow(ctx, "t1", items[0].ID)
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	results := sf.scheduler.BulkPublish(ctx, "t1", []string{items[1].ID, "missing"})
	assert.Equal(t, model.ItemPublished, results[0].Status)
	assert.NotEmpty(t, results[1].Error)
}

func TestGetItemAnalytics(t *testing.T) {
	sf := newSchedulerFixture(t, SchedulerConfig{})
	ctx := context.Background()
	sf.seed(t, "i1", model.ItemScheduled)

	_, err := sf.scheduler.GetItemAnalytics(ctx, "t1", "i1")
	assert.ErrorIs(t, err, model.ErrInvalidTransition)

	sf.twitter.On("CreatePost", mock.Anything, mock.Anything, mock.Anything).Return(&model.PublishResult{ExternalID: "tw-7"}, nil)
	_, err = sf.scheduler.Tick(ctx)
	require.NoError(t, err)
	sf.twitter.On("GetItemAnalytics", mock.Anything, mock.Anything, "tw-7").Return(&model.ItemMetrics{ExternalID: "tw-7", Likes: 12}, nil)

	m, err := sf.scheduler.GetItemAnalytics(ctx, "t1", "i1")
	require.NoError(t, err)
	assert.Equal(t, int64(12), m.Likes)

	_, err = sf.scheduler.GetItemAnalytics(ctx, "t2", "i1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}
