package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/cache"
	"growth-automation/infrastructure/credstore"
	"growth-automation/infrastructure/persistence"
	"growth-automation/infrastructure/security"
)

// Mock implementations

type MockOAuthProvider struct {
	mock.Mock
}

func (m *MockOAuthProvider) AuthCodeURL(state string) string {
	return "https://provider.test/authorize?state=" + state
}

func (m *MockOAuthProvider) Exchange(ctx context.Context, code string) (*model.Credential, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credential), args.Error(1)
}

func (m *MockOAuthProvider) Refresh(ctx context.Context, refreshToken string) (*model.Credential, error) {
	args := m.Called(ctx, refreshToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Credential), args.Error(1)
}

func (m *MockOAuthProvider) Revoke(ctx context.Context, cred *model.Credential) error {
	args := m.Called(ctx, cred)
	return args.Error(0)
}

func (m *MockOAuthProvider) PreserveRefreshToken() bool { return true }

type MockPlatformClient struct {
	mock.Mock
	platform model.Platform
	rules    repository.ContentRules
}

func (m *MockPlatformClient) Platform() model.Platform { return m.platform }

func (m *MockPlatformClient) Rules() repository.ContentRules { return m.rules }

func (m *MockPlatformClient) GetAccount(ctx context.Context, auth model.ClientAuth) (*model.AccountIdentity, error) {
	args := m.Called(ctx, auth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccountIdentity), args.Error(1)
}

func (m *MockPlatformClient) UploadMedia(ctx context.Context, auth model.ClientAuth, mediaURL string) (string, error) {
	args := m.Called(ctx, auth, mediaURL)
	return args.String(0), args.Error(1)
}

func (m *MockPlatformClient) CreatePost(ctx context.Context, auth model.ClientAuth, post model.PostRequest) (*model.PublishResult, error) {
	args := m.Called(ctx, auth, post)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PublishResult), args.Error(1)
}

func (m *MockPlatformClient) GetInsights(ctx context.Context, auth model.ClientAuth, window model.DateWindow) (*model.AccountMetrics, error) {
	args := m.Called(ctx, auth, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccountMetrics), args.Error(1)
}

func (m *MockPlatformClient) GetItemAnalytics(ctx context.Context, auth model.ClientAuth, externalID string) (*model.ItemMetrics, error) {
	args := m.Called(ctx, auth, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ItemMetrics), args.Error(1)
}

type MockAdsClient struct {
	mock.Mock
}

func (m *MockAdsClient) CreateCampaign(ctx context.Context, auth model.ClientAuth, adAccountID string, spec model.CampaignSpec) (string, error) {
	args := m.Called(ctx, auth, adAccountID, spec)
	return args.String(0), args.Error(1)
}

func (m *MockAdsClient) UpdateBudget(ctx context.Context, auth model.ClientAuth, externalID string, dailyBudget float64) error {
	args := m.Called(ctx, auth, externalID, dailyBudget)
	return args.Error(0)
}

func (m *MockAdsClient) PauseCampaign(ctx context.Context, auth model.ClientAuth, externalID string) error {
	args := m.Called(ctx, auth, externalID)
	return args.Error(0)
}

func (m *MockAdsClient) GetCampaignPerformance(ctx context.Context, auth model.ClientAuth, externalID string, window model.DateWindow) (*model.PerformanceWindow, error) {
	args := m.Called(ctx, auth, externalID, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.PerformanceWindow), args.Error(1)
}

type MockMetricsSnapshot struct {
	mock.Mock
}

func (m *MockMetricsSnapshot) SavePerformance(ctx context.Context, p *model.PerformanceWindow) error {
	args := m.Called(ctx, p)
	return args.Error(0)
}

func (m *MockMetricsSnapshot) SaveAccountMetrics(ctx context.Context, am *model.AccountMetrics) error {
	args := m.Called(ctx, am)
	return args.Error(0)
}

// stubRegistry resolves the adapters registered on it.
type stubRegistry struct {
	oauth   map[model.Platform]repository.IOAuthProvider
	clients map[model.Platform]repository.IPlatformClient
	ads     map[model.Platform]repository.IAdsClient
}

func newStubRegistry() *stubRegistry {
	return &stubRegistry{
		oauth:   map[model.Platform]repository.IOAuthProvider{},
		clients: map[model.Platform]repository.IPlatformClient{},
		ads:     map[model.Platform]repository.IAdsClient{},
	}
}

func (r *stubRegistry) OAuth(p model.Platform) (repository.IOAuthProvider, error) {
	if o, ok := r.oauth[p]; ok {
		return o, nil
	}
	return nil, model.ErrConfiguration
}

func (r *stubRegistry) Client(p model.Platform) (repository.IPlatformClient, error) {
	if c, ok := r.clients[p]; ok {
		return c, nil
	}
	return nil, model.ErrUnsupportedPlatform
}

func (r *stubRegistry) Ads(p model.Platform) (repository.IAdsClient, error) {
	if a, ok := r.ads[p]; ok {
		return a, nil
	}
	return nil, model.ErrUnsupportedPlatform
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.DomainEvent
}

func (p *recordingPublisher) Publish(_ context.Context, evt model.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *recordingNotifier) Notify(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *recordingNotifier) joined() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return strings.Join(n.texts, "\n")
}

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type fixture struct {
	registry *stubRegistry
	conns    *persistence.MemoryConnectionRepository
	store    *credstore.Store
	states   *cache.MemoryStateStore
	signer   *security.StateSigner
	events   *recordingPublisher
	notifier *recordingNotifier
	creds    *credentialUsecase
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cipher, err := security.NewAESGCMCipher(testKeyHex)
	require.NoError(t, err)
	f := &fixture{
		registry: newStubRegistry(),
		conns:    persistence.NewMemoryConnectionRepository(),
		states:   cache.NewMemoryStateStore(),
		signer:   security.NewStateSigner("test-secret"),
		events:   &recordingPublisher{},
		notifier: &recordingNotifier{},
	}
	f.store = credstore.NewStore(f.conns, cipher)
	f.creds = NewCredentialUsecase(f.registry, f.store, f.states, f.signer, f.events, f.notifier, CredentialConfig{
		ProviderConcurrency: 4,
		CallTimeout:         time.Second,
	}).(*credentialUsecase)
	return f
}

// connect stores a connection for tenant t1 with the given credential.
func (f *fixture) connect(t *testing.T, platform model.Platform, cred *model.Credential) {
	t.Helper()
	_, err := f.store.Save(context.Background(), "t1", platform, model.AccountIdentity{ID: "acct-1", Name: "Acme"}, cred)
	require.NoError(t, err)
}
