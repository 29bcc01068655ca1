package repository

import (
	"context"

	"growth-automation/domain/model"
)

// ContentRules are the per platform limits applied before posting.
type ContentRules struct {
	MaxCaption    int
	MaxHashtags   int
	RequiresMedia bool
}

// IPlatformClient is implemented once per platform. Credentials arrive with every call.
type IPlatformClient interface {
	Platform() model.Platform
	Rules() ContentRules
	GetAccount(ctx context.Context, auth model.ClientAuth) (*model.AccountIdentity, error)
	// UploadMedia returns a platform media id. Adapters that publish by URL return the URL.
	UploadMedia(ctx context.Context, auth model.ClientAuth, mediaURL string) (string, error)
	CreatePost(ctx context.Context, auth model.ClientAuth, post model.PostRequest) (*model.PublishResult, error)
	GetInsights(ctx context.Context, auth model.ClientAuth, window model.DateWindow) (*model.AccountMetrics, error)
	GetItemAnalytics(ctx context.Context, auth model.ClientAuth, externalID string) (*model.ItemMetrics, error)
}

// IAdsClient is implemented by platforms that run paid campaigns.
type IAdsClient interface {
	CreateCampaign(ctx context.Context, auth model.ClientAuth, adAccountID string, spec model.CampaignSpec) (string, error)
	UpdateBudget(ctx context.Context, auth model.ClientAuth, externalID string, dailyBudget float64) error
	PauseCampaign(ctx context.Context, auth model.ClientAuth, externalID string) error
	GetCampaignPerformance(ctx context.Context, auth model.ClientAuth, externalID string, window model.DateWindow) (*model.PerformanceWindow, error)
}

// IOAuthProvider wraps a platform's authorization server.
type IOAuthProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*model.Credential, error)
	// Refresh returns model.ErrReauthorizationRequired when the provider rejects the refresh token.
	Refresh(ctx context.Context, refreshToken string) (*model.Credential, error)
	Revoke(ctx context.Context, cred *model.Credential) error
	// PreserveRefreshToken reports whether a refresh response without a refresh token keeps the old one.
	PreserveRefreshToken() bool
}

// IPlatformRegistry resolves adapters by platform tag.
type IPlatformRegistry interface {
	OAuth(p model.Platform) (IOAuthProvider, error)
	Client(p model.Platform) (IPlatformClient, error)
	Ads(p model.Platform) (IAdsClient, error)
}

type IEventPublisher interface {
	Publish(ctx context.Context, evt model.DomainEvent) error
}

type INotifier interface {
	Notify(ctx context.Context, text string) error
}
