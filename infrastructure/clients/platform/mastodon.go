package platform

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-mastodon"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/configuration"
)

// MastodonClient posts statuses on the configured instance through go-mastodon.
type MastodonClient struct {
	api    *httpAPI
	server string
	rules  repository.ContentRules
}

func NewMastodonClient(p configuration.Provider, client *http.Client, timeout time.Duration) *MastodonClient {
	return &MastodonClient{
		api:    newHTTPAPI(model.PlatformMastodon, client, timeout),
		server: strings.TrimRight(p.Server, "/"),
		rules:  repository.ContentRules{MaxCaption: p.MaxCaption, MaxHashtags: p.MaxHashtags},
	}
}

func (c *MastodonClient) Platform() model.Platform { return model.PlatformMastodon }
func (c *MastodonClient) Rules() repository.ContentRules { return c.rules }

// statusRecorder keeps the last response status so go-mastodon's string errors can be classified.
type statusRecorder struct {
	base       http.RoundTripper
	mu         sync.Mutex
	status     int
	retryAfter string
}

func (r *statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := r.base.RoundTrip(req)
	if err == nil {
		r.mu.Lock()
		r.status, r.retryAfter = resp.StatusCode, resp.Header.Get("Retry-After")
		r.mu.Unlock()
	}
	return resp, err
}

func (r *statusRecorder) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	r.mu.Lock()
	status, retryAfter := r.status, r.retryAfter
	r.mu.Unlock()
	if status < 300 {
		return &model.ProviderError{Platform: model.PlatformMastodon, Op: op, Kind: model.ErrProviderUnavailable, Message: err.Error()}
	}
	return StatusError(model.PlatformMastodon, op, status, retryAfter, err.Error())
}

func (c *MastodonClient) client(auth model.ClientAuth) (*mastodon.Client, *statusRecorder) {
	base := c.api.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	rec := &statusRecorder{base: base}
	mc := mastodon.NewClient(&mastodon.Config{Server: c.server, AccessToken: auth.AccessToken()})
	mc.Transport = rec
	mc.Timeout = c.api.timeout
	return mc, rec
}

func (c *MastodonClient) GetAccount(ctx context.Context, auth model.ClientAuth) (*model.AccountIdentity, error) {
	mc, rec := c.client(auth)
	acct, err := mc.GetAccountCurrentUser(ctx)
	if err != nil {
		return nil, rec.classify("verify credentials", err)
	}
	return &model.AccountIdentity{ID: string(acct.ID), Name: acct.DisplayName, Username: acct.Acct}, nil
}

func (c *MastodonClient) UploadMedia(ctx context.Context, auth model.ClientAuth, mediaURL string) (string, error) {
	data, _, err := c.api.fetchMedia(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	mc, rec := c.client(auth)
	att, err := mc.UploadMediaFromReader(ctx, bytes.NewReader(data))
	if err != nil {
		if cerr := rec.classify("upload media", err); model.IsTransient(cerr) || errors.Is(cerr, model.ErrUnauthorized) {
			return "", cerr
		}
		return "", &model.ProviderError{Platform: model.PlatformMastodon, Op: "upload media", Kind: model.ErrMediaUpload, Message: err.Error()}
	}
	return string(att.ID), nil
}

func (c *MastodonClient) CreatePost(ctx context.Context, auth model.ClientAuth, post model.PostRequest) (*model.PublishResult, error) {
	toot := &mastodon.Toot{Status: post.Caption, Visibility: mastodon.VisibilityPublic}
	for _, id := range post.MediaIDs {
		toot.MediaIDs = append(toot.MediaIDs, mastodon.ID(id))
	}
	mc, rec := c.client(auth)
	status, err := mc.PostStatus(ctx, toot)
	if err != nil {
		return nil, rec.classify("post status", err)
	}
	return &model.PublishResult{ExternalID: string(status.ID), URL: status.URL}, nil
}

// GetInsights reports account counters; Mastodon has no reach metrics.
func (c *MastodonClient) GetInsights(ctx context.Context, auth model.ClientAuth, window model.DateWindow) (*model.AccountMetrics, error) {
	mc, rec := c.client(auth)
	acct, err := mc.GetAccountCurrentUser(ctx)
	if err != nil {
		return nil, rec.classify("verify credentials", err)
	}
	return &model.AccountMetrics{
		Platform:  model.PlatformMastodon,
		TenantID:  auth.TenantID,
		Window:    window,
		Followers: acct.FollowersCount,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (c *MastodonClient) GetItemAnalytics(ctx context.Context, auth model.ClientAuth, externalID string) (*model.ItemMetrics, error) {
	mc, rec := c.client(auth)
	status, err := mc.GetStatus(ctx, mastodon.ID(externalID))
	if err != nil {
		return nil, rec.classify("get status", err)
	}
	return &model.ItemMetrics{
		ExternalID: externalID,
		Likes:      status.FavouritesCount,
		Comments:   status.RepliesCount,
		Shares:     status.ReblogsCount,
	}, nil
}

var _ repository.IPlatformClient = (*MastodonClient)(nil)
