package platform

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/configuration"
)

const maxYouTubeTitle = 100

// YouTubeClient uploads videos with the YouTube Data API. A service is built per call
// around the caller's token, so the client itself holds no credentials.
type YouTubeClient struct {
	api      *httpAPI
	endpoint string
	rules    repository.ContentRules
}

func NewYouTubeClient(p configuration.Provider, client *http.Client, timeout time.Duration) *YouTubeClient {
	return &YouTubeClient{
		api:      newHTTPAPI(model.PlatformYouTube, client, timeout),
		endpoint: p.APIBaseURL,
		rules:    repository.ContentRules{MaxCaption: p.MaxCaption, MaxHashtags: p.MaxHashtags, RequiresMedia: true},
	}
}

func (c *YouTubeClient) Platform() model.Platform { return model.PlatformYouTube }
func (c *YouTubeClient) Rules() repository.ContentRules { return c.rules }

func (c *YouTubeClient) service(ctx context.Context, auth model.ClientAuth) (*youtube.Service, error) {
	base := c.api.client.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	httpClient := &http.Client{Transport: &oauth2.Transport{
		Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: auth.AccessToken(), TokenType: "Bearer"}),
		Base:   base,
	}}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create YouTube service: %w", err)
	}
	return svc, nil
}

// classify maps googleapi errors onto the shared taxonomy.
func (c *YouTubeClient) classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		msg := gerr.Message
		if msg == "" {
			msg = gerr.Body
		}
		for _, item := range gerr.Errors {
			// quota errors arrive as 403
			if item.Reason == "quotaExceeded" || item.Reason == "rateLimitExceeded" || item.Reason == "uploadLimitExceeded" {
				return &model.ProviderError{Platform: model.PlatformYouTube, Op: op, StatusCode: gerr.Code, Kind: model.ErrRateLimited, Message: msg}
			}
		}
		return StatusError(model.PlatformYouTube, op, gerr.Code, gerr.Header.Get("Retry-After"), msg)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return &model.ProviderError{Platform: model.PlatformYouTube, Op: op, Kind: model.ErrProviderUnavailable, Message: err.Error()}
}

func (c *YouTubeClient) GetAccount(ctx context.Context, auth model.ClientAuth) (*model.AccountIdentity, error) {
	svc, err := c.service(ctx, auth)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Channels.List([]string{"snippet"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, c.classify("get channel", err)
	}
	if len(resp.Items) == 0 {
		return nil, &model.ProviderError{Platform: model.PlatformYouTube, Op: "get channel", Kind: model.ErrContentRejected, Message: "no channel found for authenticated user"}
	}
	ch := resp.Items[0]
	return &model.AccountIdentity{ID: ch.Id, Name: ch.Snippet.Title, Username: ch.Snippet.CustomUrl}, nil
}

// UploadMedia passes the URL through; the video is streamed in CreatePost.
func (c *YouTubeClient) UploadMedia(_ context.Context, _ model.ClientAuth, mediaURL string) (string, error) {
	return mediaURL, nil
}

func videoTitle(post model.PostRequest) string {
	title := strings.TrimSpace(post.Title)
	if title == "" {
		title, _, _ = strings.Cut(strings.TrimSpace(post.Caption), "\n")
	}
	if r := []rune(title); len(r) > maxYouTubeTitle {
		title = string(r[:maxYouTubeTitle-1]) + "…"
	}
	return title
}

func (c *YouTubeClient) CreatePost(ctx context.Context, auth model.ClientAuth, post model.PostRequest) (*model.PublishResult, error) {
	if len(post.MediaIDs) == 0 {
		return nil, &model.ProviderError{Platform: model.PlatformYouTube, Op: "upload video", Kind: model.ErrContentRejected, Message: "a video is required"}
	}
	data, contentType, err := c.api.fetchMedia(ctx, post.MediaIDs[0])
	if err != nil {
		return nil, err
	}
	if !isVideo(contentType, post.MediaIDs[0]) {
		return nil, fmt.Errorf("%w: youtube accepts video only, got %s", model.ErrMediaUpload, contentType)
	}
	svc, err := c.service(ctx, auth)
	if err != nil {
		return nil, err
	}

	tags := make([]string, 0, len(post.Hashtags))
	for _, t := range post.Hashtags {
		tags = append(tags, strings.TrimPrefix(t, "#"))
	}
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       videoTitle(post),
			Description: post.Caption,
			Tags:        tags,
		},
		Status: &youtube.VideoStatus{PrivacyStatus: "public"},
	}
	resp, err := svc.Videos.Insert([]string{"snippet", "status"}, video).
		Media(bytes.NewReader(data), googleapi.ContentType(contentType)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, c.classify("upload video", err)
	}
	return &model.PublishResult{ExternalID: resp.Id, URL: "https://www.youtube.com/watch?v=" + resp.Id}, nil
}

// GetInsights reports channel totals from the Data API statistics part.
func (c *YouTubeClient) GetInsights(ctx context.Context, auth model.ClientAuth, window model.DateWindow) (*model.AccountMetrics, error) {
	svc, err := c.service(ctx, auth)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Channels.List([]string{"statistics"}).Mine(true).Context(ctx).Do()
	if err != nil {
		return nil, c.classify("channel statistics", err)
	}
	m := &model.AccountMetrics{Platform: model.PlatformYouTube, TenantID: auth.TenantID, Window: window, FetchedAt: time.Now().UTC()}
	if len(resp.Items) > 0 && resp.Items[0].Statistics != nil {
		st := resp.Items[0].Statistics
		m.Followers = int64(st.SubscriberCount)
		m.Impressions = int64(st.ViewCount)
	}
	return m, nil
}

func (c *YouTubeClient) GetItemAnalytics(ctx context.Context, auth model.ClientAuth, externalID string) (*model.ItemMetrics, error) {
	svc, err := c.service(ctx, auth)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Videos.List([]string{"statistics"}).Id(externalID).Context(ctx).Do()
	if err != nil {
		return nil, c.classify("video statistics", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Statistics == nil {
		return nil, fmt.Errorf("youtube video %s: %w", externalID, model.ErrNotFound)
	}
	st := resp.Items[0].Statistics
	return &model.ItemMetrics{
		ExternalID: externalID,
		Views:      int64(st.ViewCount),
		Likes:      int64(st.LikeCount),
		Comments:   int64(st.CommentCount),
	}, nil
}

var _ repository.IPlatformClient = (*YouTubeClient)(nil)
