package platform

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/configuration"
)

// TwitterClient posts through the X v2 API with the member's OAuth 2.0 user token.
type TwitterClient struct {
	api       *httpAPI
	baseURL   string
	uploadURL string
	rules     repository.ContentRules
}

func NewTwitterClient(p configuration.Provider, client *http.Client, timeout time.Duration) *TwitterClient {
	return &TwitterClient{
		api:       newHTTPAPI(model.PlatformTwitter, client, timeout),
		baseURL:   strings.TrimRight(p.APIBaseURL, "/"),
		uploadURL: p.UploadURL,
		rules:     repository.ContentRules{MaxCaption: p.MaxCaption, MaxHashtags: p.MaxHashtags},
	}
}

func (c *TwitterClient) Platform() model.Platform { return model.PlatformTwitter }
func (c *TwitterClient) Rules() repository.ContentRules { return c.rules }

type twitterUser struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Username      string `json:"username"`
	PublicMetrics struct {
		FollowersCount int64 `json:"followers_count"`
		TweetCount     int64 `json:"tweet_count"`
		LikeCount      int64 `json:"like_count"`
	} `json:"public_metrics"`
}

func (c *TwitterClient) me(ctx context.Context, auth model.ClientAuth) (*twitterUser, error) {
	var resp struct {
		Data twitterUser `json:"data"`
	}
	if err := c.api.getJSON(ctx, "users me", c.baseURL+"/users/me?user.fields=public_metrics", auth.AccessToken(), &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

func (c *TwitterClient) GetAccount(ctx context.Context, auth model.ClientAuth) (*model.AccountIdentity, error) {
	u, err := c.me(ctx, auth)
	if err != nil {
		return nil, err
	}
	return &model.AccountIdentity{ID: u.ID, Name: u.Name, Username: u.Username}, nil
}

// UploadMedia posts the image as a single multipart upload. Videos need the chunked flow and are refused.
func (c *TwitterClient) UploadMedia(ctx context.Context, auth model.ClientAuth, mediaURL string) (string, error) {
	data, contentType, err := c.api.fetchMedia(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	if isVideo(contentType, mediaURL) {
		return "", fmt.Errorf("%w: video uploads are not supported for twitter", model.ErrMediaUpload)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("media_category", "tweet_image"); err != nil {
		return "", err
	}
	name := path.Base(mediaURL)
	if u, err := url.Parse(mediaURL); err == nil {
		name = path.Base(u.Path)
	}
	part, err := w.CreateFormFile("media", name)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	var resp struct {
		MediaIDString string `json:"media_id_string"`
	}
	_, err = c.api.do(ctx, apiCall{
		op:          "media upload",
		method:      http.MethodPost,
		url:         c.uploadURL,
		bearer:      auth.AccessToken(),
		body:        &buf,
		contentType: w.FormDataContentType(),
	}, &resp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrMediaUpload, err)
	}
	if resp.MediaIDString == "" {
		return "", fmt.Errorf("%w: empty media id", model.ErrMediaUpload)
	}
	return resp.MediaIDString, nil
}

type tweetRequest struct {
	Text  string      `json:"text"`
	Media *tweetMedia `json:"media,omitempty"`
}

type tweetMedia struct {
	MediaIDs []string `json:"media_ids"`
}

func (c *TwitterClient) CreatePost(ctx context.Context, auth model.ClientAuth, post model.PostRequest) (*model.PublishResult, error) {
	req := tweetRequest{Text: post.Caption}
	if len(post.MediaIDs) > 0 {
		ids := post.MediaIDs
		if len(ids) > 4 {
			ids = ids[:4]
		}
		req.Media = &tweetMedia{MediaIDs: ids}
	}
	var resp struct {
		Data struct {
			ID   string `json:"id"`
			Text string `json:"text"`
		} `json:"data"`
	}
	if _, err := c.api.postJSON(ctx, "create tweet", c.baseURL+"/tweets", auth.AccessToken(), req, &resp); err != nil {
		return nil, err
	}
	return &model.PublishResult{ExternalID: resp.Data.ID, URL: "https://x.com/i/web/status/" + resp.Data.ID}, nil
}

// GetInsights reports lifetime public counters; windowed analytics need an enterprise tier.
func (c *TwitterClient) GetInsights(ctx context.Context, auth model.ClientAuth, window model.DateWindow) (*model.AccountMetrics, error) {
	u, err := c.me(ctx, auth)
	if err != nil {
		return nil, err
	}
	return &model.AccountMetrics{
		Platform:    model.PlatformTwitter,
		TenantID:    auth.TenantID,
		Window:      window,
		Followers:   u.PublicMetrics.FollowersCount,
		Engagements: u.PublicMetrics.LikeCount,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func (c *TwitterClient) GetItemAnalytics(ctx context.Context, auth model.ClientAuth, externalID string) (*model.ItemMetrics, error) {
	var resp struct {
		Data struct {
			PublicMetrics struct {
				ImpressionCount int64 `json:"impression_count"`
				LikeCount       int64 `json:"like_count"`
				ReplyCount      int64 `json:"reply_count"`
				RetweetCount    int64 `json:"retweet_count"`
				QuoteCount      int64 `json:"quote_count"`
			} `json:"public_metrics"`
		} `json:"data"`
	}
	u := c.baseURL + "/tweets/" + url.PathEscape(externalID) + "?tweet.fields=public_metrics"
	if err := c.api.getJSON(ctx, "tweet metrics", u, auth.AccessToken(), &resp); err != nil {
		return nil, err
	}
	pm := resp.Data.PublicMetrics
	return &model.ItemMetrics{
		ExternalID:  externalID,
		Impressions: pm.ImpressionCount,
		Likes:       pm.LikeCount,
		Comments:    pm.ReplyCount,
		Shares:      pm.RetweetCount + pm.QuoteCount,
	}, nil
}

var _ repository.IPlatformClient = (*TwitterClient)(nil)
