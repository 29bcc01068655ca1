package platform

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/configuration"
)

// TikTokClient uploads videos to the creator's inbox through the content posting API.
// The creator finishes the post in the app, so the caption is not sent.
type TikTokClient struct {
	api     *httpAPI
	baseURL string
	rules   repository.ContentRules
	poller  Poller
}

func NewTikTokClient(p configuration.Provider, client *http.Client, timeout time.Duration) *TikTokClient {
	return &TikTokClient{
		api:     newHTTPAPI(model.PlatformTikTok, client, timeout),
		baseURL: strings.TrimRight(p.APIBaseURL, "/"),
		rules:   repository.ContentRules{MaxCaption: p.MaxCaption, MaxHashtags: p.MaxHashtags, RequiresMedia: true},
		poller:  Poller{Interval: 5 * time.Second, MaxAttempts: 24},
	}
}

func (c *TikTokClient) Platform() model.Platform { return model.PlatformTikTok }
func (c *TikTokClient) Rules() repository.ContentRules { return c.rules }

// TikTok answers 200 with an error envelope; code "ok" means success.
type tiktokError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	LogID   string `json:"log_id"`
}

func (c *TikTokClient) check(op string, e tiktokError) error {
	if e.Code == "" || e.Code == "ok" {
		return nil
	}
	pe := &model.ProviderError{Platform: model.PlatformTikTok, Op: op, Message: e.Code + ": " + e.Message}
	switch e.Code {
	case "access_token_invalid", "scope_not_authorized", "token_not_authorized_for_specified_user":
		pe.Kind = model.ErrUnauthorized
	case "rate_limit_exceeded", "spam_risk_too_many_pending_share":
		pe.Kind = model.ErrRateLimited
	case "internal_error":
		pe.Kind = model.ErrProviderUnavailable
	default:
		pe.Kind = model.ErrContentRejected
	}
	return pe
}

type tiktokUser struct {
	OpenID        string `json:"open_id"`
	DisplayName   string `json:"display_name"`
	Username      string `json:"username"`
	FollowerCount int64  `json:"follower_count"`
	LikesCount    int64  `json:"likes_count"`
	VideoCount    int64  `json:"video_count"`
}

func (c *TikTokClient) userInfo(ctx context.Context, auth model.ClientAuth, fields string) (*tiktokUser, error) {
	var resp struct {
		Data struct {
			User tiktokUser `json:"user"`
		} `json:"data"`
		Error tiktokError `json:"error"`
	}
	if err := c.api.getJSON(ctx, "user info", c.baseURL+"/user/info/?fields="+fields, auth.AccessToken(), &resp); err != nil {
		return nil, err
	}
	if err := c.check("user info", resp.Error); err != nil {
		return nil, err
	}
	return &resp.Data.User, nil
}

func (c *TikTokClient) GetAccount(ctx context.Context, auth model.ClientAuth) (*model.AccountIdentity, error) {
	u, err := c.userInfo(ctx, auth, "open_id,display_name,username")
	if err != nil {
		return nil, err
	}
	return &model.AccountIdentity{ID: u.OpenID, Name: u.DisplayName, Username: u.Username}, nil
}

type tiktokSourceInfo struct {
	Source          string `json:"source"`
	VideoSize       int    `json:"video_size"`
	ChunkSize       int    `json:"chunk_size"`
	TotalChunkCount int    `json:"total_chunk_count"`
}

// UploadMedia sends the whole video as a single chunk and returns the publish id.
func (c *TikTokClient) UploadMedia(ctx context.Context, auth model.ClientAuth, mediaURL string) (string, error) {
	data, contentType, err := c.api.fetchMedia(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	if !isVideo(contentType, mediaURL) {
		return "", fmt.Errorf("%w: tiktok accepts video only, got %s", model.ErrMediaUpload, contentType)
	}

	var initResp struct {
		Data struct {
			PublishID string `json:"publish_id"`
			UploadURL string `json:"upload_url"`
		} `json:"data"`
		Error tiktokError `json:"error"`
	}
	body := map[string]any{"source_info": tiktokSourceInfo{
		Source:          "FILE_UPLOAD",
		VideoSize:       len(data),
		ChunkSize:       len(data),
		TotalChunkCount: 1,
	}}
	if _, err := c.api.postJSON(ctx, "init upload", c.baseURL+"/post/publish/inbox/video/init/", auth.AccessToken(), body, &initResp); err != nil {
		return "", err
	}
	if err := c.check("init upload", initResp.Error); err != nil {
		return "", err
	}

	_, err = c.api.do(ctx, apiCall{
		op:          "upload video",
		method:      http.MethodPut,
		url:         initResp.Data.UploadURL,
		body:        bytes.NewReader(data),
		contentType: contentType,
		headers:     map[string]string{"Content-Range": fmt.Sprintf("bytes 0-%d/%d", len(data)-1, len(data))},
	}, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrMediaUpload, err)
	}
	return initResp.Data.PublishID, nil
}

// CreatePost waits until TikTok has processed the upload and delivered it to the inbox.
func (c *TikTokClient) CreatePost(ctx context.Context, auth model.ClientAuth, post model.PostRequest) (*model.PublishResult, error) {
	if len(post.MediaIDs) == 0 {
		return nil, &model.ProviderError{Platform: model.PlatformTikTok, Op: "create post", Kind: model.ErrContentRejected, Message: "a video is required"}
	}
	publishID := post.MediaIDs[0]
	var postID string
	err := c.poller.Wait(ctx, model.PlatformTikTok, func(ctx context.Context) (PollState, string, error) {
		var resp struct {
			Data struct {
				Status     string  `json:"status"`
				FailReason string  `json:"fail_reason"`
				PostIDs    []int64 `json:"publicaly_available_post_id"`
			} `json:"data"`
			Error tiktokError `json:"error"`
		}
		if _, err := c.api.postJSON(ctx, "publish status", c.baseURL+"/post/publish/status/fetch/", auth.AccessToken(), map[string]string{"publish_id": publishID}, &resp); err != nil {
			return PollFailed, "", err
		}
		if err := c.check("publish status", resp.Error); err != nil {
			return PollFailed, "", err
		}
		switch resp.Data.Status {
		case "SEND_TO_USER_INBOX", "PUBLISH_COMPLETE":
			if len(resp.Data.PostIDs) > 0 {
				postID = fmt.Sprint(resp.Data.PostIDs[0])
			}
			return PollReady, "", nil
		case "FAILED":
			return PollFailed, resp.Data.FailReason, nil
		}
		return PollPolling, "", nil
	})
	if err != nil {
		return nil, err
	}
	if postID == "" {
		return &model.PublishResult{ExternalID: publishID}, nil
	}
	return &model.PublishResult{ExternalID: postID, URL: "https://www.tiktok.com/video/" + postID}, nil
}

// GetInsights reports profile totals; TikTok exposes no windowed account metrics.
func (c *TikTokClient) GetInsights(ctx context.Context, auth model.ClientAuth, window model.DateWindow) (*model.AccountMetrics, error) {
	u, err := c.userInfo(ctx, auth, "follower_count,likes_count,video_count")
	if err != nil {
		return nil, err
	}
	return &model.AccountMetrics{
		Platform:    model.PlatformTikTok,
		TenantID:    auth.TenantID,
		Window:      window,
		Followers:   u.FollowerCount,
		Engagements: u.LikesCount,
		FetchedAt:   time.Now().UTC(),
	}, nil
}

func (c *TikTokClient) GetItemAnalytics(ctx context.Context, auth model.ClientAuth, externalID string) (*model.ItemMetrics, error) {
	var resp struct {
		Data struct {
			Videos []struct {
				ID           string `json:"id"`
				ViewCount    int64  `json:"view_count"`
				LikeCount    int64  `json:"like_count"`
				CommentCount int64  `json:"comment_count"`
				ShareCount   int64  `json:"share_count"`
			} `json:"videos"`
		} `json:"data"`
		Error tiktokError `json:"error"`
	}
	body := map[string]any{"filters": map[string][]string{"video_ids": {externalID}}}
	u := c.baseURL + "/video/query/?fields=id,view_count,like_count,comment_count,share_count"
	if _, err := c.api.postJSON(ctx, "video query", u, auth.AccessToken(), body, &resp); err != nil {
		return nil, err
	}
	if err := c.check("video query", resp.Error); err != nil {
		return nil, err
	}
	if len(resp.Data.Videos) == 0 {
		return nil, fmt.Errorf("tiktok video %s: %w", externalID, model.ErrNotFound)
	}
	v := resp.Data.Videos[0]
	return &model.ItemMetrics{
		ExternalID: externalID,
		Views:      v.ViewCount,
		Likes:      v.LikeCount,
		Comments:   v.CommentCount,
		Shares:     v.ShareCount,
	}, nil
}

var _ repository.IPlatformClient = (*TikTokClient)(nil)
