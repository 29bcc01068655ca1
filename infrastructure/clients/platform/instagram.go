package platform

import (
	"context"
	"net/http"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/configuration"
)

// InstagramClient publishes through the Instagram Graph content publishing flow:
// create a media container, wait for it to finish processing, then publish it.
type InstagramClient struct {
	graph  *graphAPI
	rules  repository.ContentRules
	poller Poller
}

func NewInstagramClient(p configuration.Provider, client *http.Client, timeout time.Duration) *InstagramClient {
	return &InstagramClient{
		graph:  &graphAPI{httpAPI: newHTTPAPI(model.PlatformInstagram, client, timeout), baseURL: p.APIBaseURL},
		rules:  repository.ContentRules{MaxCaption: p.MaxCaption, MaxHashtags: p.MaxHashtags, RequiresMedia: true},
		poller: Poller{Interval: 3 * time.Second, MaxAttempts: 20},
	}
}

func (c *InstagramClient) Platform() model.Platform { return model.PlatformInstagram }
func (c *InstagramClient) Rules() repository.ContentRules { return c.rules }

// GetAccount resolves the business account linked to the first managed page.
func (c *InstagramClient) GetAccount(ctx context.Context, auth model.ClientAuth) (*model.AccountIdentity, error) {
	var resp struct {
		Data []struct {
			ID                       string `json:"id"`
			InstagramBusinessAccount *struct {
				ID       string `json:"id"`
				Username string `json:"username"`
				Name     string `json:"name"`
			} `json:"instagram_business_account"`
		} `json:"data"`
	}
	fields := graphFields{Fields: "id,instagram_business_account{id,username,name}"}
	if err := c.graph.get(ctx, "list accounts", "me/accounts", auth.AccessToken(), fields, &resp); err != nil {
		return nil, err
	}
	for _, page := range resp.Data {
		if iba := page.InstagramBusinessAccount; iba != nil {
			return &model.AccountIdentity{ID: iba.ID, Name: iba.Name, Username: iba.Username}, nil
		}
	}
	return nil, &model.ProviderError{Platform: model.PlatformInstagram, Op: "list accounts", Kind: model.ErrContentRejected, Message: "no instagram business account linked"}
}

// UploadMedia passes the URL through; the container fetches it.
func (c *InstagramClient) UploadMedia(_ context.Context, _ model.ClientAuth, mediaURL string) (string, error) {
	return mediaURL, nil
}

type igContainerParams struct {
	ImageURL  string `url:"image_url,omitempty"`
	VideoURL  string `url:"video_url,omitempty"`
	MediaType string `url:"media_type,omitempty"`
	Caption   string `url:"caption,omitempty"`
}

type igPublishParams struct {
	CreationID string `url:"creation_id"`
}

func (c *InstagramClient) CreatePost(ctx context.Context, auth model.ClientAuth, post model.PostRequest) (*model.PublishResult, error) {
	if len(post.MediaIDs) == 0 {
		return nil, &model.ProviderError{Platform: model.PlatformInstagram, Op: "create container", Kind: model.ErrContentRejected, Message: "a media item is required"}
	}
	mediaURL := post.MediaIDs[0]
	params := igContainerParams{Caption: post.Caption}
	if isVideo("", mediaURL) {
		params.VideoURL, params.MediaType = mediaURL, "REELS"
	} else {
		params.ImageURL = mediaURL
	}
	var container graphID
	if err := c.graph.post(ctx, "create container", auth.AccountID+"/media", auth.AccessToken(), params, &container); err != nil {
		return nil, err
	}

	err := c.poller.Wait(ctx, model.PlatformInstagram, func(ctx context.Context) (PollState, string, error) {
		var status struct {
			StatusCode string `json:"status_code"`
			Status     string `json:"status"`
		}
		if err := c.graph.get(ctx, "container status", container.ID, auth.AccessToken(), graphFields{Fields: "status_code,status"}, &status); err != nil {
			return PollFailed, "", err
		}
		switch status.StatusCode {
		case "FINISHED", "PUBLISHED":
			return PollReady, "", nil
		case "ERROR", "EXPIRED":
			return PollFailed, status.Status, nil
		}
		return PollPolling, "", nil
	})
	if err != nil {
		return nil, err
	}

	var published graphID
	if err := c.graph.post(ctx, "publish media", auth.AccountID+"/media_publish", auth.AccessToken(), igPublishParams{CreationID: container.ID}, &published); err != nil {
		return nil, err
	}
	var link struct {
		Permalink string `json:"permalink"`
	}
	// the permalink is cosmetic; a failed lookup does not undo the publish
	_ = c.graph.get(ctx, "permalink", published.ID, auth.AccessToken(), graphFields{Fields: "permalink"}, &link)
	return &model.PublishResult{ExternalID: published.ID, URL: link.Permalink}, nil
}

func (c *InstagramClient) GetInsights(ctx context.Context, auth model.ClientAuth, window model.DateWindow) (*model.AccountMetrics, error) {
	var account struct {
		FollowersCount int64 `json:"followers_count"`
	}
	if err := c.graph.get(ctx, "account info", auth.AccountID, auth.AccessToken(), graphFields{Fields: "followers_count"}, &account); err != nil {
		return nil, err
	}
	var insights struct {
		Data []graphInsight `json:"data"`
	}
	params := graphFields{
		Metric: "impressions,reach,accounts_engaged",
		Period: "day",
		Since:  window.Since.Unix(),
		Until:  window.Until.Add(24 * time.Hour).Unix(),
	}
	if err := c.graph.get(ctx, "account insights", auth.AccountID+"/insights", auth.AccessToken(), params, &insights); err != nil {
		return nil, err
	}
	m := &model.AccountMetrics{
		Platform:  model.PlatformInstagram,
		TenantID:  auth.TenantID,
		Window:    window,
		Followers: account.FollowersCount,
		FetchedAt: time.Now().UTC(),
	}
	for _, metric := range insights.Data {
		switch metric.Name {
		case "impressions":
			m.Impressions = sumInsight(metric)
		case "reach":
			m.Reach = sumInsight(metric)
		case "accounts_engaged":
			m.Engagements = sumInsight(metric)
		}
	}
	return m, nil
}

func (c *InstagramClient) GetItemAnalytics(ctx context.Context, auth model.ClientAuth, externalID string) (*model.ItemMetrics, error) {
	var media struct {
		LikeCount     int64 `json:"like_count"`
		CommentsCount int64 `json:"comments_count"`
	}
	if err := c.graph.get(ctx, "media analytics", externalID, auth.AccessToken(), graphFields{Fields: "like_count,comments_count"}, &media); err != nil {
		return nil, err
	}
	m := &model.ItemMetrics{ExternalID: externalID, Likes: media.LikeCount, Comments: media.CommentsCount}
	var insights struct {
		Data []graphInsight `json:"data"`
	}
	// insights are unavailable for some media types; counts alone are still useful
	if err := c.graph.get(ctx, "media insights", externalID+"/insights", auth.AccessToken(), graphFields{Metric: "impressions,shares"}, &insights); err == nil {
		for _, metric := range insights.Data {
			switch metric.Name {
			case "impressions":
				m.Impressions = sumInsight(metric)
			case "shares":
				m.Shares = sumInsight(metric)
			}
		}
	}
	return m, nil
}

var _ repository.IPlatformClient = (*InstagramClient)(nil)
