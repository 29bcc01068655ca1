package platform

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/configuration"
)

// FacebookClient publishes to a Facebook page. The connected account is the page and
// the stored token is its page token.
type FacebookClient struct {
	graph *graphAPI
	rules repository.ContentRules
}

func NewFacebookClient(p configuration.Provider, client *http.Client, timeout time.Duration) *FacebookClient {
	return &FacebookClient{
		graph: &graphAPI{httpAPI: newHTTPAPI(model.PlatformFacebook, client, timeout), baseURL: p.APIBaseURL},
		rules: repository.ContentRules{MaxCaption: p.MaxCaption, MaxHashtags: p.MaxHashtags},
	}
}

func (c *FacebookClient) Platform() model.Platform { return model.PlatformFacebook }
func (c *FacebookClient) Rules() repository.ContentRules { return c.rules }

type fbPage struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	AccessToken string `json:"access_token"`
}

func (c *FacebookClient) GetAccount(ctx context.Context, auth model.ClientAuth) (*model.AccountIdentity, error) {
	var resp struct {
		Data []fbPage `json:"data"`
	}
	if err := c.graph.get(ctx, "list pages", "me/accounts", auth.AccessToken(), graphFields{Fields: "id,name,access_token"}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, &model.ProviderError{Platform: model.PlatformFacebook, Op: "list pages", Kind: model.ErrContentRejected, Message: "account manages no pages"}
	}
	page := resp.Data[0]
	return &model.AccountIdentity{ID: page.ID, Name: page.Name, Token: page.AccessToken}, nil
}

// UploadMedia passes the URL through; Graph fetches it when the photo is posted.
func (c *FacebookClient) UploadMedia(_ context.Context, _ model.ClientAuth, mediaURL string) (string, error) {
	return mediaURL, nil
}

type fbPostParams struct {
	Message string `url:"message,omitempty"`
	Link    string `url:"link,omitempty"`
	URL     string `url:"url,omitempty"`
	Caption string `url:"caption,omitempty"`
}

func (c *FacebookClient) CreatePost(ctx context.Context, auth model.ClientAuth, post model.PostRequest) (*model.PublishResult, error) {
	var out graphID
	if len(post.MediaIDs) > 0 {
		params := fbPostParams{URL: post.MediaIDs[0], Caption: post.Caption}
		if err := c.graph.post(ctx, "create photo", auth.AccountID+"/photos", auth.AccessToken(), params, &out); err != nil {
			return nil, err
		}
	} else {
		params := fbPostParams{Message: post.Caption, Link: post.Link}
		if err := c.graph.post(ctx, "create post", auth.AccountID+"/feed", auth.AccessToken(), params, &out); err != nil {
			return nil, err
		}
	}
	id := out.PostID
	if id == "" {
		id = out.ID
	}
	return &model.PublishResult{ExternalID: id, URL: "https://www.facebook.com/" + id}, nil
}

type graphInsight struct {
	Name   string `json:"name"`
	Values []struct {
		Value int64 `json:"value"`
	} `json:"values"`
}

func (c *FacebookClient) GetInsights(ctx context.Context, auth model.ClientAuth, window model.DateWindow) (*model.AccountMetrics, error) {
	var page struct {
		FollowersCount int64 `json:"followers_count"`
	}
	if err := c.graph.get(ctx, "page info", auth.AccountID, auth.AccessToken(), graphFields{Fields: "followers_count"}, &page); err != nil {
		return nil, err
	}
	var insights struct {
		Data []graphInsight `json:"data"`
	}
	params := graphFields{
		Metric: "page_impressions,page_impressions_unique,page_post_engagements",
		Period: "day",
		Since:  window.Since.Unix(),
		Until:  window.Until.Add(24 * time.Hour).Unix(),
	}
	if err := c.graph.get(ctx, "page insights", auth.AccountID+"/insights", auth.AccessToken(), params, &insights); err != nil {
		return nil, err
	}
	m := &model.AccountMetrics{
		Platform:  model.PlatformFacebook,
		TenantID:  auth.TenantID,
		Window:    window,
		Followers: page.FollowersCount,
		FetchedAt: time.Now().UTC(),
	}
	for _, metric := range insights.Data {
		total := sumInsight(metric)
		switch metric.Name {
		case "page_impressions":
			m.Impressions = total
		case "page_impressions_unique":
			m.Reach = total
		case "page_post_engagements":
			m.Engagements = total
		}
	}
	return m, nil
}

func sumInsight(metric graphInsight) int64 {
	var total int64
	for _, v := range metric.Values {
		total += v.Value
	}
	return total
}

func (c *FacebookClient) GetItemAnalytics(ctx context.Context, auth model.ClientAuth, externalID string) (*model.ItemMetrics, error) {
	var post struct {
		Likes struct {
			Summary struct {
				TotalCount int64 `json:"total_count"`
			} `json:"summary"`
		} `json:"likes"`
		Comments struct {
			Summary struct {
				TotalCount int64 `json:"total_count"`
			} `json:"summary"`
		} `json:"comments"`
		Shares struct {
			Count int64 `json:"count"`
		} `json:"shares"`
	}
	fields := graphFields{Fields: "likes.summary(true),comments.summary(true),shares"}
	if err := c.graph.get(ctx, "post analytics", externalID, auth.AccessToken(), fields, &post); err != nil {
		return nil, fmt.Errorf("facebook analytics %s: %w", externalID, err)
	}
	return &model.ItemMetrics{
		ExternalID: externalID,
		Likes:      post.Likes.Summary.TotalCount,
		Comments:   post.Comments.Summary.TotalCount,
		Shares:     post.Shares.Count,
	}, nil
}

var _ repository.IPlatformClient = (*FacebookClient)(nil)
