package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/configuration"
)

const linkedInVersion = "202405"

// LinkedInClient posts as the authorized member through the versioned REST API.
type LinkedInClient struct {
	api     *httpAPI
	baseURL string
	rules   repository.ContentRules
}

func NewLinkedInClient(p configuration.Provider, client *http.Client, timeout time.Duration) *LinkedInClient {
	return &LinkedInClient{
		api:     newHTTPAPI(model.PlatformLinkedIn, client, timeout),
		baseURL: strings.TrimRight(p.APIBaseURL, "/"),
		rules:   repository.ContentRules{MaxCaption: p.MaxCaption, MaxHashtags: p.MaxHashtags},
	}
}

func (c *LinkedInClient) Platform() model.Platform { return model.PlatformLinkedIn }
func (c *LinkedInClient) Rules() repository.ContentRules { return c.rules }

func personURN(accountID string) string {
	if strings.HasPrefix(accountID, "urn:li:") {
		return accountID
	}
	return "urn:li:person:" + accountID
}

func (c *LinkedInClient) rest(ctx context.Context, op, method, path, token string, in, out any) (http.Header, error) {
	call := apiCall{
		op:     op,
		method: method,
		url:    c.baseURL + path,
		bearer: token,
		headers: map[string]string{
			"LinkedIn-Version":          linkedInVersion,
			"X-Restli-Protocol-Version": "2.0.0",
		},
	}
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("linkedin %s: encode body: %w", op, err)
		}
		call.body, call.contentType = bytes.NewReader(raw), "application/json"
	}
	return c.api.do(ctx, call, out)
}

func (c *LinkedInClient) GetAccount(ctx context.Context, auth model.ClientAuth) (*model.AccountIdentity, error) {
	var info struct {
		Sub   string `json:"sub"`
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := c.api.getJSON(ctx, "userinfo", c.baseURL+"/v2/userinfo", auth.AccessToken(), &info); err != nil {
		return nil, err
	}
	return &model.AccountIdentity{ID: info.Sub, Name: info.Name, Username: info.Email}, nil
}

// UploadMedia registers an image upload for the member and PUTs the bytes. It returns the image URN.
func (c *LinkedInClient) UploadMedia(ctx context.Context, auth model.ClientAuth, mediaURL string) (string, error) {
	data, contentType, err := c.api.fetchMedia(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(contentType, "image/") {
		return "", fmt.Errorf("%w: linkedin accepts images only, got %s", model.ErrMediaUpload, contentType)
	}
	var initResp struct {
		Value struct {
			UploadURL string `json:"uploadUrl"`
			Image     string `json:"image"`
		} `json:"value"`
	}
	req := map[string]any{"initializeUploadRequest": map[string]string{"owner": personURN(auth.AccountID)}}
	if _, err := c.rest(ctx, "register upload", http.MethodPost, "/rest/images?action=initializeUpload", auth.AccessToken(), req, &initResp); err != nil {
		return "", err
	}
	_, err = c.api.do(ctx, apiCall{
		op:          "upload image",
		method:      http.MethodPut,
		url:         initResp.Value.UploadURL,
		bearer:      auth.AccessToken(),
		body:        bytes.NewReader(data),
		contentType: contentType,
	}, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", model.ErrMediaUpload, err)
	}
	return initResp.Value.Image, nil
}

type linkedInPost struct {
	Author                    string               `json:"author"`
	Commentary                string               `json:"commentary"`
	Visibility                string               `json:"visibility"`
	Distribution              linkedInDistribution `json:"distribution"`
	Content                   map[string]any       `json:"content,omitempty"`
	LifecycleState            string               `json:"lifecycleState"`
	IsReshareDisabledByAuthor bool                 `json:"isReshareDisabledByAuthor"`
}

type linkedInDistribution struct {
	FeedDistribution               string   `json:"feedDistribution"`
	TargetEntities                 []string `json:"targetEntities"`
	ThirdPartyDistributionChannels []string `json:"thirdPartyDistributionChannels"`
}

// CreatePost publishes the post. LinkedIn returns the post URN in the x-restli-id header.
func (c *LinkedInClient) CreatePost(ctx context.Context, auth model.ClientAuth, post model.PostRequest) (*model.PublishResult, error) {
	body := linkedInPost{
		Author:     personURN(auth.AccountID),
		Commentary: post.Caption,
		Visibility: "PUBLIC",
		Distribution: linkedInDistribution{
			FeedDistribution:               "MAIN_FEED",
			TargetEntities:                 []string{},
			ThirdPartyDistributionChannels: []string{},
		},
		LifecycleState: "PUBLISHED",
	}
	switch {
	case len(post.MediaIDs) > 0:
		body.Content = map[string]any{"media": map[string]string{"id": post.MediaIDs[0], "title": post.Title}}
	case post.Link != "":
		body.Content = map[string]any{"article": map[string]string{"source": post.Link, "title": post.Title}}
	}
	header, err := c.rest(ctx, "create post", http.MethodPost, "/rest/posts", auth.AccessToken(), body, nil)
	if err != nil {
		return nil, err
	}
	urn := header.Get("x-restli-id")
	if urn == "" {
		return nil, &model.ProviderError{Platform: model.PlatformLinkedIn, Op: "create post", Kind: model.ErrProviderUnavailable, Message: "missing x-restli-id header"}
	}
	return &model.PublishResult{ExternalID: urn, URL: "https://www.linkedin.com/feed/update/" + urn}, nil
}

// GetInsights reports the follower count; member level reach is not exposed to apps.
func (c *LinkedInClient) GetInsights(ctx context.Context, auth model.ClientAuth, window model.DateWindow) (*model.AccountMetrics, error) {
	var resp struct {
		Elements []struct {
			MemberFollowersCount int64 `json:"memberFollowersCount"`
		} `json:"elements"`
	}
	if _, err := c.rest(ctx, "followers", http.MethodGet, "/rest/memberFollowersCount?q=me", auth.AccessToken(), nil, &resp); err != nil {
		return nil, err
	}
	m := &model.AccountMetrics{Platform: model.PlatformLinkedIn, TenantID: auth.TenantID, Window: window, FetchedAt: time.Now().UTC()}
	if len(resp.Elements) > 0 {
		m.Followers = resp.Elements[0].MemberFollowersCount
	}
	return m, nil
}

func (c *LinkedInClient) GetItemAnalytics(ctx context.Context, auth model.ClientAuth, externalID string) (*model.ItemMetrics, error) {
	var resp struct {
		LikesSummary struct {
			TotalLikes int64 `json:"totalLikes"`
		} `json:"likesSummary"`
		CommentsSummary struct {
			AggregatedTotalComments int64 `json:"aggregatedTotalComments"`
		} `json:"commentsSummary"`
	}
	if _, err := c.rest(ctx, "social actions", http.MethodGet, "/rest/socialActions/"+url.PathEscape(externalID), auth.AccessToken(), nil, &resp); err != nil {
		return nil, err
	}
	return &model.ItemMetrics{
		ExternalID: externalID,
		Likes:      resp.LikesSummary.TotalLikes,
		Comments:   resp.CommentsSummary.AggregatedTotalComments,
	}, nil
}

var _ repository.IPlatformClient = (*LinkedInClient)(nil)
