package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/domain/service"
	"growth-automation/infrastructure/logger"
)

// Publisher pushes one scheduled item to its platform. Post items are uploaded and posted,
// campaign items launch their campaign through the ads client.
type Publisher struct {
	registry  repository.IPlatformRegistry
	creds     ICredentialUsecase
	campaigns repository.ICampaign
	retry     RetryPolicy
}

func NewPublisher(registry repository.IPlatformRegistry, creds ICredentialUsecase, campaigns repository.ICampaign, retry RetryPolicy) *Publisher {
	return &Publisher{registry: registry, creds: creds, campaigns: campaigns, retry: retry}
}

func (p *Publisher) Publish(ctx context.Context, item *model.ScheduledItem) (*model.PublishResult, error) {
	if item.Kind == model.ItemKindCampaign {
		return p.launchCampaign(ctx, item)
	}
	client, err := p.registry.Client(item.Platform)
	if err != nil {
		return nil, err
	}
	post, err := BuildPost(item.Payload, client.Rules(), item.Platform)
	if err != nil {
		return nil, err
	}

	var result *model.PublishResult
	err = p.retry.Do(ctx, "publish "+item.ID, func(ctx context.Context) error {
		return p.creds.Do(ctx, item.TenantID, item.Platform, func(ctx context.Context, auth model.ClientAuth) error {
			req := post
			req.MediaIDs = make([]string, 0, len(post.MediaURLs))
			for _, mediaURL := range post.MediaURLs {
				id, err := client.UploadMedia(ctx, auth, mediaURL)
				if err != nil {
					return fmt.Errorf("upload %s: %w", mediaURL, err)
				}
				req.MediaIDs = append(req.MediaIDs, id)
			}
			res, err := client.CreatePost(ctx, auth, req)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// BuildPost applies the platform's content rules to a payload.
func BuildPost(payload model.ItemPayload, rules repository.ContentRules, platform model.Platform) (model.PostRequest, error) {
	if rules.RequiresMedia && len(payload.MediaURLs) == 0 {
		return model.PostRequest{}, fmt.Errorf("%s posts require media: %w", platform, model.ErrContentRejected)
	}
	body, err := service.FitCaption(payload, rules)
	if err != nil {
		return model.PostRequest{}, err
	}
	return model.PostRequest{
		Title:     strings.TrimSpace(payload.Title),
		Caption:   body,
		Hashtags:  service.NormalizeHashtags(payload.Hashtags, rules.MaxHashtags),
		Link:      strings.TrimSpace(payload.Link),
		MediaURLs: payload.MediaURLs,
	}, nil
}

func (p *Publisher) launchCampaign(ctx context.Context, item *model.ScheduledItem) (*model.PublishResult, error) {
	if item.Payload.CampaignID == "" {
		return nil, fmt.Errorf("campaign item without campaign id: %w", model.ErrValidation)
	}
	campaign, err := p.campaigns.Get(ctx, item.Payload.CampaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign: %w", err)
	}
	if campaign.ExternalID != nil {
		// a previous attempt already created it
		return &model.PublishResult{ExternalID: *campaign.ExternalID}, nil
	}
	ads, err := p.registry.Ads(campaign.Platform)
	if err != nil {
		return nil, err
	}
	spec := model.CampaignSpec{
		Name:        campaign.Name,
		Objective:   campaign.Objective,
		Targeting:   campaign.Targeting,
		DailyBudget: campaign.DailyBudget,
		Creatives:   campaign.Creatives,
	}

	var externalID string
	err = p.retry.Do(ctx, "launch campaign "+campaign.ID, func(ctx context.Context) error {
		return p.creds.Do(ctx, campaign.TenantID, campaign.Platform, func(ctx context.Context, auth model.ClientAuth) error {
			id, err := ads.CreateCampaign(ctx, auth, campaign.AdAccountID, spec)
			if err != nil {
				return err
			}
			externalID = id
			return nil
		})
	})
	if err != nil {
		if serr := p.campaigns.UpdateStatus(ctx, campaign.ID, model.CampaignFailed); serr != nil {
			logger.GetLogger().WithFields(map[string]interface{}{
				"campaign_id": campaign.ID,
				"error":       serr,
			}).Warn("Failed to mark campaign failed")
		}
		return nil, err
	}
	if err := p.campaigns.MarkLaunched(ctx, campaign.ID, externalID); err != nil {
		return nil, fmt.Errorf("record launch: %w", err)
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"campaign_id": campaign.ID,
		"external_id": externalID,
	}).Info("Campaign launched")
	return &model.PublishResult{ExternalID: externalID}, nil
}

// failureReason is the text stored on a failed item.
func failureReason(err error) string {
	msg := err.Error()
	prefix := model.ErrReauthorizationRequired.Error()
	if errors.Is(err, model.ErrReauthorizationRequired) && !strings.HasPrefix(msg, prefix) {
		return prefix + ": " + msg
	}
	return msg
}
