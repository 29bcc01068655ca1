package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"growth-automation/domain/dto"
	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/domain/service"
	"growth-automation/infrastructure/logger"
)

type ICampaignUsecase interface {
	// RunCycle optimizes every active campaign. Per campaign failures are logged and skipped.
	RunCycle(ctx context.Context) error
	Launch(ctx context.Context, tenantID string, req dto.LaunchCampaignRequest) (*model.Campaign, error)
	GetCampaign(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error)
	ListCampaigns(ctx context.Context, tenantID string) ([]*model.Campaign, error)
	GetPerformance(ctx context.Context, tenantID, campaignID string) (*model.PerformanceWindow, error)
	OptimizeCampaign(ctx context.Context, tenantID, campaignID string) (*model.OptimizationDecision, error)
	Rebalance(ctx context.Context, tenantID string, totalDailyBudget float64) (map[string]float64, error)
	ListDecisions(ctx context.Context, tenantID, campaignID string, limit int) ([]model.OptimizationDecision, error)
}

type CampaignConfig struct {
	Optimizer  service.OptimizerConfig
	WindowDays int
	Workers    int
}

type campaignUsecase struct {
	campaigns repository.ICampaign
	snapshots repository.IMetricsSnapshot
	registry  repository.IPlatformRegistry
	creds     ICredentialUsecase
	scheduler ISchedulerUsecase
	events    repository.IEventPublisher
	cfg       CampaignConfig
	now       func() time.Time
}

// NewCampaignUsecase wires the controller. snapshots may be nil when no archive is configured.
func NewCampaignUsecase(
	campaigns repository.ICampaign,
	snapshots repository.IMetricsSnapshot,
	registry repository.IPlatformRegistry,
	creds ICredentialUsecase,
	scheduler ISchedulerUsecase,
	events repository.IEventPublisher,
	cfg CampaignConfig,
) ICampaignUsecase {
	if cfg.WindowDays <= 0 {
		cfg.WindowDays = 7
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	return &campaignUsecase{
		campaigns: campaigns,
		snapshots: snapshots,
		registry:  registry,
		creds:     creds,
		scheduler: scheduler,
		events:    events,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Launch stores the campaign and publishes a campaign item for it right away.
func (u *campaignUsecase) Launch(ctx context.Context, tenantID string, req dto.LaunchCampaignRequest) (*model.Campaign, error) {
	platform, ok := model.ParsePlatform(req.Platform)
	if !ok {
		return nil, fmt.Errorf("platform %q: %w", req.Platform, model.ErrUnsupportedPlatform)
	}
	if _, err := u.registry.Ads(platform); err != nil {
		return nil, err
	}
	if req.DailyBudget <= 0 {
		return nil, fmt.Errorf("daily budget must be positive: %w", model.ErrValidation)
	}
	if req.TotalBudget > 0 && req.TotalBudget < req.DailyBudget {
		return nil, fmt.Errorf("total budget below daily budget: %w", model.ErrValidation)
	}

	campaign := &model.Campaign{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		Platform:    platform,
		AdAccountID: strings.TrimSpace(req.AdAccountID),
		Name:        strings.TrimSpace(req.Name),
		Objective:   req.Objective,
		Targeting:   req.Targeting,
		DailyBudget: req.DailyBudget,
		TotalBudget: req.TotalBudget,
		Status:      model.CampaignPendingReview,
	}
	for _, cr := range req.Creatives {
		campaign.Creatives = append(campaign.Creatives, model.Creative{
			ID:         uuid.NewString(),
			CampaignID: campaign.ID,
			Name:       cr.Name,
			Headline:   cr.Headline,
			Body:       cr.Body,
			MediaURL:   cr.MediaURL,
		})
	}
	if err := u.campaigns.Create(ctx, campaign); err != nil {
		return nil, err
	}

	items, err := u.scheduler.Schedule(ctx, tenantID, []model.PlannedItem{{
		Platform: platform,
		Kind:     model.ItemKindCampaign,
		Payload:  model.ItemPayload{Title: campaign.Name, CampaignID: campaign.ID},
	}}, model.TimingPolicy{})
	if err != nil {
		_ = u.campaigns.UpdateStatus(ctx, campaign.ID, model.CampaignFailed)
		return nil, err
	}
	item, err := u.scheduler.PublishNow(ctx, tenantID, items[0].ID)
	if err != nil {
		return nil, err
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"tenant":      tenantID,
		"campaign_id": campaign.ID,
		"item_id":     item.ID,
		"item_status": item.Status,
	}).Info("Campaign launch processed")
	return u.campaigns.Get(ctx, campaign.ID)
}

func (u *campaignUsecase) owned(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error) {
	c, err := u.campaigns.Get(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if c.TenantID != tenantID {
		return nil, model.ErrNotFound
	}
	return c, nil
}

func (u *campaignUsecase) GetCampaign(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error) {
	return u.owned(ctx, tenantID, campaignID)
}

func (u *campaignUsecase) ListCampaigns(ctx context.Context, tenantID string) ([]*model.Campaign, error) {
	return u.campaigns.ListByTenant(ctx, tenantID)
}

// GetPerformance fetches the current window from the provider and reconciles it.
// Campaigns that were never launched report their stored totals.
func (u *campaignUsecase) GetPerformance(ctx context.Context, tenantID, campaignID string) (*model.PerformanceWindow, error) {
	c, err := u.owned(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.ExternalID == nil {
		return &model.PerformanceWindow{
			CampaignID: c.ID,
			TenantID:   c.TenantID,
			Window:     model.LastDays(u.now(), u.cfg.WindowDays),
			Spend:      c.Spent,
			Revenue:    c.Revenue,
			FetchedAt:  u.now().UTC(),
		}, nil
	}
	return u.refreshPerformance(ctx, c)
}

func (u *campaignUsecase) refreshPerformance(ctx context.Context, c *model.Campaign) (*model.PerformanceWindow, error) {
	ads, err := u.registry.Ads(c.Platform)
	if err != nil {
		return nil, err
	}
	window := model.LastDays(u.now(), u.cfg.WindowDays)
	var perf *model.PerformanceWindow
	err = u.creds.Do(ctx, c.TenantID, c.Platform, func(ctx context.Context, auth model.ClientAuth) error {
		p, err := ads.GetCampaignPerformance(ctx, auth, *c.ExternalID, window)
		if err != nil {
			return err
		}
		perf = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("campaign performance: %w", err)
	}
	perf.CampaignID = c.ID
	perf.TenantID = c.TenantID
	perf.FetchedAt = u.now().UTC()

	if err := u.campaigns.ReconcilePerformance(ctx, c.ID, perf); err != nil {
		return nil, fmt.Errorf("reconcile performance: %w", err)
	}
	if u.snapshots != nil {
		if err := u.snapshots.SavePerformance(ctx, perf); err != nil {
			logger.GetLogger().WithFields(map[string]interface{}{
				"campaign_id": c.ID,
				"error":       err,
			}).Warn("Performance archive failed")
		}
	}
	return perf, nil
}

func (u *campaignUsecase) OptimizeCampaign(ctx context.Context, tenantID, campaignID string) (*model.OptimizationDecision, error) {
	c, err := u.owned(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignActive {
		return nil, fmt.Errorf("campaign is %s: %w", c.Status, model.ErrInvalidTransition)
	}
	return u.optimize(ctx, c)
}

// optimize runs one controller step: fetch, reconcile, decide, apply, record.
func (u *campaignUsecase) optimize(ctx context.Context, c *model.Campaign) (*model.OptimizationDecision, error) {
	if c.ExternalID == nil {
		return nil, fmt.Errorf("campaign %s not launched: %w", c.ID, model.ErrInvalidTransition)
	}
	perf, err := u.refreshPerformance(ctx, c)
	if err != nil {
		return nil, err
	}
	decision := service.Decide(c, perf, u.cfg.Optimizer, u.now())
	decision.ID = uuid.NewString()

	if err := u.apply(ctx, c, decision); err != nil {
		return nil, err
	}
	if err := u.campaigns.AppendDecision(ctx, &decision); err != nil {
		return nil, fmt.Errorf("record decision: %w", err)
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"campaign_id": c.ID,
		"action":      decision.Action,
		"roas":        decision.ROAS,
		"budget":      decision.NewBudget,
	}).Info("Campaign optimized")
	u.publish(ctx, model.DomainEvent{
		Type:       model.EventCampaignOptimized,
		TenantID:   c.TenantID,
		Platform:   c.Platform,
		CampaignID: c.ID,
		Status:     string(decision.Action),
	})
	return &decision, nil
}

func (u *campaignUsecase) apply(ctx context.Context, c *model.Campaign, d model.OptimizationDecision) error {
	switch d.Action {
	case model.ActionIncrease, model.ActionDecrease:
		return u.setBudget(ctx, c, d.NewBudget)
	case model.ActionPause:
		ads, err := u.registry.Ads(c.Platform)
		if err != nil {
			return err
		}
		err = u.creds.Do(ctx, c.TenantID, c.Platform, func(ctx context.Context, auth model.ClientAuth) error {
			return ads.PauseCampaign(ctx, auth, *c.ExternalID)
		})
		if err != nil {
			return fmt.Errorf("pause campaign: %w", err)
		}
		return u.campaigns.UpdateStatus(ctx, c.ID, model.CampaignPaused)
	}
	return nil
}

func (u *campaignUsecase) setBudget(ctx context.Context, c *model.Campaign, budget float64) error {
	ads, err := u.registry.Ads(c.Platform)
	if err != nil {
		return err
	}
	err = u.creds.Do(ctx, c.TenantID, c.Platform, func(ctx context.Context, auth model.ClientAuth) error {
		return ads.UpdateBudget(ctx, auth, *c.ExternalID, budget)
	})
	if err != nil {
		return fmt.Errorf("update budget: %w", err)
	}
	return u.campaigns.UpdateBudget(ctx, c.ID, budget)
}

func (u *campaignUsecase) RunCycle(ctx context.Context) error {
	active, err := u.campaigns.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active campaigns: %w", err)
	}
	var g errgroup.Group
	g.SetLimit(u.cfg.Workers)
	for _, c := range active {
		c := c
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.GetLogger().WithFields(map[string]interface{}{
						"campaign_id": c.ID,
						"panic":       fmt.Sprint(r),
					}).Error("Optimization panicked")
				}
			}()
			if _, err := u.optimize(ctx, c); err != nil {
				logger.GetLogger().WithFields(map[string]interface{}{
					"tenant":      c.TenantID,
					"campaign_id": c.ID,
					"error":       err,
				}).Warn("Campaign optimization failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	return nil
}

// Rebalance splits a tenant wide daily budget across its campaigns by ROAS.
func (u *campaignUsecase) Rebalance(ctx context.Context, tenantID string, totalDailyBudget float64) (map[string]float64, error) {
	if totalDailyBudget <= 0 {
		return nil, fmt.Errorf("total budget must be positive: %w", model.ErrValidation)
	}
	campaigns, err := u.campaigns.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	allocs := make([]service.Allocation, 0, len(campaigns))
	byID := make(map[string]*model.Campaign, len(campaigns))
	for _, c := range campaigns {
		byID[c.ID] = c
		allocs = append(allocs, service.Allocation{CampaignID: c.ID, ROAS: c.ROAS(), Status: c.Status})
	}
	shares := service.AllocateAcrossCampaigns(totalDailyBudget, allocs, u.cfg.Optimizer.MinDailyBudget)

	var errs []error
	for id, budget := range shares {
		c := byID[id]
		if c.Status != model.CampaignActive || c.ExternalID == nil || budget == c.DailyBudget {
			continue
		}
		if err := u.setBudget(ctx, c, budget); err != nil {
			errs = append(errs, fmt.Errorf("campaign %s: %w", id, err))
			continue
		}
		action := model.ActionIncrease
		if budget < c.DailyBudget {
			action = model.ActionDecrease
		}
		d := model.OptimizationDecision{
			ID:             uuid.NewString(),
			CampaignID:     id,
			Action:         action,
			PreviousBudget: c.DailyBudget,
			NewBudget:      budget,
			ROAS:           c.ROAS(),
			Reason:         fmt.Sprintf("rebalance of %.2f across %d campaigns", totalDailyBudget, len(campaigns)),
			Confidence:     0.7,
			CreatedAt:      u.now().UTC(),
		}
		if err := u.campaigns.AppendDecision(ctx, &d); err != nil {
			errs = append(errs, fmt.Errorf("campaign %s: %w", id, err))
		}
	}
	return shares, errors.Join(errs...)
}

func (u *campaignUsecase) ListDecisions(ctx context.Context, tenantID, campaignID string, limit int) ([]model.OptimizationDecision, error) {
	if _, err := u.owned(ctx, tenantID, campaignID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return u.campaigns.ListDecisions(ctx, campaignID, limit)
}

func (u *campaignUsecase) publish(ctx context.Context, evt model.DomainEvent) {
	if u.events == nil {
		return
	}
	evt.OccurredAt = u.now().UTC()
	if err := u.events.Publish(ctx, evt); err != nil {
		logger.GetLogger().WithFields(map[string]interface{}{
			"type":  evt.Type,
			"error": err,
		}).Warn("Event publish failed")
	}
}
