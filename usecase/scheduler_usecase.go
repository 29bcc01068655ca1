package usecase

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/logger"
)

type ISchedulerUsecase interface {
	Schedule(ctx context.Context, tenantID string, items []model.PlannedItem, policy model.TimingPolicy) ([]*model.ScheduledItem, error)
	Tick(ctx context.Context) (*model.TickReport, error)
	BulkReschedule(ctx context.Context, tenantID string, ids []string, offset time.Duration) []model.BulkResult
	BulkDelete(ctx context.Context, tenantID string, ids []string) []model.BulkResult
	BulkPublish(ctx context.Context, tenantID string, ids []string) []model.BulkResult
	BulkRetry(ctx context.Context, tenantID string, ids []string) []model.BulkResult
	PublishNow(ctx context.Context, tenantID, itemID string) (*model.ScheduledItem, error)
	GetItem(ctx context.Context, tenantID, itemID string) (*model.ScheduledItem, error)
	ListItems(ctx context.Context, tenantID string, status model.ItemStatus, limit int) ([]*model.ScheduledItem, error)
	GetItemAnalytics(ctx context.Context, tenantID, itemID string) (*model.ItemMetrics, error)
}

type SchedulerConfig struct {
	BatchSize      int
	Workers        int
	LeaseTimeout   time.Duration
	MaxClaims      int
	PublishTimeout time.Duration
	Timezone       string
	PreferredTimes []string
	MinSpacing     map[model.Platform]time.Duration
}

// DefaultMinSpacing is the minimum gap between two posts of a tenant on one platform.
var DefaultMinSpacing = map[model.Platform]time.Duration{
	model.PlatformFacebook:  30 * time.Minute,
	model.PlatformInstagram: time.Hour,
	model.PlatformTikTok:    time.Hour,
	model.PlatformTwitter:   15 * time.Minute,
	model.PlatformLinkedIn:  2 * time.Hour,
	model.PlatformYouTube:   4 * time.Hour,
	model.PlatformMastodon:  10 * time.Minute,
}

type schedulerUsecase struct {
	items     repository.IScheduledItem
	registry  repository.IPlatformRegistry
	creds     ICredentialUsecase
	publisher *Publisher
	events    repository.IEventPublisher
	notifier  repository.INotifier
	cfg       SchedulerConfig
	now       func() time.Time
}

func NewSchedulerUsecase(
	items repository.IScheduledItem,
	registry repository.IPlatformRegistry,
	creds ICredentialUsecase,
	publisher *Publisher,
	events repository.IEventPublisher,
	notifier repository.INotifier,
	cfg SchedulerConfig,
) ISchedulerUsecase {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = 10 * time.Minute
	}
	if cfg.MaxClaims <= 0 {
		cfg.MaxClaims = 3
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 2 * time.Minute
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	spacing := make(map[model.Platform]time.Duration, len(DefaultMinSpacing))
	for p, d := range DefaultMinSpacing {
		spacing[p] = d
	}
	for p, d := range cfg.MinSpacing {
		spacing[p] = d
	}
	cfg.MinSpacing = spacing
	return &schedulerUsecase{
		items:     items,
		registry:  registry,
		creds:     creds,
		publisher: publisher,
		events:    events,
		notifier:  notifier,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Schedule assigns every planned item a slot and stores it. Nothing is published here.
func (u *schedulerUsecase) Schedule(ctx context.Context, tenantID string, planned []model.PlannedItem, policy model.TimingPolicy) ([]*model.ScheduledItem, error) {
	if len(planned) == 0 {
		return nil, fmt.Errorf("no items: %w", model.ErrValidation)
	}
	tz := policy.Timezone
	if tz == "" {
		tz = u.cfg.Timezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, model.ErrValidation)
	}
	preferredRaw := policy.PreferredTimes
	if len(preferredRaw) == 0 {
		preferredRaw = u.cfg.PreferredTimes
	}
	preferred, err := parseClockTimes(preferredRaw)
	if err != nil {
		return nil, err
	}

	now := u.now()
	start := policy.Start
	if start.Before(now) {
		start = now
	}
	status := model.ItemScheduled
	if policy.Draft {
		status = model.ItemDraft
	}

	cursors := make(map[model.Platform]time.Time)
	out := make([]*model.ScheduledItem, 0, len(planned))
	for i, p := range planned {
		if err := u.validate(p); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		spacing := u.spacing(p.Platform, policy)
		cursor, ok := cursors[p.Platform]
		if !ok {
			last, err := u.items.LastScheduledAt(ctx, tenantID, p.Platform)
			if err != nil {
				return nil, err
			}
			cursor = start
			if !last.IsZero() && last.Add(spacing).After(cursor) {
				cursor = last.Add(spacing)
			}
		}
		if p.NotBefore != nil && p.NotBefore.After(cursor) {
			cursor = *p.NotBefore
		}
		slot := nextSlot(cursor, loc, preferred)
		cursors[p.Platform] = slot.Add(spacing)

		kind := p.Kind
		if kind == "" {
			kind = model.ItemKindPost
		}
		out = append(out, &model.ScheduledItem{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			Platform:    p.Platform,
			Kind:        kind,
			Payload:     p.Payload,
			ScheduledAt: slot.UTC(),
			Status:      status,
		})
	}

	if err := u.items.Create(ctx, out); err != nil {
		return nil, err
	}
	logger.GetLogger().WithFields(map[string]interface{}{
		"tenant": tenantID,
		"count":  len(out),
		"status": status,
	}).Info("Items scheduled")
	return out, nil
}

func (u *schedulerUsecase) validate(p model.PlannedItem) error {
	if p.Kind == model.ItemKindCampaign {
		if p.Payload.CampaignID == "" {
			return fmt.Errorf("campaign item without campaign id: %w", model.ErrValidation)
		}
		_, err := u.registry.Ads(p.Platform)
		return err
	}
	client, err := u.registry.Client(p.Platform)
	if err != nil {
		return err
	}
	_, err = BuildPost(p.Payload, client.Rules(), p.Platform)
	return err
}

func (u *schedulerUsecase) spacing(p model.Platform, policy model.TimingPolicy) time.Duration {
	if d, ok := policy.MinSpacing[p]; ok {
		return d
	}
	return u.cfg.MinSpacing[p]
}

// parseClockTimes turns "HH:MM" values into minutes after midnight, sorted and deduplicated.
func parseClockTimes(values []string) ([]int, error) {
	seen := make(map[int]bool, len(values))
	out := make([]int, 0, len(values))
	for _, v := range values {
		hh, mm, ok := strings.Cut(strings.TrimSpace(v), ":")
		h, herr := strconv.Atoi(hh)
		m, merr := strconv.Atoi(mm)
		if !ok || herr != nil || merr != nil || h < 0 || h > 23 || m < 0 || m > 59 {
			return nil, fmt.Errorf("preferred time %q: %w", v, model.ErrValidation)
		}
		minute := h*60 + m
		if !seen[minute] {
			seen[minute] = true
			out = append(out, minute)
		}
	}
	sort.Ints(out)
	return out, nil
}

// nextSlot returns the first preferred time of day in loc at or after t.
// Without preferred times t itself is the slot.
func nextSlot(t time.Time, loc *time.Location, preferred []int) time.Time {
	if len(preferred) == 0 {
		return t
	}
	local := t.In(loc)
	for day := 0; day < 2; day++ {
		y, mo, d := local.AddDate(0, 0, day).Date()
		for _, minute := range preferred {
			slot := time.Date(y, mo, d, minute/60, minute%60, 0, 0, loc)
			if !slot.Before(local) {
				return slot
			}
		}
	}
	return t
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomePublished
	outcomeFailed
)

// Tick reclaims expired leases and publishes every due item on a bounded worker group.
// A failing or panicking item never aborts the batch.
func (u *schedulerUsecase) Tick(ctx context.Context) (*model.TickReport, error) {
	now := u.now()
	report := &model.TickReport{}

	reclaimed, err := u.items.ReclaimExpiredLeases(ctx, now, u.cfg.MaxClaims)
	if err != nil {
		return report, fmt.Errorf("reclaim leases: %w", err)
	}
	report.Reclaimed = reclaimed

	due, err := u.items.FetchDue(ctx, now, u.cfg.BatchSize)
	if err != nil {
		return report, fmt.Errorf("fetch due items: %w", err)
	}
	report.Due = len(due)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(u.cfg.Workers)
	for _, item := range due {
		item := item
		g.Go(func() error {
			res := u.process(ctx, item)
			mu.Lock()
			defer mu.Unlock()
			switch res {
			case outcomePublished:
				report.Published++
			case outcomeFailed:
				report.Failed++
			default:
				report.Skipped++
			}
			return nil
		})
	}
	_ = g.Wait()

	if report.Due > 0 || report.Reclaimed > 0 {
		logger.GetLogger().WithFields(map[string]interface{}{
			"reclaimed": report.Reclaimed,
			"due":       report.Due,
			"published": report.Published,
			"failed":    report.Failed,
			"skipped":   report.Skipped,
		}).Info("Scheduler tick finished")
	}
	return report, nil
}

// process claims one item and publishes it. Only the worker whose claim succeeds proceeds.
func (u *schedulerUsecase) process(ctx context.Context, item *model.ScheduledItem) (res outcome) {
	lg := logger.GetLogger().WithFields(map[string]interface{}{
		"tenant":   item.TenantID,
		"platform": item.Platform,
		"item_id":  item.ID,
	})
	won, err := u.items.Claim(ctx, item.ID, u.now().Add(u.cfg.LeaseTimeout))
	if err != nil {
		lg.WithField("error", err).Error("Claim failed")
		return outcomeSkipped
	}
	if !won {
		return outcomeSkipped
	}

	defer func() {
		if r := recover(); r != nil {
			lg.WithField("panic", fmt.Sprint(r)).Error("Publish panicked")
			u.fail(ctx, item, fmt.Errorf("internal error: %v", r))
			res = outcomeFailed
		}
	}()

	pctx, cancel := context.WithTimeout(ctx, u.cfg.PublishTimeout)
	defer cancel()
	result, err := u.publisher.Publish(pctx, item)
	if err != nil {
		lg.WithField("error", err).Warn("Publish failed")
		u.fail(ctx, item, err)
		return outcomeFailed
	}

	publishedAt := u.now().UTC()
	if err := u.items.MarkPublished(ctx, item.ID, *result, publishedAt); err != nil {
		// the post exists remotely; the lease sweep must not publish it twice
		lg.WithFields(map[string]interface{}{
			"external_id": result.ExternalID,
			"error":       err,
		}).Error("Published but could not record the result")
		return outcomeFailed
	}
	lg.WithField("external_id", result.ExternalID).Info("Item published")
	u.publish(ctx, model.DomainEvent{
		Type:       model.EventItemPublished,
		TenantID:   item.TenantID,
		Platform:   item.Platform,
		ItemID:     item.ID,
		CampaignID: item.Payload.CampaignID,
		Status:     string(model.ItemPublished),
		ExternalID: result.ExternalID,
	})
	return outcomePublished
}

func (u *schedulerUsecase) fail(ctx context.Context, item *model.ScheduledItem, cause error) {
	reason := failureReason(cause)
	if err := u.items.MarkFailed(ctx, item.ID, reason); err != nil {
		logger.GetLogger().WithFields(map[string]interface{}{
			"item_id": item.ID,
			"error":   err,
		}).Error("Could not mark item failed")
	}
	u.publish(ctx, model.DomainEvent{
		Type:       model.EventItemFailed,
		TenantID:   item.TenantID,
		Platform:   item.Platform,
		ItemID:     item.ID,
		CampaignID: item.Payload.CampaignID,
		Status:     string(model.ItemFailed),
		Error:      reason,
	})
	if u.notifier != nil {
		text := fmt.Sprintf("%s item %s of tenant %s failed: %s", item.Platform, item.ID, item.TenantID, reason)
		if err := u.notifier.Notify(ctx, text); err != nil {
			logger.GetLogger().WithField("error", err).Warn("Notification failed")
		}
	}
}

func (u *schedulerUsecase) publish(ctx context.Context, evt model.DomainEvent) {
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

// owned loads an item and hides items of other tenants.
func (u *schedulerUsecase) owned(ctx context.Context, tenantID, itemID string) (*model.ScheduledItem, error) {
	item, err := u.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.TenantID != tenantID {
		return nil, model.ErrNotFound
	}
	return item, nil
}

func (u *schedulerUsecase) GetItem(ctx context.Context, tenantID, itemID string) (*model.ScheduledItem, error) {
	return u.owned(ctx, tenantID, itemID)
}

func (u *schedulerUsecase) ListItems(ctx context.Context, tenantID string, status model.ItemStatus, limit int) ([]*model.ScheduledItem, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return u.items.ListByTenant(ctx, tenantID, status, limit)
}

// PublishNow makes a draft or scheduled item due and publishes it immediately.
func (u *schedulerUsecase) PublishNow(ctx context.Context, tenantID, itemID string) (*model.ScheduledItem, error) {
	item, err := u.owned(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	ok, err := u.items.MakeDue(ctx, item.ID, u.now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("item is %s: %w", item.Status, model.ErrInvalidTransition)
	}
	u.process(ctx, item)
	return u.items.Get(ctx, item.ID)
}

func (u *schedulerUsecase) BulkReschedule(ctx context.Context, tenantID string, ids []string, offset time.Duration) []model.BulkResult {
	now := u.now()
	return u.bulk(ctx, tenantID, ids, func(item *model.ScheduledItem) error {
		at := item.ScheduledAt.Add(offset)
		if at.Before(now) {
			at = now
		}
		ok, err := u.items.Reschedule(ctx, item.ID, at.UTC())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("item is %s: %w", item.Status, model.ErrInvalidTransition)
		}
		return nil
	})
}

func (u *schedulerUsecase) BulkDelete(ctx context.Context, tenantID string, ids []string) []model.BulkResult {
	results := make([]model.BulkResult, 0, len(ids))
	for _, id := range ids {
		res := model.BulkResult{ID: id}
		item, err := u.owned(ctx, tenantID, id)
		if err == nil {
			var ok bool
			ok, err = u.items.Delete(ctx, id)
			if err == nil && !ok {
				err = fmt.Errorf("item is %s: %w", item.Status, model.ErrInvalidTransition)
			}
		}
		if err != nil {
			res.Error = err.Error()
			if item != nil {
				res.Status = item.Status
			}
		} else {
			res.Status = "deleted"
		}
		results = append(results, res)
	}
	return results
}

func (u *schedulerUsecase) BulkRetry(ctx context.Context, tenantID string, ids []string) []model.BulkResult {
	now := u.now()
	return u.bulk(ctx, tenantID, ids, func(item *model.ScheduledItem) error {
		ok, err := u.items.Retry(ctx, item.ID, now.UTC())
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("item is %s: %w", item.Status, model.ErrInvalidTransition)
		}
		return nil
	})
}

// BulkPublish publishes every id immediately, in parallel up to the worker limit.
func (u *schedulerUsecase) BulkPublish(ctx context.Context, tenantID string, ids []string) []model.BulkResult {
	results := make([]model.BulkResult, len(ids))
	var g errgroup.Group
	g.SetLimit(u.cfg.Workers)
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			res := model.BulkResult{ID: id}
			item, err := u.PublishNow(ctx, tenantID, id)
			switch {
			case err != nil:
				res.Error = err.Error()
			case item.Status == model.ItemFailed && item.LastError != nil:
				res.Status = item.Status
				res.Error = *item.LastError
			default:
				res.Status = item.Status
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// bulk applies fn to each owned item and reports the item's status afterwards.
func (u *schedulerUsecase) bulk(ctx context.Context, tenantID string, ids []string, fn func(*model.ScheduledItem) error) []model.BulkResult {
	results := make([]model.BulkResult, 0, len(ids))
	for _, id := range ids {
		res := model.BulkResult{ID: id}
		item, err := u.owned(ctx, tenantID, id)
		if err == nil {
			err = fn(item)
		}
		if err != nil {
			res.Error = err.Error()
			if item != nil {
				res.Status = item.Status
			}
		} else if fresh, gerr := u.items.Get(ctx, id); gerr == nil {
			res.Status = fresh.Status
		}
		results = append(results, res)
	}
	return results
}

func (u *schedulerUsecase) GetItemAnalytics(ctx context.Context, tenantID, itemID string) (*model.ItemMetrics, error) {
	item, err := u.owned(ctx, tenantID, itemID)
	if err != nil {
		return nil, err
	}
	if item.Status != model.ItemPublished || item.ExternalID == nil {
		return nil, fmt.Errorf("item is %s: %w", item.Status, model.ErrInvalidTransition)
	}
	if item.Kind == model.ItemKindCampaign {
		return nil, fmt.Errorf("campaign items report through campaign performance: %w", model.ErrValidation)
	}
	client, err := u.registry.Client(item.Platform)
	if err != nil {
		return nil, err
	}
	var metrics *model.ItemMetrics
	err = u.creds.Do(ctx, tenantID, item.Platform, func(ctx context.Context, auth model.ClientAuth) error {
		m, err := client.GetItemAnalytics(ctx, auth, *item.ExternalID)
		if err != nil {
			return err
		}
		metrics = m
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("item analytics: %w", err)
	}
	return metrics, nil
}
