package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
)

// In-memory repositories back local runs without a database and the usecase tests.
// They honour the same conditional-update rules as the SQL versions.

type MemoryConnectionRepository struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]*model.PlatformConnection
}

func NewMemoryConnectionRepository() *MemoryConnectionRepository {
	return &MemoryConnectionRepository{rows: make(map[string]*model.PlatformConnection)}
}

func connKey(tenantID string, platform model.Platform) string {
	return tenantID + "|" + string(platform)
}

func (r *MemoryConnectionRepository) Upsert(_ context.Context, c *model.PlatformConnection) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	key := connKey(c.TenantID, c.Platform)
	if cur, ok := r.rows[key]; ok {
		c.ID = cur.ID
		c.Version = cur.Version + 1
		c.CreatedAt = cur.CreatedAt
	} else {
		r.nextID++
		c.ID = r.nextID
		c.Version = 1
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.LastError = nil
	c.DeletedAt = nil
	cp := *c
	r.rows[key] = &cp
	return nil
}

func (r *MemoryConnectionRepository) Get(_ context.Context, tenantID string, platform model.Platform) (*model.PlatformConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[connKey(tenantID, platform)]
	if !ok || c.DeletedAt != nil {
		return nil, model.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *MemoryConnectionRepository) ListByTenant(_ context.Context, tenantID string) ([]*model.PlatformConnection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.PlatformConnection
	for _, c := range r.rows {
		if c.TenantID == tenantID && c.DeletedAt == nil {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Platform < out[j].Platform })
	return out, nil
}

func (r *MemoryConnectionRepository) SwapCredential(_ context.Context, tenantID string, platform model.Platform, expectedVersion int64, blob string, status model.ConnectionStatus) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[connKey(tenantID, platform)]
	if !ok || c.DeletedAt != nil || c.Version != expectedVersion {
		return 0, model.ErrConflict
	}
	c.CredentialBlob = blob
	c.Status = status
	c.LastError = nil
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	return c.Version, nil
}

func (r *MemoryConnectionRepository) SetStatus(_ context.Context, tenantID string, platform model.Platform, expectedVersion int64, status model.ConnectionStatus, lastError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[connKey(tenantID, platform)]
	if !ok || c.DeletedAt != nil || c.Version != expectedVersion {
		return model.ErrConflict
	}
	c.Status = status
	c.LastError = lastError
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryConnectionRepository) SoftDelete(_ context.Context, tenantID string, platform model.Platform) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[connKey(tenantID, platform)]
	if !ok || c.DeletedAt != nil {
		return model.ErrNotFound
	}
	now := time.Now().UTC()
	c.Status = model.ConnectionRevoked
	c.CredentialBlob = ""
	c.Version++
	c.UpdatedAt = now
	c.DeletedAt = &now
	return nil
}

type MemoryScheduledItemRepository struct {
	mu    sync.Mutex
	items map[string]*model.ScheduledItem
}

func NewMemoryScheduledItemRepository() *MemoryScheduledItemRepository {
	return &MemoryScheduledItemRepository{items: make(map[string]*model.ScheduledItem)}
}

func cloneItem(it *model.ScheduledItem) *model.ScheduledItem {
	cp := *it
	cp.Payload.Hashtags = append([]string(nil), it.Payload.Hashtags...)
	cp.Payload.MediaURLs = append([]string(nil), it.Payload.MediaURLs...)
	return &cp
}

func (r *MemoryScheduledItemRepository) Create(_ context.Context, items []*model.ScheduledItem) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, it := range items {
		if _, exists := r.items[it.ID]; exists {
			return model.ErrConflict
		}
	}
	now := time.Now().UTC()
	for _, it := range items {
		it.CreatedAt, it.UpdatedAt = now, now
		r.items[it.ID] = cloneItem(it)
	}
	return nil
}

func (r *MemoryScheduledItemRepository) Get(_ context.Context, id string) (*model.ScheduledItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneItem(it), nil
}

func (r *MemoryScheduledItemRepository) ListByTenant(_ context.Context, tenantID string, status model.ItemStatus, limit int) ([]*model.ScheduledItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ScheduledItem
	for _, it := range r.items {
		if it.TenantID == tenantID && (status == "" || it.Status == status) {
			out = append(out, cloneItem(it))
		}
	}
	sortByScheduledAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryScheduledItemRepository) LastScheduledAt(_ context.Context, tenantID string, platform model.Platform) (time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last time.Time
	for _, it := range r.items {
		if it.TenantID != tenantID || it.Platform != platform {
			continue
		}
		switch it.Status {
		case model.ItemScheduled, model.ItemPublishing, model.ItemPublished:
			if it.ScheduledAt.After(last) {
				last = it.ScheduledAt
			}
		}
	}
	return last, nil
}

func (r *MemoryScheduledItemRepository) ReclaimExpiredLeases(_ context.Context, now time.Time, maxClaims int) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, it := range r.items {
		if it.Status != model.ItemPublishing || it.LeaseExpiresAt == nil || !it.LeaseExpiresAt.Before(now) {
			continue
		}
		if it.Attempts >= maxClaims {
			it.Status = model.ItemFailed
			reason := "publishing lease expired"
			it.LastError = &reason
		} else {
			it.Status = model.ItemScheduled
		}
		it.LeaseExpiresAt = nil
		it.UpdatedAt = now
		n++
	}
	return n, nil
}

func (r *MemoryScheduledItemRepository) FetchDue(_ context.Context, now time.Time, limit int) ([]*model.ScheduledItem, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.ScheduledItem
	for _, it := range r.items {
		if it.Status == model.ItemScheduled && !it.ScheduledAt.After(now) {
			out = append(out, cloneItem(it))
		}
	}
	sortByScheduledAt(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryScheduledItemRepository) Claim(_ context.Context, id string, leaseUntil time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok || it.Status != model.ItemScheduled {
		return false, nil
	}
	it.Status = model.ItemPublishing
	lease := leaseUntil
	it.LeaseExpiresAt = &lease
	it.Attempts++
	it.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *MemoryScheduledItemRepository) MarkPublished(_ context.Context, id string, result model.PublishResult, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok || it.Status != model.ItemPublishing {
		return model.ErrInvalidTransition
	}
	ext := result.ExternalID
	it.ExternalID = &ext
	if result.URL != "" {
		u := result.URL
		it.ExternalURL = &u
	}
	it.Status = model.ItemPublished
	it.PublishedAt = &at
	it.LeaseExpiresAt = nil
	it.LastError = nil
	it.UpdatedAt = at
	return nil
}

func (r *MemoryScheduledItemRepository) MarkFailed(_ context.Context, id string, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok || it.Status != model.ItemPublishing {
		return model.ErrInvalidTransition
	}
	it.Status = model.ItemFailed
	it.LastError = &reason
	it.LeaseExpiresAt = nil
	it.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryScheduledItemRepository) Retry(_ context.Context, id string, at time.Time) (bool, error) {
	return r.transition(id, func(it *model.ScheduledItem) bool {
		if it.Status != model.ItemFailed {
			return false
		}
		it.Status = model.ItemScheduled
		it.ScheduledAt = at
		it.Attempts = 0
		it.LastError = nil
		return true
	})
}

func (r *MemoryScheduledItemRepository) Reschedule(_ context.Context, id string, at time.Time) (bool, error) {
	return r.transition(id, func(it *model.ScheduledItem) bool {
		if !it.Status.Reschedulable() {
			return false
		}
		it.ScheduledAt = at
		return true
	})
}

func (r *MemoryScheduledItemRepository) Delete(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok || !it.Status.Deletable() {
		return false, nil
	}
	delete(r.items, id)
	return true, nil
}

func (r *MemoryScheduledItemRepository) MakeDue(_ context.Context, id string, now time.Time) (bool, error) {
	return r.transition(id, func(it *model.ScheduledItem) bool {
		if it.Status != model.ItemDraft && it.Status != model.ItemScheduled {
			return false
		}
		it.Status = model.ItemScheduled
		it.ScheduledAt = now
		return true
	})
}

func (r *MemoryScheduledItemRepository) transition(id string, apply func(*model.ScheduledItem) bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	it, ok := r.items[id]
	if !ok {
		return false, nil
	}
	if !apply(it) {
		return false, nil
	}
	it.UpdatedAt = time.Now().UTC()
	return true, nil
}

func sortByScheduledAt(items []*model.ScheduledItem) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].ScheduledAt.Equal(items[j].ScheduledAt) {
			return items[i].ID < items[j].ID
		}
		return items[i].ScheduledAt.Before(items[j].ScheduledAt)
	})
}

type MemoryCampaignRepository struct {
	mu        sync.Mutex
	campaigns map[string]*model.Campaign
	decisions []model.OptimizationDecision
}

func NewMemoryCampaignRepository() *MemoryCampaignRepository {
	return &MemoryCampaignRepository{campaigns: make(map[string]*model.Campaign)}
}

func cloneCampaign(c *model.Campaign) *model.Campaign {
	cp := *c
	cp.Creatives = append([]model.Creative(nil), c.Creatives...)
	return &cp
}

func (r *MemoryCampaignRepository) Create(_ context.Context, c *model.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.campaigns[c.ID]; exists {
		return model.ErrConflict
	}
	now := time.Now().UTC()
	c.CreatedAt, c.UpdatedAt = now, now
	r.campaigns[c.ID] = cloneCampaign(c)
	return nil
}

func (r *MemoryCampaignRepository) Get(_ context.Context, id string) (*model.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return cloneCampaign(c), nil
}

func (r *MemoryCampaignRepository) ListActive(_ context.Context) ([]*model.Campaign, error) {
	return r.list(func(c *model.Campaign) bool { return c.Status == model.CampaignActive }), nil
}

func (r *MemoryCampaignRepository) ListByTenant(_ context.Context, tenantID string) ([]*model.Campaign, error) {
	return r.list(func(c *model.Campaign) bool { return c.TenantID == tenantID }), nil
}

func (r *MemoryCampaignRepository) list(keep func(*model.Campaign) bool) []*model.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Campaign
	for _, c := range r.campaigns {
		if keep(c) {
			out = append(out, cloneCampaign(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *MemoryCampaignRepository) UpdateBudget(_ context.Context, id string, dailyBudget float64) error {
	return r.update(id, func(c *model.Campaign) { c.DailyBudget = dailyBudget })
}

func (r *MemoryCampaignRepository) UpdateStatus(_ context.Context, id string, status model.CampaignStatus) error {
	return r.update(id, func(c *model.Campaign) { c.Status = status })
}

func (r *MemoryCampaignRepository) MarkLaunched(_ context.Context, id string, externalID string) error {
	return r.update(id, func(c *model.Campaign) {
		now := time.Now().UTC()
		c.ExternalID = &externalID
		c.Status = model.CampaignActive
		c.LaunchedAt = &now
	})
}

func (r *MemoryCampaignRepository) ReconcilePerformance(_ context.Context, id string, window *model.PerformanceWindow) error {
	if window == nil {
		return nil
	}
	return r.update(id, func(c *model.Campaign) {
		c.Spent = window.Spend
		c.Revenue = window.Revenue
		for _, cp := range window.Creatives {
			for i := range c.Creatives {
				if c.Creatives[i].Name != cp.Name {
					continue
				}
				c.Creatives[i].Spend = cp.Spend
				c.Creatives[i].Impressions = cp.Impressions
				c.Creatives[i].Clicks = cp.Clicks
				c.Creatives[i].Conversions = cp.Conversions
				c.Creatives[i].Revenue = cp.Revenue
			}
		}
	})
}

func (r *MemoryCampaignRepository) update(id string, apply func(*model.Campaign)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return model.ErrNotFound
	}
	apply(c)
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *MemoryCampaignRepository) AppendDecision(_ context.Context, d *model.OptimizationDecision) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, *d)
	return nil
}

func (r *MemoryCampaignRepository) ListDecisions(_ context.Context, campaignID string, limit int) ([]model.OptimizationDecision, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.OptimizationDecision
	for i := len(r.decisions) - 1; i >= 0; i-- {
		if r.decisions[i].CampaignID == campaignID {
			out = append(out, r.decisions[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

var (
	_ repository.IPlatformConnection = (*MemoryConnectionRepository)(nil)
	_ repository.IScheduledItem      = (*MemoryScheduledItemRepository)(nil)
	_ repository.ICampaign           = (*MemoryCampaignRepository)(nil)
)
