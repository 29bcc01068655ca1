package model

import "time"

type ItemStatus string

const (
	ItemDraft      ItemStatus = "draft"
	ItemScheduled  ItemStatus = "scheduled"
	ItemPublishing ItemStatus = "publishing"
	ItemPublished  ItemStatus = "published"
	ItemFailed     ItemStatus = "failed"
)

type ItemKind string

const (
	ItemKindPost     ItemKind = "post"
	ItemKindCampaign ItemKind = "campaign"
)

// ItemPayload is the content of a scheduled item. Link is required content and is never truncated.
type ItemPayload struct {
	Title      string   `json:"title,omitempty"`
	Caption    string   `json:"caption"`
	Hashtags   []string `json:"hashtags,omitempty"`
	MediaURLs  []string `json:"media_urls,omitempty"`
	Link       string   `json:"link,omitempty"`
	CampaignID string   `json:"campaign_id,omitempty"`
}

type ScheduledItem struct {
	ID             string      `json:"id"`
	TenantID       string      `json:"tenant_id"`
	Platform       Platform    `json:"platform"`
	Kind           ItemKind    `json:"kind"`
	Payload        ItemPayload `json:"payload"`
	ScheduledAt    time.Time   `json:"scheduled_at"`
	Status         ItemStatus  `json:"status"`
	LeaseExpiresAt *time.Time  `json:"lease_expires_at,omitempty"`
	Attempts       int         `json:"attempts"`
	ExternalID     *string     `json:"external_id,omitempty"`
	ExternalURL    *string     `json:"external_url,omitempty"`
	LastError      *string     `json:"last_error,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
	PublishedAt    *time.Time  `json:"published_at,omitempty"`
}

// Deletable reports whether bulk delete may remove the item.
func (s ItemStatus) Deletable() bool {
	return s == ItemDraft || s == ItemScheduled || s == ItemFailed
}

// Reschedulable reports whether the item can be moved to a new time. Failed items go through retry.
func (s ItemStatus) Reschedulable() bool {
	return s == ItemDraft || s == ItemScheduled
}

// PlannedItem is an unscheduled unit of content submitted for scheduling.
type PlannedItem struct {
	Platform Platform    `json:"platform"`
	Kind     ItemKind    `json:"kind,omitempty"`
	Payload  ItemPayload `json:"payload"`
	// NotBefore pins the earliest time the item may be scheduled at.
	NotBefore *time.Time `json:"not_before,omitempty"`
}

// TimingPolicy drives slot assignment in Schedule.
type TimingPolicy struct {
	Start          time.Time                  `json:"start"`
	Timezone       string                     `json:"timezone,omitempty"`
	PreferredTimes []string                   `json:"preferred_times,omitempty"`
	MinSpacing     map[Platform]time.Duration `json:"-"`
	Draft          bool                       `json:"draft,omitempty"`
}

// BulkResult is the per-id outcome of a bulk operation.
type BulkResult struct {
	ID     string     `json:"id"`
	Status ItemStatus `json:"status,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// TickReport summarises one scheduler pass.
type TickReport struct {
	Reclaimed int `json:"reclaimed"`
	Due       int `json:"due"`
	Published int `json:"published"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// PublishResult is returned by a platform after a successful post.
type PublishResult struct {
	ExternalID string `json:"external_id"`
	URL        string `json:"url,omitempty"`
}

// PostRequest is what the publisher hands to an adapter after media upload.
type PostRequest struct {
	Title    string
	Caption  string
	Hashtags []string
	Link     string
	MediaIDs []string
	// MediaURLs holds the source URLs for adapters that publish by reference.
	MediaURLs []string
}
