package model

import "time"

// DateWindow is an inclusive day range used for insight queries.
type DateWindow struct {
	Since time.Time `json:"since" bson:"since"`
	Until time.Time `json:"until" bson:"until"`
}

// LastDays returns a window ending today covering n days.
func LastDays(now time.Time, n int) DateWindow {
	if n <= 0 {
		n = 1
	}
	until := now.UTC().Truncate(24 * time.Hour)
	return DateWindow{Since: until.AddDate(0, 0, -(n - 1)), Until: until}
}

// AccountMetrics is account level reach and engagement for a window.
type AccountMetrics struct {
	Platform    Platform   `json:"platform" bson:"platform"`
	TenantID    string     `json:"tenant_id" bson:"tenant_id"`
	Window      DateWindow `json:"window" bson:"window"`
	Followers   int64      `json:"followers" bson:"followers"`
	Impressions int64      `json:"impressions" bson:"impressions"`
	Reach       int64      `json:"reach" bson:"reach"`
	Engagements int64      `json:"engagements" bson:"engagements"`
	FetchedAt   time.Time  `json:"fetched_at" bson:"fetched_at"`
}

// ItemMetrics is engagement for a single published item.
type ItemMetrics struct {
	ExternalID  string `json:"external_id"`
	Impressions int64  `json:"impressions"`
	Likes       int64  `json:"likes"`
	Comments    int64  `json:"comments"`
	Shares      int64  `json:"shares"`
	Views       int64  `json:"views"`
}

// DomainEvent is published to the event bus when items or connections change state.
type DomainEvent struct {
	Type       string    `json:"type"`
	TenantID   string    `json:"tenant_id"`
	Platform   Platform  `json:"platform,omitempty"`
	ItemID     string    `json:"item_id,omitempty"`
	CampaignID string    `json:"campaign_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	ExternalID string    `json:"external_id,omitempty"`
	Error      string    `json:"error,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

const (
	EventItemPublished       = "item.published"
	EventItemFailed          = "item.failed"
	EventConnectionConnected = "connection.connected"
	EventConnectionExpired   = "connection.expired"
	EventCampaignOptimized   = "campaign.optimized"
)
