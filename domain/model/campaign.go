package model

import "time"

type CampaignStatus string

const (
	CampaignDraft         CampaignStatus = "draft"
	CampaignPendingReview CampaignStatus = "pending_review"
	CampaignActive        CampaignStatus = "active"
	CampaignPaused        CampaignStatus = "paused"
	CampaignCompleted     CampaignStatus = "completed"
	CampaignFailed        CampaignStatus = "failed"
)

type Campaign struct {
	ID          string         `json:"id" gorm:"primaryKey;size:64"`
	TenantID    string         `json:"tenant_id" gorm:"size:128;index"`
	Platform    Platform       `json:"platform" gorm:"size:32"`
	AdAccountID string         `json:"ad_account_id" gorm:"size:128"`
	Name        string         `json:"name" gorm:"size:255"`
	Objective   string         `json:"objective" gorm:"size:64"`
	Targeting   string         `json:"targeting" gorm:"type:text"`
	DailyBudget float64        `json:"daily_budget"`
	TotalBudget float64        `json:"total_budget"`
	Spent       float64        `json:"spent"`
	Revenue     float64        `json:"revenue"`
	Status      CampaignStatus `json:"status" gorm:"size:32;index"`
	ExternalID  *string        `json:"external_id,omitempty" gorm:"size:128"`
	LaunchedAt  *time.Time     `json:"launched_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Creatives   []Creative     `json:"creatives,omitempty" gorm:"foreignKey:CampaignID"`
}

// ROAS is revenue over spend; zero when nothing has been spent.
func (c *Campaign) ROAS() float64 {
	if c.Spent <= 0 {
		return 0
	}
	return c.Revenue / c.Spent
}

// DaysRunning counts whole days since launch.
func (c *Campaign) DaysRunning(now time.Time) int {
	if c.LaunchedAt == nil {
		return 0
	}
	return int(now.Sub(*c.LaunchedAt).Hours() / 24)
}

type Creative struct {
	ID          string    `json:"id" gorm:"primaryKey;size:64"`
	CampaignID  string    `json:"campaign_id" gorm:"size:64;index"`
	Name        string    `json:"name" gorm:"size:255"`
	Headline    string    `json:"headline" gorm:"size:255"`
	Body        string    `json:"body" gorm:"type:text"`
	MediaURL    string    `json:"media_url" gorm:"size:1024"`
	Spend       float64   `json:"spend"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Conversions int64     `json:"conversions"`
	Revenue     float64   `json:"revenue"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type DecisionAction string

const (
	ActionIncrease DecisionAction = "increase"
	ActionDecrease DecisionAction = "decrease"
	ActionMaintain DecisionAction = "maintain"
	ActionPause    DecisionAction = "pause"
)

// OptimizationDecision is an append-only record of one controller evaluation.
type OptimizationDecision struct {
	ID             string         `json:"id" gorm:"primaryKey;size:64"`
	CampaignID     string         `json:"campaign_id" gorm:"size:64;index"`
	Action         DecisionAction `json:"action" gorm:"size:16"`
	PreviousBudget float64        `json:"previous_budget"`
	NewBudget      float64        `json:"new_budget"`
	ROAS           float64        `json:"roas"`
	Reason         string         `json:"reason" gorm:"size:255"`
	Confidence     float64        `json:"confidence"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index"`
}

// CreativePerformance is one row of a provider performance report.
type CreativePerformance struct {
	Name        string  `json:"name"`
	ExternalID  string  `json:"external_id,omitempty"`
	Spend       float64 `json:"spend"`
	Impressions int64   `json:"impressions"`
	Clicks      int64   `json:"clicks"`
	Conversions int64   `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

// PerformanceWindow is a campaign's metrics over a date window.
type PerformanceWindow struct {
	CampaignID  string                `json:"campaign_id" bson:"campaign_id"`
	TenantID    string                `json:"tenant_id" bson:"tenant_id"`
	Window      DateWindow            `json:"window" bson:"window"`
	Spend       float64               `json:"spend" bson:"spend"`
	Revenue     float64               `json:"revenue" bson:"revenue"`
	Impressions int64                 `json:"impressions" bson:"impressions"`
	Clicks      int64                 `json:"clicks" bson:"clicks"`
	Conversions int64                 `json:"conversions" bson:"conversions"`
	Creatives   []CreativePerformance `json:"creatives,omitempty" bson:"creatives,omitempty"`
	FetchedAt   time.Time             `json:"fetched_at" bson:"fetched_at"`
}

func (p *PerformanceWindow) ROAS() float64 {
	if p == nil || p.Spend <= 0 {
		return 0
	}
	return p.Revenue / p.Spend
}

// CampaignSpec is what an ads platform needs to create a campaign.
type CampaignSpec struct {
	Name        string
	Objective   string
	Targeting   string
	DailyBudget float64
	Creatives   []Creative
}
