package dto

import (
	"time"

	"growth-automation/domain/model"
)

type AuthorizeResponse struct {
	AuthorizationURL string `json:"authorizationUrl"`
}

type ScheduleRequest struct {
	Items          []model.PlannedItem `json:"items" binding:"required,min=1"`
	Start          *time.Time          `json:"start,omitempty"`
	Timezone       string              `json:"timezone,omitempty"`
	PreferredTimes []string            `json:"preferredTimes,omitempty"`
	// MinSpacingMinutes overrides the per platform spacing, keyed by platform tag.
	MinSpacingMinutes map[string]int `json:"minSpacingMinutes,omitempty"`
	Draft             bool           `json:"draft,omitempty"`
}

type BulkRescheduleRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
	// OffsetMinutes shifts each item relative to its current scheduled time. May be negative.
	OffsetMinutes int `json:"offsetMinutes" binding:"required"`
}

type BulkIDsRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

type BulkResponse struct {
	Results []model.BulkResult `json:"results"`
}

type CreativeRequest struct {
	Name     string `json:"name" binding:"required"`
	Headline string `json:"headline"`
	Body     string `json:"body"`
	MediaURL string `json:"mediaUrl"`
}

type LaunchCampaignRequest struct {
	Platform    string            `json:"platform" binding:"required"`
	AdAccountID string            `json:"adAccountId" binding:"required"`
	Name        string            `json:"name" binding:"required"`
	Objective   string            `json:"objective"`
	Targeting   string            `json:"targeting"`
	DailyBudget float64           `json:"dailyBudget" binding:"required,gt=0"`
	TotalBudget float64           `json:"totalBudget"`
	Creatives   []CreativeRequest `json:"creatives"`
}

type RebalanceRequest struct {
	TotalDailyBudget float64 `json:"totalDailyBudget" binding:"required,gt=0"`
}
