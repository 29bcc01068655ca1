package platform

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/infrastructure/configuration"
)

// MetaAdsClient drives campaigns through the Meta marketing API. Budgets are sent in cents.
type MetaAdsClient struct {
	graph *graphAPI
}

func NewMetaAdsClient(p configuration.Provider, client *http.Client, timeout time.Duration) *MetaAdsClient {
	return &MetaAdsClient{graph: &graphAPI{httpAPI: newHTTPAPI(model.PlatformFacebook, client, timeout), baseURL: p.APIBaseURL}}
}

type adsCampaignParams struct {
	Name                string `url:"name,omitempty"`
	Objective           string `url:"objective,omitempty"`
	Status              string `url:"status,omitempty"`
	DailyBudget         int64  `url:"daily_budget,omitempty"`
	SpecialAdCategories string `url:"special_ad_categories,omitempty"`
}

func toCents(amount float64) int64 { return int64(math.Round(amount * 100)) }

func (c *MetaAdsClient) CreateCampaign(ctx context.Context, auth model.ClientAuth, adAccountID string, spec model.CampaignSpec) (string, error) {
	objective := spec.Objective
	if objective == "" {
		objective = "OUTCOME_SALES"
	}
	params := adsCampaignParams{
		Name:                spec.Name,
		Objective:           objective,
		Status:              "ACTIVE",
		DailyBudget:         toCents(spec.DailyBudget),
		SpecialAdCategories: "[]",
	}
	var out graphID
	if err := c.graph.post(ctx, "create campaign", "act_"+strings.TrimPrefix(adAccountID, "act_")+"/campaigns", auth.AccessToken(), params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *MetaAdsClient) UpdateBudget(ctx context.Context, auth model.ClientAuth, externalID string, dailyBudget float64) error {
	return c.graph.post(ctx, "update budget", externalID, auth.AccessToken(), adsCampaignParams{DailyBudget: toCents(dailyBudget)}, nil)
}

func (c *MetaAdsClient) PauseCampaign(ctx context.Context, auth model.ClientAuth, externalID string) error {
	return c.graph.post(ctx, "pause campaign", externalID, auth.AccessToken(), adsCampaignParams{Status: "PAUSED"}, nil)
}

type adsInsightParams struct {
	Level     string `url:"level"`
	Fields    string `url:"fields"`
	TimeRange string `url:"time_range"`
}

type adsAction struct {
	ActionType string `json:"action_type"`
	Value      string `json:"value"`
}

type adsInsightRow struct {
	AdName       string      `json:"ad_name"`
	AdID         string      `json:"ad_id"`
	Spend        string      `json:"spend"`
	Impressions  string      `json:"impressions"`
	Clicks       string      `json:"clicks"`
	Actions      []adsAction `json:"actions"`
	ActionValues []adsAction `json:"action_values"`
}

// Meta reports the same purchase under several action types; the first one present wins.
var purchaseActionTypes = []string{"omni_purchase", "purchase", "offsite_conversion.fb_pixel_purchase"}

func purchaseValue(actions []adsAction) float64 {
	for _, t := range purchaseActionTypes {
		for _, a := range actions {
			if a.ActionType == t {
				return parseFloat(a.Value)
			}
		}
	}
	return 0
}

// GetCampaignPerformance reads per-ad rows for the window and maps each ad to a creative by name.
func (c *MetaAdsClient) GetCampaignPerformance(ctx context.Context, auth model.ClientAuth, externalID string, window model.DateWindow) (*model.PerformanceWindow, error) {
	timeRange, _ := json.Marshal(map[string]string{
		"since": window.Since.Format("2006-01-02"),
		"until": window.Until.Format("2006-01-02"),
	})
	params := adsInsightParams{
		Level:     "ad",
		Fields:    "ad_id,ad_name,spend,impressions,clicks,actions,action_values",
		TimeRange: string(timeRange),
	}
	var resp struct {
		Data []adsInsightRow `json:"data"`
	}
	if err := c.graph.get(ctx, "campaign insights", externalID+"/insights", auth.AccessToken(), params, &resp); err != nil {
		return nil, err
	}
	perf := &model.PerformanceWindow{TenantID: auth.TenantID, Window: window, FetchedAt: time.Now().UTC()}
	for _, row := range resp.Data {
		cp := model.CreativePerformance{
			Name:        row.AdName,
			ExternalID:  row.AdID,
			Spend:       parseFloat(row.Spend),
			Impressions: parseInt(row.Impressions),
			Clicks:      parseInt(row.Clicks),
			Conversions: int64(purchaseValue(row.Actions)),
			Revenue:     purchaseValue(row.ActionValues),
		}
		perf.Spend += cp.Spend
		perf.Revenue += cp.Revenue
		perf.Impressions += cp.Impressions
		perf.Clicks += cp.Clicks
		perf.Conversions += cp.Conversions
		perf.Creatives = append(perf.Creatives, cp)
	}
	return perf, nil
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int64 {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return int64(parseFloat(s))
}

var _ repository.IAdsClient = (*MetaAdsClient)(nil)
