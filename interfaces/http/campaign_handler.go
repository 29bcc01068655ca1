package http

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"growth-automation/domain/dto"
	"growth-automation/domain/model"
	"growth-automation/usecase"
)

type ICampaignHandler interface {
	Launch(c *gin.Context)
	List(c *gin.Context)
	Get(c *gin.Context)
	Performance(c *gin.Context)
	Optimize(c *gin.Context)
	Decisions(c *gin.Context)
	Rebalance(c *gin.Context)
}

type CampaignHandler struct {
	campaigns usecase.ICampaignUsecase
}

func NewCampaignHandler(campaigns usecase.ICampaignUsecase) ICampaignHandler {
	return &CampaignHandler{campaigns: campaigns}
}

// Launch handles POST /api/campaigns
func (h *CampaignHandler) Launch(c *gin.Context) {
	var req dto.LaunchCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	campaign, err := h.campaigns.Launch(c.Request.Context(), tenant(c), req)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, campaign)
}

// List handles GET /api/campaigns
func (h *CampaignHandler) List(c *gin.Context) {
	list, err := h.campaigns.ListCampaigns(c.Request.Context(), tenant(c))
	if err != nil {
		fail(c, err)
		return
	}
	if list == nil {
		list = []*model.Campaign{}
	}
	ok(c, list)
}

// Get handles GET /api/campaigns/:id
func (h *CampaignHandler) Get(c *gin.Context) {
	campaign, err := h.campaigns.GetCampaign(c.Request.Context(), tenant(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, campaign)
}

// Performance handles GET /api/campaigns/:id/performance
func (h *CampaignHandler) Performance(c *gin.Context) {
	perf, err := h.campaigns.GetPerformance(c.Request.Context(), tenant(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"performance": perf, "roas": perf.ROAS()})
}

// Optimize handles POST /api/campaigns/:id/optimize
func (h *CampaignHandler) Optimize(c *gin.Context) {
	decision, err := h.campaigns.OptimizeCampaign(c.Request.Context(), tenant(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, decision)
}

// Decisions handles GET /api/campaigns/:id/decisions?limit=
func (h *CampaignHandler) Decisions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.campaigns.ListDecisions(c.Request.Context(), tenant(c), c.Param("id"), limit)
	if err != nil {
		fail(c, err)
		return
	}
	if list == nil {
		list = []model.OptimizationDecision{}
	}
	ok(c, list)
}

// Rebalance handles POST /api/campaigns/rebalance
func (h *CampaignHandler) Rebalance(c *gin.Context) {
	var req dto.RebalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	shares, err := h.campaigns.Rebalance(c.Request.Context(), tenant(c), req.TotalDailyBudget)
	if err != nil && shares == nil {
		fail(c, err)
		return
	}
	res := gin.H{"allocations": shares}
	if err != nil {
		// partial: some budgets could not be applied at the provider
		res["error"] = err.Error()
	}
	ok(c, res)
}
