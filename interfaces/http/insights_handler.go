package http

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"growth-automation/domain/model"
	"growth-automation/domain/repository"
	"growth-automation/usecase"
)

type IInsightsHandler interface {
	GetInsights(c *gin.Context)
	GetPlatforms(c *gin.Context)
}

type InsightsHandler struct {
	insights usecase.IInsightsUsecase
	registry repository.IPlatformRegistry
}

func NewInsightsHandler(insights usecase.IInsightsUsecase, registry repository.IPlatformRegistry) IInsightsHandler {
	return &InsightsHandler{insights: insights, registry: registry}
}

// GetInsights handles GET /api/insights/:platform?days=
func (h *InsightsHandler) GetInsights(c *gin.Context) {
	platform, found := platformParam(c)
	if !found {
		return
	}
	days, _ := strconv.Atoi(c.Query("days"))
	metrics, err := h.insights.GetInsights(c.Request.Context(), tenant(c), platform, days)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, metrics)
}

// GetPlatforms handles GET /api/platforms and reports what each adapter can do here.
func (h *InsightsHandler) GetPlatforms(c *gin.Context) {
	caps := make([]gin.H, 0, len(model.Platforms))
	for _, p := range model.Platforms {
		client, err := h.registry.Client(p)
		if err != nil {
			continue
		}
		_, oauthErr := h.registry.OAuth(p)
		_, adsErr := h.registry.Ads(p)
		rules := client.Rules()
		caps = append(caps, gin.H{
			"platform":       p,
			"connectable":    oauthErr == nil,
			"ads":            adsErr == nil,
			"max_caption":    rules.MaxCaption,
			"max_hashtags":   rules.MaxHashtags,
			"requires_media": rules.RequiresMedia,
		})
	}
	ok(c, caps)
}
