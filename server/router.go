package server

import (
	"time"

	"growth-automation/infrastructure/realtime"
	httpHandler "growth-automation/interfaces/http"
	"growth-automation/interfaces/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func InitiateRouter(
	secretKey string,
	allowedOrigins []string,
	connectionHandler httpHandler.IConnectionHandler,
	scheduleHandler httpHandler.IScheduleHandler,
	campaignHandler httpHandler.ICampaignHandler,
	insightsHandler httpHandler.IInsightsHandler,
	healthHandler httpHandler.IHealthHandler,
	hub *realtime.Hub,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", healthHandler.Healthz)

	// Provider redirects land here without a bearer token; the signed state carries the tenant.
	router.GET("/oauth/callback/:platform", connectionHandler.Callback)

	api := router.Group("api")
	api.Use(middleware.Auth(secretKey))

	api.GET("/platforms", insightsHandler.GetPlatforms)

	connections := api.Group("/connections")
	{
		connections.GET("", connectionHandler.List)
		connections.POST("/:platform/authorize", connectionHandler.Authorize)
		connections.DELETE("/:platform", connectionHandler.Disconnect)
	}

	api.POST("/schedule", scheduleHandler.Schedule)
	api.POST("/schedule/import", scheduleHandler.Import)
	api.POST("/publish/:itemId", scheduleHandler.PublishNow)
	api.POST("/scheduler/tick", scheduleHandler.Tick)

	items := api.Group("/items")
	{
		items.GET("", scheduleHandler.ListItems)
		items.GET("/stream", hub.Serve)
		items.PATCH("/bulk/reschedule", scheduleHandler.BulkReschedule)
		items.DELETE("/bulk", scheduleHandler.BulkDelete)
		items.POST("/bulk/publish", scheduleHandler.BulkPublish)
		items.POST("/bulk/retry", scheduleHandler.BulkRetry)
		items.GET("/:itemId", scheduleHandler.GetItem)
		items.GET("/:itemId/analytics", scheduleHandler.GetItemAnalytics)
	}

	campaigns := api.Group("/campaigns")
	{
		campaigns.GET("", campaignHandler.List)
		campaigns.POST("", campaignHandler.Launch)
		campaigns.POST("/rebalance", campaignHandler.Rebalance)
		campaigns.GET("/:id", campaignHandler.Get)
		campaigns.GET("/:id/performance", campaignHandler.Performance)
		campaigns.POST("/:id/optimize", campaignHandler.Optimize)
		campaigns.GET("/:id/decisions", campaignHandler.Decisions)
	}

	api.GET("/insights/:platform", insightsHandler.GetInsights)

	return router
}
