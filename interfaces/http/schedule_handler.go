package http

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"growth-automation/domain/dto"
	"growth-automation/domain/model"
	"growth-automation/infrastructure/filecsv"
	"growth-automation/usecase"
)

type IScheduleHandler interface {
	Schedule(c *gin.Context)
	Import(c *gin.Context)
	PublishNow(c *gin.Context)
	ListItems(c *gin.Context)
	GetItem(c *gin.Context)
	GetItemAnalytics(c *gin.Context)
	BulkReschedule(c *gin.Context)
	BulkDelete(c *gin.Context)
	BulkPublish(c *gin.Context)
	BulkRetry(c *gin.Context)
	Tick(c *gin.Context)
}

type ScheduleHandler struct {
	scheduler usecase.ISchedulerUsecase
}

func NewScheduleHandler(scheduler usecase.ISchedulerUsecase) IScheduleHandler {
	return &ScheduleHandler{scheduler: scheduler}
}

// Schedule handles POST /api/schedule
func (h *ScheduleHandler) Schedule(c *gin.Context) {
	var req dto.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	policy, err := timingPolicy(req)
	if err != nil {
		fail(c, err)
		return
	}
	items, err := h.scheduler.Schedule(c.Request.Context(), tenant(c), req.Items, policy)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, items)
}

func timingPolicy(req dto.ScheduleRequest) (model.TimingPolicy, error) {
	policy := model.TimingPolicy{
		Timezone:       req.Timezone,
		PreferredTimes: req.PreferredTimes,
		Draft:          req.Draft,
	}
	if req.Start != nil {
		policy.Start = *req.Start
	}
	if len(req.MinSpacingMinutes) > 0 {
		policy.MinSpacing = make(map[model.Platform]time.Duration, len(req.MinSpacingMinutes))
		for key, minutes := range req.MinSpacingMinutes {
			p, found := model.ParsePlatform(key)
			if !found {
				return policy, fmt.Errorf("spacing for unknown platform %q: %w", key, model.ErrValidation)
			}
			if minutes < 0 {
				return policy, fmt.Errorf("negative spacing for %s: %w", p, model.ErrValidation)
			}
			policy.MinSpacing[p] = time.Duration(minutes) * time.Minute
		}
	}
	return policy, nil
}

// Import handles POST /api/schedule/import with a multipart "file" holding a content calendar CSV.
// timezone, preferredTimes (comma separated) and draft are read from the query.
func (h *ScheduleHandler) Import(c *gin.Context) {
	header, err := c.FormFile("file")
	if err != nil {
		badRequest(c, err)
		return
	}
	file, err := header.Open()
	if err != nil {
		fail(c, err)
		return
	}
	defer file.Close()

	planned, err := filecsv.ReadPlannedItems(file)
	if err != nil {
		fail(c, err)
		return
	}
	policy := model.TimingPolicy{
		Timezone: c.Query("timezone"),
		Draft:    c.Query("draft") == "true",
	}
	if v := c.Query("preferredTimes"); v != "" {
		policy.PreferredTimes = strings.Split(v, ",")
	}
	items, err := h.scheduler.Schedule(c.Request.Context(), tenant(c), planned, policy)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, items)
}

// PublishNow handles POST /api/publish/:itemId
func (h *ScheduleHandler) PublishNow(c *gin.Context) {
	item, err := h.scheduler.PublishNow(c.Request.Context(), tenant(c), c.Param("itemId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, item)
}

// ListItems handles GET /api/items?status=&limit=
func (h *ScheduleHandler) ListItems(c *gin.Context) {
	limit := 100
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	items, err := h.scheduler.ListItems(c.Request.Context(), tenant(c), model.ItemStatus(c.Query("status")), limit)
	if err != nil {
		fail(c, err)
		return
	}
	if items == nil {
		items = []*model.ScheduledItem{}
	}
	ok(c, items)
}

// GetItem handles GET /api/items/:itemId
func (h *ScheduleHandler) GetItem(c *gin.Context) {
	item, err := h.scheduler.GetItem(c.Request.Context(), tenant(c), c.Param("itemId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, item)
}

// GetItemAnalytics handles GET /api/items/:itemId/analytics
func (h *ScheduleHandler) GetItemAnalytics(c *gin.Context) {
	metrics, err := h.scheduler.GetItemAnalytics(c.Request.Context(), tenant(c), c.Param("itemId"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, metrics)
}

// BulkReschedule handles PATCH /api/items/bulk/reschedule
func (h *ScheduleHandler) BulkReschedule(c *gin.Context) {
	var req dto.BulkRescheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	offset := time.Duration(req.OffsetMinutes) * time.Minute
	ok(c, dto.BulkResponse{Results: h.scheduler.BulkReschedule(c.Request.Context(), tenant(c), req.IDs, offset)})
}

// BulkDelete handles DELETE /api/items/bulk
func (h *ScheduleHandler) BulkDelete(c *gin.Context) {
	var req dto.BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ok(c, dto.BulkResponse{Results: h.scheduler.BulkDelete(c.Request.Context(), tenant(c), req.IDs)})
}

// BulkPublish handles POST /api/items/bulk/publish
func (h *ScheduleHandler) BulkPublish(c *gin.Context) {
	var req dto.BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ok(c, dto.BulkResponse{Results: h.scheduler.BulkPublish(c.Request.Context(), tenant(c), req.IDs)})
}

// BulkRetry handles POST /api/items/bulk/retry
func (h *ScheduleHandler) BulkRetry(c *gin.Context) {
	var req dto.BulkIDsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ok(c, dto.BulkResponse{Results: h.scheduler.BulkRetry(c.Request.Context(), tenant(c), req.IDs)})
}

// Tick allows manual triggering of one scheduler pass (admin/dev utility)
func (h *ScheduleHandler) Tick(c *gin.Context) {
	report, err := h.scheduler.Tick(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.Res{ResponseCode: "200", ResponseMessage: "Tick processed", Data: report})
}
