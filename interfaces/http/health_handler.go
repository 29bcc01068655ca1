package http

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"growth-automation/infrastructure/logger"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type IHealthHandler interface {
	Healthz(c *gin.Context)
}

type HealthHandler struct {
	checks map[string]HealthCheck
}

func NewHealthHandler(checks map[string]HealthCheck) IHealthHandler {
	return &HealthHandler{checks: checks}
}

// Healthz returns OK when every registered dependency answers within two seconds.
func (h *HealthHandler) Healthz(ctx *gin.Context) {
	c, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	deps := gin.H{}
	for _, name := range names {
		if err := h.checks[name](c); err != nil {
			logger.GetLogger().WithField("dependency", name).WithField("error", err.Error()).Warn("Health check failed")
			deps[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		deps[name] = "ok"
	}
	label := "ok"
	if status != http.StatusOK {
		label = "degraded"
	}
	ctx.JSON(status, gin.H{"status": label, "dependencies": deps})
}
