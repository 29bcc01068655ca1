package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"growth-automation/domain/dto"
	"growth-automation/domain/model"
	"growth-automation/infrastructure/logger"
)

const (
	ErrorUnmarshal = "Error while unmarshal"
)

// statusOf maps domain sentinels to HTTP status codes. Unknown errors are 500.
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrValidation),
		errors.Is(err, model.ErrInvalidState),
		errors.Is(err, model.ErrContentTooLong),
		errors.Is(err, model.ErrContentRejected),
		errors.Is(err, model.ErrUnsupportedPlatform):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict), errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, model.ErrReauthorizationRequired), errors.Is(err, model.ErrNoRefreshToken):
		return http.StatusPreconditionFailed
	case errors.Is(err, model.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrProviderUnavailable),
		errors.Is(err, model.ErrUnauthorized),
		errors.Is(err, model.ErrMediaUpload):
		return http.StatusBadGateway
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, dto.Res{ResponseCode: "200", ResponseMessage: "Success", Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, dto.Res{ResponseCode: "201", ResponseMessage: "Created", Data: data})
}

func fail(c *gin.Context, err error) {
	status := statusOf(err)
	entry := logger.GetLogger().WithFields(map[string]interface{}{
		"tenant": c.GetString("tenant_id"),
		"path":   c.FullPath(),
		"status": status,
		"error":  err,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}
	c.JSON(status, dto.Res{ResponseCode: strconv.Itoa(status), ResponseMessage: err.Error()})
}

func badRequest(c *gin.Context, err error) {
	logger.GetLogger().WithField("error", err).Error(ErrorUnmarshal)
	c.JSON(http.StatusBadRequest, dto.Res{ResponseCode: "400", ResponseMessage: ErrorUnmarshal + " " + err.Error()})
}

// platformParam resolves the :platform path segment or writes a 400.
func platformParam(c *gin.Context) (model.Platform, bool) {
	p, found := model.ParsePlatform(c.Param("platform"))
	if !found {
		c.JSON(http.StatusBadRequest, dto.Res{ResponseCode: "400", ResponseMessage: "unknown platform " + c.Param("platform")})
		return "", false
	}
	return p, true
}

func tenant(c *gin.Context) string { return c.GetString("tenant_id") }
