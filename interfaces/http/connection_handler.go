package http

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"

	"growth-automation/domain/dto"
	"growth-automation/domain/model"
	"growth-automation/infrastructure/logger"
	"growth-automation/usecase"
)

type IConnectionHandler interface {
	Authorize(c *gin.Context)
	Callback(c *gin.Context)
	Disconnect(c *gin.Context)
	List(c *gin.Context)
}

type ConnectionHandler struct {
	credentials     usecase.ICredentialUsecase
	confirmationURL string
}

// NewConnectionHandler serves the OAuth connect flow. confirmationURL is where the
// browser lands after the provider callback; an empty value answers with JSON instead.
func NewConnectionHandler(credentials usecase.ICredentialUsecase, confirmationURL string) IConnectionHandler {
	return &ConnectionHandler{credentials: credentials, confirmationURL: confirmationURL}
}

// Authorize handles POST /api/connections/:platform/authorize
func (h *ConnectionHandler) Authorize(c *gin.Context) {
	platform, found := platformParam(c)
	if !found {
		return
	}
	authURL, err := h.credentials.BeginAuthorization(c.Request.Context(), tenant(c), platform)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.AuthorizeResponse{AuthorizationURL: authURL})
}

// Callback handles GET /oauth/callback/:platform
func (h *ConnectionHandler) Callback(c *gin.Context) {
	platform, found := platformParam(c)
	if !found {
		return
	}
	if denied := c.Query("error"); denied != "" {
		logger.GetLogger().WithFields(map[string]interface{}{
			"platform": platform,
			"error":    denied,
		}).Warn("Provider denied authorization")
		h.finish(c, platform, "denied", c.Query("error_description"))
		return
	}

	summary, err := h.credentials.CompleteAuthorization(c.Request.Context(), platform, c.Query("code"), c.Query("state"))
	if err != nil {
		if errors.Is(err, model.ErrInvalidState) {
			c.JSON(http.StatusBadRequest, dto.Res{ResponseCode: "400", ResponseMessage: err.Error()})
			return
		}
		logger.GetLogger().WithFields(map[string]interface{}{
			"platform": platform,
			"error":    err,
		}).Error("Authorization callback failed")
		h.finish(c, platform, "error", err.Error())
		return
	}
	if h.confirmationURL == "" {
		ok(c, summary)
		return
	}
	h.finish(c, platform, "connected", summary.AccountName)
}

func (h *ConnectionHandler) finish(c *gin.Context, platform model.Platform, status, detail string) {
	if h.confirmationURL == "" {
		code := http.StatusBadGateway
		if status == "denied" {
			code = http.StatusForbidden
		}
		c.JSON(code, dto.Res{ResponseCode: strconv.Itoa(code), ResponseMessage: detail})
		return
	}
	target, err := url.Parse(h.confirmationURL)
	if err != nil {
		fail(c, model.ErrConfiguration)
		return
	}
	q := target.Query()
	q.Set("platform", string(platform))
	q.Set("status", status)
	if detail != "" {
		q.Set("detail", detail)
	}
	target.RawQuery = q.Encode()
	c.Redirect(http.StatusFound, target.String())
}

// Disconnect handles DELETE /api/connections/:platform
func (h *ConnectionHandler) Disconnect(c *gin.Context) {
	platform, found := platformParam(c)
	if !found {
		return
	}
	if err := h.credentials.Revoke(c.Request.Context(), tenant(c), platform); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// List handles GET /api/connections
func (h *ConnectionHandler) List(c *gin.Context) {
	conns, err := h.credentials.ListConnections(c.Request.Context(), tenant(c))
	if err != nil {
		fail(c, err)
		return
	}
	if conns == nil {
		conns = []model.ConnectionSummary{}
	}
	ok(c, conns)
}
