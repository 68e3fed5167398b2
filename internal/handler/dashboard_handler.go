package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kyc-attestation-api/internal/dto"
	"github.com/noah-isme/kyc-attestation-api/internal/middleware"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/response"
)

type dashboardService interface {
	Summary(ctx context.Context, session *models.Session) (*dto.DashboardResponse, bool, error)
}

// DashboardHandler wires dashboard service to HTTP endpoints.
type DashboardHandler struct {
	service dashboardService
}

// NewDashboardHandler constructs the handler.
func NewDashboardHandler(service dashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Summary godoc
// @Summary Connected account dashboard
// @Description Statistics, own documents, attester flag and pending count
// @Tags Dashboard
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /dashboard [get]
func (h *DashboardHandler) Summary(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.ErrInternal)
		return
	}
	session, ok := requireSession(c)
	if !ok {
		return
	}
	summary, cacheHit, err := h.service.Summary(c.Request.Context(), session)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	respond(c, http.StatusOK, summary)
}
