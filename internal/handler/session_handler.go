package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kyc-attestation-api/internal/dto"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/response"
)

type sessionService interface {
	Challenge(ctx context.Context, req dto.ChallengeRequest) (*dto.ChallengeResponse, error)
	Connect(ctx context.Context, req dto.ConnectRequest) (*models.IssuedSession, error)
	Disconnect(ctx context.Context, session *models.Session) error
}

// SessionHandler wires wallet connect and disconnect endpoints.
type SessionHandler struct {
	service sessionService
}

// NewSessionHandler creates a new handler.
func NewSessionHandler(svc sessionService) *SessionHandler {
	return &SessionHandler{service: svc}
}

// Challenge godoc
// @Summary Request a sign-in challenge
// @Description Returns the message the wallet must sign to open a session
// @Tags Session
// @Accept json
// @Produce json
// @Param payload body dto.ChallengeRequest true "Wallet address"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /session/challenge [post]
func (h *SessionHandler) Challenge(c *gin.Context) {
	var req dto.ChallengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid challenge payload"))
		return
	}
	res, err := h.service.Challenge(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res)
}

// Connect godoc
// @Summary Open a wallet session
// @Description Verifies the signed challenge and issues a session token
// @Tags Session
// @Accept json
// @Produce json
// @Param payload body dto.ConnectRequest true "Signed challenge"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /session/connect [post]
func (h *SessionHandler) Connect(c *gin.Context) {
	var req dto.ConnectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid connect payload"))
		return
	}
	issued, err := h.service.Connect(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.SessionResponse{
		Token:     issued.Token,
		Address:   issued.Address.Hex(),
		ExpiresAt: issued.ExpiresAt,
	})
}

// Disconnect godoc
// @Summary Close the wallet session
// @Tags Session
// @Security BearerAuth
// @Success 204
// @Failure 401 {object} response.Envelope
// @Router /session/disconnect [post]
func (h *SessionHandler) Disconnect(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	if err := h.service.Disconnect(c.Request.Context(), session); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
