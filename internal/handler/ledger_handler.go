package handler

import (
	"context"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kyc-attestation-api/internal/dto"
	"github.com/noah-isme/kyc-attestation-api/internal/ledger"
	"github.com/noah-isme/kyc-attestation-api/internal/middleware"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	"github.com/noah-isme/kyc-attestation-api/internal/service"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/response"
)

type ledgerService interface {
	DocumentsFor(ctx context.Context, owner common.Address) ([]models.Document, bool, error)
	PendingQueue(ctx context.Context, session *models.Session) ([]models.PendingEntry, bool, error)
	Attester(ctx context.Context, address common.Address) (*models.Attester, bool, error)
	Statistics(ctx context.Context) (*models.Statistics, bool, error)
	RequiredStake(ctx context.Context) (*big.Int, error)
	SubmitDocument(ctx context.Context, session *models.Session, rawCID string) (*ledger.Receipt, error)
	BecomeAttester(ctx context.Context, session *models.Session, value *big.Int) (*ledger.Receipt, error)
	ApproveDocument(ctx context.Context, session *models.Session, owner common.Address, index *big.Int) (*ledger.Receipt, error)
	RejectDocument(ctx context.Context, session *models.Session, owner common.Address, index *big.Int, reason string) (*ledger.Receipt, error)
}

// LedgerHandler exposes the attestation ledger: documents, attesters and statistics.
type LedgerHandler struct {
	service ledgerService
	gateway func(string) string
}

// NewLedgerHandler constructs the handler. gateway builds content links.
func NewLedgerHandler(svc ledgerService, gateway func(string) string) *LedgerHandler {
	return &LedgerHandler{service: svc, gateway: gateway}
}

// Statistics godoc
// @Summary Ledger statistics
// @Tags Ledger
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /statistics [get]
func (h *LedgerHandler) Statistics(c *gin.Context) {
	stats, hit, err := h.service.Statistics(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	respond(c, http.StatusOK, dto.NewStatisticsResponse(stats))
}

// Documents godoc
// @Summary Documents of an account
// @Description Lists the documents recorded by address ordered by index
// @Tags Documents
// @Produce json
// @Param address path string true "Owner address"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /documents/{address} [get]
func (h *LedgerHandler) Documents(c *gin.Context) {
	owner, err := service.ParseAddress(c.Param("address"))
	if err != nil {
		response.Error(c, err)
		return
	}
	docs, hit, err := h.service.DocumentsFor(c.Request.Context(), owner)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	respond(c, http.StatusOK, dto.NewDocumentResponses(docs, h.gateway))
}

// Submit godoc
// @Summary Record a content identifier
// @Tags Documents
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.SubmitDocumentRequest true "Content identifier"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /documents [post]
func (h *LedgerHandler) Submit(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	var req dto.SubmitDocumentRequest
	if !bindJSON(c, &req, "invalid document payload") {
		return
	}
	receipt, err := h.service.SubmitDocument(c.Request.Context(), session, req.CID)
	respondReceipt(c, http.StatusCreated, receipt, err)
}

// Stake godoc
// @Summary Required attester stake
// @Tags Attesters
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /attesters/stake [get]
func (h *LedgerHandler) Stake(c *gin.Context) {
	stake, err := h.service.RequiredStake(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, dto.StakeResponse{RequiredStake: stake.String()})
}

// Attester godoc
// @Summary Attester record of an account
// @Tags Attesters
// @Produce json
// @Param address path string true "Account address"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /attesters/{address} [get]
func (h *LedgerHandler) Attester(c *gin.Context) {
	address, err := service.ParseAddress(c.Param("address"))
	if err != nil {
		response.Error(c, err)
		return
	}
	attester, hit, err := h.service.Attester(c.Request.Context(), address)
	if err != nil {
		response.Error(c, err)
		return
	}
	stake, err := h.service.RequiredStake(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	respond(c, http.StatusOK, dto.NewAttesterResponse(attester, stake))
}

// BecomeAttester godoc
// @Summary Stake and register as attester
// @Description Omitting value stakes exactly the required amount
// @Tags Attesters
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param payload body dto.BecomeAttesterRequest false "Stake in wei"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /attesters [post]
func (h *LedgerHandler) BecomeAttester(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	var req dto.BecomeAttesterRequest
	if c.Request.ContentLength != 0 && !bindJSON(c, &req, "invalid stake payload") {
		return
	}
	var value *big.Int
	if req.Value != "" {
		parsed, ok := new(big.Int).SetString(req.Value, 10)
		if !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "value must be a decimal amount in wei"))
			return
		}
		value = parsed
	}
	receipt, err := h.service.BecomeAttester(c.Request.Context(), session, value)
	respondReceipt(c, http.StatusCreated, receipt, err)
}

// Pending godoc
// @Summary Pending documents awaiting attestation
// @Tags Attesters
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /attesters/pending [get]
func (h *LedgerHandler) Pending(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	entries, hit, err := h.service.PendingQueue(c.Request.Context(), session)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, hit)
	respond(c, http.StatusOK, dto.NewPendingResponses(entries, h.gateway))
}

// Approve godoc
// @Summary Approve a pending document
// @Tags Attesters
// @Security BearerAuth
// @Produce json
// @Param owner path string true "Document owner"
// @Param index path string true "Document index"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /attesters/pending/{owner}/{index}/approve [post]
func (h *LedgerHandler) Approve(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	owner, index, ok := documentRef(c)
	if !ok {
		return
	}
	receipt, err := h.service.ApproveDocument(c.Request.Context(), session, owner, index)
	respondReceipt(c, http.StatusOK, receipt, err)
}

// Reject godoc
// @Summary Reject a pending document
// @Tags Attesters
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param owner path string true "Document owner"
// @Param index path string true "Document index"
// @Param payload body dto.RejectDocumentRequest true "Rejection reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /attesters/pending/{owner}/{index}/reject [post]
func (h *LedgerHandler) Reject(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	owner, index, ok := documentRef(c)
	if !ok {
		return
	}
	var req dto.RejectDocumentRequest
	if !bindJSON(c, &req, "invalid rejection payload") {
		return
	}
	receipt, err := h.service.RejectDocument(c.Request.Context(), session, owner, index, req.Reason)
	respondReceipt(c, http.StatusOK, receipt, err)
}

func documentRef(c *gin.Context) (common.Address, *big.Int, bool) {
	owner, err := service.ParseAddress(c.Param("owner"))
	if err != nil {
		response.Error(c, err)
		return common.Address{}, nil, false
	}
	index, err := service.ParseIndex(c.Param("index"))
	if err != nil {
		response.Error(c, err)
		return common.Address{}, nil, false
	}
	return owner, index, true
}

func respondReceipt(c *gin.Context, status int, receipt *ledger.Receipt, err error) {
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetTransaction(c, receipt.TxHash.Hex(), receipt.BlockNumber)
	respond(c, status, dto.NewReceiptResponse(receipt))
}
