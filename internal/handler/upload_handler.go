package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/noah-isme/kyc-attestation-api/internal/dto"
	"github.com/noah-isme/kyc-attestation-api/internal/ledger"
	"github.com/noah-isme/kyc-attestation-api/internal/middleware"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/lighthouse"
	"github.com/noah-isme/kyc-attestation-api/pkg/response"
)

// multipartOverhead covers form boundaries and headers around the file part.
const multipartOverhead = 1 << 20

type uploadService interface {
	Upload(ctx context.Context, session *models.Session, file lighthouse.File, progress lighthouse.ProgressFunc) (*models.UploadResult, error)
	UploadAndSubmit(ctx context.Context, session *models.Session, file lighthouse.File, progress lighthouse.ProgressFunc) (*models.UploadResult, *ledger.Receipt, error)
	ResubmitUpload(ctx context.Context, session *models.Session, id string) (*ledger.Receipt, error)
	ListUnsubmitted(ctx context.Context, session *models.Session) ([]models.UploadRecord, error)
}

// UploadHandler accepts document uploads.
type UploadHandler struct {
	service     uploadService
	maxFileSize int64
}

// NewUploadHandler constructs the handler.
func NewUploadHandler(svc uploadService, maxFileSize int64) *UploadHandler {
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024
	}
	return &UploadHandler{service: svc, maxFileSize: maxFileSize}
}

// Upload godoc
// @Summary Upload a KYC document
// @Description Encrypts and stores the file, optionally recording its CID on the ledger
// @Tags Uploads
// @Security BearerAuth
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Document (.pdf, .jpg, .jpeg, .png)"
// @Param submit formData bool false "Record the CID on the ledger"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /documents/upload [post]
func (h *UploadHandler) Upload(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+multipartOverhead)
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	if fileHeader.Size > h.maxFileSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds the maximum upload size"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open file"))
		return
	}
	defer src.Close()
	content, err := io.ReadAll(src)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to buffer file"))
		return
	}
	submit, _ := strconv.ParseBool(c.PostForm("submit"))

	var progress float64
	track := func(fraction float64) { progress = fraction }
	file := lighthouse.File{Name: fileHeader.Filename, Content: content}

	var (
		result  *models.UploadResult
		receipt *ledger.Receipt
	)
	if submit {
		result, receipt, err = h.service.UploadAndSubmit(c.Request.Context(), session, file, track)
	} else {
		result, err = h.service.Upload(c.Request.Context(), session, file, track)
	}
	if result == nil || !result.Success {
		response.Error(c, err)
		return
	}

	body := dto.NewUploadResponse(result)
	if receipt != nil {
		body.Submission = dto.NewReceiptResponse(receipt)
		middleware.SetTransaction(c, receipt.TxHash.Hex(), receipt.BlockNumber)
	}
	if err != nil {
		body.SubmitError = appErrors.FromError(err).Message
	}
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["upload_progress"] = progress
	response.JSON(c, http.StatusCreated, body, meta)
}

// Unsubmitted godoc
// @Summary Uploads not yet recorded on the ledger
// @Tags Uploads
// @Security BearerAuth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /uploads/unsubmitted [get]
func (h *UploadHandler) Unsubmitted(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	records, err := h.service.ListUnsubmitted(c.Request.Context(), session)
	if err != nil {
		response.Error(c, err)
		return
	}
	respond(c, http.StatusOK, dto.NewUploadRecordResponses(records))
}

// Resubmit godoc
// @Summary Retry recording a journaled upload on the ledger
// @Tags Uploads
// @Security BearerAuth
// @Produce json
// @Param id path string true "Upload ID"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /uploads/{id}/submit [post]
func (h *UploadHandler) Resubmit(c *gin.Context) {
	session, ok := requireSession(c)
	if !ok {
		return
	}
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid upload id"))
		return
	}
	receipt, err := h.service.ResubmitUpload(c.Request.Context(), session, id)
	respondReceipt(c, http.StatusCreated, receipt, err)
}
