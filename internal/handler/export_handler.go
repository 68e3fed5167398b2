package handler

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kyc-attestation-api/internal/models"
	"github.com/noah-isme/kyc-attestation-api/internal/service"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/response"
)

type exportService interface {
	DocumentHistory(ctx context.Context, owner common.Address, format models.ExportFormat) (*service.ExportFile, error)
}

// ExportHandler serves document history downloads.
type ExportHandler struct {
	service exportService
}

// NewExportHandler constructs the handler.
func NewExportHandler(svc exportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// DocumentHistory godoc
// @Summary Export document history
// @Tags Documents
// @Produce text/csv
// @Produce application/pdf
// @Param address path string true "Owner address"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Router /documents/{address}/export [get]
func (h *ExportHandler) DocumentHistory(c *gin.Context) {
	owner, err := service.ParseAddress(c.Param("address"))
	if err != nil {
		response.Error(c, err)
		return
	}
	format, ok := models.ParseExportFormat(c.Query("format"))
	if !ok {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf"))
		return
	}
	file, err := h.service.DocumentHistory(c.Request.Context(), owner, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}
