package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/export"
)

type documentLister interface {
	DocumentsFor(ctx context.Context, owner common.Address) ([]models.Document, bool, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportFile is a rendered history export.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
}

// ExportService renders an owner's document history. Exports are produced on
// request and never written to disk.
type ExportService struct {
	documents documentLister
	gateway   func(string) string
	csv       csvRenderer
	pdf       pdfRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService.
func NewExportService(documents documentLister, gateway func(string) string, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		documents: documents,
		gateway:   gateway,
		csv:       csv,
		pdf:       pdf,
		logger:    logger,
		now:       time.Now,
	}
}

var historyHeaders = []string{"Index", "CID", "Status", "Rejection Reason", "Gateway URL"}

// DocumentHistory renders owner's documents in format.
func (s *ExportService) DocumentHistory(ctx context.Context, owner common.Address, format models.ExportFormat) (*ExportFile, error) {
	docs, _, err := s.documents.DocumentsFor(ctx, owner)
	if err != nil {
		return nil, err
	}
	dataset := s.buildDataset(docs)

	var payload []byte
	switch format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Document history "+owner.Hex())
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported format %s", format))
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	s.logger.Debug("document history exported", zap.String("owner", owner.Hex()), zap.String("format", string(format)), zap.Int("rows", len(docs)))
	return &ExportFile{
		Filename:    s.buildFilename(owner, format),
		ContentType: format.ContentType(),
		Payload:     payload,
	}, nil
}

func (s *ExportService) buildDataset(docs []models.Document) export.Dataset {
	rows := make([]map[string]string, 0, len(docs))
	for _, doc := range docs {
		url := ""
		if s.gateway != nil {
			url = s.gateway(doc.CID)
		}
		rows = append(rows, map[string]string{
			"Index":            strconv.FormatUint(doc.Index, 10),
			"CID":              doc.CID,
			"Status":           doc.Status.String(),
			"Rejection Reason": doc.RejectionReason,
			"Gateway URL":      url,
		})
	}
	return export.Dataset{Headers: historyHeaders, Rows: rows, Weights: []float64{0.5, 3, 0.8, 2, 3.5}}
}

func (s *ExportService) buildFilename(owner common.Address, format models.ExportFormat) string {
	timestamp := s.now().UTC().Format("20060102_150405")
	return fmt.Sprintf("documents_%s_%s.%s", strings.ToLower(owner.Hex()), timestamp, format)
}
