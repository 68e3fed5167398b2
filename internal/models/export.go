package models

import "strings"

// ExportFormat enumerates supported history export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// ParseExportFormat normalises a format query value; empty defaults to CSV.
func ParseExportFormat(raw string) (ExportFormat, bool) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ExportFormatCSV:
		return ExportFormatCSV, true
	case ExportFormatPDF:
		return ExportFormatPDF, true
	default:
		return "", false
	}
}

// ContentType is the MIME type of the rendered export.
func (f ExportFormat) ContentType() string {
	if f == ExportFormatPDF {
		return "application/pdf"
	}
	return "text/csv"
}
