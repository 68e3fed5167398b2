package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

const (
	pageWidth   = 277.0
	cellPadding = 2.0
)

// PDFExporter renders datasets into a landscape tabular PDF.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render creates a PDF document with an optional title and a table body whose
// cells wrap instead of overflowing.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	if title != "" {
		pdf.SetFont("Arial", "B", 13)
		pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
		pdf.Ln(3)
	}

	widths := columnWidths(data)
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, header := range data.Headers {
		pdf.CellFormat(widths[i], 8, tr(header), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	const lineHeight = 5.0
	for _, row := range data.Rows {
		lines := 1
		cells := make([][][]byte, len(data.Headers))
		for i, value := range data.record(row) {
			cells[i] = pdf.SplitLines([]byte(tr(value)), widths[i]-cellPadding)
			if len(cells[i]) > lines {
				lines = len(cells[i])
			}
		}
		height := float64(lines) * lineHeight
		if pdf.GetY()+height > 195 {
			pdf.AddPage()
		}
		x, y := pdf.GetXY()
		for i := range data.Headers {
			pdf.Rect(x, y, widths[i], height, "D")
			for l, line := range cells[i] {
				pdf.SetXY(x+cellPadding/2, y+float64(l)*lineHeight)
				pdf.CellFormat(widths[i]-cellPadding, lineHeight, string(line), "", 0, "", false, 0, "")
			}
			x += widths[i]
		}
		pdf.SetXY(10, y+height)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func columnWidths(data Dataset) []float64 {
	weights := make([]float64, len(data.Headers))
	total := 0.0
	for i := range weights {
		weights[i] = 1
		if i < len(data.Weights) && data.Weights[i] > 0 {
			weights[i] = data.Weights[i]
		}
		total += weights[i]
	}
	for i := range weights {
		weights[i] = pageWidth * weights[i] / total
	}
	return weights
}
