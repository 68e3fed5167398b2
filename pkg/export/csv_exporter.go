package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// Dataset is a table: Headers name the columns and key each row.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
	// Weights sizes PDF columns relative to each other; missing entries count as 1.
	Weights []float64
}

func (d Dataset) record(row map[string]string) []string {
	out := make([]string, len(d.Headers))
	for i, header := range d.Headers {
		out[i] = row[header]
	}
	return out
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVExporter writes datasets as RFC 4180 CSV.
type CSVExporter struct {
	// BOM prefixes the output with a UTF-8 byte order mark for spreadsheet imports.
	BOM bool
}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render returns the dataset as CSV bytes.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams the dataset to w. Cells a spreadsheet would evaluate as a
// formula are prefixed with a quote.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("csv requires at least one header")
	}
	if e.BOM {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("write csv bom: %w", err)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(data.Headers); err != nil {
		return fmt.Errorf("write csv headers: %w", err)
	}
	for n, row := range data.Rows {
		record := data.record(row)
		for i := range record {
			record[i] = neutralise(record[i])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %d: %w", n, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func neutralise(cell string) string {
	if cell != "" && strings.ContainsRune("=+-@\t\r", rune(cell[0])) {
		return "'" + cell
	}
	return cell
}
