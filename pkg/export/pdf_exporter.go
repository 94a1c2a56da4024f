package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const landscapeColumnThreshold = 6

// PDFExporter renders datasets into a tabular PDF report.
type PDFExporter struct {
	maxCellRunes int
}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{maxCellRunes: 48}
}

// Render creates a PDF document with the dataset title, summary lines and table body.
func (e *PDFExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	orientation, width := "P", 190.0
	if len(data.Headers) >= landscapeColumnThreshold {
		orientation, width = "L", 277.0
	}
	pdf := gofpdf.New(orientation, "mm", "A4", "")
	pdf.SetMargins(10, 15, 10)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if data.Title != "" {
		pdf.SetFont("Arial", "B", 14)
		pdf.CellFormat(0, 10, tr(data.Title), "", 1, "C", false, 0, "")
	}
	if len(data.Summary) > 0 {
		pdf.SetFont("Arial", "", 9)
		for _, line := range data.Summary {
			pdf.CellFormat(0, 6, tr(line), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(4)

	colWidth := width / float64(len(data.Headers))
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, tr(header), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, tr(e.truncate(row[header])), "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) truncate(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	runes := []rune(value)
	if e.maxCellRunes <= 0 || len(runes) <= e.maxCellRunes {
		return value
	}
	return string(runes[:e.maxCellRunes-3]) + "..."
}
