package reporting

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

const (
	pageWidth  = 190.0
	lineHeight = 6.0
	maxPDFRows = 200
)

// WritePDF renders one table per report, each on its own page.
func WritePDF(w io.Writer, reports []*MeasureReport) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 10)
	pdf.SetTitle("claimsiq measure report", true)
	pdf.SetCreator("claimsiq", true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	if len(reports) == 0 {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "", 11)
		pdf.Cell(0, lineHeight, "No measures evaluated.")
	}
	for _, r := range reports {
		pdf.AddPage()
		pdf.SetFont("Helvetica", "B", 14)
		pdf.CellFormat(0, 8, tr(r.MeasureName), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(0, 5, tr(subtitle(r)), "", 1, "L", false, 0, "")
		pdf.Ln(3)
		renderTable(pdf, tr, r)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to generate PDF output: %w", err)
	}
	return nil
}

func subtitle(r *MeasureReport) string {
	s := fmt.Sprintf("%s - generated %s", r.MeasureID, r.GeneratedAt.UTC().Format(time.RFC3339))
	if from, ok := r.Parameters["from"]; ok {
		s += " - from " + from
	}
	if to, ok := r.Parameters["to"]; ok {
		s += " - to " + to
	}
	return s
}

func renderTable(pdf *fpdf.Fpdf, tr func(string) string, r *MeasureReport) {
	if len(r.Columns) == 0 {
		return
	}
	colWidth := pageWidth / float64(len(r.Columns))

	pdf.SetFont("Helvetica", "B", 8)
	pdf.SetFillColor(230, 230, 230)
	for _, c := range r.Columns {
		pdf.CellFormat(colWidth, lineHeight, tr(c), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for i, row := range r.Results {
		if i == maxPDFRows {
			pdf.CellFormat(pageWidth, lineHeight, fmt.Sprintf("%d more rows omitted", len(r.Results)-maxPDFRows), "1", 1, "L", false, 0, "")
			break
		}
		for _, c := range r.Columns {
			align := "L"
			v := row[c]
			switch v.(type) {
			case float64, int64, int32, int:
				align = "R"
			}
			pdf.CellFormat(colWidth, lineHeight, tr(truncate(FormatValue(v), colWidth)), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(r.Results) == 0 {
		pdf.CellFormat(pageWidth, lineHeight, "No rows.", "1", 1, "L", false, 0, "")
	}
}

// truncate keeps a cell within its column at 8pt Helvetica, roughly 1.6mm
// per character.
func truncate(s string, width float64) string {
	maxChars := int(width / 1.6)
	if maxChars < 4 || len(s) <= maxChars {
		return s
	}
	return s[:maxChars-3] + "..."
}
