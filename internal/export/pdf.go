package export

import (
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/classtrack/classtrack/internal/attendance"
)

// WritePDF renders rows as a tabular PDF report. At most maxRows rows are
// drawn; the rest of the stream is drained and ignored.
func WritePDF(w io.Writer, title, period string, maxRows int, source RowSource) error {
	if maxRows <= 0 {
		maxRows = 100
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)

	if period != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.Cell(0, 5, period)
		pdf.Ln(8)
	}

	widths := []float64{30, 20, 60, 50, 25}
	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(67, 56, 202)
	pdf.SetTextColor(255, 255, 255)
	for i, col := range columns {
		pdf.CellFormat(widths[i], 8, col, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFillColor(248, 250, 252)

	n := 0
	err := source(func(row attendance.ExportRow) error {
		if n >= maxRows {
			return nil
		}
		n++
		cells := []string{
			row.Date,
			row.Time,
			truncate(row.StudentName, 30),
			truncate(row.ClassName, 25),
			strings.ToUpper(string(row.Status)),
		}
		for i, cell := range cells {
			pdf.CellFormat(widths[i], 7, cell, "1", 0, "C", n%2 == 0, 0, "")
		}
		pdf.Ln(-1)
		return nil
	})
	if err != nil {
		return err
	}

	return pdf.Output(w)
}

// truncate cuts on rune boundaries so multi-byte names are never split
// mid-character.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}
