// Package export renders attendance rows as CSV and PDF downloads.
package export

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/classtrack/classtrack/internal/attendance"
)

var columns = []string{"Date", "Time", "Student Name", "Class", "Status"}

// RowSource streams export rows into fn; each invocation re-queries.
type RowSource func(fn func(attendance.ExportRow) error) error

// WriteCSV streams rows as CSV, one row at a time, header first.
func WriteCSV(w io.Writer, source RowSource) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	err := source(func(row attendance.ExportRow) error {
		return cw.Write([]string{
			row.Date,
			row.Time,
			row.StudentName,
			row.ClassName,
			strings.ToUpper(string(row.Status)),
		})
	})
	if err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}
