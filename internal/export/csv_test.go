package export

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/classtrack/classtrack/internal/attendance"
)

func sliceSource(rows []attendance.ExportRow) RowSource {
	return func(fn func(attendance.ExportRow) error) error {
		for _, row := range rows {
			if err := fn(row); err != nil {
				return err
			}
		}
		return nil
	}
}

func TestWriteCSV(t *testing.T) {
	rows := []attendance.ExportRow{
		{Date: "2026-03-02", Time: "09:01", StudentName: "Asha Rao", ClassName: "Math 101", Status: attendance.StatusPresent},
		{Date: "2026-03-02", Time: "09:22", StudentName: "Ben, Jr.", ClassName: "Math 101", Status: attendance.StatusLate},
	}

	var buf bytes.Buffer
	if err := WriteCSV(&buf, sliceSource(rows)); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), buf.String())
	}
	if lines[0] != "Date,Time,Student Name,Class,Status" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "2026-03-02,09:01,Asha Rao,Math 101,PRESENT" {
		t.Errorf("row 1 = %q", lines[1])
	}
	// Comma in the name must be quoted.
	if lines[2] != `2026-03-02,09:22,"Ben, Jr.",Math 101,LATE` {
		t.Errorf("row 2 = %q", lines[2])
	}
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, sliceSource(nil)); err != nil {
		t.Fatalf("WriteCSV() error = %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "Date,Time,Student Name,Class,Status" {
		t.Errorf("empty export = %q, want header only", got)
	}
}

func TestWriteCSVSourceError(t *testing.T) {
	wantErr := errors.New("query died")
	var buf bytes.Buffer
	err := WriteCSV(&buf, func(func(attendance.ExportRow) error) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("WriteCSV() error = %v, want %v", err, wantErr)
	}
}

func TestWritePDF(t *testing.T) {
	rows := []attendance.ExportRow{
		{Date: "2026-03-02", Time: "09:01", StudentName: "Asha Rao", ClassName: "Math 101", Status: attendance.StatusPresent},
	}

	var buf bytes.Buffer
	if err := WritePDF(&buf, "Attendance Report", "Period: 2026-03-02 to 2026-03-02", 100, sliceSource(rows)); err != nil {
		t.Fatalf("WritePDF() error = %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("%PDF")) {
		t.Errorf("output does not start with %%PDF header")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short ascii", in: "Asha", max: 30, want: "Asha"},
		{name: "long ascii", in: "abcdefgh", max: 5, want: "abcde"},
		{name: "exact length", in: "abcde", max: 5, want: "abcde"},
		{name: "multibyte kept whole", in: "Nguyễn Thị Ánh", max: 9, want: "Nguyễn Th"},
		{name: "multibyte short enough", in: "Ánh", max: 5, want: "Ánh"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.max)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate(%q, %d) produced invalid UTF-8", tt.in, tt.max)
			}
		})
	}
}

func TestWritePDFCapsRows(t *testing.T) {
	many := make([]attendance.ExportRow, 500)
	for i := range many {
		many[i] = attendance.ExportRow{Date: "2026-03-02", Time: "09:00", StudentName: "S", ClassName: "C", Status: attendance.StatusPresent}
	}

	var capped, full bytes.Buffer
	if err := WritePDF(&capped, "Report", "", 10, sliceSource(many)); err != nil {
		t.Fatalf("WritePDF() capped error = %v", err)
	}
	if err := WritePDF(&full, "Report", "", 500, sliceSource(many)); err != nil {
		t.Fatalf("WritePDF() full error = %v", err)
	}
	if capped.Len() >= full.Len() {
		t.Errorf("capped output (%d bytes) not smaller than full (%d bytes)", capped.Len(), full.Len())
	}
}
