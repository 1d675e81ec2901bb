package attendance

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"
)

// fakeDayStore backs both the evaluator and the aggregator so a full scan day
// can be exercised in one place.
type fakeDayStore struct {
	*fakeEvalStore
}

func (s *fakeDayStore) EnrolledCount(_ context.Context, classID string) (int, error) {
	n := 0
	for key := range s.enrolled {
		if classID == "" || strings.HasSuffix(key, "|"+classID) {
			n++
		}
	}
	return n, nil
}

func (s *fakeDayStore) StatusCountsByDay(_ context.Context, classID string, from, to time.Time) (map[string]DayCounts, error) {
	out := make(map[string]DayCounts)
	for _, rec := range s.records {
		if classID != "" && rec.ClassID != classID {
			continue
		}
		if rec.Day < DayOf(from) || rec.Day > DayOf(to) {
			continue
		}
		c := out[rec.Day]
		switch rec.Status {
		case StatusPresent:
			c.Present++
		case StatusLate:
			c.Late++
		case StatusAbsent:
			c.Absent++
		}
		out[rec.Day] = c
	}
	return out, nil
}

func (s *fakeDayStore) RecentRecords(_ context.Context, _ Filter, limit int) ([]Record, error) {
	var out []Record
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeDayStore) ForEachExportRow(_ context.Context, f Filter, fn func(ExportRow) error) error {
	var recs []Record
	for _, rec := range s.records {
		if f.DateFrom != "" && rec.Day < f.DateFrom {
			continue
		}
		if f.DateTo != "" && rec.Day > f.DateTo {
			continue
		}
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
	for _, rec := range recs {
		if err := fn(ExportRow{
			Date:        rec.Day,
			Time:        rec.Timestamp.Format("15:04"),
			StudentName: rec.StudentName,
			ClassName:   rec.ClassName,
			Status:      rec.Status,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeDayStore) Totals(context.Context) (int, int, error) {
	return len(s.enrolled), 1, nil
}

// Full scan day: 09:00 start, 15 minute grace, three enrolled students. One
// scans inside the grace window, duplicates once, one scans late, one never
// scans. Counts and export must agree with what was written.
func TestScanDayScenario(t *testing.T) {
	fixedNow(t, "2026-03-02")

	store := &fakeDayStore{fakeEvalStore: newFakeEvalStore()}
	for _, id := range []string{"s1", "s2", "s3"} {
		store.enroll(id, "c1")
	}
	store.schedule(Schedule{ClassID: "c1", Weekday: time.Monday, Start: "09:00", End: "10:00", GraceMinutes: 15})

	ev := NewEvaluator(store, nil)
	agg := NewAggregator(store, 10)
	ctx := context.Background()

	first, err := ev.Evaluate(ctx, "s1", "c1", monday("09:10:00"), ScanInput{})
	if err != nil {
		t.Fatalf("s1 scan: %v", err)
	}
	if first.Status != StatusPresent {
		t.Fatalf("s1 status = %v, want present", first.Status)
	}

	if _, err := ev.Evaluate(ctx, "s1", "c1", monday("09:12:00"), ScanInput{}); !errors.Is(err, ErrDuplicateScan) {
		t.Fatalf("s1 rescan error = %v, want ErrDuplicateScan", err)
	}

	late, err := ev.Evaluate(ctx, "s2", "c1", monday("09:20:00"), ScanInput{})
	if err != nil {
		t.Fatalf("s2 scan: %v", err)
	}
	if late.Status != StatusLate {
		t.Fatalf("s2 status = %v, want late", late.Status)
	}

	counts, err := agg.CountByStatus(ctx, Filter{ClassID: "c1"})
	if err != nil {
		t.Fatalf("CountByStatus: %v", err)
	}
	if (counts != StatusCounts{Present: 1, Late: 1, Absent: 1}) {
		t.Errorf("counts = %+v, want {1 1 1}", counts)
	}

	// Records written by the evaluator come back in the export, in order,
	// with status and timestamp unchanged.
	var rows []ExportRow
	err = agg.ExportRows(ctx, Filter{DateFrom: "2026-03-02", DateTo: "2026-03-02"}, func(row ExportRow) error {
		rows = append(rows, row)
		return nil
	})
	if err != nil {
		t.Fatalf("ExportRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("export has %d rows, want 2", len(rows))
	}
	if rows[0].Time != "09:10" || rows[0].Status != StatusPresent {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Time != "09:20" || rows[1].Status != StatusLate {
		t.Errorf("row 1 = %+v", rows[1])
	}
}
