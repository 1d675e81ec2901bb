package attendance

import (
	"context"
	"fmt"
	"time"
)

// nowFunc is swapped out in tests.
var nowFunc = time.Now

// DayCounts holds the scanned statuses for one calendar day. Absent is not
// stored per day: it is derived as the enrollment complement.
type DayCounts struct {
	Present int
	Late    int
	Absent  int // manual absent marks only
}

// StatusCounts is the dashboard summary for a date range.
type StatusCounts struct {
	Present int `json:"present"`
	Late    int `json:"late"`
	Absent  int `json:"absent"`
}

// TrendPoint is one day in the weekly trend, oldest first.
type TrendPoint struct {
	Date    string `json:"date"`
	Day     string `json:"day"`
	Present int    `json:"present"`
}

// ExportRow is the flat record shape consumed by CSV/PDF writers.
type ExportRow struct {
	Date        string
	Time        string
	StudentName string
	ClassName   string
	Status      Status
}

// Filter carries the raw, optional query values for aggregation reads.
type Filter struct {
	ClassID   string
	StudentID string
	DateFrom  string
	DateTo    string
	Status    string
}

// AggregatorStore is the read-only persistence surface for summaries.
type AggregatorStore interface {
	EnrolledCount(ctx context.Context, classID string) (int, error)
	// StatusCountsByDay returns stored record counts keyed by day (2006-01-02)
	// for [from, to] inclusive.
	StatusCountsByDay(ctx context.Context, classID string, from, to time.Time) (map[string]DayCounts, error)
	RecentRecords(ctx context.Context, f Filter, limit int) ([]Record, error)
	ForEachExportRow(ctx context.Context, f Filter, fn func(ExportRow) error) error
	Totals(ctx context.Context) (students, classes int, err error)
}

// Aggregator produces read-only summaries over attendance records.
// Absent is always the per-day complement enrolled - present - late (plus any
// manual absent marks), clamped at zero and summed across the range; literal
// absent rows from scans never exist.
type Aggregator struct {
	store       AggregatorStore
	recentLimit int
}

// NewAggregator creates an aggregator. recentLimit caps "recent" lists.
func NewAggregator(store AggregatorStore, recentLimit int) *Aggregator {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	return &Aggregator{store: store, recentLimit: recentLimit}
}

// CountByStatus sums present/late over the filtered range and derives absent
// per day. An empty range means today.
func (a *Aggregator) CountByStatus(ctx context.Context, f Filter) (StatusCounts, error) {
	from, to, err := parseRange(f.DateFrom, f.DateTo)
	if err != nil {
		return StatusCounts{}, err
	}

	enrolled, err := a.store.EnrolledCount(ctx, f.ClassID)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("enrolled count: %w", err)
	}
	byDay, err := a.store.StatusCountsByDay(ctx, f.ClassID, from, to)
	if err != nil {
		return StatusCounts{}, fmt.Errorf("status counts: %w", err)
	}

	var out StatusCounts
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		c := byDay[DayOf(day)]
		out.Present += c.Present
		out.Late += c.Late
		missing := enrolled - c.Present - c.Late - c.Absent
		if missing < 0 {
			missing = 0
		}
		out.Absent += c.Absent + missing
	}
	return out, nil
}

// WeeklyTrend returns present counts for the last 7 calendar days, oldest
// first, zero-filled for days with no scans.
func (a *Aggregator) WeeklyTrend(ctx context.Context, classID string) ([]TrendPoint, error) {
	today := startOfDay(nowFunc())
	from := today.AddDate(0, 0, -6)

	byDay, err := a.store.StatusCountsByDay(ctx, classID, from, today)
	if err != nil {
		return nil, fmt.Errorf("status counts: %w", err)
	}

	points := make([]TrendPoint, 0, 7)
	for day := from; !day.After(today); day = day.AddDate(0, 0, 1) {
		points = append(points, TrendPoint{
			Date:    DayOf(day),
			Day:     day.Format("Mon"),
			Present: byDay[DayOf(day)].Present,
		})
	}
	return points, nil
}

// Overview is the admin dashboard payload.
type Overview struct {
	TotalStudents  int          `json:"total_students"`
	TotalClasses   int          `json:"total_classes"`
	Today          StatusCounts `json:"today"`
	WeeklyTrend    []TrendPoint `json:"weekly_trend"`
	AttendanceRate float64      `json:"attendance_rate"`
}

// BuildOverview assembles dashboard stats: totals, today's counts and the
// attendance rate over the last 30 days.
func (a *Aggregator) BuildOverview(ctx context.Context) (Overview, error) {
	students, classes, err := a.store.Totals(ctx)
	if err != nil {
		return Overview{}, fmt.Errorf("totals: %w", err)
	}

	today, err := a.CountByStatus(ctx, Filter{})
	if err != nil {
		return Overview{}, err
	}
	trend, err := a.WeeklyTrend(ctx, "")
	if err != nil {
		return Overview{}, err
	}

	monthAgo := startOfDay(nowFunc()).AddDate(0, 0, -29)
	month, err := a.CountByStatus(ctx, Filter{DateFrom: DayOf(monthAgo), DateTo: DayOf(nowFunc())})
	if err != nil {
		return Overview{}, err
	}
	var rate float64
	if total := month.Present + month.Late + month.Absent; total > 0 {
		rate = round1(float64(month.Present+month.Late) / float64(total) * 100)
	}

	return Overview{
		TotalStudents:  students,
		TotalClasses:   classes,
		Today:          today,
		WeeklyTrend:    trend,
		AttendanceRate: rate,
	}, nil
}

// Recent lists the latest records, timestamp descending, capped by config.
func (a *Aggregator) Recent(ctx context.Context, f Filter) ([]Record, error) {
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	return a.store.RecentRecords(ctx, f, a.recentLimit)
}

// ExportRows streams flat rows chronologically ascending. Each call
// re-queries, so exports are restartable.
func (a *Aggregator) ExportRows(ctx context.Context, f Filter, fn func(ExportRow) error) error {
	if err := validateFilter(f); err != nil {
		return err
	}
	return a.store.ForEachExportRow(ctx, f, fn)
}

func validateFilter(f Filter) error {
	if _, _, err := parseRange(f.DateFrom, f.DateTo); err != nil {
		return err
	}
	switch Status(f.Status) {
	case "", StatusPresent, StatusLate, StatusAbsent:
		return nil
	default:
		return fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, f.Status)
	}
}

// parseRange turns optional 2006-01-02 bounds into an inclusive day range.
// Both empty means today; a single bound means that one day onward/backward.
func parseRange(fromStr, toStr string) (from, to time.Time, err error) {
	today := startOfDay(nowFunc())
	from, to = today, today

	if fromStr != "" {
		from, err = time.ParseInLocation("2006-01-02", fromStr, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad date_from %q", ErrInvalidFilter, fromStr)
		}
	}
	if toStr != "" {
		to, err = time.ParseInLocation("2006-01-02", toStr, time.UTC)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("%w: bad date_to %q", ErrInvalidFilter, toStr)
		}
	} else if fromStr != "" {
		to = today
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: date_to before date_from", ErrInvalidFilter)
	}
	return from, to, nil
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
