package attendance

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
)

// EvaluatorStore is the persistence surface the evaluator needs. The
// duplicate guard lives in CreateRecord: the insert must be atomic against
// concurrent scans for the same (student, class, day).
type EvaluatorStore interface {
	IsEnrolled(ctx context.Context, studentID, classID string) (bool, error)
	ScheduleFor(ctx context.Context, classID string, weekday time.Weekday) (*Schedule, error)
	// CreateRecord inserts rec and reports false when a record for the same
	// (student, class, day) already exists. It must never overwrite.
	CreateRecord(ctx context.Context, rec Record) (bool, error)
}

// ScanNotifier is told about successful inserts so parents can be messaged.
// It must never fail the attendance write.
type ScanNotifier interface {
	ScanRecorded(ctx context.Context, rec Record)
}

// Evaluator turns a recognized scan into exactly one attendance record per
// class per day. Policy: the first scan of the day wins; later scans fail
// with ErrDuplicateScan and leave the original record untouched.
type Evaluator struct {
	store    EvaluatorStore
	notifier ScanNotifier
}

// NewEvaluator creates an evaluator. notifier may be nil.
func NewEvaluator(store EvaluatorStore, notifier ScanNotifier) *Evaluator {
	return &Evaluator{store: store, notifier: notifier}
}

// ScanInput carries the optional extras recorded alongside a scan.
type ScanInput struct {
	PhotoURL   string
	Confidence *float64
	MarkedBy   string
}

// Evaluate decides present/late for a scan and persists the record.
func (e *Evaluator) Evaluate(ctx context.Context, studentID, classID string, scan time.Time, in ScanInput) (Record, error) {
	if studentID == "" || classID == "" {
		return Record{}, fmt.Errorf("%w: student and class required", ErrInvalidFilter)
	}

	enrolled, err := e.store.IsEnrolled(ctx, studentID, classID)
	if err != nil {
		return Record{}, fmt.Errorf("enrollment check: %w", err)
	}
	if !enrolled {
		return Record{}, ErrNotEnrolled
	}

	sched, err := e.store.ScheduleFor(ctx, classID, scan.Weekday())
	if err != nil {
		return Record{}, fmt.Errorf("schedule lookup: %w", err)
	}
	if sched == nil {
		return Record{}, ErrNoSchedule
	}

	status, err := statusFor(*sched, scan)
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:         uuid.NewString(),
		StudentID:  studentID,
		ClassID:    classID,
		Day:        DayOf(scan),
		Timestamp:  scan,
		Status:     status,
		PhotoURL:   in.PhotoURL,
		Confidence: in.Confidence,
		MarkedBy:   in.MarkedBy,
	}

	inserted, err := e.store.CreateRecord(ctx, rec)
	if err != nil {
		return Record{}, fmt.Errorf("record insert: %w", err)
	}
	if !inserted {
		return Record{}, ErrDuplicateScan
	}

	scansTotal.WithLabelValues(string(status)).Inc()
	e.notify(ctx, rec)
	return rec, nil
}

// MarkManual records attendance without a scan, with an explicit status.
// The same one-record-per-day guard applies.
func (e *Evaluator) MarkManual(ctx context.Context, studentID, classID string, status Status, markedBy string, now time.Time) (Record, error) {
	switch status {
	case StatusPresent, StatusLate, StatusAbsent:
	default:
		return Record{}, fmt.Errorf("%w: unknown status %q", ErrInvalidFilter, status)
	}

	enrolled, err := e.store.IsEnrolled(ctx, studentID, classID)
	if err != nil {
		return Record{}, fmt.Errorf("enrollment check: %w", err)
	}
	if !enrolled {
		return Record{}, ErrNotEnrolled
	}

	rec := Record{
		ID:        uuid.NewString(),
		StudentID: studentID,
		ClassID:   classID,
		Day:       DayOf(now),
		Timestamp: now,
		Status:    status,
		MarkedBy:  markedBy,
		Manual:    true,
	}

	inserted, err := e.store.CreateRecord(ctx, rec)
	if err != nil {
		return Record{}, fmt.Errorf("record insert: %w", err)
	}
	if !inserted {
		return Record{}, ErrDuplicateScan
	}

	scansTotal.WithLabelValues(string(status)).Inc()
	e.notify(ctx, rec)
	return rec, nil
}

func (e *Evaluator) notify(ctx context.Context, rec Record) {
	if e.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("notifier panic for record %s: %v", rec.ID, r)
		}
	}()
	e.notifier.ScanRecorded(ctx, rec)
}

// statusFor applies the grace-period rule: a scan at or before
// scheduledStart + grace is present, anything after is late.
func statusFor(sched Schedule, scan time.Time) (Status, error) {
	start, err := sched.StartOn(scan)
	if err != nil {
		return "", fmt.Errorf("bad schedule start %q: %w", sched.Start, err)
	}
	threshold := start.Add(time.Duration(sched.GraceMinutes) * time.Minute)
	if scan.After(threshold) {
		return StatusLate, nil
	}
	return StatusPresent, nil
}
