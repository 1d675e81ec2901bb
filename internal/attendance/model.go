package attendance

import (
	"errors"
	"fmt"
	"time"
)

// Status of a single attendance record.
type Status string

const (
	StatusPresent Status = "present"
	StatusLate    Status = "late"
	StatusAbsent  Status = "absent"
)

// Client-caused failures, surfaced to the caller as 4xx.
var (
	ErrNotEnrolled     = errors.New("student is not enrolled in this class")
	ErrNoSchedule      = errors.New("class has no schedule for this day")
	ErrDuplicateScan   = errors.New("attendance already marked for today")
	ErrInvalidFilter   = errors.New("invalid filter value")
	ErrAlreadyEnrolled = errors.New("student already enrolled")
	ErrClassNotFound   = errors.New("class not found")
)

// Schedule is a class's meeting time on one weekday. Start and End are
// wall-clock times in "15:04" form; GraceMinutes is how long after Start a
// scan still counts as present.
type Schedule struct {
	ClassID      string       `json:"class_id"`
	Weekday      time.Weekday `json:"weekday"`
	Start        string       `json:"start"`
	End          string       `json:"end"`
	GraceMinutes int          `json:"grace_minutes"`
}

// Validate checks schedule invariants. maxGrace caps the grace period.
func (s Schedule) Validate(maxGrace int) error {
	start, err := parseClock(s.Start)
	if err != nil {
		return fmt.Errorf("invalid start time %q: %w", s.Start, err)
	}
	end, err := parseClock(s.End)
	if err != nil {
		return fmt.Errorf("invalid end time %q: %w", s.End, err)
	}
	if !start.Before(end) {
		return fmt.Errorf("schedule start %s must be before end %s", s.Start, s.End)
	}
	if s.GraceMinutes < 0 || s.GraceMinutes > maxGrace {
		return fmt.Errorf("grace period must be between 0 and %d minutes", maxGrace)
	}
	return nil
}

// StartOn resolves the schedule's start time on the given calendar day.
func (s Schedule) StartOn(day time.Time) (time.Time, error) {
	clock, err := parseClock(s.Start)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(),
		clock.Hour(), clock.Minute(), 0, 0, day.Location()), nil
}

func parseClock(v string) (time.Time, error) {
	return time.Parse("15:04", v)
}

// Class groups students under a schedule.
type Class struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Subject      string     `json:"subject"`
	TeacherID    string     `json:"teacher_id,omitempty"`
	StudentCount int        `json:"student_count"`
	Schedules    []Schedule `json:"schedules,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Record is one attendance decision: a student's status in a class on a day.
// At most one exists per (student, class, day).
type Record struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name,omitempty"`
	ClassID     string    `json:"class_id"`
	ClassName   string    `json:"class_name,omitempty"`
	Day         string    `json:"day"` // calendar date, 2006-01-02
	Timestamp   time.Time `json:"timestamp"`
	Status      Status    `json:"status"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Confidence  *float64  `json:"confidence,omitempty"`
	MarkedBy    string    `json:"marked_by,omitempty"`
	Manual      bool      `json:"manual,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// DayOf formats an instant as the record's calendar day key.
func DayOf(t time.Time) string {
	return t.Format("2006-01-02")
}
