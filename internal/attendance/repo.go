package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance data in Postgres. All mutation of
// attendance_records goes through CreateRecord; the unique index on
// (student_id, class_id, day) is the duplicate guard under concurrency.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// ---- EvaluatorStore ----

// IsEnrolled reports whether the student has an enrollment row for the class.
func (r *Repository) IsEnrolled(ctx context.Context, studentID, classID string) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2)
	`, studentID, classID).Scan(&ok)
	return ok, err
}

// ScheduleFor returns the class schedule entry for a weekday, or nil.
func (r *Repository) ScheduleFor(ctx context.Context, classID string, weekday time.Weekday) (*Schedule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT class_id, weekday, start_time, end_time, grace_minutes
		FROM class_schedules
		WHERE class_id = $1 AND weekday = $2
	`, classID, int(weekday))
	var s Schedule
	var wd int
	if err := row.Scan(&s.ClassID, &wd, &s.Start, &s.End, &s.GraceMinutes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.Weekday = time.Weekday(wd)
	return &s, nil
}

// CreateRecord inserts a record, relying on ON CONFLICT DO NOTHING against
// the (student_id, class_id, day) unique index. Returns false when a record
// for that day already exists; the existing row is left untouched.
func (r *Repository) CreateRecord(ctx context.Context, rec Record) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records
			(id, student_id, class_id, day, occurred_at, status, photo_url, confidence, marked_by, manual)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (student_id, class_id, day) DO NOTHING
	`, rec.ID, rec.StudentID, rec.ClassID, rec.Day, rec.Timestamp, rec.Status,
		nullIfEmpty(rec.PhotoURL), rec.Confidence, nullIfEmpty(rec.MarkedBy), rec.Manual)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RecordFor returns the day's record for a student/class pair, or nil.
func (r *Repository) RecordFor(ctx context.Context, studentID, classID, day string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT r.id, r.student_id, s.name, r.class_id, c.name, r.day, r.occurred_at,
		       r.status, COALESCE(r.photo_url, ''), r.confidence, COALESCE(r.marked_by, ''), r.manual, r.created_at
		FROM attendance_records r
		JOIN students s ON s.id = r.student_id
		JOIN classes c ON c.id = r.class_id
		WHERE r.student_id = $1 AND r.class_id = $2 AND r.day = $3
	`, studentID, classID, day)
	var rec Record
	if err := scanRecord(row, &rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ---- AggregatorStore ----

// EnrolledCount counts enrolled students; classID "" means distinct students
// across all enrollments.
func (r *Repository) EnrolledCount(ctx context.Context, classID string) (int, error) {
	var n int
	var err error
	if classID == "" {
		err = r.db.QueryRowContext(ctx,
			`SELECT COUNT(DISTINCT student_id) FROM enrollments`).Scan(&n)
	} else {
		err = r.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM enrollments WHERE class_id = $1`, classID).Scan(&n)
	}
	return n, err
}

// StatusCountsByDay groups stored records in [from, to] by day and status.
func (r *Repository) StatusCountsByDay(ctx context.Context, classID string, from, to time.Time) (map[string]DayCounts, error) {
	query := `
		SELECT day, status, COUNT(*)
		FROM attendance_records
		WHERE day >= $1 AND day <= $2`
	args := []any{DayOf(from), DayOf(to)}
	if classID != "" {
		query += ` AND class_id = $3`
		args = append(args, classID)
	}
	query += ` GROUP BY day, status`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]DayCounts)
	for rows.Next() {
		var day string
		var status Status
		var n int
		if err := rows.Scan(&day, &status, &n); err != nil {
			return nil, err
		}
		c := out[day]
		switch status {
		case StatusPresent:
			c.Present += n
		case StatusLate:
			c.Late += n
		case StatusAbsent:
			c.Absent += n
		}
		out[day] = c
	}
	return out, rows.Err()
}

// RecentRecords lists records timestamp-descending with optional filters.
func (r *Repository) RecentRecords(ctx context.Context, f Filter, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 10
	}
	query, args := recordFilterQuery(f)
	query += fmt.Sprintf(" ORDER BY r.occurred_at DESC LIMIT $%d", len(args)+1)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []Record
	for rows.Next() {
		var rec Record
		if err := scanRecord(rows, &rec); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// ForEachExportRow streams export rows chronologically ascending without
// loading the full result set.
func (r *Repository) ForEachExportRow(ctx context.Context, f Filter, fn func(ExportRow) error) error {
	query, args := recordFilterQuery(f)
	query += " ORDER BY r.occurred_at ASC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var rec Record
		if err := scanRecord(rows, &rec); err != nil {
			return err
		}
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
	return rows.Err()
}

// Totals counts students and classes for the dashboard.
func (r *Repository) Totals(ctx context.Context) (students, classes int, err error) {
	if err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM students`).Scan(&students); err != nil {
		return 0, 0, err
	}
	if err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM classes`).Scan(&classes); err != nil {
		return 0, 0, err
	}
	return students, classes, nil
}

// recordFilterQuery builds the shared filtered select with positional args.
func recordFilterQuery(f Filter) (string, []any) {
	query := `
		SELECT r.id, r.student_id, s.name, r.class_id, c.name, r.day, r.occurred_at,
		       r.status, COALESCE(r.photo_url, ''), r.confidence, COALESCE(r.marked_by, ''), r.manual, r.created_at
		FROM attendance_records r
		JOIN students s ON s.id = r.student_id
		JOIN classes c ON c.id = r.class_id`
	args := []any{}
	clauses := []string{}
	if f.ClassID != "" {
		args = append(args, f.ClassID)
		clauses = append(clauses, fmt.Sprintf("r.class_id = $%d", len(args)))
	}
	if f.StudentID != "" {
		args = append(args, f.StudentID)
		clauses = append(clauses, fmt.Sprintf("r.student_id = $%d", len(args)))
	}
	if f.DateFrom != "" {
		args = append(args, f.DateFrom)
		clauses = append(clauses, fmt.Sprintf("r.day >= $%d", len(args)))
	}
	if f.DateTo != "" {
		args = append(args, f.DateTo)
		clauses = append(clauses, fmt.Sprintf("r.day <= $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		clauses = append(clauses, fmt.Sprintf("r.status = $%d", len(args)))
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	return query, args
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, rec *Record) error {
	return row.Scan(&rec.ID, &rec.StudentID, &rec.StudentName, &rec.ClassID, &rec.ClassName,
		&rec.Day, &rec.Timestamp, &rec.Status, &rec.PhotoURL, &rec.Confidence,
		&rec.MarkedBy, &rec.Manual, &rec.CreatedAt)
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// ---- class and enrollment management ----

// Student is a class roster entry.
type Student struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	FaceRegistered bool   `json:"face_registered"`
	ParentPhone    string `json:"parent_phone,omitempty"`
}

// CreateClass inserts a class and its schedule entries in one transaction.
func (r *Repository) CreateClass(ctx context.Context, cls Class) (Class, error) {
	if cls.ID == "" {
		cls.ID = uuid.NewString()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Class{}, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		INSERT INTO classes (id, name, subject, teacher_id)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, cls.ID, cls.Name, cls.Subject, nullIfEmpty(cls.TeacherID))
	if err := row.Scan(&cls.CreatedAt); err != nil {
		return Class{}, err
	}
	for _, s := range cls.Schedules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO class_schedules (class_id, weekday, start_time, end_time, grace_minutes)
			VALUES ($1, $2, $3, $4, $5)
		`, cls.ID, int(s.Weekday), s.Start, s.End, s.GraceMinutes); err != nil {
			return Class{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return Class{}, err
	}
	return cls, nil
}

// UpsertSchedule replaces a class's schedule entry for one weekday.
func (r *Repository) UpsertSchedule(ctx context.Context, s Schedule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO class_schedules (class_id, weekday, start_time, end_time, grace_minutes)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (class_id, weekday) DO UPDATE SET
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			grace_minutes = EXCLUDED.grace_minutes
	`, s.ClassID, int(s.Weekday), s.Start, s.End, s.GraceMinutes)
	return err
}

// ListClasses returns all classes with student counts and schedules.
func (r *Repository) ListClasses(ctx context.Context) ([]Class, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.subject, COALESCE(c.teacher_id, ''), c.created_at,
		       (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id)
		FROM classes c
		ORDER BY c.name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var classes []Class
	for rows.Next() {
		var c Class
		if err := rows.Scan(&c.ID, &c.Name, &c.Subject, &c.TeacherID, &c.CreatedAt, &c.StudentCount); err != nil {
			return nil, err
		}
		classes = append(classes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range classes {
		scheds, err := r.classSchedules(ctx, classes[i].ID)
		if err != nil {
			return nil, err
		}
		classes[i].Schedules = scheds
	}
	return classes, nil
}

func (r *Repository) classSchedules(ctx context.Context, classID string) ([]Schedule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT class_id, weekday, start_time, end_time, grace_minutes
		FROM class_schedules WHERE class_id = $1 ORDER BY weekday
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Schedule
	for rows.Next() {
		var s Schedule
		var wd int
		if err := rows.Scan(&s.ClassID, &wd, &s.Start, &s.End, &s.GraceMinutes); err != nil {
			return nil, err
		}
		s.Weekday = time.Weekday(wd)
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetClass returns one class or ErrClassNotFound.
func (r *Repository) GetClass(ctx context.Context, classID string) (*Class, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT c.id, c.name, c.subject, COALESCE(c.teacher_id, ''), c.created_at,
		       (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id)
		FROM classes c WHERE c.id = $1
	`, classID)
	var c Class
	if err := row.Scan(&c.ID, &c.Name, &c.Subject, &c.TeacherID, &c.CreatedAt, &c.StudentCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrClassNotFound
		}
		return nil, err
	}
	scheds, err := r.classSchedules(ctx, classID)
	if err != nil {
		return nil, err
	}
	c.Schedules = scheds
	return &c, nil
}

// Enroll adds a student to a class; enrolling twice is a client error.
func (r *Repository) Enroll(ctx context.Context, studentID, classID string) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO enrollments (student_id, class_id)
		VALUES ($1, $2)
		ON CONFLICT (student_id, class_id) DO NOTHING
	`, studentID, classID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrAlreadyEnrolled
	}
	return nil
}

// Unenroll removes a student from a class.
func (r *Repository) Unenroll(ctx context.Context, studentID, classID string) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM enrollments WHERE student_id = $1 AND class_id = $2
	`, studentID, classID)
	return err
}

// ClassRoster lists enrolled students for a class.
func (r *Repository) ClassRoster(ctx context.Context, classID string) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.face_registered, COALESCE(s.parent_phone, '')
		FROM students s
		JOIN enrollments e ON e.student_id = s.id
		WHERE e.class_id = $1
		ORDER BY s.name
	`, classID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.Name, &s.FaceRegistered, &s.ParentPhone); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// RosterEntry is a roster row joined with today's attendance, if any.
type RosterEntry struct {
	StudentID      string     `json:"student_id"`
	StudentName    string     `json:"student_name"`
	FaceRegistered bool       `json:"face_registered"`
	Status         string     `json:"status"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
}

// TodayRoster returns every enrolled student with their status for the day,
// "not_marked" when no record exists yet.
func (r *Repository) TodayRoster(ctx context.Context, classID, day string) ([]RosterEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.name, s.face_registered,
		       COALESCE(r.status, 'not_marked'), r.occurred_at
		FROM students s
		JOIN enrollments e ON e.student_id = s.id
		LEFT JOIN attendance_records r
		       ON r.student_id = s.id AND r.class_id = e.class_id AND r.day = $2
		WHERE e.class_id = $1
		ORDER BY s.name
	`, classID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RosterEntry
	for rows.Next() {
		var entry RosterEntry
		var ts sql.NullTime
		if err := rows.Scan(&entry.StudentID, &entry.StudentName, &entry.FaceRegistered, &entry.Status, &ts); err != nil {
			return nil, err
		}
		if ts.Valid {
			t := ts.Time
			entry.Timestamp = &t
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// StudentContact returns the parent phone for notifications, "" when unset.
func (r *Repository) StudentContact(ctx context.Context, studentID string) (name, parentPhone string, err error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT name, COALESCE(parent_phone, '') FROM students WHERE id = $1
	`, studentID)
	if err := row.Scan(&name, &parentPhone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", nil
		}
		return "", "", err
	}
	return name, parentPhone, nil
}

// SetFaceRegistered flags a student after face enrollment succeeds.
func (r *Repository) SetFaceRegistered(ctx context.Context, studentID string, registered bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE students SET face_registered = $2 WHERE id = $1
	`, studentID, registered)
	return err
}
