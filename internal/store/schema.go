package store

import "context"

// schema is applied on startup. Every statement is idempotent so repeated
// boots are safe. The unique indexes back the duplicate guards the
// repositories rely on.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	email       TEXT UNIQUE,
	role        TEXT NOT NULL DEFAULT 'teacher',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS students (
	id              TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	parent_phone    TEXT,
	face_registered BOOLEAN NOT NULL DEFAULT FALSE,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS classes (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	subject     TEXT NOT NULL DEFAULT '',
	teacher_id  TEXT,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS class_schedules (
	class_id      TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
	weekday       INT NOT NULL,
	start_time    TEXT NOT NULL,
	end_time      TEXT NOT NULL,
	grace_minutes INT NOT NULL DEFAULT 15,
	UNIQUE (class_id, weekday)
);

CREATE TABLE IF NOT EXISTS enrollments (
	student_id  TEXT NOT NULL REFERENCES students(id) ON DELETE CASCADE,
	class_id    TEXT NOT NULL REFERENCES classes(id) ON DELETE CASCADE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (student_id, class_id)
);

CREATE TABLE IF NOT EXISTS attendance_records (
	id          TEXT PRIMARY KEY,
	student_id  TEXT NOT NULL REFERENCES students(id),
	class_id    TEXT NOT NULL REFERENCES classes(id),
	day         TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	status      TEXT NOT NULL,
	photo_url   TEXT,
	confidence  DOUBLE PRECISION,
	marked_by   TEXT,
	manual      BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (student_id, class_id, day)
);

CREATE INDEX IF NOT EXISTS idx_attendance_day   ON attendance_records(day);
CREATE INDEX IF NOT EXISTS idx_attendance_class ON attendance_records(class_id, day);

CREATE TABLE IF NOT EXISTS feedback_ratings (
	from_user_id  TEXT NOT NULL REFERENCES users(id),
	to_user_id    TEXT NOT NULL REFERENCES users(id),
	communication INT NOT NULL,
	teamwork      INT NOT NULL,
	technical     INT NOT NULL,
	productivity  INT NOT NULL,
	comment       TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (from_user_id, to_user_id)
);

CREATE TABLE IF NOT EXISTS sms_logs (
	id         TEXT PRIMARY KEY,
	to_phone   TEXT NOT NULL,
	message    TEXT NOT NULL,
	status     TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func (d *DB) EnsureSchema(ctx context.Context) error {
	_, err := d.Client.ExecContext(ctx, schema)
	return err
}
