package notify

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// SMSLog is one delivery attempt, kept for the admin log page.
type SMSLog struct {
	ID        string    `json:"id"`
	ToPhone   string    `json:"to_phone"`
	Message   string    `json:"message"`
	Status    string    `json:"status"` // sent, mocked, failed
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists SMS logs.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// SaveLog records one delivery attempt.
func (r *Repository) SaveLog(ctx context.Context, toPhone, message, status string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sms_logs (id, to_phone, message, status)
		VALUES ($1, $2, $3, $4)
	`, uuid.NewString(), toPhone, message, status)
	return err
}

// RecentLogs lists latest delivery attempts.
func (r *Repository) RecentLogs(ctx context.Context, limit int) ([]SMSLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, to_phone, message, status, created_at
		FROM sms_logs
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SMSLog
	for rows.Next() {
		var l SMSLog
		if err := rows.Scan(&l.ID, &l.ToPhone, &l.Message, &l.Status, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
