package feedback

import (
	"context"
	"database/sql"
	"time"
)

// Repository persists feedback ratings in Postgres. The unique index on
// (from_user_id, to_user_id) backs the one-row-per-pair invariant.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Upsert inserts or replaces the (from, to) rating row.
func (r *Repository) Upsert(ctx context.Context, e Entry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO feedback_ratings
			(from_user_id, to_user_id, communication, teamwork, technical, productivity, comment)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (from_user_id, to_user_id) DO UPDATE SET
			communication = EXCLUDED.communication,
			teamwork = EXCLUDED.teamwork,
			technical = EXCLUDED.technical,
			productivity = EXCLUDED.productivity,
			comment = EXCLUDED.comment,
			updated_at = NOW()
	`, e.FromUserID, e.ToUserID,
		e.Ratings.Communication, e.Ratings.Teamwork, e.Ratings.Technical, e.Ratings.Productivity,
		e.Comment)
	return err
}

// Sums totals each category for a recipient. COALESCE keeps zero rows from
// scanning NULL.
func (r *Repository) Sums(ctx context.Context, toUserID string, since time.Time) (comm, team, tech, prod, count int, err error) {
	query := `
		SELECT COALESCE(SUM(communication), 0), COALESCE(SUM(teamwork), 0),
		       COALESCE(SUM(technical), 0), COALESCE(SUM(productivity), 0), COUNT(*)
		FROM feedback_ratings
		WHERE to_user_id = $1`
	args := []any{toUserID}
	if !since.IsZero() {
		query += ` AND created_at >= $2`
		args = append(args, since)
	}
	err = r.db.QueryRowContext(ctx, query, args...).Scan(&comm, &team, &tech, &prod, &count)
	return
}

// RecentReceived lists latest feedback entries for a recipient.
func (r *Repository) RecentReceived(ctx context.Context, toUserID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT f.from_user_id, u.name, f.to_user_id,
		       f.communication, f.teamwork, f.technical, f.productivity,
		       COALESCE(f.comment, ''), f.created_at, f.updated_at
		FROM feedback_ratings f
		JOIN users u ON u.id = f.from_user_id
		WHERE f.to_user_id = $1
		ORDER BY f.updated_at DESC
		LIMIT $2
	`, toUserID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.FromUserID, &e.FromUserName, &e.ToUserID,
			&e.Ratings.Communication, &e.Ratings.Teamwork, &e.Ratings.Technical, &e.Ratings.Productivity,
			&e.Comment, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
