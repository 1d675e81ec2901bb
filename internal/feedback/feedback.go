// Package feedback implements the peer-feedback ratings: one rating row per
// (from, to) pair, four 1-5 sub-scores, and the averages shown on dashboards.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrSelfFeedback  = errors.New("cannot provide feedback for yourself")
	ErrInvalidRating = errors.New("ratings must be between 1 and 5")
	ErrInvalidFilter = errors.New("invalid filter value")
)

// Ratings holds the four sub-scores of one submission.
type Ratings struct {
	Communication int `json:"communication" binding:"required,min=1,max=5"`
	Teamwork      int `json:"teamwork" binding:"required,min=1,max=5"`
	Technical     int `json:"technical" binding:"required,min=1,max=5"`
	Productivity  int `json:"productivity" binding:"required,min=1,max=5"`
}

func (r Ratings) validate() error {
	for _, v := range []int{r.Communication, r.Teamwork, r.Technical, r.Productivity} {
		if v < 1 || v > 5 {
			return ErrInvalidRating
		}
	}
	return nil
}

// Entry is a stored feedback row.
type Entry struct {
	FromUserID   string    `json:"from_user_id"`
	FromUserName string    `json:"from_user_name,omitempty"`
	ToUserID     string    `json:"to_user_id"`
	Ratings      Ratings   `json:"ratings"`
	Comment      string    `json:"comment,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Averages are per-category arithmetic means rounded to 2 decimals. A nil
// *Averages means no feedback rows matched.
type Averages struct {
	Communication float64 `json:"communication"`
	Teamwork      float64 `json:"teamwork"`
	Technical     float64 `json:"technical"`
	Productivity  float64 `json:"productivity"`
	Count         int     `json:"count"`
}

// Store is the persistence surface for feedback.
type Store interface {
	// Upsert writes the entry, replacing any existing (from, to) row.
	Upsert(ctx context.Context, e Entry) error
	// Sums returns per-category totals and the row count for a recipient
	// since the given time (zero time means all).
	Sums(ctx context.Context, toUserID string, since time.Time) (comm, team, tech, prod, count int, err error)
	RecentReceived(ctx context.Context, toUserID string, limit int) ([]Entry, error)
}

// Service enforces feedback invariants over a Store.
type Service struct {
	store       Store
	recentLimit int
}

// NewService creates a feedback service.
func NewService(store Store, recentLimit int) *Service {
	if recentLimit <= 0 {
		recentLimit = 10
	}
	return &Service{store: store, recentLimit: recentLimit}
}

// Submit records feedback from one user to another. A second submission for
// the same pair updates the existing row rather than inserting a new one.
func (s *Service) Submit(ctx context.Context, fromUserID, toUserID string, ratings Ratings, comment string) error {
	if fromUserID == "" || toUserID == "" {
		return fmt.Errorf("%w: from and to user required", ErrInvalidFilter)
	}
	if fromUserID == toUserID {
		return ErrSelfFeedback
	}
	if err := ratings.validate(); err != nil {
		return err
	}
	return s.store.Upsert(ctx, Entry{
		FromUserID: fromUserID,
		ToUserID:   toUserID,
		Ratings:    ratings,
		Comment:    comment,
	})
}

// AverageRatings returns per-category means for a recipient, or nil when no
// rows match. sinceStr is an optional 2006-01-02 lower bound.
func (s *Service) AverageRatings(ctx context.Context, toUserID, sinceStr string) (*Averages, error) {
	if toUserID == "" {
		return nil, fmt.Errorf("%w: user required", ErrInvalidFilter)
	}
	var since time.Time
	if sinceStr != "" {
		var err error
		since, err = time.ParseInLocation("2006-01-02", sinceStr, time.UTC)
		if err != nil {
			return nil, fmt.Errorf("%w: bad since %q", ErrInvalidFilter, sinceStr)
		}
	}

	comm, team, tech, prod, count, err := s.store.Sums(ctx, toUserID, since)
	if err != nil {
		return nil, fmt.Errorf("rating sums: %w", err)
	}
	if count == 0 {
		return nil, nil
	}
	return &Averages{
		Communication: mean(comm, count),
		Teamwork:      mean(team, count),
		Technical:     mean(tech, count),
		Productivity:  mean(prod, count),
		Count:         count,
	}, nil
}

// RecentReceived lists the latest feedback for a recipient, newest first.
func (s *Service) RecentReceived(ctx context.Context, toUserID string) ([]Entry, error) {
	if toUserID == "" {
		return nil, fmt.Errorf("%w: user required", ErrInvalidFilter)
	}
	return s.store.RecentReceived(ctx, toUserID, s.recentLimit)
}

func mean(sum, count int) float64 {
	return math.Round(float64(sum)/float64(count)*100) / 100
}
