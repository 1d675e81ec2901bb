package feedback

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeStore struct {
	entries map[string]Entry // keyed by from|to
}

func newFakeStore() *fakeStore {
	return &fakeStore{entries: make(map[string]Entry)}
}

func (s *fakeStore) Upsert(_ context.Context, e Entry) error {
	s.entries[e.FromUserID+"|"+e.ToUserID] = e
	return nil
}

func (s *fakeStore) Sums(_ context.Context, toUserID string, _ time.Time) (comm, team, tech, prod, count int, err error) {
	for _, e := range s.entries {
		if e.ToUserID != toUserID {
			continue
		}
		comm += e.Ratings.Communication
		team += e.Ratings.Teamwork
		tech += e.Ratings.Technical
		prod += e.Ratings.Productivity
		count++
	}
	return
}

func (s *fakeStore) RecentReceived(_ context.Context, toUserID string, limit int) ([]Entry, error) {
	var out []Entry
	for _, e := range s.entries {
		if e.ToUserID == toUserID && len(out) < limit {
			out = append(out, e)
		}
	}
	return out, nil
}

func TestSubmit(t *testing.T) {
	valid := Ratings{Communication: 4, Teamwork: 5, Technical: 3, Productivity: 4}

	tests := []struct {
		name    string
		from    string
		to      string
		ratings Ratings
		wantErr error
	}{
		{name: "valid", from: "u1", to: "u2", ratings: valid},
		{name: "self feedback", from: "u1", to: "u1", ratings: valid, wantErr: ErrSelfFeedback},
		{name: "rating too low", from: "u1", to: "u2", ratings: Ratings{Communication: 0, Teamwork: 5, Technical: 3, Productivity: 4}, wantErr: ErrInvalidRating},
		{name: "rating too high", from: "u1", to: "u2", ratings: Ratings{Communication: 4, Teamwork: 6, Technical: 3, Productivity: 4}, wantErr: ErrInvalidRating},
		{name: "missing recipient", from: "u1", to: "", ratings: valid, wantErr: ErrInvalidFilter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newFakeStore(), 10)
			err := svc.Submit(context.Background(), tt.from, tt.to, tt.ratings, "")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubmitUpsertsPerPair(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, 10)

	first := Ratings{Communication: 2, Teamwork: 2, Technical: 2, Productivity: 2}
	second := Ratings{Communication: 5, Teamwork: 5, Technical: 5, Productivity: 5}

	if err := svc.Submit(context.Background(), "u1", "u2", first, "meh"); err != nil {
		t.Fatalf("first Submit() error = %v", err)
	}
	if err := svc.Submit(context.Background(), "u1", "u2", second, "much better"); err != nil {
		t.Fatalf("second Submit() error = %v", err)
	}

	if len(store.entries) != 1 {
		t.Fatalf("store holds %d entries, want 1", len(store.entries))
	}
	got := store.entries["u1|u2"]
	if got.Ratings != second || got.Comment != "much better" {
		t.Errorf("stored entry = %+v, want second submission", got)
	}
}

func TestAverageRatings(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, 10)

	// No feedback yet: nil result, no error, never NaN.
	avgs, err := svc.AverageRatings(context.Background(), "u2", "")
	if err != nil {
		t.Fatalf("AverageRatings() error = %v", err)
	}
	if avgs != nil {
		t.Fatalf("AverageRatings() = %+v, want nil for no data", avgs)
	}

	_ = svc.Submit(context.Background(), "u1", "u2", Ratings{Communication: 5, Teamwork: 4, Technical: 3, Productivity: 5}, "")
	_ = svc.Submit(context.Background(), "u3", "u2", Ratings{Communication: 4, Teamwork: 4, Technical: 2, Productivity: 4}, "")
	_ = svc.Submit(context.Background(), "u4", "u2", Ratings{Communication: 5, Teamwork: 3, Technical: 2, Productivity: 4}, "")

	avgs, err = svc.AverageRatings(context.Background(), "u2", "")
	if err != nil {
		t.Fatalf("AverageRatings() error = %v", err)
	}
	if avgs == nil {
		t.Fatal("AverageRatings() = nil, want values")
	}
	// 14/3 = 4.67 rounded to 2 decimals.
	if avgs.Communication != 4.67 {
		t.Errorf("communication = %v, want 4.67", avgs.Communication)
	}
	if avgs.Teamwork != 3.67 {
		t.Errorf("teamwork = %v, want 3.67", avgs.Teamwork)
	}
	if avgs.Technical != 2.33 {
		t.Errorf("technical = %v, want 2.33", avgs.Technical)
	}
	if avgs.Productivity != 4.33 {
		t.Errorf("productivity = %v, want 4.33", avgs.Productivity)
	}
	if avgs.Count != 3 {
		t.Errorf("count = %d, want 3", avgs.Count)
	}

	if _, err := svc.AverageRatings(context.Background(), "u2", "last week"); !errors.Is(err, ErrInvalidFilter) {
		t.Errorf("bad since error = %v, want ErrInvalidFilter", err)
	}
}
