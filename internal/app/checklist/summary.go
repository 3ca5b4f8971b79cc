package checklist

import (
	"context"
	"fmt"
	"time"
)

// Summary counts items by where their due date falls relative to now.
type Summary struct {
	Today     int `json:"today"`
	PastDue   int `json:"past_due"`
	ThisWeek  int `json:"this_week"`
	PastWeek  int `json:"past_week"`
	ThisMonth int `json:"this_month"`
	PastMonth int `json:"past_month"`
	Total     int `json:"total"`
}

type SummaryQuery struct {
	ObjectDomain string
	// Location sets the calendar used for day and month boundaries.
	// Nil means UTC.
	Location *time.Location
}

// Summary buckets items by due date. Day and month windows follow the
// calendar in q.Location; week windows are the seven days on either side of
// now. All windows are half-open.
func (s *Service) Summary(ctx context.Context, q SummaryQuery) (Summary, error) {
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	now := s.Now().In(loc)

	y, m, d := now.Date()
	startDay := time.Date(y, m, d, 0, 0, 0, 0, loc)
	startMonth := time.Date(y, m, 1, 0, 0, 0, 0, loc)

	var out Summary
	buckets := []struct {
		dst      *int
		from, to *time.Time
	}{
		{&out.Total, nil, nil},
		{&out.Today, &startDay, ptrTime(startDay.AddDate(0, 0, 1))},
		{&out.PastDue, nil, &now},
		{&out.ThisWeek, &now, ptrTime(now.AddDate(0, 0, 7))},
		{&out.PastWeek, ptrTime(now.AddDate(0, 0, -7)), &now},
		{&out.ThisMonth, &startMonth, ptrTime(startMonth.AddDate(0, 1, 0))},
		{&out.PastMonth, ptrTime(startMonth.AddDate(0, -1, 0)), &startMonth},
	}
	for _, b := range buckets {
		n, err := s.Repo.CountItems(ctx, ItemFilter{
			ObjectDomain: q.ObjectDomain,
			DueFrom:      b.from,
			DueBefore:    b.to,
		})
		if err != nil {
			return Summary{}, fmt.Errorf("counting items: %w", err)
		}
		*b.dst = n
	}
	return out, nil
}

func ptrTime(t time.Time) *time.Time { return &t }
