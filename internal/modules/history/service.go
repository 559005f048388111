// Package history provides services for generating portfolio chart data from hourly snapshots.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aristath/papertrader/internal/domain"
	"github.com/rs/zerolog"
)

// Range selects how far back the history goes
type Range string

const (
	Range1D  Range = "1D"
	Range1W  Range = "1W"
	Range1M  Range = "1M"
	RangeYTD Range = "YTD"
	Range1Y  Range = "1Y"
)

// Interval selects the bucket width
type Interval string

const (
	IntervalHourly  Interval = "hourly"
	IntervalDaily   Interval = "daily"
	IntervalWeekly  Interval = "weekly"
	IntervalMonthly Interval = "monthly"
)

// Point is one bucket on the chart
type Point struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// History is the bucketed NAV series for a range
type History struct {
	Points     []Point `json:"points"`
	StartValue float64 `json:"startValue"`
	EndValue   float64 `json:"endValue"`
}

// SnapshotLister reads a user's snapshots since an instant, oldest first
type SnapshotLister interface {
	ListSince(ctx context.Context, userID string, since time.Time) ([]domain.Snapshot, error)
}

// Service provides chart data operations
type Service struct {
	snapshots SnapshotLister
	loc       *time.Location
	now       func() time.Time
	log       zerolog.Logger
}

// NewService creates a new history service. Buckets are computed in loc.
func NewService(snapshots SnapshotLister, loc *time.Location, log zerolog.Logger) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{
		snapshots: snapshots,
		loc:       loc,
		now:       time.Now,
		log:       log.With().Str("service", "history").Logger(),
	}
}

// Since returns the start of the range relative to now
func (s *Service) Since(r Range, now time.Time) (time.Time, error) {
	now = now.In(s.loc)
	switch r {
	case Range1D:
		return now.AddDate(0, 0, -1), nil
	case Range1W:
		return now.AddDate(0, 0, -7), nil
	case Range1M:
		return now.AddDate(0, -1, 0), nil
	case RangeYTD:
		return time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, s.loc), nil
	case Range1Y:
		return now.AddDate(-1, 0, 0), nil
	default:
		return time.Time{}, fmt.Errorf("unknown range %q: %w", r, domain.ErrInvalidArgument)
	}
}

// GetHistory returns the user's NAV series over r, keeping the latest snapshot in each bucket
func (s *Service) GetHistory(ctx context.Context, userID string, r Range, interval Interval) (*History, error) {
	if !interval.valid() {
		return nil, fmt.Errorf("unknown interval %q: %w", interval, domain.ErrInvalidArgument)
	}

	since, err := s.Since(r, s.now())
	if err != nil {
		return nil, err
	}

	snaps, err := s.snapshots.ListSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshots: %w", err)
	}

	return Bucket(snaps, interval, s.loc), nil
}

func (i Interval) valid() bool {
	switch i {
	case IntervalHourly, IntervalDaily, IntervalWeekly, IntervalMonthly:
		return true
	}
	return false
}

type bucket struct {
	start time.Time
	value float64
}

// Bucket groups snapshots by interval in loc. Within a bucket the last snapshot
// in input order wins, so ascending input keeps the latest value.
func Bucket(snaps []domain.Snapshot, interval Interval, loc *time.Location) *History {
	h := &History{Points: []Point{}}
	if len(snaps) == 0 {
		return h
	}

	buckets := make(map[string]*bucket)
	for _, snap := range snaps {
		start, key := bucketStart(snap.Timestamp, interval, loc)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{start: start}
			buckets[key] = b
		}
		b.value = snap.EOHValue.InexactFloat64()
	}

	ordered := make([]*bucket, 0, len(buckets))
	keys := make(map[*bucket]string, len(buckets))
	for key, b := range buckets {
		ordered = append(ordered, b)
		keys[b] = key
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].start.Before(ordered[j].start)
	})

	for _, b := range ordered {
		h.Points = append(h.Points, Point{Date: keys[b], Value: b.value})
	}

	h.StartValue = h.Points[0].Value
	h.EndValue = h.Points[len(h.Points)-1].Value
	return h
}

// bucketStart returns the bucket's start instant and its label
func bucketStart(ts time.Time, interval Interval, loc *time.Location) (time.Time, string) {
	local := ts.In(loc)

	switch interval {
	case IntervalHourly:
		// Absolute truncation keeps the repeated hour at a DST fall-back distinct
		start := ts.Truncate(time.Hour).In(loc)
		return start, start.Format(time.RFC3339)
	case IntervalWeekly:
		// Monday = 0 ... Sunday = 6
		offset := (int(local.Weekday()) + 6) % 7
		start := time.Date(local.Year(), local.Month(), local.Day()-offset, 0, 0, 0, 0, loc)
		return start, start.Format("2006-01-02")
	case IntervalMonthly:
		start := time.Date(local.Year(), local.Month(), 1, 0, 0, 0, 0, loc)
		return start, start.Format("2006-01-02")
	default:
		start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
		return start, start.Format("2006-01-02")
	}
}
