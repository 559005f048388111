package market_hours

import (
	"fmt"
	"sort"
	"time"

	"github.com/aristath/papertrader/internal/domain"
)

type session struct {
	open  time.Time
	close time.Time
}

// Gate answers whether a timestamp falls inside a trading session.
// Sessions are inclusive at both ends.
type Gate struct {
	sessions map[string]session
	dates    []string
	loc      *time.Location
}

// NewGate builds a gate from calendar days whose open/close are "HH:MM" in loc
func NewGate(days []domain.TradingDay, loc *time.Location) (*Gate, error) {
	g := &Gate{
		sessions: make(map[string]session, len(days)),
		dates:    make([]string, 0, len(days)),
		loc:      loc,
	}

	for _, d := range days {
		date, err := time.ParseInLocation("2006-01-02", d.Date, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid calendar date %q: %w", d.Date, err)
		}
		openAt, err := atClock(date, d.Open)
		if err != nil {
			return nil, fmt.Errorf("invalid open time for %s: %w", d.Date, err)
		}
		closeAt, err := atClock(date, d.Close)
		if err != nil {
			return nil, fmt.Errorf("invalid close time for %s: %w", d.Date, err)
		}

		if _, dup := g.sessions[d.Date]; !dup {
			g.dates = append(g.dates, d.Date)
		}
		g.sessions[d.Date] = session{open: openAt, close: closeAt}
	}

	sort.Strings(g.dates)
	return g, nil
}

// atClock combines a local midnight with an "HH:MM" clock time
func atClock(date time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), t.Hour(), t.Minute(), 0, 0, date.Location()), nil
}

func (g *Gate) sessionFor(local time.Time) (session, bool) {
	s, ok := g.sessions[local.Format("2006-01-02")]
	return s, ok
}

// IsEligible reports whether t is on a trading date and open <= t <= close
func (g *Gate) IsEligible(t time.Time) bool {
	local := t.In(g.loc)
	s, ok := g.sessionFor(local)
	if !ok {
		return false
	}
	return !local.Before(s.open) && !local.After(s.close)
}

// NextOpen returns the first session open strictly after t
func (g *Gate) NextOpen(t time.Time) (time.Time, bool) {
	for _, date := range g.dates {
		s := g.sessions[date]
		if s.open.After(t) {
			return s.open, true
		}
	}
	return time.Time{}, false
}

// TradingDays returns the number of sessions known to the gate
func (g *Gate) TradingDays() int {
	return len(g.dates)
}
