package market_hours

import (
	"context"
	"time"

	"github.com/aristath/papertrader/internal/domain"
)

// weekdayCalendar is a CalendarProvider that opens 09:30-16:00 every Monday to Friday
type weekdayCalendar struct {
	calls    int
	fail     bool
	holidays map[string]bool
}

func (c *weekdayCalendar) GetTradingCalendar(ctx context.Context, start, end time.Time) ([]domain.TradingDay, error) {
	c.calls++
	if c.fail {
		return nil, domain.ErrUnavailable
	}

	var days []domain.TradingDay
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		date := d.Format("2006-01-02")
		if c.holidays[date] {
			continue
		}
		days = append(days, domain.TradingDay{Date: date, Open: "09:30", Close: "16:00"})
	}
	return days, nil
}
