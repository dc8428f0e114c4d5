// Package calendar resolves trading days from a holiday set and an explicit year coverage.
// Dates outside the covered years are never guessed.
package calendar

import (
	"fmt"
	"time"
	_ "time/tzdata" // 컨테이너에 zoneinfo 없을 때 대비

	"github.com/RubikVault/rubikvault-site-sub000/internal/contracts"
	"github.com/RubikVault/rubikvault-site-sub000/internal/policy"
)

// Calendar is read-only after construction
type Calendar struct {
	holidays    map[string]struct{}
	years       map[int]struct{}
	maxLookback int
	loc         *time.Location
}

// New builds a Calendar from the calendar policy
func New(p policy.Calendar) (*Calendar, error) {
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", p.Timezone, err)
	}

	c := &Calendar{
		holidays:    make(map[string]struct{}, len(p.Holidays)),
		years:       make(map[int]struct{}, len(p.YearsCovered)),
		maxLookback: p.MaxLookbackDays,
		loc:         loc,
	}
	for _, h := range p.Holidays {
		if _, err := time.Parse(contracts.DateLayout, h); err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		c.holidays[h] = struct{}{}
	}
	for _, y := range p.YearsCovered {
		c.years[y] = struct{}{}
	}
	if c.maxLookback <= 0 {
		c.maxLookback = 10
	}
	return c, nil
}

// Location returns the calendar timezone
func (c *Calendar) Location() *time.Location {
	return c.loc
}

// Covers reports whether the year of date is in the covered set
func (c *Calendar) Covers(date string) bool {
	t, err := parse(date)
	if err != nil {
		return false
	}
	_, ok := c.years[t.Year()]
	return ok
}

// IsTradingDay reports whether date is a covered weekday that is not a holiday
func (c *Calendar) IsTradingDay(date string) bool {
	t, err := parse(date)
	if err != nil {
		return false
	}
	return c.isTrading(t)
}

func (c *Calendar) isTrading(t time.Time) bool {
	if _, ok := c.years[t.Year()]; !ok {
		return false
	}
	switch t.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	_, holiday := c.holidays[t.Format(contracts.DateLayout)]
	return !holiday
}

// Resolve returns the effective as-of date.
// requested=="" means "today" in the calendar timezone. A non-trading date rolls back
// to the prior trading day within max_lookback_days; otherwise CALENDAR_UNRESOLVED.
func (c *Calendar) Resolve(requested string, now time.Time) (string, error) {
	var start time.Time
	if requested == "" {
		local := now.In(c.loc)
		start = time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	} else {
		t, err := parse(requested)
		if err != nil {
			return "", contracts.NewFatal(contracts.FatalCalendarUnresolved, err, "invalid date %q", requested)
		}
		start = t
	}

	if _, ok := c.years[start.Year()]; !ok {
		return "", contracts.NewFatal(contracts.FatalCalendarUnresolved, nil,
			"year %d not covered by calendar", start.Year())
	}

	d := start
	for i := 0; i <= c.maxLookback; i++ {
		if c.isTrading(d) {
			return d.Format(contracts.DateLayout), nil
		}
		d = d.AddDate(0, 0, -1)
	}
	return "", contracts.NewFatal(contracts.FatalCalendarUnresolved, nil,
		"no trading day within %d days before %s", c.maxLookback, start.Format(contracts.DateLayout))
}

// Previous returns the trading day strictly before date
func (c *Calendar) Previous(date string) (string, error) {
	return c.Offset(date, -1)
}

// Next returns the trading day strictly after date
func (c *Calendar) Next(date string) (string, error) {
	return c.Offset(date, 1)
}

// Offset moves n trading days from date (negative = backwards).
// The walk stops with an error when it leaves the covered years.
func (c *Calendar) Offset(date string, n int) (string, error) {
	t, err := parse(date)
	if err != nil {
		return "", err
	}
	if n == 0 {
		return date, nil
	}

	step := 1
	if n < 0 {
		step = -1
		n = -n
	}
	for n > 0 {
		t = t.AddDate(0, 0, step)
		if _, ok := c.years[t.Year()]; !ok {
			return "", fmt.Errorf("calendar: %s leaves covered years", t.Format(contracts.DateLayout))
		}
		if c.isTrading(t) {
			n--
		}
	}
	return t.Format(contracts.DateLayout), nil
}

// TradingDaysBetween counts trading days in (from, to]; negative when to < from
func (c *Calendar) TradingDaysBetween(from, to string) (int, error) {
	a, err := parse(from)
	if err != nil {
		return 0, err
	}
	b, err := parse(to)
	if err != nil {
		return 0, err
	}
	sign := 1
	if b.Before(a) {
		a, b = b, a
		sign = -1
	}
	n := 0
	for d := a.AddDate(0, 0, 1); !d.After(b); d = d.AddDate(0, 0, 1) {
		if c.isTrading(d) {
			n++
		}
	}
	return sign * n, nil
}

// TradingDays lists trading days in [from, to]
func (c *Calendar) TradingDays(from, to string) ([]string, error) {
	a, err := parse(from)
	if err != nil {
		return nil, err
	}
	b, err := parse(to)
	if err != nil {
		return nil, err
	}
	var out []string
	for d := a; !d.After(b); d = d.AddDate(0, 0, 1) {
		if c.isTrading(d) {
			out = append(out, d.Format(contracts.DateLayout))
		}
	}
	return out, nil
}

func parse(date string) (time.Time, error) {
	t, err := time.Parse(contracts.DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("calendar: parse %q: %w", date, err)
	}
	return t, nil
}
