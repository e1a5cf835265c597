package datekey

import (
	"fmt"
	"time"

	"github.com/wonny/bankstar/internal/contracts"
)

// Calendar derives dim_date rows. A trading day is a weekday that is not a holiday.
type Calendar struct {
	holidays map[string]bool // YYYYMMDD
}

// NewCalendar builds a calendar from YYYYMMDD holiday strings
func NewCalendar(holidays []string) (*Calendar, error) {
	c := &Calendar{holidays: make(map[string]bool, len(holidays))}
	for _, h := range holidays {
		if _, err := time.Parse("20060102", h); err != nil {
			return nil, fmt.Errorf("invalid holiday %q: %w", h, err)
		}
		c.holidays[h] = true
	}
	return c, nil
}

// IsTradingDay reports whether the exchange is open on date
func (c *Calendar) IsTradingDay(date time.Time) bool {
	if isWeekend(date) {
		return false
	}
	return !c.holidays[date.Format("20060102")]
}

// Row builds the dim_date row for one calendar date
func (c *Calendar) Row(date time.Time) contracts.DateDimRow {
	date = Truncate(date)
	_, week := date.ISOWeek()
	quarter := (int(date.Month())-1)/3 + 1

	return contracts.DateDimRow{
		DateKey:      Key(date),
		FullDate:     date,
		DayOfWeek:    isoWeekday(date),
		DayName:      date.Weekday().String(),
		DayOfMonth:   date.Day(),
		DayOfYear:    date.YearDay(),
		WeekOfYear:   week,
		MonthNumber:  int(date.Month()),
		MonthName:    date.Month().String(),
		QuarterNum:   quarter,
		QuarterName:  fmt.Sprintf("Q%d", quarter),
		YearNumber:   date.Year(),
		IsWeekend:    isWeekend(date),
		IsLeapYear:   isLeapYear(date.Year()),
		IsTradingDay: c.IsTradingDay(date),
	}
}

// Rows builds one row per calendar date in [from, to]
func (c *Calendar) Rows(from, to time.Time) []contracts.DateDimRow {
	from, to = Truncate(from), Truncate(to)
	if to.Before(from) {
		return nil
	}

	rows := make([]contracts.DateDimRow, 0, int(to.Sub(from).Hours()/24)+1)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		rows = append(rows, c.Row(d))
	}
	return rows
}

func isWeekend(d time.Time) bool {
	return d.Weekday() == time.Saturday || d.Weekday() == time.Sunday
}

// isoWeekday: Monday=1 … Sunday=7
func isoWeekday(d time.Time) int {
	if d.Weekday() == time.Sunday {
		return 7
	}
	return int(d.Weekday())
}

func isLeapYear(y int) bool {
	return y%4 == 0 && (y%100 != 0 || y%400 == 0)
}
