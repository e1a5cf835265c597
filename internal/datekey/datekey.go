// Package datekey derives dim_date keys from calendar dates and reporting periods.
package datekey

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/bankstar/internal/contracts"
)

// AnnualQuarter is the pseudo-quarter that marks a whole-year record
const AnnualQuarter = 5

// PeriodEnd maps (year, quarter) to the last calendar day of the period.
// Quarter 5 is the annual record and ends on Dec 31 like quarter 4.
func PeriodEnd(year, quarter int) (time.Time, bool) {
	var month time.Month
	switch quarter {
	case 1:
		month = time.March
	case 2:
		month = time.June
	case 3:
		month = time.September
	case 4, AnnualQuarter:
		month = time.December
	default:
		return time.Time{}, false
	}
	// day 0 of the next month = last day of month
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC), true
}

// IsAnnual reports whether quarter is the annual pseudo-quarter
func IsAnnual(quarter int) bool {
	return quarter == AnnualQuarter
}

// Key encodes a date as YYYYMMDD. Order preserving.
func Key(date time.Time) contracts.DateKey {
	y, m, d := date.Date()
	return contracts.DateKey(y*10000 + int(m)*100 + d)
}

// FromKey decodes a YYYYMMDD key
func FromKey(key contracts.DateKey) (time.Time, error) {
	k := int(key)
	y, m, d := k/10000, (k/100)%100, k%100
	t := time.Date(y, time.Month(m), d, 0, 0, 0, 0, time.UTC)
	if m < 1 || m > 12 || t.Day() != d || t.Month() != time.Month(m) {
		return time.Time{}, fmt.Errorf("invalid date key %d", k)
	}
	return t, nil
}

// Truncate drops the clock part and normalises to UTC
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParsePeriod reads the period labels used by financial report exports:
// "2022-Q1" → (2022, 1), "2022" → (2022, 5).
func ParsePeriod(s string) (year, quarter int, err error) {
	s = strings.TrimSpace(s)
	yearPart, quarterPart, hasQuarter := strings.Cut(s, "-")

	year, err = strconv.Atoi(yearPart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid period %q: %w", s, err)
	}
	if !hasQuarter {
		return year, AnnualQuarter, nil
	}

	quarterPart = strings.TrimPrefix(strings.ToUpper(quarterPart), "Q")
	quarter, err = strconv.Atoi(quarterPart)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid period %q: %w", s, err)
	}
	if quarter < 1 || quarter > 4 {
		return 0, 0, fmt.Errorf("invalid period %q: quarter out of range", s)
	}
	return year, quarter, nil
}

// ResolvePeriod resolves (year, quarter) to a dim_date key.
// Unsupported quarters and dates outside dim_date both yield contracts.ErrNotFound.
func ResolvePeriod(ctx context.Context, dates contracts.DateKeyResolver, year, quarter int) (contracts.DateKey, error) {
	end, ok := PeriodEnd(year, quarter)
	if !ok {
		return 0, fmt.Errorf("quarter %d: %w", quarter, contracts.ErrNotFound)
	}
	return dates.ResolveDate(ctx, end)
}
