package datekey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/bankstar/internal/contracts"
)

func TestNewCalendar_InvalidHoliday(t *testing.T) {
	_, err := NewCalendar([]string{"2024-01-01"})
	assert.Error(t, err)
}

func TestCalendar_IsTradingDay(t *testing.T) {
	cal, err := NewCalendar([]string{"20240101", "20240430"})
	require.NoError(t, err)

	tests := []struct {
		name string
		date time.Time
		want bool
	}{
		{"new year holiday", date(2024, time.January, 1), false},
		{"ordinary tuesday", date(2024, time.January, 2), true},
		{"saturday", date(2024, time.January, 6), false},
		{"sunday", date(2024, time.January, 7), false},
		{"reunification day", date(2024, time.April, 30), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, cal.IsTradingDay(tt.date))
		})
	}
}

func TestCalendar_Row(t *testing.T) {
	cal, err := NewCalendar(nil)
	require.NoError(t, err)

	row := cal.Row(time.Date(2024, time.February, 29, 15, 30, 0, 0, time.UTC))

	assert.Equal(t, contracts.DateKey(20240229), row.DateKey)
	assert.True(t, date(2024, time.February, 29).Equal(row.FullDate))
	assert.Equal(t, 4, row.DayOfWeek) // Thursday
	assert.Equal(t, "Thursday", row.DayName)
	assert.Equal(t, 29, row.DayOfMonth)
	assert.Equal(t, 60, row.DayOfYear)
	assert.Equal(t, 9, row.WeekOfYear)
	assert.Equal(t, 2, row.MonthNumber)
	assert.Equal(t, "February", row.MonthName)
	assert.Equal(t, 1, row.QuarterNum)
	assert.Equal(t, "Q1", row.QuarterName)
	assert.Equal(t, 2024, row.YearNumber)
	assert.False(t, row.IsWeekend)
	assert.True(t, row.IsLeapYear)
	assert.True(t, row.IsTradingDay)

	sunday := cal.Row(date(2023, time.December, 31))
	assert.Equal(t, 7, sunday.DayOfWeek)
	assert.True(t, sunday.IsWeekend)
	assert.False(t, sunday.IsTradingDay)
	assert.False(t, sunday.IsLeapYear)
	assert.Equal(t, "Q4", sunday.QuarterName)
}

func TestCalendar_Rows(t *testing.T) {
	cal, err := NewCalendar(nil)
	require.NoError(t, err)

	rows := cal.Rows(date(2023, time.January, 1), date(2024, time.December, 31))
	require.Len(t, rows, 365+366)

	// exactly one row per date, keys strictly increasing
	for i := 1; i < len(rows); i++ {
		assert.Less(t, rows[i-1].DateKey, rows[i].DateKey)
		assert.Equal(t, rows[i-1].FullDate.AddDate(0, 0, 1), rows[i].FullDate)
	}

	assert.Empty(t, cal.Rows(date(2024, time.January, 2), date(2024, time.January, 1)))
	assert.Len(t, cal.Rows(date(2024, time.January, 1), date(2024, time.January, 1)), 1)
}
