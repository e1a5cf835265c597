package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/datekey"
	"github.com/wonny/bankstar/pkg/logger"
)

// HorizonFunc returns the calendar range dim_date must cover at now
type HorizonFunc func(now time.Time) (from, to time.Time)

// DateHorizonJob keeps dim_date covering the configured horizon.
// It only adds missing dates; existing keys are never rewritten.
type DateHorizonJob struct {
	dates    contracts.DateDimensionStore
	calendar *datekey.Calendar
	horizon  HorizonFunc
	schedule string
	now      func() time.Time
	logger   *logger.Logger
}

// NewDateHorizonJob creates a new date horizon job
func NewDateHorizonJob(dates contracts.DateDimensionStore, cal *datekey.Calendar, horizon HorizonFunc, schedule string, log *logger.Logger) *DateHorizonJob {
	return &DateHorizonJob{
		dates:    dates,
		calendar: cal,
		horizon:  horizon,
		schedule: schedule,
		now:      time.Now,
		logger:   log,
	}
}

// Name returns the job name
func (j *DateHorizonJob) Name() string {
	return "date_horizon"
}

// Schedule returns the cron schedule
func (j *DateHorizonJob) Schedule() string {
	return j.schedule
}

// Run extends dim_date to the horizon
func (j *DateHorizonJob) Run(ctx context.Context) error {
	from, to := j.horizon(j.now())
	if to.Before(from) {
		return fmt.Errorf("empty date horizon %s..%s", from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	inserted, err := j.dates.EnsureDates(ctx, j.calendar.Rows(from, to))
	if err != nil {
		return fmt.Errorf("extend date dimension: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"from":     from.Format("2006-01-02"),
		"to":       to.Format("2006-01-02"),
		"inserted": inserted,
	}).Info("Date dimension horizon ensured")
	return nil
}
