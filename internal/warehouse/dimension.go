package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/bankstar/internal/contracts"
)

// querier is the part of pgx.Tx and pgxpool.Pool the repositories use
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func resolveDate(ctx context.Context, q querier, date time.Time) (contracts.DateKey, error) {
	var key int32
	err := q.QueryRow(ctx, `SELECT date_key FROM dim_date WHERE full_date = $1`, date).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("date %s: %w", date.Format("2006-01-02"), contracts.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve date: %w", err)
	}
	return contracts.DateKey(key), nil
}

func resolveCompany(ctx context.Context, q querier, ticker string) (contracts.CompanyKey, error) {
	var key int64
	err := q.QueryRow(ctx, `SELECT company_key FROM dim_company WHERE ticker = $1`, ticker).Scan(&key)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("company %s: %w", ticker, contracts.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("resolve company: %w", err)
	}
	return contracts.CompanyKey(key), nil
}

func upsertCompany(ctx context.Context, q querier, rec contracts.CompanyRecord) (contracts.CompanyKey, error) {
	query, args, err := buildCompanyUpsert(rec)
	if err != nil {
		return 0, err
	}

	var key int64
	if err := q.QueryRow(ctx, query, args...).Scan(&key); err != nil {
		return 0, fmt.Errorf("upsert dim_company: %w", err)
	}
	return contracts.CompanyKey(key), nil
}

// DimensionRepository maintains dim_date outside of the trigger path
type DimensionRepository struct {
	pool *pgxpool.Pool
}

// NewDimensionRepository creates a new dimension repository
func NewDimensionRepository(pool *pgxpool.Pool) *DimensionRepository {
	return &DimensionRepository{pool: pool}
}

const insertDateQuery = `
	INSERT INTO dim_date (
		date_key, full_date, day_of_week, day_name, day_of_month, day_of_year,
		week_of_year, month_number, month_name, quarter_number, quarter_name,
		year_number, is_weekend, is_leap_year, is_trading_day
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (date_key) DO NOTHING
`

// EnsureDates inserts missing dim_date rows. Existing keys are never rewritten.
func (r *DimensionRepository) EnsureDates(ctx context.Context, rows []contracts.DateDimRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, d := range rows {
		batch.Queue(insertDateQuery,
			int32(d.DateKey), d.FullDate, d.DayOfWeek, d.DayName, d.DayOfMonth, d.DayOfYear,
			d.WeekOfYear, d.MonthNumber, d.MonthName, d.QuarterNum, d.QuarterName,
			d.YearNumber, d.IsWeekend, d.IsLeapYear, d.IsTradingDay,
		)
	}

	var inserted int64
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		defer br.Close()

		for i := range rows {
			tag, err := br.Exec()
			if err != nil {
				return fmt.Errorf("insert date %d: %w", rows[i].DateKey, err)
			}
			inserted += tag.RowsAffected()
		}
		return br.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("ensure dates: %w", err)
	}
	return inserted, nil
}

// DateCoverage returns the range dim_date covers
func (r *DimensionRepository) DateCoverage(ctx context.Context) (contracts.DateCoverage, error) {
	var cov contracts.DateCoverage
	err := pgxscan.Get(ctx, r.pool, &cov, `
		SELECT MIN(full_date) AS min_date, MAX(full_date) AS max_date, COUNT(*) AS row_count
		FROM dim_date
	`)
	if err != nil {
		return contracts.DateCoverage{}, fmt.Errorf("date coverage: %w", err)
	}
	return cov, nil
}
