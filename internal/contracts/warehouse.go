package contracts

import (
	"context"
	"errors"
	"time"
)

// ⭐ SSOT: 웨어하우스 저장소 인터페이스 정의는 여기서만

// ErrNotFound is returned by dimension lookups that have no matching row
var ErrNotFound = errors.New("not found")

// DateKey is the YYYYMMDD surrogate key of dim_date
type DateKey int32

// CompanyKey is the surrogate key of dim_company
type CompanyKey int64

// ConflictPolicy decides what a fact upsert does when the identity already exists
type ConflictPolicy string

const (
	ConflictUpdate ConflictPolicy = "update"
	ConflictIgnore ConflictPolicy = "ignore"
)

// FactRow is one fact-table write: identity plus all measure columns.
// IsAnnual is nil for identities without the annual flag (fact_price).
type FactRow struct {
	Table      string
	DateKey    DateKey
	CompanyKey CompanyKey
	IsAnnual   *bool
	Columns    []string
	Values     []any
	Policy     ConflictPolicy
}

// Identity returns the identity tuple as a map key
func (f FactRow) Identity() FactIdentity {
	id := FactIdentity{DateKey: f.DateKey, CompanyKey: f.CompanyKey}
	if f.IsAnnual != nil {
		id.HasFlag = true
		id.IsAnnual = *f.IsAnnual
	}
	return id
}

// FactIdentity is the composite primary key of a fact row
type FactIdentity struct {
	DateKey    DateKey
	CompanyKey CompanyKey
	HasFlag    bool
	IsAnnual   bool
}

// CompanyRecord replaces every descriptive attribute of one dim_company row
type CompanyRecord struct {
	Ticker  string
	Columns []string
	Values  []any
}

// DateDimRow is one dim_date row
type DateDimRow struct {
	DateKey      DateKey   `db:"date_key" json:"date_key"`
	FullDate     time.Time `db:"full_date" json:"full_date"`
	DayOfWeek    int       `db:"day_of_week" json:"day_of_week"`
	DayName      string    `db:"day_name" json:"day_name"`
	DayOfMonth   int       `db:"day_of_month" json:"day_of_month"`
	DayOfYear    int       `db:"day_of_year" json:"day_of_year"`
	WeekOfYear   int       `db:"week_of_year" json:"week_of_year"`
	MonthNumber  int       `db:"month_number" json:"month_number"`
	MonthName    string    `db:"month_name" json:"month_name"`
	QuarterNum   int       `db:"quarter_number" json:"quarter_number"`
	QuarterName  string    `db:"quarter_name" json:"quarter_name"`
	YearNumber   int       `db:"year_number" json:"year_number"`
	IsWeekend    bool      `db:"is_weekend" json:"is_weekend"`
	IsLeapYear   bool      `db:"is_leap_year" json:"is_leap_year"`
	IsTradingDay bool      `db:"is_trading_day" json:"is_trading_day"`
}

// DateCoverage summarises the range dim_date currently covers
type DateCoverage struct {
	From  *time.Time `db:"min_date" json:"from"`
	To    *time.Time `db:"max_date" json:"to"`
	Count int64      `db:"row_count" json:"count"`
}

// DateKeyResolver looks up the dim_date key for a calendar date
type DateKeyResolver interface {
	ResolveDate(ctx context.Context, date time.Time) (DateKey, error)
}

// CompanyResolver looks up the dim_company key for a ticker (exact, case sensitive)
type CompanyResolver interface {
	ResolveCompany(ctx context.Context, ticker string) (CompanyKey, error)
}

// CompanyWriter is owned by the company sync handler
type CompanyWriter interface {
	UpsertCompany(ctx context.Context, rec CompanyRecord) (CompanyKey, error)
}

// FactWriter is owned by the per-domain fact handlers
type FactWriter interface {
	UpsertFact(ctx context.Context, fact FactRow) error
}

// EventRecorder appends to etl_event_log
type EventRecorder interface {
	RecordEvent(ctx context.Context, entry EventEntry) error
}

// Scope is everything a handler may touch while it runs.
// It is bound to the transaction of the triggering write.
type Scope interface {
	DateKeyResolver
	CompanyResolver
	CompanyWriter
	FactWriter
	EventRecorder

	// Savepoint runs fn in a nested unit of work.
	// fn's error rolls back only what fn wrote.
	Savepoint(ctx context.Context, fn func(Scope) error) error
}

// SourceTable describes a raw table for the write path
type SourceTable struct {
	Name    string
	Key     []string // natural key columns
	Columns []string // every column the table accepts, key included
}

// UnitOfWork is one transaction over the warehouse
type UnitOfWork interface {
	Scope

	// WriteSource inserts or updates a raw row on its natural key and
	// returns the change event describing the write.
	WriteSource(ctx context.Context, table SourceTable, row Row) (ChangeEvent, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Store opens units of work
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// DateDimensionStore maintains dim_date. Only the date maintenance path writes it.
type DateDimensionStore interface {
	EnsureDates(ctx context.Context, rows []DateDimRow) (int64, error)
	DateCoverage(ctx context.Context) (DateCoverage, error)
}

// FactQuery selects fact rows of one ticker. Zero From/To leave the range open.
type FactQuery struct {
	Table  string
	Ticker string
	From   time.Time
	To     time.Time
	Annual *bool
	Limit  int
}

// WarehouseReader is the relational read surface used by reporting and the API
type WarehouseReader interface {
	ReadFacts(ctx context.Context, q FactQuery) ([]Row, error)
	ReadCompany(ctx context.Context, ticker string) (Row, error)
}
