package warehouse

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/datekey"
	"github.com/wonny/bankstar/internal/domain"
	"github.com/wonny/bankstar/internal/etl"
	"github.com/wonny/bankstar/internal/trigger"
	"github.com/wonny/bankstar/pkg/config"
	"github.com/wonny/bankstar/pkg/database"
	"github.com/wonny/bankstar/pkg/logger"
)

var (
	_ contracts.Store              = (*Store)(nil)
	_ contracts.DateDimensionStore = (*DimensionRepository)(nil)
	_ contracts.EventLogReader     = (*EventLogRepository)(nil)
	_ contracts.WarehouseReader    = (*ReadRepository)(nil)
)

type pgFixture struct {
	store  *Store
	dims   *DimensionRepository
	events *EventLogRepository
	reads  *ReadRepository
	writer *trigger.Writer
	ticker string
}

// openFixture migrates the test database and seeds 2022..2024 into dim_date.
// Every fixture gets its own ticker so runs do not collide.
func openFixture(t *testing.T) *pgFixture {
	t.Helper()
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	require.NoError(t, database.MigrateUp(cfg.Database.URL))

	db, err := database.New(cfg)
	require.NoError(t, err)
	t.Cleanup(db.Close)

	f := &pgFixture{
		store:  NewStore(db.Pool),
		dims:   NewDimensionRepository(db.Pool),
		events: NewEventLogRepository(db.Pool),
		reads:  NewReadRepository(db.Pool),
		ticker: "T" + strings.ToUpper(uuid.NewString()[:8]),
	}

	cal, err := datekey.NewCalendar(nil)
	require.NoError(t, err)
	_, err = f.dims.EnsureDates(context.Background(), cal.Rows(
		time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
	))
	require.NoError(t, err)

	descs := domain.All(contracts.ConflictUpdate)
	d, err := trigger.NewDefault(etl.NewAbsorber(logger.NewWithWriter(io.Discard, "error")), descs)
	require.NoError(t, err)
	f.writer = trigger.NewWriter(f.store, d, descs)
	return f
}

func TestStore_WriteSourceInsertThenUpdate(t *testing.T) {
	f := openFixture(t)
	ctx := context.Background()
	table := domain.Ratio.Source()

	uow, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	row := contracts.Row{"ticker": f.ticker, "year": int64(2023), "quarter": int64(1), "roe": decimal.RequireFromString("0.15")}
	ev, err := uow.WriteSource(ctx, table, row)
	require.NoError(t, err)
	assert.Equal(t, contracts.OpInsert, ev.Op)
	assert.Nil(t, ev.Old)

	row["roe"] = decimal.RequireFromString("0.17")
	ev, err = uow.WriteSource(ctx, table, row)
	require.NoError(t, err)
	assert.Equal(t, contracts.OpUpdate, ev.Op)
	require.NotNil(t, ev.Old)
	assert.True(t, decimal.RequireFromString("0.15").Equal(ev.Old["roe"].(decimal.Decimal)))
	assert.True(t, decimal.RequireFromString("0.17").Equal(ev.New["roe"].(decimal.Decimal)))
	assert.Equal(t, int64(2023), ev.New["year"])

	_, err = uow.WriteSource(ctx, table, contracts.Row{"nope": 1})
	assert.Error(t, err)
}

func TestStore_SavepointRollsBackInnerWork(t *testing.T) {
	f := openFixture(t)
	ctx := context.Background()

	uow, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	_, err = uow.UpsertCompany(ctx, contracts.CompanyRecord{Ticker: f.ticker})
	require.NoError(t, err)

	inner := f.ticker + "X"
	err = uow.Savepoint(ctx, func(sc contracts.Scope) error {
		if _, err := sc.UpsertCompany(ctx, contracts.CompanyRecord{Ticker: inner}); err != nil {
			return err
		}
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)

	_, err = uow.ResolveCompany(ctx, f.ticker)
	assert.NoError(t, err)
	_, err = uow.ResolveCompany(ctx, inner)
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestStore_ResolveDate(t *testing.T) {
	f := openFixture(t)
	ctx := context.Background()

	uow, err := f.store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	key, err := datekey.ResolvePeriod(ctx, uow, 2023, 5)
	require.NoError(t, err)
	assert.Equal(t, contracts.DateKey(20231231), key)

	_, err = uow.ResolveDate(ctx, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestWriter_EndToEndOnPostgres(t *testing.T) {
	f := openFixture(t)
	ctx := context.Background()

	_, err := f.writer.Write(ctx, "company_profile", contracts.Row{"ticker": f.ticker, "short_name": "Test Bank"})
	require.NoError(t, err)

	for _, q := range []int{3, 4, 5} {
		res, err := f.writer.Write(ctx, "income_statement", contracts.Row{
			"ticker": f.ticker, "year": 2023, "quarter": q, "revenue": "1000.5",
		})
		require.NoError(t, err)
		assert.Equal(t, 1, res.Count(etl.OutcomeApplied))
	}

	rows, err := f.reads.ReadFacts(ctx, contracts.FactQuery{Table: "fact_income_statement", Ticker: f.ticker})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, f.ticker, rows[0]["ticker"])

	// bad row: the raw write commits, the handler skips
	res, err := f.writer.Write(ctx, "income_statement", contracts.Row{"ticker": f.ticker, "year": 2023, "quarter": 7})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count(etl.OutcomeSkipped))

	events, err := f.events.ListEvents(ctx, contracts.EventFilter{Ticker: f.ticker, Kind: contracts.EventSkip})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, contracts.ReasonUnresolvedDimension, events[0].Message)
	assert.Equal(t, "upsert_fact_income_statement", events[0].Handler)
	assert.EqualValues(t, 7, events[0].Payload["quarter"])

	after, err := f.events.ListEventsAfter(ctx, events[0].ID-1, 10)
	require.NoError(t, err)
	require.NotEmpty(t, after)
	assert.Equal(t, events[0].ID, after[0].ID)

	summary, err := f.events.SummarizeEvents(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	var found bool
	for _, c := range summary {
		if c.Ticker != nil && *c.Ticker == f.ticker {
			found = true
			assert.Equal(t, int64(1), c.Count)
		}
	}
	assert.True(t, found)

	company, err := f.reads.ReadCompany(ctx, f.ticker)
	require.NoError(t, err)
	assert.Equal(t, "Test Bank", company["short_name"])

	_, err = f.reads.ReadCompany(ctx, f.ticker+"-missing")
	assert.ErrorIs(t, err, contracts.ErrNotFound)
}

func TestWriter_ConcurrentWritesSameIdentityOnPostgres(t *testing.T) {
	f := openFixture(t)
	ctx := context.Background()

	_, err := f.writer.Write(ctx, "company_profile", contracts.Row{"ticker": f.ticker})
	require.NoError(t, err)

	const writers = 20
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.writer.Write(ctx, "ratios", contracts.Row{
				"ticker": f.ticker, "year": "2023", "quarter": "2", "roe": fmt.Sprintf("0.%02d", i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var rawCount int
	var rawRoe string
	require.NoError(t, f.store.pool.QueryRow(ctx,
		`SELECT COUNT(*) OVER (), roe::text FROM ratios WHERE ticker = $1`, f.ticker).Scan(&rawCount, &rawRoe))
	assert.Equal(t, 1, rawCount)

	facts, err := f.reads.ReadFacts(ctx, contracts.FactQuery{Table: "fact_ratio", Ticker: f.ticker})
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, false, facts[0]["is_annual"])

	factRoe, ok := facts[0]["roe"].(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString(rawRoe).Equal(factRoe), "raw %s, fact %s", rawRoe, factRoe)

	events, err := f.events.ListEvents(ctx, contracts.EventFilter{Ticker: f.ticker})
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDimensionRepository(t *testing.T) {
	f := openFixture(t)
	ctx := context.Background()

	cal, err := datekey.NewCalendar(nil)
	require.NoError(t, err)
	day := time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC)

	n, err := f.dims.EnsureDates(ctx, cal.Rows(day, day))
	require.NoError(t, err)
	assert.Zero(t, n, "existing keys are left alone")

	cov, err := f.dims.DateCoverage(ctx)
	require.NoError(t, err)
	require.NotNil(t, cov.From)
	assert.False(t, cov.From.After(day))
	assert.GreaterOrEqual(t, cov.Count, int64(365*3))
}
