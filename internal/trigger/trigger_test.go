package trigger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/domain"
	"github.com/wonny/bankstar/internal/etl"
	"github.com/wonny/bankstar/internal/warehouse/memory"
	"github.com/wonny/bankstar/pkg/logger"
)

func newWriter(t *testing.T) (*Writer, *memory.Store) {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.SeedYears(2022, 2024))

	descs := domain.All(contracts.ConflictUpdate)
	d, err := NewDefault(etl.NewAbsorber(logger.NewWithWriter(io.Discard, "error")), descs)
	require.NoError(t, err)
	return NewWriter(store, d, descs), store
}

type recorder struct {
	name  string
	table string
	calls *[]string
}

func (r recorder) Name() string        { return r.name }
func (r recorder) SourceTable() string { return r.table }
func (r recorder) Handle(_ context.Context, _ contracts.Scope, row contracts.Row) etl.Outcome {
	*r.calls = append(*r.calls, r.name)
	return etl.Applied()
}

func TestDispatcher_Bind(t *testing.T) {
	d := NewDispatcher(etl.NewAbsorber(logger.Nop()))
	var calls []string

	require.NoError(t, d.Bind(recorder{"a", "ratios", &calls}))
	require.NoError(t, d.Bind(recorder{"b", "ratios", &calls}, contracts.OpUpdate))
	assert.Error(t, d.Bind(recorder{"a", "ratios", &calls}), "duplicate")
	assert.Error(t, d.Bind(recorder{"c", "ratios", &calls}, contracts.Op("delete")))

	assert.Equal(t, []Binding{
		{Table: "ratios", Handler: "a", Ops: []contracts.Op{contracts.OpInsert, contracts.OpUpdate}},
		{Table: "ratios", Handler: "b", Ops: []contracts.Op{contracts.OpUpdate}},
	}, d.Bindings())
}

func TestDispatcher_FireRoutesByTableAndOp(t *testing.T) {
	store := memory.New()
	d := NewDispatcher(etl.NewAbsorber(logger.Nop()))
	var calls []string

	require.NoError(t, d.Bind(recorder{"ins", "ratios", &calls}, contracts.OpInsert))
	require.NoError(t, d.Bind(recorder{"both", "ratios", &calls}))
	require.NoError(t, d.Bind(recorder{"other", "cash_flow", &calls}))

	ctx := context.Background()
	uow, err := store.Begin(ctx)
	require.NoError(t, err)
	defer uow.Rollback(ctx)

	res := d.Fire(ctx, uow, contracts.ChangeEvent{Table: "ratios", Op: contracts.OpInsert, New: contracts.Row{}})
	assert.Len(t, res, 2)
	assert.Equal(t, []string{"ins", "both"}, calls)

	calls = nil
	res = d.Fire(ctx, uow, contracts.ChangeEvent{Table: "ratios", Op: contracts.OpUpdate, New: contracts.Row{}})
	assert.Len(t, res, 1)
	assert.Equal(t, []string{"both"}, calls)

	calls = nil
	assert.Empty(t, d.Fire(ctx, uow, contracts.ChangeEvent{Table: "daily_chart", Op: contracts.OpInsert}))
	assert.Empty(t, calls)
}

func TestNewDefault_BindsEverySourceTable(t *testing.T) {
	w, _ := newWriter(t)

	bindings := w.Dispatcher().Bindings()
	require.Len(t, bindings, 6)

	tables := map[string]string{}
	for _, b := range bindings {
		tables[b.Table] = b.Handler
		assert.Equal(t, []contracts.Op{contracts.OpInsert, contracts.OpUpdate}, b.Ops)
	}
	assert.Equal(t, "sync_dim_company", tables["company_profile"])
	assert.Equal(t, "upsert_fact_price", tables["daily_chart"])
	assert.Equal(t, "upsert_fact_ratio", tables["ratios"])
	assert.Equal(t, "upsert_fact_balance_sheet", tables["balance_sheet"])
	assert.Equal(t, "upsert_fact_income_statement", tables["income_statement"])
	assert.Equal(t, "upsert_fact_cash_flow", tables["cash_flow"])
}

func TestWriter_EndToEnd(t *testing.T) {
	w, store := newWriter(t)
	ctx := context.Background()

	res, err := w.Write(ctx, "company_profile", contracts.Row{"ticker": "ABC", "short_name": "ABC Bank"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count(etl.OutcomeApplied))

	res, err = w.Write(ctx, "ratios", contracts.Row{"ticker": "ABC", "year": "2023", "quarter": "2", "roe": "0.15"})
	require.NoError(t, err)
	assert.Equal(t, contracts.OpInsert, res.Event.Op)
	assert.Equal(t, 1, res.Count(etl.OutcomeApplied))

	res, err = w.Write(ctx, "ratios", contracts.Row{"ticker": "ABC", "year": "2023", "quarter": "2", "roe": "0.17"})
	require.NoError(t, err)
	assert.Equal(t, contracts.OpUpdate, res.Event.Op, "update events fire too")

	facts := store.FactRows("fact_ratio")
	require.Len(t, facts, 1)
	assert.Equal(t, "0.17", facts[0]["roe"].(interface{ String() string }).String())
	assert.Equal(t, contracts.DateKey(20230630), facts[0]["date_key"])
}

func TestWriter_ConcurrentWritesSameIdentity(t *testing.T) {
	w, store := newWriter(t)
	ctx := context.Background()

	_, err := w.Write(ctx, "company_profile", contracts.Row{"ticker": "ABC"})
	require.NoError(t, err)

	const writers = 50
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := w.Write(ctx, "ratios", contracts.Row{
				"ticker": "ABC", "year": "2023", "quarter": "2", "roe": fmt.Sprintf("0.%02d", i),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	raw := store.SourceRows("ratios")
	require.Len(t, raw, 1)
	facts := store.FactRows("fact_ratio")
	require.Len(t, facts, 1)
	assert.Equal(t, contracts.DateKey(20230630), facts[0]["date_key"])

	rawRoe := raw[0]["roe"].(interface{ String() string }).String()
	factRoe := facts[0]["roe"].(interface{ String() string }).String()
	assert.Equal(t, rawRoe, factRoe, "fact row holds the last committed raw write")
}

func TestWriter_BadRowsStillCommit(t *testing.T) {
	tests := []struct {
		name string
		row  contracts.Row
	}{
		{"null ticker", contracts.Row{"ticker": nil, "year": 2023, "quarter": 2, "roe": "0.1"}},
		{"quarter 7", contracts.Row{"ticker": "ABC", "year": 2023, "quarter": 7, "roe": "0.1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, store := newWriter(t)
			store.SeedCompany("ABC")

			res, err := w.Write(context.Background(), "ratios", tt.row)
			require.NoError(t, err, "the triggering write succeeds")
			assert.Equal(t, 1, res.Count(etl.OutcomeSkipped))

			assert.Len(t, store.SourceRows("ratios"), 1, "raw row committed")
			assert.Empty(t, store.FactRows("fact_ratio"))
			assert.Len(t, store.Events(), 1)
		})
	}
}

func TestWriter_HandlerFailureStillCommitsSource(t *testing.T) {
	w, store := newWriter(t)
	store.SeedCompany("ABC")
	store.FailFacts("fact_cash_flow", errors.New("could not serialize access"))

	res, err := w.Write(context.Background(), "cash_flow", contracts.Row{"ticker": "ABC", "year": 2023, "quarter": 1, "from_sale": "1"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Count(etl.OutcomeFailed))

	assert.Len(t, store.SourceRows("cash_flow"), 1)
	assert.Empty(t, store.FactRows("fact_cash_flow"))
	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, contracts.EventFailure, events[0].Kind)
}

func TestWriter_Errors(t *testing.T) {
	w, store := newWriter(t)
	ctx := context.Background()

	_, err := w.Write(ctx, "fact_ratio", contracts.Row{"ticker": "ABC"})
	assert.ErrorIs(t, err, ErrUnknownTable)

	// the raw column type itself rejects the value, like a typed INSERT would
	_, err = w.Write(ctx, "daily_chart", contracts.Row{"ticker": "ABC", "date": "yesterday"})
	assert.Error(t, err)

	store.FailSourceWrites("balance_sheet", errors.New("disk full"))
	_, err = w.Write(ctx, "balance_sheet", contracts.Row{"ticker": "ABC", "year": 2023, "quarter": 1})
	assert.ErrorContains(t, err, "disk full")
	assert.Empty(t, store.SourceRows("balance_sheet"))

	// the store is usable again: nothing left a unit of work open
	_, err = w.Write(ctx, "company_profile", contracts.Row{"ticker": "ABC"})
	assert.NoError(t, err)
}
