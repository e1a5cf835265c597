package ingest

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/domain"
	"github.com/wonny/bankstar/internal/etl"
	"github.com/wonny/bankstar/internal/trigger"
	"github.com/wonny/bankstar/internal/warehouse/memory"
	"github.com/wonny/bankstar/pkg/logger"
)

func writeDrop(t *testing.T, root, ticker, table, content string) string {
	t.Helper()
	dir := filepath.Join(root, ticker)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, ticker+"_"+table+".csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newLoader(t *testing.T, opts ...Option) (*Loader, *memory.Store) {
	t.Helper()
	store := memory.New()
	require.NoError(t, store.SeedYears(2022, 2024))

	descs := domain.All(contracts.ConflictUpdate)
	d, err := trigger.NewDefault(etl.NewAbsorber(logger.NewWithWriter(io.Discard, "error")), descs)
	require.NoError(t, err)
	return NewLoader(trigger.NewWriter(store, d, descs), logger.NewWithWriter(io.Discard, "error"), opts...), store
}

func TestParseFileName(t *testing.T) {
	tests := []struct {
		name   string
		ticker string
		table  string
		ok     bool
	}{
		{"ACB_ratios.csv", "ACB", "ratios", true},
		{"ACB_balance_sheet.csv", "ACB", "balance_sheet", true},
		{"VCB_company_profile.CSV", "VCB", "company_profile", true},
		{"ACB.csv", "", "", false},
		{"ACB_ratios.json", "", "", false},
		{"_ratios.csv", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ticker, table, ok := ParseFileName(tt.name)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.ticker, ticker)
			assert.Equal(t, tt.table, table)
		})
	}
}

func TestDiscover_CompanyProfileFirst(t *testing.T) {
	root := t.TempDir()
	writeDrop(t, root, "ACB", "ratios", "ticker\n")
	writeDrop(t, root, "VCB", "cash_flow", "ticker\n")
	writeDrop(t, root, "VCB", "company_profile", "ticker\n")
	writeDrop(t, root, "ACB", "company_profile", "ticker\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "ACB", "notes.txt"), []byte("x"), 0o644))

	files, err := Discover(root)
	require.NoError(t, err)

	var order []string
	for _, f := range files {
		order = append(order, f.Ticker+"/"+f.Table)
	}
	assert.Equal(t, []string{
		"ACB/company_profile",
		"VCB/company_profile",
		"VCB/cash_flow",
		"ACB/ratios",
	}, order)
}

func TestParseCSV(t *testing.T) {
	rows, err := ParseCSV([]byte("\xEF\xBB\xBFticker,year,quarter,roe\nACB,2023,1,0.2\nACB,2023,2,\n"))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, "ACB", rows[0]["ticker"], "BOM is stripped from the header")
	assert.Equal(t, "0.2", rows[0]["roe"])

	v, present := rows[1]["roe"]
	assert.True(t, present)
	assert.Nil(t, v, "empty cell is NULL")

	rows, err = ParseCSV(nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPrepare(t *testing.T) {
	t.Run("ticker from folder when the column is absent", func(t *testing.T) {
		row := Prepare(domain.Price, "ACB", contracts.Row{"date": "2024-01-02"})
		assert.Equal(t, "ACB", row["ticker"])
	})

	t.Run("blank ticker column is kept as NULL", func(t *testing.T) {
		row := Prepare(domain.Price, "ACB", contracts.Row{"ticker": nil})
		assert.Nil(t, row["ticker"])
	})

	t.Run("period column", func(t *testing.T) {
		row := Prepare(domain.Ratio, "ACB", contracts.Row{"period": "2022-Q3"})
		assert.Equal(t, 2022, row["year"])
		assert.Equal(t, 3, row["quarter"])
		assert.NotContains(t, row, "period")

		row = Prepare(domain.Ratio, "ACB", contracts.Row{"report_period": "2021"})
		assert.Equal(t, 5, row["quarter"])
	})

	t.Run("explicit year and quarter win", func(t *testing.T) {
		row := Prepare(domain.Ratio, "ACB", contracts.Row{"period": "2022-Q3", "year": "2020", "quarter": "1"})
		assert.Equal(t, "2020", row["year"])
	})
}

func TestDedupe_KeepsFirst(t *testing.T) {
	rows := []contracts.Row{
		{"ticker": "ACB", "year": "2023", "quarter": "1", "roe": "0.1"},
		{"ticker": "ACB", "year": "2023", "quarter": "1", "roe": "0.9"},
		{"ticker": "ACB", "year": "2023", "quarter": "2", "roe": "0.2"},
		{"ticker": nil, "year": "2023", "quarter": "2"},
		{"ticker": nil, "year": "2023", "quarter": "2"},
	}

	kept, dropped := Dedupe(domain.Ratio, rows)
	assert.Equal(t, 1, dropped)
	require.Len(t, kept, 4)
	assert.Equal(t, "0.1", kept[0]["roe"])
}

func TestLoader_LoadDir(t *testing.T) {
	root := t.TempDir()
	writeDrop(t, root, "ACB", "ratios", "ticker,year,quarter,roe\nACB,2023,1,0.21\nACB,2023,1,0.99\nACB,2023,7,0.1\n,2023,2,0.3\n")
	writeDrop(t, root, "ACB", "company_profile", "ticker,short_name,exchange\nACB,Asia Commercial Bank,HOSE\n")
	writeDrop(t, root, "ACB", "daily_chart", "date,open,high,low,close,volume\n2024-01-02,24000,24500,23900,24300,1200000\nnot-a-date,1,1,1,1,1\n")
	writeDrop(t, root, "ACB", "dividends", "ticker\nACB\n")

	l, store := newLoader(t)
	rep, err := l.LoadDir(context.Background(), root)
	require.NoError(t, err)

	assert.NotEmpty(t, rep.RunID)
	assert.Len(t, rep.UnknownFiles, 1)
	assert.Len(t, rep.Processed, 3)
	assert.Equal(t, []string{"company_profile", "daily_chart", "ratios"}, rep.TableNames())

	ratios := rep.Tables["ratios"]
	assert.Equal(t, 4, ratios.Rows)
	assert.Equal(t, 1, ratios.Duplicates)
	assert.Equal(t, 3, ratios.Written)
	assert.Equal(t, 1, ratios.Applied)
	assert.Equal(t, 2, ratios.Skipped, "bad quarter and missing ticker")

	chart := rep.Tables["daily_chart"]
	assert.Equal(t, 1, chart.Written)
	assert.Equal(t, 1, chart.Rejected, "uncoercible date")

	total := rep.Totals()
	assert.Equal(t, 5, total.Written)
	assert.Equal(t, 1, store.CompanyCount())
	assert.Len(t, store.FactRows("fact_ratio"), 1)
	assert.Len(t, store.FactRows("fact_price"), 1)
	assert.Len(t, store.Events(), 2)
}

type cancelWriter struct{ calls int }

func (w *cancelWriter) Write(ctx context.Context, table string, row contracts.Row) (trigger.WriteResult, error) {
	w.calls++
	return trigger.WriteResult{}, context.Canceled
}

func TestLoader_StopsOnCancel(t *testing.T) {
	root := t.TempDir()
	writeDrop(t, root, "ACB", "ratios", "ticker,year,quarter\nACB,2023,1\nACB,2023,2\n")
	writeDrop(t, root, "VCB", "ratios", "ticker,year,quarter\nVCB,2023,1\n")

	w := &cancelWriter{}
	l := NewLoader(w, logger.Nop())
	_, err := l.LoadDir(context.Background(), root)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, w.calls)
}

func TestLoader_Pacing(t *testing.T) {
	root := t.TempDir()
	writeDrop(t, root, "ACB", "company_profile", "ticker\nACB\n")

	paced := 0
	l, _ := newLoader(t, WithRowsPerSecond(1000), WithDryRun(true), WithPacer(func(context.Context) error {
		paced++
		return nil
	}))
	require.NotNil(t, l.limiter)

	rep, err := l.LoadDir(context.Background(), root)
	require.NoError(t, err)
	assert.True(t, rep.DryRun)
	assert.Equal(t, 1, rep.Totals().Written)
	assert.Equal(t, 1, paced)
}

func TestMoveProcessed(t *testing.T) {
	root := t.TempDir()
	dest := t.TempDir()
	path := writeDrop(t, root, "ACB", "ratios", "ticker\nACB\n")

	files := []File{{Path: path, Ticker: "ACB", Table: "ratios"}}
	require.NoError(t, MoveProcessed(dest, "run-1", files))

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dest, "run-1", "ACB", "ACB_ratios.csv"))
	assert.NoError(t, err)
}
