package warehouse

import (
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/domain"
)

func TestBuildFactUpsert(t *testing.T) {
	annual := true
	query, args, err := buildFactUpsert(contracts.FactRow{
		Table:      "fact_ratio",
		DateKey:    20231231,
		CompanyKey: 7,
		IsAnnual:   &annual,
		Columns:    []string{"roe", "roa"},
		Values:     []any{decimal.RequireFromString("0.15"), nil},
		Policy:     contracts.ConflictUpdate,
	})
	require.NoError(t, err)

	assert.Equal(t,
		`INSERT INTO "fact_ratio" ("date_key", "company_key", "is_annual", "roe", "roa", updated_at) VALUES ($1, $2, $3, $4, $5, NOW()) `+
			`ON CONFLICT ("date_key", "company_key", "is_annual") DO UPDATE SET "roe" = EXCLUDED."roe", "roa" = EXCLUDED."roa", updated_at = NOW()`,
		query)
	assert.Equal(t, []any{int32(20231231), int64(7), true, "0.15", nil}, args)
}

func TestBuildFactUpsert_PriceIgnore(t *testing.T) {
	query, args, err := buildFactUpsert(contracts.FactRow{
		Table:      "fact_price",
		DateKey:    20240102,
		CompanyKey: 3,
		Columns:    []string{"close"},
		Values:     []any{decimal.NewFromInt(25000)},
		Policy:     contracts.ConflictIgnore,
	})
	require.NoError(t, err)

	assert.Contains(t, query, `ON CONFLICT ("date_key", "company_key") DO NOTHING`)
	assert.NotContains(t, query, "is_annual")
	assert.Len(t, args, 3)
}

func TestBuildFactUpsert_Mismatch(t *testing.T) {
	_, _, err := buildFactUpsert(contracts.FactRow{Table: "fact_ratio", Columns: []string{"roe"}})
	assert.Error(t, err)
}

func TestBuildCompanyUpsert(t *testing.T) {
	query, args, err := buildCompanyUpsert(contracts.CompanyRecord{
		Ticker:  "VCB",
		Columns: []string{"short_name", "exchange"},
		Values:  []any{"Vietcombank", nil},
	})
	require.NoError(t, err)

	assert.Contains(t, query, `ON CONFLICT (ticker) DO UPDATE SET "short_name" = EXCLUDED."short_name", "exchange" = EXCLUDED."exchange", updated_at = NOW()`)
	assert.Contains(t, query, "RETURNING company_key")
	assert.Equal(t, []any{"VCB", "Vietcombank", nil}, args)
}

func TestBuildSourceWrite(t *testing.T) {
	table := contracts.SourceTable{
		Name:    "ratios",
		Key:     []string{"ticker", "year", "quarter"},
		Columns: []string{"ticker", "year", "quarter", "roe", "roa"},
	}

	t.Run("complete key upserts provided columns only", func(t *testing.T) {
		query, args := buildSourceWrite(table, contracts.Row{"ticker": "ACB", "year": int64(2023), "quarter": int64(1), "roe": decimal.RequireFromString("0.2")}, true)

		assert.Contains(t, query, `INSERT INTO "ratios" ("ticker", "year", "quarter", "roe") VALUES ($1, $2, $3, $4)`)
		assert.Contains(t, query, `ON CONFLICT ("ticker", "year", "quarter") DO UPDATE SET "roe" = EXCLUDED."roe", ingested_at = NOW()`)
		assert.Contains(t, query, `RETURNING "ticker", "year", "quarter", "roe", "roa", (xmax = 0) AS inserted`)
		assert.Equal(t, []any{"ACB", int64(2023), int64(1), "0.2"}, args)
	})

	t.Run("key only still returns the row", func(t *testing.T) {
		query, _ := buildSourceWrite(table, contracts.Row{"ticker": "ACB", "year": int64(2023), "quarter": int64(1)}, true)
		assert.Contains(t, query, `DO UPDATE SET "ticker" = EXCLUDED."ticker"`)
	})

	t.Run("incomplete key is a plain insert", func(t *testing.T) {
		query, _ := buildSourceWrite(table, contracts.Row{"year": int64(2023)}, false)
		assert.NotContains(t, query, "ON CONFLICT")
	})

	t.Run("empty row", func(t *testing.T) {
		query, args := buildSourceWrite(table, contracts.Row{}, false)
		assert.Contains(t, query, `INSERT INTO "ratios" DEFAULT VALUES`)
		assert.Empty(t, args)
	})
}

func TestBuildSourceLock(t *testing.T) {
	assert.Equal(t,
		`SELECT "ticker", "date", "open", "high", "low", "close", "volume" FROM "daily_chart" WHERE "ticker" = $1 AND "date" = $2 FOR UPDATE`,
		buildSourceLock(domain.Price.Source()))
}

func TestBuildFactRead(t *testing.T) {
	annual := false
	query, args := buildFactRead(contracts.FactQuery{
		Table:  "fact_income_statement",
		Ticker: "ACB",
		From:   mustDate(t, "2022-01-01"),
		Annual: &annual,
		Limit:  10,
	})

	assert.Contains(t, query, `FROM "fact_income_statement" f`)
	assert.Contains(t, query, "c.ticker = $1 AND d.full_date >= $2 AND f.is_annual = $3")
	assert.Contains(t, query, "LIMIT $4")
	assert.Len(t, args, 4)
}

func TestNormalizeValue(t *testing.T) {
	var n pgtype.Numeric
	require.NoError(t, n.Scan("12.345"))

	got, ok := normalizeValue(n).(decimal.Decimal)
	require.True(t, ok)
	assert.True(t, got.Equal(decimal.RequireFromString("12.345")))

	assert.Nil(t, normalizeValue(pgtype.Numeric{}))
	assert.Nil(t, normalizeValue(pgtype.Numeric{Valid: true, NaN: true}))
	assert.Equal(t, int64(2023), normalizeValue(int32(2023)))
	assert.Equal(t, "ACB", normalizeValue("ACB"))
}

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", s)
	require.NoError(t, err)
	return d
}
