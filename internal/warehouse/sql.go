// Package warehouse is the Postgres implementation of the warehouse contracts.
package warehouse

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/wonny/bankstar/internal/contracts"
)

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = ident(n)
	}
	return strings.Join(quoted, ", ")
}

func placeholders(from, n int) string {
	ps := make([]string, n)
	for i := range ps {
		ps[i] = fmt.Sprintf("$%d", from+i)
	}
	return strings.Join(ps, ", ")
}

func excludedSet(cols []string) string {
	sets := make([]string, len(cols))
	for i, c := range cols {
		sets[i] = fmt.Sprintf("%s = EXCLUDED.%s", ident(c), ident(c))
	}
	return strings.Join(sets, ", ")
}

// sqlValue converts coerced values to what pgx encodes for NUMERIC columns.
// Decimals travel as text so no precision is lost.
func sqlValue(v any) any {
	switch x := v.(type) {
	case decimal.Decimal:
		return x.String()
	case decimal.NullDecimal:
		if !x.Valid {
			return nil
		}
		return x.Decimal.String()
	}
	return v
}

func sqlValues(vs []any) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = sqlValue(v)
	}
	return out
}

// buildFactUpsert renders the idempotent write of one fact row.
// The conflict target is the full identity, so the write is atomic per identity.
func buildFactUpsert(f contracts.FactRow) (string, []any, error) {
	if len(f.Columns) != len(f.Values) {
		return "", nil, fmt.Errorf("%s: %d columns, %d values", f.Table, len(f.Columns), len(f.Values))
	}

	identity := []string{"date_key", "company_key"}
	args := []any{int32(f.DateKey), int64(f.CompanyKey)}
	if f.IsAnnual != nil {
		identity = append(identity, "is_annual")
		args = append(args, *f.IsAnnual)
	}

	cols := append(append([]string{}, identity...), f.Columns...)
	args = append(args, sqlValues(f.Values)...)

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s, updated_at) VALUES (%s, NOW()) ON CONFLICT (%s) ",
		ident(f.Table), identList(cols), placeholders(1, len(cols)), identList(identity))

	if f.Policy == contracts.ConflictIgnore {
		b.WriteString("DO NOTHING")
	} else {
		b.WriteString("DO UPDATE SET ")
		if len(f.Columns) > 0 {
			b.WriteString(excludedSet(f.Columns))
			b.WriteString(", ")
		}
		b.WriteString("updated_at = NOW()")
	}
	return b.String(), args, nil
}

// buildCompanyUpsert renders the type-1 replace of one dim_company row
func buildCompanyUpsert(rec contracts.CompanyRecord) (string, []any, error) {
	if len(rec.Columns) != len(rec.Values) {
		return "", nil, fmt.Errorf("dim_company: %d columns, %d values", len(rec.Columns), len(rec.Values))
	}

	cols := append([]string{"ticker"}, rec.Columns...)
	args := append([]any{rec.Ticker}, sqlValues(rec.Values)...)

	set := "updated_at = NOW()"
	if len(rec.Columns) > 0 {
		set = excludedSet(rec.Columns) + ", " + set
	}

	query := fmt.Sprintf(
		"INSERT INTO dim_company (%s, updated_at) VALUES (%s, NOW()) ON CONFLICT (ticker) DO UPDATE SET %s RETURNING company_key",
		identList(cols), placeholders(1, len(cols)), set)
	return query, args, nil
}

// buildSourceWrite renders the raw write. Rows with a complete natural key
// upsert on it; the rest are plain inserts. (xmax = 0) marks a fresh insert.
func buildSourceWrite(table contracts.SourceTable, row contracts.Row, keyComplete bool) (string, []any) {
	var cols []string
	var args []any
	for _, c := range table.Columns {
		if v, ok := row[c]; ok {
			cols = append(cols, c)
			args = append(args, sqlValue(v))
		}
	}

	var b strings.Builder
	if len(cols) == 0 {
		fmt.Fprintf(&b, "INSERT INTO %s DEFAULT VALUES", ident(table.Name))
	} else {
		fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES (%s)", ident(table.Name), identList(cols), placeholders(1, len(cols)))
	}

	if keyComplete {
		keySet := map[string]bool{}
		for _, k := range table.Key {
			keySet[k] = true
		}
		var update []string
		for _, c := range cols {
			if !keySet[c] {
				update = append(update, c)
			}
		}
		set := excludedSet(update)
		if set == "" {
			set = fmt.Sprintf("%s = EXCLUDED.%s", ident(table.Key[0]), ident(table.Key[0]))
		}
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO UPDATE SET %s, ingested_at = NOW()", identList(table.Key), set)
	}

	fmt.Fprintf(&b, " RETURNING %s, (xmax = 0) AS inserted", identList(table.Columns))
	return b.String(), args
}

// buildSourceLock renders the old-image read of a raw row
func buildSourceLock(table contracts.SourceTable) string {
	conds := make([]string, len(table.Key))
	for i, k := range table.Key {
		conds[i] = fmt.Sprintf("%s = $%d", ident(k), i+1)
	}
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s FOR UPDATE",
		identList(table.Columns), ident(table.Name), strings.Join(conds, " AND "))
}

// buildFactRead renders a fact range query joined to both dimensions
func buildFactRead(q contracts.FactQuery) (string, []any) {
	args := []any{q.Ticker}
	conds := []string{"c.ticker = $1"}

	if !q.From.IsZero() {
		args = append(args, q.From)
		conds = append(conds, fmt.Sprintf("d.full_date >= $%d", len(args)))
	}
	if !q.To.IsZero() {
		args = append(args, q.To)
		conds = append(conds, fmt.Sprintf("d.full_date <= $%d", len(args)))
	}
	if q.Annual != nil {
		args = append(args, *q.Annual)
		conds = append(conds, fmt.Sprintf("f.is_annual = $%d", len(args)))
	}

	query := fmt.Sprintf(`SELECT c.ticker, d.full_date, f.*
FROM %s f
JOIN dim_company c ON c.company_key = f.company_key
JOIN dim_date d ON d.date_key = f.date_key
WHERE %s
ORDER BY f.date_key`, ident(q.Table), strings.Join(conds, " AND "))

	if q.Limit > 0 {
		args = append(args, q.Limit)
		query += fmt.Sprintf("\nLIMIT $%d", len(args))
	}
	return query, args
}
