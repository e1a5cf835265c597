package warehouse

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/bankstar/internal/contracts"
)

// ReadRepository is the relational read surface of the star schema
type ReadRepository struct {
	pool *pgxpool.Pool
}

// NewReadRepository creates a new read repository
func NewReadRepository(pool *pgxpool.Pool) *ReadRepository {
	return &ReadRepository{pool: pool}
}

// ReadFacts returns fact rows of one ticker with ticker and full_date joined in.
// The caller validates q.Table against the domain registry.
func (r *ReadRepository) ReadFacts(ctx context.Context, q contracts.FactQuery) ([]contracts.Row, error) {
	query, args := buildFactRead(q)

	var raw []map[string]any
	if err := pgxscan.Select(ctx, r.pool, &raw, query, args...); err != nil {
		return nil, fmt.Errorf("read %s: %w", q.Table, err)
	}

	rows := make([]contracts.Row, len(raw))
	for i, m := range raw {
		rows[i] = normalizeRow(m)
	}
	return rows, nil
}

// ReadCompany returns the dim_company row of a ticker
func (r *ReadRepository) ReadCompany(ctx context.Context, ticker string) (contracts.Row, error) {
	var m map[string]any
	err := pgxscan.Get(ctx, r.pool, &m, `SELECT * FROM dim_company WHERE ticker = $1`, ticker)
	if pgxscan.NotFound(err) {
		return nil, fmt.Errorf("company %s: %w", ticker, contracts.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read company: %w", err)
	}
	return normalizeRow(m), nil
}
