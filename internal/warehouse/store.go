package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/wonny/bankstar/internal/contracts"
)

// Store opens warehouse units of work over a pgx pool
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new store
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Begin starts a unit of work
func (s *Store) Begin(ctx context.Context) (contracts.UnitOfWork, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	return &unitOfWork{scope: &scope{tx: tx}}, nil
}

// scope binds the handler surface to one (possibly nested) transaction
type scope struct {
	tx pgx.Tx
}

// Savepoint runs fn in a pgx nested transaction (SAVEPOINT / RELEASE)
func (s *scope) Savepoint(ctx context.Context, fn func(contracts.Scope) error) error {
	sp, err := s.tx.Begin(ctx)
	if err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}

	if err := fn(&scope{tx: sp}); err != nil {
		if rbErr := sp.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("%w (rollback to savepoint: %v)", err, rbErr)
		}
		return err
	}

	if err := sp.Commit(ctx); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

func (s *scope) ResolveDate(ctx context.Context, date time.Time) (contracts.DateKey, error) {
	return resolveDate(ctx, s.tx, date)
}

func (s *scope) ResolveCompany(ctx context.Context, ticker string) (contracts.CompanyKey, error) {
	return resolveCompany(ctx, s.tx, ticker)
}

func (s *scope) UpsertCompany(ctx context.Context, rec contracts.CompanyRecord) (contracts.CompanyKey, error) {
	return upsertCompany(ctx, s.tx, rec)
}

func (s *scope) UpsertFact(ctx context.Context, fact contracts.FactRow) error {
	return upsertFact(ctx, s.tx, fact)
}

func (s *scope) RecordEvent(ctx context.Context, entry contracts.EventEntry) error {
	return recordEvent(ctx, s.tx, entry)
}

type unitOfWork struct {
	*scope
}

// WriteSource upserts a raw row on its natural key and reports the change
func (u *unitOfWork) WriteSource(ctx context.Context, table contracts.SourceTable, row contracts.Row) (contracts.ChangeEvent, error) {
	allowed := make(map[string]bool, len(table.Columns))
	for _, c := range table.Columns {
		allowed[c] = true
	}
	for c := range row {
		if !allowed[c] {
			return contracts.ChangeEvent{}, fmt.Errorf("%s: unknown column %q", table.Name, c)
		}
	}

	keyComplete := len(table.Key) > 0
	keyArgs := make([]any, 0, len(table.Key))
	for _, k := range table.Key {
		v, ok := row.Get(k)
		if !ok {
			keyComplete = false
			break
		}
		keyArgs = append(keyArgs, sqlValue(v))
	}

	var old contracts.Row
	if keyComplete {
		var image map[string]any
		err := pgxscan.Get(ctx, u.tx, &image, buildSourceLock(table), keyArgs...)
		switch {
		case err == nil:
			old = normalizeRow(image)
		case pgxscan.NotFound(err):
		default:
			return contracts.ChangeEvent{}, fmt.Errorf("lock %s: %w", table.Name, err)
		}
	}

	query, args := buildSourceWrite(table, row, keyComplete)
	var written map[string]any
	if err := pgxscan.Get(ctx, u.tx, &written, query, args...); err != nil {
		return contracts.ChangeEvent{}, fmt.Errorf("write %s: %w", table.Name, err)
	}

	inserted, _ := written["inserted"].(bool)
	delete(written, "inserted")

	ev := contracts.ChangeEvent{Table: table.Name, Op: contracts.OpInsert, New: normalizeRow(written)}
	if !inserted {
		ev.Op = contracts.OpUpdate
		ev.Old = old
	}
	return ev, nil
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	return u.tx.Commit(ctx)
}

// Rollback is a no-op once the unit of work has committed
func (u *unitOfWork) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

// normalizeRow maps pgx decoded values onto the types the coercion layer produces
func normalizeRow(m map[string]any) contracts.Row {
	if m == nil {
		return nil
	}
	out := make(contracts.Row, len(m))
	for k, v := range m {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case pgtype.Numeric:
		if !x.Valid || x.NaN {
			return nil
		}
		if x.InfinityModifier != pgtype.Finite {
			return nil
		}
		return decimal.NewFromBigInt(x.Int, x.Exp)
	case int32:
		return int64(x)
	case int16:
		return int64(x)
	case time.Time:
		return x.UTC()
	}
	return v
}
