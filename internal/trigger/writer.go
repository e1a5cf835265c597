package trigger

import (
	"context"
	"errors"
	"fmt"

	"github.com/wonny/bankstar/internal/contracts"
	"github.com/wonny/bankstar/internal/domain"
	"github.com/wonny/bankstar/internal/etl"
)

// ErrUnknownTable is returned for writes to a table that is not a raw source table
var ErrUnknownTable = errors.New("unknown source table")

// WriteResult is what one source write did
type WriteResult struct {
	Event   contracts.ChangeEvent
	Results []Result
}

// Count returns how many handler outcomes were of kind k
func (r WriteResult) Count(k etl.OutcomeKind) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome.Kind == k {
			n++
		}
	}
	return n
}

// Writer is the apply-on-write path: the raw row and every bound handler
// commit together, and handler outcomes never fail the write.
// ⭐ SSOT: 원천 테이블 쓰기는 Writer를 통해서만
type Writer struct {
	store      contracts.Store
	dispatcher *Dispatcher
	tables     map[string]*domain.Descriptor
}

// NewWriter creates a writer over the given source tables
func NewWriter(store contracts.Store, dispatcher *Dispatcher, descs []*domain.Descriptor) *Writer {
	tables := make(map[string]*domain.Descriptor, len(descs))
	for _, d := range descs {
		tables[d.SourceTable] = d
	}
	return &Writer{store: store, dispatcher: dispatcher, tables: tables}
}

// Dispatcher returns the dispatcher the writer fires into
func (w *Writer) Dispatcher() *Dispatcher {
	return w.dispatcher
}

// Write inserts or updates one raw row and fires its bound handlers in the same unit of work.
// Only an error of the raw write itself is returned.
func (w *Writer) Write(ctx context.Context, table string, row contracts.Row) (WriteResult, error) {
	desc, ok := w.tables[table]
	if !ok {
		return WriteResult{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	typed, err := desc.CoerceRow(row)
	if err != nil {
		return WriteResult{}, fmt.Errorf("%s: %w", table, err)
	}

	uow, err := w.store.Begin(ctx)
	if err != nil {
		return WriteResult{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = uow.Rollback(ctx) }()

	ev, err := uow.WriteSource(ctx, desc.Source(), typed)
	if err != nil {
		return WriteResult{}, fmt.Errorf("write %s: %w", table, err)
	}

	results := w.dispatcher.Fire(ctx, uow, ev)

	if err := uow.Commit(ctx); err != nil {
		return WriteResult{}, fmt.Errorf("commit %s: %w", table, err)
	}
	return WriteResult{Event: ev, Results: results}, nil
}
